package worker

import (
	"context"
	"time"

	"github.com/cryptexam/cryptexam-backend/internal/service"
	"github.com/rs/zerolog"
)

// TimeoutSweepInterval is how often overdue sessions are reaped. Deadlines
// are also enforced inline on resume and submit, so the sweep only has to
// catch sessions that were simply abandoned.
const TimeoutSweepInterval = 30 * time.Second

// TimeoutWorker periodically expires in-progress sessions that ran past
// their exam's time limit.
type TimeoutWorker struct {
	sessions *service.ExamSessionService
	log      zerolog.Logger
}

// NewTimeoutWorker creates a new TimeoutWorker.
func NewTimeoutWorker(sessions *service.ExamSessionService, log zerolog.Logger) *TimeoutWorker {
	return &TimeoutWorker{
		sessions: sessions,
		log:      log.With().Str("component", "timeout_worker").Logger(),
	}
}

// Start begins the sweep loop. Call in a goroutine.
func (w *TimeoutWorker) Start(ctx context.Context) {
	w.log.Info().Msg("TimeoutWorker started")

	ticker := time.NewTicker(TimeoutSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("TimeoutWorker stopped")
			return
		case <-ticker.C:
			expired, err := w.sessions.SweepExpired(ctx)
			if err != nil {
				w.log.Error().Err(err).Msg("Timeout sweep failed")
				continue
			}
			if expired > 0 {
				w.log.Info().Int("expired", expired).Msg("Expired overdue sessions")
			}
		}
	}
}
