package worker

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/cryptexam/cryptexam-backend/internal/config"
	"github.com/cryptexam/cryptexam-backend/internal/notifier"
	"github.com/cryptexam/cryptexam-backend/internal/service"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	// NotifyBatchSize bounds how many emails one flush sends.
	NotifyBatchSize    = 50
	NotifyBatchTimeout = 2 * time.Second
	NotifyPollTimeout  = 1 * time.Second

	// notifySenders bounds concurrent SMTP connections per flush.
	notifySenders = 8
)

// NotifyWorker drains the notification queue and delivers emails. Delivery is
// best-effort: a recipient that cannot be reached is logged and skipped, never
// requeued, so one bad address cannot wedge a release fan-out.
type NotifyWorker struct {
	rdb    *redis.Client
	sender notifier.Notifier
	cfg    *config.Config
	log    zerolog.Logger
}

// NewNotifyWorker creates a new NotifyWorker.
func NewNotifyWorker(rdb *redis.Client, sender notifier.Notifier, cfg *config.Config, log zerolog.Logger) *NotifyWorker {
	return &NotifyWorker{
		rdb:    rdb,
		sender: sender,
		cfg:    cfg,
		log:    log.With().Str("component", "notify_worker").Logger(),
	}
}

// Start begins the worker loop with batching. Call in a goroutine.
func (w *NotifyWorker) Start(ctx context.Context) {
	w.log.Info().Msg("NotifyWorker started")

	batch := make([]*service.NotifyJob, 0, NotifyBatchSize)
	lastFlush := time.Now()

	for {
		if len(batch) > 0 &&
			(len(batch) >= NotifyBatchSize || time.Since(lastFlush) >= NotifyBatchTimeout) {

			w.flush(ctx, batch)
			batch = batch[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.log.Info().Msg("Shutdown requested. Flushing remaining notifications...")
			w.flush(context.Background(), batch)
			w.drain(context.Background())
			return

		default:
			item, err := w.rdb.BLPop(ctx, NotifyPollTimeout, config.WorkerKey.NotifyQueue).Result()
			if err != nil {
				if err != redis.Nil && ctx.Err() == nil {
					w.log.Error().Err(err).Msg("BLPop error")
				}
				continue
			}

			if len(item) < 2 {
				continue
			}

			var job service.NotifyJob
			if err := json.Unmarshal([]byte(item[1]), &job); err != nil {
				w.log.Error().Err(err).Msg("Invalid notify payload")
				continue
			}

			batch = append(batch, &job)
		}
	}
}

// flush sends one batch with bounded concurrency.
func (w *NotifyWorker) flush(ctx context.Context, batch []*service.NotifyJob) {
	if len(batch) == 0 {
		return
	}

	sem := make(chan struct{}, notifySenders)
	var wg sync.WaitGroup

	for _, job := range batch {
		wg.Add(1)
		sem <- struct{}{}
		go func(job *service.NotifyJob) {
			defer wg.Done()
			defer func() { <-sem }()
			w.send(ctx, job)
		}(job)
	}
	wg.Wait()

	w.log.Info().Int("count", len(batch)).Msg("Notification batch flushed")
}

// send renders and delivers one job. Failures are logged and swallowed.
func (w *NotifyWorker) send(ctx context.Context, job *service.NotifyJob) {
	var subject, body string
	var err error

	switch job.Kind {
	case service.NotifyKindResult:
		subject, body, err = notifier.RenderResultEmail(notifier.ResultEmailData{
			StudentName:    job.Name,
			ExamTitle:      job.ExamTitle,
			Score:          job.Score,
			CorrectCount:   job.CorrectCount,
			TotalQuestions: job.TotalQuestions,
			SubmittedAt:    job.SubmittedAt,
			DashboardURL:   w.cfg.FrontendURL,
		})
	case service.NotifyKindReview:
		subject, body, err = notifier.RenderReviewEmail(notifier.ReviewEmailData{
			InstituteName: job.Name,
			ExamTitle:     job.ExamTitle,
			Approved:      job.Approved,
			Comment:       job.Comment,
		})
	default:
		w.log.Error().Str("kind", job.Kind).Msg("Unknown notify kind, dropping")
		return
	}
	if err != nil {
		w.log.Error().Err(err).Str("kind", job.Kind).Msg("Template render failed, dropping")
		return
	}

	if err := w.sender.Send(ctx, job.Recipient, subject, body); err != nil {
		w.log.Error().Err(err).
			Str("recipient", job.Recipient).
			Str("exam_title", job.ExamTitle).
			Msg("Notification delivery failed, skipping recipient")
	}
}

// drain sends whatever is still queued before shutdown.
func (w *NotifyWorker) drain(ctx context.Context) {
	drained := 0
	for {
		item, err := w.rdb.LPop(ctx, config.WorkerKey.NotifyQueue).Result()
		if err != nil {
			break
		}

		var job service.NotifyJob
		if err := json.Unmarshal([]byte(item), &job); err != nil {
			w.log.Error().Err(err).Msg("Drain unmarshal error")
			continue
		}

		w.send(ctx, &job)
		drained++
	}

	if drained > 0 {
		w.log.Info().Int("count", drained).Msg("Drained remaining notifications")
	}
}
