package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cryptexam/cryptexam-backend/internal/config"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Attempt event types published to the per-exam monitor channel.
const (
	EventAttemptStarted   = "attempt_started"
	EventAttemptCompleted = "attempt_completed"
	EventAttemptTimedOut  = "attempt_timed_out"
)

// AttemptEvent is one live monitoring event. Scores and answers never travel
// through the monitor channel.
type AttemptEvent struct {
	Type      string    `json:"type"`
	ExamID    uuid.UUID `json:"exam_id"`
	SessionID uuid.UUID `json:"session_id"`
	StudentID int       `json:"student_id"`
	At        time.Time `json:"at"`
}

// EventSink receives attempt lifecycle events. Publishing is best-effort and
// must never fail the attempt flow.
type EventSink interface {
	PublishAttemptEvent(ctx context.Context, ev AttemptEvent)
}

// RedisEventSink fans attempt events out over a per-exam Redis pub/sub
// channel, consumed by institute monitor websockets.
type RedisEventSink struct {
	rdb *redis.Client
	log zerolog.Logger
}

// NewRedisEventSink creates a RedisEventSink.
func NewRedisEventSink(rdb *redis.Client, log zerolog.Logger) *RedisEventSink {
	return &RedisEventSink{
		rdb: rdb,
		log: log.With().Str("component", "event_sink").Logger(),
	}
}

// PublishAttemptEvent publishes one event. Failures are logged and dropped.
func (s *RedisEventSink) PublishAttemptEvent(ctx context.Context, ev AttemptEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		s.log.Warn().Err(err).Str("type", ev.Type).Msg("Failed to marshal attempt event")
		return
	}
	channel := config.CacheKey.ExamMonitorChannel(ev.ExamID.String())
	if err := s.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		s.log.Warn().Err(err).Str("channel", channel).Msg("Failed to publish attempt event")
	}
}
