package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cryptexam/cryptexam-backend/internal/config"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Notification job kinds.
const (
	NotifyKindResult = "result"
	NotifyKindReview = "review"
)

// NotifyJob is one queued email notification. Result jobs carry score data
// for a student; review jobs carry the verdict for an institute.
type NotifyJob struct {
	Kind      string `json:"kind"`
	Recipient string `json:"recipient"`
	Name      string `json:"name"`
	ExamTitle string `json:"exam_title"`

	// Result fields.
	SessionID      uuid.UUID `json:"session_id,omitempty"`
	Score          float64   `json:"score,omitempty"`
	CorrectCount   int       `json:"correct_count,omitempty"`
	TotalQuestions int       `json:"total_questions,omitempty"`
	SubmittedAt    time.Time `json:"submitted_at,omitempty"`

	// Review fields.
	Approved bool   `json:"approved,omitempty"`
	Comment  string `json:"comment,omitempty"`
}

// NotifyQueue enqueues notification jobs for asynchronous delivery.
type NotifyQueue interface {
	Enqueue(ctx context.Context, job *NotifyJob) error
}

// RedisNotifyQueue pushes jobs onto the Redis list drained by the notify
// worker.
type RedisNotifyQueue struct {
	rdb *redis.Client
}

// NewRedisNotifyQueue creates a RedisNotifyQueue.
func NewRedisNotifyQueue(rdb *redis.Client) *RedisNotifyQueue {
	return &RedisNotifyQueue{rdb: rdb}
}

// Enqueue serializes the job and pushes it onto the queue.
func (q *RedisNotifyQueue) Enqueue(ctx context.Context, job *NotifyJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal notify job: %w", err)
	}
	if err := q.rdb.RPush(ctx, config.WorkerKey.NotifyQueue, payload).Err(); err != nil {
		return fmt.Errorf("enqueue notify job: %w", err)
	}
	return nil
}
