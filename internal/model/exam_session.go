package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SessionStatus enumerates exam session states.
type SessionStatus string

const (
	SessionStatusInProgress SessionStatus = "IN_PROGRESS"
	SessionStatusCompleted  SessionStatus = "COMPLETED"
	SessionStatusTimedOut   SessionStatus = "TIMED_OUT"
)

// Terminal reports whether the session blocks any further attempt.
func (s SessionStatus) Terminal() bool {
	return s == SessionStatusCompleted || s == SessionStatusTimedOut
}

// AnswerValue is a student's answer to one question: a single option index
// or a set of indices, depending on the question kind. Clients may send
// either a bare number or an array; both normalize to Indices.
type AnswerValue struct {
	Indices []int
}

// UnmarshalJSON accepts either a scalar index or an array of indices.
func (a *AnswerValue) UnmarshalJSON(data []byte) error {
	var single int
	if err := json.Unmarshal(data, &single); err == nil {
		a.Indices = []int{single}
		return nil
	}
	var many []int
	if err := json.Unmarshal(data, &many); err == nil {
		a.Indices = many
		return nil
	}
	return fmt.Errorf("answer value must be an index or an array of indices")
}

// MarshalJSON emits the canonical array form.
func (a AnswerValue) MarshalJSON() ([]byte, error) {
	if a.Indices == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(a.Indices)
}

// AnswerSheet maps question index to the submitted answer. Questions absent
// from the sheet are unanswered.
type AnswerSheet map[int]AnswerValue

// ExamSession represents a student's single graded attempt at an exam.
// At most one session exists per (student, exam), enforced by the store.
type ExamSession struct {
	ID             uuid.UUID     `json:"id"`
	ExamID         uuid.UUID     `json:"exam_id"`
	StudentID      int           `json:"student_id"`
	Status         SessionStatus `json:"status"`
	StartedAt      time.Time     `json:"started_at"`
	SubmittedAt    *time.Time    `json:"submitted_at,omitempty"`
	Answers        AnswerSheet   `json:"answers,omitempty"`
	Score          *float64      `json:"score,omitempty"`
	CorrectCount   *int          `json:"correct_count,omitempty"`
	TotalQuestions int           `json:"total_questions"`
}

// Deadline returns the wall-clock instant the attempt times out.
func (s *ExamSession) Deadline(timeLimit time.Duration) time.Time {
	return s.StartedAt.Add(timeLimit)
}

// SubmitAttemptRequest is the student payload for submitting answers.
type SubmitAttemptRequest struct {
	Answers AnswerSheet `json:"answers" binding:"required"`
}
