package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cryptexam/cryptexam-backend/internal/model"
	"github.com/cryptexam/cryptexam-backend/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// ErrSessionNotFound means the requested session does not exist or belongs
// to another student. The two cases are deliberately indistinguishable.
var ErrSessionNotFound = errors.New("session not found")

// ReleaseService gates score visibility. Scores exist in the ledger from the
// moment an attempt is graded, but students see them only after the owning
// institute flips the exam to RELEASED.
type ReleaseService struct {
	exams    ExamStore
	sessions SessionStore
	queue    NotifyQueue
	log      zerolog.Logger
}

// NewReleaseService creates a new ReleaseService.
func NewReleaseService(exams ExamStore, sessions SessionStore, queue NotifyQueue, log zerolog.Logger) *ReleaseService {
	return &ReleaseService{
		exams:    exams,
		sessions: sessions,
		queue:    queue,
		log:      log.With().Str("component", "release_service").Logger(),
	}
}

// StudentResult is a session as shown to its owning student. Score fields
// stay nil until the exam is RELEASED.
type StudentResult struct {
	SessionID       uuid.UUID           `json:"session_id"`
	ExamID          uuid.UUID           `json:"exam_id"`
	ExamTitle       string              `json:"exam_title"`
	Status          model.SessionStatus `json:"status"`
	SubmittedAt     *time.Time          `json:"submitted_at,omitempty"`
	ResultsReleased bool                `json:"results_released"`
	Score           *float64            `json:"score,omitempty"`
	CorrectCount    *int                `json:"correct_count,omitempty"`
	TotalQuestions  int                 `json:"total_questions"`
}

// ReleaseResults flips a PUBLISHED exam to RELEASED and queues one result
// notification per completed attempt. Returns the number of notifications
// queued. A second release attempt fails the compare-and-update.
func (r *ReleaseService) ReleaseResults(ctx context.Context, examID uuid.UUID, instituteID int) (int, error) {
	exam, err := r.ownedExam(ctx, examID, instituteID)
	if err != nil {
		return 0, err
	}

	if err := r.exams.SetReleased(ctx, examID); err != nil {
		if errors.Is(err, repository.ErrStaleStatus) {
			return 0, ErrInvalidTransition
		}
		return 0, fmt.Errorf("release results: %w", err)
	}

	results, err := r.sessions.ListResultsByExam(ctx, examID)
	if err != nil {
		// Released but fan-out failed; notifications are best-effort and
		// the dashboard still shows the scores.
		r.log.Error().Err(err).Str("exam_id", examID.String()).Msg("Failed to list results for notification fan-out")
		return 0, nil
	}

	queued := 0
	for _, res := range results {
		if res.Status != model.SessionStatusCompleted || res.Score == nil {
			continue
		}
		job := &NotifyJob{
			Kind:           NotifyKindResult,
			Recipient:      res.StudentEmail,
			Name:           res.StudentName,
			ExamTitle:      exam.Title,
			SessionID:      res.SessionID,
			Score:          *res.Score,
			CorrectCount:   derefInt(res.CorrectCount),
			TotalQuestions: res.TotalQuestions,
			SubmittedAt:    derefTime(res.SubmittedAt),
		}
		if err := r.queue.Enqueue(ctx, job); err != nil {
			r.log.Warn().Err(err).Str("session_id", res.SessionID.String()).Msg("Failed to enqueue result notification")
			continue
		}
		queued++
	}

	r.log.Info().
		Str("exam_id", examID.String()).
		Int("notifications", queued).
		Msg("Results released")

	return queued, nil
}

// ListExamResults returns per-student results for an institute's own exam.
func (r *ReleaseService) ListExamResults(ctx context.Context, examID uuid.UUID, instituteID int) ([]repository.SessionResult, error) {
	if _, err := r.ownedExam(ctx, examID, instituteID); err != nil {
		return nil, err
	}
	return r.sessions.ListResultsByExam(ctx, examID)
}

// GetMyResult returns one session to its owning student, score-gated by the
// exam's release state.
func (r *ReleaseService) GetMyResult(ctx context.Context, sessionID uuid.UUID, studentID int) (*StudentResult, error) {
	session, err := r.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	if session.StudentID != studentID {
		return nil, ErrSessionNotFound
	}

	exam, err := r.exams.GetByID(ctx, session.ExamID)
	if err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}

	return gatedResult(session, exam), nil
}

// ListMyResults returns all of a student's sessions, each score-gated by its
// exam's release state.
func (r *ReleaseService) ListMyResults(ctx context.Context, studentID int) ([]StudentResult, error) {
	sessions, err := r.sessions.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	exams := make(map[uuid.UUID]*model.Exam, len(sessions))
	results := make([]StudentResult, 0, len(sessions))
	for i := range sessions {
		exam, ok := exams[sessions[i].ExamID]
		if !ok {
			exam, err = r.exams.GetByID(ctx, sessions[i].ExamID)
			if err != nil {
				continue // Skip sessions whose exam vanished
			}
			exams[sessions[i].ExamID] = exam
		}
		results = append(results, *gatedResult(&sessions[i], exam))
	}
	return results, nil
}

func (r *ReleaseService) ownedExam(ctx context.Context, examID uuid.UUID, instituteID int) (*model.Exam, error) {
	exam, err := r.exams.GetByID(ctx, examID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("get exam: %w", err)
	}
	// Foreign exams look exactly like missing ones.
	if exam.InstituteID != instituteID {
		return nil, ErrExamNotFound
	}
	return exam, nil
}

func gatedResult(session *model.ExamSession, exam *model.Exam) *StudentResult {
	res := &StudentResult{
		SessionID:       session.ID,
		ExamID:          exam.ID,
		ExamTitle:       exam.Title,
		Status:          session.Status,
		SubmittedAt:     session.SubmittedAt,
		ResultsReleased: exam.Status == model.ExamStatusReleased,
		TotalQuestions:  session.TotalQuestions,
	}
	if res.ResultsReleased {
		res.Score = session.Score
		res.CorrectCount = session.CorrectCount
	}
	return res
}

func derefInt(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

func derefTime(p *time.Time) time.Time {
	if p == nil {
		return time.Time{}
	}
	return *p
}
