package service

import (
	"context"
	"time"

	"github.com/cryptexam/cryptexam-backend/internal/model"
	"github.com/cryptexam/cryptexam-backend/internal/repository"
	"github.com/google/uuid"
)

// ExamStore is the exam persistence surface the services depend on.
// Narrowing to an interface keeps the attempt and lifecycle flows testable
// without a live database.
type ExamStore interface {
	Create(ctx context.Context, e *model.Exam) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error)
	ListByInstitute(ctx context.Context, instituteID int) ([]model.Exam, error)
	ListByStatus(ctx context.Context, status model.ExamStatus) ([]model.Exam, error)
	ListAvailableForStudent(ctx context.Context, studentID int) ([]model.Exam, error)
	SetReview(ctx context.Context, id uuid.UUID, status model.ExamStatus, reviewerID int, comment string) error
	SetPublication(ctx context.Context, id uuid.UUID, pub *model.ExamPublication) error
	SetReleased(ctx context.Context, id uuid.UUID) error
	StatusCounts(ctx context.Context) (map[model.ExamStatus]int, error)
}

// SessionStore is the session persistence surface.
type SessionStore interface {
	Create(ctx context.Context, s *model.ExamSession) error
	GetByExamAndStudent(ctx context.Context, examID uuid.UUID, studentID int) (*model.ExamSession, error)
	GetByID(ctx context.Context, id uuid.UUID) (*model.ExamSession, error)
	CompleteIfInProgress(ctx context.Context, id uuid.UUID, answers model.AnswerSheet, score float64, correctCount int, submittedAt time.Time) error
	MarkTimedOut(ctx context.Context, id uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByStudent(ctx context.Context, studentID int) ([]model.ExamSession, error)
	ListResultsByExam(ctx context.Context, examID uuid.UUID) ([]repository.SessionResult, error)
	SweepExpired(ctx context.Context, defaultMinutes int) ([]model.ExamSession, error)
}

// ContentFetcher is the vault surface attempt handling needs: retrieve plus
// sanitize. Submission and publication use the vault directly.
type ContentFetcher interface {
	FetchForExam(ctx context.Context, pub *model.ExamPublication) (*model.ExamContent, error)
	Sanitize(content *model.ExamContent) *model.StudentExamView
}

var (
	_ ExamStore    = (*repository.ExamRepository)(nil)
	_ SessionStore = (*repository.ExamSessionRepository)(nil)
)
