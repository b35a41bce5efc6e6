package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/cryptexam/cryptexam-backend/internal/model"
	"github.com/cryptexam/cryptexam-backend/internal/repository"
	"github.com/cryptexam/cryptexam-backend/internal/vault"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// Lifecycle errors.
var (
	ErrExamNotFound      = errors.New("exam not found")
	ErrInvalidTransition = errors.New("invalid lifecycle transition")
)

// ExamService owns the exam content pipeline: submission into the vault,
// admin review, and publication to the distribution store.
type ExamService struct {
	exams ExamStore
	vault *vault.ContentVault
	queue NotifyQueue
	log   zerolog.Logger
}

// NewExamService creates a new ExamService.
func NewExamService(exams ExamStore, v *vault.ContentVault, queue NotifyQueue, log zerolog.Logger) *ExamService {
	return &ExamService{
		exams: exams,
		vault: v,
		queue: queue,
		log:   log.With().Str("component", "exam_service").Logger(),
	}
}

// SubmitContent validates and encrypts new exam content, then persists the
// PENDING exam record. The plaintext never touches the database.
func (s *ExamService) SubmitContent(ctx context.Context, instituteID int, req *model.SubmitExamRequest) (*model.Exam, error) {
	examID := uuid.New()
	content := buildContent(examID, req)

	sealed, err := s.vault.Submit(content)
	if err != nil {
		return nil, err
	}

	exam := &model.Exam{
		ID:               examID,
		InstituteID:      instituteID,
		Title:            req.Title,
		Description:      req.Description,
		TimeLimitMinutes: req.TimeLimitMinutes,
		TotalQuestions:   len(req.Questions),
		Status:           model.ExamStatusPending,
		StorageBlob:      sealed.Blob,
		StorageKey:       sealed.Key,
	}

	if err := s.exams.Create(ctx, exam); err != nil {
		return nil, fmt.Errorf("create exam: %w", err)
	}

	s.log.Info().
		Str("exam_id", exam.ID.String()).
		Int("institute_id", instituteID).
		Int("questions", exam.TotalQuestions).
		Msg("Exam submitted for review")

	return exam, nil
}

// Review records the admin verdict on a PENDING exam. Approval immediately
// triggers publication; rejection only records the verdict. Either way the
// owning institute gets a queued notification.
func (s *ExamService) Review(ctx context.Context, examID uuid.UUID, reviewerID int, req *model.ReviewExamRequest, institute *model.User) (*model.Exam, error) {
	next := model.ExamStatus(req.Status)

	exam, err := s.GetByID(ctx, examID)
	if err != nil {
		return nil, err
	}
	if !exam.Status.CanTransitionTo(next) {
		return nil, ErrInvalidTransition
	}

	if err := s.exams.SetReview(ctx, examID, next, reviewerID, req.Comment); err != nil {
		if errors.Is(err, repository.ErrStaleStatus) {
			return nil, ErrInvalidTransition
		}
		return nil, fmt.Errorf("record review: %w", err)
	}
	exam.Status = next
	exam.ReviewedBy = &reviewerID
	exam.ReviewComment = req.Comment

	if next == model.ExamStatusApproved {
		if err := s.publish(ctx, exam); err != nil {
			// The exam stays APPROVED; publication can be retried. The
			// storage key is never touched to make a broken blob "work".
			return nil, err
		}
	}

	s.notifyReview(ctx, exam, institute, next == model.ExamStatusApproved, req.Comment)

	return exam, nil
}

// Publish re-encrypts an APPROVED exam for distribution and records the
// locator. Used directly for retrying a publication that failed during review.
func (s *ExamService) Publish(ctx context.Context, examID uuid.UUID) (*model.Exam, error) {
	exam, err := s.GetByID(ctx, examID)
	if err != nil {
		return nil, err
	}
	if exam.Status != model.ExamStatusApproved {
		return nil, ErrInvalidTransition
	}
	if err := s.publish(ctx, exam); err != nil {
		return nil, err
	}
	return exam, nil
}

func (s *ExamService) publish(ctx context.Context, exam *model.Exam) error {
	pub, err := s.vault.Publish(ctx, exam.StorageBlob, exam.StorageKey)
	if err != nil {
		s.log.Error().Err(err).Str("exam_id", exam.ID.String()).Msg("Publication failed")
		return err
	}
	pub.ExamID = exam.ID

	if err := s.exams.SetPublication(ctx, exam.ID, pub); err != nil {
		if errors.Is(err, repository.ErrStaleStatus) {
			return ErrInvalidTransition
		}
		return fmt.Errorf("record publication: %w", err)
	}

	exam.Status = model.ExamStatusPublished
	exam.Locator = pub.Locator
	exam.DistributionKey = pub.DistributionKey

	s.log.Info().
		Str("exam_id", exam.ID.String()).
		Str("locator", pub.Locator).
		Msg("Exam published")

	return nil
}

// GetByID retrieves an exam, mapping a missing row to ErrExamNotFound.
func (s *ExamService) GetByID(ctx context.Context, examID uuid.UUID) (*model.Exam, error) {
	exam, err := s.exams.GetByID(ctx, examID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("get exam: %w", err)
	}
	return exam, nil
}

// ListByInstitute retrieves all exams owned by an institute.
func (s *ExamService) ListByInstitute(ctx context.Context, instituteID int) ([]model.Exam, error) {
	return s.exams.ListByInstitute(ctx, instituteID)
}

// ListPending retrieves exams awaiting review, for the admin queue.
func (s *ExamService) ListPending(ctx context.Context) ([]model.Exam, error) {
	return s.exams.ListByStatus(ctx, model.ExamStatusPending)
}

// StatusCounts returns per-state exam counts for the admin dashboard.
func (s *ExamService) StatusCounts(ctx context.Context) (map[model.ExamStatus]int, error) {
	return s.exams.StatusCounts(ctx)
}

func (s *ExamService) notifyReview(ctx context.Context, exam *model.Exam, institute *model.User, approved bool, comment string) {
	if s.queue == nil || institute == nil {
		return
	}
	job := &NotifyJob{
		Kind:      NotifyKindReview,
		Recipient: institute.Email,
		Name:      institute.Name,
		ExamTitle: exam.Title,
		Approved:  approved,
		Comment:   comment,
	}
	if err := s.queue.Enqueue(ctx, job); err != nil {
		s.log.Warn().Err(err).Str("exam_id", exam.ID.String()).Msg("Failed to enqueue review notification")
	}
}

// buildContent converts the request payload into the confidential content
// document keyed by the new exam ID.
func buildContent(examID uuid.UUID, req *model.SubmitExamRequest) *model.ExamContent {
	questions := make([]model.Question, len(req.Questions))
	for i, q := range req.Questions {
		questions[i] = model.Question{
			Text:    q.Text,
			Images:  q.Images,
			Options: q.Options,
			Answer: model.AnswerSpec{
				Kind:            model.AnswerKind(q.Kind),
				CorrectIndex:    q.CorrectIndex,
				CorrectIndexSet: q.CorrectIndexSet,
			},
		}
	}
	return &model.ExamContent{
		ExamID:    examID,
		Title:     req.Title,
		Questions: questions,
	}
}
