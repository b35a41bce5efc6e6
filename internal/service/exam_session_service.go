package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cryptexam/cryptexam-backend/internal/config"
	"github.com/cryptexam/cryptexam-backend/internal/model"
	"github.com/cryptexam/cryptexam-backend/internal/scoring"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// Attempt errors.
var (
	ErrExamNotAvailable   = errors.New("exam is not available")
	ErrDuplicateAttempt   = errors.New("exam already attempted")
	ErrNoActiveSession    = errors.New("no active session")
	ErrAttemptTimedOut    = errors.New("attempt timed out")
	ErrContentUnavailable = errors.New("exam content unavailable")
)

// submitGrace absorbs clock skew and network latency on submissions that
// arrive just past the deadline.
const submitGrace = 30 * time.Second

// ExamSessionService handles the student attempt flow: starting a session,
// serving decrypted sanitized content, and grading submissions.
type ExamSessionService struct {
	sessions SessionStore
	exams    ExamStore
	content  ContentFetcher
	events   EventSink
	cfg      *config.Config
	log      zerolog.Logger
}

// NewExamSessionService creates a new ExamSessionService.
func NewExamSessionService(
	sessions SessionStore,
	exams ExamStore,
	content ContentFetcher,
	events EventSink,
	cfg *config.Config,
	log zerolog.Logger,
) *ExamSessionService {
	return &ExamSessionService{
		sessions: sessions,
		exams:    exams,
		content:  content,
		events:   events,
		cfg:      cfg,
		log:      log.With().Str("component", "exam_session_service").Logger(),
	}
}

// StartAttemptResult is what a student receives at attempt start: the session
// record and the sanitized paper.
type StartAttemptResult struct {
	Session          *model.ExamSession     `json:"session"`
	Paper            *model.StudentExamView `json:"paper"`
	TimeLimitMinutes int                    `json:"time_limit_minutes"`
	DeadlineAt       time.Time              `json:"deadline_at"`
}

// StartAttempt opens (or resumes) the student's single attempt at an exam.
// Re-entry into an in-progress attempt is idempotent and returns the same
// session; a terminal session blocks any further attempt. If the published
// content cannot be fetched and decrypted for a fresh session, the session
// is rolled back so the student is not locked out by a delivery failure.
func (s *ExamSessionService) StartAttempt(ctx context.Context, examID uuid.UUID, studentID int) (*StartAttemptResult, error) {
	exam, err := s.exams.GetByID(ctx, examID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrExamNotAvailable
		}
		return nil, fmt.Errorf("get exam: %w", err)
	}
	if !exam.Status.Attemptable() {
		return nil, ErrExamNotAvailable
	}

	existing, err := s.sessions.GetByExamAndStudent(ctx, examID, studentID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("check existing session: %w", err)
	}
	if existing != nil {
		return s.resume(ctx, exam, existing)
	}

	session := &model.ExamSession{
		ExamID:         examID,
		StudentID:      studentID,
		Status:         model.SessionStatusInProgress,
		TotalQuestions: exam.TotalQuestions,
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Lost the insert race; the winner's session is ours too.
			winner, fetchErr := s.sessions.GetByExamAndStudent(ctx, examID, studentID)
			if fetchErr != nil {
				return nil, fmt.Errorf("concurrent start detected, but fetch failed: %w", fetchErr)
			}
			return s.resume(ctx, exam, winner)
		}
		return nil, fmt.Errorf("create session: %w", err)
	}

	paper, err := s.fetchPaper(ctx, exam)
	if err != nil {
		// Compensate: the student saw nothing, so the attempt must not count.
		if delErr := s.sessions.Delete(ctx, session.ID); delErr != nil {
			s.log.Error().Err(delErr).
				Str("session_id", session.ID.String()).
				Msg("Failed to roll back session after content failure")
		}
		return nil, err
	}

	s.publishEvent(ctx, EventAttemptStarted, exam.ID, session)

	s.log.Info().
		Str("exam_id", examID.String()).
		Int("student_id", studentID).
		Str("session_id", session.ID.String()).
		Msg("Attempt started")

	return s.startResult(exam, session, paper), nil
}

// resume handles re-entry into an existing session.
func (s *ExamSessionService) resume(ctx context.Context, exam *model.Exam, session *model.ExamSession) (*StartAttemptResult, error) {
	switch session.Status {
	case model.SessionStatusTimedOut:
		return nil, ErrAttemptTimedOut
	case model.SessionStatusCompleted:
		return nil, ErrDuplicateAttempt
	}

	if time.Now().After(session.Deadline(s.timeLimit(exam))) {
		s.expire(ctx, exam, session)
		return nil, ErrAttemptTimedOut
	}

	paper, err := s.fetchPaper(ctx, exam)
	if err != nil {
		// Existing session stays; a resume must never delete the attempt.
		return nil, err
	}
	return s.startResult(exam, session, paper), nil
}

// SubmitAttempt grades the answer sheet against the decrypted answer key and
// records the result. The compare-and-update in the store guarantees exactly
// one submission wins under concurrency.
func (s *ExamSessionService) SubmitAttempt(ctx context.Context, sessionID uuid.UUID, studentID int, answers model.AnswerSheet) (*model.ExamSession, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoActiveSession
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	// A foreign session is reported exactly like a missing one.
	if session.StudentID != studentID {
		return nil, ErrNoActiveSession
	}

	switch session.Status {
	case model.SessionStatusTimedOut:
		return nil, ErrAttemptTimedOut
	case model.SessionStatusCompleted:
		return nil, ErrNoActiveSession
	}

	exam, err := s.exams.GetByID(ctx, session.ExamID)
	if err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}

	now := time.Now()
	if now.After(session.Deadline(s.timeLimit(exam)).Add(submitGrace)) {
		s.expire(ctx, exam, session)
		return nil, ErrAttemptTimedOut
	}

	content, err := s.content.FetchForExam(ctx, exam.Publication())
	if err != nil {
		s.log.Error().Err(err).Str("exam_id", exam.ID.String()).Msg("Content fetch failed during grading")
		return nil, fmt.Errorf("%w: %w", ErrContentUnavailable, err)
	}

	result := scoring.Score(content, answers)

	if err := s.sessions.CompleteIfInProgress(ctx, session.ID, answers, result.Score, result.CorrectCount, now); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoActiveSession
		}
		return nil, fmt.Errorf("complete session: %w", err)
	}

	session.Status = model.SessionStatusCompleted
	session.Answers = answers
	session.Score = &result.Score
	session.CorrectCount = &result.CorrectCount
	session.SubmittedAt = &now

	s.publishEvent(ctx, EventAttemptCompleted, exam.ID, session)

	s.log.Info().
		Str("session_id", session.ID.String()).
		Int("student_id", studentID).
		Float64("score", result.Score).
		Msg("Attempt submitted and graded")

	return session, nil
}

// ListAvailableExams returns published exams the student has not attempted.
func (s *ExamSessionService) ListAvailableExams(ctx context.Context, studentID int) ([]model.Exam, error) {
	return s.exams.ListAvailableForStudent(ctx, studentID)
}

// SweepExpired transitions every overdue in-progress session to TIMED_OUT
// and emits monitor events. Called periodically by the timeout worker.
func (s *ExamSessionService) SweepExpired(ctx context.Context) (int, error) {
	expired, err := s.sessions.SweepExpired(ctx, int(s.cfg.DefaultTimeLimit.Minutes()))
	if err != nil {
		return 0, fmt.Errorf("sweep expired sessions: %w", err)
	}
	for i := range expired {
		s.publishEvent(ctx, EventAttemptTimedOut, expired[i].ExamID, &expired[i])
	}
	return len(expired), nil
}

// expire marks an in-progress session timed out. Losing the CAS to a
// concurrent sweep is fine; the outcome is identical.
func (s *ExamSessionService) expire(ctx context.Context, exam *model.Exam, session *model.ExamSession) {
	if err := s.sessions.MarkTimedOut(ctx, session.ID); err != nil && !errors.Is(err, pgx.ErrNoRows) {
		s.log.Error().Err(err).Str("session_id", session.ID.String()).Msg("Failed to mark session timed out")
		return
	}
	session.Status = model.SessionStatusTimedOut
	s.publishEvent(ctx, EventAttemptTimedOut, exam.ID, session)
}

func (s *ExamSessionService) fetchPaper(ctx context.Context, exam *model.Exam) (*model.StudentExamView, error) {
	content, err := s.content.FetchForExam(ctx, exam.Publication())
	if err != nil {
		s.log.Error().Err(err).
			Str("exam_id", exam.ID.String()).
			Str("locator", exam.Locator).
			Msg("Published content could not be fetched")
		return nil, fmt.Errorf("%w: %w", ErrContentUnavailable, err)
	}
	return s.content.Sanitize(content), nil
}

func (s *ExamSessionService) startResult(exam *model.Exam, session *model.ExamSession, paper *model.StudentExamView) *StartAttemptResult {
	limit := s.timeLimit(exam)
	return &StartAttemptResult{
		Session:          session,
		Paper:            paper,
		TimeLimitMinutes: int(limit / time.Minute),
		DeadlineAt:       session.Deadline(limit),
	}
}

func (s *ExamSessionService) timeLimit(exam *model.Exam) time.Duration {
	if exam.TimeLimitMinutes > 0 {
		return time.Duration(exam.TimeLimitMinutes) * time.Minute
	}
	return s.cfg.DefaultTimeLimit
}

func (s *ExamSessionService) publishEvent(ctx context.Context, eventType string, examID uuid.UUID, session *model.ExamSession) {
	if s.events == nil {
		return
	}
	s.events.PublishAttemptEvent(ctx, AttemptEvent{
		Type:      eventType,
		ExamID:    examID,
		SessionID: session.ID,
		StudentID: session.StudentID,
		At:        time.Now(),
	})
}
