package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cryptexam/cryptexam-backend/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SessionResult combines a session with the owning student's contact data,
// used for result listings and notification fan-out.
type SessionResult struct {
	SessionID      uuid.UUID           `json:"session_id"`
	StudentID      int                 `json:"student_id"`
	StudentName    string              `json:"student_name"`
	StudentEmail   string              `json:"student_email"`
	Status         model.SessionStatus `json:"status"`
	Score          *float64            `json:"score,omitempty"`
	CorrectCount   *int                `json:"correct_count,omitempty"`
	TotalQuestions int                 `json:"total_questions"`
	SubmittedAt    *time.Time          `json:"submitted_at,omitempty"`
}

const sessionColumns = `id, exam_id, student_id, status, started_at,
	submitted_at, answers, score, correct_count, total_questions`

// ExamSessionRepository handles exam session data access. The UNIQUE
// (exam_id, student_id) constraint is what makes single-attempt semantics
// hold under concurrency.
type ExamSessionRepository struct {
	pool *pgxpool.Pool
}

// NewExamSessionRepository creates a new ExamSessionRepository.
func NewExamSessionRepository(pool *pgxpool.Pool) *ExamSessionRepository {
	return &ExamSessionRepository{pool: pool}
}

// Create inserts a new IN_PROGRESS session. On a concurrent duplicate the
// insert is a no-op and pgx.ErrNoRows is returned; the caller refetches the
// winner's row instead of failing.
func (r *ExamSessionRepository) Create(ctx context.Context, s *model.ExamSession) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO exam_sessions (exam_id, student_id, status, total_questions)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (exam_id, student_id) DO NOTHING
		 RETURNING id, started_at`,
		s.ExamID, s.StudentID, model.SessionStatusInProgress, s.TotalQuestions,
	).Scan(&s.ID, &s.StartedAt)
}

// GetByExamAndStudent retrieves the session for a (exam, student) pair.
func (r *ExamSessionRepository) GetByExamAndStudent(ctx context.Context, examID uuid.UUID, studentID int) (*model.ExamSession, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM exam_sessions
		 WHERE exam_id = $1 AND student_id = $2`, examID, studentID)
	return scanSession(row)
}

// GetByID retrieves a session by its UUID.
func (r *ExamSessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.ExamSession, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM exam_sessions WHERE id = $1`, id)
	return scanSession(row)
}

// CompleteIfInProgress records the graded submission with a compare-and-update
// on status. Under concurrent submits exactly one caller wins; the loser gets
// pgx.ErrNoRows and must report no active session.
func (r *ExamSessionRepository) CompleteIfInProgress(ctx context.Context, id uuid.UUID, answers model.AnswerSheet, score float64, correctCount int, submittedAt time.Time) error {
	answersJSON, err := json.Marshal(answers)
	if err != nil {
		return fmt.Errorf("marshal answers: %w", err)
	}

	var updated uuid.UUID
	return r.pool.QueryRow(ctx,
		`UPDATE exam_sessions
		 SET status = $1, answers = $2, score = $3, correct_count = $4, submitted_at = $5
		 WHERE id = $6 AND status = $7
		 RETURNING id`,
		model.SessionStatusCompleted, answersJSON, score, correctCount, submittedAt,
		id, model.SessionStatusInProgress,
	).Scan(&updated)
}

// MarkTimedOut transitions an in-progress session to TIMED_OUT. Terminal
// like COMPLETED but carries no score.
func (r *ExamSessionRepository) MarkTimedOut(ctx context.Context, id uuid.UUID) error {
	var updated uuid.UUID
	return r.pool.QueryRow(ctx,
		`UPDATE exam_sessions SET status = $1, submitted_at = NOW()
		 WHERE id = $2 AND status = $3
		 RETURNING id`,
		model.SessionStatusTimedOut, id, model.SessionStatusInProgress,
	).Scan(&updated)
}

// Delete removes a session. Only used as the compensating action when a
// start fails after creation but before content reached the student.
func (r *ExamSessionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM exam_sessions WHERE id = $1`, id)
	return err
}

// ListByStudent retrieves all sessions for a student, newest first.
func (r *ExamSessionRepository) ListByStudent(ctx context.Context, studentID int) ([]model.ExamSession, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+sessionColumns+` FROM exam_sessions
		 WHERE student_id = $1 ORDER BY started_at DESC`, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []model.ExamSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

// ListResultsByExam retrieves per-student results for an exam, joined with
// student contact data.
func (r *ExamSessionRepository) ListResultsByExam(ctx context.Context, examID uuid.UUID) ([]SessionResult, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT s.id, s.student_id, u.name, u.email, s.status,
		        s.score, s.correct_count, s.total_questions, s.submitted_at
		 FROM exam_sessions s
		 JOIN users u ON s.student_id = u.id
		 WHERE s.exam_id = $1
		 ORDER BY s.submitted_at DESC NULLS LAST`, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []SessionResult
	for rows.Next() {
		var sr SessionResult
		if err := rows.Scan(
			&sr.SessionID, &sr.StudentID, &sr.StudentName, &sr.StudentEmail,
			&sr.Status, &sr.Score, &sr.CorrectCount, &sr.TotalQuestions, &sr.SubmittedAt,
		); err != nil {
			return nil, err
		}
		results = append(results, sr)
	}
	return results, rows.Err()
}

// SweepExpired transitions every in-progress session past its deadline to
// TIMED_OUT and returns the affected sessions for monitor events. Exams
// without an explicit time limit fall back to defaultMinutes.
func (r *ExamSessionRepository) SweepExpired(ctx context.Context, defaultMinutes int) ([]model.ExamSession, error) {
	rows, err := r.pool.Query(ctx,
		`UPDATE exam_sessions s
		 SET status = $1, submitted_at = NOW()
		 FROM exams e
		 WHERE s.exam_id = e.id
		   AND s.status = $2
		   AND s.started_at + make_interval(
		         mins => CASE WHEN e.time_limit_minutes > 0
		                      THEN e.time_limit_minutes ELSE $3 END) < NOW()
		 RETURNING s.id, s.exam_id, s.student_id, s.status, s.started_at,
		           s.submitted_at, s.answers, s.score, s.correct_count, s.total_questions`,
		model.SessionStatusTimedOut, model.SessionStatusInProgress, defaultMinutes)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var expired []model.ExamSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		expired = append(expired, *s)
	}
	return expired, rows.Err()
}

func scanSession(row pgx.Row) (*model.ExamSession, error) {
	s := &model.ExamSession{}
	var answersJSON []byte

	err := row.Scan(
		&s.ID, &s.ExamID, &s.StudentID, &s.Status, &s.StartedAt,
		&s.SubmittedAt, &answersJSON, &s.Score, &s.CorrectCount, &s.TotalQuestions,
	)
	if err != nil {
		return nil, err
	}

	if len(answersJSON) > 0 {
		if err := json.Unmarshal(answersJSON, &s.Answers); err != nil {
			return nil, fmt.Errorf("unmarshal answers: %w", err)
		}
	}
	return s, nil
}
