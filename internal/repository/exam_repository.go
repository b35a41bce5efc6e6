package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cryptexam/cryptexam-backend/internal/crypt"
	"github.com/cryptexam/cryptexam-backend/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrStaleStatus is returned when a lifecycle update lost to a concurrent
// transition (the row was not in the expected source state).
var ErrStaleStatus = pgx.ErrNoRows

const examColumns = `id, institute_id, title, description, time_limit_minutes,
	total_questions, status, storage_blob, storage_key, locator,
	distribution_key, reviewed_by, review_comment, reviewed_at,
	created_at, updated_at`

// ExamRepository handles exam record data access. Key material is persisted
// hex-encoded, the at-rest ciphertext as a jsonb blob.
type ExamRepository struct {
	pool *pgxpool.Pool
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(pool *pgxpool.Pool) *ExamRepository {
	return &ExamRepository{pool: pool}
}

// Create inserts a freshly submitted exam in PENDING state. The caller
// assigns the ID up front because the encrypted content embeds it.
func (r *ExamRepository) Create(ctx context.Context, e *model.Exam) error {
	blobJSON, err := json.Marshal(e.StorageBlob)
	if err != nil {
		return fmt.Errorf("marshal storage blob: %w", err)
	}

	return r.pool.QueryRow(ctx,
		`INSERT INTO exams (id, institute_id, title, description, time_limit_minutes,
		                    total_questions, status, storage_blob, storage_key)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING created_at, updated_at`,
		e.ID, e.InstituteID, e.Title, e.Description, e.TimeLimitMinutes,
		e.TotalQuestions, model.ExamStatusPending, blobJSON, e.StorageKey.Hex(),
	).Scan(&e.CreatedAt, &e.UpdatedAt)
}

// GetByID retrieves an exam by its UUID.
func (r *ExamRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+examColumns+` FROM exams WHERE id = $1`, id)
	return scanExam(row)
}

// ListByInstitute retrieves all exams submitted by an institute.
func (r *ExamRepository) ListByInstitute(ctx context.Context, instituteID int) ([]model.Exam, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+examColumns+` FROM exams
		 WHERE institute_id = $1 ORDER BY created_at DESC`, instituteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectExams(rows)
}

// ListByStatus retrieves exams in a given lifecycle state, newest first.
func (r *ExamRepository) ListByStatus(ctx context.Context, status model.ExamStatus) ([]model.Exam, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+examColumns+` FROM exams
		 WHERE status = $1 ORDER BY created_at DESC`, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectExams(rows)
}

// ListAvailableForStudent retrieves published exams the student has not
// attempted yet.
func (r *ExamRepository) ListAvailableForStudent(ctx context.Context, studentID int) ([]model.Exam, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+examColumns+` FROM exams e
		 WHERE e.status IN ($1, $2)
		   AND NOT EXISTS (
		     SELECT 1 FROM exam_sessions s
		     WHERE s.exam_id = e.id AND s.student_id = $3
		   )
		 ORDER BY e.created_at DESC`,
		model.ExamStatusPublished, model.ExamStatusReleased, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectExams(rows)
}

// SetReview records the reviewer's verdict. The status write is a
// compare-and-update from PENDING; a concurrent review loses with
// ErrStaleStatus.
func (r *ExamRepository) SetReview(ctx context.Context, id uuid.UUID, status model.ExamStatus, reviewerID int, comment string) error {
	var updated uuid.UUID
	return r.pool.QueryRow(ctx,
		`UPDATE exams
		 SET status = $1, reviewed_by = $2, review_comment = $3,
		     reviewed_at = NOW(), updated_at = NOW()
		 WHERE id = $4 AND status = $5
		 RETURNING id`,
		status, reviewerID, comment, id, model.ExamStatusPending,
	).Scan(&updated)
}

// SetPublication records the publication produced by the vault and moves the
// exam APPROVED → PUBLISHED. The locator is written exactly once.
func (r *ExamRepository) SetPublication(ctx context.Context, id uuid.UUID, pub *model.ExamPublication) error {
	var updated uuid.UUID
	return r.pool.QueryRow(ctx,
		`UPDATE exams
		 SET status = $1, locator = $2, distribution_key = $3, updated_at = NOW()
		 WHERE id = $4 AND status = $5 AND locator IS NULL
		 RETURNING id`,
		model.ExamStatusPublished, pub.Locator, pub.DistributionKey.Hex(),
		id, model.ExamStatusApproved,
	).Scan(&updated)
}

// SetReleased flips a published exam to RELEASED, making scores visible.
func (r *ExamRepository) SetReleased(ctx context.Context, id uuid.UUID) error {
	var updated uuid.UUID
	return r.pool.QueryRow(ctx,
		`UPDATE exams SET status = $1, updated_at = NOW()
		 WHERE id = $2 AND status = $3
		 RETURNING id`,
		model.ExamStatusReleased, id, model.ExamStatusPublished,
	).Scan(&updated)
}

// StatusCounts returns the number of exams per lifecycle state for the
// admin dashboard.
func (r *ExamRepository) StatusCounts(ctx context.Context) (map[model.ExamStatus]int, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT status, COUNT(*) FROM exams GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[model.ExamStatus]int)
	for rows.Next() {
		var status model.ExamStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func collectExams(rows pgx.Rows) ([]model.Exam, error) {
	var exams []model.Exam
	for rows.Next() {
		e, err := scanExam(rows)
		if err != nil {
			return nil, err
		}
		exams = append(exams, *e)
	}
	return exams, rows.Err()
}

func scanExam(row pgx.Row) (*model.Exam, error) {
	e := &model.Exam{}
	var (
		blobJSON   []byte
		storageHex *string
		locator    *string
		distHex    *string
		comment    *string
	)

	err := row.Scan(
		&e.ID, &e.InstituteID, &e.Title, &e.Description, &e.TimeLimitMinutes,
		&e.TotalQuestions, &e.Status, &blobJSON, &storageHex, &locator,
		&distHex, &e.ReviewedBy, &comment, &e.ReviewedAt,
		&e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(blobJSON) > 0 {
		blob := &crypt.EncryptedBlob{}
		if err := json.Unmarshal(blobJSON, blob); err != nil {
			return nil, fmt.Errorf("unmarshal storage blob: %w", err)
		}
		e.StorageBlob = blob
	}
	if storageHex != nil {
		if e.StorageKey, err = crypt.KeyFromHex(*storageHex); err != nil {
			return nil, fmt.Errorf("storage key: %w", err)
		}
	}
	if locator != nil {
		e.Locator = *locator
	}
	if distHex != nil {
		if e.DistributionKey, err = crypt.KeyFromHex(*distHex); err != nil {
			return nil, fmt.Errorf("distribution key: %w", err)
		}
	}
	if comment != nil {
		e.ReviewComment = *comment
	}
	return e, nil
}
