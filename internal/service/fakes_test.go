package service

import (
	"context"
	"sync"
	"time"

	"github.com/cryptexam/cryptexam-backend/internal/model"
	"github.com/cryptexam/cryptexam-backend/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// fakeExamStore is an in-memory ExamStore with the same compare-and-update
// semantics as the real repository.
type fakeExamStore struct {
	mu    sync.Mutex
	exams map[uuid.UUID]*model.Exam
}

func newFakeExamStore() *fakeExamStore {
	return &fakeExamStore{exams: make(map[uuid.UUID]*model.Exam)}
}

func (f *fakeExamStore) put(e *model.Exam) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *e
	f.exams[e.ID] = &cp
}

func (f *fakeExamStore) Create(_ context.Context, e *model.Exam) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e.CreatedAt = time.Now()
	e.UpdatedAt = e.CreatedAt
	cp := *e
	f.exams[e.ID] = &cp
	return nil
}

func (f *fakeExamStore) GetByID(_ context.Context, id uuid.UUID) (*model.Exam, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.exams[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *e
	return &cp, nil
}

func (f *fakeExamStore) ListByInstitute(_ context.Context, instituteID int) ([]model.Exam, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Exam
	for _, e := range f.exams {
		if e.InstituteID == instituteID {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (f *fakeExamStore) ListByStatus(_ context.Context, status model.ExamStatus) ([]model.Exam, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Exam
	for _, e := range f.exams {
		if e.Status == status {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (f *fakeExamStore) ListAvailableForStudent(_ context.Context, _ int) ([]model.Exam, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Exam
	for _, e := range f.exams {
		if e.Status.Attemptable() {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (f *fakeExamStore) SetReview(_ context.Context, id uuid.UUID, status model.ExamStatus, reviewerID int, comment string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.exams[id]
	if !ok || e.Status != model.ExamStatusPending {
		return repository.ErrStaleStatus
	}
	now := time.Now()
	e.Status = status
	e.ReviewedBy = &reviewerID
	e.ReviewComment = comment
	e.ReviewedAt = &now
	return nil
}

func (f *fakeExamStore) SetPublication(_ context.Context, id uuid.UUID, pub *model.ExamPublication) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.exams[id]
	if !ok || e.Status != model.ExamStatusApproved || e.Locator != "" {
		return repository.ErrStaleStatus
	}
	e.Status = model.ExamStatusPublished
	e.Locator = pub.Locator
	e.DistributionKey = pub.DistributionKey
	return nil
}

func (f *fakeExamStore) SetReleased(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.exams[id]
	if !ok || e.Status != model.ExamStatusPublished {
		return repository.ErrStaleStatus
	}
	e.Status = model.ExamStatusReleased
	return nil
}

func (f *fakeExamStore) StatusCounts(_ context.Context) (map[model.ExamStatus]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := make(map[model.ExamStatus]int)
	for _, e := range f.exams {
		counts[e.Status]++
	}
	return counts, nil
}

type sessionKey struct {
	examID    uuid.UUID
	studentID int
}

// fakeSessionStore is an in-memory SessionStore enforcing the unique
// (exam, student) constraint and compare-and-update transitions.
type fakeSessionStore struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*model.ExamSession
	byPair   map[sessionKey]uuid.UUID

	// hidePairOnce makes the next GetByExamAndStudent miss, emulating the
	// window where a concurrent insert committed but was not yet visible.
	hidePairOnce bool
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{
		sessions: make(map[uuid.UUID]*model.ExamSession),
		byPair:   make(map[sessionKey]uuid.UUID),
	}
}

func (f *fakeSessionStore) Create(_ context.Context, s *model.ExamSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := sessionKey{s.ExamID, s.StudentID}
	if _, exists := f.byPair[key]; exists {
		return pgx.ErrNoRows
	}
	s.ID = uuid.New()
	s.Status = model.SessionStatusInProgress
	s.StartedAt = time.Now()
	cp := *s
	f.sessions[s.ID] = &cp
	f.byPair[key] = s.ID
	return nil
}

func (f *fakeSessionStore) GetByExamAndStudent(_ context.Context, examID uuid.UUID, studentID int) (*model.ExamSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.hidePairOnce {
		f.hidePairOnce = false
		return nil, pgx.ErrNoRows
	}
	id, ok := f.byPair[sessionKey{examID, studentID}]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *f.sessions[id]
	return &cp, nil
}

func (f *fakeSessionStore) GetByID(_ context.Context, id uuid.UUID) (*model.ExamSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *s
	return &cp, nil
}

func (f *fakeSessionStore) CompleteIfInProgress(_ context.Context, id uuid.UUID, answers model.AnswerSheet, score float64, correctCount int, submittedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok || s.Status != model.SessionStatusInProgress {
		return pgx.ErrNoRows
	}
	s.Status = model.SessionStatusCompleted
	s.Answers = answers
	s.Score = &score
	s.CorrectCount = &correctCount
	s.SubmittedAt = &submittedAt
	return nil
}

func (f *fakeSessionStore) MarkTimedOut(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok || s.Status != model.SessionStatusInProgress {
		return pgx.ErrNoRows
	}
	now := time.Now()
	s.Status = model.SessionStatusTimedOut
	s.SubmittedAt = &now
	return nil
}

func (f *fakeSessionStore) Delete(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return nil
	}
	delete(f.byPair, sessionKey{s.ExamID, s.StudentID})
	delete(f.sessions, id)
	return nil
}

func (f *fakeSessionStore) ListByStudent(_ context.Context, studentID int) ([]model.ExamSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.ExamSession
	for _, s := range f.sessions {
		if s.StudentID == studentID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (f *fakeSessionStore) ListResultsByExam(_ context.Context, examID uuid.UUID) ([]repository.SessionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []repository.SessionResult
	for _, s := range f.sessions {
		if s.ExamID != examID {
			continue
		}
		out = append(out, repository.SessionResult{
			SessionID:      s.ID,
			StudentID:      s.StudentID,
			StudentName:    "Student",
			StudentEmail:   "student@example.com",
			Status:         s.Status,
			Score:          s.Score,
			CorrectCount:   s.CorrectCount,
			TotalQuestions: s.TotalQuestions,
			SubmittedAt:    s.SubmittedAt,
		})
	}
	return out, nil
}

func (f *fakeSessionStore) SweepExpired(_ context.Context, _ int) ([]model.ExamSession, error) {
	return nil, nil
}

// setStartedAt rewinds a session's clock for deadline tests.
func (f *fakeSessionStore) setStartedAt(id uuid.UUID, t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.sessions[id]; ok {
		s.StartedAt = t
	}
}

func (f *fakeSessionStore) status(id uuid.UUID) model.SessionStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.sessions[id]; ok {
		return s.Status
	}
	return ""
}

// failingFetcher simulates a distribution store outage or a key mismatch.
type failingFetcher struct {
	inner ContentFetcher
	err   error
}

func (f *failingFetcher) FetchForExam(ctx context.Context, pub *model.ExamPublication) (*model.ExamContent, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.inner.FetchForExam(ctx, pub)
}

func (f *failingFetcher) Sanitize(content *model.ExamContent) *model.StudentExamView {
	return f.inner.Sanitize(content)
}

// fakeQueue records enqueued notification jobs.
type fakeQueue struct {
	mu   sync.Mutex
	jobs []NotifyJob
}

func (q *fakeQueue) Enqueue(_ context.Context, job *NotifyJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, *job)
	return nil
}

// fakeSink records published attempt events.
type fakeSink struct {
	mu     sync.Mutex
	events []AttemptEvent
}

func (s *fakeSink) PublishAttemptEvent(_ context.Context, ev AttemptEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *fakeSink) byType(eventType string) []AttemptEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []AttemptEvent
	for _, ev := range s.events {
		if ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out
}
