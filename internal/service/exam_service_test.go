package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/cryptexam/cryptexam-backend/internal/contentstore"
	"github.com/cryptexam/cryptexam-backend/internal/crypt"
	"github.com/cryptexam/cryptexam-backend/internal/model"
	"github.com/cryptexam/cryptexam-backend/internal/vault"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newExamFixture(t *testing.T) (*ExamService, *fakeExamStore, *contentstore.MemoryStore, *fakeQueue) {
	t.Helper()
	store := contentstore.NewMemoryStore()
	v := vault.New(store, zerolog.Nop())
	exams := newFakeExamStore()
	queue := &fakeQueue{}
	return NewExamService(exams, v, queue, zerolog.Nop()), exams, store, queue
}

func submitRequest() *model.SubmitExamRequest {
	return &model.SubmitExamRequest{
		Title:            "Chemistry Midterm",
		Description:      "Covers chapters 1 through 4",
		TimeLimitMinutes: 45,
		Questions: []model.QuestionRequest{
			{
				Text:         "Symbol for gold?",
				Options:      []string{"Au", "Ag", "Gd"},
				Kind:         "single",
				CorrectIndex: 0,
			},
			{
				Text:            "Which are noble gases?",
				Options:         []string{"He", "O", "Ne", "N"},
				Kind:            "multiple",
				CorrectIndexSet: []int{0, 2},
			},
		},
	}
}

func TestSubmitContentEncryptsAtRest(t *testing.T) {
	svc, exams, _, _ := newExamFixture(t)
	ctx := context.Background()

	exam, err := svc.SubmitContent(ctx, 1, submitRequest())
	require.NoError(t, err)
	assert.Equal(t, model.ExamStatusPending, exam.Status)
	assert.Equal(t, 2, exam.TotalQuestions)
	assert.Empty(t, exam.Locator)

	stored, err := exams.GetByID(ctx, exam.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.StorageBlob)

	// The persisted ciphertext must not contain the plaintext, and must
	// decrypt with the storage key to content carrying the answer keys.
	assert.NotContains(t, string(stored.StorageBlob.Ciphertext), "Au")

	plaintext, err := crypt.Decrypt(stored.StorageBlob, stored.StorageKey)
	require.NoError(t, err)
	var content model.ExamContent
	require.NoError(t, json.Unmarshal(plaintext, &content))
	assert.Equal(t, exam.ID, content.ExamID)
	require.Len(t, content.Questions, 2)
	assert.Equal(t, 0, content.Questions[0].Answer.CorrectIndex)
}

func TestSubmitContentRejectsInvalid(t *testing.T) {
	svc, _, _, _ := newExamFixture(t)

	req := submitRequest()
	req.Questions[0].CorrectIndex = 9 // out of range

	_, err := svc.SubmitContent(context.Background(), 1, req)
	assert.ErrorIs(t, err, vault.ErrValidation)
}

func TestReviewApprovePublishes(t *testing.T) {
	svc, exams, store, queue := newExamFixture(t)
	ctx := context.Background()

	exam, err := svc.SubmitContent(ctx, 1, submitRequest())
	require.NoError(t, err)

	institute := &model.User{ID: 1, Name: "Springfield High", Email: "admin@springfield.edu"}
	reviewed, err := svc.Review(ctx, exam.ID, 42, &model.ReviewExamRequest{Status: "APPROVED"}, institute)
	require.NoError(t, err)
	assert.Equal(t, model.ExamStatusPublished, reviewed.Status)
	require.NotEmpty(t, reviewed.Locator)

	// The published copy decrypts with the distribution key only.
	raw, err := store.Get(ctx, reviewed.Locator)
	require.NoError(t, err)
	var blob crypt.EncryptedBlob
	require.NoError(t, json.Unmarshal(raw, &blob))

	_, err = crypt.Decrypt(&blob, reviewed.DistributionKey)
	assert.NoError(t, err)
	_, err = crypt.Decrypt(&blob, exam.StorageKey)
	assert.ErrorIs(t, err, crypt.ErrDecryption)

	stored, err := exams.GetByID(ctx, exam.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ExamStatusPublished, stored.Status)

	require.Len(t, queue.jobs, 1)
	assert.Equal(t, NotifyKindReview, queue.jobs[0].Kind)
	assert.True(t, queue.jobs[0].Approved)
	assert.Equal(t, institute.Email, queue.jobs[0].Recipient)
}

func TestReviewReject(t *testing.T) {
	svc, exams, _, queue := newExamFixture(t)
	ctx := context.Background()

	exam, err := svc.SubmitContent(ctx, 1, submitRequest())
	require.NoError(t, err)

	institute := &model.User{ID: 1, Name: "Springfield High", Email: "admin@springfield.edu"}
	req := &model.ReviewExamRequest{Status: "REJECTED", Comment: "Question 2 is ambiguous"}
	reviewed, err := svc.Review(ctx, exam.ID, 42, req, institute)
	require.NoError(t, err)
	assert.Equal(t, model.ExamStatusRejected, reviewed.Status)

	stored, err := exams.GetByID(ctx, exam.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ExamStatusRejected, stored.Status)
	assert.Empty(t, stored.Locator)

	require.Len(t, queue.jobs, 1)
	assert.False(t, queue.jobs[0].Approved)
	assert.Equal(t, "Question 2 is ambiguous", queue.jobs[0].Comment)
}

func TestReviewTwiceFails(t *testing.T) {
	svc, _, _, _ := newExamFixture(t)
	ctx := context.Background()

	exam, err := svc.SubmitContent(ctx, 1, submitRequest())
	require.NoError(t, err)

	institute := &model.User{ID: 1, Email: "admin@springfield.edu"}
	_, err = svc.Review(ctx, exam.ID, 42, &model.ReviewExamRequest{Status: "REJECTED"}, institute)
	require.NoError(t, err)

	_, err = svc.Review(ctx, exam.ID, 42, &model.ReviewExamRequest{Status: "APPROVED"}, institute)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestPublishFailsLoudlyOnKeyMismatch(t *testing.T) {
	svc, exams, _, _ := newExamFixture(t)
	ctx := context.Background()

	exam, err := svc.SubmitContent(ctx, 1, submitRequest())
	require.NoError(t, err)

	// Corrupt the stored key so the blob can no longer be opened.
	wrongKey, err := crypt.GenerateKey()
	require.NoError(t, err)
	stored, err := exams.GetByID(ctx, exam.ID)
	require.NoError(t, err)
	stored.StorageKey = wrongKey
	exams.put(stored)

	institute := &model.User{ID: 1, Email: "admin@springfield.edu"}
	_, err = svc.Review(ctx, exam.ID, 42, &model.ReviewExamRequest{Status: "APPROVED"}, institute)
	require.Error(t, err)
	assert.ErrorIs(t, err, vault.ErrPublication)
	assert.ErrorIs(t, err, crypt.ErrDecryption)

	// Never silently repaired: the exam sits in APPROVED with no locator
	// until an operator resolves the mismatch and retries.
	after, err := exams.GetByID(ctx, exam.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ExamStatusApproved, after.Status)
	assert.Empty(t, after.Locator)
}
