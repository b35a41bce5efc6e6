package service

import (
	"context"
	"testing"

	"github.com/cryptexam/cryptexam-backend/internal/model"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newReleaseFixture(t *testing.T) (*ReleaseService, *ExamSessionService, *fakeExamStore, *fakeSessionStore, *fakeQueue, *model.Exam) {
	t.Helper()
	exam, v := publishedExam(t)
	exams := newFakeExamStore()
	exams.put(exam)
	sessions := newFakeSessionStore()
	queue := &fakeQueue{}

	release := NewReleaseService(exams, sessions, queue, zerolog.Nop())
	attempts := newSessionService(exams, sessions, v, nil)
	return release, attempts, exams, sessions, queue, exam
}

func completeAttempt(t *testing.T, attempts *ExamSessionService, examID uuid.UUID, studentID int) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	start, err := attempts.StartAttempt(ctx, examID, studentID)
	require.NoError(t, err)
	_, err = attempts.SubmitAttempt(ctx, start.Session.ID, studentID, model.AnswerSheet{0: {Indices: []int{1}}})
	require.NoError(t, err)
	return start.Session.ID
}

func TestScoresHiddenUntilRelease(t *testing.T) {
	release, attempts, _, _, _, exam := newReleaseFixture(t)
	ctx := context.Background()

	sessionID := completeAttempt(t, attempts, exam.ID, 7)

	before, err := release.GetMyResult(ctx, sessionID, 7)
	require.NoError(t, err)
	assert.False(t, before.ResultsReleased)
	assert.Nil(t, before.Score)
	assert.Nil(t, before.CorrectCount)
	assert.Equal(t, model.SessionStatusCompleted, before.Status)

	_, err = release.ReleaseResults(ctx, exam.ID, exam.InstituteID)
	require.NoError(t, err)

	after, err := release.GetMyResult(ctx, sessionID, 7)
	require.NoError(t, err)
	assert.True(t, after.ResultsReleased)
	require.NotNil(t, after.Score)
	assert.Equal(t, 50.0, *after.Score)
}

func TestReleaseQueuesNotificationsForCompletedOnly(t *testing.T) {
	release, attempts, _, sessions, queue, exam := newReleaseFixture(t)
	ctx := context.Background()

	completeAttempt(t, attempts, exam.ID, 7)
	completeAttempt(t, attempts, exam.ID, 8)

	// Student 9 runs out of time and never submits.
	start, err := attempts.StartAttempt(ctx, exam.ID, 9)
	require.NoError(t, err)
	require.NoError(t, sessions.MarkTimedOut(ctx, start.Session.ID))

	queued, err := release.ReleaseResults(ctx, exam.ID, exam.InstituteID)
	require.NoError(t, err)
	assert.Equal(t, 2, queued)
	require.Len(t, queue.jobs, 2)
	for _, job := range queue.jobs {
		assert.Equal(t, NotifyKindResult, job.Kind)
		assert.Equal(t, exam.Title, job.ExamTitle)
		assert.Equal(t, 50.0, job.Score)
	}
}

func TestReleaseTwiceFails(t *testing.T) {
	release, attempts, _, _, _, exam := newReleaseFixture(t)
	ctx := context.Background()

	completeAttempt(t, attempts, exam.ID, 7)

	_, err := release.ReleaseResults(ctx, exam.ID, exam.InstituteID)
	require.NoError(t, err)

	_, err = release.ReleaseResults(ctx, exam.ID, exam.InstituteID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestReleaseForeignExamDenied(t *testing.T) {
	release, _, _, _, queue, exam := newReleaseFixture(t)

	_, err := release.ReleaseResults(context.Background(), exam.ID, exam.InstituteID+1)
	assert.ErrorIs(t, err, ErrExamNotFound)
	assert.Empty(t, queue.jobs)
}

func TestGetMyResultForeignSessionDenied(t *testing.T) {
	release, attempts, _, _, _, exam := newReleaseFixture(t)

	sessionID := completeAttempt(t, attempts, exam.ID, 7)

	_, err := release.GetMyResult(context.Background(), sessionID, 99)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestListMyResultsGatedPerExam(t *testing.T) {
	release, attempts, exams, sessions, _, exam := newReleaseFixture(t)
	ctx := context.Background()

	// A second released exam alongside the unreleased one.
	other, v2 := publishedExam(t)
	exams.put(other)
	attempts2 := newSessionService(exams, sessions, v2, nil)

	completeAttempt(t, attempts, exam.ID, 7)
	completeAttempt(t, attempts2, other.ID, 7)

	_, err := release.ReleaseResults(ctx, other.ID, other.InstituteID)
	require.NoError(t, err)

	results, err := release.ListMyResults(ctx, 7)
	require.NoError(t, err)
	require.Len(t, results, 2)

	for _, res := range results {
		if res.ExamID == other.ID {
			assert.True(t, res.ResultsReleased)
			assert.NotNil(t, res.Score)
		} else {
			assert.False(t, res.ResultsReleased)
			assert.Nil(t, res.Score)
		}
	}
}
