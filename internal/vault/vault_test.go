package vault

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/cryptexam/cryptexam-backend/internal/contentstore"
	"github.com/cryptexam/cryptexam-backend/internal/crypt"
	"github.com/cryptexam/cryptexam-backend/internal/model"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleContent() *model.ExamContent {
	return &model.ExamContent{
		ExamID: uuid.New(),
		Title:  "Physics Midterm",
		Questions: []model.Question{
			{
				Text:    "Unit of force?",
				Options: []string{"Joule", "Newton", "Watt", "Pascal"},
				Answer:  model.AnswerSpec{Kind: model.AnswerKindSingle, CorrectIndex: 1},
			},
			{
				Text:    "Which are vector quantities?",
				Options: []string{"Velocity", "Mass", "Displacement", "Temperature"},
				Answer:  model.AnswerSpec{Kind: model.AnswerKindMultiple, CorrectIndexSet: []int{0, 2}},
			},
		},
	}
}

func newTestVault() (*ContentVault, *contentstore.MemoryStore) {
	store := contentstore.NewMemoryStore()
	return New(store, zerolog.Nop()), store
}

func TestSubmitPublishFetchRoundTrip(t *testing.T) {
	ctx := context.Background()
	v, _ := newTestVault()
	content := sampleContent()

	sub, err := v.Submit(content)
	require.NoError(t, err)
	require.NotNil(t, sub.Blob)
	require.Len(t, sub.Key, crypt.KeySize)

	pub, err := v.Publish(ctx, sub.Blob, sub.Key)
	require.NoError(t, err)
	assert.True(t, pub.Published)
	assert.NotEmpty(t, pub.Locator)
	assert.Equal(t, content.ExamID, pub.ExamID)

	fetched, err := v.FetchForExam(ctx, pub)
	require.NoError(t, err)
	assert.Equal(t, content.Title, fetched.Title)
	require.Len(t, fetched.Questions, 2)
	assert.Equal(t, content.Questions[0].Answer, fetched.Questions[0].Answer)
}

func TestPublishGeneratesIndependentDistributionKey(t *testing.T) {
	ctx := context.Background()
	v, _ := newTestVault()

	sub, err := v.Submit(sampleContent())
	require.NoError(t, err)

	pub, err := v.Publish(ctx, sub.Blob, sub.Key)
	require.NoError(t, err)

	assert.NotEqual(t, sub.Key, pub.DistributionKey)

	// The published ciphertext must not open under the storage key.
	badPub := *pub
	badPub.DistributionKey = sub.Key
	_, err = v.FetchForExam(ctx, &badPub)
	assert.ErrorIs(t, err, crypt.ErrDecryption)
}

func TestPublishFailsLoudlyOnKeyMismatch(t *testing.T) {
	ctx := context.Background()
	v, _ := newTestVault()

	sub, err := v.Submit(sampleContent())
	require.NoError(t, err)

	wrongKey, err := crypt.GenerateKey()
	require.NoError(t, err)

	pub, err := v.Publish(ctx, sub.Blob, wrongKey)
	assert.Nil(t, pub)
	assert.ErrorIs(t, err, ErrPublication)
	assert.ErrorIs(t, err, crypt.ErrDecryption)
}

func TestFetchForExamIntegrityCheck(t *testing.T) {
	ctx := context.Background()
	v, store := newTestVault()

	// A blob that decrypts fine but is not exam content.
	distKey, err := crypt.GenerateKey()
	require.NoError(t, err)
	blob, err := crypt.Encrypt([]byte(`{"not":"an exam"}`), distKey)
	require.NoError(t, err)
	blobJSON, err := json.Marshal(blob)
	require.NoError(t, err)
	locator, err := store.Put(ctx, blobJSON)
	require.NoError(t, err)

	_, err = v.FetchForExam(ctx, &model.ExamPublication{
		Locator:         locator,
		DistributionKey: distKey,
	})
	assert.ErrorIs(t, err, ErrContentIntegrity)
}

func TestFetchForExamRejectsQuestionsWithoutOptions(t *testing.T) {
	ctx := context.Background()
	v, store := newTestVault()

	distKey, err := crypt.GenerateKey()
	require.NoError(t, err)
	payload := []byte(`{"exam_id":"` + uuid.NewString() + `","title":"x","questions":[{"text":"q"}]}`)
	blob, err := crypt.Encrypt(payload, distKey)
	require.NoError(t, err)
	blobJSON, err := json.Marshal(blob)
	require.NoError(t, err)
	locator, err := store.Put(ctx, blobJSON)
	require.NoError(t, err)

	_, err = v.FetchForExam(ctx, &model.ExamPublication{Locator: locator, DistributionKey: distKey})
	assert.ErrorIs(t, err, ErrContentIntegrity)
}

func TestSubmitValidation(t *testing.T) {
	v, _ := newTestVault()

	cases := []struct {
		name   string
		mutate func(*model.ExamContent)
	}{
		{"no questions", func(c *model.ExamContent) { c.Questions = nil }},
		{"one option", func(c *model.ExamContent) { c.Questions[0].Options = []string{"only"} }},
		{"single index out of range", func(c *model.ExamContent) { c.Questions[0].Answer.CorrectIndex = 9 }},
		{"negative single index", func(c *model.ExamContent) { c.Questions[0].Answer.CorrectIndex = -1 }},
		{"empty multiple set", func(c *model.ExamContent) { c.Questions[1].Answer.CorrectIndexSet = nil }},
		{"multiple index out of range", func(c *model.ExamContent) { c.Questions[1].Answer.CorrectIndexSet = []int{0, 7} }},
		{"unknown answer kind", func(c *model.ExamContent) { c.Questions[0].Answer.Kind = "essay" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			content := sampleContent()
			tc.mutate(content)
			_, err := v.Submit(content)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestSanitizeStripsAnswerKeys(t *testing.T) {
	v, _ := newTestVault()
	content := sampleContent()

	view := v.Sanitize(content)
	require.Len(t, view.Questions, 2)

	raw, err := json.Marshal(view)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "correct_index")
	assert.NotContains(t, string(raw), "answer")
	assert.Equal(t, content.Questions[0].Options, view.Questions[0].Options)
}

func TestContentAddressedLocatorChangesWithContent(t *testing.T) {
	ctx := context.Background()
	v, _ := newTestVault()

	sub, err := v.Submit(sampleContent())
	require.NoError(t, err)

	pub1, err := v.Publish(ctx, sub.Blob, sub.Key)
	require.NoError(t, err)
	pub2, err := v.Publish(ctx, sub.Blob, sub.Key)
	require.NoError(t, err)

	// Fresh distribution key each publish, so the ciphertext and therefore
	// the locator differ even for identical plaintext.
	assert.NotEqual(t, pub1.Locator, pub2.Locator)
	assert.NotEqual(t, pub1.DistributionKey, pub2.DistributionKey)
}
