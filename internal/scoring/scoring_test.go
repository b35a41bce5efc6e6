package scoring

import (
	"encoding/json"
	"testing"

	"github.com/cryptexam/cryptexam-backend/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func singleQ(correct int) model.Question {
	return model.Question{
		Text:    "q",
		Options: []string{"a", "b", "c", "d"},
		Answer:  model.AnswerSpec{Kind: model.AnswerKindSingle, CorrectIndex: correct},
	}
}

func multiQ(correct ...int) model.Question {
	return model.Question{
		Text:    "q",
		Options: []string{"a", "b", "c", "d"},
		Answer:  model.AnswerSpec{Kind: model.AnswerKindMultiple, CorrectIndexSet: correct},
	}
}

func answer(indices ...int) model.AnswerValue {
	return model.AnswerValue{Indices: indices}
}

func TestScoreSingleChoice(t *testing.T) {
	content := &model.ExamContent{Questions: []model.Question{singleQ(2)}}

	got := Score(content, model.AnswerSheet{0: answer(2)})
	assert.Equal(t, 1, got.CorrectCount)
	assert.Equal(t, 100.0, got.Score)

	got = Score(content, model.AnswerSheet{0: answer(1)})
	assert.Equal(t, 0, got.CorrectCount)
	assert.Equal(t, 0.0, got.Score)
}

func TestScoreMultipleChoiceSetEquality(t *testing.T) {
	content := &model.ExamContent{Questions: []model.Question{multiQ(0, 2)}}

	cases := []struct {
		name      string
		submitted model.AnswerValue
		correct   bool
	}{
		{"exact order", answer(0, 2), true},
		{"reversed order", answer(2, 0), true},
		{"subset gets no partial credit", answer(0), false},
		{"superset", answer(0, 1, 2), false},
		{"disjoint", answer(1, 3), false},
		{"duplicates collapse", answer(0, 2, 2), true},
		{"empty", answer(), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Score(content, model.AnswerSheet{0: tc.submitted})
			assert.Equal(t, tc.correct, got.PerQuestion[0].Correct)
		})
	}
}

func TestScoreDenominatorIsExamQuestionCount(t *testing.T) {
	questions := make([]model.Question, 10)
	for i := range questions {
		questions[i] = singleQ(0)
	}
	content := &model.ExamContent{Questions: questions}

	// 6 answered, all correct; 4 unanswered.
	answers := model.AnswerSheet{}
	for i := 0; i < 6; i++ {
		answers[i] = answer(0)
	}

	got := Score(content, answers)
	assert.Equal(t, 10, got.TotalQuestions)
	assert.Equal(t, 6, got.CorrectCount)
	assert.Equal(t, 60.0, got.Score)

	unansweredSeen := 0
	for _, qr := range got.PerQuestion {
		if !qr.Answered {
			unansweredSeen++
			assert.False(t, qr.Correct)
		}
	}
	assert.Equal(t, 4, unansweredSeen)
}

func TestScoreRoundsToTwoDecimals(t *testing.T) {
	content := &model.ExamContent{Questions: []model.Question{singleQ(0), singleQ(0), singleQ(0)}}
	got := Score(content, model.AnswerSheet{0: answer(0)})
	assert.Equal(t, 33.33, got.Score)
}

func TestScoreSingleChoiceRejectsMultiIndexAnswer(t *testing.T) {
	content := &model.ExamContent{Questions: []model.Question{singleQ(2)}}
	got := Score(content, model.AnswerSheet{0: answer(2, 3)})
	assert.False(t, got.PerQuestion[0].Correct)
}

func TestAnswerSheetUnmarshalAcceptsScalarAndArray(t *testing.T) {
	var sheet model.AnswerSheet
	require.NoError(t, json.Unmarshal([]byte(`{"0": 2, "1": [0, 2]}`), &sheet))

	assert.Equal(t, []int{2}, sheet[0].Indices)
	assert.Equal(t, []int{0, 2}, sheet[1].Indices)

	assert.Error(t, json.Unmarshal([]byte(`{"0": "b"}`), &sheet))
}
