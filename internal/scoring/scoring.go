// Package scoring grades submitted answer sheets against decrypted exam
// content. It is pure: no I/O, no state, same inputs same result.
package scoring

import (
	"math"

	"github.com/cryptexam/cryptexam-backend/internal/model"
)

// QuestionResult is the per-question grading outcome.
type QuestionResult struct {
	Index    int  `json:"index"`
	Answered bool `json:"answered"`
	Correct  bool `json:"correct"`
}

// Result is the outcome of grading one attempt.
type Result struct {
	Score          float64          `json:"score"`
	CorrectCount   int              `json:"correct_count"`
	TotalQuestions int              `json:"total_questions"`
	PerQuestion    []QuestionResult `json:"per_question"`
}

// Score grades answers against content. TotalQuestions always comes from the
// exam content, never from the number of submitted answers, so answering
// fewer questions cannot shrink the denominator. Unanswered questions count
// as incorrect.
//
// The caller guarantees content passed vault validation, so the question
// list is non-empty and division by zero cannot occur here.
func Score(content *model.ExamContent, answers model.AnswerSheet) Result {
	total := len(content.Questions)
	perQuestion := make([]QuestionResult, total)
	correct := 0

	for i, q := range content.Questions {
		answer, answered := answers[i]
		qr := QuestionResult{Index: i, Answered: answered}
		if answered {
			qr.Correct = grade(q.Answer, answer)
		}
		if qr.Correct {
			correct++
		}
		perQuestion[i] = qr
	}

	return Result{
		Score:          round2(float64(correct) / float64(total) * 100),
		CorrectCount:   correct,
		TotalQuestions: total,
		PerQuestion:    perQuestion,
	}
}

// grade compares one submitted answer against the answer key.
func grade(spec model.AnswerSpec, answer model.AnswerValue) bool {
	switch spec.Kind {
	case model.AnswerKindSingle:
		// Exactly one submitted index matching the key.
		return len(answer.Indices) == 1 && answer.Indices[0] == spec.CorrectIndex
	case model.AnswerKindMultiple:
		// Set equality, order independent. No partial credit.
		return setEqual(answer.Indices, spec.CorrectIndexSet)
	default:
		return false
	}
}

// setEqual reports whether a and b contain the same set of indices,
// ignoring order and duplicates within a.
func setEqual(a, b []int) bool {
	want := make(map[int]struct{}, len(b))
	for _, idx := range b {
		want[idx] = struct{}{}
	}

	seen := make(map[int]struct{}, len(a))
	for _, idx := range a {
		if _, ok := want[idx]; !ok {
			return false
		}
		seen[idx] = struct{}{}
	}
	return len(seen) == len(want)
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
