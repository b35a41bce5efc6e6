package model

import (
	"github.com/google/uuid"
)

// AnswerKind distinguishes single-answer from multiple-answer questions.
type AnswerKind string

const (
	AnswerKindSingle   AnswerKind = "single"
	AnswerKindMultiple AnswerKind = "multiple"
)

// AnswerSpec is the answer key of one question. Exactly one of CorrectIndex
// or CorrectIndexSet is meaningful, selected by Kind.
type AnswerSpec struct {
	Kind            AnswerKind `json:"kind"`
	CorrectIndex    int        `json:"correct_index,omitempty"`
	CorrectIndexSet []int      `json:"correct_index_set,omitempty"`
}

// Question is a single exam question including its answer key.
// It only ever travels encrypted; students receive StudentQuestion instead.
type Question struct {
	Text    string     `json:"text"`
	Images  []string   `json:"images,omitempty"`
	Options []string   `json:"options"`
	Answer  AnswerSpec `json:"answer"`
}

// ExamContent is the confidential exam payload as authored by an institute.
type ExamContent struct {
	ExamID    uuid.UUID  `json:"exam_id"`
	Title     string     `json:"title"`
	Questions []Question `json:"questions"`
}

// StudentQuestion is a question with the answer key stripped. The type carries
// no answer field at all, so no code path can leak one.
type StudentQuestion struct {
	Text    string   `json:"text"`
	Images  []string `json:"images,omitempty"`
	Options []string `json:"options"`
}

// StudentExamView is the sanitized payload returned to a student at exam start.
type StudentExamView struct {
	ExamID    uuid.UUID         `json:"exam_id"`
	Title     string            `json:"title"`
	Questions []StudentQuestion `json:"questions"`
}

// SubmitExamRequest is the institute payload for submitting new exam content.
type SubmitExamRequest struct {
	Title            string            `json:"title" binding:"required,min=3,max=255"`
	Description      string            `json:"description" binding:"required,min=3,max=2000"`
	TimeLimitMinutes int               `json:"time_limit_minutes" binding:"omitempty,min=1,max=480"`
	Questions        []QuestionRequest `json:"questions" binding:"required,min=1,dive"`
}

// QuestionRequest is one question in a SubmitExamRequest.
type QuestionRequest struct {
	Text            string   `json:"text" binding:"required,min=1,max=2000"`
	Images          []string `json:"images" binding:"omitempty,dive,url"`
	Options         []string `json:"options" binding:"required,min=2,dive,required"`
	Kind            string   `json:"kind" binding:"required,oneof=single multiple"`
	CorrectIndex    int      `json:"correct_index" binding:"min=0"`
	CorrectIndexSet []int    `json:"correct_index_set" binding:"omitempty,dive,min=0"`
}
