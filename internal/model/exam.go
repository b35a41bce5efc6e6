package model

import (
	"time"

	"github.com/cryptexam/cryptexam-backend/internal/crypt"
	"github.com/google/uuid"
)

// ExamStatus enumerates the exam lifecycle as one explicit state machine.
// Earlier designs tracked this with independent booleans (approved flag,
// results-released flag, presence of a locator) that could drift apart.
type ExamStatus string

const (
	ExamStatusPending   ExamStatus = "PENDING"
	ExamStatusApproved  ExamStatus = "APPROVED"
	ExamStatusPublished ExamStatus = "PUBLISHED"
	ExamStatusReleased  ExamStatus = "RELEASED"
	ExamStatusRejected  ExamStatus = "REJECTED"
)

// examTransitions is the set of legal lifecycle transitions.
var examTransitions = map[ExamStatus][]ExamStatus{
	ExamStatusPending:   {ExamStatusApproved, ExamStatusRejected},
	ExamStatusApproved:  {ExamStatusPublished},
	ExamStatusPublished: {ExamStatusReleased},
}

// CanTransitionTo reports whether moving from s to next is a legal transition.
func (s ExamStatus) CanTransitionTo(next ExamStatus) bool {
	for _, allowed := range examTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Attemptable reports whether students may start or continue attempts.
func (s ExamStatus) Attemptable() bool {
	return s == ExamStatusPublished || s == ExamStatusReleased
}

// Exam is the persisted exam record. The confidential content never appears
// here in plaintext: StorageBlob is the at-rest ciphertext, and after
// publication the distribution ciphertext lives in the content-addressed
// store under Locator.
//
// StorageKey and DistributionKey are independently generated and never
// derived from or reconciled with each other.
type Exam struct {
	ID               uuid.UUID  `json:"id"`
	InstituteID      int        `json:"institute_id"`
	Title            string     `json:"title"`
	Description      string     `json:"description"`
	TimeLimitMinutes int        `json:"time_limit_minutes"`
	TotalQuestions   int        `json:"total_questions"`
	Status           ExamStatus `json:"status"`

	StorageBlob *crypt.EncryptedBlob `json:"-"`
	StorageKey  crypt.Key            `json:"-"`

	// Publication fields, set once at publish time. Locator is
	// content-addressed and immutable afterwards.
	Locator         string    `json:"locator,omitempty"`
	DistributionKey crypt.Key `json:"-"`

	ReviewedBy    *int       `json:"reviewed_by,omitempty"`
	ReviewComment string     `json:"review_comment,omitempty"`
	ReviewedAt    *time.Time `json:"reviewed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Publication projects the fields ContentVault needs to fetch and decrypt
// a published exam. Retrieval is self-contained: locator plus key.
func (e *Exam) Publication() *ExamPublication {
	return &ExamPublication{
		ExamID:          e.ID,
		Locator:         e.Locator,
		DistributionKey: e.DistributionKey,
		Published:       e.Status == ExamStatusPublished || e.Status == ExamStatusReleased,
		ResultsVisible:  e.Status == ExamStatusReleased,
	}
}

// ExamPublication is the publication record produced by ContentVault.Publish.
type ExamPublication struct {
	ExamID          uuid.UUID `json:"exam_id"`
	Locator         string    `json:"locator"`
	DistributionKey crypt.Key `json:"-"`
	Published       bool      `json:"published"`
	ResultsVisible  bool      `json:"results_visible"`
}

// ReviewExamRequest is the admin payload for approving or rejecting an exam.
type ReviewExamRequest struct {
	Status  string `json:"status" binding:"required,oneof=APPROVED REJECTED"`
	Comment string `json:"comment" binding:"omitempty,max=2000"`
}
