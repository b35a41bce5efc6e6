// Package vault owns the lifecycle of an exam's encrypted payload: initial
// encryption on submission, re-encryption for publication, and retrieval
// plus decryption at exam time.
package vault

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cryptexam/cryptexam-backend/internal/contentstore"
	"github.com/cryptexam/cryptexam-backend/internal/crypt"
	"github.com/cryptexam/cryptexam-backend/internal/model"
	"github.com/rs/zerolog"
)

// Domain errors.
var (
	// ErrValidation means the exam content violates the data model
	// invariants. Checked before any encryption happens.
	ErrValidation = errors.New("invalid exam content")

	// ErrContentIntegrity means a payload decrypted fine but is not
	// structurally valid exam content. Never treated as usable.
	ErrContentIntegrity = errors.New("exam content failed integrity check")

	// ErrPublication means decrypt-then-reencrypt or the store upload
	// failed during publish. A storage-key/content mismatch surfaces here,
	// not at exam time, and is never silently repaired.
	ErrPublication = errors.New("exam publication failed")
)

// ContentVault encrypts, publishes and retrieves exam content.
type ContentVault struct {
	store contentstore.Store
	log   zerolog.Logger
}

// New creates a ContentVault backed by the given distribution store.
func New(store contentstore.Store, log zerolog.Logger) *ContentVault {
	return &ContentVault{
		store: store,
		log:   log.With().Str("component", "content_vault").Logger(),
	}
}

// SubmitResult carries the at-rest ciphertext and its freshly generated
// storage key, both of which the caller persists.
type SubmitResult struct {
	Blob *crypt.EncryptedBlob
	Key  crypt.Key
}

// Submit validates the content, then encrypts it under a new storage key.
func (v *ContentVault) Submit(content *model.ExamContent) (*SubmitResult, error) {
	if err := ValidateContent(content); err != nil {
		return nil, err
	}

	plaintext, err := json.Marshal(content)
	if err != nil {
		return nil, fmt.Errorf("serialize content: %w", err)
	}

	key, err := crypt.GenerateKey()
	if err != nil {
		return nil, err
	}

	blob, err := crypt.Encrypt(plaintext, key)
	if err != nil {
		return nil, fmt.Errorf("encrypt content: %w", err)
	}

	v.log.Debug().
		Str("exam_id", content.ExamID.String()).
		Int("questions", len(content.Questions)).
		Msg("Content encrypted for storage")

	return &SubmitResult{Blob: blob, Key: key}, nil
}

// Publish decrypts the at-rest blob, re-encrypts it under a new distribution
// key and uploads the result to the content-addressed store. Every failure is
// a hard ErrPublication so a broken publication can never reach exam time.
func (v *ContentVault) Publish(ctx context.Context, blob *crypt.EncryptedBlob, storageKey crypt.Key) (*model.ExamPublication, error) {
	plaintext, err := crypt.Decrypt(blob, storageKey)
	if err != nil {
		return nil, fmt.Errorf("%w: storage blob: %w", ErrPublication, err)
	}

	content, err := decodeContent(plaintext)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPublication, err)
	}

	// Fresh, independent key for the public copy. Never the storage key,
	// never derived from it.
	distKey, err := crypt.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPublication, err)
	}

	distBlob, err := crypt.Encrypt(plaintext, distKey)
	if err != nil {
		return nil, fmt.Errorf("%w: re-encrypt: %w", ErrPublication, err)
	}

	distJSON, err := json.Marshal(distBlob)
	if err != nil {
		return nil, fmt.Errorf("%w: serialize distribution blob: %w", ErrPublication, err)
	}

	locator, err := v.store.Put(ctx, distJSON)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPublication, err)
	}

	v.log.Info().
		Str("exam_id", content.ExamID.String()).
		Str("locator", locator).
		Msg("Exam published to distribution store")

	return &model.ExamPublication{
		ExamID:          content.ExamID,
		Locator:         locator,
		DistributionKey: distKey,
		Published:       true,
	}, nil
}

// FetchForExam retrieves the published ciphertext by locator and decrypts it
// with the publication's distribution key. A payload that decrypts but is not
// structurally valid exam content fails with ErrContentIntegrity.
func (v *ContentVault) FetchForExam(ctx context.Context, pub *model.ExamPublication) (*model.ExamContent, error) {
	raw, err := v.store.Get(ctx, pub.Locator)
	if err != nil {
		return nil, fmt.Errorf("fetch published content: %w", err)
	}

	var blob crypt.EncryptedBlob
	if err := json.Unmarshal(raw, &blob); err != nil {
		return nil, fmt.Errorf("%w: published payload is not an encrypted blob", ErrContentIntegrity)
	}

	plaintext, err := crypt.Decrypt(&blob, pub.DistributionKey)
	if err != nil {
		return nil, fmt.Errorf("decrypt published content: %w", err)
	}

	return decodeContent(plaintext)
}

// Sanitize strips the answer key from every question. Total over any content
// that passed FetchForExam validation: the returned types carry no answer
// fields under either question kind.
func (v *ContentVault) Sanitize(content *model.ExamContent) *model.StudentExamView {
	questions := make([]model.StudentQuestion, len(content.Questions))
	for i, q := range content.Questions {
		questions[i] = model.StudentQuestion{
			Text:    q.Text,
			Images:  q.Images,
			Options: q.Options,
		}
	}
	return &model.StudentExamView{
		ExamID:    content.ExamID,
		Title:     content.Title,
		Questions: questions,
	}
}

// ValidateContent checks the data model invariants: at least one question,
// every question at least two options, and an in-range answer key of the
// declared kind.
func ValidateContent(content *model.ExamContent) error {
	if content == nil {
		return fmt.Errorf("%w: content is nil", ErrValidation)
	}
	if len(content.Questions) == 0 {
		return fmt.Errorf("%w: exam has no questions", ErrValidation)
	}

	for i, q := range content.Questions {
		if len(q.Options) < 2 {
			return fmt.Errorf("%w: question %d has %d options, need at least 2", ErrValidation, i, len(q.Options))
		}

		switch q.Answer.Kind {
		case model.AnswerKindSingle:
			if q.Answer.CorrectIndex < 0 || q.Answer.CorrectIndex >= len(q.Options) {
				return fmt.Errorf("%w: question %d correct index %d out of range", ErrValidation, i, q.Answer.CorrectIndex)
			}
		case model.AnswerKindMultiple:
			if len(q.Answer.CorrectIndexSet) == 0 {
				return fmt.Errorf("%w: question %d has an empty correct index set", ErrValidation, i)
			}
			for _, idx := range q.Answer.CorrectIndexSet {
				if idx < 0 || idx >= len(q.Options) {
					return fmt.Errorf("%w: question %d correct index %d out of range", ErrValidation, i, idx)
				}
			}
		default:
			return fmt.Errorf("%w: question %d has unknown answer kind %q", ErrValidation, i, q.Answer.Kind)
		}
	}
	return nil
}

// decodeContent parses decrypted bytes and applies the structural checks
// required of any payload served to students or graded.
func decodeContent(plaintext []byte) (*model.ExamContent, error) {
	var content model.ExamContent
	if err := json.Unmarshal(plaintext, &content); err != nil {
		return nil, fmt.Errorf("%w: payload is not exam content", ErrContentIntegrity)
	}
	if len(content.Questions) == 0 {
		return nil, fmt.Errorf("%w: payload has no questions", ErrContentIntegrity)
	}
	for i, q := range content.Questions {
		if len(q.Options) == 0 {
			return nil, fmt.Errorf("%w: question %d carries no options", ErrContentIntegrity, i)
		}
	}
	return &content, nil
}
