package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound         = errors.New("session not found")
	ErrIngestionFailed  = errors.New("ingestion failed")
	ErrTimeout          = errors.New("operation timed out")
	ErrGenerationFailed = errors.New("generation failed")
	ErrEmptyQuestion    = errors.New("question is empty")
)

// IngestionReason classifies why a document was rejected.
type IngestionReason string

const (
	ReasonEmptyText        IngestionReason = "empty-text"
	ReasonEmbeddingFailure IngestionReason = "embedding-failure"
	ReasonOversizeInput    IngestionReason = "oversize-input"
)

// IngestionError rejects a document upload. It matches ErrIngestionFailed
// and unwraps to its cause, so errors.Is(err, ErrTimeout) also works.
type IngestionError struct {
	Reason IngestionReason
	Err    error
}

func (e *IngestionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("ingestion failed: %s", e.Reason)
	}
	return fmt.Sprintf("ingestion failed: %s: %v", e.Reason, e.Err)
}

func (e *IngestionError) Unwrap() error { return e.Err }

func (e *IngestionError) Is(target error) bool { return target == ErrIngestionFailed }

// NewIngestionError builds an IngestionError.
func NewIngestionError(reason IngestionReason, err error) error {
	return &IngestionError{Reason: reason, Err: err}
}

// GenerationError reports a failed or malformed generator response.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string { return "generation failed: " + e.Err.Error() }

func (e *GenerationError) Unwrap() error { return e.Err }

func (e *GenerationError) Is(target error) bool { return target == ErrGenerationFailed }

// NewGenerationError builds a GenerationError.
func NewGenerationError(err error) error {
	return &GenerationError{Err: err}
}
