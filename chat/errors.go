package chat

import (
	"errors"
	"fmt"
)

var (
	// ErrNoContext means the owner has no completed documents. SubmitTurn turns it
	// into a degraded answer instead of returning it.
	ErrNoContext = errors.New("no documents available for grounding")

	ErrEmptyQuestion       = errors.New("question is required")
	ErrNotFound            = errors.New("not found")
	ErrUnauthorized        = errors.New("resource belongs to another owner")
	ErrGenerationFailed    = errors.New("generation failed")
	ErrGenerationParse     = errors.New("generation output violates the response contract")
	ErrPersistenceConflict = errors.New("session was modified concurrently")
)

// ParseError describes why a model response was rejected.
type ParseError struct {
	Reason string
	Raw    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse model response: %s", e.Reason)
}

func (e *ParseError) Is(target error) bool {
	return target == ErrGenerationParse
}
