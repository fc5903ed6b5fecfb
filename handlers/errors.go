package handlers

import (
	"errors"
	"fmt"
)

// DropKind says why a message was discarded without retry.
type DropKind string

const (
	// DropParse covers empty or non-JSON payloads.
	DropParse DropKind = "parse"
	// DropValidation covers missing or malformed fields.
	DropValidation DropKind = "validation"
	// DropReferential covers unknown journeys and incompatible states.
	DropReferential DropKind = "referential"
)

var (
	ErrEmptyPayload        = errors.New("handlers: empty payload")
	ErrNotAnObject         = errors.New("handlers: payload is not a JSON object")
	ErrInvalidTransition   = errors.New("handlers: cancelled journey cannot be confirmed")
	ErrOwnerMismatch       = errors.New("handlers: user does not own journey")
	ErrJourneyNotConfirmed = errors.New("handlers: journey is not confirmed")
	ErrNonContiguousOrder  = errors.New("handlers: segment orders are not contiguous from 1")
)

// DropError marks a message as permanently unprocessable. The handler has
// already logged it; the consumer counts it as dropped.
type DropError struct {
	Kind DropKind
	Err  error
}

func (e *DropError) Error() string {
	return fmt.Sprintf("dropped (%s): %v", e.Kind, e.Err)
}

func (e *DropError) Unwrap() error {
	return e.Err
}

// Drop wraps err as a DropError of the given kind.
func Drop(kind DropKind, err error) error {
	return &DropError{Kind: kind, Err: err}
}

// IsDrop reports whether err marks a dropped message, and its kind.
func IsDrop(err error) (DropKind, bool) {
	var de *DropError
	if errors.As(err, &de) {
		return de.Kind, true
	}
	return "", false
}
