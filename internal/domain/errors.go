package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrExhausted is returned by a content source with nothing left to give.
	ErrExhausted = errors.New("content source exhausted")
	// ErrInvariant marks a persistence invariant violation. It is always fatal.
	ErrInvariant = errors.New("corpus invariant violated")
	// ErrDuplicateArtifact is returned when the exact triple already exists.
	ErrDuplicateArtifact = errors.New("artifact triple already exists")
	// ErrNotFound is returned by lookups of unknown IDs.
	ErrNotFound = errors.New("not found")
)

// UpstreamError wraps a failure of an external collaborator.
type UpstreamError struct {
	Collaborator Collaborator
	Err          error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: %v", e.Collaborator, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Upstream wraps err as a failure of c. A nil err stays nil.
func Upstream(c Collaborator, err error) error {
	if err == nil {
		return nil
	}
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return err
	}
	return &UpstreamError{Collaborator: c, Err: err}
}

// AsUpstream extracts the collaborator of an upstream failure.
func AsUpstream(err error) (*UpstreamError, bool) {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue, true
	}
	return nil, false
}

// Invariantf builds an error wrapping ErrInvariant.
func Invariantf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvariant, fmt.Sprintf(format, args...))
}
