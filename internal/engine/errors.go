package engine

import (
	"errors"
	"fmt"

	"orgchart/internal/hierarchy"
	"orgchart/internal/repo"
)

var (
	ErrNotFound          = repo.ErrNotFound
	ErrInvalidInput      = errors.New("invalid input")
	ErrInvalidState      = errors.New("invalid task state")
	ErrInvalidTransition = errors.New("invalid task state transition")
	ErrConflict          = errors.New("conflict")
	// ErrInvariant matches every *hierarchy.InvariantError.
	ErrInvariant        = hierarchy.ErrInvariant
	ErrNoCommonAncestor = hierarchy.ErrNoCommonAncestor
)

// kindError tags err with an engine sentinel while keeping its message.
type kindError struct {
	kind error
	err  error
}

func (e *kindError) Error() string   { return e.err.Error() }
func (e *kindError) Unwrap() []error { return []error{e.kind, e.err} }

func tag(kind, err error) error {
	if err == nil || errors.Is(err, kind) {
		return err
	}
	return &kindError{kind: kind, err: err}
}

func invalidInput(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrInvalidInput)
}

// translate maps hierarchy errors onto the engine sentinels.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, hierarchy.ErrNotFound):
		return tag(ErrNotFound, err)
	case errors.Is(err, hierarchy.ErrInvalidLevels), errors.Is(err, hierarchy.ErrAmbiguous):
		return tag(ErrInvalidInput, err)
	default:
		return err
	}
}
