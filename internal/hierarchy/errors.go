package hierarchy

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound         = errors.New("author not found")
	ErrAmbiguous        = errors.New("author name is ambiguous")
	ErrInvalidLevels    = errors.New("levels must be non-negative")
	ErrNoCommonAncestor = errors.New("no common ancestor")
	// ErrInvariant is matched by every InvariantError.
	ErrInvariant = errors.New("model invariant violation")
)

// Invariant kinds reported by Validate and the walks.
const (
	KindCycle        = "cycle"
	KindNoRoot       = "no_root"
	KindMultipleRoot = "multiple_roots"
	KindDanglingBoss = "dangling_boss"
	KindUnreachable  = "unreachable"
	KindRootReparent = "root_reparent"
)

// InvariantError describes a violation of the single-rooted-tree invariant.
type InvariantError struct {
	Kind     string
	AuthorID int64
	Detail   string
}

func (e *InvariantError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("model invariant violation (%s) at author %d: %s", e.Kind, e.AuthorID, e.Detail)
	}
	return fmt.Sprintf("model invariant violation (%s) at author %d", e.Kind, e.AuthorID)
}

func (e *InvariantError) Unwrap() error { return ErrInvariant }

func cycleAt(id int64) error {
	return &InvariantError{Kind: KindCycle, AuthorID: id, Detail: "boss chain revisits this author"}
}
