package filetree

import (
	"errors"
	"fmt"
)

var (
	// ErrConflict marks an upsert whose kind disagrees with the node already at the path.
	ErrConflict = errors.New("path kind conflict")
	// ErrInvalidPath marks a step path that cannot address a tree node.
	ErrInvalidPath = errors.New("invalid path")
)

// ConflictError reports a file/folder mismatch at Path. The tree is left unchanged.
type ConflictError struct {
	Path      string
	Existing  Kind
	Requested Kind
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("cannot create %s at %s: a %s already exists there", e.Requested, e.Path, e.Existing)
}

func (e *ConflictError) Unwrap() error {
	return ErrConflict
}

// PathError reports a step path that was rejected before touching the tree.
type PathError struct {
	Path   string
	Reason string
}

func (e *PathError) Error() string {
	return fmt.Sprintf("invalid path %q: %s", e.Path, e.Reason)
}

func (e *PathError) Unwrap() error {
	return ErrInvalidPath
}
