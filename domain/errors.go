package domain

import (
	"errors"
	"fmt"
)

// ErrVersionConflict indicates that the store rejected a write because a
// newer version of the document is already persisted. The caller should
// reload and retry.
var ErrVersionConflict = errors.New("version conflict")

// ErrPermissionDenied indicates the acting role may not perform the operation.
var ErrPermissionDenied = errors.New("permission denied")

// ValidationError reports a missing or malformed input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("invalid %s", e.Field)
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NotFoundError reports a referenced entity that was expected to exist.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// DuplicateError reports an attempt to add an entity that already exists.
type DuplicateError struct {
	Kind string
	ID   string
}

func (e DuplicateError) Error() string {
	return fmt.Sprintf("%s %s already exists", e.Kind, e.ID)
}

// StaleStateError reports that a move's expected source position no longer
// matches the current board. The client's view is outdated; it should reload
// the board and retry the move.
type StaleStateError struct {
	TaskID   string
	ColumnID string
	Index    int
}

func (e StaleStateError) Error() string {
	return fmt.Sprintf("task %s is not at %s[%d]", e.TaskID, e.ColumnID, e.Index)
}
