// Package trellerr provides structured error types for trellis.
//
// Every failure surfaced by the storage engine carries a Code so callers
// can distinguish rejections (validation, cycle), conflicts, missing
// entities, corrupt files, and retryable storage faults without string
// matching.
package trellerr

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Code represents a unique error code.
type Code string

// Error codes for trellis.
const (
	// CodeValidation rejects a bad level/parent combination or a missing
	// required field before any write happens.
	CodeValidation Code = "VALIDATION_FAILED"
	// CodeCycle rejects a move that would make a task its own ancestor.
	CodeCycle Code = "MOVE_CYCLE"
	// CodeNotFound reports an unknown task or memory link.
	CodeNotFound Code = "TASK_NOT_FOUND"
	// CodeConflict reports a duplicate id or a sibling-order collision.
	// Callers may retry with fresh state.
	CodeConflict Code = "TASK_CONFLICT"
	// CodeParse reports a malformed task file. Never fatal: the file is
	// quarantined (logged and skipped), not loaded into the index.
	CodeParse Code = "TASK_PARSE_FAILED"
	// CodeTransientStorage reports an I/O failure with no partial state
	// committed; safe for the caller to retry.
	CodeTransientStorage Code = "STORAGE_TRANSIENT"
)

// Category groups error codes for HTTP status mapping.
type Category int

const (
	CategoryUnknown Category = iota
	CategoryNotFound
	CategoryBadRequest
	CategoryConflict
	CategoryInternal
	CategoryUnavailable
)

// codeCategories maps error codes to their categories.
var codeCategories = map[Code]Category{
	CodeValidation:       CategoryBadRequest,
	CodeCycle:            CategoryBadRequest,
	CodeNotFound:         CategoryNotFound,
	CodeConflict:         CategoryConflict,
	CodeParse:            CategoryInternal,
	CodeTransientStorage: CategoryUnavailable,
}

// HTTPStatus returns the HTTP status code for a category.
func (c Category) HTTPStatus() int {
	switch c {
	case CategoryNotFound:
		return 404
	case CategoryBadRequest:
		return 400
	case CategoryConflict:
		return 409
	case CategoryUnavailable:
		return 503
	default:
		return 500
	}
}

// Error is the structured error type for trellis.
type Error struct {
	Code  Code   `json:"code"`
	What  string `json:"what"`
	Why   string `json:"why,omitempty"`
	Fix   string `json:"fix,omitempty"`
	Cause error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.What)
	if e.Why != "" {
		b.WriteString(": ")
		b.WriteString(e.Why)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Category returns the error category for HTTP status mapping.
func (e *Error) Category() Category {
	if cat, ok := codeCategories[e.Code]; ok {
		return cat
	}
	return CategoryUnknown
}

// HTTPStatus returns the appropriate HTTP status code for this error.
func (e *Error) HTTPStatus() int {
	return e.Category().HTTPStatus()
}

// Is reports whether target is a trellis Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// MarshalJSON implements json.Marshaler.
func (e *Error) MarshalJSON() ([]byte, error) {
	type alias Error
	aux := struct {
		*alias
		CauseMsg string `json:"cause,omitempty"`
	}{
		alias: (*alias)(e),
	}
	if e.Cause != nil {
		aux.CauseMsg = e.Cause.Error()
	}
	return json.Marshal(aux)
}

// WithCause returns a copy of the error with the given cause.
func (e *Error) WithCause(err error) *Error {
	return &Error{
		Code:  e.Code,
		What:  e.What,
		Why:   e.Why,
		Fix:   e.Fix,
		Cause: err,
	}
}

// --- Error constructors ---

// Validation returns an error for an invalid input or hierarchy violation.
func Validation(what, why string) *Error {
	return &Error{
		Code: CodeValidation,
		What: what,
		Why:  why,
		Fix:  "Correct the request and try again",
	}
}

// Cycle returns an error for a move that would create a cycle.
func Cycle(taskID, newParentID string) *Error {
	return &Error{
		Code: CodeCycle,
		What: fmt.Sprintf("cannot move %s under %s", taskID, newParentID),
		Why:  "the new parent is the task itself or one of its descendants",
		Fix:  "Pick a parent outside the task's own subtree",
	}
}

// NotFound returns an error for an unknown task id.
func NotFound(id string) *Error {
	return &Error{
		Code: CodeNotFound,
		What: fmt.Sprintf("task %s not found", id),
		Why:  "no task with this id exists in the index",
		Fix:  "Run 'trellis list' to see known tasks",
	}
}

// Conflict returns an error for a duplicate id or order collision.
func Conflict(what, why string) *Error {
	return &Error{
		Code: CodeConflict,
		What: what,
		Why:  why,
		Fix:  "Re-read current state and retry the operation",
	}
}

// Parse returns an error for a malformed task file.
func Parse(path string, cause error) *Error {
	return &Error{
		Code:  CodeParse,
		What:  fmt.Sprintf("cannot parse task file %s", path),
		Why:   "the metadata front section is malformed",
		Fix:   "Fix the file by hand or delete it; it is skipped until then",
		Cause: cause,
	}
}

// Transient returns an error for a retryable storage failure.
func Transient(what string, cause error) *Error {
	return &Error{
		Code:  CodeTransientStorage,
		What:  what,
		Why:   "the underlying storage reported a transient failure",
		Fix:   "Retry the operation; no partial state was committed",
		Cause: cause,
	}
}

// AsError attempts to convert an error to a trellis Error.
// Returns nil if the error is not one.
func AsError(err error) *Error {
	var te *Error
	if errors.As(err, &te) {
		return te
	}
	return nil
}

// HasCode reports whether err carries the given code anywhere in its chain.
func HasCode(err error, code Code) bool {
	te := AsError(err)
	return te != nil && te.Code == code
}

// Wrap wraps a generic error with unknown code.
func Wrap(err error, what string) *Error {
	return &Error{
		Code:  Code("UNKNOWN"),
		What:  what,
		Cause: err,
	}
}
