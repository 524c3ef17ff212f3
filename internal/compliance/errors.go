package compliance

import (
	"errors"
	"fmt"
)

// ErrorKind is the category of a compliance error
type ErrorKind string

const (
	KindNotFound         ErrorKind = "not_found"
	KindValidation       ErrorKind = "validation"
	KindStoreUnavailable ErrorKind = "store_unavailable"
	KindConflict         ErrorKind = "conflict"
)

// Sentinels for errors.Is; each *Error matches the sentinel of its kind.
var (
	ErrNotFound         = errors.New("not found")
	ErrValidation       = errors.New("validation failed")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrConflict         = errors.New("concurrent update conflict")
)

// Error carries the failing operation and entity with the error kind
type Error struct {
	Kind   ErrorKind
	Op     string
	Entity string
	ID     string
	Msg    string
	Err    error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s %q", e.Op, e.Entity, e.ID)
	switch e.Kind {
	case KindNotFound:
		msg += " not found"
	case KindConflict:
		msg += ": concurrent update conflict"
	case KindValidation:
		msg += ": " + e.Msg
	case KindStoreUnavailable:
		msg += ": store unavailable"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel for the error's kind
func (e *Error) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Kind == KindNotFound
	case ErrValidation:
		return e.Kind == KindValidation
	case ErrStoreUnavailable:
		return e.Kind == KindStoreUnavailable
	case ErrConflict:
		return e.Kind == KindConflict
	}
	return false
}

// NotFoundError reports a missing framework, status, requirement or document
func NotFoundError(op, entity, id string) error {
	return &Error{Kind: KindNotFound, Op: op, Entity: entity, ID: id}
}

// ValidationError reports malformed input or a broken record invariant
func ValidationError(op, entity, id, msg string) error {
	return &Error{Kind: KindValidation, Op: op, Entity: entity, ID: id, Msg: msg}
}

// StoreError wraps a failure of the document store
func StoreError(op, entity, id string, err error) error {
	return &Error{Kind: KindStoreUnavailable, Op: op, Entity: entity, ID: id, Err: err}
}

// ConflictError reports that optimistic concurrency retries were exhausted
func ConflictError(op, entity, id string) error {
	return &Error{Kind: KindConflict, Op: op, Entity: entity, ID: id}
}

// KindOf returns the kind of err, or "" if err is not an *Error
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
