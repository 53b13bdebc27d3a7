// Package coordinationerr defines the cross-cutting error taxonomy shared by
// every coordination component: a small set of sentinel kinds
// plus a wrapper struct that attaches component/operation/id context without
// smuggling structured data into a stringified message.
package coordinationerr

import (
	"errors"
	"fmt"
)

// Kind is a closed-set classification of coordination failures. Components
// return a *Error wrapping one of these; callers type-switch via Is/As.
type Kind string

const (
	KindNotFound          Kind = "not_found"
	KindAlreadyExists     Kind = "already_exists"
	KindInvalidArgument   Kind = "invalid_argument"
	KindInvalidTransition Kind = "invalid_transition"
	KindCapacityExceeded  Kind = "capacity_exceeded"
	KindTimeout           Kind = "timeout"
	KindNotOwner          Kind = "not_owner"
	KindConflictUnresolved Kind = "conflict_unresolved"
	KindIntegrityFailure  Kind = "integrity_failure"
	KindUnavailable       Kind = "unavailable"
	KindInternal          Kind = "internal"
)

// Sentinel errors for errors.Is comparisons against a bare Kind.
var (
	ErrNotFound           = errors.New(string(KindNotFound))
	ErrAlreadyExists      = errors.New(string(KindAlreadyExists))
	ErrInvalidArgument    = errors.New(string(KindInvalidArgument))
	ErrInvalidTransition  = errors.New(string(KindInvalidTransition))
	ErrCapacityExceeded   = errors.New(string(KindCapacityExceeded))
	ErrTimeout            = errors.New(string(KindTimeout))
	ErrNotOwner           = errors.New(string(KindNotOwner))
	ErrConflictUnresolved = errors.New(string(KindConflictUnresolved))
	ErrIntegrityFailure   = errors.New(string(KindIntegrityFailure))
	ErrUnavailable        = errors.New(string(KindUnavailable))
	ErrInternal           = errors.New(string(KindInternal))
)

var kindSentinels = map[Kind]error{
	KindNotFound:           ErrNotFound,
	KindAlreadyExists:      ErrAlreadyExists,
	KindInvalidArgument:    ErrInvalidArgument,
	KindInvalidTransition:  ErrInvalidTransition,
	KindCapacityExceeded:   ErrCapacityExceeded,
	KindTimeout:            ErrTimeout,
	KindNotOwner:           ErrNotOwner,
	KindConflictUnresolved: ErrConflictUnresolved,
	KindIntegrityFailure:   ErrIntegrityFailure,
	KindUnavailable:        ErrUnavailable,
	KindInternal:           ErrInternal,
}

// Error is the structured error every coordination component returns.
type Error struct {
	Kind      Kind
	Component string // e.g. "registry", "router", "resources"
	Op        string // e.g. "Register", "Send"
	ID        string // the agent/resource/session/conflict id involved, if any
	Err       error  // wrapped underlying cause, if any
}

func (e *Error) Error() string {
	switch {
	case e.ID != "" && e.Err != nil:
		return fmt.Sprintf("%s.%s(%s): %s: %v", e.Component, e.Op, e.ID, e.Kind, e.Err)
	case e.ID != "":
		return fmt.Sprintf("%s.%s(%s): %s", e.Component, e.Op, e.ID, e.Kind)
	case e.Err != nil:
		return fmt.Sprintf("%s.%s: %s: %v", e.Component, e.Op, e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s.%s: %s", e.Component, e.Op, e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, coordinationerr.ErrNotFound) match any *Error of
// that Kind, regardless of component/op/id.
func (e *Error) Is(target error) bool {
	if sentinel, ok := kindSentinels[e.Kind]; ok && target == sentinel {
		return true
	}
	return false
}

// New builds a component error of the given kind.
func New(component, op string, kind Kind) *Error {
	return &Error{Kind: kind, Component: component, Op: op}
}

// Newf builds a component error wrapping cause.
func Newf(component, op string, kind Kind, id string, cause error) *Error {
	return &Error{Kind: kind, Component: component, Op: op, ID: id, Err: cause}
}

// NotFound is a convenience constructor for the most common kind.
func NotFound(component, op, id string) *Error {
	return &Error{Kind: KindNotFound, Component: component, Op: op, ID: id}
}

// KindOf extracts the Kind from err if it (or something it wraps) is an
// *Error; it returns KindInternal for unrecognized errors so callers always
// have a kind to map onto an exit code / HTTP status.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindInternal
}
