package ir

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode categorizes IR errors.
type ErrorCode string

const (
	// ErrCodeConstruction indicates bad arity or operand kind at a builder call.
	ErrCodeConstruction ErrorCode = "CONSTRUCTION"

	// ErrCodeUnresolvedRecursion indicates a group opened but never closed,
	// or a zero-delay self-reference.
	ErrCodeUnresolvedRecursion ErrorCode = "UNRESOLVED_RECURSION"

	// ErrCodeIntervalViolation indicates an operator applied to a provably invalid range.
	ErrCodeIntervalViolation ErrorCode = "INTERVAL_VIOLATION"

	// ErrCodeIdentityMismatch indicates a Signal used outside its owning pool.
	ErrCodeIdentityMismatch ErrorCode = "IDENTITY_MISMATCH"

	// ErrCodePoolClosed indicates a Signal used after its pool was closed.
	ErrCodePoolClosed ErrorCode = "POOL_CLOSED"

	// ErrCodeResourceExhausted indicates a node or group budget was exceeded.
	ErrCodeResourceExhausted ErrorCode = "RESOURCE_EXHAUSTED"

	// ErrCodeWriteOnce indicates a second write to a write-once field.
	ErrCodeWriteOnce ErrorCode = "WRITE_ONCE"
)

// Error is the single error type produced by the IR and its passes.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Node identifies the offending node, if any.
	Node NodeID

	// Group identifies the offending recursion group, if any.
	Group int

	// HasGroup is set when Group is meaningful (group 0 is a valid id).
	HasGroup bool

	// Details contains additional context.
	Details map[string]string
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.HasGroup:
		return fmt.Sprintf("%s: %s (group=%d)", e.Code, e.Message, e.Group)
	case e.Node.IsValid():
		return fmt.Sprintf("%s: %s (node=%d)", e.Code, e.Message, e.Node)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Diagnostics is a batch of errors collected across a whole pass.
// It is returned as a single error so one compilation surfaces every defect.
type Diagnostics []*Error

// Error implements the error interface.
func (d Diagnostics) Error() string {
	if len(d) == 1 {
		return d[0].Error()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d errors:", len(d))
	for _, e := range d {
		b.WriteString("\n  ")
		b.WriteString(e.Error())
	}
	return b.String()
}

// Unwrap exposes the individual errors to errors.Is and errors.As.
func (d Diagnostics) Unwrap() []error {
	errs := make([]error, len(d))
	for i, e := range d {
		errs[i] = e
	}
	return errs
}

// Err returns nil for an empty batch, otherwise the batch itself.
func (d Diagnostics) Err() error {
	if len(d) == 0 {
		return nil
	}
	return d
}

// HasCode reports whether err is, or contains, an *Error with the given code.
func HasCode(err error, code ErrorCode) bool {
	if err == nil {
		return false
	}
	var e *Error
	if errors.As(err, &e) && e.Code == code {
		return true
	}
	var d Diagnostics
	if errors.As(err, &d) {
		for _, de := range d {
			if de.Code == code {
				return true
			}
		}
	}
	return false
}

// IsConstructionError returns true if err is a construction error.
func IsConstructionError(err error) bool { return HasCode(err, ErrCodeConstruction) }

// IsUnresolvedRecursionError returns true if err reports an unresolved recursion.
func IsUnresolvedRecursionError(err error) bool { return HasCode(err, ErrCodeUnresolvedRecursion) }

// IsIntervalViolationError returns true if err reports an interval violation.
func IsIntervalViolationError(err error) bool { return HasCode(err, ErrCodeIntervalViolation) }

// IsIdentityMismatchError returns true if err reports a Signal used outside its pool,
// including use after the pool was closed.
func IsIdentityMismatchError(err error) bool {
	return HasCode(err, ErrCodeIdentityMismatch) || HasCode(err, ErrCodePoolClosed)
}

// IsResourceExhaustedError returns true if err reports an exceeded budget.
func IsResourceExhaustedError(err error) bool { return HasCode(err, ErrCodeResourceExhausted) }

func constructionError(format string, args ...any) *Error {
	return &Error{Code: ErrCodeConstruction, Message: fmt.Sprintf(format, args...)}
}

// NewIntervalViolation creates an interval violation for a node.
func NewIntervalViolation(id NodeID, format string, args ...any) *Error {
	return &Error{Code: ErrCodeIntervalViolation, Message: fmt.Sprintf(format, args...), Node: id}
}

// NewUnresolvedRecursion creates an unresolved-recursion error for a group.
func NewUnresolvedRecursion(group int, format string, args ...any) *Error {
	return &Error{
		Code:     ErrCodeUnresolvedRecursion,
		Message:  fmt.Sprintf(format, args...),
		Group:    group,
		HasGroup: true,
	}
}
