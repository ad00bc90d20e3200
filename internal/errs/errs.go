// Package errs defines the typed hard failures raised by the engine.
//
// A hard failure aborts the whole operation with no state change. Policy
// rejections from the validator chain are not errors and never use this type.
package errs

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindUnauthorized        Kind = "unauthorized"
	KindInvalidParameter    Kind = "invalid_parameter"
	KindZeroAddress         Kind = "zero_address"
	KindZeroAmount          Kind = "zero_amount"
	KindSameAsset           Kind = "same_asset"
	KindDuplicate           Kind = "duplicate"
	KindNotFound            Kind = "not_found"
	KindNoop                Kind = "noop"
	KindDeadlineExpired     Kind = "deadline_expired"
	KindInsufficientBalance Kind = "insufficient_balance"
	KindBoundViolation      Kind = "bound_violation"
	KindOverflow            Kind = "overflow"
	KindReentrant           Kind = "reentrant"
	KindAdapter             Kind = "adapter"
	KindTransfer            Kind = "transfer"
	KindQuote               Kind = "quote"
	KindInvalidRoute        Kind = "invalid_route"
)

// Error is a hard failure: the operation that raised it, what went wrong, and
// the contextual values rendered into Msg.
type Error struct {
	Op   string
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	s := fmt.Sprintf("%s: %s", e.Op, e.Kind)
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Err }

// E builds an *Error. The message is formatted with fmt.Sprintf semantics.
func E(op string, kind Kind, format string, args ...any) *Error {
	return &Error{Op: op, Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error around an underlying cause.
func Wrap(op string, kind Kind, err error, format string, args ...any) *Error {
	return &Error{Op: op, Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
