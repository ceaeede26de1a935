package errors

import (
	"errors"
	"fmt"
)

// Kind is the closed, UI-independent failure taxonomy. Every error that
// leaves the submission pipeline carries exactly one Kind.
type Kind string

const (
	KindUserRejected          Kind = "USER_REJECTED"
	KindInsufficientBalance   Kind = "INSUFFICIENT_BALANCE"
	KindInsufficientAllowance Kind = "INSUFFICIENT_ALLOWANCE"
	KindInvalidTarget         Kind = "INVALID_TARGET"
	KindAlreadySatisfied      Kind = "ALREADY_SATISFIED"
	KindWalletTimeout         Kind = "WALLET_TIMEOUT"
	KindSimulationReverted    Kind = "SIMULATION_REVERTED"
	KindAllowanceNotConfirmed Kind = "ALLOWANCE_NOT_CONFIRMED"
	KindUsage                 Kind = "USAGE"
	KindUnavailable           Kind = "UNAVAILABLE"
	KindBlocked               Kind = "BLOCKED"
	KindInternal              Kind = "INTERNAL"
	KindUnknown               Kind = "UNKNOWN"
)

// retryableKinds is the whitelist of kinds for which the caller may be
// offered a retry without any other state change first.
var retryableKinds = map[Kind]bool{
	KindWalletTimeout:         true,
	KindSimulationReverted:    true,
	KindAllowanceNotConfirmed: true,
	KindUnavailable:           true,
	KindUnknown:               true,
}

// Retryable reports whether a kind is safe to retry as-is.
func Retryable(kind Kind) bool { return retryableKinds[kind] }

// Exit codes are stable across releases; scripts depend on them.
var exitCodes = map[Kind]int{
	KindUserRejected:          20,
	KindInsufficientBalance:   21,
	KindInsufficientAllowance: 22,
	KindInvalidTarget:         23,
	KindAlreadySatisfied:      24,
	KindWalletTimeout:         25,
	KindSimulationReverted:    26,
	KindAllowanceNotConfirmed: 27,
	KindUsage:                 2,
	KindUnavailable:           12,
	KindBlocked:               16,
	KindInternal:              1,
	KindUnknown:               1,
}

// Error is a classified error: a short display message plus a stable kind,
// with the raw cause preserved for diagnostics.
type Error struct {
	Kind    Kind
	Message string
	Details string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// Retryable reports whether this specific error may be retried.
func (e *Error) Retryable() bool { return Retryable(e.Kind) }

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// WithDetails attaches a long-form diagnostic string without changing the
// display message.
func (e *Error) WithDetails(details string) *Error {
	e.Details = details
	return e
}

func As(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// KindOf extracts the classified kind, or KindUnknown for foreign errors.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	if typed, ok := As(err); ok {
		return typed.Kind
	}
	return KindUnknown
}

func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if typed, ok := As(err); ok {
		if code, ok := exitCodes[typed.Kind]; ok {
			return code
		}
	}
	return exitCodes[KindInternal]
}
