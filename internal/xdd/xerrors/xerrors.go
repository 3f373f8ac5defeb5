// Package xerrors defines the XDD error taxonomy.
/*
 * Copyright (c) 2024, XDD Project. All rights reserved.
 */
package xerrors

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies an error for exit-code selection and for the propagation
// policy: fatal kinds set a gate flag, retryable kinds do not cross the
// worker boundary until retries are exhausted.
type Kind int

const (
	KindConfig Kind = iota
	KindInit
	KindIO
	KindNetwork
	KindOrdering
	KindTimeout
	KindCanceled
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "ConfigError"
	case KindInit:
		return "InitError"
	case KindIO:
		return "IOError"
	case KindNetwork:
		return "NetworkError"
	case KindOrdering:
		return "OrderingError"
	case KindTimeout:
		return "TimeoutExpired"
	case KindCanceled:
		return "Canceled"
	default:
		return "UnknownError"
	}
}

// ExitCode maps a Kind to the process's exit code contract.
func (k Kind) ExitCode() int {
	switch k {
	case KindConfig:
		return 3
	case KindInit:
		return 1
	case KindIO, KindNetwork, KindOrdering:
		return 6
	case KindCanceled:
		return 5
	default:
		return 1
	}
}

// Error is the user-visible error record: target/worker/op/offset context
// plus the underlying cause, wrapped so errors.Cause still works.
type Error struct {
	Kind     Kind
	Target   int
	Worker   int
	OpNumber int64
	Offset   int64
	cause    error
}

func New(kind Kind, target, worker int, op, offset int64, cause error) *Error {
	return &Error{Kind: kind, Target: target, Worker: worker, OpNumber: op, Offset: offset, cause: errors.WithStack(cause)}
}

func (e *Error) Error() string {
	if e.cause == nil {
		return fmt.Sprintf("%s: target=%d worker=%d op=%d offset=%d", e.Kind, e.Target, e.Worker, e.OpNumber, e.Offset)
	}
	return fmt.Sprintf("%s: target=%d worker=%d op=%d offset=%d: %v", e.Kind, e.Target, e.Worker, e.OpNumber, e.Offset, e.cause)
}

func (e *Error) Unwrap() error { return e.cause }

func (e *Error) Cause() error { return errors.Cause(e.cause) }

// IOError builds a retryable storage-op failure.
func IOError(target, worker int, op, offset int64, cause error) *Error {
	return New(KindIO, target, worker, op, offset, cause)
}

// NetworkError builds an E2E transport failure.
func NetworkError(target, worker int, op, offset int64, cause error) *Error {
	return New(KindNetwork, target, worker, op, offset, cause)
}

// OrderingError builds a TOT recovery-timeout diagnostic.
func OrderingError(target, worker int, op int64, cause error) *Error {
	return New(KindOrdering, target, worker, op, 0, cause)
}

// ConfigError wraps an invalid/missing option surfaced before any thread starts.
func ConfigError(msg string) error {
	return &Error{Kind: KindConfig, cause: errors.New(msg)}
}

// InitError wraps a barrier/fd/buffer initialization failure.
func InitError(cause error) error {
	return &Error{Kind: KindInit, cause: errors.WithStack(cause)}
}

// CanceledError reports a clean interrupt-driven stop; it exits with
// KindCanceled's code rather than being treated as a failure.
func CanceledError() error {
	return &Error{Kind: KindCanceled, cause: errors.New("run canceled")}
}

// Wrap adds stack context to an arbitrary error, for internal propagation.
func Wrap(err error, msg string) error { return errors.Wrap(err, msg) }

// IsKind reports whether err (or any error it wraps) is an *Error of kind k.
func IsKind(err error, k Kind) bool {
	var xe *Error
	for err != nil {
		if e, ok := err.(*Error); ok {
			xe = e
			break
		}
		err = errors.Unwrap(err)
	}
	return xe != nil && xe.Kind == k
}
