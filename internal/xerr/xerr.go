// Package xerr defines the error taxonomy of spec.md §7 as
// errors.Is-compatible sentinels, so callers can branch on category
// without a bespoke error-code enum.
package xerr

import (
	"errors"
	"fmt"
)

var (
	// TransientExchange: rate-limit, 5xx, socket timeout. Not retried
	// where it is raised: periodic services log the failed cycle or
	// symbol and try again on a later cycle; queue consumers nack the
	// delivery so it is requeued.
	TransientExchange = errors.New("transient exchange error")

	// DataGap: insufficient candles, empty MTF fibonacci. Not an error
	// to the caller — the signal is suppressed.
	DataGap = errors.New("data gap")

	// ContractViolation: invariant I1-I3 failed after rounding.
	ContractViolation = errors.New("contract violation")

	// BrokerDelivery: connection reset mid-consume. Nack-requeue; the
	// service reconnects.
	BrokerDelivery = errors.New("broker delivery error")

	// PersistenceConflict: a conditional update failed because status
	// changed underneath it. Treated as "someone else won".
	PersistenceConflict = errors.New("persistence conflict")

	// Fatal: misconfiguration or missing secret. The process exits
	// non-zero; the orchestrator restarts it.
	Fatal = errors.New("fatal configuration error")
)

// Wrap formats a message and tags it with category: the result's
// Unwrap returns category, so errors.Is(result, category) holds, while
// the message is kept for logs.
func Wrap(category error, format string, args ...any) error {
	return &taggedError{category: category, msg: fmt.Sprintf(format, args...)}
}

type taggedError struct {
	category error
	msg      string
}

func (e *taggedError) Error() string { return e.msg }
func (e *taggedError) Unwrap() error { return e.category }
