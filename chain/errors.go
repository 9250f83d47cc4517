package chain

import (
	"errors"
	"fmt"
)

var (
	// ErrReverted is returned when a mined transaction carries a failed
	// receipt status.
	ErrReverted = errors.New("chain: transaction reverted")
	// ErrConfirmTimeout is returned when the bounded receipt wait expires
	// before the transaction is mined.
	ErrConfirmTimeout = errors.New("chain: confirmation wait expired")
)

// ReadError wraps a failed contract read with the operation that issued it.
// Callers gather reads concurrently, so the operation name is what makes a
// logged failure attributable.
type ReadError struct {
	Op  string
	Err error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("chain: read %s: %v", e.Op, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

func readErr(op string, err error) error {
	return &ReadError{Op: op, Err: err}
}

// WriteError wraps a failed submission or confirmation.
type WriteError struct {
	Op  string
	Err error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("chain: write %s: %v", e.Op, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

func writeErr(op string, err error) error {
	return &WriteError{Op: op, Err: err}
}
