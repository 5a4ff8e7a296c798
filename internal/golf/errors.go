// apps/go-server/internal/golf/errors.go
//
// Error taxonomy for round tracking.
//   - ValidationError:   bad input (hole count, hole number, ...).
//   - ErrUnauthorized:   mutating operation without an identity.
//   - ErrNotFound:       round or course absent.
//   - ErrRoundInProgress: user already has an unfinished round.
//   - ErrRoundFinalized:  write against a round that is already committed.
//   - TransientIOError:  connectivity-class failure; logged, never alerted.
//   - PersistenceError:  backend rejected the operation; surfaced to the user.

package golf

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
)

var (
	ErrUnauthorized    = errors.New("golf: authenticated user required")
	ErrNotFound        = errors.New("golf: not found")
	ErrRoundInProgress = errors.New("golf: a round is already in progress")
	ErrNoRound         = errors.New("golf: no active round")
	ErrRoundFinalized  = errors.New("golf: round is already finalized")
)

// ValidationError reports a rejected input value.
type ValidationError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("golf: invalid %s %v: %s", e.Field, e.Value, e.Reason)
}

// TransientIOError wraps a connectivity failure. Local state stays
// authoritative and the write is expected to resync later.
type TransientIOError struct {
	Op  string
	Err error
}

func (e *TransientIOError) Error() string {
	return fmt.Sprintf("golf: %s: transient: %v", e.Op, e.Err)
}

func (e *TransientIOError) Unwrap() error { return e.Err }

// PersistenceError wraps a backend rejection. Status is the HTTP status
// when the backend speaks HTTP, 0 otherwise.
type PersistenceError struct {
	Op     string
	Status int
	Err    error
}

func (e *PersistenceError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("golf: %s: status %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("golf: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// IsTransient reports whether err is (or wraps) a TransientIOError.
func IsTransient(err error) bool {
	var t *TransientIOError
	return errors.As(err, &t)
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// Classify maps a raw storage or transport error onto the taxonomy.
// Domain sentinels and already-classified errors pass through unchanged.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var (
		v *ValidationError
		t *TransientIOError
		p *PersistenceError
	)
	switch {
	case errors.As(err, &v), errors.As(err, &t), errors.As(err, &p):
		return err
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrUnauthorized),
		errors.Is(err, ErrRoundInProgress), errors.Is(err, ErrNoRound),
		errors.Is(err, ErrRoundFinalized):
		return err
	}
	if isConnectivity(err) {
		return &TransientIOError{Op: op, Err: err}
	}
	return &PersistenceError{Op: op, Err: err}
}

// ClassifyStatus maps an HTTP status from a remote store. Gateway-class
// statuses mean the backend was unreachable.
func ClassifyStatus(op string, status int, err error) error {
	switch status {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return &TransientIOError{Op: op, Err: err}
	case http.StatusNotFound:
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return &PersistenceError{Op: op, Status: status, Err: err}
}

func isConnectivity(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, context.DeadlineExceeded)
}
