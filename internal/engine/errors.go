package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTimeout marks calls that exceeded the per-call engine deadline.
	ErrTimeout = errors.New("engine timeout")
	// ErrUnavailable marks transport-level failures reaching an engine.
	ErrUnavailable = errors.New("engine unavailable")
	// ErrBadResponse marks responses the engine produced but the client
	// could not accept (non-2xx status, malformed payload).
	ErrBadResponse = errors.New("engine bad response")
)

// Failure carries the engine name and operation alongside the underlying
// cause so ledger error details stay readable.
type Failure struct {
	Engine string
	Op     string
	Err    error
}

func (f *Failure) Error() string {
	detail := strings.TrimSpace(f.Engine)
	if op := strings.TrimSpace(f.Op); op != "" {
		detail += " " + op
	}
	if f.Err == nil {
		return detail + ": failure"
	}
	return fmt.Sprintf("%s: %v", detail, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// classify wraps err in a Failure tagged with the matching sentinel. Context
// deadline errors become ErrTimeout so callers can tell a slow engine apart
// from a broken one.
func classify(engine, op string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		err = fmt.Errorf("%w: %v", ErrTimeout, err)
	case errors.Is(err, ErrTimeout), errors.Is(err, ErrBadResponse), errors.Is(err, ErrUnavailable):
		// already tagged
	default:
		err = fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return &Failure{Engine: engine, Op: op, Err: err}
}
