package robot

import (
	"errors"
	"fmt"
)

// ErrEnableTimeout is returned when the controller does not report the
// enabled mode within the handshake budget.
var ErrEnableTimeout = errors.New("robot did not become enabled within timeout")

var errNotStarted = errors.New("session not started")

// ConnectionError reports a required device that could not be reached at
// startup. It is always fatal.
type ConnectionError struct {
	Target string
	Addr   string
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect %s (%s): %v", e.Target, e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ParseError reports a controller reply without a usable payload.
type ParseError struct {
	Command string
	Reply   string
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s reply %q: %v", e.Command, e.Reply, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// TransportError reports a socket or decode failure on a controller
// connection. Retried is set when the failure happened after a reconnect.
type TransportError struct {
	Op      string
	Command string
	Retried bool
	Err     error
}

func (e *TransportError) Error() string {
	if e.Retried {
		return fmt.Sprintf("%s %s (after reconnect): %v", e.Op, e.Command, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Command, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// CommandError is returned when the controller answers a command with a
// non-zero error id.
type CommandError struct {
	Command string
	ErrorID int
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("controller rejected %s: error id %d", e.Command, e.ErrorID)
}

// IsTransport reports whether err is, or wraps, a *TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
