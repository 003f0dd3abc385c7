// Package transport provides the event bus connection with abstraction for
// testing. The real implementation is a websocket client; the fake replays
// scripted frames and failures.
package transport

import (
	"context"
	"errors"
	"fmt"
)

// Dialer opens event bus connections.
type Dialer interface {
	// Dial connects to uri. The context bounds the whole handshake.
	// Errors are *ConnectError values.
	Dial(ctx context.Context, uri string) (Conn, error)
}

// Conn is one open event bus connection. Read, Ping and Send may time out
// via their context without tearing the connection down. Read and Ping are
// called from a single goroutine.
type Conn interface {
	// Send writes one text frame.
	Send(ctx context.Context, data []byte) error

	// Read returns the next frame in arrival order. It returns ctx.Err()
	// if the context ends first, or an error wrapping ErrClosed once the
	// connection is gone.
	Read(ctx context.Context) ([]byte, error)

	// Ping sends a protocol ping and waits for the pong.
	Ping(ctx context.Context) error

	// Close closes the connection. It is safe to call more than once.
	Close() error
}

// Connection failure kinds, matched with errors.Is.
var (
	ErrRefused        = errors.New("connection refused")
	ErrNameResolution = errors.New("name resolution failed")
	ErrAuthRejected   = errors.New("handshake rejected")
	ErrTimeout        = errors.New("timed out")
	ErrDial           = errors.New("dial failed")
	ErrClosed         = errors.New("connection closed")
)

// ConnectError is a classified Dial failure.
type ConnectError struct {
	Kind       error // one of the Err* kinds above
	StatusCode int   // HTTP status for ErrAuthRejected, else 0
	Err        error
}

func (e *ConnectError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%v (status %d): %v", e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%v: %v", e.Kind, e.Err)
}

// Is matches the failure kind.
func (e *ConnectError) Is(target error) bool {
	return target == e.Kind
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// Hint returns a short operator-facing suggestion for a dial failure.
func Hint(err error) string {
	switch {
	case errors.Is(err, ErrAuthRejected):
		return "check credentials"
	case errors.Is(err, ErrRefused):
		return "is kismet running?"
	case errors.Is(err, ErrNameResolution):
		return "check host name"
	case errors.Is(err, ErrTimeout):
		return "server not responding"
	default:
		return "check config"
	}
}
