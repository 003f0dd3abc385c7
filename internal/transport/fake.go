package transport

import (
	"context"
	"errors"
	"sync"
)

// ReadResult is one scripted Read outcome: a frame, or an error such as
// context.DeadlineExceeded (read timeout) or ErrClosed (peer went away).
type ReadResult struct {
	Frame []byte
	Err   error
}

// FakeConn is a test double that replays scripted reads and pings.
// Once the read script is exhausted, Read blocks until its context ends or
// the conn is closed.
type FakeConn struct {
	mu sync.Mutex

	// Reads are consumed in order by Read.
	Reads []ReadResult

	// Pings are consumed in order by Ping; nil entries succeed. Pings
	// beyond the script succeed.
	Pings []error

	// SendError, if set, is returned by Send after SendOK successful sends.
	SendError error
	SendOK    int

	sent    [][]byte
	pings   int
	closed  bool
	closeCh chan struct{}
}

// NewFakeConn creates a FakeConn with the given read script.
func NewFakeConn(reads ...ReadResult) *FakeConn {
	return &FakeConn{Reads: reads, closeCh: make(chan struct{})}
}

// Frame is shorthand for a successful scripted read.
func Frame(s string) ReadResult {
	return ReadResult{Frame: []byte(s)}
}

// Send records the frame.
func (c *FakeConn) Send(ctx context.Context, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.SendError != nil && len(c.sent) >= c.SendOK {
		return c.SendError
	}
	c.sent = append(c.sent, append([]byte(nil), data...))
	return nil
}

// Read returns the next scripted result.
func (c *FakeConn) Read(ctx context.Context) ([]byte, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	if len(c.Reads) > 0 {
		r := c.Reads[0]
		c.Reads = c.Reads[1:]
		c.mu.Unlock()
		return r.Frame, r.Err
	}
	c.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.closeCh:
		return nil, ErrClosed
	}
}

// Ping returns the next scripted ping result.
func (c *FakeConn) Ping(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.pings++
	if len(c.Pings) > 0 {
		err := c.Pings[0]
		c.Pings = c.Pings[1:]
		return err
	}
	return nil
}

// Close marks the conn closed.
func (c *FakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.closeCh)
	}
	return nil
}

// Sent returns copies of every frame sent.
func (c *FakeConn) Sent() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.sent))
	for i, b := range c.sent {
		out[i] = string(b)
	}
	return out
}

// PingCount returns how many pings were sent.
func (c *FakeConn) PingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pings
}

// Closed reports whether Close was called.
func (c *FakeConn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// DialResult is one scripted Dial outcome.
type DialResult struct {
	Conn *FakeConn
	Err  error
}

// FakeDialer is a test double that hands out scripted connections.
// Dials beyond the script fail with ErrRefused.
type FakeDialer struct {
	mu      sync.Mutex
	results []DialResult
	uris    []string
	dialed  chan struct{}
}

// NewFakeDialer creates a FakeDialer with the given script.
func NewFakeDialer(results ...DialResult) *FakeDialer {
	return &FakeDialer{results: results, dialed: make(chan struct{}, 64)}
}

// Dial returns the next scripted result.
func (d *FakeDialer) Dial(ctx context.Context, uri string) (Conn, error) {
	d.mu.Lock()
	d.uris = append(d.uris, uri)
	var r DialResult
	if len(d.results) > 0 {
		r = d.results[0]
		d.results = d.results[1:]
	} else {
		r = DialResult{Err: &ConnectError{Kind: ErrRefused, Err: errors.New("fake: no more connections")}}
	}
	d.mu.Unlock()

	select {
	case d.dialed <- struct{}{}:
	default:
	}

	if r.Err != nil {
		return nil, r.Err
	}
	return r.Conn, nil
}

// Dialed receives once per Dial call.
func (d *FakeDialer) Dialed() <-chan struct{} {
	return d.dialed
}

// Dials returns the URIs dialed so far.
func (d *FakeDialer) Dials() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.uris...)
}
