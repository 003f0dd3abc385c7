package transport

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

// WebsocketDialer connects to the Kismet event bus over websocket.
type WebsocketDialer struct {
	// Dialer is the underlying gorilla dialer; nil uses websocket.DefaultDialer.
	Dialer *websocket.Dialer
}

// Dial opens the websocket. Credentials embedded in uri are moved into an
// Authorization header because websocket URIs cannot carry userinfo.
func (d *WebsocketDialer) Dial(ctx context.Context, uri string) (Conn, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, &ConnectError{Kind: ErrDial, Err: fmt.Errorf("parse uri: %w", err)}
	}

	header := http.Header{}
	if u.User != nil {
		pass, _ := u.User.Password()
		cred := base64.StdEncoding.EncodeToString([]byte(u.User.Username() + ":" + pass))
		header.Set("Authorization", "Basic "+cred)
		u.User = nil
	}

	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	conn, resp, err := dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		return nil, classifyDialError(ctx, err, resp)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	return newWSConn(conn), nil
}

func classifyDialError(ctx context.Context, err error, resp *http.Response) *ConnectError {
	if resp != nil {
		if resp.Body != nil {
			resp.Body.Close()
		}
		return &ConnectError{Kind: ErrAuthRejected, StatusCode: resp.StatusCode, Err: err}
	}

	var dnsErr *net.DNSError
	var netErr net.Error
	switch {
	case errors.As(err, &dnsErr) && !dnsErr.IsTimeout:
		return &ConnectError{Kind: ErrNameResolution, Err: err}
	case errors.Is(err, syscall.ECONNREFUSED):
		return &ConnectError{Kind: ErrRefused, Err: err}
	case errors.Is(err, context.DeadlineExceeded), ctx.Err() == context.DeadlineExceeded:
		return &ConnectError{Kind: ErrTimeout, Err: err}
	case errors.As(err, &netErr) && netErr.Timeout():
		return &ConnectError{Kind: ErrTimeout, Err: err}
	default:
		return &ConnectError{Kind: ErrDial, Err: err}
	}
}

// wsConn runs a single reader goroutine so that read timeouts do not break
// the connection: gorilla treats a read deadline as fatal, so timeouts are
// applied while waiting on the frame channel instead. Control frames (pongs)
// are handled by the reader goroutine as a side effect of ReadMessage.
type wsConn struct {
	conn *websocket.Conn

	frames  chan []byte
	pongs   chan struct{}
	done    chan struct{} // closed when the reader goroutine exits
	closing chan struct{} // closed by Close
	readErr error         // set before done is closed

	// stash holds frames that arrived while a ping was outstanding.
	// Only the Read/Ping caller touches it.
	stash [][]byte

	writeMu   sync.Mutex
	closeOnce sync.Once
}

func newWSConn(conn *websocket.Conn) *wsConn {
	c := &wsConn{
		conn:    conn,
		frames:  make(chan []byte),
		pongs:   make(chan struct{}, 1),
		done:    make(chan struct{}),
		closing: make(chan struct{}),
	}
	conn.SetPongHandler(func(string) error {
		select {
		case c.pongs <- struct{}{}:
		default:
		}
		return nil
	})
	go c.readLoop()
	return c
}

func (c *wsConn) readLoop() {
	defer close(c.done)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.readErr = err
			return
		}
		select {
		case c.frames <- data:
		case <-c.closing:
			c.readErr = net.ErrClosed
			return
		}
	}
}

func (c *wsConn) Read(ctx context.Context) ([]byte, error) {
	if len(c.stash) > 0 {
		data := c.stash[0]
		c.stash = c.stash[1:]
		return data, nil
	}
	select {
	case data := <-c.frames:
		return data, nil
	case <-c.done:
		return nil, fmt.Errorf("%w: %v", ErrClosed, c.readErr)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *wsConn) Send(ctx context.Context, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline, _ := ctx.Deadline()
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("%w: %v", ErrClosed, err)
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("%w: %v", ErrClosed, err)
	}
	return nil
}

func (c *wsConn) Ping(ctx context.Context) error {
	// Drop a pong left over from an earlier ping.
	select {
	case <-c.pongs:
	default:
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(time.Minute)
	}
	if err := c.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
		return fmt.Errorf("%w: ping: %v", ErrClosed, err)
	}

	// The reader goroutine only sees the pong once it is free to read again,
	// so a frame delivered meanwhile counts as proof of life too.
	select {
	case <-c.pongs:
		return nil
	case data := <-c.frames:
		c.stash = append(c.stash, data)
		return nil
	case <-c.done:
		return fmt.Errorf("%w: %v", ErrClosed, c.readErr)
	case <-ctx.Done():
		return fmt.Errorf("%w: no pong: %v", ErrTimeout, ctx.Err())
	}
}

func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closing)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		err = c.conn.Close()
	})
	return err
}
