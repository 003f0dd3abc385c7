// Package supervisor keeps the event bus subscription alive: it dials,
// subscribes, reads frames in order, pings silent connections and redials
// after a fixed delay whenever anything goes wrong.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/sweeney/kismet-leds/internal/clock"
	"github.com/sweeney/kismet-leds/internal/eventbus"
	"github.com/sweeney/kismet-leds/internal/transport"
)

// State is the connection state.
type State string

const (
	StateDisconnected State = "DISCONNECTED"
	StateConnecting   State = "CONNECTING"
	StateSubscribed   State = "SUBSCRIBED"
	StateDegraded     State = "DEGRADED" // read timed out, ping outstanding
)

// Defaults for Config.
const (
	DefaultTimeout        = 30 * time.Second
	DefaultReconnectDelay = 5 * time.Second
)

// Handler receives what the supervisor learns from the event bus.
// Calls are made from the supervisor goroutine, never concurrently.
type Handler interface {
	// ConnectionAlive is called once subscribed and for every frame.
	ConnectionAlive()
	// ConnectionLost is called whenever an attempt ends.
	ConnectionLost()
	// HandleSignals is called with the signals classified from one frame.
	HandleSignals(signals []eventbus.Signal)
}

// Reporter observes connection activity for status output.
type Reporter interface {
	StateChanged(s State)
	FrameReceived()
	ProtocolError(err error)
	ConnectFailed(err error)
}

// Config controls a Supervisor.
type Config struct {
	URI            string
	Subscriptions  []string
	Timeout        time.Duration // dial, send, read and ping bound
	ReconnectDelay time.Duration // fixed; there is no backoff
}

// Supervisor owns the event bus connection.
type Supervisor struct {
	cfg      Config
	dialer   transport.Dialer
	clock    clock.Clock
	handler  Handler
	reporter Reporter

	mu    sync.Mutex
	state State
}

// New creates a Supervisor. A nil reporter is allowed.
func New(cfg Config, dialer transport.Dialer, clk clock.Clock, handler Handler, reporter Reporter) *Supervisor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	if cfg.Subscriptions == nil {
		cfg.Subscriptions = eventbus.Subscriptions
	}
	if reporter == nil {
		reporter = nopReporter{}
	}
	return &Supervisor{
		cfg:      cfg,
		dialer:   dialer,
		clock:    clk,
		handler:  handler,
		reporter: reporter,
		state:    StateDisconnected,
	}
}

// State returns the current connection state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Run connects and reconnects until ctx is cancelled, then returns ctx.Err().
// Connection failures of any kind are logged and retried, never returned.
func (s *Supervisor) Run(ctx context.Context) error {
	for {
		s.attempt(ctx)
		if err := ctx.Err(); err != nil {
			return err
		}

		select {
		case <-s.clock.After(s.cfg.ReconnectDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// attempt runs one connection from dial to death.
func (s *Supervisor) attempt(ctx context.Context) {
	defer s.setState(StateDisconnected)
	defer s.handler.ConnectionLost()

	s.setState(StateConnecting)

	dialCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	conn, err := s.dialer.Dial(dialCtx, s.cfg.URI)
	cancel()
	if err != nil {
		if ctx.Err() == nil {
			log.Printf("eventbus: connect failed: %v (%s)", err, transport.Hint(err))
			s.reporter.ConnectFailed(err)
		}
		return
	}
	defer conn.Close()

	if err := s.subscribe(ctx, conn); err != nil {
		log.Printf("eventbus: %v", err)
		return
	}

	log.Printf("eventbus: subscribed to %d event types", len(s.cfg.Subscriptions))
	s.setState(StateSubscribed)
	s.handler.ConnectionAlive()

	err = s.readLoop(ctx, conn)
	if ctx.Err() == nil {
		log.Printf("eventbus: connection lost: %v", err)
	}
}

func (s *Supervisor) subscribe(ctx context.Context, conn transport.Conn) error {
	for _, eventType := range s.cfg.Subscriptions {
		frame, err := eventbus.SubscribeFrame(eventType)
		if err != nil {
			return err
		}
		sendCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
		err = conn.Send(sendCtx, frame)
		cancel()
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", eventType, err)
		}
	}
	return nil
}

// readLoop processes frames until the connection dies or ctx ends.
func (s *Supervisor) readLoop(ctx context.Context, conn transport.Conn) error {
	for {
		readCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
		frame, err := conn.Read(readCtx)
		cancel()

		switch {
		case err == nil:
			s.process(frame)
		case ctx.Err() != nil:
			return ctx.Err()
		case errors.Is(err, context.DeadlineExceeded):
			if err := s.keepalive(ctx, conn); err != nil {
				return err
			}
		default:
			return err
		}
	}
}

func (s *Supervisor) process(frame []byte) {
	s.reporter.FrameReceived()
	s.handler.ConnectionAlive()

	signals, err := eventbus.Classify(frame)
	if err != nil {
		log.Printf("eventbus: %v", err)
		s.reporter.ProtocolError(err)
		return
	}
	if len(signals) > 0 {
		s.handler.HandleSignals(signals)
	}
}

func (s *Supervisor) setState(state State) {
	s.mu.Lock()
	changed := s.state != state
	s.state = state
	s.mu.Unlock()
	if changed {
		s.reporter.StateChanged(state)
	}
}

// Reporters fans every report out to each element in order.
type Reporters []Reporter

func (rs Reporters) StateChanged(s State) {
	for _, r := range rs {
		r.StateChanged(s)
	}
}

func (rs Reporters) FrameReceived() {
	for _, r := range rs {
		r.FrameReceived()
	}
}

func (rs Reporters) ProtocolError(err error) {
	for _, r := range rs {
		r.ProtocolError(err)
	}
}

func (rs Reporters) ConnectFailed(err error) {
	for _, r := range rs {
		r.ConnectFailed(err)
	}
}

type nopReporter struct{}

func (nopReporter) StateChanged(State)  {}
func (nopReporter) FrameReceived()      {}
func (nopReporter) ProtocolError(error) {}
func (nopReporter) ConnectFailed(error) {}
