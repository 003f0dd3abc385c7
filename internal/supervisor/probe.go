package supervisor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sweeney/kismet-leds/internal/eventbus"
	"github.com/sweeney/kismet-leds/internal/transport"
)

// ErrNoTimestamp is returned by Probe when the bus answers with something
// other than a TIMESTAMP event.
var ErrNoTimestamp = errors.New("probe: no timestamp event received")

// Probe checks the configuration once at startup: it connects, subscribes
// to TIMESTAMP, waits for one timestamp event and unsubscribes again.
func Probe(ctx context.Context, dialer transport.Dialer, uri string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	step := func() (context.Context, context.CancelFunc) {
		return context.WithTimeout(ctx, timeout)
	}

	dialCtx, cancel := step()
	conn, err := dialer.Dial(dialCtx, uri)
	cancel()
	if err != nil {
		return fmt.Errorf("probe: %w", err)
	}
	defer conn.Close()

	sub, err := eventbus.SubscribeFrame(eventbus.TypeTimestamp)
	if err != nil {
		return err
	}
	sendCtx, cancel := step()
	err = conn.Send(sendCtx, sub)
	cancel()
	if err != nil {
		return fmt.Errorf("probe: subscribe: %w", err)
	}

	readCtx, cancel := step()
	frame, err := conn.Read(readCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("probe: read: %w", err)
	}
	if !eventbus.HasTimestamp(frame) {
		return ErrNoTimestamp
	}

	unsub, err := eventbus.UnsubscribeFrame(eventbus.TypeTimestamp)
	if err != nil {
		return err
	}
	sendCtx, cancel = step()
	err = conn.Send(sendCtx, unsub)
	cancel()
	if err != nil {
		return fmt.Errorf("probe: unsubscribe: %w", err)
	}
	return nil
}
