package supervisor

import (
	"context"
	"fmt"
	"log"

	"github.com/sweeney/kismet-leds/internal/transport"
)

// keepalive is called after a read timed out. A pong within the timeout
// keeps the connection; anything else declares it dead.
func (s *Supervisor) keepalive(ctx context.Context, conn transport.Conn) error {
	s.setState(StateDegraded)

	pingCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()
	if err := conn.Ping(pingCtx); err != nil {
		return fmt.Errorf("keepalive: %w", err)
	}

	log.Printf("eventbus: quiet for %v, ping answered", s.cfg.Timeout)
	s.setState(StateSubscribed)
	return nil
}
