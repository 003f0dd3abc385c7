package mqtt

import (
	"log"
	"sync"

	"github.com/sweeney/kismet-leds/internal/clock"
	"github.com/sweeney/kismet-leds/internal/supervisor"
)

// Mirror publishes event bus state changes. It implements
// supervisor.Reporter.
type Mirror struct {
	pub   Publisher
	clock clock.Clock

	mu        sync.Mutex
	lastError string
}

// NewMirror creates a Mirror publishing through pub.
func NewMirror(pub Publisher, clk clock.Clock) *Mirror {
	return &Mirror{pub: pub, clock: clk}
}

// StateChanged publishes the new state. A failed connect attempt carries
// its error as the reason of the following DISCONNECTED.
func (m *Mirror) StateChanged(s supervisor.State) {
	m.mu.Lock()
	reason := ""
	if s == supervisor.StateDisconnected {
		reason = m.lastError
	}
	m.lastError = ""
	m.mu.Unlock()

	err := m.pub.PublishConnection(ConnectionEvent{
		Timestamp: m.clock.Now(),
		State:     string(s),
		Reason:    reason,
	})
	if err != nil {
		log.Printf("mqtt: publish connection state: %v", err)
	}
}

// ConnectFailed remembers err for the next state change.
func (m *Mirror) ConnectFailed(err error) {
	m.mu.Lock()
	m.lastError = err.Error()
	m.mu.Unlock()
}

func (m *Mirror) FrameReceived()      {}
func (m *Mirror) ProtocolError(error) {}
