// Package status provides a thread-safe status tracker for the kismet-leds daemon.
// It is fed by the event bus supervisor and read by HTTP handlers and the
// MQTT mirror.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/kismet-leds/internal/clock"
	"github.com/sweeney/kismet-leds/internal/eventbus"
	"github.com/sweeney/kismet-leds/internal/gpio"
	"github.com/sweeney/kismet-leds/internal/leds"
	"github.com/sweeney/kismet-leds/internal/supervisor"
)

// NetworkInfo contains network state from the Pi helper.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	Server      string // host:port and credential source, no secrets
	Endpoint    string
	Chip        string // empty when LEDs are only logged
	Lines       map[gpio.Channel]int
	TimeoutMs   int64
	ReconnectMs int64
	HeartbeatMs int64
	PacketBlink bool
	ErrorBlink  bool
	Broker      string
	HTTPAddr    string
}

// Counts are monotonically increasing event counters.
type Counts struct {
	Frames          int
	ProtocolErrors  int
	ConnectFailures int
	Connections     int // times SUBSCRIBED was reached from CONNECTING
	Disconnects     int // connections that were subscribed and then lost
	Fixes           map[eventbus.FixLevel]int
	NewDevices      int
	SourceErrors    int
	SourceRecovered int
	PacketActivity  int
}

// LED is the display form of one indicator.
type LED struct {
	Channel  gpio.Channel
	Line     int // -1 when unknown
	On       bool
	Blinking bool
}

// LEDSource reports indicator state; leds.Engine satisfies it.
type LEDSource interface {
	Channels() []leds.State
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	State         supervisor.State
	StateSince    time.Time
	LastFrame     time.Time // zero until the first frame
	LastError     string
	Fix           eventbus.FixLevel
	Counts        Counts
	LEDs          []LED
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex. It implements
// supervisor.Reporter.
type Tracker struct {
	clock clock.Clock

	mu   sync.RWMutex
	snap Snapshot
	leds LEDSource
}

// NewTracker creates a Tracker with the given config. The start time is
// read from clk.
func NewTracker(clk clock.Clock, cfg Config) *Tracker {
	now := clk.Now()
	return &Tracker{
		clock: clk,
		snap: Snapshot{
			State:      supervisor.StateDisconnected,
			StateSince: now,
			StartTime:  now,
			Config:     cfg,
		},
	}
}

// SetLEDSource attaches the indicator engine.
func (t *Tracker) SetLEDSource(src LEDSource) {
	t.mu.Lock()
	t.leds = src
	t.mu.Unlock()
}

// StateChanged records a connection state transition.
func (t *Tracker) StateChanged(s supervisor.State) {
	t.mu.Lock()
	defer t.mu.Unlock()

	prev := t.snap.State
	switch {
	case s == supervisor.StateSubscribed && prev == supervisor.StateConnecting:
		t.snap.Counts.Connections++
	case s == supervisor.StateDisconnected && (prev == supervisor.StateSubscribed || prev == supervisor.StateDegraded):
		t.snap.Counts.Disconnects++
	}
	if s == supervisor.StateDisconnected {
		t.snap.Fix = eventbus.FixNone
	}
	t.snap.State = s
	t.snap.StateSince = t.clock.Now()
}

// FrameReceived counts one frame from the event bus.
func (t *Tracker) FrameReceived() {
	t.mu.Lock()
	t.snap.Counts.Frames++
	t.snap.LastFrame = t.clock.Now()
	t.mu.Unlock()
}

// ProtocolError counts an undecodable frame.
func (t *Tracker) ProtocolError(err error) {
	t.mu.Lock()
	t.snap.Counts.ProtocolErrors++
	t.snap.LastError = err.Error()
	t.mu.Unlock()
}

// ConnectFailed counts a failed dial.
func (t *Tracker) ConnectFailed(err error) {
	t.mu.Lock()
	t.snap.Counts.ConnectFailures++
	t.snap.LastError = err.Error()
	t.mu.Unlock()
}

// Observe counts classified signals.
func (t *Tracker) Observe(signals []eventbus.Signal) {
	t.mu.Lock()
	defer t.mu.Unlock()

	c := &t.snap.Counts
	for _, s := range signals {
		switch s.Kind {
		case eventbus.KindFix:
			if c.Fixes == nil {
				c.Fixes = make(map[eventbus.FixLevel]int)
			}
			c.Fixes[s.Fix]++
			t.snap.Fix = s.Fix
		case eventbus.KindNewDevice:
			c.NewDevices++
		case eventbus.KindDatasourceError:
			c.SourceErrors++
		case eventbus.KindDatasourceRecovered:
			c.SourceRecovered++
		case eventbus.KindPacketActivity:
			c.PacketActivity++
		}
	}
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	src := t.leds
	t.mu.RUnlock()

	fixes := make(map[eventbus.FixLevel]int, len(s.Counts.Fixes))
	for k, v := range s.Counts.Fixes {
		fixes[k] = v
	}
	s.Counts.Fixes = fixes

	// The engine takes its own lock; never call it while holding ours.
	if src != nil {
		for _, st := range src.Channels() {
			line, ok := s.Config.Lines[st.Channel]
			if !ok {
				line = -1
			}
			s.LEDs = append(s.LEDs, LED{
				Channel:  st.Channel,
				Line:     line,
				On:       st.On,
				Blinking: st.Sticky > 0,
			})
		}
	}
	s.Now = t.clock.Now()
	return s
}
