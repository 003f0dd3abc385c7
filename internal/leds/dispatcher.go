package leds

import (
	"time"

	"github.com/sweeney/kismet-leds/internal/eventbus"
	"github.com/sweeney/kismet-leds/internal/gpio"
)

// Policy holds the per-LED durations and feature switches.
// Durations <= 0 mean "stay on".
type Policy struct {
	Fix3D         time.Duration
	Fix2D         time.Duration
	DeviceFound   time.Duration
	PacketBlink   bool
	PacketPulse   time.Duration
	ErrorBlink    bool
	ErrorInterval time.Duration
}

// DefaultPolicy matches the stock LED behaviour: solid for 3D fix, half
// second blinks for 2D fix and new devices, short packet flicker and a half
// second error blink.
func DefaultPolicy() Policy {
	return Policy{
		Fix3D:         -1,
		Fix2D:         500 * time.Millisecond,
		DeviceFound:   500 * time.Millisecond,
		PacketBlink:   true,
		PacketPulse:   200 * time.Millisecond,
		ErrorBlink:    true,
		ErrorInterval: 500 * time.Millisecond,
	}
}

// Dispatcher maps classified signals and connection events onto the engine.
type Dispatcher struct {
	engine *Engine
	policy Policy
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(engine *Engine, policy Policy) *Dispatcher {
	return &Dispatcher{engine: engine, policy: policy}
}

// ConnectionAlive is called after subscribing and for every processed
// frame. It holds the ws LED on without interrupting an error blink.
func (d *Dispatcher) ConnectionAlive() {
	d.engine.Reassert(gpio.ChannelWS)
}

// ConnectionLost drops the LEDs whose meaning depends on the event bus.
func (d *Dispatcher) ConnectionLost() {
	d.engine.ForceOff(gpio.ChannelGPS)
	d.engine.Reset(gpio.ChannelWS)
}

// HandleSignals applies signals in order.
func (d *Dispatcher) HandleSignals(signals []eventbus.Signal) {
	for _, s := range signals {
		d.handle(s)
	}
}

func (d *Dispatcher) handle(s eventbus.Signal) {
	switch s.Kind {
	case eventbus.KindFix:
		switch s.Fix {
		case eventbus.Fix3D:
			d.engine.Pulse(gpio.ChannelGPS, d.policy.Fix3D)
		case eventbus.Fix2D:
			d.engine.Pulse(gpio.ChannelGPS, d.policy.Fix2D)
		default:
			d.engine.ForceOff(gpio.ChannelGPS)
		}
	case eventbus.KindNewDevice:
		d.engine.Pulse(gpio.ChannelDevs, d.policy.DeviceFound)
	case eventbus.KindPacketActivity:
		if d.policy.PacketBlink {
			d.engine.Pulse(gpio.ChannelDevs, d.policy.PacketPulse)
		}
	case eventbus.KindDatasourceError:
		if d.policy.ErrorBlink {
			d.engine.EnterStickyBlink(gpio.ChannelWS, d.policy.ErrorInterval)
		}
	case eventbus.KindDatasourceRecovered:
		if d.policy.ErrorBlink {
			d.engine.ClearStickyBlink(gpio.ChannelWS)
		}
	}
}
