package leds

import (
	"testing"
	"time"

	"github.com/sweeney/kismet-leds/internal/eventbus"
	"github.com/sweeney/kismet-leds/internal/gpio"
)

func newTestDispatcher(t *testing.T, policy Policy) (*Dispatcher, *Engine, *gpio.FakeOutput, func(time.Duration)) {
	t.Helper()
	e, out, clk := newTestEngine(t)
	return NewDispatcher(e, policy), e, out, clk.Advance
}

func TestDispatchGPSFix(t *testing.T) {
	d, _, out, advance := newTestDispatcher(t, DefaultPolicy())

	d.HandleSignals([]eventbus.Signal{{Kind: eventbus.KindFix, Fix: eventbus.Fix3D}})
	advance(time.Hour)
	if !out.Level(gpio.ChannelGPS) {
		t.Error("3D fix: expected gps to stay on")
	}

	d.HandleSignals([]eventbus.Signal{{Kind: eventbus.KindFix, Fix: eventbus.Fix2D}})
	if !out.Level(gpio.ChannelGPS) {
		t.Error("2D fix: expected gps on")
	}
	advance(500 * time.Millisecond)
	if out.Level(gpio.ChannelGPS) {
		t.Error("2D fix: expected gps off after 500ms")
	}

	d.HandleSignals([]eventbus.Signal{{Kind: eventbus.KindFix, Fix: eventbus.Fix3D}})
	d.HandleSignals([]eventbus.Signal{{Kind: eventbus.KindFix, Fix: eventbus.FixNone}})
	if out.Level(gpio.ChannelGPS) {
		t.Error("no fix: expected gps off")
	}
}

func TestDispatchNewDeviceAndPackets(t *testing.T) {
	d, _, out, advance := newTestDispatcher(t, DefaultPolicy())

	d.HandleSignals([]eventbus.Signal{{Kind: eventbus.KindNewDevice}})
	advance(100 * time.Millisecond)
	// Packet pulse overwrites the device pulse: off at 100+200ms, not 500ms.
	d.HandleSignals([]eventbus.Signal{{Kind: eventbus.KindPacketActivity}})
	advance(199 * time.Millisecond)
	if !out.Level(gpio.ChannelDevs) {
		t.Fatal("expected devs on during packet pulse")
	}
	advance(time.Millisecond)
	if out.Level(gpio.ChannelDevs) {
		t.Fatal("expected devs off once the packet pulse ends")
	}
}

func TestDispatchPacketBlinkDisabled(t *testing.T) {
	policy := DefaultPolicy()
	policy.PacketBlink = false
	d, _, out, _ := newTestDispatcher(t, policy)

	d.HandleSignals([]eventbus.Signal{{Kind: eventbus.KindPacketActivity}})
	if len(out.Changes()) != 0 {
		t.Errorf("packet blink disabled but output changed: %v", out.Changes())
	}
}

func TestDispatchDatasourceErrorBlink(t *testing.T) {
	d, e, out, advance := newTestDispatcher(t, DefaultPolicy())

	d.ConnectionAlive()
	d.HandleSignals([]eventbus.Signal{{Kind: eventbus.KindDatasourceError}})
	advance(500 * time.Millisecond)
	if out.Level(gpio.ChannelWS) {
		t.Fatal("expected ws off in blink off phase")
	}

	// Frames keep arriving during the blink; they must not stop it.
	d.ConnectionAlive()
	advance(500 * time.Millisecond)
	if !out.Level(gpio.ChannelWS) {
		t.Fatal("expected ws on again")
	}

	d.HandleSignals([]eventbus.Signal{{Kind: eventbus.KindDatasourceRecovered}})
	if s := stateOf(t, e, gpio.ChannelWS); s.Sticky != 0 || !s.On {
		t.Errorf("after recovery: %+v", s)
	}
}

func TestDispatchErrorBlinkDisabled(t *testing.T) {
	policy := DefaultPolicy()
	policy.ErrorBlink = false
	d, e, _, _ := newTestDispatcher(t, policy)

	d.ConnectionAlive()
	d.HandleSignals([]eventbus.Signal{{Kind: eventbus.KindDatasourceError}})
	if s := stateOf(t, e, gpio.ChannelWS); s.Sticky != 0 || !s.On {
		t.Errorf("error blink disabled but ws changed: %+v", s)
	}
}

func TestDispatchConnectionLost(t *testing.T) {
	d, e, out, advance := newTestDispatcher(t, DefaultPolicy())

	d.HandleSignals([]eventbus.Signal{
		{Kind: eventbus.KindFix, Fix: eventbus.Fix3D},
		{Kind: eventbus.KindDatasourceError},
	})
	d.ConnectionLost()
	out.Reset()
	advance(time.Minute)

	if out.Level(gpio.ChannelGPS) || out.Level(gpio.ChannelWS) {
		t.Error("expected gps and ws off after connection loss")
	}
	if len(out.Changes()) != 0 {
		t.Errorf("blink continued after connection loss: %v", out.Changes())
	}
	if s := stateOf(t, e, gpio.ChannelWS); s.Sticky != 0 {
		t.Errorf("ws sticky not cleared: %+v", s)
	}
}
