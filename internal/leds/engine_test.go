package leds

import (
	"sync"
	"testing"
	"time"

	"github.com/sweeney/kismet-leds/internal/clock"
	"github.com/sweeney/kismet-leds/internal/gpio"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T) (*Engine, *gpio.FakeOutput, *clock.Fake) {
	t.Helper()
	out := gpio.NewFakeOutput()
	clk := clock.NewFake(epoch)
	e := NewEngine(out, clk, gpio.ChannelWS, gpio.ChannelGPS, gpio.ChannelDevs)
	return e, out, clk
}

func stateOf(t *testing.T, e *Engine, ch gpio.Channel) State {
	t.Helper()
	for _, s := range e.Channels() {
		if s.Channel == ch {
			return s
		}
	}
	t.Fatalf("channel %s not found", ch)
	return State{}
}

func equalLevels(got, want []bool) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func TestPulseTurnsOffAfterDuration(t *testing.T) {
	e, out, clk := newTestEngine(t)

	e.Pulse(gpio.ChannelDevs, 500*time.Millisecond)
	if !out.Level(gpio.ChannelDevs) {
		t.Fatal("expected devs on immediately")
	}

	clk.Advance(499 * time.Millisecond)
	if !out.Level(gpio.ChannelDevs) {
		t.Fatal("devs turned off early")
	}

	clk.Advance(time.Millisecond)
	if out.Level(gpio.ChannelDevs) {
		t.Fatal("expected devs off after 500ms")
	}
	if got := out.ChangesFor(gpio.ChannelDevs); !equalLevels(got, []bool{true, false}) {
		t.Errorf("devs changes: got %v, want [true false]", got)
	}
	if clk.Pending() != 0 {
		t.Errorf("expected no pending timers, got %d", clk.Pending())
	}
}

func TestPulseNonPositiveStaysOn(t *testing.T) {
	for _, d := range []time.Duration{0, -1, -time.Second} {
		e, out, clk := newTestEngine(t)

		e.Pulse(gpio.ChannelGPS, d)
		if clk.Pending() != 0 {
			t.Errorf("d=%v: expected no pending timer, got %d", d, clk.Pending())
		}
		clk.Advance(24 * time.Hour)

		if !out.Level(gpio.ChannelGPS) {
			t.Errorf("d=%v: expected gps to stay on", d)
		}
		if got := out.ChangesFor(gpio.ChannelGPS); !equalLevels(got, []bool{true}) {
			t.Errorf("d=%v: gps changes: got %v, want [true]", d, got)
		}
		if stateOf(t, e, gpio.ChannelGPS).Pending {
			t.Errorf("d=%v: state reports pending timer", d)
		}
	}
}

func TestForceOffSupersedesPulse(t *testing.T) {
	e, out, clk := newTestEngine(t)

	e.Pulse(gpio.ChannelDevs, time.Second)
	clk.Advance(300 * time.Millisecond)
	e.ForceOff(gpio.ChannelDevs)
	out.Reset()

	clk.Advance(10 * time.Second)

	if len(out.ChangesFor(gpio.ChannelDevs)) != 0 {
		t.Errorf("superseded timer changed devs: %v", out.ChangesFor(gpio.ChannelDevs))
	}
	if out.Level(gpio.ChannelDevs) {
		t.Error("expected devs off")
	}
}

func TestNewerPulseWins(t *testing.T) {
	e, out, clk := newTestEngine(t)

	e.Pulse(gpio.ChannelDevs, 500*time.Millisecond)
	clk.Advance(400 * time.Millisecond)
	e.Pulse(gpio.ChannelDevs, 200*time.Millisecond)

	// The first pulse would have ended at 500ms; the second ends at 600ms.
	clk.Advance(150 * time.Millisecond)
	if !out.Level(gpio.ChannelDevs) {
		t.Fatal("first pulse's timer turned devs off")
	}
	clk.Advance(50 * time.Millisecond)
	if out.Level(gpio.ChannelDevs) {
		t.Fatal("second pulse did not turn devs off")
	}
	if clk.Pending() != 0 {
		t.Errorf("expected one timer per led at most, %d pending", clk.Pending())
	}
}

func TestStaleCallbackIsNoOp(t *testing.T) {
	// A callback that already escaped Stop must still be ignored.
	out := gpio.NewFakeOutput()
	clk := clock.NewFake(epoch)
	e := NewEngine(out, clk, gpio.ChannelDevs)

	e.Pulse(gpio.ChannelDevs, time.Second)
	stale := stateOf(t, e, gpio.ChannelDevs).Generation
	e.ForceOn(gpio.ChannelDevs)
	out.Reset()

	e.fire(gpio.ChannelDevs, stale)

	if len(out.Changes()) != 0 {
		t.Errorf("stale callback changed output: %v", out.Changes())
	}
	if !out.Level(gpio.ChannelDevs) {
		t.Error("expected devs to stay on")
	}
}

func TestAtMostOnePendingTimerPerLED(t *testing.T) {
	e, _, clk := newTestEngine(t)

	for i := 0; i < 10; i++ {
		e.Pulse(gpio.ChannelDevs, time.Second)
		e.Pulse(gpio.ChannelGPS, time.Second)
		e.EnterStickyBlink(gpio.ChannelWS, time.Second)
	}
	if clk.Pending() != 3 {
		t.Errorf("pending timers: got %d, want 3", clk.Pending())
	}
}

func TestStickyBlinkCadence(t *testing.T) {
	e, out, clk := newTestEngine(t)
	const T = 500 * time.Millisecond

	e.EnterStickyBlink(gpio.ChannelWS, T)
	if !out.Level(gpio.ChannelWS) {
		t.Fatal("expected ws on at start of blink")
	}

	// on for T, off for T, repeating.
	for cycle := 0; cycle < 4; cycle++ {
		clk.Advance(T)
		if out.Level(gpio.ChannelWS) {
			t.Fatalf("cycle %d: expected ws off after on phase", cycle)
		}
		clk.Advance(T)
		if !out.Level(gpio.ChannelWS) {
			t.Fatalf("cycle %d: expected ws on after off phase", cycle)
		}
	}

	pulses := 0
	for _, on := range out.ChangesFor(gpio.ChannelWS) {
		if on {
			pulses++
		}
	}
	if pulses != 5 {
		t.Errorf("pulses: got %d, want 5 (initial + one per cycle)", pulses)
	}
	if s := stateOf(t, e, gpio.ChannelWS); s.Sticky != T {
		t.Errorf("sticky: got %v, want %v", s.Sticky, T)
	}
}

func TestClearStickyBlinkStopsPulses(t *testing.T) {
	e, out, clk := newTestEngine(t)
	const T = 500 * time.Millisecond

	e.EnterStickyBlink(gpio.ChannelWS, T)
	clk.Advance(T + T/2) // mid off phase
	e.ClearStickyBlink(gpio.ChannelWS)
	out.Reset()

	clk.Advance(10 * T)

	if len(out.ChangesFor(gpio.ChannelWS)) != 0 {
		t.Errorf("blink continued after clear: %v", out.ChangesFor(gpio.ChannelWS))
	}
	if !out.Level(gpio.ChannelWS) {
		t.Error("expected ws held on after clear")
	}
	if s := stateOf(t, e, gpio.ChannelWS); s.Sticky != 0 || s.Pending {
		t.Errorf("state after clear: %+v", s)
	}
}

func TestResetStopsBlinkAndTurnsOff(t *testing.T) {
	e, out, clk := newTestEngine(t)

	e.EnterStickyBlink(gpio.ChannelWS, time.Second)
	e.Reset(gpio.ChannelWS)
	out.Reset()

	clk.Advance(time.Minute)

	if out.Level(gpio.ChannelWS) {
		t.Error("expected ws off after reset")
	}
	if len(out.Changes()) != 0 {
		t.Errorf("unexpected changes after reset: %v", out.Changes())
	}
}

func TestReassertDoesNotInterruptBlink(t *testing.T) {
	e, out, clk := newTestEngine(t)
	const T = time.Second

	e.EnterStickyBlink(gpio.ChannelWS, T)
	clk.Advance(T) // now in off phase
	e.Reassert(gpio.ChannelWS)

	if out.Level(gpio.ChannelWS) {
		t.Error("reassert lit ws during blink off phase")
	}
	if s := stateOf(t, e, gpio.ChannelWS); s.Sticky != T {
		t.Errorf("reassert cleared sticky: %+v", s)
	}

	clk.Advance(T)
	if !out.Level(gpio.ChannelWS) {
		t.Error("blink stopped after reassert")
	}
}

func TestReassertWhenNotSticky(t *testing.T) {
	e, out, _ := newTestEngine(t)

	e.Reassert(gpio.ChannelWS)
	if !out.Level(gpio.ChannelWS) {
		t.Error("expected ws on")
	}
}

func TestStickyNonPositiveIntervalHoldsOn(t *testing.T) {
	e, out, clk := newTestEngine(t)

	e.EnterStickyBlink(gpio.ChannelWS, 0)
	clk.Advance(time.Hour)

	if !out.Level(gpio.ChannelWS) {
		t.Error("expected ws on")
	}
	if s := stateOf(t, e, gpio.ChannelWS); s.Sticky != 0 {
		t.Errorf("sticky: got %v, want 0", s.Sticky)
	}
}

func TestUnknownChannelIgnored(t *testing.T) {
	out := gpio.NewFakeOutput()
	clk := clock.NewFake(epoch)
	e := NewEngine(out, clk, gpio.ChannelWS)

	e.Pulse(gpio.ChannelGPS, time.Second)
	e.ForceOn(gpio.ChannelDevs)
	e.EnterStickyBlink(gpio.ChannelGPS, time.Second)

	if len(out.Changes()) != 0 {
		t.Errorf("unconfigured channels changed output: %v", out.Changes())
	}
	if clk.Pending() != 0 {
		t.Errorf("unconfigured channels armed timers: %d", clk.Pending())
	}
	if len(e.Channels()) != 1 {
		t.Errorf("channels: got %d, want 1", len(e.Channels()))
	}
}

func TestCloseTurnsOffAndIgnoresLaterActions(t *testing.T) {
	e, out, clk := newTestEngine(t)

	e.EnterStickyBlink(gpio.ChannelWS, time.Second)
	e.Pulse(gpio.ChannelGPS, -1)
	e.Close()

	for _, ch := range []gpio.Channel{gpio.ChannelWS, gpio.ChannelGPS, gpio.ChannelDevs} {
		if out.Level(ch) {
			t.Errorf("%s: expected off after close", ch)
		}
	}
	out.Reset()

	e.Pulse(gpio.ChannelDevs, time.Second)
	clk.Advance(time.Minute)
	e.Close()

	if len(out.Changes()) != 0 {
		t.Errorf("changes after close: %v", out.Changes())
	}
}

func TestConcurrentActionsWithRealClock(t *testing.T) {
	out := gpio.NewFakeOutput()
	e := NewEngine(out, clock.Real{}, gpio.ChannelWS, gpio.ChannelDevs)
	var wg sync.WaitGroup

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				switch (i + j) % 4 {
				case 0:
					e.Pulse(gpio.ChannelDevs, time.Millisecond)
				case 1:
					e.EnterStickyBlink(gpio.ChannelWS, time.Millisecond)
				case 2:
					e.Reassert(gpio.ChannelWS)
				case 3:
					_ = e.Channels()
				}
			}
		}(i)
	}
	wg.Wait()

	e.ForceOff(gpio.ChannelWS)
	e.ForceOff(gpio.ChannelDevs)
	out.Reset()
	time.Sleep(20 * time.Millisecond)

	if len(out.Changes()) != 0 {
		t.Errorf("timers fired after force off: %v", out.Changes())
	}
}
