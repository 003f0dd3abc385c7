// Package leds runs the per-LED state machines: solid on/off, timed pulses
// and sticky blinks. Every action bumps the LED's generation; deferred
// callbacks carry the generation they were armed with and do nothing once
// it is stale, so superseding a pulse never needs an explicit cancel.
package leds

import (
	"log"
	"sort"
	"sync"
	"time"

	"github.com/sweeney/kismet-leds/internal/clock"
	"github.com/sweeney/kismet-leds/internal/gpio"
)

// phase says what a pending timer will do when it fires.
type phase int

const (
	phaseIdle    phase = iota // no timer armed
	phaseOn                   // pulse is lit; timer turns it off
	phaseBlinkOff             // sticky blink is dark; timer re-pulses
)

// indicator is the state of one LED. Guarded by Engine.mu.
type indicator struct {
	level  bool
	sticky time.Duration // > 0 while sticky-blinking
	gen    uint64
	phase  phase
	timer  clock.Timer
}

// State is a point-in-time view of one LED.
type State struct {
	Channel    gpio.Channel
	On         bool
	Sticky     time.Duration
	Pending    bool
	Generation uint64
}

// Engine owns every configured LED. Operations on channels it was not
// built with are ignored, matching an LED with no line assigned.
type Engine struct {
	mu     sync.Mutex
	out    gpio.Output
	clock  clock.Clock
	leds   map[gpio.Channel]*indicator
	closed bool
}

// NewEngine creates an engine for the given channels, all initially off.
// The output is not touched until the first action.
func NewEngine(out gpio.Output, clk clock.Clock, channels ...gpio.Channel) *Engine {
	e := &Engine{
		out:   out,
		clock: clk,
		leds:  make(map[gpio.Channel]*indicator, len(channels)),
	}
	for _, ch := range channels {
		e.leds[ch] = &indicator{}
	}
	return e
}

// ForceOn lights the LED, cancels any pulse and leaves sticky blink.
func (e *Engine) ForceOn(ch gpio.Channel) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if ind := e.get(ch); ind != nil {
		ind.sticky = 0
		e.supersede(ind)
		e.set(ch, ind, true)
	}
}

// ForceOff darkens the LED, cancels any pulse and leaves sticky blink.
func (e *Engine) ForceOff(ch gpio.Channel) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if ind := e.get(ch); ind != nil {
		ind.sticky = 0
		e.supersede(ind)
		e.set(ch, ind, false)
	}
}

// Reassert is ForceOn unless the LED is sticky-blinking, in which case the
// blink is left alone.
func (e *Engine) Reassert(ch gpio.Channel) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ind := e.get(ch)
	if ind == nil || ind.sticky > 0 {
		return
	}
	e.supersede(ind)
	e.set(ch, ind, true)
}

// Pulse lights the LED for d, then turns it off. With d <= 0 the LED stays
// on and no timer is armed. A sticky LED blinks again after going off.
func (e *Engine) Pulse(ch gpio.Channel, d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if ind := e.get(ch); ind != nil {
		e.pulse(ch, ind, d)
	}
}

// EnterStickyBlink starts blinking the LED with equal on and off phases of
// interval until ClearStickyBlink, ForceOn, ForceOff or Reset. A
// non-positive interval just holds the LED on.
func (e *Engine) EnterStickyBlink(ch gpio.Channel, interval time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ind := e.get(ch)
	if ind == nil {
		return
	}
	ind.sticky = 0
	if interval > 0 {
		ind.sticky = interval
	}
	e.pulse(ch, ind, interval)
}

// ClearStickyBlink stops a sticky blink and holds the LED on.
func (e *Engine) ClearStickyBlink(ch gpio.Channel) {
	e.ForceOn(ch)
}

// Reset stops a sticky blink and holds the LED off.
func (e *Engine) Reset(ch gpio.Channel) {
	e.ForceOff(ch)
}

// Channels returns the state of every LED, ordered by channel name.
func (e *Engine) Channels() []State {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]State, 0, len(e.leds))
	for ch, ind := range e.leds {
		out = append(out, State{
			Channel:    ch,
			On:         ind.level,
			Sticky:     ind.sticky,
			Pending:    ind.phase != phaseIdle,
			Generation: ind.gen,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Channel < out[j].Channel })
	return out
}

// Close stops every timer and turns every LED off. Callbacks that were
// already running finish as no-ops; later actions are ignored.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	for ch, ind := range e.leds {
		ind.sticky = 0
		e.supersede(ind)
		e.set(ch, ind, false)
	}
	e.closed = true
}

// get returns nil for unknown channels and after Close.
func (e *Engine) get(ch gpio.Channel) *indicator {
	if e.closed {
		return nil
	}
	return e.leds[ch]
}

// supersede invalidates whatever timer is pending. Stop is best effort; a
// callback already past Stop is caught by the generation check.
func (e *Engine) supersede(ind *indicator) {
	ind.gen++
	if ind.timer != nil {
		ind.timer.Stop()
		ind.timer = nil
	}
	ind.phase = phaseIdle
}

func (e *Engine) pulse(ch gpio.Channel, ind *indicator, d time.Duration) {
	e.supersede(ind)
	e.set(ch, ind, true)
	if d > 0 {
		e.arm(ch, ind, phaseOn, d)
	}
}

func (e *Engine) arm(ch gpio.Channel, ind *indicator, p phase, d time.Duration) {
	gen := ind.gen
	ind.phase = p
	ind.timer = e.clock.AfterFunc(d, func() { e.fire(ch, gen) })
}

// fire runs on a clock goroutine when a pulse or blink-off phase ends.
func (e *Engine) fire(ch gpio.Channel, gen uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ind := e.get(ch)
	if ind == nil || ind.gen != gen {
		return
	}
	ind.timer = nil

	switch ind.phase {
	case phaseOn:
		ind.phase = phaseIdle
		e.set(ch, ind, false)
		if ind.sticky > 0 {
			e.arm(ch, ind, phaseBlinkOff, ind.sticky)
		}
	case phaseBlinkOff:
		ind.phase = phaseIdle
		if ind.sticky > 0 {
			e.pulse(ch, ind, ind.sticky)
		}
	}
}

func (e *Engine) set(ch gpio.Channel, ind *indicator, on bool) {
	ind.level = on
	if err := e.out.SetLevel(ch, on); err != nil {
		log.Printf("leds: set %s: %v", ch, err)
	}
}
