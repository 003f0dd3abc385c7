//go:build linux

package gpio

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/warthog618/go-gpiocdev"
)

// RealOutput drives LEDs on actual hardware using the Linux GPIO character device.
type RealOutput struct {
	mu     sync.Mutex
	chip   *gpiocdev.Chip
	lines  map[Channel]*gpiocdev.Line
	closed bool
}

// NewRealOutput requests one output line per channel on the named chip.
// All lines start low.
func NewRealOutput(chipName string, offsets map[Channel]int) (*RealOutput, error) {
	chip, err := gpiocdev.NewChip(chipName, gpiocdev.WithConsumer(Consumer))
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", chipName, err)
	}

	o := &RealOutput{
		chip:  chip,
		lines: make(map[Channel]*gpiocdev.Line, len(offsets)),
	}

	// Request in a stable order so errors are reproducible.
	channels := make([]Channel, 0, len(offsets))
	for ch := range offsets {
		channels = append(channels, ch)
	}
	sort.Slice(channels, func(i, j int) bool { return channels[i] < channels[j] })

	for _, ch := range channels {
		line, err := chip.RequestLine(offsets[ch], gpiocdev.AsOutput(0))
		if err != nil {
			o.Close()
			return nil, fmt.Errorf("request %s line %d: %w", ch, offsets[ch], err)
		}
		o.lines[ch] = line
	}

	return o, nil
}

// SetLevel drives the channel's line high (on) or low (off).
func (o *RealOutput) SetLevel(ch Channel, on bool) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return nil
	}
	line, ok := o.lines[ch]
	if !ok {
		return nil
	}
	v := 0
	if on {
		v = 1
	}
	if err := line.SetValue(v); err != nil {
		return fmt.Errorf("set %s: %w", ch, err)
	}
	return nil
}

// Close releases GPIO resources.
// Lines are driven low and reconfigured to input with pull-down (matching Pi
// boot defaults) before closing, so LEDs go dark and the header is left in
// a clean state for shutdown/reboot.
func (o *RealOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return nil
	}
	o.closed = true

	var errs []error
	for ch, line := range o.lines {
		if err := line.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("clear %s: %w", ch, err))
		}
		if err := line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure %s: %w", ch, err))
		}
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", ch, err))
		}
	}
	if o.chip != nil {
		if err := o.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	return errors.Join(errs...)
}
