package gpio

import (
	"log"
	"sync"
)

// LogOutput prints LED changes instead of driving hardware. It is selected
// with --no-gpio and is the deliberate fallback for hosts without GPIO.
type LogOutput struct {
	mu       sync.Mutex
	channels map[Channel]bool
	logger   *log.Logger
	closed   bool
}

// NewLogOutput logs changes for the given channels; others are ignored the
// same way RealOutput ignores channels without a line.
func NewLogOutput(logger *log.Logger, channels ...Channel) *LogOutput {
	if logger == nil {
		logger = log.Default()
	}
	set := make(map[Channel]bool, len(channels))
	for _, ch := range channels {
		set[ch] = true
	}
	return &LogOutput{channels: set, logger: logger}
}

// SetLevel logs the change.
func (o *LogOutput) SetLevel(ch Channel, on bool) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed || !o.channels[ch] {
		return nil
	}
	state := "off"
	if on {
		state = "on"
	}
	o.logger.Printf("gpio: led %s %s", ch, state)
	return nil
}

// Close stops logging.
func (o *LogOutput) Close() error {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()
	return nil
}
