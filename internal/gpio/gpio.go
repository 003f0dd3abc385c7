// Package gpio drives the status LEDs with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The log implementation prints LED changes for running without hardware.
// The fake implementation records levels for tests.
package gpio

// Channel names a logical LED.
type Channel string

const (
	ChannelWS   Channel = "ws"   // event bus connected / datasource error blink
	ChannelGPS  Channel = "gps"  // GPS fix
	ChannelDevs Channel = "devs" // new device / packet activity
)

// Output sets LED levels.
type Output interface {
	// SetLevel drives channel on or off. Channels without a bound line are
	// ignored. Calls after Close are ignored.
	SetLevel(ch Channel, on bool) error

	// Close releases GPIO resources.
	Close() error
}

// Default line offsets (BCM numbering on a Raspberry Pi).
const (
	DefaultLineWS   = 12
	DefaultLineGPS  = 16
	DefaultLineDevs = 26
)

// DefaultChip is the gpiochip the Pi header lines live on.
const DefaultChip = "gpiochip0"

// Consumer is the label shown by gpioinfo for lines we hold.
const Consumer = "kismet-leds"
