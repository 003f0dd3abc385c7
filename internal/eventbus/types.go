// Package eventbus turns Kismet event bus frames into typed signals.
// Everything here is pure: no I/O, no clocks, no GPIO.
package eventbus

import "fmt"

// Kismet event types the controller subscribes to.
const (
	TypeGPSLocation      = "GPS_LOCATION"
	TypeMessage          = "MESSAGE"
	TypeDatasourceError  = "DATASOURCE_ERROR"
	TypeDatasourceOpened = "DATASOURCE_OPENED"
	TypeNewDatasource    = "NEW_DATASOURCE"
	TypePacketchainStats = "PACKETCHAIN_STATS"

	// TypeTimestamp is only used by the startup probe.
	TypeTimestamp = "TIMESTAMP"
)

// Subscriptions is the fixed, ordered subscription set sent on every connection.
var Subscriptions = []string{
	TypeGPSLocation,
	TypeMessage,
	TypeDatasourceError,
	TypeDatasourceOpened,
	TypeNewDatasource,
	TypePacketchainStats,
}

// Dotted field names inside event payloads.
const (
	FieldFix           = "kismet.common.location.fix"
	FieldMessageString = "kismet.messagebus.message_string"
	FieldPacketsRRD    = "kismet.packetchain.packets_rrd"
	FieldRRDSerialTime = "kismet.common.rrd.serial_time"
	FieldRRDMinuteVec  = "kismet.common.rrd.minute_vec"
	FieldTimestampUsec = "kismet.system.timestamp.usec"
)

// MinuteSlots is the size of the per-second packet ring buffer.
const MinuteSlots = 60

// FixLevel is the GPS fix quality.
type FixLevel int

const (
	FixNone FixLevel = iota
	Fix2D
	Fix3D
)

func (f FixLevel) String() string {
	switch f {
	case Fix2D:
		return "2D"
	case Fix3D:
		return "3D"
	default:
		return "NONE"
	}
}

// Kind tags a Signal.
type Kind int

const (
	KindFix Kind = iota + 1
	KindNewDevice
	KindDatasourceError
	KindDatasourceRecovered
	KindPacketActivity
)

func (k Kind) String() string {
	switch k {
	case KindFix:
		return "FIX"
	case KindNewDevice:
		return "NEW_DEVICE"
	case KindDatasourceError:
		return "DATASOURCE_ERROR"
	case KindDatasourceRecovered:
		return "DATASOURCE_RECOVERED"
	case KindPacketActivity:
		return "PACKET_ACTIVITY"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Signal is a typed result of classifying one event.
// Fix is only meaningful when Kind == KindFix.
type Signal struct {
	Kind Kind
	Fix  FixLevel
}

func (s Signal) String() string {
	if s.Kind == KindFix {
		return "FIX(" + s.Fix.String() + ")"
	}
	return s.Kind.String()
}

// ProtocolError reports a frame that could not be decoded as an event envelope.
type ProtocolError struct {
	Err error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("eventbus: malformed frame: %v", e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}
