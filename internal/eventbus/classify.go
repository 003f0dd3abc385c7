package eventbus

import (
	"encoding/json"
	"errors"
	"math"
	"strings"
)

// Markers that identify a "new device" message. The device marker is matched
// as a whole space-delimited word so it may also lead the message.
const (
	markerDetectedNew = "Detected new "
	markerDevice      = "device"
)

// Fields is one decoded event payload, keyed by dotted field name.
type Fields map[string]any

// Classify decodes a frame and returns the signals it carries, in a fixed
// event-type order. Only an undecodable envelope is an error; missing or
// malformed fields inside a known event simply produce no signal.
func Classify(frame []byte) ([]Signal, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(frame, &envelope); err != nil {
		return nil, &ProtocolError{Err: err}
	}
	if envelope == nil {
		return nil, &ProtocolError{Err: errors.New("frame is not a JSON object")}
	}

	var signals []Signal

	if raw, ok := envelope[TypeGPSLocation]; ok {
		signals = append(signals, Signal{Kind: KindFix, Fix: ClassifyGPS(decodeFields(raw))})
	}
	if raw, ok := envelope[TypeMessage]; ok {
		if ClassifyMessage(decodeFields(raw)) {
			signals = append(signals, Signal{Kind: KindNewDevice})
		}
	}
	if _, ok := envelope[TypeDatasourceError]; ok {
		signals = append(signals, Signal{Kind: KindDatasourceError})
	}
	if _, ok := envelope[TypeDatasourceOpened]; ok {
		signals = append(signals, Signal{Kind: KindDatasourceRecovered})
	}
	if _, ok := envelope[TypeNewDatasource]; ok {
		signals = append(signals, Signal{Kind: KindDatasourceRecovered})
	}
	if raw, ok := envelope[TypePacketchainStats]; ok {
		if ClassifyPacketActivity(decodeFields(raw)) {
			signals = append(signals, Signal{Kind: KindPacketActivity})
		}
	}

	return signals, nil
}

// decodeFields returns nil for anything that is not a JSON object.
func decodeFields(raw json.RawMessage) Fields {
	var f Fields
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil
	}
	return f
}

// ClassifyGPS maps the fix field to a FixLevel.
func ClassifyGPS(f Fields) FixLevel {
	n, ok := integer(f[FieldFix])
	if !ok {
		return FixNone
	}
	switch n {
	case 3:
		return Fix3D
	case 2:
		return Fix2D
	default:
		return FixNone
	}
}

// ClassifyMessage reports whether a message announces a newly detected device.
// Both markers must be present; their order is not checked.
func ClassifyMessage(f Fields) bool {
	msg, ok := f[FieldMessageString].(string)
	if !ok {
		return false
	}
	return strings.Contains(msg, markerDetectedNew) && hasWord(msg, markerDevice)
}

func hasWord(s, word string) bool {
	for _, w := range strings.Fields(s) {
		if w == word {
			return true
		}
	}
	return false
}

// ClassifyPacketActivity reports whether the most recently completed second
// in the packet ring buffer saw any packets.
func ClassifyPacketActivity(f Fields) bool {
	rrd, ok := f[FieldPacketsRRD].(map[string]any)
	if !ok {
		return false
	}
	serial, ok := integer(rrd[FieldRRDSerialTime])
	if !ok {
		return false
	}
	vec, ok := rrd[FieldRRDMinuteVec].([]any)
	if !ok || len(vec) != MinuteSlots {
		return false
	}
	count, ok := vec[PacketSlot(serial)].(float64)
	if !ok {
		return false
	}
	return count > 0
}

// PacketSlot returns the ring-buffer slot holding the previous second's
// count: (serial-1) mod 60, so serial 0 maps to slot 59.
func PacketSlot(serial int64) int {
	offset := ((serial % MinuteSlots) + MinuteSlots) % MinuteSlots
	if offset == 0 {
		return MinuteSlots - 1
	}
	return int(offset - 1)
}

// integer accepts JSON numbers that hold an exact integer value.
func integer(v any) (int64, bool) {
	n, ok := v.(float64)
	if !ok || math.IsNaN(n) || math.IsInf(n, 0) || n != math.Trunc(n) {
		return 0, false
	}
	if n > math.MaxInt64 || n < math.MinInt64 {
		return 0, false
	}
	return int64(n), true
}
