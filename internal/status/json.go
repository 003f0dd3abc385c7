package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/kismet-leds/internal/eventbus"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	Connection    Connection   `json:"connection"`
	GPSFix        string       `json:"gps_fix"`
	LEDs          []LEDJSON    `json:"leds"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Counts        CountsJSON   `json:"event_counts"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// Connection reports the event bus connection.
type Connection struct {
	State        string `json:"state"`
	Since        string `json:"since"`
	LastFrame    string `json:"last_frame,omitempty"`
	LastError    string `json:"last_error,omitempty"`
	Server       string `json:"server"`
	Endpoint     string `json:"endpoint"`
	Subscribed   bool   `json:"subscribed"`
	SinceSeconds int64  `json:"since_seconds"`
}

// LEDJSON is the JSON representation of one indicator.
type LEDJSON struct {
	Channel  string `json:"channel"`
	Line     int    `json:"line"`
	On       bool   `json:"on"`
	Blinking bool   `json:"blinking"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of event counts.
type CountsJSON struct {
	Frames          int `json:"frames"`
	ProtocolErrors  int `json:"protocol_errors"`
	ConnectFailures int `json:"connect_failures"`
	Connections     int `json:"connections"`
	Disconnects     int `json:"disconnects"`
	Fix3D           int `json:"fix_3d"`
	Fix2D           int `json:"fix_2d"`
	FixNone         int `json:"fix_none"`
	NewDevices      int `json:"new_devices"`
	SourceErrors    int `json:"datasource_errors"`
	SourceRecovered int `json:"datasource_recovered"`
	PacketActivity  int `json:"packet_activity"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	Chip        string `json:"chip,omitempty"`
	TimeoutMs   int64  `json:"timeout_ms"`
	ReconnectMs int64  `json:"reconnect_ms"`
	HeartbeatMs int64  `json:"heartbeat_ms"`
	PacketBlink bool   `json:"packet_blink"`
	ErrorBlink  bool   `json:"error_blink"`
	Broker      string `json:"broker,omitempty"`
	HTTPAddr    string `json:"http_addr"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func buildInner(snap Snapshot) StatusInner {
	state := string(snap.State)
	if state == "" {
		state = "UNKNOWN"
	}

	inner := StatusInner{
		Connection: Connection{
			State:        state,
			Since:        formatTime(snap.StateSince),
			SinceSeconds: int64(snap.Now.Sub(snap.StateSince).Truncate(time.Second).Seconds()),
			LastFrame:    formatTime(snap.LastFrame),
			LastError:    snap.LastError,
			Server:       snap.Config.Server,
			Endpoint:     snap.Config.Endpoint,
			Subscribed:   state == "SUBSCRIBED" || state == "DEGRADED",
		},
		GPSFix:        snap.Fix.String(),
		LEDs:          []LEDJSON{},
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     formatTime(snap.StartTime),
		Timestamp:     formatTime(snap.Now),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			Frames:          snap.Counts.Frames,
			ProtocolErrors:  snap.Counts.ProtocolErrors,
			ConnectFailures: snap.Counts.ConnectFailures,
			Connections:     snap.Counts.Connections,
			Disconnects:     snap.Counts.Disconnects,
			Fix3D:           snap.Counts.Fixes[eventbus.Fix3D],
			Fix2D:           snap.Counts.Fixes[eventbus.Fix2D],
			FixNone:         snap.Counts.Fixes[eventbus.FixNone],
			NewDevices:      snap.Counts.NewDevices,
			SourceErrors:    snap.Counts.SourceErrors,
			SourceRecovered: snap.Counts.SourceRecovered,
			PacketActivity:  snap.Counts.PacketActivity,
		},
		Config: ConfigJSON{
			Chip:        snap.Config.Chip,
			TimeoutMs:   snap.Config.TimeoutMs,
			ReconnectMs: snap.Config.ReconnectMs,
			HeartbeatMs: snap.Config.HeartbeatMs,
			PacketBlink: snap.Config.PacketBlink,
			ErrorBlink:  snap.Config.ErrorBlink,
			Broker:      snap.Config.Broker,
			HTTPAddr:    snap.Config.HTTPAddr,
		},
	}
	for _, led := range snap.LEDs {
		inner.LEDs = append(inner.LEDs, LEDJSON{
			Channel:  string(led.Channel),
			Line:     led.Line,
			On:       led.On,
			Blinking: led.Blinking,
		})
	}
	return inner
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
