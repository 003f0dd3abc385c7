// Package mqtt mirrors daemon lifecycle and event bus connection state to
// an MQTT broker, with an abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"
)

// Topics are the MQTT topics used under one prefix.
type Topics struct {
	System     string // STARTUP, SHUTDOWN, HEARTBEAT, RECONNECTED
	Connection string // event bus connection state, retained
}

// NewTopics derives the topics from a prefix such as "kismet-leds".
func NewTopics(prefix string) Topics {
	return Topics{
		System:     prefix + "/system",
		Connection: prefix + "/connection",
	}
}

// Publisher publishes events to MQTT.
type Publisher interface {
	// PublishSystem sends a system lifecycle event to the broker.
	// Returns error if publishing fails (should not crash the process).
	PublishSystem(event SystemEvent) error

	// PublishConnection sends an event bus connection state change.
	PublishConnection(event ConnectionEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// ConnectionEvent is one event bus connection state change.
type ConnectionEvent struct {
	Timestamp time.Time
	State     string // DISCONNECTED, CONNECTING, SUBSCRIBED, DEGRADED
	Reason    string // last connect error, if any
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}

// ConnectionPayload is the MQTT payload for connection events.
type ConnectionPayload struct {
	Connection ConnectionPayloadInner `json:"connection"`
}

// ConnectionPayloadInner contains the connection event details.
type ConnectionPayloadInner struct {
	Timestamp string `json:"timestamp"`
	State     string `json:"state"`
	Reason    string `json:"reason,omitempty"`
}

// FormatConnectionPayload creates the JSON payload for a connection event.
func FormatConnectionPayload(event ConnectionEvent) ([]byte, error) {
	return json.Marshal(ConnectionPayload{
		Connection: ConnectionPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			State:     event.State,
			Reason:    event.Reason,
		},
	})
}
