package mqtt

import "sync"

// FakePublisher records published events for test assertions.
// Safe for concurrent use: the supervisor publishes from its own goroutine.
type FakePublisher struct {
	mu sync.Mutex

	systemEvents     []SystemEvent
	systemPayloads   [][]byte
	connectionEvents []ConnectionEvent

	// PublishSystemError, if set, will be returned by PublishSystem.
	PublishSystemError error

	// PublishConnectionError, if set, will be returned by PublishConnection.
	PublishConnectionError error

	closed    bool
	connected bool
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

// PublishSystem records the system event.
func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.systemEvents = append(f.systemEvents, event)
	f.systemPayloads = append(f.systemPayloads, payload)
	return nil
}

// PublishConnection records the connection event.
func (f *FakePublisher) PublishConnection(event ConnectionEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishConnectionError != nil {
		return f.PublishConnectionError
	}
	f.connectionEvents = append(f.connectionEvents, event)
	return nil
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

// SetConnected controls the return value of IsConnected.
func (f *FakePublisher) SetConnected(connected bool) {
	f.mu.Lock()
	f.connected = connected
	f.mu.Unlock()
}

// IsConnected reports whether the fake publisher is "connected".
func (f *FakePublisher) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

// SystemEvents returns the recorded system events.
func (f *FakePublisher) SystemEvents() []SystemEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]SystemEvent(nil), f.systemEvents...)
}

// SystemPayloads returns the JSON payloads of recorded system events.
func (f *FakePublisher) SystemPayloads() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.systemPayloads...)
}

// ConnectionEvents returns the recorded connection events.
func (f *FakePublisher) ConnectionEvents() []ConnectionEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ConnectionEvent(nil), f.connectionEvents...)
}

// Closed reports whether Close was called.
func (f *FakePublisher) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Reset clears recorded events.
func (f *FakePublisher) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.systemEvents = nil
	f.systemPayloads = nil
	f.connectionEvents = nil
	f.closed = false
	f.connected = false
	f.PublishSystemError = nil
	f.PublishConnectionError = nil
}
