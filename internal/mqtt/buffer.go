package mqtt

import "log"

// pending is a serialized MQTT message waiting for the broker.
type pending struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// outbox holds messages published while the broker is unreachable. When
// full, the oldest message is overwritten. A zero capacity drops
// everything. Not safe for concurrent use; the caller must synchronize.
type outbox struct {
	slots   []pending
	next    int // next write position
	size    int
	dropped int // messages lost since the last drain
}

func newOutbox(capacity int) *outbox {
	if capacity < 0 {
		capacity = 0
	}
	return &outbox{slots: make([]pending, capacity)}
}

func (o *outbox) add(msg pending) {
	if len(o.slots) == 0 {
		o.dropped++
		return
	}
	if o.size == len(o.slots) {
		if o.dropped == 0 {
			log.Printf("mqtt: outbox full (%d messages), dropping oldest", len(o.slots))
		}
		o.dropped++
	} else {
		o.size++
	}
	o.slots[o.next] = msg
	o.next = (o.next + 1) % len(o.slots)
}

// take removes and returns every queued message, oldest first, and the
// number that were dropped while queueing.
func (o *outbox) take() ([]pending, int) {
	dropped := o.dropped
	o.dropped = 0
	if o.size == 0 {
		return nil, dropped
	}

	out := make([]pending, o.size)
	first := (o.next - o.size + len(o.slots)) % len(o.slots)
	for i := range out {
		out[i] = o.slots[(first+i)%len(o.slots)]
	}
	o.size = 0
	o.next = 0
	return out, dropped
}

func (o *outbox) len() int {
	return o.size
}
