package mqtt

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

const publishTimeout = 5 * time.Second

// Options configure a RealPublisher.
type Options struct {
	Broker      string
	ClientID    string
	TopicPrefix string
	BufferSize  int // messages kept while the broker is unreachable
}

// client is the part of paho.Client the publisher uses.
type client interface {
	IsConnectionOpen() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Disconnect(quiesce uint)
}

// RealPublisher publishes to an actual MQTT broker. Messages published
// while the broker is unreachable are queued and replayed, in order, on
// the next connect.
type RealPublisher struct {
	client client
	topics Topics

	mu     sync.Mutex
	outbox *outbox
}

// NewRealPublisher creates a publisher and starts connecting in the
// background; it never blocks on the broker.
func NewRealPublisher(opts Options) *RealPublisher {
	p := &RealPublisher{
		topics: NewTopics(opts.TopicPrefix),
		outbox: newOutbox(opts.BufferSize),
	}

	will, _ := FormatSystemPayload(SystemEvent{
		Timestamp: time.Now(),
		Event:     "SHUTDOWN",
		Reason:    "MQTT_DISCONNECT",
	})

	pahoOpts := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetBinaryWill(p.topics.System, will, 1, true).
		SetOnConnectHandler(func(paho.Client) {
			log.Printf("mqtt: connected to %s", opts.Broker)
			p.flush()
		}).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Printf("mqtt: connection lost: %v", err)
		})

	c := paho.NewClient(pahoOpts)
	c.Connect()
	p.client = c
	return p
}

// newPublisher wires a publisher to an existing client.
func newPublisher(c client, topics Topics, bufferSize int) *RealPublisher {
	return &RealPublisher{client: c, topics: topics, outbox: newOutbox(bufferSize)}
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	// QoS 1 (at-least-once): lifecycle events should arrive.
	return p.publish(pending{topic: p.topics.System, payload: payload, qos: 1, retained: event.Retained})
}

// PublishConnection sends an event bus state change. The latest state is
// retained so new subscribers see it immediately.
func (p *RealPublisher) PublishConnection(event ConnectionEvent) error {
	payload, err := FormatConnectionPayload(event)
	if err != nil {
		return fmt.Errorf("format connection payload: %w", err)
	}
	return p.publish(pending{topic: p.topics.Connection, payload: payload, qos: 0, retained: true})
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Queued returns how many messages wait for the broker.
func (p *RealPublisher) Queued() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.outbox.len()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}

func (p *RealPublisher) publish(msg pending) error {
	if !p.client.IsConnectionOpen() {
		p.mu.Lock()
		p.outbox.add(msg)
		p.mu.Unlock()
		return nil
	}
	if err := p.send(msg); err != nil {
		p.mu.Lock()
		p.outbox.add(msg)
		p.mu.Unlock()
		return err
	}
	return nil
}

func (p *RealPublisher) send(msg pending) error {
	token := p.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	if !token.WaitTimeout(publishTimeout) {
		return errors.New("publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// flush replays queued messages. Anything that fails goes back in the
// outbox, still in order, for the next connect.
func (p *RealPublisher) flush() {
	p.mu.Lock()
	msgs, dropped := p.outbox.take()
	p.mu.Unlock()

	if dropped > 0 {
		log.Printf("mqtt: %d queued messages were dropped while offline", dropped)
	}
	for i, msg := range msgs {
		if err := p.send(msg); err != nil {
			log.Printf("mqtt: replay failed, requeueing %d messages: %v", len(msgs)-i, err)
			p.mu.Lock()
			for _, m := range msgs[i:] {
				p.outbox.add(m)
			}
			p.mu.Unlock()
			return
		}
	}
	if len(msgs) > 0 {
		log.Printf("mqtt: replayed %d queued messages", len(msgs))
	}
}
