package supervisor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sweeney/kismet-leds/internal/transport"
)

func TestProbeSuccess(t *testing.T) {
	conn := transport.NewFakeConn(
		transport.Frame(`{"TIMESTAMP": {"kismet.system.timestamp.sec": 1700000000, "kismet.system.timestamp.usec": 12}}`),
	)
	dialer := transport.NewFakeDialer(transport.DialResult{Conn: conn})

	if err := Probe(context.Background(), dialer, testURI, time.Second); err != nil {
		t.Fatalf("probe: %v", err)
	}

	sent := conn.Sent()
	want := []string{`{"SUBSCRIBE":"TIMESTAMP"}`, `{"UNSUBSCRIBE":"TIMESTAMP"}`}
	if len(sent) != len(want) || sent[0] != want[0] || sent[1] != want[1] {
		t.Errorf("sent %v, want %v", sent, want)
	}
	if !conn.Closed() {
		t.Error("probe should close its connection")
	}
}

func TestProbeWrongEvent(t *testing.T) {
	conn := transport.NewFakeConn(transport.Frame(`{"MESSAGE": {}}`))
	dialer := transport.NewFakeDialer(transport.DialResult{Conn: conn})

	err := Probe(context.Background(), dialer, testURI, time.Second)
	if !errors.Is(err, ErrNoTimestamp) {
		t.Fatalf("expected ErrNoTimestamp, got %v", err)
	}
	if !conn.Closed() {
		t.Error("probe should close its connection on failure")
	}
}

func TestProbeDialFailure(t *testing.T) {
	err := Probe(context.Background(), transport.NewFakeDialer(), testURI, time.Second)
	if !errors.Is(err, transport.ErrRefused) {
		t.Fatalf("expected ErrRefused, got %v", err)
	}
	if transport.Hint(err) != "is kismet running?" {
		t.Errorf("hint: got %q", transport.Hint(err))
	}
}

func TestProbeSilentServer(t *testing.T) {
	conn := transport.NewFakeConn() // never answers
	dialer := transport.NewFakeDialer(transport.DialResult{Conn: conn})

	err := Probe(context.Background(), dialer, testURI, 50*time.Millisecond)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
