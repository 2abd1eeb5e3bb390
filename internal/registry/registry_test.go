package registry

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestLocal_AttachLookupDetach(t *testing.T) {
	// Arrange
	l := NewLocal()

	// Act
	l.Attach("CP-01", "websocket")
	conn, ok := l.Lookup("CP-01")

	// Assert
	if !ok {
		t.Fatal("expected connection present")
	}
	if conn.Transport != "websocket" {
		t.Errorf("expected websocket transport, got %s", conn.Transport)
	}
	if l.Count() != 1 {
		t.Errorf("expected count 1, got %d", l.Count())
	}

	l.Detach("CP-01")
	if _, ok := l.Lookup("CP-01"); ok {
		t.Error("expected connection removed")
	}
}

func TestLocal_ReattachSameTransportKeepsConnectedAt(t *testing.T) {
	// Arrange
	l := NewLocal()
	l.Attach("CP-01", "mqtt")
	first, _ := l.Lookup("CP-01")
	time.Sleep(5 * time.Millisecond)

	// Act: the same transport re-attaching is a keep-alive, not a new
	// connection
	l.Attach("CP-01", "mqtt")
	again, _ := l.Lookup("CP-01")

	// Assert
	if !again.ConnectedAt.Equal(first.ConnectedAt) {
		t.Errorf("expected ConnectedAt preserved, got %v then %v", first.ConnectedAt, again.ConnectedAt)
	}
	if !again.LastSeen.After(first.LastSeen) {
		t.Error("expected LastSeen advanced")
	}
}

func TestLocal_AttachNewTransportReplacesConnection(t *testing.T) {
	// Arrange
	l := NewLocal()
	l.Attach("CP-01", "http")

	// Act
	l.Attach("CP-01", "websocket")
	conn, _ := l.Lookup("CP-01")

	// Assert
	if conn.Transport != "websocket" {
		t.Errorf("expected websocket after re-attach, got %s", conn.Transport)
	}
}

func TestLocal_TouchUnknownChargerIsNoop(t *testing.T) {
	// Arrange
	l := NewLocal()

	// Act
	l.Touch("never-attached")

	// Assert
	if l.Count() != 0 {
		t.Error("expected touch not to create a connection")
	}
}

func TestGenerateNodeID_Format(t *testing.T) {
	// Act
	a := GenerateNodeID()
	b := GenerateNodeID()

	// Assert: <hostname>-<8 hex>, unique per call
	if a == b {
		t.Errorf("expected unique ids, got %q twice", a)
	}
	idx := strings.LastIndex(a, "-")
	if idx < 0 || len(a)-idx-1 != 8 {
		t.Errorf("expected 8 hex suffix, got %q", a)
	}
}

func TestStandalone_DelegatesToLocal(t *testing.T) {
	// Arrange
	l := NewLocal()
	s := NewStandalone(l)
	ctx := context.Background()

	// Act
	s.Attach(ctx, "CP-01", "websocket")
	s.Touch(ctx, "CP-01")

	// Assert
	if _, ok := l.Lookup("CP-01"); !ok {
		t.Fatal("expected attach to reach the local registry")
	}
	s.Detach(ctx, "CP-01")
	if l.Count() != 0 {
		t.Error("expected detach to reach the local registry")
	}
}
