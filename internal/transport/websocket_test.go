package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/seu-repo/ocpp-csms/internal/domain"
)

func newWSFixture(t *testing.T, pingInterval, pongWait time.Duration, handler Handler) (*WebsocketAdapter, *httptest.Server, *testRegistry) {
	t.Helper()
	reg := newTestRegistry()
	adapter := NewWebsocketAdapter(":0", pingInterval, pongWait, reg, newTestLogger())
	if handler != nil {
		adapter.SetHandler(handler)
	}
	srv := httptest.NewServer(http.HandlerFunc(adapter.handleUpgrade))
	t.Cleanup(srv.Close)
	return adapter, srv, reg
}

func dialWS(t *testing.T, srv *httptest.Server, chargerID string, subprotocols ...string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?id=" + chargerID
	dialer := websocket.Dialer{Subprotocols: subprotocols}
	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitConnected(t *testing.T, adapter *WebsocketAdapter, chargerID string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if adapter.IsConnected(chargerID) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("charger %s never registered", chargerID)
}

func TestWebsocket_RejectsMissingSubprotocol(t *testing.T) {
	// Arrange: the charger dials without offering ocpp1.6
	_, srv, reg := newWSFixture(t, time.Minute, time.Minute, nil)
	conn := dialWS(t, srv, "CP-01")

	// Act
	_, _, err := conn.ReadMessage()

	// Assert: the server closes with protocol error 1002
	var ce *websocket.CloseError
	if !errors.As(err, &ce) {
		t.Fatalf("expected close error, got %v", err)
	}
	if ce.Code != websocket.CloseProtocolError {
		t.Errorf("expected close code 1002, got %d", ce.Code)
	}
	if _, ok := reg.attached["CP-01"]; ok {
		t.Error("expected charger never attached")
	}
}

func TestWebsocket_DispatchesInboundFrame(t *testing.T) {
	// Arrange
	actions := make(chan string, 1)
	adapter, srv, reg := newWSFixture(t, time.Minute, time.Minute, func(ctx context.Context, chargerID, action string, payload json.RawMessage) (any, error) {
		actions <- action
		return map[string]string{"currentTime": "2026-03-01T10:00:00Z"}, nil
	})
	conn := dialWS(t, srv, "CP-01", ocppSubprotocol)
	waitConnected(t, adapter, "CP-01")

	// Act
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"action":"Heartbeat","payload":{}}`)); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	_, data, err := conn.ReadMessage()

	// Assert
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	select {
	case action := <-actions:
		if action != "Heartbeat" {
			t.Errorf("expected Heartbeat dispatched, got %q", action)
		}
	case <-time.After(time.Second):
		t.Fatal("expected handler invoked")
	}
	var resp map[string]string
	json.Unmarshal(data, &resp)
	if resp["currentTime"] == "" {
		t.Errorf("expected handler response on the socket, got %s", data)
	}
	if reg.attached["CP-01"] != NameWebsocket {
		t.Error("expected charger attached to registry")
	}
}

func TestWebsocket_SendMessagePositionalResponse(t *testing.T) {
	// Arrange: the charger answers the next frame it receives
	adapter, srv, _ := newWSFixture(t, time.Minute, time.Minute, nil)
	conn := dialWS(t, srv, "CP-01", ocppSubprotocol)
	waitConnected(t, adapter, "CP-01")
	go func() {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var frame struct {
			Action string `json:"action"`
		}
		if json.Unmarshal(data, &frame) != nil || frame.Action != "Reset" {
			conn.WriteMessage(websocket.TextMessage, []byte(`{"status":"Rejected"}`))
			return
		}
		conn.WriteMessage(websocket.TextMessage, []byte(`{"status":"Accepted"}`))
	}()

	// Act
	res, err := adapter.SendMessage(context.Background(), "CP-01", "Reset", json.RawMessage(`{"type":"Soft"}`), 2*time.Second)

	// Assert
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	var resp map[string]string
	json.Unmarshal(res.Data, &resp)
	if resp["status"] != "Accepted" {
		t.Errorf("expected Accepted, got %s", res.Data)
	}
}

func TestWebsocket_SendMessageTimeout(t *testing.T) {
	// Arrange: the charger reads the call but never answers
	adapter, srv, _ := newWSFixture(t, time.Minute, time.Minute, nil)
	conn := dialWS(t, srv, "CP-01", ocppSubprotocol)
	waitConnected(t, adapter, "CP-01")
	go conn.ReadMessage()

	// Act
	_, err := adapter.SendMessage(context.Background(), "CP-01", "Reset", nil, 50*time.Millisecond)

	// Assert
	if !errors.Is(err, domain.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestWebsocket_SendMessageNotConnected(t *testing.T) {
	// Arrange
	adapter, _, _ := newWSFixture(t, time.Minute, time.Minute, nil)

	// Act
	_, err := adapter.SendMessage(context.Background(), "CP-99", "Reset", nil, time.Second)

	// Assert
	if !errors.Is(err, domain.ErrChargerNotConnected) {
		t.Fatalf("expected ErrChargerNotConnected, got %v", err)
	}
}

func TestWebsocket_PingTimeoutDetaches(t *testing.T) {
	// Arrange: short keep-alive and a charger that never reads, so pongs
	// never come back
	adapter, srv, _ := newWSFixture(t, 20*time.Millisecond, 20*time.Millisecond, nil)
	disconnects := make(chan bool, 1)
	adapter.OnDisconnect = func(chargerID string, pingTimeout bool) {
		disconnects <- pingTimeout
	}
	dialWS(t, srv, "CP-01", ocppSubprotocol)
	waitConnected(t, adapter, "CP-01")

	// Act / Assert
	select {
	case pingTimeout := <-disconnects:
		if !pingTimeout {
			t.Error("expected ping timeout disconnect")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected disconnect after missed pongs")
	}
	if adapter.IsConnected("CP-01") {
		t.Error("expected connection dropped")
	}
}

func TestWebsocket_StopResolvesInflightCallAsShuttingDown(t *testing.T) {
	// Arrange: the charger holds the call open while the adapter stops
	adapter, srv, _ := newWSFixture(t, time.Minute, time.Minute, nil)
	dialWS(t, srv, "CP-01", ocppSubprotocol)
	waitConnected(t, adapter, "CP-01")
	errs := make(chan error, 1)
	go func() {
		_, err := adapter.SendMessage(context.Background(), "CP-01", "Reset", nil, 5*time.Second)
		errs <- err
	}()
	time.Sleep(50 * time.Millisecond)

	// Act
	if err := adapter.Stop(context.Background()); err != nil {
		t.Fatalf("stop failed: %v", err)
	}

	// Assert
	select {
	case err := <-errs:
		if !errors.Is(err, domain.ErrShuttingDown) {
			t.Fatalf("expected ErrShuttingDown, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected in-flight call resolved on stop")
	}
}
