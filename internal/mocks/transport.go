package mocks

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/seu-repo/ocpp-csms/internal/transport"
)

// SentMessage captures one SendMessage call on a MockAdapter.
type SentMessage struct {
	ChargerID string
	Action    string
	Payload   json.RawMessage
}

// MockAdapter is a mock implementation of transport.Adapter.
type MockAdapter struct {
	AdapterName string
	Connected   map[string]bool
	Sent        []SentMessage
	Handler     transport.Handler

	StartFunc       func(ctx context.Context) error
	StopFunc        func(ctx context.Context) error
	SendMessageFunc func(ctx context.Context, chargerID, action string, payload json.RawMessage, timeout time.Duration) (*transport.SendResult, error)
}

func NewMockAdapter(name string) *MockAdapter {
	return &MockAdapter{AdapterName: name, Connected: make(map[string]bool)}
}

func (m *MockAdapter) Name() string { return m.AdapterName }

func (m *MockAdapter) Start(ctx context.Context) error {
	if m.StartFunc != nil {
		return m.StartFunc(ctx)
	}
	return nil
}

func (m *MockAdapter) Stop(ctx context.Context) error {
	if m.StopFunc != nil {
		return m.StopFunc(ctx)
	}
	return nil
}

func (m *MockAdapter) SendMessage(ctx context.Context, chargerID, action string, payload json.RawMessage, timeout time.Duration) (*transport.SendResult, error) {
	m.Sent = append(m.Sent, SentMessage{ChargerID: chargerID, Action: action, Payload: payload})
	if m.SendMessageFunc != nil {
		return m.SendMessageFunc(ctx, chargerID, action, payload, timeout)
	}
	return &transport.SendResult{Success: true}, nil
}

func (m *MockAdapter) IsConnected(chargerID string) bool {
	return m.Connected[chargerID]
}

func (m *MockAdapter) SetHandler(h transport.Handler) { m.Handler = h }

// MockTransportRegistry is a mock implementation of transport.Registry.
type MockTransportRegistry struct {
	mu       sync.Mutex
	Attached map[string]string
	Touches  map[string]int
}

func NewMockTransportRegistry() *MockTransportRegistry {
	return &MockTransportRegistry{
		Attached: make(map[string]string),
		Touches:  make(map[string]int),
	}
}

func (m *MockTransportRegistry) Attach(_ context.Context, chargerID, transportName string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Attached[chargerID] = transportName
}

func (m *MockTransportRegistry) Detach(_ context.Context, chargerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Attached, chargerID)
}

func (m *MockTransportRegistry) Touch(_ context.Context, chargerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Touches[chargerID]++
}
