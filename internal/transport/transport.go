// Package transport terminates the three OCPP carriers (websocket,
// HTTP pull, MQTT) and normalizes every inbound frame to a
// (chargerID, action, payload) triple handed to a shared handler.
package transport

import (
	"context"
	"encoding/json"
	"time"
)

// Carrier names, used in configuration, registry records and metrics.
const (
	NameWebsocket = "websocket"
	NameHTTP      = "http"
	NameMQTT      = "mqtt"
)

// Handler processes one inbound frame and returns the protocol response
// object to serialize back on the carrier.
type Handler func(ctx context.Context, chargerID, action string, payload json.RawMessage) (any, error)

// SendResult reports the outcome of an outbound call. Data is set when
// the carrier produced a synchronous response; Queued is set by
// store-and-forward carriers where the charger will pick the call up on
// its next poll.
type SendResult struct {
	Success   bool            `json:"success"`
	Queued    bool            `json:"queued,omitempty"`
	RequestID string          `json:"request_id,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Adapter is the capability set every carrier implements. SendMessage
// blocks until response, queueing, or timeout.
type Adapter interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	SendMessage(ctx context.Context, chargerID, action string, payload json.RawMessage, timeout time.Duration) (*SendResult, error)
	IsConnected(chargerID string) bool
	SetHandler(h Handler)
}

// Registry is the slice of the connection registry the adapters touch.
type Registry interface {
	Attach(ctx context.Context, chargerID, transport string)
	Detach(ctx context.Context, chargerID string)
	Touch(ctx context.Context, chargerID string)
}
