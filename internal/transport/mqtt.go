package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/seu-repo/ocpp-csms/internal/observability/telemetry"
)

const (
	requestTopicFilter  = "ocpp/+/requests"
	responseTopicFormat = "ocpp/%s/responses"
)

// MQTTOptions configures the broker connection.
type MQTTOptions struct {
	BrokerHost    string
	BrokerPort    int
	ClientID      string
	Username      string
	Password      string
	KeepAlive     time.Duration
	QoS           byte
	SessionWindow time.Duration
}

// MQTTAdapter bridges chargers speaking OCPP over MQTT. Chargers publish
// to ocpp/<id>/requests; the CSMS answers (and initiates calls) on
// ocpp/<id>/responses. Delivery is at-least-once with QoS 1; outbound
// sends return a broker acknowledgement, not a charger response. A
// charger counts as connected for a session window after its last
// observed request.
type MQTTAdapter struct {
	opts    MQTTOptions
	handler Handler
	reg     Registry
	log     *zap.Logger

	client mqtt.Client

	mu       sync.Mutex
	lastSeen map[string]time.Time
}

func NewMQTTAdapter(opts MQTTOptions, reg Registry, log *zap.Logger) *MQTTAdapter {
	if opts.SessionWindow <= 0 {
		opts.SessionWindow = 5 * time.Minute
	}
	if opts.KeepAlive <= 0 {
		opts.KeepAlive = 60 * time.Second
	}
	if opts.ClientID == "" {
		opts.ClientID = "csms-" + fmt.Sprint(time.Now().UnixNano())
	}
	return &MQTTAdapter{
		opts:     opts,
		reg:      reg,
		log:      log,
		lastSeen: make(map[string]time.Time),
	}
}

func (a *MQTTAdapter) Name() string { return NameMQTT }

func (a *MQTTAdapter) SetHandler(h Handler) { a.handler = h }

func (a *MQTTAdapter) Start(ctx context.Context) error {
	broker := fmt.Sprintf("tcp://%s:%d", a.opts.BrokerHost, a.opts.BrokerPort)

	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(a.opts.ClientID).
		SetUsername(a.opts.Username).
		SetPassword(a.opts.Password).
		SetKeepAlive(a.opts.KeepAlive).
		SetAutoReconnect(true).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			a.log.Warn("MQTT connection lost", zap.Error(err))
		}).
		SetOnConnectHandler(func(c mqtt.Client) {
			// Re-subscribe after every (re)connect.
			if token := c.Subscribe(requestTopicFilter, a.opts.QoS, a.onRequest); token.Wait() && token.Error() != nil {
				a.log.Error("MQTT subscribe failed", zap.Error(token.Error()))
			}
		})

	a.client = mqtt.NewClient(opts)
	token := a.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return fmt.Errorf("mqtt transport: connect to %s timed out", broker)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt transport: connect to %s: %w", broker, err)
	}

	a.log.Info("MQTT transport connected",
		zap.String("broker", broker),
		zap.String("topic_filter", requestTopicFilter),
		zap.Uint8("qos", a.opts.QoS),
	)
	return nil
}

func (a *MQTTAdapter) Stop(ctx context.Context) error {
	if a.client != nil && a.client.IsConnected() {
		a.client.Disconnect(250)
	}
	return nil
}

func (a *MQTTAdapter) onRequest(_ mqtt.Client, msg mqtt.Message) {
	parts := strings.Split(msg.Topic(), "/")
	if len(parts) != 3 {
		a.log.Warn("Unexpected MQTT topic", zap.String("topic", msg.Topic()))
		return
	}
	chargerID := parts[1]

	var frame struct {
		Action  string          `json:"action"`
		Payload json.RawMessage `json:"payload"`
		From    string          `json:"from"`
	}
	if err := json.Unmarshal(msg.Payload(), &frame); err != nil || frame.Action == "" {
		a.log.Warn("Malformed MQTT frame",
			zap.String("charger_id", chargerID),
			zap.Error(err),
		)
		return
	}
	if frame.From == "csms" {
		return
	}

	a.touch(chargerID)

	result, err := a.handler(context.Background(), chargerID, frame.Action, frame.Payload)
	if err != nil {
		result = map[string]string{"error": err.Error()}
	}

	out, err := json.Marshal(map[string]any{"action": frame.Action, "response": result})
	if err != nil {
		a.log.Error("Failed to serialize MQTT response",
			zap.String("charger_id", chargerID),
			zap.String("action", frame.Action),
			zap.Error(err),
		)
		return
	}

	topic := fmt.Sprintf(responseTopicFormat, chargerID)
	token := a.client.Publish(topic, a.opts.QoS, false, out)
	if token.WaitTimeout(5*time.Second) && token.Error() != nil {
		a.log.Error("Failed to publish MQTT response",
			zap.String("topic", topic),
			zap.Error(token.Error()),
		)
	}
	telemetry.OCPPMessagesTotal.WithLabelValues(frame.Action, "outbound").Inc()
}

func (a *MQTTAdapter) touch(chargerID string) {
	a.mu.Lock()
	_, known := a.lastSeen[chargerID]
	a.lastSeen[chargerID] = time.Now()
	a.mu.Unlock()

	if known {
		a.reg.Touch(context.Background(), chargerID)
	} else {
		a.reg.Attach(context.Background(), chargerID, NameMQTT)
		telemetry.ConnectedChargers.WithLabelValues(NameMQTT).Inc()
		a.log.Info("Charger connected via mqtt", zap.String("charger_id", chargerID))
	}
}

func (a *MQTTAdapter) IsConnected(chargerID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	seen, ok := a.lastSeen[chargerID]
	return ok && time.Since(seen) <= a.opts.SessionWindow
}

// SendMessage publishes {action, payload, from: "csms"} to the charger's
// responses topic. Success means the broker accepted the publish; the
// charger's reply, if any, comes back later on the requests topic.
func (a *MQTTAdapter) SendMessage(ctx context.Context, chargerID, action string, payload json.RawMessage, timeout time.Duration) (*SendResult, error) {
	if a.client == nil || !a.client.IsConnected() {
		return nil, fmt.Errorf("mqtt transport: not connected to broker")
	}

	out, err := json.Marshal(map[string]any{
		"action":  action,
		"payload": payload,
		"from":    "csms",
	})
	if err != nil {
		return nil, fmt.Errorf("mqtt transport: marshal frame: %w", err)
	}

	topic := fmt.Sprintf(responseTopicFormat, chargerID)
	token := a.client.Publish(topic, a.opts.QoS, false, out)
	if !token.WaitTimeout(timeout) {
		return nil, fmt.Errorf("mqtt transport: publish to %s timed out", topic)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt transport: publish to %s: %w", topic, err)
	}
	telemetry.OCPPMessagesTotal.WithLabelValues(action, "outbound").Inc()

	return &SendResult{Success: true, Queued: true}, nil
}
