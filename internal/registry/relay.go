package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/seu-repo/ocpp-csms/internal/domain"
)

const (
	routeChannelPrefix = "ocpp:route:"
	responseKeyPrefix  = "ocpp:response:"
)

// envelope travels over the ocpp:route:<chargerID> pub/sub channel from
// the requesting node to the node holding the charger.
type envelope struct {
	MessageID string          `json:"message_id"`
	ChargerID string          `json:"charger_id"`
	Action    string          `json:"action"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	FromNode  string          `json:"from_node"`
	Deadline  time.Time       `json:"deadline"`
}

type relayResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// ExecFunc runs an outbound call on a locally attached charger and
// returns the charger's response.
type ExecFunc func(ctx context.Context, chargerID, action string, payload json.RawMessage, timeout time.Duration) (json.RawMessage, error)

// Relay carries operator calls between nodes: the requesting side
// publishes an envelope and polls the response key; the owning side
// subscribes to ocpp:route:*, executes calls for its own chargers and
// writes the response under a short-TTL key.
type Relay struct {
	rdb          *redis.Client
	nodeID       string
	pollInterval time.Duration
	log          *zap.Logger
}

func NewRelay(rdb *redis.Client, nodeID string, pollInterval time.Duration, log *zap.Logger) *Relay {
	if pollInterval <= 0 {
		pollInterval = 100 * time.Millisecond
	}
	return &Relay{rdb: rdb, nodeID: nodeID, pollInterval: pollInterval, log: log}
}

// Send forwards one outbound call to whichever node holds chargerID and
// waits for the response until timeout.
func (r *Relay) Send(ctx context.Context, chargerID, action string, payload json.RawMessage, timeout time.Duration) (json.RawMessage, error) {
	msgID := uuid.NewString()
	deadline := time.Now().Add(timeout)

	env := envelope{
		MessageID: msgID,
		ChargerID: chargerID,
		Action:    action,
		Payload:   payload,
		FromNode:  r.nodeID,
		Deadline:  deadline,
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("relay: marshal envelope: %w", err)
	}

	n, err := r.rdb.Publish(ctx, routeChannelPrefix+chargerID, data).Result()
	if err != nil {
		return nil, fmt.Errorf("relay: publish route: %w", err)
	}
	if n == 0 {
		return nil, domain.ErrChargerNotConnected
	}

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			if time.Now().After(deadline) {
				return nil, domain.ErrTimeout
			}
			raw, err := r.rdb.Get(ctx, responseKeyPrefix+msgID).Bytes()
			if err == redis.Nil {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("relay: poll response: %w", err)
			}
			r.rdb.Del(ctx, responseKeyPrefix+msgID)
			var resp relayResponse
			if err := json.Unmarshal(raw, &resp); err != nil {
				return nil, fmt.Errorf("relay: decode response: %w", err)
			}
			if !resp.Success {
				return nil, fmt.Errorf("relay: remote node: %s", resp.Error)
			}
			return resp.Data, nil
		}
	}
}

// Serve consumes the route channels and executes calls addressed to
// chargers attached to this node. Blocks until ctx is cancelled.
func (r *Relay) Serve(ctx context.Context, isLocal func(chargerID string) bool, exec ExecFunc) error {
	sub := r.rdb.PSubscribe(ctx, routeChannelPrefix+"*")
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			chargerID := strings.TrimPrefix(msg.Channel, routeChannelPrefix)
			if !isLocal(chargerID) {
				continue
			}
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				r.log.Warn("Malformed relay envelope", zap.String("channel", msg.Channel), zap.Error(err))
				continue
			}
			if env.FromNode == r.nodeID {
				continue
			}
			go r.handle(ctx, env, exec)
		}
	}
}

func (r *Relay) handle(ctx context.Context, env envelope, exec ExecFunc) {
	timeout := time.Until(env.Deadline)
	if timeout <= 0 {
		return
	}

	var resp relayResponse
	data, err := exec(ctx, env.ChargerID, env.Action, env.Payload, timeout)
	if err != nil {
		resp = relayResponse{Success: false, Error: err.Error()}
	} else {
		resp = relayResponse{Success: true, Data: data}
	}

	raw, err := json.Marshal(resp)
	if err != nil {
		return
	}
	// The requester polls until its deadline; one extra second covers the
	// final poll.
	ttl := timeout + time.Second
	if err := r.rdb.Set(ctx, responseKeyPrefix+env.MessageID, raw, ttl).Err(); err != nil {
		r.log.Warn("Failed to write relay response",
			zap.String("message_id", env.MessageID),
			zap.Error(err),
		)
	}
}
