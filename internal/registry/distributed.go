package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	connectionKeyPrefix = "ocpp:connection:"
	serverKeyPrefix     = "ocpp:server:"
)

// record is the JSON stored under ocpp:connection:<id>. Only the node
// whose local registry holds the charger ever writes that key.
type record struct {
	ChargerID   string    `json:"charger_id"`
	NodeID      string    `json:"node_id"`
	ConnectedAt time.Time `json:"connected_at"`
	LastSeen    time.Time `json:"last_seen"`
}

// Distributed layers a shared Redis registry over the local one so any
// node can answer "who owns charger X". Entries carry a TTL refreshed on
// every inbound frame; a crashed node's claims fade within one TTL
// window.
type Distributed struct {
	local  *Local
	rdb    *redis.Client
	nodeID string
	ttl    time.Duration
	log    *zap.Logger
}

func NewDistributed(local *Local, rdb *redis.Client, nodeID string, ttl time.Duration, log *zap.Logger) *Distributed {
	if nodeID == "" {
		nodeID = GenerateNodeID()
	}
	return &Distributed{local: local, rdb: rdb, nodeID: nodeID, ttl: ttl, log: log}
}

func (d *Distributed) NodeID() string { return d.nodeID }

func (d *Distributed) Attach(ctx context.Context, chargerID, transport string) {
	d.local.Attach(chargerID, transport)
	now := time.Now()
	conn, _ := d.local.Lookup(chargerID)
	rec := record{
		ChargerID:   chargerID,
		NodeID:      d.nodeID,
		ConnectedAt: conn.ConnectedAt,
		LastSeen:    now,
	}
	d.publish(ctx, chargerID, rec)
}

// Touch refreshes both the local handle and the shared-registry TTL.
func (d *Distributed) Touch(ctx context.Context, chargerID string) {
	d.local.Touch(chargerID)
	conn, ok := d.local.Lookup(chargerID)
	if !ok {
		return
	}
	rec := record{
		ChargerID:   chargerID,
		NodeID:      d.nodeID,
		ConnectedAt: conn.ConnectedAt,
		LastSeen:    time.Now(),
	}
	d.publish(ctx, chargerID, rec)
}

func (d *Distributed) publish(ctx context.Context, chargerID string, rec record) {
	data, err := json.Marshal(rec)
	if err != nil {
		return
	}
	pipe := d.rdb.Pipeline()
	pipe.Set(ctx, connectionKeyPrefix+chargerID, data, d.ttl)
	pipe.SAdd(ctx, serverKeyPrefix+d.nodeID, chargerID)
	pipe.Expire(ctx, serverKeyPrefix+d.nodeID, d.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		d.log.Warn("Failed to refresh shared connection registry",
			zap.String("charger_id", chargerID),
			zap.Error(err),
		)
	}
}

func (d *Distributed) Detach(ctx context.Context, chargerID string) {
	if _, ok := d.local.Lookup(chargerID); !ok {
		return
	}
	d.local.Detach(chargerID)
	pipe := d.rdb.Pipeline()
	pipe.Del(ctx, connectionKeyPrefix+chargerID)
	pipe.SRem(ctx, serverKeyPrefix+d.nodeID, chargerID)
	if _, err := pipe.Exec(ctx); err != nil {
		d.log.Warn("Failed to remove shared connection record",
			zap.String("charger_id", chargerID),
			zap.Error(err),
		)
	}
}

// IsLocal reports whether this node's transports hold the charger.
func (d *Distributed) IsLocal(chargerID string) bool {
	_, ok := d.local.Lookup(chargerID)
	return ok
}

// Owner resolves the node currently holding the charger: the local map
// first, then the shared registry. Empty string means nobody.
func (d *Distributed) Owner(ctx context.Context, chargerID string) (string, error) {
	if d.IsLocal(chargerID) {
		return d.nodeID, nil
	}
	data, err := d.rdb.Get(ctx, connectionKeyPrefix+chargerID).Bytes()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("registry: lookup %s: %w", chargerID, err)
	}
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return "", fmt.Errorf("registry: decode record for %s: %w", chargerID, err)
	}
	return rec.NodeID, nil
}

// Shutdown drops every claim this node published.
func (d *Distributed) Shutdown(ctx context.Context) {
	for _, id := range d.local.List() {
		d.rdb.Del(ctx, connectionKeyPrefix+id)
	}
	d.rdb.Del(ctx, serverKeyPrefix+d.nodeID)
}
