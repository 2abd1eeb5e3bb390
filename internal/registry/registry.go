// Package registry maps charger ids to the transport that currently
// holds them, locally and (in cluster mode) across nodes through a
// shared Redis registry.
package registry

import (
	"crypto/rand"
	"encoding/hex"
	"os"
	"sync"
	"time"
)

// Connection is the handle stored per attached charger.
type Connection struct {
	ChargerID   string    `json:"charger_id"`
	Transport   string    `json:"transport"`
	ConnectedAt time.Time `json:"connected_at"`
	LastSeen    time.Time `json:"last_seen"`
}

// Local is the single-node registry: a guarded map from charger id to
// its connection handle.
type Local struct {
	mu    sync.RWMutex
	conns map[string]Connection
}

func NewLocal() *Local {
	return &Local{conns: make(map[string]Connection)}
}

func (l *Local) Attach(chargerID, transport string) {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	if existing, ok := l.conns[chargerID]; ok && existing.Transport == transport {
		existing.LastSeen = now
		l.conns[chargerID] = existing
		return
	}
	l.conns[chargerID] = Connection{
		ChargerID:   chargerID,
		Transport:   transport,
		ConnectedAt: now,
		LastSeen:    now,
	}
}

func (l *Local) Detach(chargerID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.conns, chargerID)
}

func (l *Local) Touch(chargerID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if c, ok := l.conns[chargerID]; ok {
		c.LastSeen = time.Now()
		l.conns[chargerID] = c
	}
}

func (l *Local) Lookup(chargerID string) (Connection, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	c, ok := l.conns[chargerID]
	return c, ok
}

func (l *Local) List() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ids := make([]string, 0, len(l.conns))
	for id := range l.conns {
		ids = append(ids, id)
	}
	return ids
}

func (l *Local) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.conns)
}

// GenerateNodeID builds a cluster-unique node identity of the form
// <hostname>-<8 hex>.
func GenerateNodeID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "node"
	}
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return host + "-00000000"
	}
	return host + "-" + hex.EncodeToString(buf)
}
