package transport

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/seu-repo/ocpp-csms/internal/domain"
)

// ErrNoTransportStarted is returned by Start when every enabled adapter
// failed; the daemon treats it as fatal.
var ErrNoTransportStarted = errors.New("no transport could start")

// Manager owns the enabled adapters and picks the carrier for each
// outbound call: the caller's preferred transport when it holds the
// charger, then the configured priority order, then store-and-forward
// queueing on the pull transport when nothing is connected.
type Manager struct {
	adapters []Adapter
	byName   map[string]Adapter
	priority []string
	log      *zap.Logger
}

func NewManager(priority []string, log *zap.Logger, adapters ...Adapter) *Manager {
	m := &Manager{
		adapters: adapters,
		byName:   make(map[string]Adapter, len(adapters)),
		priority: priority,
		log:      log,
	}
	for _, a := range adapters {
		m.byName[a.Name()] = a
	}
	if len(m.priority) == 0 {
		m.priority = []string{NameMQTT, NameWebsocket, NameHTTP}
	}
	return m
}

// SetHandler installs the same inbound handler in every adapter, so
// message semantics are identical regardless of carrier.
func (m *Manager) SetHandler(h Handler) {
	for _, a := range m.adapters {
		a.SetHandler(h)
	}
}

// Start brings up every adapter. It fails only when none could start;
// partial startup is logged and tolerated.
func (m *Manager) Start(ctx context.Context) error {
	started := 0
	for _, a := range m.adapters {
		if err := a.Start(ctx); err != nil {
			m.log.Error("Transport failed to start",
				zap.String("transport", a.Name()),
				zap.Error(err),
			)
			continue
		}
		started++
	}
	if started == 0 {
		return ErrNoTransportStarted
	}
	return nil
}

func (m *Manager) Stop(ctx context.Context) {
	for _, a := range m.adapters {
		if err := a.Stop(ctx); err != nil {
			m.log.Warn("Transport stop failed",
				zap.String("transport", a.Name()),
				zap.Error(err),
			)
		}
	}
}

// Adapter returns the named adapter, nil when not enabled.
func (m *Manager) Adapter(name string) Adapter {
	return m.byName[name]
}

// ConnectedVia reports which enabled transport currently holds the
// charger, in priority order.
func (m *Manager) ConnectedVia(chargerID string) (string, bool) {
	for _, name := range m.priority {
		if a, ok := m.byName[name]; ok && a.IsConnected(chargerID) {
			return name, true
		}
	}
	return "", false
}

// IsConnected reports whether any enabled transport holds the charger.
func (m *Manager) IsConnected(chargerID string) bool {
	_, ok := m.ConnectedVia(chargerID)
	return ok
}

// SendMessage resolves a carrier and delivers the call. preferred may be
// empty. When no transport reports the charger connected, the call is
// queued on the pull transport if enabled (it is store-and-forward);
// otherwise ErrChargerNotConnected.
func (m *Manager) SendMessage(ctx context.Context, chargerID, preferred, action string, payload json.RawMessage, timeout time.Duration) (*SendResult, error) {
	if preferred != "" {
		if a, ok := m.byName[preferred]; ok && a.IsConnected(chargerID) {
			return a.SendMessage(ctx, chargerID, action, payload, timeout)
		}
	}

	for _, name := range m.priority {
		a, ok := m.byName[name]
		if !ok || !a.IsConnected(chargerID) {
			continue
		}
		res, err := a.SendMessage(ctx, chargerID, action, payload, timeout)
		if err != nil {
			// A timeout means the charger held the call and never answered;
			// retrying on another carrier would double-deliver. Shutdown
			// is final for every carrier, so failover is pointless.
			if errors.Is(err, domain.ErrTimeout) || errors.Is(err, domain.ErrShuttingDown) {
				return nil, err
			}
			m.log.Warn("Outbound call failed, trying next transport",
				zap.String("charger_id", chargerID),
				zap.String("transport", name),
				zap.String("action", action),
				zap.Error(err),
			)
			continue
		}
		return res, nil
	}

	if a, ok := m.byName[NameHTTP]; ok {
		m.log.Info("Charger not connected, queueing on pull transport",
			zap.String("charger_id", chargerID),
			zap.String("action", action),
		)
		return a.SendMessage(ctx, chargerID, action, payload, timeout)
	}

	return nil, domain.ErrChargerNotConnected
}
