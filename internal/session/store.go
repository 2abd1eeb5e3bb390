// Package session holds the in-memory per-charger session state: the
// authoritative view of authorization, the live transaction/order pair
// and the latest meter reading. The persisted charger row is derived
// from this view; on process restart sessions rebuild from inbound
// traffic.
package session

import (
	"sync"
	"time"

	"github.com/seu-repo/ocpp-csms/internal/domain"
)

// State is the value-typed session of one charger. TransactionID and
// OrderID are set and cleared together.
type State struct {
	Status        domain.ChargerStatus
	Authorized    bool
	TransactionID int64 // 0 = none
	OrderID       string
	MeterStart    int64
	MeterWh       int64
	StartedAt     time.Time
	LastSeen      time.Time
}

// Charging reports whether a transaction is live on this session.
func (s State) Charging() bool {
	return s.TransactionID != 0
}

type Store struct {
	mu     sync.RWMutex
	states map[string]*State
}

func NewStore() *Store {
	return &Store{states: make(map[string]*State)}
}

func (st *Store) get(id string) *State {
	s, ok := st.states[id]
	if !ok {
		s = &State{Status: domain.StatusUnknown}
		st.states[id] = s
	}
	return s
}

// Get returns a snapshot of the charger's session; chargers never seen
// report StatusUnknown.
func (st *Store) Get(id string) State {
	st.mu.RLock()
	defer st.mu.RUnlock()
	if s, ok := st.states[id]; ok {
		return *s
	}
	return State{Status: domain.StatusUnknown}
}

// Touch advances LastSeen, never moving it backwards.
func (st *Store) Touch(id string, at time.Time) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s := st.get(id)
	if at.After(s.LastSeen) {
		s.LastSeen = at
	}
}

func (st *Store) SetAuthorized(id string, authorized bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.get(id).Authorized = authorized
}

// SetStatus records a status transition and returns the previous state.
// A transition to Available clears any live transaction/order pair: this
// is the repair path for chargers that reboot mid-transaction and never
// send StopTransaction. The cleared return carries the abandoned
// transaction id, 0 when nothing was cleared.
func (st *Store) SetStatus(id string, status domain.ChargerStatus) (prev State, cleared int64) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s := st.get(id)
	prev = *s
	s.Status = status
	if status == domain.StatusAvailable && s.TransactionID != 0 {
		cleared = s.TransactionID
		s.TransactionID = 0
		s.OrderID = ""
		s.MeterStart = 0
		s.MeterWh = 0
		s.StartedAt = time.Time{}
	}
	return prev, cleared
}

// BeginTransaction binds a transaction/order pair to the session. Fails
// with ErrConcurrentTx when one is already live.
func (st *Store) BeginTransaction(id string, transactionID int64, orderID string, meterStart int64) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	s := st.get(id)
	if s.TransactionID != 0 {
		return domain.ErrConcurrentTx
	}
	s.TransactionID = transactionID
	s.OrderID = orderID
	s.MeterStart = meterStart
	s.MeterWh = meterStart
	s.StartedAt = time.Now()
	s.Status = domain.StatusCharging
	return nil
}

// EndTransaction clears the live pair and returns the final meter
// reading. Idempotent; ok is false when no transaction was live.
func (st *Store) EndTransaction(id string) (meterWh int64, ok bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s := st.get(id)
	if s.TransactionID == 0 {
		return 0, false
	}
	meterWh = s.MeterWh
	s.TransactionID = 0
	s.OrderID = ""
	s.MeterStart = 0
	s.MeterWh = 0
	s.StartedAt = time.Time{}
	s.Status = domain.StatusAvailable
	return meterWh, true
}

// UpdateMeter records a meter sample. Within a transaction the register
// is monotonic: lower values are rejected silently.
func (st *Store) UpdateMeter(id string, wh int64) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	s := st.get(id)
	if wh < s.MeterWh {
		return false
	}
	s.MeterWh = wh
	return true
}

// MarkOffline flags a charger whose transport was lost. The session's
// transaction survives; a reconnecting charger reports its real state.
func (st *Store) MarkOffline(id string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.get(id).Status = domain.StatusOffline
}

// Forget drops the session entirely. Used by tests and by operator
// deactivation.
func (st *Store) Forget(id string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.states, id)
}
