// Package mocks provides func-field test doubles for the ports
// interfaces. A nil func falls back to a recording no-op so tests only
// wire the calls they assert on.
package mocks

import (
	"context"
	"time"

	"github.com/seu-repo/ocpp-csms/internal/domain"
)

// MockChargerRepository is a mock implementation of ports.ChargerRepository.
type MockChargerRepository struct {
	Chargers map[string]*domain.Charger
	Configs  []domain.ChargerConfiguration

	SaveFunc                func(ctx context.Context, charger *domain.Charger) error
	FindByIDFunc            func(ctx context.Context, id string) (*domain.Charger, error)
	ListFunc                func(ctx context.Context, activeOnly bool) ([]domain.Charger, error)
	UpsertConfigurationFunc func(ctx context.Context, cfg *domain.ChargerConfiguration) error
	ListConfigurationsFunc  func(ctx context.Context, chargerID string) ([]domain.ChargerConfiguration, error)
}

func NewMockChargerRepository() *MockChargerRepository {
	return &MockChargerRepository{Chargers: make(map[string]*domain.Charger)}
}

func (m *MockChargerRepository) Save(ctx context.Context, charger *domain.Charger) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, charger)
	}
	m.Chargers[charger.ID] = charger
	return nil
}

func (m *MockChargerRepository) FindByID(ctx context.Context, id string) (*domain.Charger, error) {
	if m.FindByIDFunc != nil {
		return m.FindByIDFunc(ctx, id)
	}
	return m.Chargers[id], nil
}

func (m *MockChargerRepository) List(ctx context.Context, activeOnly bool) ([]domain.Charger, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, activeOnly)
	}
	out := make([]domain.Charger, 0, len(m.Chargers))
	for _, c := range m.Chargers {
		if activeOnly && !c.IsActive {
			continue
		}
		out = append(out, *c)
	}
	return out, nil
}

func (m *MockChargerRepository) UpsertConfiguration(ctx context.Context, cfg *domain.ChargerConfiguration) error {
	if m.UpsertConfigurationFunc != nil {
		return m.UpsertConfigurationFunc(ctx, cfg)
	}
	for i := range m.Configs {
		if m.Configs[i].ChargerID == cfg.ChargerID && m.Configs[i].ConfigKey == cfg.ConfigKey {
			m.Configs[i] = *cfg
			return nil
		}
	}
	m.Configs = append(m.Configs, *cfg)
	return nil
}

func (m *MockChargerRepository) ListConfigurations(ctx context.Context, chargerID string) ([]domain.ChargerConfiguration, error) {
	if m.ListConfigurationsFunc != nil {
		return m.ListConfigurationsFunc(ctx, chargerID)
	}
	var out []domain.ChargerConfiguration
	for _, c := range m.Configs {
		if c.ChargerID == chargerID {
			out = append(out, c)
		}
	}
	return out, nil
}

// MockTransactionRepository is a mock implementation of ports.TransactionRepository.
type MockTransactionRepository struct {
	Transactions map[int64]*domain.Transaction

	SaveFunc                 func(ctx context.Context, tx *domain.Transaction) error
	FindByTransactionIDFunc  func(ctx context.Context, transactionID int64) (*domain.Transaction, error)
	FindOngoingByChargerFunc func(ctx context.Context, chargerID string) (*domain.Transaction, error)
	ListByChargerFunc        func(ctx context.Context, chargerID string, limit int) ([]domain.Transaction, error)
	CountByStatusFunc        func(ctx context.Context, status domain.TransactionStatus) (int64, error)
	EnergyDeliveredSinceFunc func(ctx context.Context, since time.Time) (float64, error)
}

func NewMockTransactionRepository() *MockTransactionRepository {
	return &MockTransactionRepository{Transactions: make(map[int64]*domain.Transaction)}
}

func (m *MockTransactionRepository) Save(ctx context.Context, tx *domain.Transaction) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, tx)
	}
	m.Transactions[tx.TransactionID] = tx
	return nil
}

func (m *MockTransactionRepository) FindByTransactionID(ctx context.Context, transactionID int64) (*domain.Transaction, error) {
	if m.FindByTransactionIDFunc != nil {
		return m.FindByTransactionIDFunc(ctx, transactionID)
	}
	return m.Transactions[transactionID], nil
}

func (m *MockTransactionRepository) FindOngoingByCharger(ctx context.Context, chargerID string) (*domain.Transaction, error) {
	if m.FindOngoingByChargerFunc != nil {
		return m.FindOngoingByChargerFunc(ctx, chargerID)
	}
	for _, tx := range m.Transactions {
		if tx.ChargerID == chargerID && tx.Status == domain.TxOngoing {
			return tx, nil
		}
	}
	return nil, nil
}

func (m *MockTransactionRepository) ListByCharger(ctx context.Context, chargerID string, limit int) ([]domain.Transaction, error) {
	if m.ListByChargerFunc != nil {
		return m.ListByChargerFunc(ctx, chargerID, limit)
	}
	var out []domain.Transaction
	for _, tx := range m.Transactions {
		if tx.ChargerID == chargerID {
			out = append(out, *tx)
		}
	}
	return out, nil
}

func (m *MockTransactionRepository) CountByStatus(ctx context.Context, status domain.TransactionStatus) (int64, error) {
	if m.CountByStatusFunc != nil {
		return m.CountByStatusFunc(ctx, status)
	}
	var n int64
	for _, tx := range m.Transactions {
		if tx.Status == status {
			n++
		}
	}
	return n, nil
}

func (m *MockTransactionRepository) EnergyDeliveredSince(ctx context.Context, since time.Time) (float64, error) {
	if m.EnergyDeliveredSinceFunc != nil {
		return m.EnergyDeliveredSinceFunc(ctx, since)
	}
	return 0, nil
}

// MockOrderRepository is a mock implementation of ports.OrderRepository.
type MockOrderRepository struct {
	Orders map[string]*domain.Order

	SaveFunc                func(ctx context.Context, order *domain.Order) error
	FindByIDFunc            func(ctx context.Context, id string) (*domain.Order, error)
	FindByTransactionIDFunc func(ctx context.Context, transactionID int64) (*domain.Order, error)
	ListFunc                func(ctx context.Context, limit int) ([]domain.Order, error)
}

func NewMockOrderRepository() *MockOrderRepository {
	return &MockOrderRepository{Orders: make(map[string]*domain.Order)}
}

func (m *MockOrderRepository) Save(ctx context.Context, order *domain.Order) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, order)
	}
	m.Orders[order.ID] = order
	return nil
}

func (m *MockOrderRepository) FindByID(ctx context.Context, id string) (*domain.Order, error) {
	if m.FindByIDFunc != nil {
		return m.FindByIDFunc(ctx, id)
	}
	return m.Orders[id], nil
}

func (m *MockOrderRepository) FindByTransactionID(ctx context.Context, transactionID int64) (*domain.Order, error) {
	if m.FindByTransactionIDFunc != nil {
		return m.FindByTransactionIDFunc(ctx, transactionID)
	}
	for _, o := range m.Orders {
		if o.TransactionID == transactionID {
			return o, nil
		}
	}
	return nil, nil
}

func (m *MockOrderRepository) List(ctx context.Context, limit int) ([]domain.Order, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, limit)
	}
	out := make([]domain.Order, 0, len(m.Orders))
	for _, o := range m.Orders {
		out = append(out, *o)
	}
	return out, nil
}

// MockMeterValueRepository is a mock implementation of ports.MeterValueRepository.
type MockMeterValueRepository struct {
	Appended []domain.MeterValue

	AppendFunc            func(ctx context.Context, mv *domain.MeterValue) error
	ListByTransactionFunc func(ctx context.Context, transactionID int64) ([]domain.MeterValue, error)
}

func NewMockMeterValueRepository() *MockMeterValueRepository {
	return &MockMeterValueRepository{}
}

func (m *MockMeterValueRepository) Append(ctx context.Context, mv *domain.MeterValue) error {
	if m.AppendFunc != nil {
		return m.AppendFunc(ctx, mv)
	}
	m.Appended = append(m.Appended, *mv)
	return nil
}

func (m *MockMeterValueRepository) ListByTransaction(ctx context.Context, transactionID int64) ([]domain.MeterValue, error) {
	if m.ListByTransactionFunc != nil {
		return m.ListByTransactionFunc(ctx, transactionID)
	}
	var out []domain.MeterValue
	for _, mv := range m.Appended {
		if mv.TransactionID == transactionID {
			out = append(out, mv)
		}
	}
	return out, nil
}

// MockHistoryRepository is a mock implementation of ports.HistoryRepository.
type MockHistoryRepository struct {
	Heartbeats []domain.HeartbeatEvent
	Statuses   []domain.StatusEvent
	ErrorLogs  []domain.OCPPErrorLog

	AppendHeartbeatFunc func(ctx context.Context, ev *domain.HeartbeatEvent, charger *domain.Charger) error
	LastHeartbeatFunc   func(ctx context.Context, chargerID string) (*domain.HeartbeatEvent, error)
	AppendStatusFunc    func(ctx context.Context, ev *domain.StatusEvent, charger *domain.Charger) error
	LastStatusFunc      func(ctx context.Context, chargerID string) (*domain.StatusEvent, error)
	AppendErrorLogFunc  func(ctx context.Context, entry *domain.OCPPErrorLog) error
	HeartbeatStatsFunc  func(ctx context.Context, chargerID string, since time.Time) (map[domain.HeartbeatHealth]int64, error)
	StatusDurationsFunc func(ctx context.Context, chargerID string, since time.Time) (map[domain.ChargerStatus]float64, error)
}

func NewMockHistoryRepository() *MockHistoryRepository {
	return &MockHistoryRepository{}
}

func (m *MockHistoryRepository) AppendHeartbeat(ctx context.Context, ev *domain.HeartbeatEvent, charger *domain.Charger) error {
	if m.AppendHeartbeatFunc != nil {
		return m.AppendHeartbeatFunc(ctx, ev, charger)
	}
	m.Heartbeats = append(m.Heartbeats, *ev)
	return nil
}

func (m *MockHistoryRepository) LastHeartbeat(ctx context.Context, chargerID string) (*domain.HeartbeatEvent, error) {
	if m.LastHeartbeatFunc != nil {
		return m.LastHeartbeatFunc(ctx, chargerID)
	}
	for i := len(m.Heartbeats) - 1; i >= 0; i-- {
		if m.Heartbeats[i].ChargerID == chargerID {
			ev := m.Heartbeats[i]
			return &ev, nil
		}
	}
	return nil, nil
}

func (m *MockHistoryRepository) AppendStatus(ctx context.Context, ev *domain.StatusEvent, charger *domain.Charger) error {
	if m.AppendStatusFunc != nil {
		return m.AppendStatusFunc(ctx, ev, charger)
	}
	m.Statuses = append(m.Statuses, *ev)
	return nil
}

func (m *MockHistoryRepository) LastStatus(ctx context.Context, chargerID string) (*domain.StatusEvent, error) {
	if m.LastStatusFunc != nil {
		return m.LastStatusFunc(ctx, chargerID)
	}
	for i := len(m.Statuses) - 1; i >= 0; i-- {
		if m.Statuses[i].ChargerID == chargerID {
			ev := m.Statuses[i]
			return &ev, nil
		}
	}
	return nil, nil
}

func (m *MockHistoryRepository) AppendErrorLog(ctx context.Context, entry *domain.OCPPErrorLog) error {
	if m.AppendErrorLogFunc != nil {
		return m.AppendErrorLogFunc(ctx, entry)
	}
	m.ErrorLogs = append(m.ErrorLogs, *entry)
	return nil
}

func (m *MockHistoryRepository) HeartbeatStats(ctx context.Context, chargerID string, since time.Time) (map[domain.HeartbeatHealth]int64, error) {
	if m.HeartbeatStatsFunc != nil {
		return m.HeartbeatStatsFunc(ctx, chargerID, since)
	}
	stats := make(map[domain.HeartbeatHealth]int64)
	for _, ev := range m.Heartbeats {
		if ev.ChargerID == chargerID && !ev.Timestamp.Before(since) {
			stats[ev.Health]++
		}
	}
	return stats, nil
}

func (m *MockHistoryRepository) StatusDurations(ctx context.Context, chargerID string, since time.Time) (map[domain.ChargerStatus]float64, error) {
	if m.StatusDurationsFunc != nil {
		return m.StatusDurationsFunc(ctx, chargerID, since)
	}
	return map[domain.ChargerStatus]float64{}, nil
}
