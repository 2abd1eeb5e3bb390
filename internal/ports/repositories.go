package ports

import (
	"context"
	"time"

	"github.com/seu-repo/ocpp-csms/internal/domain"
)

// Repositories return (nil, nil) when a record does not exist; callers
// decide whether absence is an error.

type ChargerRepository interface {
	Save(ctx context.Context, charger *domain.Charger) error
	FindByID(ctx context.Context, id string) (*domain.Charger, error)
	List(ctx context.Context, activeOnly bool) ([]domain.Charger, error)
	UpsertConfiguration(ctx context.Context, cfg *domain.ChargerConfiguration) error
	ListConfigurations(ctx context.Context, chargerID string) ([]domain.ChargerConfiguration, error)
}

type TransactionRepository interface {
	Save(ctx context.Context, tx *domain.Transaction) error
	FindByTransactionID(ctx context.Context, transactionID int64) (*domain.Transaction, error)
	FindOngoingByCharger(ctx context.Context, chargerID string) (*domain.Transaction, error)
	ListByCharger(ctx context.Context, chargerID string, limit int) ([]domain.Transaction, error)
	CountByStatus(ctx context.Context, status domain.TransactionStatus) (int64, error)
	EnergyDeliveredSince(ctx context.Context, since time.Time) (float64, error)
}

type OrderRepository interface {
	Save(ctx context.Context, order *domain.Order) error
	FindByID(ctx context.Context, id string) (*domain.Order, error)
	FindByTransactionID(ctx context.Context, transactionID int64) (*domain.Order, error)
	List(ctx context.Context, limit int) ([]domain.Order, error)
}

type MeterValueRepository interface {
	Append(ctx context.Context, mv *domain.MeterValue) error
	ListByTransaction(ctx context.Context, transactionID int64) ([]domain.MeterValue, error)
}

// HistoryRepository owns the append-only event streams. Appends that carry
// a charger row update run both writes in one database transaction so the
// derived interval/duration stays consistent with the charger record.
type HistoryRepository interface {
	AppendHeartbeat(ctx context.Context, ev *domain.HeartbeatEvent, charger *domain.Charger) error
	LastHeartbeat(ctx context.Context, chargerID string) (*domain.HeartbeatEvent, error)
	AppendStatus(ctx context.Context, ev *domain.StatusEvent, charger *domain.Charger) error
	LastStatus(ctx context.Context, chargerID string) (*domain.StatusEvent, error)
	AppendErrorLog(ctx context.Context, entry *domain.OCPPErrorLog) error
	HeartbeatStats(ctx context.Context, chargerID string, since time.Time) (map[domain.HeartbeatHealth]int64, error)
	StatusDurations(ctx context.Context, chargerID string, since time.Time) (map[domain.ChargerStatus]float64, error)
}
