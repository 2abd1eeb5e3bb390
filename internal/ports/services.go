package ports

import (
	"context"
	"encoding/json"
	"time"

	"github.com/seu-repo/ocpp-csms/internal/domain"
)

// StartTransactionInput carries everything a StartTransaction (or a
// simulated remote start) needs to open the ledger entry.
type StartTransactionInput struct {
	ChargerID      string
	ConnectorID    int
	IDTag          string
	UserID         string
	TransactionID  int64 // 0 = allocate from the start timestamp
	MeterStart     int64
	StartTime      time.Time // zero = now
	ChargingRateKW float64   // tariff snapshot taken at start
	PricePerKWh    float64
	Simulated      bool
}

// StopTransactionInput identifies the transaction to close. TransactionID
// 0 means "whatever is ongoing on this charger".
type StopTransactionInput struct {
	ChargerID     string
	TransactionID int64
	MeterStop     *int64
	StopTime      time.Time // zero = now
}

// ChargingService owns the transaction + order ledger.
type ChargingService interface {
	Start(ctx context.Context, in StartTransactionInput) (*domain.Transaction, error)
	Stop(ctx context.Context, in StopTransactionInput) (*domain.Transaction, error)
	RecordMeterValue(ctx context.Context, mv *domain.MeterValue) error
	Ongoing(ctx context.Context, chargerID string) (*domain.Transaction, error)
}

// CommandResult is what the admin layer gets back from an outbound call.
type CommandResult struct {
	Success   bool            `json:"success"`
	Queued    bool            `json:"queued,omitempty"`
	RequestID string          `json:"request_id,omitempty"`
	Simulated bool            `json:"simulated,omitempty"`
	Details   json.RawMessage `json:"details,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// CommandService drives chargers from the operator side, resolving the
// transport (possibly on another node) that currently holds each one.
type CommandService interface {
	Send(ctx context.Context, chargerID, action string, payload json.RawMessage, timeout time.Duration) (*CommandResult, error)
	RemoteStart(ctx context.Context, chargerID, idTag string, connectorID int) (*CommandResult, error)
	RemoteStop(ctx context.Context, chargerID string, transactionID int64) (*CommandResult, error)
}

// HistoryRecorder appends to the heartbeat and status streams, deriving
// the interval / held-duration fields from the previous event.
type HistoryRecorder interface {
	RecordHeartbeat(ctx context.Context, charger *domain.Charger, at time.Time) (*domain.HeartbeatEvent, error)
	RecordStatusChange(ctx context.Context, charger *domain.Charger, newStatus domain.ChargerStatus, errorCode string, at time.Time) (*domain.StatusEvent, error)
	LogProtocolError(ctx context.Context, chargerID, action, code, message string, payload []byte)
}

// ChargerStatistics is the on-demand aggregation served to operators.
type ChargerStatistics struct {
	ChargerID       string                           `json:"charger_id"`
	TotalSessions   int64                            `json:"total_sessions"`
	OngoingSessions int64                            `json:"ongoing_sessions"`
	EnergyKWh24h    float64                          `json:"energy_kwh_24h"`
	HeartbeatHealth map[domain.HeartbeatHealth]int64 `json:"heartbeat_health"`
	StatusDurations map[domain.ChargerStatus]float64 `json:"status_durations_seconds"`
}

// ChargerService is the operator administration surface over chargers.
type ChargerService interface {
	Enroll(ctx context.Context, charger *domain.Charger) error
	Get(ctx context.Context, id string) (*domain.Charger, error)
	List(ctx context.Context, activeOnly bool) ([]domain.Charger, error)
	UpdateLocation(ctx context.Context, id string, lat, lon float64, address string) error
	UpdatePricing(ctx context.Context, id string, chargingRateKW, pricePerKWh float64) error
	SetActive(ctx context.Context, id string, active bool) error
	Statistics(ctx context.Context, id string, since time.Time) (*ChargerStatistics, error)
}
