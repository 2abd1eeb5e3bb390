package mocks

import (
	"context"
	"encoding/json"
	"time"

	"github.com/seu-repo/ocpp-csms/internal/domain"
	"github.com/seu-repo/ocpp-csms/internal/ports"
)

// MockChargingService is a mock implementation of ports.ChargingService.
type MockChargingService struct {
	StartFunc            func(ctx context.Context, in ports.StartTransactionInput) (*domain.Transaction, error)
	StopFunc             func(ctx context.Context, in ports.StopTransactionInput) (*domain.Transaction, error)
	RecordMeterValueFunc func(ctx context.Context, mv *domain.MeterValue) error
	OngoingFunc          func(ctx context.Context, chargerID string) (*domain.Transaction, error)

	StartCalls []ports.StartTransactionInput
	StopCalls  []ports.StopTransactionInput
}

func (m *MockChargingService) Start(ctx context.Context, in ports.StartTransactionInput) (*domain.Transaction, error) {
	m.StartCalls = append(m.StartCalls, in)
	if m.StartFunc != nil {
		return m.StartFunc(ctx, in)
	}
	txID := in.TransactionID
	if txID == 0 {
		txID = time.Now().Unix()
	}
	return &domain.Transaction{
		TransactionID:  txID,
		ChargerID:      in.ChargerID,
		IDTag:          in.IDTag,
		MeterStart:     in.MeterStart,
		StartTime:      in.StartTime,
		ChargingRateKW: in.ChargingRateKW,
		PricePerKWh:    in.PricePerKWh,
		Status:         domain.TxOngoing,
		Simulated:      in.Simulated,
	}, nil
}

func (m *MockChargingService) Stop(ctx context.Context, in ports.StopTransactionInput) (*domain.Transaction, error) {
	m.StopCalls = append(m.StopCalls, in)
	if m.StopFunc != nil {
		return m.StopFunc(ctx, in)
	}
	return &domain.Transaction{
		TransactionID: in.TransactionID,
		ChargerID:     in.ChargerID,
		Status:        domain.TxCompleted,
	}, nil
}

func (m *MockChargingService) RecordMeterValue(ctx context.Context, mv *domain.MeterValue) error {
	if m.RecordMeterValueFunc != nil {
		return m.RecordMeterValueFunc(ctx, mv)
	}
	return nil
}

func (m *MockChargingService) Ongoing(ctx context.Context, chargerID string) (*domain.Transaction, error) {
	if m.OngoingFunc != nil {
		return m.OngoingFunc(ctx, chargerID)
	}
	return nil, nil
}

// MockCommandService is a mock implementation of ports.CommandService.
type MockCommandService struct {
	SendFunc        func(ctx context.Context, chargerID, action string, payload json.RawMessage, timeout time.Duration) (*ports.CommandResult, error)
	RemoteStartFunc func(ctx context.Context, chargerID, idTag string, connectorID int) (*ports.CommandResult, error)
	RemoteStopFunc  func(ctx context.Context, chargerID string, transactionID int64) (*ports.CommandResult, error)
}

func (m *MockCommandService) Send(ctx context.Context, chargerID, action string, payload json.RawMessage, timeout time.Duration) (*ports.CommandResult, error) {
	if m.SendFunc != nil {
		return m.SendFunc(ctx, chargerID, action, payload, timeout)
	}
	return &ports.CommandResult{Success: true}, nil
}

func (m *MockCommandService) RemoteStart(ctx context.Context, chargerID, idTag string, connectorID int) (*ports.CommandResult, error) {
	if m.RemoteStartFunc != nil {
		return m.RemoteStartFunc(ctx, chargerID, idTag, connectorID)
	}
	return &ports.CommandResult{Success: true}, nil
}

func (m *MockCommandService) RemoteStop(ctx context.Context, chargerID string, transactionID int64) (*ports.CommandResult, error) {
	if m.RemoteStopFunc != nil {
		return m.RemoteStopFunc(ctx, chargerID, transactionID)
	}
	return &ports.CommandResult{Success: true}, nil
}

// RecordedStatusChange captures one RecordStatusChange call.
type RecordedStatusChange struct {
	ChargerID string
	Status    domain.ChargerStatus
	ErrorCode string
}

// MockHistoryRecorder is a mock implementation of ports.HistoryRecorder.
type MockHistoryRecorder struct {
	RecordHeartbeatFunc    func(ctx context.Context, charger *domain.Charger, at time.Time) (*domain.HeartbeatEvent, error)
	RecordStatusChangeFunc func(ctx context.Context, charger *domain.Charger, newStatus domain.ChargerStatus, errorCode string, at time.Time) (*domain.StatusEvent, error)
	LogProtocolErrorFunc   func(ctx context.Context, chargerID, action, code, message string, payload []byte)

	StatusChanges []RecordedStatusChange
	ErrorLogs     []domain.OCPPErrorLog
}

func (m *MockHistoryRecorder) RecordHeartbeat(ctx context.Context, charger *domain.Charger, at time.Time) (*domain.HeartbeatEvent, error) {
	if m.RecordHeartbeatFunc != nil {
		return m.RecordHeartbeatFunc(ctx, charger, at)
	}
	charger.TouchSeen(at)
	return &domain.HeartbeatEvent{ChargerID: charger.ID, Timestamp: at, Health: domain.HealthNormal}, nil
}

func (m *MockHistoryRecorder) RecordStatusChange(ctx context.Context, charger *domain.Charger, newStatus domain.ChargerStatus, errorCode string, at time.Time) (*domain.StatusEvent, error) {
	m.StatusChanges = append(m.StatusChanges, RecordedStatusChange{
		ChargerID: charger.ID,
		Status:    newStatus,
		ErrorCode: errorCode,
	})
	if m.RecordStatusChangeFunc != nil {
		return m.RecordStatusChangeFunc(ctx, charger, newStatus, errorCode, at)
	}
	prev := charger.Status
	charger.Status = newStatus
	return &domain.StatusEvent{ChargerID: charger.ID, Timestamp: at, Status: newStatus, PreviousStatus: prev}, nil
}

func (m *MockHistoryRecorder) LogProtocolError(ctx context.Context, chargerID, action, code, message string, payload []byte) {
	if m.LogProtocolErrorFunc != nil {
		m.LogProtocolErrorFunc(ctx, chargerID, action, code, message, payload)
		return
	}
	m.ErrorLogs = append(m.ErrorLogs, domain.OCPPErrorLog{
		ChargerID:    chargerID,
		Action:       action,
		ErrorCode:    code,
		ErrorMessage: message,
	})
}
