package charger

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/seu-repo/ocpp-csms/internal/domain"
	"github.com/seu-repo/ocpp-csms/internal/mocks"
	"github.com/seu-repo/ocpp-csms/internal/ports"
)

func newTestLogger() *zap.Logger {
	logger, _ := zap.NewDevelopment()
	return logger
}

func newTestService() (ports.ChargerService, *mocks.MockChargerRepository, *mocks.MockTransactionRepository, *mocks.MockHistoryRepository) {
	chargers := mocks.NewMockChargerRepository()
	transactions := mocks.NewMockTransactionRepository()
	history := mocks.NewMockHistoryRepository()
	return NewService(chargers, transactions, history, newTestLogger()), chargers, transactions, history
}

func TestEnroll_NewCharger(t *testing.T) {
	// Arrange
	service, chargers, _, _ := newTestService()

	// Act
	err := service.Enroll(context.Background(), &domain.Charger{
		ID:             "CP-01",
		Vendor:         "ABB",
		ChargingRateKW: 11.0,
		PricePerKWh:    3000,
	})

	// Assert
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	saved := chargers.Chargers["CP-01"]
	if saved == nil {
		t.Fatal("expected charger saved")
	}
	if !saved.IsActive {
		t.Error("expected charger active after enrollment")
	}
	if saved.Status != domain.StatusUnknown {
		t.Errorf("expected Unknown status before first boot, got %s", saved.Status)
	}
}

func TestEnroll_ReEnrollKeepsDeviceIdentity(t *testing.T) {
	// Arrange: the charger already booted and reported its firmware
	service, chargers, _, _ := newTestService()
	chargers.Chargers["CP-01"] = &domain.Charger{
		ID:              "CP-01",
		Vendor:          "ABB",
		FirmwareVersion: "1.4.2",
		Status:          domain.StatusAvailable,
		ChargingRateKW:  7.0,
	}

	// Act: operator re-enrolls with a new tariff
	err := service.Enroll(context.Background(), &domain.Charger{
		ID:             "CP-01",
		ChargingRateKW: 22.0,
		PricePerKWh:    3500,
	})

	// Assert
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	saved := chargers.Chargers["CP-01"]
	if saved.ChargingRateKW != 22.0 {
		t.Errorf("expected tariff updated, got %v", saved.ChargingRateKW)
	}
	if saved.FirmwareVersion != "1.4.2" || saved.Status != domain.StatusAvailable {
		t.Error("expected device-reported fields untouched by re-enrollment")
	}
}

func TestGet_NotFound(t *testing.T) {
	// Arrange
	service, _, _, _ := newTestService()

	// Act
	_, err := service.Get(context.Background(), "CP-404")

	// Assert
	if !errors.Is(err, domain.ErrChargerNotFound) {
		t.Fatalf("expected ErrChargerNotFound, got %v", err)
	}
}

func TestUpdatePricing_RejectsInvalidValues(t *testing.T) {
	// Arrange
	service, chargers, _, _ := newTestService()
	chargers.Chargers["CP-01"] = &domain.Charger{ID: "CP-01", IsActive: true}

	// Act / Assert
	if err := service.UpdatePricing(context.Background(), "CP-01", 0, 2700); err == nil {
		t.Error("expected error for zero charging rate")
	}
	if err := service.UpdatePricing(context.Background(), "CP-01", 7.0, -1); err == nil {
		t.Error("expected error for negative price")
	}
	if err := service.UpdatePricing(context.Background(), "CP-01", 7.0, 0); err != nil {
		t.Errorf("expected free charging to be allowed, got %v", err)
	}
}

func TestStatistics_Aggregation(t *testing.T) {
	// Arrange
	service, chargers, transactions, history := newTestService()
	chargers.Chargers["CP-01"] = &domain.Charger{ID: "CP-01", IsActive: true}

	now := time.Now()
	recent := now.Add(-time.Hour)
	old := now.Add(-48 * time.Hour)
	fiveKWh := 5.0
	threeKWh := 3.0
	transactions.Transactions[1] = &domain.Transaction{
		TransactionID: 1, ChargerID: "CP-01", Status: domain.TxCompleted,
		EnergyKWh: &fiveKWh, EndTime: &recent,
	}
	transactions.Transactions[2] = &domain.Transaction{
		TransactionID: 2, ChargerID: "CP-01", Status: domain.TxCompleted,
		EnergyKWh: &threeKWh, EndTime: &old,
	}
	transactions.Transactions[3] = &domain.Transaction{
		TransactionID: 3, ChargerID: "CP-01", Status: domain.TxOngoing,
	}
	history.Heartbeats = []domain.HeartbeatEvent{
		{ChargerID: "CP-01", Timestamp: recent, Health: domain.HealthNormal},
		{ChargerID: "CP-01", Timestamp: recent.Add(time.Minute), Health: domain.HealthWarning},
	}

	// Act
	stats, err := service.Statistics(context.Background(), "CP-01", now.Add(-24*time.Hour))

	// Assert
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if stats.TotalSessions != 3 || stats.OngoingSessions != 1 {
		t.Errorf("expected 3 total / 1 ongoing, got %d / %d", stats.TotalSessions, stats.OngoingSessions)
	}
	if stats.EnergyKWh24h != 5.0 {
		t.Errorf("expected only the recent 5.0 kWh counted, got %v", stats.EnergyKWh24h)
	}
	if stats.HeartbeatHealth[domain.HealthWarning] != 1 {
		t.Errorf("expected one warning heartbeat, got %+v", stats.HeartbeatHealth)
	}
}
