package domain

import (
	"math"
	"testing"
	"time"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 0.01
}

func TestComplete_MeterDelta(t *testing.T) {
	// Arrange
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	tx := &Transaction{
		TransactionID:  1001,
		ChargerID:      "CP-01",
		StartTime:      start,
		MeterStart:     1000,
		ChargingRateKW: 7.0,
		PricePerKWh:    2700,
		Status:         TxOngoing,
	}
	meterStop := int64(8500)

	// Act
	tx.Complete(start.Add(30*time.Minute), &meterStop)

	// Assert
	if tx.Status != TxCompleted {
		t.Fatalf("expected status completed, got %s", tx.Status)
	}
	if tx.EnergyKWh == nil || !almostEqual(*tx.EnergyKWh, 7.5) {
		t.Errorf("expected 7.5 kWh from meter delta, got %v", tx.EnergyKWh)
	}
	if tx.TotalCost == nil || !almostEqual(*tx.TotalCost, 20250) {
		t.Errorf("expected cost 20250, got %v", tx.TotalCost)
	}
	if tx.DurationMinutes == nil || !almostEqual(*tx.DurationMinutes, 30) {
		t.Errorf("expected 30 minutes, got %v", tx.DurationMinutes)
	}
}

func TestComplete_RateFallback_WhenNoFinalReading(t *testing.T) {
	// Arrange
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	tx := &Transaction{
		TransactionID:  1002,
		StartTime:      start,
		MeterStart:     1000,
		ChargingRateKW: 7.0,
		PricePerKWh:    2700,
		Status:         TxOngoing,
	}

	// Act
	tx.Complete(start.Add(60*time.Minute), nil)

	// Assert: 7.0 kW over one hour
	if tx.EnergyKWh == nil || !almostEqual(*tx.EnergyKWh, 7.0) {
		t.Errorf("expected 7.0 kWh from rate, got %v", tx.EnergyKWh)
	}
	if tx.TotalCost == nil || !almostEqual(*tx.TotalCost, 18900) {
		t.Errorf("expected cost 18900, got %v", tx.TotalCost)
	}
}

func TestComplete_RateFallback_WhenReadingBehindStart(t *testing.T) {
	// Arrange: a meter stop at or below meterStart cannot be trusted
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	tx := &Transaction{
		TransactionID:  1003,
		StartTime:      start,
		MeterStart:     5000,
		ChargingRateKW: 7.0,
		PricePerKWh:    2700,
		Status:         TxOngoing,
	}
	meterStop := int64(5000)

	// Act
	tx.Complete(start.Add(30*time.Minute), &meterStop)

	// Assert
	if tx.EnergyKWh == nil || !almostEqual(*tx.EnergyKWh, 3.5) {
		t.Errorf("expected 3.5 kWh from rate fallback, got %v", tx.EnergyKWh)
	}
	if tx.MeterStop == nil || *tx.MeterStop != 5000 {
		t.Errorf("expected raw meter stop preserved, got %v", tx.MeterStop)
	}
}

func TestComplete_Idempotent(t *testing.T) {
	// Arrange
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	tx := &Transaction{
		TransactionID:  1004,
		StartTime:      start,
		MeterStart:     0,
		ChargingRateKW: 7.0,
		PricePerKWh:    2700,
		Status:         TxOngoing,
	}
	meterStop := int64(7000)
	tx.Complete(start.Add(60*time.Minute), &meterStop)
	firstCost := *tx.TotalCost

	// Act: a second completion must not re-derive anything
	later := int64(9000)
	tx.Complete(start.Add(120*time.Minute), &later)

	// Assert
	if *tx.TotalCost != firstCost {
		t.Errorf("expected cost unchanged at %v, got %v", firstCost, *tx.TotalCost)
	}
}

func TestOrderIDFor(t *testing.T) {
	if got := OrderIDFor(1709290800); got != "order_1709290800" {
		t.Errorf("unexpected order id %q", got)
	}
}

func TestSyncFromTransaction(t *testing.T) {
	// Arrange
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	tx := &Transaction{
		TransactionID:  2000,
		StartTime:      start,
		MeterStart:     0,
		ChargingRateKW: 7.0,
		PricePerKWh:    2700,
		Status:         TxOngoing,
	}
	meterStop := int64(3000)
	tx.Complete(start.Add(30*time.Minute), &meterStop)

	order := &Order{ID: OrderIDFor(2000), TransactionID: 2000, Status: TxOngoing}

	// Act
	order.SyncFromTransaction(tx)

	// Assert
	if order.Status != TxCompleted {
		t.Errorf("expected order completed, got %s", order.Status)
	}
	if order.EnergyKWh == nil || *order.EnergyKWh != *tx.EnergyKWh {
		t.Errorf("expected energy mirrored, got %v", order.EnergyKWh)
	}
	if order.TotalCost == nil || *order.TotalCost != *tx.TotalCost {
		t.Errorf("expected cost mirrored, got %v", order.TotalCost)
	}
}
