package session

import (
	"errors"
	"testing"
	"time"

	"github.com/seu-repo/ocpp-csms/internal/domain"
)

func TestGet_UnknownCharger(t *testing.T) {
	// Arrange
	st := NewStore()

	// Act
	s := st.Get("never-seen")

	// Assert
	if s.Status != domain.StatusUnknown {
		t.Errorf("expected Unknown status, got %s", s.Status)
	}
	if s.Charging() {
		t.Error("expected no live transaction")
	}
}

func TestBeginTransaction_SecondStartRejected(t *testing.T) {
	// Arrange
	st := NewStore()
	if err := st.BeginTransaction("CP-01", 100, "order_100", 1000); err != nil {
		t.Fatalf("first start failed: %v", err)
	}

	// Act
	err := st.BeginTransaction("CP-01", 200, "order_200", 2000)

	// Assert
	if !errors.Is(err, domain.ErrConcurrentTx) {
		t.Fatalf("expected ErrConcurrentTx, got %v", err)
	}
	s := st.Get("CP-01")
	if s.TransactionID != 100 {
		t.Errorf("expected original transaction to survive, got %d", s.TransactionID)
	}
	if s.Status != domain.StatusCharging {
		t.Errorf("expected Charging, got %s", s.Status)
	}
}

func TestEndTransaction_Idempotent(t *testing.T) {
	// Arrange
	st := NewStore()
	st.BeginTransaction("CP-01", 100, "order_100", 1000)
	st.UpdateMeter("CP-01", 4500)

	// Act
	meter, ok := st.EndTransaction("CP-01")
	_, again := st.EndTransaction("CP-01")

	// Assert
	if !ok || meter != 4500 {
		t.Fatalf("expected final meter 4500, got %d ok=%v", meter, ok)
	}
	if again {
		t.Error("expected second end to report no live transaction")
	}
	if s := st.Get("CP-01"); s.Status != domain.StatusAvailable {
		t.Errorf("expected Available after stop, got %s", s.Status)
	}
}

func TestSetStatus_AvailableClearsAbandonedTransaction(t *testing.T) {
	// Arrange: a transaction is live when the charger reports Available,
	// the tell of a reboot that lost its stop
	st := NewStore()
	st.BeginTransaction("CP-01", 100, "order_100", 1000)

	// Act
	prev, cleared := st.SetStatus("CP-01", domain.StatusAvailable)

	// Assert
	if prev.TransactionID != 100 {
		t.Errorf("expected previous state to carry the transaction, got %d", prev.TransactionID)
	}
	if cleared != 100 {
		t.Errorf("expected cleared transaction 100, got %d", cleared)
	}
	s := st.Get("CP-01")
	if s.Charging() || s.OrderID != "" {
		t.Errorf("expected session cleared, got %+v", s)
	}
}

func TestSetStatus_NonAvailableKeepsTransaction(t *testing.T) {
	// Arrange
	st := NewStore()
	st.BeginTransaction("CP-01", 100, "order_100", 1000)

	// Act
	_, cleared := st.SetStatus("CP-01", domain.StatusSuspendedEVSE)

	// Assert
	if cleared != 0 {
		t.Errorf("expected nothing cleared, got %d", cleared)
	}
	if s := st.Get("CP-01"); s.TransactionID != 100 {
		t.Errorf("expected transaction to survive, got %d", s.TransactionID)
	}
}

func TestUpdateMeter_RejectsRollback(t *testing.T) {
	// Arrange
	st := NewStore()
	st.BeginTransaction("CP-01", 100, "order_100", 3000)

	// Act
	accepted := st.UpdateMeter("CP-01", 2000)
	advanced := st.UpdateMeter("CP-01", 3500)

	// Assert
	if accepted {
		t.Error("expected reading below meterStart to be rejected")
	}
	if !advanced {
		t.Error("expected advancing reading to be accepted")
	}
	if s := st.Get("CP-01"); s.MeterWh != 3500 {
		t.Errorf("expected meter 3500, got %d", s.MeterWh)
	}
}

func TestTouch_Monotonic(t *testing.T) {
	// Arrange
	st := NewStore()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	// Act
	st.Touch("CP-01", now)
	st.Touch("CP-01", now.Add(-time.Minute))

	// Assert
	if s := st.Get("CP-01"); !s.LastSeen.Equal(now) {
		t.Errorf("expected last seen %v, got %v", now, s.LastSeen)
	}
}

func TestMarkOffline_KeepsTransaction(t *testing.T) {
	// Arrange
	st := NewStore()
	st.BeginTransaction("CP-01", 100, "order_100", 1000)

	// Act
	st.MarkOffline("CP-01")

	// Assert
	s := st.Get("CP-01")
	if s.Status != domain.StatusOffline {
		t.Errorf("expected Offline, got %s", s.Status)
	}
	if s.TransactionID != 100 {
		t.Errorf("expected transaction to survive disconnect, got %d", s.TransactionID)
	}
}
