package command

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/seu-repo/ocpp-csms/internal/domain"
	"github.com/seu-repo/ocpp-csms/internal/mocks"
	"github.com/seu-repo/ocpp-csms/internal/transport"
)

func newTestLogger() *zap.Logger {
	logger, _ := zap.NewDevelopment()
	return logger
}

func testCommandDefaults(simulate bool) Defaults {
	return Defaults{
		ChargingRateKW:       7.0,
		PricePerKWh:          2700,
		CallTimeout:          time.Second,
		SimulateOnDisconnect: simulate,
	}
}

type commandFixture struct {
	dispatcher *Dispatcher
	adapter    *mocks.MockAdapter
	chargers   *mocks.MockChargerRepository
	charging   *mocks.MockChargingService
	recorder   *mocks.MockHistoryRecorder
}

func newCommandFixture(simulate bool) *commandFixture {
	f := &commandFixture{
		adapter:  mocks.NewMockAdapter(transport.NameWebsocket),
		chargers: mocks.NewMockChargerRepository(),
		charging: &mocks.MockChargingService{},
		recorder: &mocks.MockHistoryRecorder{},
	}
	manager := transport.NewManager([]string{transport.NameWebsocket}, newTestLogger(), f.adapter)
	f.dispatcher = NewDispatcher(manager, nil, nil, f.chargers, f.charging, f.recorder, testCommandDefaults(simulate), newTestLogger())
	return f
}

func TestSend_UnknownAction(t *testing.T) {
	// Arrange
	f := newCommandFixture(false)

	// Act
	_, err := f.dispatcher.Send(context.Background(), "CP-01", "SelfDestruct", nil, 0)

	// Assert
	if !errors.Is(err, domain.ErrUnknownAction) {
		t.Fatalf("expected ErrUnknownAction, got %v", err)
	}
}

func TestSend_UnknownCharger(t *testing.T) {
	// Arrange
	f := newCommandFixture(false)

	// Act
	_, err := f.dispatcher.Send(context.Background(), "CP-99", "Reset", nil, 0)

	// Assert
	if !errors.Is(err, domain.ErrChargerNotFound) {
		t.Fatalf("expected ErrChargerNotFound, got %v", err)
	}
}

func TestSend_DeliveredOverConnectedTransport(t *testing.T) {
	// Arrange
	f := newCommandFixture(false)
	f.chargers.Chargers["CP-01"] = &domain.Charger{ID: "CP-01", IsActive: true}
	f.adapter.Connected["CP-01"] = true
	f.adapter.SendMessageFunc = func(ctx context.Context, chargerID, action string, payload json.RawMessage, timeout time.Duration) (*transport.SendResult, error) {
		return &transport.SendResult{Success: true, Data: json.RawMessage(`{"status":"Accepted"}`)}, nil
	}

	// Act
	res, err := f.dispatcher.Send(context.Background(), "CP-01", "Reset", json.RawMessage(`{"type":"Soft"}`), 0)

	// Assert
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !res.Success {
		t.Error("expected success")
	}
	if len(f.adapter.Sent) != 1 || f.adapter.Sent[0].Action != "Reset" {
		t.Errorf("expected one Reset call sent, got %+v", f.adapter.Sent)
	}
}

func TestSend_TimeoutMappedToStructuredResult(t *testing.T) {
	// Arrange
	f := newCommandFixture(false)
	f.chargers.Chargers["CP-01"] = &domain.Charger{ID: "CP-01", IsActive: true}
	f.adapter.Connected["CP-01"] = true
	f.adapter.SendMessageFunc = func(ctx context.Context, chargerID, action string, payload json.RawMessage, timeout time.Duration) (*transport.SendResult, error) {
		return nil, domain.ErrTimeout
	}

	// Act
	res, err := f.dispatcher.Send(context.Background(), "CP-01", "GetConfiguration", nil, 0)

	// Assert: timeout is a structured result, not an error
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if res.Success || res.Error != "Timeout" {
		t.Errorf("expected {success:false, error:Timeout}, got %+v", res)
	}
}

func TestSend_NotConnected(t *testing.T) {
	// Arrange
	f := newCommandFixture(false)
	f.chargers.Chargers["CP-01"] = &domain.Charger{ID: "CP-01", IsActive: true}

	// Act
	_, err := f.dispatcher.Send(context.Background(), "CP-01", "UnlockConnector", nil, 0)

	// Assert
	if !errors.Is(err, domain.ErrChargerNotConnected) {
		t.Fatalf("expected ErrChargerNotConnected, got %v", err)
	}
}

func TestRemoteStart_SimulatedWhenDisconnected(t *testing.T) {
	// Arrange: charger enrolled with its own tariff but not connected
	f := newCommandFixture(true)
	f.chargers.Chargers["CP-01"] = &domain.Charger{
		ID: "CP-01", ChargingRateKW: 11.0, PricePerKWh: 3000, IsActive: true,
	}

	// Act
	res, err := f.dispatcher.RemoteStart(context.Background(), "CP-01", "user-42", 1)

	// Assert
	if err != nil {
		t.Fatalf("expected simulated start, got error %v", err)
	}
	if !res.Success || !res.Simulated {
		t.Fatalf("expected simulated success, got %+v", res)
	}
	if len(f.charging.StartCalls) != 1 {
		t.Fatalf("expected one ledger start, got %d", len(f.charging.StartCalls))
	}
	in := f.charging.StartCalls[0]
	if !in.Simulated {
		t.Error("expected ledger entry flagged simulated")
	}
	if in.ChargingRateKW != 11.0 || in.PricePerKWh != 3000 {
		t.Errorf("expected charger tariff, got rate=%v price=%v", in.ChargingRateKW, in.PricePerKWh)
	}
	if len(f.recorder.StatusChanges) != 1 || f.recorder.StatusChanges[0].Status != domain.StatusCharging {
		t.Errorf("expected Charging recorded, got %+v", f.recorder.StatusChanges)
	}

	var details map[string]any
	if err := json.Unmarshal(res.Details, &details); err != nil {
		t.Fatalf("expected JSON details, got %v", err)
	}
	if details["simulated"] != true {
		t.Errorf("expected simulated detail, got %v", details)
	}
}

func TestRemoteStart_NoSimulationWhenDisabled(t *testing.T) {
	// Arrange
	f := newCommandFixture(false)
	f.chargers.Chargers["CP-01"] = &domain.Charger{ID: "CP-01", IsActive: true}

	// Act
	_, err := f.dispatcher.RemoteStart(context.Background(), "CP-01", "user-42", 1)

	// Assert
	if !errors.Is(err, domain.ErrChargerNotConnected) {
		t.Fatalf("expected ErrChargerNotConnected, got %v", err)
	}
	if len(f.charging.StartCalls) != 0 {
		t.Error("expected no ledger entry without simulation")
	}
}

func TestRemoteStart_DeliveredWhenConnected(t *testing.T) {
	// Arrange
	f := newCommandFixture(true)
	f.chargers.Chargers["CP-01"] = &domain.Charger{ID: "CP-01", IsActive: true}
	f.adapter.Connected["CP-01"] = true

	// Act
	res, err := f.dispatcher.RemoteStart(context.Background(), "CP-01", "user-42", 1)

	// Assert: the real charger handles it, nothing simulated
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if res.Simulated {
		t.Error("expected a real delivery, not a simulation")
	}
	if len(f.charging.StartCalls) != 0 {
		t.Error("expected ledger driven by the charger's StartTransaction, not the command")
	}
}

func TestRemoteStop_SimulatedWhenDisconnected(t *testing.T) {
	// Arrange
	f := newCommandFixture(true)
	f.chargers.Chargers["CP-01"] = &domain.Charger{ID: "CP-01", IsActive: true}

	// Act
	res, err := f.dispatcher.RemoteStop(context.Background(), "CP-01", 555)

	// Assert
	if err != nil {
		t.Fatalf("expected simulated stop, got error %v", err)
	}
	if !res.Success || !res.Simulated {
		t.Fatalf("expected simulated success, got %+v", res)
	}
	if len(f.charging.StopCalls) != 1 || f.charging.StopCalls[0].TransactionID != 555 {
		t.Errorf("expected ledger stop for 555, got %+v", f.charging.StopCalls)
	}
	if len(f.recorder.StatusChanges) != 1 || f.recorder.StatusChanges[0].Status != domain.StatusAvailable {
		t.Errorf("expected Available recorded, got %+v", f.recorder.StatusChanges)
	}
}
