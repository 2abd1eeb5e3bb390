// Package command drives chargers from the operator side: it resolves
// which transport (possibly on another node) currently holds a charger
// and delivers CSMS-initiated calls to it.
package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/seu-repo/ocpp-csms/internal/domain"
	"github.com/seu-repo/ocpp-csms/internal/observability/telemetry"
	"github.com/seu-repo/ocpp-csms/internal/ports"
	"github.com/seu-repo/ocpp-csms/internal/registry"
	"github.com/seu-repo/ocpp-csms/internal/transport"
)

// Outbound actions chargers accept from the CSMS. Everything is
// pass-through except RemoteStartTransaction / RemoteStopTransaction,
// which can fall back to a simulated ledger entry when the charger is
// unreachable.
var supportedActions = map[string]bool{
	"RemoteStartTransaction": true,
	"RemoteStopTransaction":  true,
	"GetConfiguration":       true,
	"ChangeConfiguration":    true,
	"Reset":                  true,
	"UnlockConnector":        true,
	"ChangeAvailability":     true,
	"SetChargingProfile":     true,
	"ClearChargingProfile":   true,
	"GetDiagnostics":         true,
	"UpdateFirmware":         true,
	"ReserveNow":             true,
	"CancelReservation":      true,
}

// Defaults carries the fallback tariff applied to chargers that never
// declared their own, plus the remote-start product policy.
type Defaults struct {
	ChargingRateKW       float64
	PricePerKWh          float64
	CallTimeout          time.Duration
	SimulateOnDisconnect bool
}

type Dispatcher struct {
	transports *transport.Manager
	dist       *registry.Distributed // nil in standalone mode
	relay      *registry.Relay       // nil in standalone mode
	chargers   ports.ChargerRepository
	charging   ports.ChargingService
	recorder   ports.HistoryRecorder
	defaults   Defaults
	log        *zap.Logger
}

func NewDispatcher(
	transports *transport.Manager,
	dist *registry.Distributed,
	relay *registry.Relay,
	chargers ports.ChargerRepository,
	charging ports.ChargingService,
	recorder ports.HistoryRecorder,
	defaults Defaults,
	log *zap.Logger,
) *Dispatcher {
	return &Dispatcher{
		transports: transports,
		dist:       dist,
		relay:      relay,
		chargers:   chargers,
		charging:   charging,
		recorder:   recorder,
		defaults:   defaults,
		log:        log,
	}
}

// Send delivers one outbound call: locally attached chargers go straight
// to their transport; otherwise the call is relayed to the owning node.
// A timeout comes back as {success: false, error: "Timeout"} rather than
// an error, so operators get a structured result.
func (d *Dispatcher) Send(ctx context.Context, chargerID, action string, payload json.RawMessage, timeout time.Duration) (*ports.CommandResult, error) {
	if !supportedActions[action] {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownAction, action)
	}
	if timeout <= 0 {
		timeout = d.defaults.CallTimeout
	}

	charger, err := d.chargers.FindByID(ctx, chargerID)
	if err != nil {
		return nil, err
	}
	if charger == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrChargerNotFound, chargerID)
	}

	res, err := d.deliver(ctx, chargerID, action, payload, timeout)
	switch {
	case err == nil:
		telemetry.RemoteCommandsTotal.WithLabelValues(action, "ok").Inc()
		return res, nil
	case errors.Is(err, domain.ErrTimeout):
		telemetry.RemoteCommandsTotal.WithLabelValues(action, "timeout").Inc()
		return &ports.CommandResult{Success: false, Error: "Timeout"}, nil
	default:
		telemetry.RemoteCommandsTotal.WithLabelValues(action, "error").Inc()
		return nil, err
	}
}

func (d *Dispatcher) deliver(ctx context.Context, chargerID, action string, payload json.RawMessage, timeout time.Duration) (*ports.CommandResult, error) {
	if d.transports.IsConnected(chargerID) {
		res, err := d.transports.SendMessage(ctx, chargerID, "", action, payload, timeout)
		if err != nil {
			return nil, err
		}
		return &ports.CommandResult{
			Success:   res.Success,
			Queued:    res.Queued,
			RequestID: res.RequestID,
			Details:   res.Data,
		}, nil
	}

	if d.relay != nil && d.dist != nil {
		owner, err := d.dist.Owner(ctx, chargerID)
		if err != nil {
			return nil, err
		}
		if owner != "" && owner != d.dist.NodeID() {
			data, err := d.relay.Send(ctx, chargerID, action, payload, timeout)
			if err != nil {
				return nil, err
			}
			return &ports.CommandResult{Success: true, Details: data}, nil
		}
	}

	// The pull transport is store-and-forward: queue there even when the
	// charger has not polled recently.
	if res, err := d.transports.SendMessage(ctx, chargerID, "", action, payload, timeout); err == nil {
		return &ports.CommandResult{
			Success:   res.Success,
			Queued:    res.Queued,
			RequestID: res.RequestID,
			Details:   res.Data,
		}, nil
	}

	return nil, fmt.Errorf("%w: %s", domain.ErrChargerNotConnected, chargerID)
}

// ExecLocal runs an outbound call on a locally attached charger. It is
// the execution half of the cross-node relay.
func (d *Dispatcher) ExecLocal(ctx context.Context, chargerID, action string, payload json.RawMessage, timeout time.Duration) (json.RawMessage, error) {
	res, err := d.transports.SendMessage(ctx, chargerID, "", action, payload, timeout)
	if err != nil {
		return nil, err
	}
	out, err := json.Marshal(res)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RemoteStart asks the charger to begin a transaction. When the charger
// is unreachable and simulate_on_disconnect is set, the ledger entry is
// created anyway so the operator sees a consistent record; the charger's
// next real messages reconcile it.
func (d *Dispatcher) RemoteStart(ctx context.Context, chargerID, idTag string, connectorID int) (*ports.CommandResult, error) {
	charger, err := d.chargers.FindByID(ctx, chargerID)
	if err != nil {
		return nil, err
	}
	if charger == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrChargerNotFound, chargerID)
	}

	payload, _ := json.Marshal(map[string]any{
		"idTag":       idTag,
		"connectorId": connectorID,
	})

	res, err := d.Send(ctx, chargerID, "RemoteStartTransaction", payload, d.defaults.CallTimeout)
	if err == nil && res.Success {
		return res, nil
	}
	if err != nil && !errors.Is(err, domain.ErrChargerNotConnected) {
		return res, err
	}
	if !d.defaults.SimulateOnDisconnect {
		if err != nil {
			return nil, err
		}
		return res, nil
	}

	return d.simulateStart(ctx, charger, idTag, connectorID)
}

func (d *Dispatcher) simulateStart(ctx context.Context, charger *domain.Charger, idTag string, connectorID int) (*ports.CommandResult, error) {
	rate := charger.ChargingRateKW
	if rate <= 0 {
		rate = d.defaults.ChargingRateKW
	}
	price := charger.PricePerKWh
	if price <= 0 {
		price = d.defaults.PricePerKWh
	}

	tx, err := d.charging.Start(ctx, ports.StartTransactionInput{
		ChargerID:      charger.ID,
		ConnectorID:    connectorID,
		IDTag:          idTag,
		ChargingRateKW: rate,
		PricePerKWh:    price,
		Simulated:      true,
	})
	if err != nil && !errors.Is(err, domain.ErrTransient) {
		return nil, err
	}

	if _, err := d.recorder.RecordStatusChange(ctx, charger, domain.StatusCharging, "", time.Now()); err != nil {
		d.log.Warn("Failed to persist simulated status change",
			zap.String("charger_id", charger.ID),
			zap.Error(err),
		)
	}

	d.log.Info("Simulated remote start for disconnected charger",
		zap.String("charger_id", charger.ID),
		zap.Int64("transaction_id", tx.TransactionID),
	)

	details, _ := json.Marshal(map[string]any{
		"simulated":     true,
		"transactionId": tx.TransactionID,
		"orderId":       domain.OrderIDFor(tx.TransactionID),
	})
	return &ports.CommandResult{Success: true, Simulated: true, Details: details}, nil
}

// RemoteStop mirrors RemoteStart: delivered when reachable, simulated
// when not (closing the ledger entry the operator sees).
func (d *Dispatcher) RemoteStop(ctx context.Context, chargerID string, transactionID int64) (*ports.CommandResult, error) {
	charger, err := d.chargers.FindByID(ctx, chargerID)
	if err != nil {
		return nil, err
	}
	if charger == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrChargerNotFound, chargerID)
	}

	payload, _ := json.Marshal(map[string]any{"transactionId": transactionID})
	res, err := d.Send(ctx, chargerID, "RemoteStopTransaction", payload, d.defaults.CallTimeout)
	if err == nil && res.Success {
		return res, nil
	}
	if err != nil && !errors.Is(err, domain.ErrChargerNotConnected) {
		return res, err
	}
	if !d.defaults.SimulateOnDisconnect {
		if err != nil {
			return nil, err
		}
		return res, nil
	}

	tx, err := d.charging.Stop(ctx, ports.StopTransactionInput{
		ChargerID:     chargerID,
		TransactionID: transactionID,
	})
	if err != nil && !errors.Is(err, domain.ErrTransient) {
		return nil, err
	}

	if _, err := d.recorder.RecordStatusChange(ctx, charger, domain.StatusAvailable, "", time.Now()); err != nil {
		d.log.Warn("Failed to persist simulated status change",
			zap.String("charger_id", charger.ID),
			zap.Error(err),
		)
	}

	details, _ := json.Marshal(map[string]any{
		"simulated":     true,
		"transactionId": tx.TransactionID,
	})
	return &ports.CommandResult{Success: true, Simulated: true, Details: details}, nil
}
