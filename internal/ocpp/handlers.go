package ocpp

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/seu-repo/ocpp-csms/internal/adapter/queue"
	"github.com/seu-repo/ocpp-csms/internal/domain"
	"github.com/seu-repo/ocpp-csms/internal/ports"
	"github.com/seu-repo/ocpp-csms/internal/session"
)

// Queue subjects for domain events fanned out to other systems.
const (
	SubjectChargerBooted        = "csms.chargers.booted"
	SubjectTransactionStarted   = "csms.transactions.started"
	SubjectTransactionCompleted = "csms.transactions.completed"
)

// Defaults applied to chargers that appear without an enrollment record.
type Defaults struct {
	HeartbeatInterval int
	ChargingRateKW    float64
	PricePerKWh       float64
	ConnectorType     string
}

// Handlers binds every inbound OCPP action to the session store, the
// ledger and the history streams. Persistence failures are logged and
// never fail the protocol response: the carrier stays healthy and the
// in-memory view is authoritative until the next successful write.
type Handlers struct {
	sessions  *session.Store
	chargers  ports.ChargerRepository
	charging  ports.ChargingService
	recorder  ports.HistoryRecorder
	events    queue.MessageQueue // nil when no queue backend is configured
	defaults  Defaults
	blocklist map[string]bool
	log       *zap.Logger
}

func NewHandlers(
	sessions *session.Store,
	chargers ports.ChargerRepository,
	charging ports.ChargingService,
	recorder ports.HistoryRecorder,
	events queue.MessageQueue,
	defaults Defaults,
	log *zap.Logger,
) *Handlers {
	return &Handlers{
		sessions:  sessions,
		chargers:  chargers,
		charging:  charging,
		recorder:  recorder,
		events:    events,
		defaults:  defaults,
		blocklist: make(map[string]bool),
		log:       log,
	}
}

// Register binds every supported action on the dispatcher.
func (h *Handlers) Register(d *Dispatcher) {
	d.Register("BootNotification", h.BootNotification)
	d.Register("Heartbeat", h.Heartbeat)
	d.Register("StatusNotification", h.StatusNotification)
	d.Register("Authorize", h.Authorize)
	d.Register("StartTransaction", h.StartTransaction)
	d.Register("StopTransaction", h.StopTransaction)
	d.Register("MeterValues", h.MeterValues)
	d.Register("FirmwareStatusNotification", h.FirmwareStatusNotification)
	d.Register("DiagnosticsStatusNotification", h.DiagnosticsStatusNotification)
	d.Register("DataTransfer", h.DataTransfer)
}

// Blocklist replaces the set of rejected idTags. The hook exists for
// operator tooling; the list starts empty.
func (h *Handlers) Blocklist(idTags ...string) {
	h.blocklist = make(map[string]bool, len(idTags))
	for _, tag := range idTags {
		h.blocklist[tag] = true
	}
}

// ensureCharger loads the charger record, creating a default one for
// chargers that appear before enrollment. Every inbound message advances
// last-seen.
func (h *Handlers) ensureCharger(ctx context.Context, chargerID string) *domain.Charger {
	charger, err := h.chargers.FindByID(ctx, chargerID)
	if err != nil {
		h.log.Warn("Failed to load charger, using in-memory default",
			zap.String("charger_id", chargerID),
			zap.Error(err),
		)
	}
	if charger == nil {
		charger = &domain.Charger{
			ID:             chargerID,
			ConnectorType:  h.defaults.ConnectorType,
			ChargingRateKW: h.defaults.ChargingRateKW,
			PricePerKWh:    h.defaults.PricePerKWh,
			Status:         domain.StatusUnknown,
			IsActive:       true,
		}
	}
	now := time.Now()
	charger.TouchSeen(now)
	h.sessions.Touch(chargerID, now)
	return charger
}

// persist tolerates transient failures; anything else is logged too but
// the protocol response is already decided by the caller.
func (h *Handlers) persist(err error, chargerID, action string) {
	if err == nil {
		return
	}
	h.log.Warn("Persistence degraded, protocol response still delivered",
		zap.String("charger_id", chargerID),
		zap.String("action", action),
		zap.Error(err),
	)
}

func (h *Handlers) publish(subject string, payload any) {
	if h.events == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if err := h.events.Publish(subject, data); err != nil {
		h.log.Warn("Failed to publish event", zap.String("subject", subject), zap.Error(err))
	}
}

func (h *Handlers) BootNotification(ctx context.Context, chargerID string, payload json.RawMessage) (any, error) {
	var req BootNotificationRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		h.recorder.LogProtocolError(ctx, chargerID, "BootNotification", "FormationViolation", err.Error(), payload)
		return nil, domain.ErrProtocolViolation
	}

	charger := h.ensureCharger(ctx, chargerID)
	if req.ChargePointVendor != "" {
		charger.Vendor = req.ChargePointVendor
	}
	if req.ChargePointModel != "" {
		charger.Model = req.ChargePointModel
	}
	if req.ChargePointSerialNumber != "" {
		charger.SerialNumber = req.ChargePointSerialNumber
	}
	if req.FirmwareVersion != "" {
		charger.FirmwareVersion = req.FirmwareVersion
	}

	// A booting charger has no transaction; clearing the session repairs
	// state left over from a reboot mid-charge.
	if _, cleared := h.sessions.SetStatus(chargerID, domain.StatusAvailable); cleared != 0 {
		h.log.Warn("Cleared stale transaction on boot",
			zap.String("charger_id", chargerID),
			zap.Int64("transaction_id", cleared),
		)
	}

	_, err := h.recorder.RecordStatusChange(ctx, charger, domain.StatusAvailable, "", time.Now())
	h.persist(err, chargerID, "BootNotification")

	h.publish(SubjectChargerBooted, charger)

	return BootNotificationResponse{
		Status:      "Accepted",
		CurrentTime: FormatTime(time.Now()),
		Interval:    h.defaults.HeartbeatInterval,
	}, nil
}

func (h *Handlers) Heartbeat(ctx context.Context, chargerID string, _ json.RawMessage) (any, error) {
	charger := h.ensureCharger(ctx, chargerID)
	_, err := h.recorder.RecordHeartbeat(ctx, charger, time.Now())
	h.persist(err, chargerID, "Heartbeat")

	return HeartbeatResponse{CurrentTime: FormatTime(time.Now())}, nil
}

func (h *Handlers) StatusNotification(ctx context.Context, chargerID string, payload json.RawMessage) (any, error) {
	var req StatusNotificationRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		h.recorder.LogProtocolError(ctx, chargerID, "StatusNotification", "FormationViolation", err.Error(), payload)
		return nil, domain.ErrProtocolViolation
	}

	status := domain.ChargerStatus(req.Status)
	if !domain.ValidStatus(status) {
		h.recorder.LogProtocolError(ctx, chargerID, "StatusNotification", "PropertyConstraintViolation", "unknown status "+req.Status, payload)
		return map[string]any{}, nil
	}

	charger := h.ensureCharger(ctx, chargerID)

	_, cleared := h.sessions.SetStatus(chargerID, status)
	if cleared != 0 {
		// The charger reports Available while the ledger still holds an
		// ongoing transaction: the session is repaired here, the ledger
		// entry stays ongoing for the operator to settle.
		h.log.Warn("Session cleared by Available status, transaction left ongoing in ledger",
			zap.String("charger_id", chargerID),
			zap.Int64("transaction_id", cleared),
		)
	}

	_, err := h.recorder.RecordStatusChange(ctx, charger, status, req.ErrorCode, time.Now())
	h.persist(err, chargerID, "StatusNotification")

	return map[string]any{}, nil
}

func (h *Handlers) Authorize(ctx context.Context, chargerID string, payload json.RawMessage) (any, error) {
	var req AuthorizeRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, domain.ErrProtocolViolation
	}

	charger := h.ensureCharger(ctx, chargerID)
	h.persist(h.chargers.Save(ctx, charger), chargerID, "Authorize")

	if req.IDTag == "" || h.blocklist[req.IDTag] {
		h.sessions.SetAuthorized(chargerID, false)
		return AuthorizeResponse{IDTagInfo: IDTagInfo{Status: "Invalid"}}, nil
	}

	h.sessions.SetAuthorized(chargerID, true)
	return AuthorizeResponse{IDTagInfo: IDTagInfo{Status: "Accepted"}}, nil
}

func (h *Handlers) StartTransaction(ctx context.Context, chargerID string, payload json.RawMessage) (any, error) {
	var req StartTransactionRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		h.recorder.LogProtocolError(ctx, chargerID, "StartTransaction", "FormationViolation", err.Error(), payload)
		return nil, domain.ErrProtocolViolation
	}

	charger := h.ensureCharger(ctx, chargerID)
	rate := charger.ChargingRateKW
	if rate <= 0 {
		rate = h.defaults.ChargingRateKW
	}
	price := charger.PricePerKWh
	if price <= 0 {
		price = h.defaults.PricePerKWh
	}

	var start time.Time
	if req.Timestamp != "" {
		if t, err := time.Parse(time.RFC3339, req.Timestamp); err == nil {
			start = t
		}
	}

	tx, err := h.charging.Start(ctx, ports.StartTransactionInput{
		ChargerID:      chargerID,
		ConnectorID:    req.ConnectorID,
		IDTag:          req.IDTag,
		TransactionID:  req.TransactionID,
		MeterStart:     req.MeterStart,
		StartTime:      start,
		ChargingRateKW: rate,
		PricePerKWh:    price,
	})
	if errors.Is(err, domain.ErrConcurrentTx) {
		live := h.sessions.Get(chargerID).TransactionID
		if live == 0 && tx != nil {
			live = tx.TransactionID
		}
		return ConcurrentTxResponse{Status: "ConcurrentTx", TransactionID: live}, nil
	}
	if err != nil {
		if !errors.Is(err, domain.ErrTransient) {
			return nil, err
		}
		h.persist(err, chargerID, "StartTransaction")
	}

	_, serr := h.recorder.RecordStatusChange(ctx, charger, domain.StatusCharging, "", time.Now())
	h.persist(serr, chargerID, "StartTransaction")

	h.publish(SubjectTransactionStarted, tx)

	return StartTransactionResponse{
		TransactionID: tx.TransactionID,
		IDTagInfo:     IDTagInfo{Status: "Accepted"},
	}, nil
}

func (h *Handlers) StopTransaction(ctx context.Context, chargerID string, payload json.RawMessage) (any, error) {
	var req StopTransactionRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		h.recorder.LogProtocolError(ctx, chargerID, "StopTransaction", "FormationViolation", err.Error(), payload)
		return nil, domain.ErrProtocolViolation
	}

	charger := h.ensureCharger(ctx, chargerID)

	var stop time.Time
	if req.Timestamp != "" {
		if t, err := time.Parse(time.RFC3339, req.Timestamp); err == nil {
			stop = t
		}
	}

	tx, err := h.charging.Stop(ctx, ports.StopTransactionInput{
		ChargerID:     chargerID,
		TransactionID: req.TransactionID,
		MeterStop:     req.MeterStop,
		StopTime:      stop,
	})
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrChargerNotFound):
		// Nothing to stop: treat as an already-settled transaction so a
		// retrying charger gets a success.
		h.log.Warn("StopTransaction with no matching transaction",
			zap.String("charger_id", chargerID),
			zap.Int64("transaction_id", req.TransactionID),
		)
		return StopTransactionResponse{
			Stopped:       true,
			TransactionID: req.TransactionID,
			IDTagInfo:     IDTagInfo{Status: "Accepted"},
		}, nil
	case errors.Is(err, domain.ErrTransient):
		h.persist(err, chargerID, "StopTransaction")
		if tx == nil {
			// Degraded persistence and no session-held transaction to
			// close; the charger still gets its success.
			return StopTransactionResponse{
				Stopped:       true,
				TransactionID: req.TransactionID,
				IDTagInfo:     IDTagInfo{Status: "Accepted"},
			}, nil
		}
	default:
		return nil, err
	}

	_, serr := h.recorder.RecordStatusChange(ctx, charger, domain.StatusAvailable, "", time.Now())
	h.persist(serr, chargerID, "StopTransaction")

	h.publish(SubjectTransactionCompleted, tx)

	return StopTransactionResponse{
		Stopped:       true,
		TransactionID: tx.TransactionID,
		IDTagInfo:     IDTagInfo{Status: "Accepted"},
	}, nil
}

func (h *Handlers) MeterValues(ctx context.Context, chargerID string, payload json.RawMessage) (any, error) {
	var req MeterValuesRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		h.recorder.LogProtocolError(ctx, chargerID, "MeterValues", "FormationViolation", err.Error(), payload)
		return nil, domain.ErrProtocolViolation
	}

	h.ensureCharger(ctx, chargerID)

	wh, ok := req.EnergyMeterWh()
	if !ok {
		return map[string]any{}, nil
	}

	txID := req.TransactionID
	if txID == 0 {
		txID = h.sessions.Get(chargerID).TransactionID
	}

	err := h.charging.RecordMeterValue(ctx, &domain.MeterValue{
		ChargerID:     chargerID,
		TransactionID: txID,
		ConnectorID:   req.ConnectorID,
		Timestamp:     time.Now(),
		ValueWh:       wh,
		Raw:           payload,
	})
	h.persist(err, chargerID, "MeterValues")

	return map[string]any{}, nil
}

func (h *Handlers) FirmwareStatusNotification(ctx context.Context, chargerID string, payload json.RawMessage) (any, error) {
	var req FirmwareStatusNotificationRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, domain.ErrProtocolViolation
	}

	h.ensureCharger(ctx, chargerID)
	err := h.chargers.UpsertConfiguration(ctx, &domain.ChargerConfiguration{
		ChargerID:   chargerID,
		ConfigKey:   "firmware_status",
		ConfigValue: req.Status,
		Readonly:    true,
		UpdatedAt:   time.Now(),
	})
	h.persist(err, chargerID, "FirmwareStatusNotification")

	return map[string]any{}, nil
}

func (h *Handlers) DiagnosticsStatusNotification(ctx context.Context, chargerID string, payload json.RawMessage) (any, error) {
	var req DiagnosticsStatusNotificationRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, domain.ErrProtocolViolation
	}

	h.ensureCharger(ctx, chargerID)
	err := h.chargers.UpsertConfiguration(ctx, &domain.ChargerConfiguration{
		ChargerID:   chargerID,
		ConfigKey:   "diagnostics_status",
		ConfigValue: req.Status,
		Readonly:    true,
		UpdatedAt:   time.Now(),
	})
	h.persist(err, chargerID, "DiagnosticsStatusNotification")

	return map[string]any{}, nil
}

// DataTransfer is the vendor extension point; payloads pass through
// unmodified and are accepted.
func (h *Handlers) DataTransfer(ctx context.Context, chargerID string, payload json.RawMessage) (any, error) {
	var req DataTransferRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, domain.ErrProtocolViolation
	}

	h.ensureCharger(ctx, chargerID)
	h.log.Info("DataTransfer received",
		zap.String("charger_id", chargerID),
		zap.String("vendor_id", req.VendorID),
		zap.String("message_id", req.MessageID),
	)

	return DataTransferResponse{Status: "Accepted", Data: nil}, nil
}
