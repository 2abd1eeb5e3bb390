// Package charging owns the transaction + order ledger: opening entries
// on StartTransaction, closing them with derived energy/duration/cost on
// StopTransaction, and the append-only meter stream in between.
package charging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/seu-repo/ocpp-csms/internal/domain"
	"github.com/seu-repo/ocpp-csms/internal/observability/telemetry"
	"github.com/seu-repo/ocpp-csms/internal/ports"
	"github.com/seu-repo/ocpp-csms/internal/session"
)

type Service struct {
	transactions ports.TransactionRepository
	orders       ports.OrderRepository
	meters       ports.MeterValueRepository
	sessions     *session.Store
	log          *zap.Logger
}

func NewService(
	transactions ports.TransactionRepository,
	orders ports.OrderRepository,
	meters ports.MeterValueRepository,
	sessions *session.Store,
	log *zap.Logger,
) ports.ChargingService {
	return &Service{
		transactions: transactions,
		orders:       orders,
		meters:       meters,
		sessions:     sessions,
		log:          log,
	}
}

// Start opens a transaction/order pair. Exactly one ongoing transaction
// per charger: a second start fails with ErrConcurrentTx. The session is
// authoritative; a persistence failure is reported as ErrTransient with
// the transaction still returned, so callers can answer the charger.
func (s *Service) Start(ctx context.Context, in ports.StartTransactionInput) (*domain.Transaction, error) {
	start := in.StartTime
	if start.IsZero() {
		start = time.Now()
	}

	txID := in.TransactionID
	if txID == 0 {
		txID = start.Unix()
	}

	// Only a still-ongoing transaction on this charger is a concurrency
	// conflict. A completed row or another charger's row reusing the id
	// proceeds; the unique index rejects a true collision on Save.
	if existing, err := s.transactions.FindByTransactionID(ctx, txID); err == nil && existing != nil &&
		existing.Status == domain.TxOngoing && existing.ChargerID == in.ChargerID {
		return existing, domain.ErrConcurrentTx
	}

	orderID := domain.OrderIDFor(txID)
	if err := s.sessions.BeginTransaction(in.ChargerID, txID, orderID, in.MeterStart); err != nil {
		return nil, err
	}

	tx := &domain.Transaction{
		TransactionID:  txID,
		ChargerID:      in.ChargerID,
		ConnectorID:    in.ConnectorID,
		IDTag:          in.IDTag,
		UserID:         in.UserID,
		StartTime:      start,
		MeterStart:     in.MeterStart,
		ChargingRateKW: in.ChargingRateKW,
		PricePerKWh:    in.PricePerKWh,
		Status:         domain.TxOngoing,
		Simulated:      in.Simulated,
	}
	order := &domain.Order{
		ID:            orderID,
		TransactionID: txID,
		ChargerID:     in.ChargerID,
		IDTag:         in.IDTag,
		UserID:        in.UserID,
		StartTime:     start,
		Status:        domain.TxOngoing,
		Simulated:     in.Simulated,
	}

	telemetry.ActiveChargingSessions.Inc()

	if err := s.transactions.Save(ctx, tx); err != nil {
		return tx, err
	}
	if err := s.orders.Save(ctx, order); err != nil {
		return tx, err
	}

	s.log.Info("Transaction started",
		zap.String("charger_id", in.ChargerID),
		zap.Int64("transaction_id", txID),
		zap.String("order_id", orderID),
		zap.Bool("simulated", in.Simulated),
	)
	return tx, nil
}

// Stop closes the transaction and its order, deriving duration, energy
// and cost. Idempotent: stopping an already completed transaction is a
// no-op returning the completed record.
func (s *Service) Stop(ctx context.Context, in ports.StopTransactionInput) (*domain.Transaction, error) {
	end := in.StopTime
	if end.IsZero() {
		end = time.Now()
	}

	txID := in.TransactionID
	sess := s.sessions.Get(in.ChargerID)
	if txID == 0 {
		txID = sess.TransactionID
	}

	var tx *domain.Transaction
	var err error
	if txID != 0 {
		tx, err = s.transactions.FindByTransactionID(ctx, txID)
	} else {
		tx, err = s.transactions.FindOngoingByCharger(ctx, in.ChargerID)
	}
	if err != nil && !errors.Is(err, domain.ErrTransient) {
		return nil, err
	}
	if tx == nil {
		// Ledger unreadable or missing the row. The session is
		// authoritative: close what it holds and let Save carry any
		// remaining degradation.
		tx = s.rebuildFromSession(in.ChargerID, sess, txID)
	}
	if tx == nil {
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: no transaction to stop on %s", domain.ErrChargerNotFound, in.ChargerID)
	}

	if tx.Status == domain.TxCompleted {
		s.sessions.EndTransaction(in.ChargerID)
		return tx, nil
	}

	meterStop := in.MeterStop
	if meterStop == nil && sess.TransactionID == tx.TransactionID && sess.MeterWh > tx.MeterStart {
		wh := sess.MeterWh
		meterStop = &wh
	}

	tx.Complete(end, meterStop)

	s.sessions.EndTransaction(in.ChargerID)
	telemetry.ActiveChargingSessions.Dec()
	if tx.EnergyKWh != nil {
		telemetry.EnergyDeliveredTotal.Add(*tx.EnergyKWh)
	}

	if err := s.transactions.Save(ctx, tx); err != nil {
		return tx, err
	}

	order, err := s.orders.FindByTransactionID(ctx, tx.TransactionID)
	if err != nil {
		return tx, err
	}
	if order == nil {
		// An order can be missing when the start was only held in the
		// session; recreate it so the ledger heals.
		order = &domain.Order{
			ID:            domain.OrderIDFor(tx.TransactionID),
			TransactionID: tx.TransactionID,
			ChargerID:     tx.ChargerID,
			IDTag:         tx.IDTag,
			UserID:        tx.UserID,
			StartTime:     tx.StartTime,
			Status:        domain.TxOngoing,
			Simulated:     tx.Simulated,
		}
	}
	order.SyncFromTransaction(tx)
	if err := s.orders.Save(ctx, order); err != nil {
		return tx, err
	}

	s.log.Info("Transaction completed",
		zap.String("charger_id", tx.ChargerID),
		zap.Int64("transaction_id", tx.TransactionID),
		zap.Float64p("energy_kwh", tx.EnergyKWh),
		zap.Float64p("total_cost", tx.TotalCost),
	)
	return tx, nil
}

// rebuildFromSession reconstructs the ongoing transaction from session
// state when the ledger cannot produce it. Pricing is unknown there, so
// the completed record carries energy but no cost.
func (s *Service) rebuildFromSession(chargerID string, sess session.State, txID int64) *domain.Transaction {
	if sess.TransactionID == 0 || (txID != 0 && sess.TransactionID != txID) {
		return nil
	}
	s.log.Warn("Rebuilding transaction from session state",
		zap.String("charger_id", chargerID),
		zap.Int64("transaction_id", sess.TransactionID),
	)
	return &domain.Transaction{
		TransactionID: sess.TransactionID,
		ChargerID:     chargerID,
		StartTime:     sess.StartedAt,
		MeterStart:    sess.MeterStart,
		Status:        domain.TxOngoing,
	}
}

// RecordMeterValue appends a meter sample. Readings below the session's
// current register are rejected silently (the register is monotonic
// within a transaction).
func (s *Service) RecordMeterValue(ctx context.Context, mv *domain.MeterValue) error {
	if !s.sessions.UpdateMeter(mv.ChargerID, mv.ValueWh) {
		s.log.Debug("Dropping non-monotonic meter value",
			zap.String("charger_id", mv.ChargerID),
			zap.Int64("value_wh", mv.ValueWh),
		)
		return nil
	}
	if mv.Timestamp.IsZero() {
		mv.Timestamp = time.Now()
	}
	return s.meters.Append(ctx, mv)
}

func (s *Service) Ongoing(ctx context.Context, chargerID string) (*domain.Transaction, error) {
	return s.transactions.FindOngoingByCharger(ctx, chargerID)
}

// IsTransient reports whether err is only a persistence degradation that
// should not fail the protocol response.
func IsTransient(err error) bool {
	return errors.Is(err, domain.ErrTransient)
}
