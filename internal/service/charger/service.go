// Package charger is the operator administration surface: enrollment,
// location and tariff updates, activation, and on-demand statistics.
package charger

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/seu-repo/ocpp-csms/internal/domain"
	"github.com/seu-repo/ocpp-csms/internal/ports"
)

type Service struct {
	chargers     ports.ChargerRepository
	transactions ports.TransactionRepository
	history      ports.HistoryRepository
	log          *zap.Logger
}

func NewService(
	chargers ports.ChargerRepository,
	transactions ports.TransactionRepository,
	history ports.HistoryRepository,
	log *zap.Logger,
) ports.ChargerService {
	return &Service{
		chargers:     chargers,
		transactions: transactions,
		history:      history,
		log:          log,
	}
}

// Enroll registers a charger ahead of its first BootNotification.
// Re-enrolling an existing id updates the operator-managed fields only.
func (s *Service) Enroll(ctx context.Context, charger *domain.Charger) error {
	if charger.ID == "" {
		return fmt.Errorf("%w: empty charger id", domain.ErrChargerNotFound)
	}

	existing, err := s.chargers.FindByID(ctx, charger.ID)
	if err != nil {
		return err
	}
	if existing != nil {
		existing.ConnectorType = charger.ConnectorType
		existing.ChargingRateKW = charger.ChargingRateKW
		existing.PricePerKWh = charger.PricePerKWh
		existing.Latitude = charger.Latitude
		existing.Longitude = charger.Longitude
		existing.Address = charger.Address
		existing.IsActive = true
		return s.chargers.Save(ctx, existing)
	}

	if charger.Status == "" {
		charger.Status = domain.StatusUnknown
	}
	charger.IsActive = true
	if err := s.chargers.Save(ctx, charger); err != nil {
		return err
	}
	s.log.Info("Charger enrolled", zap.String("charger_id", charger.ID))
	return nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Charger, error) {
	charger, err := s.chargers.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if charger == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrChargerNotFound, id)
	}
	return charger, nil
}

func (s *Service) List(ctx context.Context, activeOnly bool) ([]domain.Charger, error) {
	return s.chargers.List(ctx, activeOnly)
}

func (s *Service) UpdateLocation(ctx context.Context, id string, lat, lon float64, address string) error {
	charger, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	charger.Latitude = &lat
	charger.Longitude = &lon
	charger.Address = address
	return s.chargers.Save(ctx, charger)
}

func (s *Service) UpdatePricing(ctx context.Context, id string, chargingRateKW, pricePerKWh float64) error {
	if chargingRateKW <= 0 || pricePerKWh < 0 {
		return fmt.Errorf("invalid pricing: rate=%v price=%v", chargingRateKW, pricePerKWh)
	}
	charger, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	charger.ChargingRateKW = chargingRateKW
	charger.PricePerKWh = pricePerKWh
	return s.chargers.Save(ctx, charger)
}

func (s *Service) SetActive(ctx context.Context, id string, active bool) error {
	charger, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	charger.IsActive = active
	return s.chargers.Save(ctx, charger)
}

// Statistics aggregates on demand from the event streams and the
// transaction ledger; there are no materialized rollups.
func (s *Service) Statistics(ctx context.Context, id string, since time.Time) (*ports.ChargerStatistics, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}

	txs, err := s.transactions.ListByCharger(ctx, id, 0)
	if err != nil {
		return nil, err
	}
	var total, ongoing int64
	var energy float64
	for _, tx := range txs {
		total++
		if tx.Status == domain.TxOngoing {
			ongoing++
		}
		if tx.Status == domain.TxCompleted && tx.EnergyKWh != nil && tx.EndTime != nil && tx.EndTime.After(since) {
			energy += *tx.EnergyKWh
		}
	}

	health, err := s.history.HeartbeatStats(ctx, id, since)
	if err != nil {
		return nil, err
	}
	durations, err := s.history.StatusDurations(ctx, id, since)
	if err != nil {
		return nil, err
	}

	return &ports.ChargerStatistics{
		ChargerID:       id,
		TotalSessions:   total,
		OngoingSessions: ongoing,
		EnergyKWh24h:    energy,
		HeartbeatHealth: health,
		StatusDurations: durations,
	}, nil
}
