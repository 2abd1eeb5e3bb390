package postgres

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/seu-repo/ocpp-csms/internal/domain"
	"github.com/seu-repo/ocpp-csms/internal/ports"
)

type HistoryRepository struct {
	db    *gorm.DB
	guard *Guard
	log   *zap.Logger
}

func NewHistoryRepository(db *gorm.DB, guard *Guard, log *zap.Logger) ports.HistoryRepository {
	return &HistoryRepository{db: db, guard: guard, log: log}
}

// AppendHeartbeat writes the event and, when a charger row is supplied,
// updates it in the same database transaction so the derived interval
// stays consistent with last_seen.
func (r *HistoryRepository) AppendHeartbeat(ctx context.Context, ev *domain.HeartbeatEvent, charger *domain.Charger) error {
	return r.guard.Do("append heartbeat", func() error {
		return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(ev).Error; err != nil {
				return err
			}
			if charger != nil {
				return tx.Save(charger).Error
			}
			return nil
		})
	})
}

func (r *HistoryRepository) LastHeartbeat(ctx context.Context, chargerID string) (*domain.HeartbeatEvent, error) {
	var ev domain.HeartbeatEvent
	found := false
	err := r.guard.Do("find last heartbeat", func() error {
		err := r.db.WithContext(ctx).
			Where("charger_id = ?", chargerID).
			Order("timestamp desc").
			First(&ev).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err == nil {
			found = true
		}
		return err
	})
	if err != nil || !found {
		return nil, err
	}
	return &ev, nil
}

func (r *HistoryRepository) AppendStatus(ctx context.Context, ev *domain.StatusEvent, charger *domain.Charger) error {
	return r.guard.Do("append status event", func() error {
		return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(ev).Error; err != nil {
				return err
			}
			if charger != nil {
				return tx.Save(charger).Error
			}
			return nil
		})
	})
}

func (r *HistoryRepository) LastStatus(ctx context.Context, chargerID string) (*domain.StatusEvent, error) {
	var ev domain.StatusEvent
	found := false
	err := r.guard.Do("find last status", func() error {
		err := r.db.WithContext(ctx).
			Where("charger_id = ?", chargerID).
			Order("timestamp desc").
			First(&ev).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err == nil {
			found = true
		}
		return err
	})
	if err != nil || !found {
		return nil, err
	}
	return &ev, nil
}

func (r *HistoryRepository) AppendErrorLog(ctx context.Context, entry *domain.OCPPErrorLog) error {
	return r.guard.Do("append error log", func() error {
		return r.db.WithContext(ctx).Create(entry).Error
	})
}

func (r *HistoryRepository) HeartbeatStats(ctx context.Context, chargerID string, since time.Time) (map[domain.HeartbeatHealth]int64, error) {
	type row struct {
		Health domain.HeartbeatHealth
		Count  int64
	}
	var rows []row
	err := r.guard.Do("heartbeat stats", func() error {
		return r.db.WithContext(ctx).Model(&domain.HeartbeatEvent{}).
			Where("charger_id = ? AND timestamp >= ?", chargerID, since).
			Select("health, COUNT(*) as count").
			Group("health").
			Scan(&rows).Error
	})
	if err != nil {
		return nil, err
	}
	stats := make(map[domain.HeartbeatHealth]int64, len(rows))
	for _, r := range rows {
		stats[r.Health] = r.Count
	}
	return stats, nil
}

func (r *HistoryRepository) StatusDurations(ctx context.Context, chargerID string, since time.Time) (map[domain.ChargerStatus]float64, error) {
	type row struct {
		PreviousStatus domain.ChargerStatus
		Total          float64
	}
	var rows []row
	err := r.guard.Do("status durations", func() error {
		return r.db.WithContext(ctx).Model(&domain.StatusEvent{}).
			Where("charger_id = ? AND timestamp >= ? AND duration_seconds IS NOT NULL", chargerID, since).
			Select("previous_status, SUM(duration_seconds) as total").
			Group("previous_status").
			Scan(&rows).Error
	})
	if err != nil {
		return nil, err
	}
	durations := make(map[domain.ChargerStatus]float64, len(rows))
	for _, r := range rows {
		durations[r.PreviousStatus] = r.Total
	}
	return durations, nil
}
