package postgres

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/seu-repo/ocpp-csms/internal/domain"
	"github.com/seu-repo/ocpp-csms/internal/ports"
)

type ChargerRepository struct {
	db    *gorm.DB
	guard *Guard
	log   *zap.Logger
}

func NewChargerRepository(db *gorm.DB, guard *Guard, log *zap.Logger) ports.ChargerRepository {
	return &ChargerRepository{db: db, guard: guard, log: log}
}

func (r *ChargerRepository) Save(ctx context.Context, charger *domain.Charger) error {
	return r.guard.Do("save charger", func() error {
		return r.db.WithContext(ctx).Save(charger).Error
	})
}

func (r *ChargerRepository) FindByID(ctx context.Context, id string) (*domain.Charger, error) {
	var charger domain.Charger
	found := false
	err := r.guard.Do("find charger", func() error {
		err := r.db.WithContext(ctx).First(&charger, "id = ?", id).Error
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
	return &charger, nil
}

func (r *ChargerRepository) List(ctx context.Context, activeOnly bool) ([]domain.Charger, error) {
	var chargers []domain.Charger
	err := r.guard.Do("list chargers", func() error {
		q := r.db.WithContext(ctx).Order("id")
		if activeOnly {
			q = q.Where("is_active = ?", true)
		}
		return q.Find(&chargers).Error
	})
	if err != nil {
		return nil, err
	}
	return chargers, nil
}

func (r *ChargerRepository) UpsertConfiguration(ctx context.Context, cfg *domain.ChargerConfiguration) error {
	return r.guard.Do("upsert charger configuration", func() error {
		return r.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "charger_id"}, {Name: "config_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"config_value", "readonly", "updated_at"}),
		}).Create(cfg).Error
	})
}

func (r *ChargerRepository) ListConfigurations(ctx context.Context, chargerID string) ([]domain.ChargerConfiguration, error) {
	var cfgs []domain.ChargerConfiguration
	err := r.guard.Do("list charger configurations", func() error {
		return r.db.WithContext(ctx).Where("charger_id = ?", chargerID).Order("config_key").Find(&cfgs).Error
	})
	if err != nil {
		return nil, err
	}
	return cfgs, nil
}
