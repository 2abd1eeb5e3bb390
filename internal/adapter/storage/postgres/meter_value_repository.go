package postgres

import (
	"context"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/seu-repo/ocpp-csms/internal/domain"
	"github.com/seu-repo/ocpp-csms/internal/ports"
)

type MeterValueRepository struct {
	db    *gorm.DB
	guard *Guard
	log   *zap.Logger
}

func NewMeterValueRepository(db *gorm.DB, guard *Guard, log *zap.Logger) ports.MeterValueRepository {
	return &MeterValueRepository{db: db, guard: guard, log: log}
}

func (r *MeterValueRepository) Append(ctx context.Context, mv *domain.MeterValue) error {
	return r.guard.Do("append meter value", func() error {
		return r.db.WithContext(ctx).Create(mv).Error
	})
}

func (r *MeterValueRepository) ListByTransaction(ctx context.Context, transactionID int64) ([]domain.MeterValue, error) {
	var values []domain.MeterValue
	err := r.guard.Do("list meter values", func() error {
		return r.db.WithContext(ctx).
			Where("transaction_id = ?", transactionID).
			Order("timestamp asc").
			Find(&values).Error
	})
	if err != nil {
		return nil, err
	}
	return values, nil
}
