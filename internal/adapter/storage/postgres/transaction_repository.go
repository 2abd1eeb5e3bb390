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

type TransactionRepository struct {
	db    *gorm.DB
	guard *Guard
	log   *zap.Logger
}

func NewTransactionRepository(db *gorm.DB, guard *Guard, log *zap.Logger) ports.TransactionRepository {
	return &TransactionRepository{db: db, guard: guard, log: log}
}

func (r *TransactionRepository) Save(ctx context.Context, tx *domain.Transaction) error {
	return r.guard.Do("save transaction", func() error {
		return r.db.WithContext(ctx).Save(tx).Error
	})
}

func (r *TransactionRepository) FindByTransactionID(ctx context.Context, transactionID int64) (*domain.Transaction, error) {
	var tx domain.Transaction
	found := false
	err := r.guard.Do("find transaction", func() error {
		err := r.db.WithContext(ctx).First(&tx, "transaction_id = ?", transactionID).Error
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
	return &tx, nil
}

func (r *TransactionRepository) FindOngoingByCharger(ctx context.Context, chargerID string) (*domain.Transaction, error) {
	var tx domain.Transaction
	found := false
	err := r.guard.Do("find ongoing transaction", func() error {
		err := r.db.WithContext(ctx).
			Where("charger_id = ? AND status = ?", chargerID, domain.TxOngoing).
			Order("start_time desc").
			First(&tx).Error
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
	return &tx, nil
}

func (r *TransactionRepository) ListByCharger(ctx context.Context, chargerID string, limit int) ([]domain.Transaction, error) {
	var txs []domain.Transaction
	err := r.guard.Do("list transactions", func() error {
		q := r.db.WithContext(ctx).Where("charger_id = ?", chargerID).Order("start_time desc")
		if limit > 0 {
			q = q.Limit(limit)
		}
		return q.Find(&txs).Error
	})
	if err != nil {
		return nil, err
	}
	return txs, nil
}

func (r *TransactionRepository) CountByStatus(ctx context.Context, status domain.TransactionStatus) (int64, error) {
	var count int64
	err := r.guard.Do("count transactions", func() error {
		return r.db.WithContext(ctx).Model(&domain.Transaction{}).
			Where("status = ?", status).
			Count(&count).Error
	})
	return count, err
}

func (r *TransactionRepository) EnergyDeliveredSince(ctx context.Context, since time.Time) (float64, error) {
	var total *float64
	err := r.guard.Do("sum energy delivered", func() error {
		return r.db.WithContext(ctx).Model(&domain.Transaction{}).
			Where("status = ? AND end_time >= ?", domain.TxCompleted, since).
			Select("SUM(energy_kwh)").
			Scan(&total).Error
	})
	if err != nil || total == nil {
		return 0, err
	}
	return *total, nil
}
