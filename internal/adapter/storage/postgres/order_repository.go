package postgres

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/seu-repo/ocpp-csms/internal/domain"
	"github.com/seu-repo/ocpp-csms/internal/ports"
)

type OrderRepository struct {
	db    *gorm.DB
	guard *Guard
	log   *zap.Logger
}

func NewOrderRepository(db *gorm.DB, guard *Guard, log *zap.Logger) ports.OrderRepository {
	return &OrderRepository{db: db, guard: guard, log: log}
}

func (r *OrderRepository) Save(ctx context.Context, order *domain.Order) error {
	return r.guard.Do("save order", func() error {
		return r.db.WithContext(ctx).Save(order).Error
	})
}

func (r *OrderRepository) FindByID(ctx context.Context, id string) (*domain.Order, error) {
	var order domain.Order
	found := false
	err := r.guard.Do("find order", func() error {
		err := r.db.WithContext(ctx).First(&order, "id = ?", id).Error
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
	return &order, nil
}

func (r *OrderRepository) FindByTransactionID(ctx context.Context, transactionID int64) (*domain.Order, error) {
	var order domain.Order
	found := false
	err := r.guard.Do("find order by transaction", func() error {
		err := r.db.WithContext(ctx).First(&order, "transaction_id = ?", transactionID).Error
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
	return &order, nil
}

func (r *OrderRepository) List(ctx context.Context, limit int) ([]domain.Order, error) {
	var orders []domain.Order
	err := r.guard.Do("list orders", func() error {
		q := r.db.WithContext(ctx).Order("start_time desc")
		if limit > 0 {
			q = q.Limit(limit)
		}
		return q.Find(&orders).Error
	})
	if err != nil {
		return nil, err
	}
	return orders, nil
}
