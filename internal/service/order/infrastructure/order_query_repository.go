package infrastructure

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"storefront/internal/service/order/domain"
)

// GormOrderQueryRepository 是 domain.OrderQueryRepository 的 GORM 实现
type GormOrderQueryRepository struct {
	db *gorm.DB
}

func NewGormOrderQueryRepository(db *gorm.DB) *GormOrderQueryRepository {
	return &GormOrderQueryRepository{db: db}
}

func (r *GormOrderQueryRepository) FindByUser(ctx context.Context, userID string) ([]domain.Order, error) {
	var models []OrderModel
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&models).Error
	if err != nil {
		return nil, errors.Wrapf(err, "find orders of user %s", userID)
	}

	orders := make([]domain.Order, 0, len(models))
	for i := range models {
		orders = append(orders, ToDomainOrder(&models[i]))
	}
	return orders, nil
}

func (r *GormOrderQueryRepository) FindDetail(ctx context.Context, orderID string) (*domain.OrderDetail, error) {
	var m OrderModel
	if err := r.db.WithContext(ctx).Where("id = ?", orderID).Take(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, errors.Wrapf(err, "find order %s", orderID)
	}

	var lineModels []OrderLineModel
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).Order("id").Find(&lineModels).Error; err != nil {
		return nil, errors.Wrapf(err, "find lines of order %s", orderID)
	}

	detail := &domain.OrderDetail{Order: ToDomainOrder(&m), Lines: make([]domain.OrderLine, 0, len(lineModels))}
	for i := range lineModels {
		detail.Lines = append(detail.Lines, ToDomainOrderLine(&lineModels[i]))
	}
	return detail, nil
}

// UpdateStatus 锁定订单行后校验状态流转，只更新 status 与 updated_at
func (r *GormOrderQueryRepository) UpdateStatus(ctx context.Context, orderID string, next domain.Status) (*domain.Order, error) {
	var updated domain.Order
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m OrderModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", orderID).Take(&m).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrOrderNotFound
			}
			return errors.Wrapf(err, "lock order %s", orderID)
		}

		order := ToDomainOrder(&m)
		if err := order.TransitionTo(next, time.Now().UTC()); err != nil {
			return err
		}

		err = tx.Model(&OrderModel{}).
			Where("id = ?", orderID).
			Updates(map[string]any{"status": string(order.Status), "updated_at": order.UpdatedAt}).Error
		if err != nil {
			return errors.Wrapf(err, "update status of order %s", orderID)
		}
		updated = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}
