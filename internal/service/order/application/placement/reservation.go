package placement

import (
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"storefront/internal/pkg/logger"
	"storefront/internal/service/order/domain"
)

// ReservationHandler 负责库存预占：按全序逐个加锁并校验，全部通过后才一次性扣减。
// 任何一个键校验失败，都不会有任何扣减被执行。
type ReservationHandler struct {
	NextHandler
}

func (h *ReservationHandler) Handle(pc *PlacementContext) error {
	ctx, span := pc.Tracer.Start(pc.Ctx, "placement.ReserveStock")
	defer span.End()

	keys := SortedKeys(pc.Required)
	decrements := make([]domain.StockDecrement, 0, len(keys))

	for _, key := range keys {
		required := pc.Required[key]
		if required <= 0 {
			err := &domain.ValidationError{Field: "quantity", Reason: fmt.Sprintf("required quantity for %s must be positive, got %d", key, required)}
			recordReservationFailure(span, key, err)
			return err
		}

		// 1. 加排他锁，其他事务持有时在这里阻塞
		record, err := pc.Tx.LockStock(ctx, key)
		if err != nil {
			if errors.Is(err, domain.ErrStockNotFound) {
				err = &domain.StockError{Key: key, Reason: domain.ErrStockNotFound, Required: required}
			} else {
				err = fmt.Errorf("lock stock %s: %w", key, err)
			}
			recordReservationFailure(span, key, err)
			return err
		}

		// 2. 校验可用数量
		if record.Quantity < required {
			err := &domain.StockError{
				Key:       key,
				Reason:    domain.ErrInsufficientStock,
				Required:  required,
				Available: record.Quantity,
			}
			recordReservationFailure(span, key, err)
			return err
		}

		// 3. 只排队，不立即扣减
		decrements = append(decrements, domain.StockDecrement{Key: key, Quantity: required})
	}

	// 4. 全部校验通过后，一次分组写入完成扣减
	if err := pc.Tx.DecrementStock(ctx, decrements); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "apply stock decrements failed")
		return fmt.Errorf("apply stock decrements: %w", err)
	}
	pc.Decrements = decrements
	pc.advance(StateStockReserved)

	span.AddEvent("All inventory keys reserved successfully")
	logger.Ctx(ctx).Debug().Int("keys", len(decrements)).Msg("【下单】=> 步骤 5: 库存预占完成")
	return h.executeNext(pc)
}

func recordReservationFailure(span trace.Span, key domain.InventoryKey, err error) {
	span.SetAttributes(attribute.String("stock.key", key.String()))
	span.RecordError(err)
	span.SetStatus(codes.Error, "Inventory reservation failed")
}
