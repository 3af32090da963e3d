package placement

import (
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"storefront/internal/pkg/logger"
	"storefront/internal/service/order/domain"
)

// HeaderWriter 为每个店铺创建一个订单头。
// 订单 ID 由本服务生成并随插入一起提交，存储层回读实际写入的 ID，
// 店铺与订单的对应关系只依赖这个显式 ID，不依赖批量插入结果的顺序。
type HeaderWriter struct {
	NextHandler
	newID func() string
}

func NewHeaderWriter(newID func() string) *HeaderWriter {
	if newID == nil {
		newID = uuid.NewString
	}
	return &HeaderWriter{newID: newID}
}

func (h *HeaderWriter) Handle(pc *PlacementContext) error {
	ctx, span := pc.Tracer.Start(pc.Ctx, "placement.WriteHeaders")
	defer span.End()

	orders := make([]domain.Order, 0, len(pc.Groups))
	for _, g := range pc.Groups {
		orders = append(orders, domain.NewOrder(h.newID(), pc.UserID, g.ShopID, pc.Now))
	}

	persisted, err := pc.Tx.InsertOrders(ctx, orders)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert order headers failed")
		return fmt.Errorf("insert order headers: %w", err)
	}

	shopToOrder, err := correlateOrderIDs(orders, persisted)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "order id correlation failed")
		return err
	}

	pc.OrderIDs = make([]string, 0, len(orders))
	for _, o := range orders {
		pc.OrderIDs = append(pc.OrderIDs, o.ID)
	}
	pc.ShopToOrderID = shopToOrder
	pc.advance(StateHeadersWritten)

	span.SetAttributes(attribute.StringSlice("order.ids", pc.OrderIDs))
	logger.Ctx(ctx).Debug().Strs("orders", pc.OrderIDs).Msg("【下单】=> 步骤 2: 订单头已写入")
	return h.executeNext(pc)
}

// correlateOrderIDs 校验存储层回读的 ID 与提交的订单一一对应
func correlateOrderIDs(submitted []domain.Order, persisted []string) (map[string]string, error) {
	if len(persisted) != len(submitted) {
		return nil, &domain.IntegrityError{Expected: len(submitted), Got: len(persisted)}
	}

	shopByID := make(map[string]string, len(submitted))
	for _, o := range submitted {
		shopByID[o.ID] = o.ShopID
	}

	shopToOrder := make(map[string]string, len(submitted))
	for _, id := range persisted {
		shop, ok := shopByID[id]
		if !ok {
			return nil, &domain.IntegrityError{Expected: len(submitted), Got: len(persisted), Detail: "unknown order id " + id}
		}
		if _, dup := shopToOrder[shop]; dup {
			return nil, &domain.IntegrityError{Expected: len(submitted), Got: len(persisted), Detail: "duplicate order id for shop " + shop}
		}
		shopToOrder[shop] = id
	}
	return shopToOrder, nil
}
