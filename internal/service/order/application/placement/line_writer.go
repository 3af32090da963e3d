package placement

import (
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"storefront/internal/pkg/logger"
	"storefront/internal/service/order/domain"
)

// LineWriter 把每个店铺的购物车行写入对应订单。
// 单价原样复制，是下单时刻的价格，不会从当前商品价格重新计算。
type LineWriter struct {
	NextHandler
}

func (h *LineWriter) Handle(pc *PlacementContext) error {
	ctx, span := pc.Tracer.Start(pc.Ctx, "placement.WriteLines")
	defer span.End()

	lines := make([]domain.OrderLine, 0, len(pc.Lines))
	for _, g := range pc.Groups {
		orderID, ok := pc.ShopToOrderID[g.ShopID]
		if !ok {
			err := &domain.IntegrityError{
				Expected: len(pc.Groups),
				Got:      len(pc.ShopToOrderID),
				Detail:   "no order id for shop " + g.ShopID,
			}
			span.RecordError(err)
			return err
		}
		for _, l := range g.Lines {
			lines = append(lines, domain.OrderLine{
				OrderID:   orderID,
				ProductID: l.ProductID,
				ShopID:    l.ShopID,
				Size:      l.Size,
				Quantity:  l.Quantity,
				UnitPrice: l.UnitPrice,
			})
		}
	}

	if err := pc.Tx.InsertOrderLines(ctx, lines); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert order lines failed")
		return fmt.Errorf("insert order lines: %w", err)
	}
	pc.advance(StateLinesWritten)

	span.SetAttributes(attribute.Int("lines", len(lines)))
	logger.Ctx(ctx).Debug().Int("lines", len(lines)).Msg("【下单】=> 步骤 3: 订单明细已写入")
	return h.executeNext(pc)
}
