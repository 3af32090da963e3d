package placement

import (
	"math"
	"sort"

	"go.opentelemetry.io/otel/attribute"

	"storefront/internal/pkg/logger"
	"storefront/internal/service/order/domain"
)

// AggregateStock 合并同一库存键的所有行，避免对同一行库存重复加锁和扣减。
// 合并后的数量溢出或不为正时返回 ValidationError。
func AggregateStock(lines []domain.CartLine) (map[domain.InventoryKey]int, error) {
	required := make(map[domain.InventoryKey]int, len(lines))
	for _, l := range lines {
		k := l.Key()
		if l.Quantity <= 0 || required[k] > math.MaxInt-l.Quantity {
			return nil, &domain.ValidationError{Field: "quantity", Reason: "aggregated quantity out of range for " + k.String()}
		}
		required[k] += l.Quantity
	}
	return required, nil
}

// SortedKeys 返回按全序排列的库存键，所有事务都用这个顺序加锁
func SortedKeys(required map[domain.InventoryKey]int) []domain.InventoryKey {
	keys := make([]domain.InventoryKey, 0, len(required))
	for k := range required {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	return keys
}

type AggregateHandler struct {
	NextHandler
}

func (h *AggregateHandler) Handle(pc *PlacementContext) error {
	_, span := pc.Tracer.Start(pc.Ctx, "placement.AggregateStock")
	required, err := AggregateStock(pc.Lines)
	if err != nil {
		span.RecordError(err)
		span.End()
		return err
	}
	pc.Required = required
	span.SetAttributes(attribute.Int("inventory_keys", len(pc.Required)))
	span.End()

	logger.Ctx(pc.Ctx).Debug().Int("keys", len(pc.Required)).Msg("【下单】=> 步骤 4: 合并库存需求")
	return h.executeNext(pc)
}
