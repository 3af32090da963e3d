package placement

import (
	"go.opentelemetry.io/otel/attribute"

	"storefront/internal/pkg/logger"
	"storefront/internal/service/order/domain"
)

// ShopGroup 是同一店铺的购物车行
type ShopGroup struct {
	ShopID string
	Lines  []domain.CartLine
}

// SplitByShop 按店铺分组，分组顺序就是店铺在输入中首次出现的顺序，组内保持原始行序。
// 同样的输入总是得到同样的分组顺序。
func SplitByShop(lines []domain.CartLine) []ShopGroup {
	index := make(map[string]int)
	var groups []ShopGroup
	for _, l := range lines {
		i, ok := index[l.ShopID]
		if !ok {
			i = len(groups)
			index[l.ShopID] = i
			groups = append(groups, ShopGroup{ShopID: l.ShopID})
		}
		groups[i].Lines = append(groups[i].Lines, l)
	}
	return groups
}

// SplitHandler 负责把购物车拆分为按店铺的订单组
type SplitHandler struct {
	NextHandler
}

func (h *SplitHandler) Handle(pc *PlacementContext) error {
	_, span := pc.Tracer.Start(pc.Ctx, "placement.SplitByShop")
	pc.Groups = SplitByShop(pc.Lines)
	span.SetAttributes(attribute.Int("shops", len(pc.Groups)))
	span.End()

	logger.Ctx(pc.Ctx).Debug().Int("shops", len(pc.Groups)).Msg("【下单】=> 步骤 1: 按店铺拆单")
	return h.executeNext(pc)
}
