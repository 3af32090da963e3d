package port

import (
	"context"

	"storefront/internal/service/order/domain"
)

// CartProvider 是购物车/会话服务的出站端口。
type CartProvider interface {
	// Load 读取用户当前购物车
	Load(ctx context.Context, userID string) ([]domain.CartLine, error)

	// Remove 只在下单成功后调用，移除本次已结算且未被改动过的购物车行。
	Remove(ctx context.Context, userID string, lines []domain.CartLine) error
}
