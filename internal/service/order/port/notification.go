package port

import (
	"context"

	"storefront/internal/service/order/domain"
)

// OrderEventPublisher 是消息生产者的出站端口。
type OrderEventPublisher interface {
	// PublishOrderPlaced 发送店铺订单创建成功的事件。
	PublishOrderPlaced(ctx context.Context, event *domain.OrderPlaced) error
}
