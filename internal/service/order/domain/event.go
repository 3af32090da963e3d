// internal/service/order/domain/event.go
package domain

import "time"

// OrderPlaced 是每个店铺订单创建成功后发布的事件
type OrderPlaced struct {
	TraceID  string      `json:"traceId"`
	OrderID  string      `json:"orderId"`
	UserID   string      `json:"userId"`
	ShopID   string      `json:"shopId"`
	Lines    []OrderLine `json:"lines"`
	Total    int64       `json:"total"`
	PlacedAt time.Time   `json:"placedAt"`
}
