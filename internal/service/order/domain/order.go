// internal/service/order/domain/order.go
package domain

import (
	"fmt"
	"time"
)

// Order 是按店铺拆分后的订单头。
// 创建后只有 Status 会被订单管理侧修改。
type Order struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	ShopID    string    `json:"shopId"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// OrderLine 归属于唯一的订单，创建后不再修改
type OrderLine struct {
	OrderID   string `json:"orderId"`
	ProductID string `json:"productId"`
	ShopID    string `json:"shopId"`
	Size      string `json:"size"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unitPrice"`
}

// OrderDetail 是订单头加上它的所有明细，供订单查询使用
type OrderDetail struct {
	Order
	Lines []OrderLine `json:"lines"`
}

// Total 订单总额（分）
func (d OrderDetail) Total() int64 {
	var total int64
	for _, l := range d.Lines {
		total += l.UnitPrice * int64(l.Quantity)
	}
	return total
}

// CreationResult 是下单成功后返回给调用方的只读结果，不会被持久化
type CreationResult struct {
	OrderIDs      []string          `json:"orderIds"`
	ShopToOrderID map[string]string `json:"shopOrders"`
}

// 工厂函数: NewOrder 创建一个待处理的订单头
func NewOrder(id, userID, shopID string, now time.Time) Order {
	return Order{
		ID:        id,
		UserID:    userID,
		ShopID:    shopID,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TransitionTo 只负责状态流转的合法性校验，不负责持久化
func (o *Order) TransitionTo(next Status, now time.Time) error {
	if !o.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, next)
	}
	o.Status = next
	o.UpdatedAt = now
	return nil
}

// CanTransitionTo pending -> shipped -> delivered；只有 pending 可以取消
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusShipped || next == StatusCancelled
	case StatusShipped:
		return next == StatusDelivered
	default:
		return false
	}
}
