// internal/service/order/application/dto.go
package application

import "storefront/internal/service/order/domain"

// PlaceOrderRequest 是下单用例的输入数据。
// Lines 为空时从购物车服务读取。
type PlaceOrderRequest struct {
	UserID       string            `json:"userId"`
	PaymentToken string            `json:"paymentToken"`
	Lines        []domain.CartLine `json:"lines,omitempty"`
}

// PlaceOrderResponse 是下单用例的输出数据
type PlaceOrderResponse struct {
	OrderIDs      []string          `json:"orderIds"`
	ShopToOrderID map[string]string `json:"shopOrders"`
	Total         int64             `json:"total"`
}

// UpdateStatusRequest 是更新订单状态用例的输入数据
type UpdateStatusRequest struct {
	Status string `json:"status"`
}

func (r *PlaceOrderRequest) validate() error {
	if r.UserID == "" {
		return &domain.ValidationError{Field: "userId", Reason: "must not be empty"}
	}
	if r.PaymentToken == "" {
		return &domain.ValidationError{Field: "paymentToken", Reason: "must not be empty"}
	}
	return nil
}
