// internal/service/order/domain/state.go
package domain

// Status 定义了订单的生命周期状态
type Status string

const (
	StatusPending   Status = "pending"   // 下单成功，等待发货
	StatusShipped   Status = "shipped"   // 已发货
	StatusDelivered Status = "delivered" // 已签收
	StatusCancelled Status = "cancelled" // 已取消
)

// ParseStatus 将外部输入转换为订单状态
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusPending, StatusShipped, StatusDelivered, StatusCancelled:
		return st, nil
	default:
		return "", &ValidationError{Field: "status", Reason: "unknown status " + s}
	}
}

// IsTerminal 终态不允许再流转
func (s Status) IsTerminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}
