package port

import "context"

// Authorization 是支付网关返回的预授权凭据
type Authorization struct {
	ID     string
	Amount int64
}

// PaymentAuthorizer 是支付服务的出站端口。
// 预授权必须在下单引擎运行之前完成，引擎本身不调用支付。
type PaymentAuthorizer interface {
	// Authorize 对给定金额（分）做预授权，被拒绝时返回 domain.ErrPaymentDeclined。
	Authorize(ctx context.Context, userID, paymentToken string, amount int64) (*Authorization, error)

	// Void 是 Authorize 的补偿操作，用于下单失败后撤销预授权。
	Void(ctx context.Context, auth *Authorization) error
}
