package adapter

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"storefront/internal/pkg/httpclient"
	"storefront/internal/service/order/domain"
	"storefront/internal/service/order/port"
)

// PaymentHTTPAdapter 是 port.PaymentAuthorizer 接口的 HTTP 实现。
type PaymentHTTPAdapter struct {
	client       *httpclient.Client
	authorizeURL string
	voidURL      string
}

// NewPaymentHTTPAdapter 创建一个新的支付服务适配器实例。
func NewPaymentHTTPAdapter(client *httpclient.Client, authorizeURL, voidURL string) *PaymentHTTPAdapter {
	return &PaymentHTTPAdapter{client: client, authorizeURL: authorizeURL, voidURL: voidURL}
}

type authorizeRequest struct {
	UserID       string `json:"userId"`
	PaymentToken string `json:"paymentToken"`
	Amount       int64  `json:"amount"`
}

type authorizeResponse struct {
	AuthorizationID string `json:"authorizationId"`
	Amount          int64  `json:"amount"`
}

type voidRequest struct {
	AuthorizationID string `json:"authorizationId"`
}

// Authorize 支付服务以 402 表示拒绝
func (a *PaymentHTTPAdapter) Authorize(ctx context.Context, userID, paymentToken string, amount int64) (*port.Authorization, error) {
	var resp authorizeResponse
	err := a.client.PostJSON(ctx, a.authorizeURL, authorizeRequest{
		UserID:       userID,
		PaymentToken: paymentToken,
		Amount:       amount,
	}, &resp)
	if err != nil {
		var statusErr *httpclient.StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusPaymentRequired {
			return nil, fmt.Errorf("%w: %s", domain.ErrPaymentDeclined, statusErr.Body)
		}
		return nil, fmt.Errorf("authorize payment for user %s: %w", userID, err)
	}
	if resp.AuthorizationID == "" {
		return nil, fmt.Errorf("authorize payment for user %s: empty authorization id", userID)
	}
	return &port.Authorization{ID: resp.AuthorizationID, Amount: resp.Amount}, nil
}

func (a *PaymentHTTPAdapter) Void(ctx context.Context, auth *port.Authorization) error {
	if auth == nil {
		return nil
	}
	if err := a.client.PostJSON(ctx, a.voidURL, voidRequest{AuthorizationID: auth.ID}, nil); err != nil {
		return fmt.Errorf("void authorization %s: %w", auth.ID, err)
	}
	return nil
}
