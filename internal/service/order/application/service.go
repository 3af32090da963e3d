// internal/service/order/application/service.go
package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"storefront/internal/pkg/logger"
	"storefront/internal/service/order/domain"
	"storefront/internal/service/order/port"
)

// OrderPlacer 是下单引擎的入口，由 placement.Coordinator 实现
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, userID string, lines []domain.CartLine) (*domain.CreationResult, error)
}

// OrderApplicationService 编排一次结算：预授权、下单引擎、清理购物车、发布事件。
type OrderApplicationService struct {
	placer            OrderPlacer
	payment           port.PaymentAuthorizer
	cart              port.CartProvider        // 可以为 nil
	publisher         port.OrderEventPublisher // 可以为 nil
	processingTimeout time.Duration
	tracer            trace.Tracer
	now               func() time.Time
}

func NewOrderApplicationService(
	placer OrderPlacer,
	payment port.PaymentAuthorizer,
	cart port.CartProvider,
	publisher port.OrderEventPublisher,
	processingTimeout time.Duration,
	tracer trace.Tracer,
) *OrderApplicationService {
	return &OrderApplicationService{
		placer:            placer,
		payment:           payment,
		cart:              cart,
		publisher:         publisher,
		processingTimeout: processingTimeout,
		tracer:            tracer,
		now:               func() time.Time { return time.Now().UTC() },
	}
}

// PlaceOrder 是暴露给接口层的结算入口。失败不会自动重试，由调用方决定。
func (s *OrderApplicationService) PlaceOrder(ctx context.Context, req *PlaceOrderRequest) (resp *PlaceOrderResponse, err error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "app.PlaceOrder", trace.WithAttributes(attribute.String("user.id", req.UserID)))
	defer span.End()

	defer func() {
		outcome := classifyOutcome(err)
		checkoutsTotal.WithLabelValues(outcome).Inc()
		checkoutDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
		}
	}()

	if s.processingTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.processingTimeout)
		defer cancel()
	}

	// 1. 校验请求
	if err := req.validate(); err != nil {
		return nil, err
	}

	// 2. 请求中没有携带商品行时，从购物车读取
	lines := req.Lines
	if len(lines) == 0 && s.cart != nil {
		lines, err = s.cart.Load(ctx, req.UserID)
		if err != nil {
			return nil, fmt.Errorf("load cart: %w", err)
		}
	}
	if err := domain.ValidateCart(req.UserID, lines); err != nil {
		return nil, err
	}
	total, err := domain.CartTotal(lines)
	if err != nil {
		return nil, err
	}

	// 3. 预授权，并登记撤销动作
	comps := &compensations{}
	auth, err := s.payment.Authorize(ctx, req.UserID, req.PaymentToken, total)
	if err != nil {
		return nil, err
	}
	span.AddEvent("Payment authorized.", trace.WithAttributes(attribute.String("payment.authorization_id", auth.ID)))
	comps.add(func(ctx context.Context) {
		if voidErr := s.payment.Void(ctx, auth); voidErr != nil {
			logger.Ctx(ctx).Error().Err(voidErr).Str("authorization_id", auth.ID).Msg("[Order: checkout] CRITICAL: failed to void payment authorization")
		}
	})

	// 4. 下单引擎
	result, err := s.placer.PlaceOrder(ctx, req.UserID, lines)
	if err != nil {
		// 补偿不受请求超时影响
		comps.trigger(context.WithoutCancel(ctx), req.UserID)
		return nil, err
	}
	ordersCreatedTotal.Add(float64(len(result.OrderIDs)))

	// 5. 后续动作失败只记录日志，订单已经提交
	s.clearCart(ctx, req.UserID, lines)
	s.publishOrderPlaced(ctx, span, req.UserID, lines, result)

	logger.Ctx(ctx).Info().
		Str("user_id", req.UserID).
		Strs("order_ids", result.OrderIDs).
		Int64("total", total).
		Msg("[Order: checkout] checkout completed")

	return &PlaceOrderResponse{
		OrderIDs:      result.OrderIDs,
		ShopToOrderID: result.ShopToOrderID,
		Total:         total,
	}, nil
}

func (s *OrderApplicationService) clearCart(ctx context.Context, userID string, lines []domain.CartLine) {
	if s.cart == nil {
		return
	}
	if err := s.cart.Remove(ctx, userID, lines); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("user_id", userID).Msg("[Order: checkout] failed to clear checked-out cart lines")
	}
}

func (s *OrderApplicationService) publishOrderPlaced(ctx context.Context, span trace.Span, userID string, lines []domain.CartLine, result *domain.CreationResult) {
	if s.publisher == nil {
		return
	}
	traceID := span.SpanContext().TraceID().String()
	placedAt := s.now()

	byOrder := make(map[string][]domain.OrderLine, len(result.OrderIDs))
	totals := make(map[string]int64, len(result.OrderIDs))
	for _, l := range lines {
		orderID := result.ShopToOrderID[l.ShopID]
		byOrder[orderID] = append(byOrder[orderID], domain.OrderLine{
			OrderID:   orderID,
			ProductID: l.ProductID,
			ShopID:    l.ShopID,
			Size:      l.Size,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
		})
		totals[orderID] += l.Subtotal()
	}

	for shopID, orderID := range result.ShopToOrderID {
		event := &domain.OrderPlaced{
			TraceID:  traceID,
			OrderID:  orderID,
			UserID:   userID,
			ShopID:   shopID,
			Lines:    byOrder[orderID],
			Total:    totals[orderID],
			PlacedAt: placedAt,
		}
		if err := s.publisher.PublishOrderPlaced(ctx, event); err != nil {
			eventPublishFailuresTotal.Inc()
			logger.Ctx(ctx).Error().Err(err).Str("order_id", orderID).Msg("[Order: checkout] failed to publish OrderPlaced event")
		}
	}
}

// classifyOutcome 把错误归类为指标标签
func classifyOutcome(err error) string {
	var (
		validationErr *domain.ValidationError
		stockErr      *domain.StockError
	)
	switch {
	case err == nil:
		return outcomeSuccess
	case errors.As(err, &validationErr):
		return outcomeValidation
	case errors.Is(err, domain.ErrPaymentDeclined):
		return outcomeDeclined
	case errors.As(err, &stockErr):
		stockRejectionsTotal.WithLabelValues(stockErr.Reason.Error()).Inc()
		return outcomeStock
	case domain.IsRetryable(err):
		return outcomeRetryable
	default:
		return outcomeError
	}
}
