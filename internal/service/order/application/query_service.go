package application

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"storefront/internal/pkg/logger"
	"storefront/internal/service/order/domain"
)

// OrderQueryService 服务于订单历史、商家看板与履约状态更新
type OrderQueryService struct {
	repo   domain.OrderQueryRepository
	tracer trace.Tracer
}

func NewOrderQueryService(repo domain.OrderQueryRepository, tracer trace.Tracer) *OrderQueryService {
	return &OrderQueryService{repo: repo, tracer: tracer}
}

func (s *OrderQueryService) ListOrders(ctx context.Context, userID string) ([]domain.Order, error) {
	if userID == "" {
		return nil, &domain.ValidationError{Field: "userId", Reason: "must not be empty"}
	}
	ctx, span := s.tracer.Start(ctx, "app.ListOrders", trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	orders, err := s.repo.FindByUser(ctx, userID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if orders == nil {
		orders = []domain.Order{}
	}
	return orders, nil
}

func (s *OrderQueryService) GetOrder(ctx context.Context, orderID string) (*domain.OrderDetail, error) {
	ctx, span := s.tracer.Start(ctx, "app.GetOrder", trace.WithAttributes(attribute.String("order.id", orderID)))
	defer span.End()

	detail, err := s.repo.FindDetail(ctx, orderID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return detail, nil
}

// UpdateStatus 只允许 pending→shipped→delivered 与 pending→cancelled
func (s *OrderQueryService) UpdateStatus(ctx context.Context, orderID string, status string) (*domain.Order, error) {
	next, err := domain.ParseStatus(status)
	if err != nil {
		return nil, err
	}
	ctx, span := s.tracer.Start(ctx, "app.UpdateStatus", trace.WithAttributes(
		attribute.String("order.id", orderID),
		attribute.String("order.status", string(next)),
	))
	defer span.End()

	order, err := s.repo.UpdateStatus(ctx, orderID, next)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("update status of order %s: %w", orderID, err)
	}
	logger.Ctx(ctx).Info().Str("order_id", orderID).Str("status", string(order.Status)).Msg("[Order: status] order status updated")
	return order, nil
}
