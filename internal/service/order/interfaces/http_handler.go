package interfaces

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"storefront/internal/pkg/logger"
	"storefront/internal/service/order/application"
	"storefront/internal/service/order/domain"
)

const serviceName = "order-service"

// 请求体大小上限
const maxBodyBytes = 1 << 20

// OrderHandler 封装了 order 服务的 HTTP 处理器
type OrderHandler struct {
	checkout *application.OrderApplicationService
	queries  *application.OrderQueryService
}

// NewOrderHandler 创建一个新的 HTTP 处理器实例
func NewOrderHandler(checkout *application.OrderApplicationService, queries *application.OrderQueryService) *OrderHandler {
	return &OrderHandler{checkout: checkout, queries: queries}
}

// RegisterRoutes 在 ServeMux 上注册所有路由
func (h *OrderHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("POST /orders", h.placeOrderHandler)
	mux.HandleFunc("GET /orders", h.listOrdersHandler)
	mux.HandleFunc("GET /orders/{id}", h.getOrderHandler)
	mux.HandleFunc("PATCH /orders/{id}/status", h.updateStatusHandler)
}

type errorResponse struct {
	Error     string `json:"error"`
	Retryable bool   `json:"retryable,omitempty"`
}

// startSpan 从请求头提取上游链路上下文并开启服务端 span
func startSpan(r *http.Request, name string) (context.Context, trace.Span) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	return otel.Tracer(serviceName).Start(ctx, name, trace.WithSpanKind(trace.SpanKindServer))
}

func (h *OrderHandler) placeOrderHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r, "http.PlaceOrder")
	defer span.End()
	r = r.WithContext(ctx)

	var req application.PlaceOrderRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, r, &domain.ValidationError{Field: "body", Reason: err.Error()})
		return
	}
	span.SetAttributes(
		attribute.String("user.id", req.UserID),
		attribute.Int("cart.lines", len(req.Lines)),
	)

	resp, err := h.checkout.PlaceOrder(ctx, &req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *OrderHandler) listOrdersHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r, "http.ListOrders")
	defer span.End()
	r = r.WithContext(ctx)

	orders, err := h.queries.ListOrders(ctx, r.URL.Query().Get("userId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

func (h *OrderHandler) getOrderHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r, "http.GetOrder")
	defer span.End()
	r = r.WithContext(ctx)

	detail, err := h.queries.GetOrder(ctx, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		*domain.OrderDetail
		Total int64 `json:"total"`
	}{detail, detail.Total()})
}

func (h *OrderHandler) updateStatusHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r, "http.UpdateOrderStatus")
	defer span.End()
	r = r.WithContext(ctx)

	var req application.UpdateStatusRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, r, &domain.ValidationError{Field: "body", Reason: err.Error()})
		return
	}
	order, err := h.queries.UpdateStatus(ctx, r.PathValue("id"), req.Status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// statusFor 把领域错误映射为 HTTP 状态码
func statusFor(err error) int {
	var (
		validationErr *domain.ValidationError
		stockErr      *domain.StockError
	)
	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrPaymentDeclined):
		return http.StatusPaymentRequired
	case errors.As(err, &stockErr):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, domain.ErrOrderNotFound):
		return http.StatusNotFound
	case domain.IsRetryable(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Int("status", status).Msg("request failed")
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), Retryable: domain.IsRetryable(err)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
