package placement

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"

	"storefront/internal/service/order/domain"
)

// State 是一次下单事务所处的阶段
type State string

const (
	StateStarted        State = "STARTED"
	StateHeadersWritten State = "HEADERS_WRITTEN"
	StateLinesWritten   State = "LINES_WRITTEN"
	StateStockReserved  State = "STOCK_RESERVED"
	StateCommitted      State = "COMMITTED"
	StateRolledBack     State = "ROLLED_BACK"
)

// PlacementContext 在责任链中传递一次下单的全部数据。
// 它只属于一个事务，不会被多个 goroutine 共享。
type PlacementContext struct {
	Ctx    context.Context
	Tracer trace.Tracer
	Tx     domain.Tx

	UserID string
	Lines  []domain.CartLine
	Now    time.Time

	// 各步骤的产出
	Groups        []ShopGroup
	OrderIDs      []string
	ShopToOrderID map[string]string
	Required      map[domain.InventoryKey]int
	Decrements    []domain.StockDecrement

	state State
}

func (c *PlacementContext) State() State {
	return c.state
}

func (c *PlacementContext) advance(next State) {
	c.state = next
}

// Result 在提交后构造返回给调用方的结果
func (c *PlacementContext) Result() *domain.CreationResult {
	ids := make([]string, len(c.OrderIDs))
	copy(ids, c.OrderIDs)
	shops := make(map[string]string, len(c.ShopToOrderID))
	for shop, id := range c.ShopToOrderID {
		shops[shop] = id
	}
	return &domain.CreationResult{OrderIDs: ids, ShopToOrderID: shops}
}

// Handler 是责任链上的一个步骤
type Handler interface {
	SetNext(handler Handler) Handler
	Handle(pc *PlacementContext) error
}

type NextHandler struct {
	next Handler
}

func (h *NextHandler) SetNext(handler Handler) Handler {
	h.next = handler
	return handler
}

func (h *NextHandler) executeNext(pc *PlacementContext) error {
	if h.next != nil {
		return h.next.Handle(pc)
	}
	return nil
}
