package placement

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"

	"storefront/internal/service/order/domain"
	"storefront/internal/service/order/infrastructure"
)

func newMemoryCoordinator(t *testing.T, stock map[domain.InventoryKey]int) (*Coordinator, *infrastructure.MemoryStore) {
	t.Helper()
	store := infrastructure.NewMemoryStore(2 * time.Second)
	for k, q := range stock {
		store.SetStock(k, q)
	}
	return NewCoordinator(store, noop.NewTracerProvider().Tracer("test")), store
}

func assertStock(t *testing.T, store *infrastructure.MemoryStore, k domain.InventoryKey, want int) {
	t.Helper()
	got, ok := store.Stock(k)
	require.True(t, ok, "stock %s missing", k)
	assert.Equal(t, want, got, "stock %s", k)
}

func TestCoordinator_TwoShopCheckout(t *testing.T) {
	c, store := newMemoryCoordinator(t, map[domain.InventoryKey]int{
		key("A", "shop1", "M"): 5,
		key("B", "shop2", "L"): 3,
	})

	result, err := c.PlaceOrder(context.Background(), "u1", []domain.CartLine{
		line("A", "shop1", "M", 2, 10),
		line("B", "shop2", "L", 1, 20),
	})
	require.NoError(t, err)

	require.Len(t, result.OrderIDs, 2)
	assert.Equal(t, result.OrderIDs[0], result.ShopToOrderID["shop1"])
	assert.Equal(t, result.OrderIDs[1], result.ShopToOrderID["shop2"])
	assert.NotEqual(t, result.OrderIDs[0], result.OrderIDs[1])

	assertStock(t, store, key("A", "shop1", "M"), 3)
	assertStock(t, store, key("B", "shop2", "L"), 2)
	assert.Equal(t, 2, store.OrderCount())
	assert.Equal(t, 2, store.LineCount())

	detail, err := store.FindDetail(context.Background(), result.ShopToOrderID["shop1"])
	require.NoError(t, err)
	assert.Equal(t, "shop1", detail.ShopID)
	assert.Equal(t, domain.StatusPending, detail.Status)
	require.Len(t, detail.Lines, 1)
	assert.Equal(t, int64(10), detail.Lines[0].UnitPrice)
	assert.Equal(t, 2, detail.Lines[0].Quantity)
}

func TestCoordinator_InsufficientStockLeavesNothing(t *testing.T) {
	c, store := newMemoryCoordinator(t, map[domain.InventoryKey]int{
		key("A", "shop1", "M"): 5,
	})

	result, err := c.PlaceOrder(context.Background(), "u1", []domain.CartLine{
		line("A", "shop1", "M", 10, 10),
	})
	require.Error(t, err)
	assert.Nil(t, result)

	var sErr *domain.StockError
	require.ErrorAs(t, err, &sErr)
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)
	assert.Equal(t, 10, sErr.Required)
	assert.Equal(t, 5, sErr.Available)

	assertStock(t, store, key("A", "shop1", "M"), 5)
	assert.Zero(t, store.OrderCount())
	assert.Zero(t, store.LineCount())
}

func TestCoordinator_OneShortKeyFailsWholeCart(t *testing.T) {
	c, store := newMemoryCoordinator(t, map[domain.InventoryKey]int{
		key("A", "shop1", "M"): 5,
		key("B", "shop2", "L"): 3,
		key("C", "shop3", "S"): 1,
	})
	lines := []domain.CartLine{
		line("A", "shop1", "M", 1, 10),
		line("B", "shop2", "L", 1, 20),
		line("C", "shop3", "S", 2, 30),
	}

	for attempt := 0; attempt < 2; attempt++ {
		_, err := c.PlaceOrder(context.Background(), "u1", lines)
		require.ErrorIs(t, err, domain.ErrInsufficientStock)

		assertStock(t, store, key("A", "shop1", "M"), 5)
		assertStock(t, store, key("B", "shop2", "L"), 3)
		assertStock(t, store, key("C", "shop3", "S"), 1)
		assert.Zero(t, store.OrderCount())
	}
}

func TestCoordinator_MissingStockRow(t *testing.T) {
	c, store := newMemoryCoordinator(t, map[domain.InventoryKey]int{
		key("A", "shop1", "M"): 5,
	})

	_, err := c.PlaceOrder(context.Background(), "u1", []domain.CartLine{
		line("A", "shop1", "M", 1, 10),
		line("Z", "shop1", "M", 1, 10),
	})
	var sErr *domain.StockError
	require.ErrorAs(t, err, &sErr)
	assert.ErrorIs(t, err, domain.ErrStockNotFound)
	assert.Equal(t, key("Z", "shop1", "M"), sErr.Key)
	assertStock(t, store, key("A", "shop1", "M"), 5)
	assert.Zero(t, store.OrderCount())
}

func TestCoordinator_AggregatesDuplicateKeys(t *testing.T) {
	c, store := newMemoryCoordinator(t, map[domain.InventoryKey]int{
		key("A", "shop1", "M"): 5,
	})

	result, err := c.PlaceOrder(context.Background(), "u1", []domain.CartLine{
		line("A", "shop1", "M", 2, 10),
		line("A", "shop1", "M", 3, 12),
	})
	require.NoError(t, err)
	assert.Len(t, result.OrderIDs, 1)
	assert.Equal(t, 2, store.LineCount())
	assertStock(t, store, key("A", "shop1", "M"), 0)
}

func TestCoordinator_OverflowingQuantitiesCannotRaiseStock(t *testing.T) {
	c, store := newMemoryCoordinator(t, map[domain.InventoryKey]int{
		key("A", "shop1", "M"): 5,
	})

	carts := [][]domain.CartLine{
		{line("A", "shop1", "M", math.MaxInt, 1), line("A", "shop1", "M", math.MaxInt-1, 1)},
		{line("A", "shop1", "M", domain.MaxLineQuantity+1, 1)},
	}
	for _, lines := range carts {
		result, err := c.PlaceOrder(context.Background(), "u1", lines)
		var vErr *domain.ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Nil(t, result)
	}

	// 单行合法但合并后超出库存，仍按库存不足处理
	lines := make([]domain.CartLine, 0, 3)
	for i := 0; i < 3; i++ {
		lines = append(lines, line("A", "shop1", "M", domain.MaxLineQuantity, 1))
	}
	_, err := c.PlaceOrder(context.Background(), "u1", lines)
	require.ErrorIs(t, err, domain.ErrInsufficientStock)

	assertStock(t, store, key("A", "shop1", "M"), 5)
	assert.Zero(t, store.OrderCount())
}

func TestCoordinator_ValidationBeforeTransaction(t *testing.T) {
	store := &fakeStore{beginErr: errors.New("must not be called")}
	c := NewCoordinator(store, noop.NewTracerProvider().Tracer("test"))

	_, err := c.PlaceOrder(context.Background(), "u1", nil)
	var vErr *domain.ValidationError
	require.ErrorAs(t, err, &vErr)

	_, err = c.PlaceOrder(context.Background(), "", []domain.CartLine{line("A", "shop1", "M", 1, 10)})
	require.ErrorAs(t, err, &vErr)
}

func TestCoordinator_BeginFailure(t *testing.T) {
	store := &fakeStore{beginErr: errors.New("connection refused")}
	c := NewCoordinator(store, noop.NewTracerProvider().Tracer("test"))

	_, err := c.PlaceOrder(context.Background(), "u1", []domain.CartLine{line("A", "shop1", "M", 1, 10)})
	var txErr *domain.TransactionError
	require.ErrorAs(t, err, &txErr)
	assert.Equal(t, "begin", txErr.Op)
	assert.False(t, txErr.Retryable)
}

func TestCoordinator_CommitFailureRollsBack(t *testing.T) {
	tx := &fakeTx{
		stock:     map[domain.InventoryKey]int{key("A", "shop1", "M"): 5},
		commitErr: errors.New("connection reset"),
	}
	c := NewCoordinator(&fakeStore{tx: tx}, noop.NewTracerProvider().Tracer("test"))

	result, err := c.PlaceOrder(context.Background(), "u1", []domain.CartLine{line("A", "shop1", "M", 1, 10)})
	assert.Nil(t, result)
	var txErr *domain.TransactionError
	require.ErrorAs(t, err, &txErr)
	assert.Equal(t, "commit", txErr.Op)
	assert.Contains(t, err.Error(), string(StateStockReserved))
	assert.True(t, tx.rolledBack)
	assert.False(t, tx.committed)
}

func TestCoordinator_StepFailureRollsBack(t *testing.T) {
	tx := &fakeTx{echoIDs: func([]string) []string { return nil }}
	c := NewCoordinator(&fakeStore{tx: tx}, noop.NewTracerProvider().Tracer("test"))

	_, err := c.PlaceOrder(context.Background(), "u1", []domain.CartLine{line("A", "shop1", "M", 1, 10)})
	var iErr *domain.IntegrityError
	require.ErrorAs(t, err, &iErr)
	assert.True(t, tx.rolledBack)
	assert.False(t, tx.committed)
	assert.Empty(t, tx.lockOrder)
}

type panicHandler struct {
	NextHandler
}

func (h *panicHandler) Handle(pc *PlacementContext) error {
	panic("boom")
}

func TestCoordinator_PanicRollsBack(t *testing.T) {
	c, store := newMemoryCoordinator(t, map[domain.InventoryKey]int{
		key("A", "shop1", "M"): 5,
	})
	chain := new(SplitHandler)
	chain.SetNext(NewHeaderWriter(nil)).SetNext(new(panicHandler))
	c.chain = chain

	var (
		result *domain.CreationResult
		err    error
	)
	require.NotPanics(t, func() {
		result, err = c.PlaceOrder(context.Background(), "u1", []domain.CartLine{line("A", "shop1", "M", 1, 10)})
	})
	assert.Nil(t, result)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Zero(t, store.OrderCount())

	// 行锁已释放，后续下单不受影响
	c2 := NewCoordinator(store, noop.NewTracerProvider().Tracer("test"))
	_, err = c2.PlaceOrder(context.Background(), "u1", []domain.CartLine{line("A", "shop1", "M", 1, 10)})
	require.NoError(t, err)
	assertStock(t, store, key("A", "shop1", "M"), 4)
}

func TestCoordinator_RetryAfterStockError(t *testing.T) {
	c, store := newMemoryCoordinator(t, map[domain.InventoryKey]int{
		key("A", "shop1", "M"): 2,
	})
	lines := []domain.CartLine{line("A", "shop1", "M", 3, 10)}

	_, err := c.PlaceOrder(context.Background(), "u1", lines)
	require.ErrorIs(t, err, domain.ErrInsufficientStock)

	store.SetStock(key("A", "shop1", "M"), 3)
	_, err = c.PlaceOrder(context.Background(), "u1", lines)
	require.NoError(t, err)
	assertStock(t, store, key("A", "shop1", "M"), 0)
	assert.Equal(t, 1, store.OrderCount())
}

func TestCoordinator_ConcurrentDisjointCarts(t *testing.T) {
	c, store := newMemoryCoordinator(t, map[domain.InventoryKey]int{
		key("A", "shop1", "M"): 10,
		key("B", "shop2", "L"): 10,
	})

	var g errgroup.Group
	for i := 0; i < 5; i++ {
		g.Go(func() error {
			_, err := c.PlaceOrder(context.Background(), "u1", []domain.CartLine{line("A", "shop1", "M", 2, 10)})
			return err
		})
		g.Go(func() error {
			_, err := c.PlaceOrder(context.Background(), "u2", []domain.CartLine{line("B", "shop2", "L", 1, 20)})
			return err
		})
	}
	require.NoError(t, g.Wait())

	assertStock(t, store, key("A", "shop1", "M"), 0)
	assertStock(t, store, key("B", "shop2", "L"), 5)
	assert.Equal(t, 10, store.OrderCount())
}

func TestCoordinator_ConcurrentOverlappingCartsSerialize(t *testing.T) {
	c, store := newMemoryCoordinator(t, map[domain.InventoryKey]int{
		key("A", "shop1", "M"): 5,
		key("B", "shop2", "L"): 5,
	})

	var (
		g         errgroup.Group
		succeeded atomic.Int32
		rejected  atomic.Int32
	)
	for i := 0; i < 8; i++ {
		// 两个方向的购物车行顺序相反，加锁顺序仍然一致，不会死锁
		lines := []domain.CartLine{line("A", "shop1", "M", 1, 10), line("B", "shop2", "L", 1, 20)}
		if i%2 == 1 {
			lines[0], lines[1] = lines[1], lines[0]
		}
		g.Go(func() error {
			_, err := c.PlaceOrder(context.Background(), "u1", lines)
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, domain.ErrInsufficientStock):
				rejected.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(5), succeeded.Load())
	assert.Equal(t, int32(3), rejected.Load())
	assertStock(t, store, key("A", "shop1", "M"), 0)
	assertStock(t, store, key("B", "shop2", "L"), 0)
	assert.Equal(t, 10, store.OrderCount())
}

func TestCoordinator_WithIDGenerator(t *testing.T) {
	store := infrastructure.NewMemoryStore(time.Second)
	store.SetStock(key("A", "shop1", "M"), 1)
	c := NewCoordinator(store, noop.NewTracerProvider().Tracer("test"), WithIDGenerator(sequentialIDs()))

	result, err := c.PlaceOrder(context.Background(), "u1", []domain.CartLine{line("A", "shop1", "M", 1, 10)})
	require.NoError(t, err)
	assert.Equal(t, []string{"order-1"}, result.OrderIDs)
}
