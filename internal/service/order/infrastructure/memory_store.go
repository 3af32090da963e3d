package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"storefront/internal/service/order/domain"
)

var ErrLockWaitTimeout = errors.New("lock wait timeout exceeded")

// MemoryStore 是 domain.Store 的进程内实现（本地演示与测试使用）。
// 它遵守与 MySQL 相同的约定：库存行排他锁持有到事务结束，写入在提交时才可见。
type MemoryStore struct {
	mu       sync.Mutex
	stock    map[domain.InventoryKey]int
	orders   map[string]domain.Order
	orderSeq []string
	lines    map[string][]domain.OrderLine

	locksMu         sync.Mutex
	locks           map[domain.InventoryKey]*rowLock
	lockWaitTimeout time.Duration
}

// rowLock 是容量为 1 的信号量，refs 统计持有者与等待者
type rowLock struct {
	ch   chan struct{}
	refs int
}

func NewMemoryStore(lockWaitTimeout time.Duration) *MemoryStore {
	if lockWaitTimeout <= 0 {
		lockWaitTimeout = 5 * time.Second
	}
	return &MemoryStore{
		stock:           make(map[domain.InventoryKey]int),
		orders:          make(map[string]domain.Order),
		lines:           make(map[string][]domain.OrderLine),
		locks:           make(map[domain.InventoryKey]*rowLock),
		lockWaitTimeout: lockWaitTimeout,
	}
}

// SetStock 直接写入库存（初始化数据用，不经过事务）
func (s *MemoryStore) SetStock(key domain.InventoryKey, quantity int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stock[key] = quantity
}

// Stock 返回已提交的库存数量
func (s *MemoryStore) Stock(key domain.InventoryKey) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.stock[key]
	return q, ok
}

// OrderCount 返回已提交的订单数
func (s *MemoryStore) OrderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

// LineCount 返回已提交的订单明细行数
func (s *MemoryStore) LineCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, ls := range s.lines {
		n += len(ls)
	}
	return n
}

func (s *MemoryStore) Begin(ctx context.Context) (domain.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &memoryTx{store: s, held: make(map[domain.InventoryKey]struct{})}, nil
}

// lockFor 返回键对应的锁并登记一个使用者，使用者为零时锁表项被删除
func (s *MemoryStore) lockFor(key domain.InventoryKey) *rowLock {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[key]
	if !ok {
		l = &rowLock{ch: make(chan struct{}, 1)}
		s.locks[key] = l
	}
	l.refs++
	return l
}

func (s *MemoryStore) unref(key domain.InventoryKey, l *rowLock) {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(s.locks, key)
	}
}

// acquire 阻塞直到拿到行锁、锁等待超时或 context 结束
func (s *MemoryStore) acquire(ctx context.Context, key domain.InventoryKey) error {
	l := s.lockFor(key)
	timer := time.NewTimer(s.lockWaitTimeout)
	defer timer.Stop()

	select {
	case l.ch <- struct{}{}:
		return nil
	case <-timer.C:
		s.unref(key, l)
		return &domain.TransactionError{Op: "lock " + key.String(), Retryable: true, Err: ErrLockWaitTimeout}
	case <-ctx.Done():
		s.unref(key, l)
		return &domain.TransactionError{Op: "lock " + key.String(), Err: ctx.Err()}
	}
}

func (s *MemoryStore) release(key domain.InventoryKey) {
	s.locksMu.Lock()
	l := s.locks[key]
	s.locksMu.Unlock()
	<-l.ch
	s.unref(key, l)
}

// lockTableSize 返回锁表中的键数量
func (s *MemoryStore) lockTableSize() int {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	return len(s.locks)
}

type memoryTx struct {
	store *MemoryStore

	held       map[domain.InventoryKey]struct{}
	orders     []domain.Order
	lines      []domain.OrderLine
	decrements map[domain.InventoryKey]int
	closed     bool
}

func (t *memoryTx) InsertOrders(ctx context.Context, orders []domain.Order) ([]string, error) {
	if t.closed {
		return nil, domain.ErrTransactionClosed
	}
	seen := make(map[string]struct{}, len(t.orders)+len(orders))
	for _, o := range t.orders {
		seen[o.ID] = struct{}{}
	}

	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	for _, o := range orders {
		if _, dup := t.store.orders[o.ID]; dup {
			return nil, fmt.Errorf("insert order %s: duplicate primary key", o.ID)
		}
		if _, dup := seen[o.ID]; dup {
			return nil, fmt.Errorf("insert order %s: duplicate primary key", o.ID)
		}
		seen[o.ID] = struct{}{}
	}

	ids := make([]string, 0, len(orders))
	for _, o := range orders {
		t.orders = append(t.orders, o)
		ids = append(ids, o.ID)
	}
	return ids, nil
}

func (t *memoryTx) InsertOrderLines(ctx context.Context, lines []domain.OrderLine) error {
	if t.closed {
		return domain.ErrTransactionClosed
	}
	owned := make(map[string]struct{}, len(t.orders))
	for _, o := range t.orders {
		owned[o.ID] = struct{}{}
	}
	for _, l := range lines {
		if _, ok := owned[l.OrderID]; !ok {
			return fmt.Errorf("insert order line: foreign key violation on order %s", l.OrderID)
		}
	}
	t.lines = append(t.lines, lines...)
	return nil
}

func (t *memoryTx) LockStock(ctx context.Context, key domain.InventoryKey) (domain.StockRecord, error) {
	if t.closed {
		return domain.StockRecord{}, domain.ErrTransactionClosed
	}
	if _, ok := t.held[key]; !ok {
		if err := t.store.acquire(ctx, key); err != nil {
			return domain.StockRecord{}, err
		}
		// 行不存在时也保持锁，直到事务结束
		t.held[key] = struct{}{}
	}

	t.store.mu.Lock()
	q, ok := t.store.stock[key]
	t.store.mu.Unlock()
	if !ok {
		return domain.StockRecord{}, domain.ErrStockNotFound
	}
	return domain.StockRecord{
		ProductID: key.ProductID,
		ShopID:    key.ShopID,
		Size:      key.Size,
		Quantity:  q - t.decrements[key],
	}, nil
}

func (t *memoryTx) DecrementStock(ctx context.Context, decrements []domain.StockDecrement) error {
	if t.closed {
		return domain.ErrTransactionClosed
	}
	if t.decrements == nil {
		t.decrements = make(map[domain.InventoryKey]int, len(decrements))
	}

	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	// 先整体校验，再整体生效
	pending := make(map[domain.InventoryKey]int, len(decrements))
	for _, d := range decrements {
		if _, ok := t.held[d.Key]; !ok {
			return fmt.Errorf("decrement %s: %w", d.Key, domain.ErrLockNotHeld)
		}
		q, ok := t.store.stock[d.Key]
		if !ok {
			return fmt.Errorf("decrement %s: %w", d.Key, domain.ErrStockNotFound)
		}
		pending[d.Key] += d.Quantity
		if q-t.decrements[d.Key]-pending[d.Key] < 0 {
			return fmt.Errorf("decrement %s: %w", d.Key, domain.ErrNegativeStockWrite)
		}
	}
	for k, q := range pending {
		t.decrements[k] += q
	}
	return nil
}

func (t *memoryTx) Commit() error {
	if t.closed {
		return domain.ErrTransactionClosed
	}
	s := t.store

	s.mu.Lock()
	for k, q := range t.decrements {
		s.stock[k] -= q
	}
	for _, o := range t.orders {
		s.orders[o.ID] = o
		s.orderSeq = append(s.orderSeq, o.ID)
	}
	for _, l := range t.lines {
		s.lines[l.OrderID] = append(s.lines[l.OrderID], l)
	}
	s.mu.Unlock()

	t.finish()
	return nil
}

// Rollback 丢弃所有缓冲的写入并释放行锁，事务已结束时为空操作
func (t *memoryTx) Rollback() error {
	if t.closed {
		return nil
	}
	t.finish()
	return nil
}

func (t *memoryTx) finish() {
	t.closed = true
	for k := range t.held {
		t.store.release(k)
	}
	t.held = nil
	t.orders = nil
	t.lines = nil
	t.decrements = nil
}

// FindByUser 按创建时间倒序返回用户的订单
func (s *MemoryStore) FindByUser(ctx context.Context, userID string) ([]domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Order
	for _, id := range s.orderSeq {
		if o := s.orders[id]; o.UserID == userID {
			out = append(out, o)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) FindDetail(ctx context.Context, orderID string) (*domain.OrderDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[orderID]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	lines := make([]domain.OrderLine, len(s.lines[orderID]))
	copy(lines, s.lines[orderID])
	return &domain.OrderDetail{Order: o, Lines: lines}, nil
}

func (s *MemoryStore) UpdateStatus(ctx context.Context, orderID string, next domain.Status) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[orderID]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	if err := o.TransitionTo(next, time.Now().UTC()); err != nil {
		return nil, err
	}
	s.orders[orderID] = o
	return &o, nil
}
