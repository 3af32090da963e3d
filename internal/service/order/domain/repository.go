// internal/service/order/domain/repository.go
package domain

import "context"

// Store 是下单引擎依赖的事务性存储抽象。
// 它位于领域层，由基础设施层实现（MySQL 与内存两种实现遵守同样的加锁约定）。
type Store interface {
	// Begin 开启一个事务。事务结束前必须调用 Commit 或 Rollback。
	Begin(ctx context.Context) (Tx, error)
}

// Tx 是一次下单使用的工作单元。
type Tx interface {
	// InsertOrders 在一次批量写入中插入所有订单头，并回读本事务实际持久化的订单 ID。
	InsertOrders(ctx context.Context, orders []Order) ([]string, error)

	// InsertOrderLines 插入订单明细
	InsertOrderLines(ctx context.Context, lines []OrderLine) error

	// LockStock 对库存行加排他锁并返回当前数量，锁持有到事务结束。
	// 行不存在时返回 ErrStockNotFound；锁等待超时或死锁返回可重试的 TransactionError。
	LockStock(ctx context.Context, key InventoryKey) (StockRecord, error)

	// DecrementStock 以一次分组写入执行所有扣减，要求每个键都已被本事务锁定。
	DecrementStock(ctx context.Context, decrements []StockDecrement) error

	Commit() error
	Rollback() error
}

// OrderQueryRepository 服务于订单历史/商家看板（只读）以及订单状态更新。
type OrderQueryRepository interface {
	FindByUser(ctx context.Context, userID string) ([]Order, error)
	FindDetail(ctx context.Context, orderID string) (*OrderDetail, error)

	// UpdateStatus 只修改状态字段，并校验状态流转
	UpdateStatus(ctx context.Context, orderID string, next Status) (*Order, error)
}
