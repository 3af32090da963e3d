// internal/service/order/domain/errors.go
package domain

import (
	"errors"
	"fmt"
)

var (
	ErrStockNotFound      = errors.New("not found")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrOrderNotFound      = errors.New("order not found")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrPaymentDeclined    = errors.New("payment declined")
	ErrTransactionClosed  = errors.New("transaction already closed")
	ErrLockNotHeld        = errors.New("stock row is not locked by this transaction")
	ErrNegativeStockWrite = errors.New("decrement would make stock negative")
)

// ValidationError 表示输入不合法，在事务开始之前就会被拒绝
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Reason)
}

// IntegrityError 表示提交的店铺数与存储层返回的订单标识不一致。
// 这意味着有插入丢失或错乱，绝不能被忽略。
type IntegrityError struct {
	Expected int
	Got      int
	Detail   string
}

func (e *IntegrityError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("integrity violation: expected %d order ids, got %d: %s", e.Expected, e.Got, e.Detail)
	}
	return fmt.Sprintf("integrity violation: expected %d order ids, got %d", e.Expected, e.Got)
}

// StockError 表示某个库存键不存在或可用数量不足
type StockError struct {
	Key       InventoryKey
	Reason    error // ErrStockNotFound 或 ErrInsufficientStock
	Required  int
	Available int
}

func (e *StockError) Error() string {
	if errors.Is(e.Reason, ErrInsufficientStock) {
		return fmt.Sprintf("stock %s: %v: required %d, available %d", e.Key, e.Reason, e.Required, e.Available)
	}
	return fmt.Sprintf("stock %s: %v", e.Key, e.Reason)
}

func (e *StockError) Unwrap() error { return e.Reason }

// TransactionError 表示提交、回滚或加锁阶段的失败。
// 锁等待超时和死锁是可重试的，是否重试由调用方决定。
type TransactionError struct {
	Op        string
	Retryable bool
	Err       error
}

func (e *TransactionError) Error() string {
	if e.Retryable {
		return fmt.Sprintf("transaction %s failed (retryable): %v", e.Op, e.Err)
	}
	return fmt.Sprintf("transaction %s failed: %v", e.Op, e.Err)
}

func (e *TransactionError) Unwrap() error { return e.Err }

// IsRetryable 判断错误链中是否有可重试的事务错误
func IsRetryable(err error) bool {
	var txErr *TransactionError
	return errors.As(err, &txErr) && txErr.Retryable
}
