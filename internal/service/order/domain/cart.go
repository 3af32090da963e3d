// internal/service/order/domain/cart.go
package domain

import (
	"fmt"
	"math"
)

// 单行上限，保证数量与金额的运算不会溢出
const (
	MaxLineQuantity = 100_000
	MaxUnitPrice    = 100_000_000_000 // 分
)

// CartLine 是购物车中的一行，由购物车服务提供，进入下单引擎后不可修改。
// UnitPrice 以分为单位，是下单时刻的价格。
type CartLine struct {
	ProductID string `json:"productId"`
	ShopID    string `json:"shopId"`
	Size      string `json:"size"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unitPrice"`
}

// Key 返回该行对应的库存键
func (l CartLine) Key() InventoryKey {
	return InventoryKey{ProductID: l.ProductID, ShopID: l.ShopID, Size: l.Size}
}

// Subtotal 该行小计（分）
func (l CartLine) Subtotal() int64 {
	return l.UnitPrice * int64(l.Quantity)
}

// Validate 校验单行输入
func (l CartLine) Validate() error {
	switch {
	case l.ProductID == "":
		return &ValidationError{Field: "productId", Reason: "must not be empty"}
	case l.ShopID == "":
		return &ValidationError{Field: "shopId", Reason: "must not be empty"}
	case l.Size == "":
		return &ValidationError{Field: "size", Reason: "must not be empty"}
	case l.Quantity <= 0:
		return &ValidationError{Field: "quantity", Reason: fmt.Sprintf("must be positive, got %d", l.Quantity)}
	case l.Quantity > MaxLineQuantity:
		return &ValidationError{Field: "quantity", Reason: fmt.Sprintf("must not exceed %d, got %d", MaxLineQuantity, l.Quantity)}
	case l.UnitPrice < 0:
		return &ValidationError{Field: "unitPrice", Reason: fmt.Sprintf("must not be negative, got %d", l.UnitPrice)}
	case l.UnitPrice > MaxUnitPrice:
		return &ValidationError{Field: "unitPrice", Reason: fmt.Sprintf("must not exceed %d, got %d", int64(MaxUnitPrice), l.UnitPrice)}
	}
	return nil
}

// InventoryKey 唯一标识一行库存 (product, shop, size)
type InventoryKey struct {
	ProductID string `json:"productId"`
	ShopID    string `json:"shopId"`
	Size      string `json:"size"`
}

// Less 定义库存键上的全序：按 productId、shopId、size 依次做字典序比较。
// 所有事务都按这个顺序加锁。
func (k InventoryKey) Less(o InventoryKey) bool {
	if k.ProductID != o.ProductID {
		return k.ProductID < o.ProductID
	}
	if k.ShopID != o.ShopID {
		return k.ShopID < o.ShopID
	}
	return k.Size < o.Size
}

func (k InventoryKey) String() string {
	return fmt.Sprintf("%s/%s/%s", k.ProductID, k.ShopID, k.Size)
}

// ValidateCart 校验整个购物车，空购物车直接拒绝
func ValidateCart(userID string, lines []CartLine) error {
	if userID == "" {
		return &ValidationError{Field: "userId", Reason: "must not be empty"}
	}
	if len(lines) == 0 {
		return &ValidationError{Field: "lines", Reason: "cart is empty"}
	}
	for i, l := range lines {
		if err := l.Validate(); err != nil {
			return fmt.Errorf("line %d: %w", i, err)
		}
	}
	_, err := CartTotal(lines)
	return err
}

// CartTotal 购物车总额（分），溢出时返回 ValidationError
func CartTotal(lines []CartLine) (int64, error) {
	var total int64
	for _, l := range lines {
		sub := l.Subtotal()
		if sub < 0 || total > math.MaxInt64-sub {
			return 0, &ValidationError{Field: "lines", Reason: "cart total overflows"}
		}
		total += sub
	}
	return total, nil
}
