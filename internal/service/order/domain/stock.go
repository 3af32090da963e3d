// internal/service/order/domain/stock.go
package domain

// StockRecord 是一行库存，被所有并发下单共享。
// 本服务只会通过预占扣减它，不会创建或删除。
type StockRecord struct {
	ProductID string
	ShopID    string
	Size      string
	Quantity  int
}

func (r StockRecord) Key() InventoryKey {
	return InventoryKey{ProductID: r.ProductID, ShopID: r.ShopID, Size: r.Size}
}

// StockDecrement 是一次已校验、待执行的扣减
type StockDecrement struct {
	Key      InventoryKey
	Quantity int
}
