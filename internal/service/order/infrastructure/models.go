package infrastructure

import "time"

// OrderModel 对应数据库中的 orders 表
type OrderModel struct {
	ID        string    `gorm:"primaryKey;type:char(36)"`
	UserID    string    `gorm:"type:varchar(64);not null;index:idx_orders_user_created,priority:1"`
	ShopID    string    `gorm:"type:varchar(64);not null;index:idx_orders_shop"`
	Status    string    `gorm:"type:varchar(16);not null;default:pending"`
	CreatedAt time.Time `gorm:"not null;index:idx_orders_user_created,priority:2"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName 指定 GORM 应该使用的表名
func (OrderModel) TableName() string {
	return "orders"
}

// OrderLineModel 对应数据库中的 order_lines 表
type OrderLineModel struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	OrderID   string `gorm:"type:char(36);not null;index:idx_order_lines_order"`
	ProductID string `gorm:"type:varchar(64);not null"`
	ShopID    string `gorm:"type:varchar(64);not null"`
	Size      string `gorm:"type:varchar(16);not null"`
	Quantity  int    `gorm:"not null"`
	UnitPrice int64  `gorm:"not null"`
}

func (OrderLineModel) TableName() string {
	return "order_lines"
}

// StockModel 对应数据库中的 stock 表，(product_id, shop_id, size) 作为联合主键保证唯一
type StockModel struct {
	ProductID string `gorm:"primaryKey;type:varchar(64)"`
	ShopID    string `gorm:"primaryKey;type:varchar(64)"`
	Size      string `gorm:"primaryKey;type:varchar(16)"`
	Quantity  int    `gorm:"not null;check:chk_stock_quantity,quantity >= 0"`
}

func (StockModel) TableName() string {
	return "stock"
}
