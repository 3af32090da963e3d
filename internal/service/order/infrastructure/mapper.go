package infrastructure

import "storefront/internal/service/order/domain"

// ToDomainOrder 将数据库模型转换为领域模型
func ToDomainOrder(m *OrderModel) domain.Order {
	return domain.Order{
		ID:        m.ID,
		UserID:    m.UserID,
		ShopID:    m.ShopID,
		Status:    domain.Status(m.Status),
		CreatedAt: m.CreatedAt.UTC(),
		UpdatedAt: m.UpdatedAt.UTC(),
	}
}

// FromDomainOrder 将领域模型转换为数据库模型
func FromDomainOrder(o domain.Order) OrderModel {
	return OrderModel{
		ID:        o.ID,
		UserID:    o.UserID,
		ShopID:    o.ShopID,
		Status:    string(o.Status),
		CreatedAt: o.CreatedAt,
		UpdatedAt: o.UpdatedAt,
	}
}

func ToDomainOrderLine(m *OrderLineModel) domain.OrderLine {
	return domain.OrderLine{
		OrderID:   m.OrderID,
		ProductID: m.ProductID,
		ShopID:    m.ShopID,
		Size:      m.Size,
		Quantity:  m.Quantity,
		UnitPrice: m.UnitPrice,
	}
}

func FromDomainOrderLine(l domain.OrderLine) OrderLineModel {
	return OrderLineModel{
		OrderID:   l.OrderID,
		ProductID: l.ProductID,
		ShopID:    l.ShopID,
		Size:      l.Size,
		Quantity:  l.Quantity,
		UnitPrice: l.UnitPrice,
	}
}

func ToDomainStock(m *StockModel) domain.StockRecord {
	return domain.StockRecord{
		ProductID: m.ProductID,
		ShopID:    m.ShopID,
		Size:      m.Size,
		Quantity:  m.Quantity,
	}
}
