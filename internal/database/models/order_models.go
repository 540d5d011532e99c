package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Order struct {
	ID            int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	Timestamp     time.Time       `gorm:"not null;index" json:"timestamp"`
	ClientID      int64           `gorm:"not null;index" json:"client_id"`
	SalespersonID int64           `gorm:"not null;index" json:"salesperson_id"`
	Commission    decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"commission"`

	Items []OrderItem `gorm:"foreignKey:OrderID" json:"items,omitempty"`
}

// Total is derived from the items and never stored.
func (o Order) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range o.Items {
		total = total.Add(item.LineTotal())
	}
	return total
}

type OrderItem struct {
	OrderID   int64           `gorm:"primaryKey;autoIncrement:false" json:"order_id"`
	ProductID int64           `gorm:"primaryKey;autoIncrement:false;index" json:"product_id"`
	Price     decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"price"`
	Quantity  int64           `gorm:"not null" json:"quantity"`

	Product *Product `gorm:"foreignKey:ProductID" json:"product,omitempty"`
}

func (i OrderItem) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(i.Quantity))
}
