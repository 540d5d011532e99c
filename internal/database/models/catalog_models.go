package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID           int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	Manufacturer string          `gorm:"size:64;not null" json:"manufacturer"`
	Name         string          `gorm:"size:128;not null" json:"name"`
	Price        decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"price"`
	Quantity     int64           `gorm:"not null;default:0" json:"quantity"`
	Active       bool            `gorm:"not null;default:true" json:"active"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`

	Promotion *Promotion `gorm:"foreignKey:ProductID" json:"promotion,omitempty"`
}

// Promotion overrides the list price of exactly one product.
type Promotion struct {
	ProductID int64           `gorm:"primaryKey;autoIncrement:false" json:"product_id"`
	Discount  decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"discount"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}
