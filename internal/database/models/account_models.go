package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Title string

const (
	TitleDirector    Title = "Director"
	TitleManager     Title = "Manager"
	TitleSalesperson Title = "Salesperson"
)

func (t Title) Valid() bool {
	switch t {
	case TitleDirector, TitleManager, TitleSalesperson:
		return true
	}
	return false
}

type Account struct {
	ID           int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	Username     string     `gorm:"size:32;uniqueIndex;not null" json:"username"`
	PasswordHash string     `gorm:"size:60;not null" json:"-"`
	IsEmployee   bool       `gorm:"not null" json:"is_employee"`
	Active       bool       `gorm:"not null;default:true" json:"active"`
	LastLogin    *time.Time `json:"last_login,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`

	Employee *EmployeeProfile `gorm:"foreignKey:AccountID" json:"employee,omitempty"`
	Client   *ClientProfile   `gorm:"foreignKey:AccountID" json:"client,omitempty"`
}

type EmployeeProfile struct {
	ID          int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	AccountID   int64           `gorm:"uniqueIndex;not null" json:"account_id"`
	Title       Title           `gorm:"size:16;not null;index" json:"title"`
	ManagedBy   *int64          `gorm:"index" json:"managed_by,omitempty"`
	Commission  decimal.Decimal `gorm:"type:decimal(5,2);not null" json:"commission"`
	MaxDiscount decimal.Decimal `gorm:"type:decimal(5,2);not null" json:"max_discount"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`

	Account *Account `gorm:"foreignKey:AccountID" json:"account,omitempty"`
}

type ClientProfile struct {
	ID            int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	AccountID     int64     `gorm:"uniqueIndex;not null" json:"account_id"`
	Company       string    `gorm:"size:64;not null" json:"company"`
	SalespersonID int64     `gorm:"not null;index" json:"salesperson_id"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`

	Account     *Account         `gorm:"foreignKey:AccountID" json:"account,omitempty"`
	Salesperson *EmployeeProfile `gorm:"foreignKey:SalespersonID" json:"salesperson,omitempty"`
}

type Feedback struct {
	FromAccountID int64     `gorm:"primaryKey;autoIncrement:false" json:"from_account_id"`
	ToAccountID   int64     `gorm:"primaryKey;autoIncrement:false;index" json:"to_account_id"`
	CreatedAt     time.Time `gorm:"primaryKey" json:"created_at"`
	IsPositive    bool      `gorm:"not null" json:"is_positive"`
}

func (Feedback) TableName() string {
	return "feedback"
}
