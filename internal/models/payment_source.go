package models

import (
	"time"
)

// PaymentSource is a funding account (bank or mobile money float) that loan
// disbursements are drawn from. Disbursement requires at least one active
// source with sufficient balance.
type PaymentSource struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	Name          string    `gorm:"not null" json:"name"`
	Kind          string    `gorm:"not null" json:"kind"`
	AccountNumber string    `gorm:"not null" json:"account_number"`
	Balance       float64   `gorm:"type:decimal(15,2);default:0" json:"balance"`
	Status        string    `gorm:"default:active;index" json:"status"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TableName specifies the table name for PaymentSource
func (PaymentSource) TableName() string {
	return "payment_sources"
}

// Payment source kind constants
const (
	PaymentSourceKindBank        = "bank"
	PaymentSourceKindMobileMoney = "mobile_money"
)

// Payment source status constants
const (
	PaymentSourceStatusActive   = "active"
	PaymentSourceStatusInactive = "inactive"
)

// IsActive returns true if the source can fund disbursements
func (s *PaymentSource) IsActive() bool {
	return s.Status == PaymentSourceStatusActive
}

// CanFund returns true if the source is active and holds at least amount
func (s *PaymentSource) CanFund(amount float64) bool {
	return s.IsActive() && s.Balance >= amount
}
