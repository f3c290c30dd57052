package models

import (
	"time"
)

// MpesaTransaction tracks one STK push from initiation to its callback
// outcome. Rows are keyed by the Daraja merchant/checkout request IDs so the
// asynchronous callback can be matched back to the loan.
type MpesaTransaction struct {
	ID                uint       `gorm:"primaryKey" json:"id"`
	LoanID            uint       `gorm:"not null;index" json:"loan_id"`
	Phone             string     `gorm:"not null" json:"phone"`
	Amount            float64    `gorm:"type:decimal(15,2);not null" json:"amount"`
	MerchantRequestID string     `gorm:"index" json:"merchant_request_id"`
	CheckoutRequestID string     `gorm:"uniqueIndex" json:"checkout_request_id"`
	Status            string     `gorm:"default:pending;index" json:"status"`
	ResultCode        *int       `json:"result_code"`
	ResultDesc        *string    `json:"result_desc"`
	MpesaReceipt      *string    `gorm:"index" json:"mpesa_receipt"`
	CompletedAt       *time.Time `json:"completed_at"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`

	// Associations
	Loan Loan `gorm:"foreignKey:LoanID" json:"-"`
}

// TableName specifies the table name for MpesaTransaction
func (MpesaTransaction) TableName() string {
	return "mpesa_transactions"
}

// M-Pesa transaction status constants
const (
	MpesaStatusPending   = "pending"
	MpesaStatusCompleted = "completed"
	MpesaStatusFailed    = "failed"
)

// IsFinal returns true once a callback has resolved the transaction
func (t *MpesaTransaction) IsFinal() bool {
	return t.Status == MpesaStatusCompleted || t.Status == MpesaStatusFailed
}

// MpesaTransactionResponse is the JSON response format for STK transactions
type MpesaTransactionResponse struct {
	ID                uint       `json:"id"`
	LoanID            uint       `json:"loan_id"`
	Phone             string     `json:"phone"`
	Amount            float64    `json:"amount"`
	CheckoutRequestID string     `json:"checkout_request_id"`
	Status            string     `json:"status"`
	ResultDesc        *string    `json:"result_desc"`
	MpesaReceipt      *string    `json:"mpesa_receipt"`
	CompletedAt       *time.Time `json:"completed_at"`
	CreatedAt         time.Time  `json:"created_at"`
}

// ToResponse converts MpesaTransaction to MpesaTransactionResponse
func (t *MpesaTransaction) ToResponse() MpesaTransactionResponse {
	return MpesaTransactionResponse{
		ID:                t.ID,
		LoanID:            t.LoanID,
		Phone:             t.Phone,
		Amount:            t.Amount,
		CheckoutRequestID: t.CheckoutRequestID,
		Status:            t.Status,
		ResultDesc:        t.ResultDesc,
		MpesaReceipt:      t.MpesaReceipt,
		CompletedAt:       t.CompletedAt,
		CreatedAt:         t.CreatedAt,
	}
}
