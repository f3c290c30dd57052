package models

import (
	"time"
)

// Repayment records a single payment event against a loan. Rows are
// append-only; corrections are made with new entries, never by editing.
type Repayment struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	LoanID        uint      `gorm:"not null;index" json:"loan_id"`
	Amount        float64   `gorm:"type:decimal(15,2);not null" json:"amount"`
	PaymentDate   time.Time `gorm:"type:date;not null;index" json:"payment_date"`
	Method        string    `gorm:"not null" json:"method"`
	TransactionID *string   `gorm:"index" json:"transaction_id"`
	ReceivedByID  *uint     `json:"received_by_id"`
	Notes         *string   `gorm:"type:text" json:"notes"`
	ReceiptPath   *string   `json:"-"`
	CreatedAt     time.Time `gorm:"index" json:"created_at"`

	// Associations
	Loan       Loan  `gorm:"foreignKey:LoanID" json:"-"`
	ReceivedBy *User `gorm:"foreignKey:ReceivedByID" json:"received_by,omitempty"`
}

// TableName specifies the table name for Repayment
func (Repayment) TableName() string {
	return "repayments"
}

// Repayment method constants
const (
	RepaymentMethodCash         = "cash"
	RepaymentMethodMpesa        = "mpesa"
	RepaymentMethodBankTransfer = "bank_transfer"
	RepaymentMethodCheque       = "cheque"
)

// ValidRepaymentMethod reports whether m is a known repayment channel
func ValidRepaymentMethod(m string) bool {
	switch m {
	case RepaymentMethodCash, RepaymentMethodMpesa, RepaymentMethodBankTransfer, RepaymentMethodCheque:
		return true
	}
	return false
}

// RepaymentResponse is the JSON response format for repayments
type RepaymentResponse struct {
	ID            uint      `json:"id"`
	LoanID        uint      `json:"loan_id"`
	Amount        float64   `json:"amount"`
	PaymentDate   time.Time `json:"payment_date"`
	Method        string    `json:"method"`
	TransactionID *string   `json:"transaction_id"`
	ReceivedBy    string    `json:"received_by,omitempty"`
	Notes         *string   `json:"notes,omitempty"`
	HasReceipt    bool      `json:"has_receipt"`
	CreatedAt     time.Time `json:"created_at"`
}

// ToResponse converts Repayment to RepaymentResponse
func (r *Repayment) ToResponse() RepaymentResponse {
	resp := RepaymentResponse{
		ID:            r.ID,
		LoanID:        r.LoanID,
		Amount:        r.Amount,
		PaymentDate:   r.PaymentDate,
		Method:        r.Method,
		TransactionID: r.TransactionID,
		Notes:         r.Notes,
		HasReceipt:    r.ReceiptPath != nil && *r.ReceiptPath != "",
		CreatedAt:     r.CreatedAt,
	}
	if r.ReceivedBy != nil {
		resp.ReceivedBy = r.ReceivedBy.FullName
	}
	return resp
}
