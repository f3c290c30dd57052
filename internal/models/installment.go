package models

import (
	"time"
)

// Installment is one row of a loan's repayment schedule. The schedule is
// generated at disbursement and only its status and paid figures mutate
// afterwards.
type Installment struct {
	ID                 uint       `gorm:"primaryKey" json:"id"`
	LoanID             uint       `gorm:"not null;index" json:"loan_id"`
	Number             int        `gorm:"not null" json:"number"`
	DueDate            time.Time  `gorm:"type:date;not null;index" json:"due_date"`
	Amount             float64    `gorm:"type:decimal(15,2);not null" json:"amount"`
	PrincipalComponent float64    `gorm:"type:decimal(15,2);not null" json:"principal_component"`
	InterestComponent  float64    `gorm:"type:decimal(15,2);not null" json:"interest_component"`
	Status             string     `gorm:"default:pending;not null;index" json:"status"`
	PaidAmount         float64    `gorm:"type:decimal(15,2);default:0" json:"paid_amount"`
	PaidAt             *time.Time `gorm:"type:date" json:"paid_at"`
	ReminderSentAt     *time.Time `json:"-"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`

	// Associations
	Loan Loan `gorm:"foreignKey:LoanID" json:"-"`
}

// TableName specifies the table name for Installment
func (Installment) TableName() string {
	return "installments"
}

// Installment status constants
const (
	InstallmentStatusPending  = "pending"
	InstallmentStatusPaid     = "paid"
	InstallmentStatusLatePaid = "late_paid"
	InstallmentStatusOverdue  = "overdue"
)

// IsSettled returns true once the installment has been fully covered
func (i *Installment) IsSettled() bool {
	return i.Status == InstallmentStatusPaid || i.Status == InstallmentStatusLatePaid
}

// IsOverdue returns true if the installment is unpaid past its due date
func (i *Installment) IsOverdue(ref time.Time) bool {
	return !i.IsSettled() && ref.After(i.DueDate)
}

// OverdueDays returns whole days past due, zero when not overdue
func (i *Installment) OverdueDays(ref time.Time) int {
	if !i.IsOverdue(ref) {
		return 0
	}
	return int(ref.Sub(i.DueDate).Hours() / 24)
}

// Remaining returns the unpaid portion of the installment
func (i *Installment) Remaining() float64 {
	remaining := i.Amount - i.PaidAmount
	if remaining < 0 {
		return 0
	}
	return remaining
}

// InstallmentResponse is the JSON response format for installments
type InstallmentResponse struct {
	ID                 uint       `json:"id"`
	LoanID             uint       `json:"loan_id"`
	Number             int        `json:"number"`
	DueDate            time.Time  `json:"due_date"`
	Amount             float64    `json:"amount"`
	PrincipalComponent float64    `json:"principal_component"`
	InterestComponent  float64    `json:"interest_component"`
	Status             string     `json:"status"`
	PaidAmount         float64    `json:"paid_amount"`
	PaidAt             *time.Time `json:"paid_at"`
	OverdueDays        int        `json:"overdue_days"`
}

// ToResponse converts Installment to InstallmentResponse
func (i *Installment) ToResponse() InstallmentResponse {
	return InstallmentResponse{
		ID:                 i.ID,
		LoanID:             i.LoanID,
		Number:             i.Number,
		DueDate:            i.DueDate,
		Amount:             i.Amount,
		PrincipalComponent: i.PrincipalComponent,
		InterestComponent:  i.InterestComponent,
		Status:             i.Status,
		PaidAmount:         i.PaidAmount,
		PaidAt:             i.PaidAt,
		OverdueDays:        i.OverdueDays(time.Now()),
	}
}
