package models

import (
	"time"
)

// LoanProduct defines the terms under which loans are issued. Loans copy the
// product's rate at application time, so editing a product never reprices a
// live loan.
type LoanProduct struct {
	ID                 uint      `gorm:"primaryKey" json:"id"`
	Name               string    `gorm:"uniqueIndex;not null" json:"name"`
	Description        *string   `gorm:"type:text" json:"description"`
	InterestRate       float64   `gorm:"type:decimal(5,2);not null" json:"interest_rate"` // percent per annum
	InterestMethod     string    `gorm:"not null;default:flat" json:"interest_method"`
	TermMonths         int       `gorm:"not null" json:"term_months"`
	RepaymentFrequency string    `gorm:"not null;default:monthly" json:"repayment_frequency"`
	MinAmount          float64   `gorm:"type:decimal(15,2);not null" json:"min_amount"`
	MaxAmount          float64   `gorm:"type:decimal(15,2);not null" json:"max_amount"`
	ProcessingFeeRate  float64   `gorm:"type:decimal(5,2);default:0" json:"processing_fee_rate"` // percent of principal
	GuarantorRequired  bool      `gorm:"default:false" json:"guarantor_required"`
	CollateralRequired bool      `gorm:"default:false" json:"collateral_required"`
	Active             bool      `gorm:"default:true;index" json:"active"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// TableName specifies the table name for LoanProduct
func (LoanProduct) TableName() string {
	return "loan_products"
}

// Interest method constants
const (
	InterestMethodFlat      = "flat"
	InterestMethodDeclining = "declining"
)

// Repayment frequency constants
const (
	FrequencyMonthly   = "monthly"
	FrequencyQuarterly = "quarterly"
)

// AllowsAmount returns true if principal is within the product's bounds
func (p *LoanProduct) AllowsAmount(principal float64) bool {
	return principal >= p.MinAmount && principal <= p.MaxAmount
}

// PeriodsForTerm returns how many repayment periods the product's term spans
func (p *LoanProduct) PeriodsForTerm(termMonths int) int {
	if p.RepaymentFrequency == FrequencyQuarterly {
		periods := termMonths / 3
		if termMonths%3 != 0 {
			periods++
		}
		return periods
	}
	return termMonths
}

// ProcessingFee returns the up-front fee for a principal amount
func (p *LoanProduct) ProcessingFee(principal float64) float64 {
	return principal * p.ProcessingFeeRate / 100
}
