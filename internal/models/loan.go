package models

import (
	"strings"
	"time"
)

// Loan represents a loan account through its whole lifecycle, from
// application to settlement. Monetary figures are stored in whole shillings;
// the schedule calculator owns all rounding.
type Loan struct {
	ID                    uint       `gorm:"primaryKey" json:"id"`
	Reference             string     `gorm:"uniqueIndex;not null" json:"reference"`
	ClientID              uint       `gorm:"not null;index" json:"client_id"`
	ProductID             uint       `gorm:"not null;index" json:"product_id"`
	GroupID               *uint      `gorm:"index" json:"group_id"`
	OfficerID             *uint      `gorm:"index" json:"officer_id"`
	PrincipalAmount       float64    `gorm:"type:decimal(15,2);not null" json:"principal_amount"`
	InterestRate          float64    `gorm:"type:decimal(5,2);not null" json:"interest_rate"` // percent p.a., copied from product
	InterestMethod        string     `gorm:"not null" json:"interest_method"`
	TermMonths            int        `gorm:"not null" json:"term_months"`
	Status                string     `gorm:"default:pending;index" json:"status"`
	Purpose               *string    `gorm:"type:text" json:"purpose"`
	TotalInterest         float64    `gorm:"type:decimal(15,2)" json:"total_interest"`
	TotalRepayable        float64    `gorm:"type:decimal(15,2)" json:"total_repayable"`
	InstallmentAmount     float64    `gorm:"type:decimal(15,2)" json:"installment_amount"`
	OutstandingBalance    float64    `gorm:"type:decimal(15,2)" json:"outstanding_balance"`
	PaidAmount            float64    `gorm:"type:decimal(15,2);default:0" json:"paid_amount"`
	DaysInArrears         int        `gorm:"default:0" json:"days_in_arrears"`
	GuarantorName         *string    `json:"guarantor_name"`
	GuarantorPhone        *string    `json:"guarantor_phone"`
	CollateralDescription *string    `gorm:"type:text" json:"collateral_description"`
	CollateralValue       *float64   `gorm:"type:decimal(15,2)" json:"collateral_value"`
	RiskScore             int        `gorm:"default:0" json:"risk_score"`
	RiskLevel             string     `json:"risk_level"`
	RejectionReason       *string    `gorm:"type:text" json:"rejection_reason"`
	PaymentSourceID       *uint      `gorm:"index" json:"payment_source_id"`
	ApplicationDate       time.Time  `gorm:"type:date;not null" json:"application_date"`
	ApprovedAt            *time.Time `gorm:"index" json:"approved_at"`
	DisbursedAt           *time.Time `gorm:"index" json:"disbursed_at"`
	SettledAt             *time.Time `json:"settled_at"`
	DocumentPaths         *string    `gorm:"type:text" json:"document_paths"` // JSON list of collateral document paths
	LockVersion           int        `gorm:"default:0;not null" json:"lock_version"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`

	// Associations
	Client        User           `gorm:"foreignKey:ClientID" json:"client,omitempty"`
	Product       LoanProduct    `gorm:"foreignKey:ProductID" json:"product,omitempty"`
	Group         *Group         `gorm:"foreignKey:GroupID" json:"group,omitempty"`
	Officer       *User          `gorm:"foreignKey:OfficerID" json:"officer,omitempty"`
	PaymentSource *PaymentSource `gorm:"foreignKey:PaymentSourceID" json:"payment_source,omitempty"`
	Installments  []Installment  `gorm:"foreignKey:LoanID" json:"installments,omitempty"`
	Repayments    []Repayment    `gorm:"foreignKey:LoanID" json:"repayments,omitempty"`
}

// TableName specifies the table name for Loan
func (Loan) TableName() string {
	return "loans"
}

// Loan status constants. Stored values are lowercase snake_case; see
// NormalizeStatus for accepting the legacy display spellings.
const (
	LoanStatusPending      = "pending"
	LoanStatusUnderReview  = "under_review"
	LoanStatusNeedApproval = "need_approval"
	LoanStatusApproved     = "approved"
	LoanStatusDisbursed    = "disbursed"
	LoanStatusActive       = "active"
	LoanStatusFullyPaid    = "fully_paid"
	LoanStatusRejected     = "rejected"
	LoanStatusInArrears    = "in_arrears"
)

// NormalizeStatus maps a status string to its canonical stored form.
// Legacy clients send display spellings like "Under Review" or "Fully Paid";
// lookups are case-insensitive. Unknown values are returned lowercased so the
// caller's validation can reject them.
func NormalizeStatus(s string) string {
	normalized := strings.ToLower(strings.TrimSpace(s))
	normalized = strings.ReplaceAll(normalized, " ", "_")
	return normalized
}

// Risk level constants
const (
	RiskLevelLow    = "low"
	RiskLevelMedium = "medium"
	RiskLevelHigh   = "high"
)

// MayReview returns true if the loan can move to under_review
func (l *Loan) MayReview() bool {
	return l.Status == LoanStatusPending
}

// MayEscalate returns true if the loan can move to need_approval
func (l *Loan) MayEscalate() bool {
	return l.Status == LoanStatusPending || l.Status == LoanStatusUnderReview
}

// MayApprove returns true if the loan can be approved by a manager
func (l *Loan) MayApprove() bool {
	return l.Status == LoanStatusNeedApproval
}

// MayDisburse returns true if the loan can be disbursed
func (l *Loan) MayDisburse() bool {
	return l.Status == LoanStatusApproved
}

// MayActivate returns true if the loan can become active
func (l *Loan) MayActivate() bool {
	return l.Status == LoanStatusDisbursed
}

// MayReject returns true if the loan can still be rejected. Rejection is
// possible from any state before disbursement; once money has moved the loan
// can only run to settlement.
func (l *Loan) MayReject() bool {
	switch l.Status {
	case LoanStatusPending, LoanStatusUnderReview, LoanStatusNeedApproval, LoanStatusApproved:
		return true
	}
	return false
}

// MayFlagArrears returns true if the loan can be flagged in arrears
func (l *Loan) MayFlagArrears() bool {
	return l.Status == LoanStatusActive
}

// MayClearArrears returns true if an arrears flag can be lifted
func (l *Loan) MayClearArrears() bool {
	return l.Status == LoanStatusInArrears
}

// MaySettle returns true if the loan can be marked fully paid
func (l *Loan) MaySettle() bool {
	if l.OutstandingBalance > 0 {
		return false
	}
	switch l.Status {
	case LoanStatusDisbursed, LoanStatusActive, LoanStatusInArrears:
		return true
	}
	return false
}

// IsOpen returns true while the loan still carries an obligation
func (l *Loan) IsOpen() bool {
	switch l.Status {
	case LoanStatusDisbursed, LoanStatusActive, LoanStatusInArrears:
		return true
	}
	return false
}

// IsTerminal returns true for states with no outgoing transitions
func (l *Loan) IsTerminal() bool {
	return l.Status == LoanStatusRejected || l.Status == LoanStatusFullyPaid
}

// LoanResponse is the JSON response format for loans
type LoanResponse struct {
	ID                 uint                  `json:"id"`
	Reference          string                `json:"reference"`
	ClientID           uint                  `json:"client_id"`
	ClientName         string                `json:"client_name"`
	ClientPhone        string                `json:"client_phone"`
	ClientCreditScore  int                   `json:"client_credit_score"`
	ProductID          uint                  `json:"product_id"`
	ProductName        string                `json:"product_name"`
	GroupID            *uint                 `json:"group_id"`
	GroupName          string                `json:"group_name,omitempty"`
	OfficerName        string                `json:"officer_name,omitempty"`
	PrincipalAmount    float64               `json:"principal_amount"`
	InterestRate       float64               `json:"interest_rate"`
	InterestMethod     string                `json:"interest_method"`
	TermMonths         int                   `json:"term_months"`
	Status             string                `json:"status"`
	Purpose            *string               `json:"purpose"`
	TotalInterest      float64               `json:"total_interest"`
	TotalRepayable     float64               `json:"total_repayable"`
	InstallmentAmount  float64               `json:"installment_amount"`
	OutstandingBalance float64               `json:"outstanding_balance"`
	PaidAmount         float64               `json:"paid_amount"`
	DaysInArrears      int                   `json:"days_in_arrears"`
	RiskScore          int                   `json:"risk_score"`
	RiskLevel          string                `json:"risk_level"`
	RejectionReason    *string               `json:"rejection_reason,omitempty"`
	ApplicationDate    time.Time             `json:"application_date"`
	ApprovedAt         *time.Time            `json:"approved_at"`
	DisbursedAt        *time.Time            `json:"disbursed_at"`
	SettledAt          *time.Time            `json:"settled_at"`
	LockVersion        int                   `json:"lock_version"`
	CreatedAt          time.Time             `json:"created_at"`
	UpdatedAt          time.Time             `json:"updated_at"`
	Schedule           []InstallmentResponse `json:"schedule,omitempty"`
	Repayments         []RepaymentResponse   `json:"repayments,omitempty"`
}

// ToResponse converts Loan to LoanResponse
func (l *Loan) ToResponse() LoanResponse {
	resp := LoanResponse{
		ID:                 l.ID,
		Reference:          l.Reference,
		ClientID:           l.ClientID,
		ProductID:          l.ProductID,
		GroupID:            l.GroupID,
		PrincipalAmount:    l.PrincipalAmount,
		InterestRate:       l.InterestRate,
		InterestMethod:     l.InterestMethod,
		TermMonths:         l.TermMonths,
		Status:             l.Status,
		Purpose:            l.Purpose,
		TotalInterest:      l.TotalInterest,
		TotalRepayable:     l.TotalRepayable,
		InstallmentAmount:  l.InstallmentAmount,
		OutstandingBalance: l.OutstandingBalance,
		PaidAmount:         l.PaidAmount,
		DaysInArrears:      l.DaysInArrears,
		RiskScore:          l.RiskScore,
		RiskLevel:          l.RiskLevel,
		RejectionReason:    l.RejectionReason,
		ApplicationDate:    l.ApplicationDate,
		ApprovedAt:         l.ApprovedAt,
		DisbursedAt:        l.DisbursedAt,
		SettledAt:          l.SettledAt,
		LockVersion:        l.LockVersion,
		CreatedAt:          l.CreatedAt,
		UpdatedAt:          l.UpdatedAt,
	}

	if l.Client.ID != 0 {
		resp.ClientName = l.Client.FullName
		resp.ClientPhone = l.Client.Phone
		resp.ClientCreditScore = l.Client.CreditScore
	}
	if l.Product.ID != 0 {
		resp.ProductName = l.Product.Name
	}
	if l.Group != nil {
		resp.GroupName = l.Group.Name
	}
	if l.Officer != nil {
		resp.OfficerName = l.Officer.FullName
	}

	for _, inst := range l.Installments {
		resp.Schedule = append(resp.Schedule, inst.ToResponse())
	}
	for _, rep := range l.Repayments {
		resp.Repayments = append(resp.Repayments, rep.ToResponse())
	}

	return resp
}
