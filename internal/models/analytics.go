package models

// PortfolioOverview represents high-level portfolio statistics
type PortfolioOverview struct {
	TotalDisbursed     float64                  `json:"total_disbursed"`
	TotalOutstanding   float64                  `json:"total_outstanding"`
	TotalCollected     float64                  `json:"total_collected"`
	ActiveLoans        int                      `json:"active_loans"`
	LoansInArrears     int                      `json:"loans_in_arrears"`
	PortfolioAtRisk    float64                  `json:"portfolio_at_risk"`
	CollectionRate     float64                  `json:"collection_rate"`
	CurrencySymbol     string                   `json:"currency_symbol"`
	DisbursementTrend  []DisbursementTrendPoint `json:"disbursement_trend"`
	StatusDistribution []StatusCount            `json:"status_distribution"`
	RiskDistribution   []RiskCount              `json:"risk_distribution"`
}

// DisbursementTrendPoint represents a data point in the disbursement chart
type DisbursementTrendPoint struct {
	Label     string  `json:"label"`
	Disbursed float64 `json:"disbursed"`
	Collected float64 `json:"collected"`
}

// StatusCount is a loan count bucketed by lifecycle status
type StatusCount struct {
	Status string `json:"status"`
	Count  int    `json:"count"`
}

// RiskCount is a loan count bucketed by risk level
type RiskCount struct {
	RiskLevel string `json:"risk_level"`
	Count     int    `json:"count"`
}

// OfficerPerformance represents collection metrics for a loan officer
type OfficerPerformance struct {
	OfficerID       uint    `json:"officer_id"`
	OfficerName     string  `json:"officer_name"`
	ManagedLoans    int     `json:"managed_loans"`
	AmountDisbursed float64 `json:"amount_disbursed"`
	AmountCollected float64 `json:"amount_collected"`
	ArrearsRate     float64 `json:"arrears_rate"`
}
