package services

import (
	"github.com/kopesha/kopesha-api/internal/models"
)

// Risk level thresholds
const (
	riskHighThreshold   = 60
	riskMediumThreshold = 40
)

// RiskService scores loan applications with an additive rubric over exposure,
// pricing, tenor, borrower age and security. The score is computed once at
// application time and persisted on the loan, so re-rendering a loan never
// changes its classification.
type RiskService struct{}

// NewRiskService creates a new risk service
func NewRiskService() *RiskService {
	return &RiskService{}
}

// Score returns the risk score and level for an application
func (s *RiskService) Score(loan *models.Loan, client *models.User) (int, string) {
	score := s.principalPoints(loan.PrincipalAmount)
	score += s.ratePoints(loan.InterestRate)
	score += s.termPoints(loan.TermMonths)
	score += s.agePoints(client)
	score += s.securityPoints(loan)
	return score, s.Level(score)
}

// Level buckets a score into low, medium or high
func (s *RiskService) Level(score int) string {
	switch {
	case score >= riskHighThreshold:
		return models.RiskLevelHigh
	case score >= riskMediumThreshold:
		return models.RiskLevelMedium
	default:
		return models.RiskLevelLow
	}
}

// principalPoints grows with exposure
func (s *RiskService) principalPoints(principal float64) int {
	switch {
	case principal < 20000:
		return 5
	case principal < 50000:
		return 10
	case principal < 100000:
		return 20
	default:
		return 30
	}
}

// ratePoints: a high rate usually prices in a riskier borrower
func (s *RiskService) ratePoints(rate float64) int {
	switch {
	case rate < 15:
		return 5
	case rate <= 20:
		return 10
	default:
		return 20
	}
}

// termPoints grows with tenor
func (s *RiskService) termPoints(termMonths int) int {
	switch {
	case termMonths <= 12:
		return 5
	case termMonths <= 24:
		return 10
	default:
		return 15
	}
}

// agePoints penalizes the edges of the working-age range. An unknown date of
// birth contributes nothing rather than blocking the application.
func (s *RiskService) agePoints(client *models.User) int {
	if client == nil {
		return 0
	}
	age := client.Age()
	if age < 0 {
		return 0
	}
	switch {
	case age < 25 || age >= 60:
		return 20
	case age < 30 || age >= 50:
		return 10
	case age < 35 || age >= 45:
		return 5
	default:
		return 0
	}
}

// securityPoints: a missing guarantor costs more than missing collateral
func (s *RiskService) securityPoints(loan *models.Loan) int {
	hasGuarantor := loan.GuarantorName != nil && *loan.GuarantorName != ""
	hasCollateral := loan.CollateralDescription != nil && *loan.CollateralDescription != ""

	switch {
	case hasGuarantor && hasCollateral:
		return 0
	case hasGuarantor:
		return 10
	case hasCollateral:
		return 15
	default:
		return 20
	}
}
