package services

import (
	"testing"
	"time"

	"github.com/kopesha/kopesha-api/internal/models"
	"github.com/stretchr/testify/assert"
)

func strPtr(s string) *string {
	return &s
}

func TestRiskService_Score_HighRisk(t *testing.T) {
	svc := NewRiskService()

	dob := time.Now().AddDate(-22, 0, -30)
	client := &models.User{DateOfBirth: &dob}

	// Large unsecured loan at a steep rate to a young borrower
	loan := &models.Loan{
		PrincipalAmount: 150000,
		InterestRate:    25,
		TermMonths:      30,
	}

	score, level := svc.Score(loan, client)
	assert.Equal(t, 105, score)
	assert.Equal(t, models.RiskLevelHigh, level)
}

func TestRiskService_Score_LowRisk(t *testing.T) {
	svc := NewRiskService()

	dob := time.Now().AddDate(-40, 0, -30)
	client := &models.User{DateOfBirth: &dob}

	loan := &models.Loan{
		PrincipalAmount:       15000,
		InterestRate:          12,
		TermMonths:            12,
		GuarantorName:         strPtr("Grace Wanjiru"),
		CollateralDescription: strPtr("Motorbike, reg KMEA 123B"),
	}

	score, level := svc.Score(loan, client)
	assert.Equal(t, 15, score)
	assert.Equal(t, models.RiskLevelLow, level)
}

func TestRiskService_Score_MediumRisk(t *testing.T) {
	svc := NewRiskService()

	loan := &models.Loan{
		PrincipalAmount: 60000,
		InterestRate:    18,
		TermMonths:      12,
		GuarantorName:   strPtr("John Otieno"),
	}

	// No date of birth contributes nothing
	score, level := svc.Score(loan, &models.User{})
	assert.Equal(t, 45, score)
	assert.Equal(t, models.RiskLevelMedium, level)
}

func TestRiskService_Score_NilClient(t *testing.T) {
	svc := NewRiskService()

	loan := &models.Loan{
		PrincipalAmount: 10000,
		InterestRate:    10,
		TermMonths:      6,
		GuarantorName:   strPtr("Mary Akinyi"),
		CollateralDescription: strPtr("Sewing machine"),
	}

	score, level := svc.Score(loan, nil)
	assert.Equal(t, 15, score)
	assert.Equal(t, models.RiskLevelLow, level)
}

func TestRiskService_Level_Boundaries(t *testing.T) {
	svc := NewRiskService()

	assert.Equal(t, models.RiskLevelLow, svc.Level(39))
	assert.Equal(t, models.RiskLevelMedium, svc.Level(40))
	assert.Equal(t, models.RiskLevelMedium, svc.Level(59))
	assert.Equal(t, models.RiskLevelHigh, svc.Level(60))
}
