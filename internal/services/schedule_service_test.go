package services

import (
	"context"
	"testing"
	"time"

	"github.com/kopesha/kopesha-api/internal/models"
	"github.com/stretchr/testify/assert"
)

func monthlyProduct(method string) *models.LoanProduct {
	return &models.LoanProduct{
		InterestMethod:     method,
		RepaymentFrequency: models.FrequencyMonthly,
	}
}

func TestScheduleService_Generate_Flat(t *testing.T) {
	svc := NewScheduleService()
	start := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)

	loan := &models.Loan{
		ID:              1,
		PrincipalAmount: 100000,
		InterestRate:    12,
		InterestMethod:  models.InterestMethodFlat,
		TermMonths:      12,
	}

	result, err := svc.Generate(context.Background(), loan, monthlyProduct(models.InterestMethodFlat), start)
	assert.NoError(t, err)

	assert.Equal(t, 12000.0, result.TotalInterest)
	assert.Equal(t, 112000.0, result.TotalRepayable)
	assert.Equal(t, 9333.0, result.InstallmentAmount)
	assert.Len(t, result.Installments, 12)

	// The last installment absorbs the rounding drift
	last := result.Installments[11]
	assert.Equal(t, 9337.0, last.Amount)

	// Schedule sums exactly to the total repayable
	var sum, principalSum float64
	for _, inst := range result.Installments {
		sum += inst.Amount
		principalSum += inst.PrincipalComponent
	}
	assert.Equal(t, 112000.0, sum)
	assert.Equal(t, 100000.0, principalSum)

	// First due date falls one month after the start
	assert.Equal(t, start.AddDate(0, 1, 0), result.Installments[0].DueDate)
	assert.Equal(t, start.AddDate(0, 12, 0), last.DueDate)
}

func TestScheduleService_Generate_Declining(t *testing.T) {
	svc := NewScheduleService()
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	loan := &models.Loan{
		ID:              2,
		PrincipalAmount: 120000,
		InterestRate:    12,
		InterestMethod:  models.InterestMethodDeclining,
		TermMonths:      12,
	}

	result, err := svc.Generate(context.Background(), loan, monthlyProduct(models.InterestMethodDeclining), start)
	assert.NoError(t, err)
	assert.Len(t, result.Installments, 12)

	// Annuity payment: 120000 * 0.01 * 1.01^12 / (1.01^12 - 1) rounds to 10662
	assert.Equal(t, 10662.0, result.InstallmentAmount)
	assert.Equal(t, 7942.0, result.TotalInterest)
	assert.Equal(t, 127942.0, result.TotalRepayable)

	// Every installment but the last carries the constant annuity payment
	for i := 0; i < 11; i++ {
		assert.Equal(t, 10662.0, result.Installments[i].Amount)
	}

	// Interest runs on the falling balance while principal grows to compensate
	first := result.Installments[0]
	assert.Equal(t, 1200.0, first.InterestComponent)
	assert.Equal(t, 9462.0, first.PrincipalComponent)

	sixth := result.Installments[5]
	assert.Equal(t, 717.0, sixth.InterestComponent)
	assert.Equal(t, 9945.0, sixth.PrincipalComponent)

	// The last row clears the remaining balance exactly
	last := result.Installments[11]
	assert.Equal(t, 10660.0, last.Amount)
	assert.Equal(t, 106.0, last.InterestComponent)
	assert.Equal(t, 10554.0, last.PrincipalComponent)

	var sum, principalSum float64
	for _, inst := range result.Installments {
		sum += inst.Amount
		principalSum += inst.PrincipalComponent
	}
	assert.Equal(t, 127942.0, sum)
	assert.Equal(t, 120000.0, principalSum)
}

func TestScheduleService_Generate_FlatInterestIgnoresTerm(t *testing.T) {
	svc := NewScheduleService()
	start := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)

	// A longer term spreads the same fixed charge, it never grows it
	loan := &models.Loan{
		ID:              4,
		PrincipalAmount: 100000,
		InterestRate:    12,
		InterestMethod:  models.InterestMethodFlat,
		TermMonths:      24,
	}

	result, err := svc.Generate(context.Background(), loan, monthlyProduct(models.InterestMethodFlat), start)
	assert.NoError(t, err)
	assert.Len(t, result.Installments, 24)

	assert.Equal(t, 12000.0, result.TotalInterest)
	assert.Equal(t, 112000.0, result.TotalRepayable)
	assert.Equal(t, 4667.0, result.InstallmentAmount)

	var sum float64
	for _, inst := range result.Installments {
		sum += inst.Amount
	}
	assert.Equal(t, 112000.0, sum)
}

func TestScheduleService_Generate_QuarterlyFrequency(t *testing.T) {
	svc := NewScheduleService()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	loan := &models.Loan{
		ID:              3,
		PrincipalAmount: 60000,
		InterestRate:    10,
		InterestMethod:  models.InterestMethodFlat,
		TermMonths:      12,
	}
	product := &models.LoanProduct{
		InterestMethod:     models.InterestMethodFlat,
		RepaymentFrequency: models.FrequencyQuarterly,
	}

	result, err := svc.Generate(context.Background(), loan, product, start)
	assert.NoError(t, err)
	assert.Len(t, result.Installments, 4)

	assert.Equal(t, start.AddDate(0, 3, 0), result.Installments[0].DueDate)
	assert.Equal(t, start.AddDate(0, 12, 0), result.Installments[3].DueDate)

	var sum float64
	for _, inst := range result.Installments {
		sum += inst.Amount
	}
	assert.Equal(t, result.TotalRepayable, sum)
}

func TestScheduleService_Generate_Validation(t *testing.T) {
	svc := NewScheduleService()
	start := time.Now()
	product := monthlyProduct(models.InterestMethodFlat)

	_, err := svc.Generate(context.Background(), &models.Loan{PrincipalAmount: 0, TermMonths: 12}, product, start)
	assert.True(t, IsValidation(err))

	_, err = svc.Generate(context.Background(), &models.Loan{PrincipalAmount: 1000, TermMonths: 0}, product, start)
	assert.True(t, IsValidation(err))

	_, err = svc.Generate(context.Background(), &models.Loan{PrincipalAmount: 1000, TermMonths: 12, InterestMethod: "balloon"}, product, start)
	assert.True(t, IsValidation(err))
}
