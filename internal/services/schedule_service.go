package services

import (
	"context"
	"time"

	"github.com/kopesha/kopesha-api/internal/models"
	"github.com/shopspring/decimal"
)

// ScheduleService generates repayment schedules. All arithmetic runs on
// decimals and every figure is rounded to whole shillings; the final
// installment absorbs the rounding drift so the schedule always sums exactly
// to the total repayable.
type ScheduleService struct{}

// NewScheduleService creates a new schedule service
func NewScheduleService() *ScheduleService {
	return &ScheduleService{}
}

// ScheduleResult is a computed schedule plus its headline figures
type ScheduleResult struct {
	TotalInterest     float64
	TotalRepayable    float64
	InstallmentAmount float64
	Installments      []models.Installment
}

// Generate builds the schedule for a loan using the product's repayment
// frequency. The first installment falls one period after startDate.
func (s *ScheduleService) Generate(ctx context.Context, loan *models.Loan, product *models.LoanProduct, startDate time.Time) (*ScheduleResult, error) {
	if loan.PrincipalAmount <= 0 {
		return nil, NewValidationError("principal_amount", "must be greater than zero")
	}
	if loan.TermMonths <= 0 {
		return nil, NewValidationError("term_months", "must be greater than zero")
	}
	if loan.InterestRate < 0 {
		return nil, NewValidationError("interest_rate", "must not be negative")
	}

	periods := product.PeriodsForTerm(loan.TermMonths)
	if periods <= 0 {
		return nil, NewValidationError("term_months", "term produces no repayment periods")
	}

	monthsPerPeriod := 1
	if product.RepaymentFrequency == models.FrequencyQuarterly {
		monthsPerPeriod = 3
	}

	switch loan.InterestMethod {
	case models.InterestMethodFlat:
		return s.generateFlat(loan, periods, monthsPerPeriod, startDate), nil
	case models.InterestMethodDeclining:
		return s.generateDeclining(loan, periods, monthsPerPeriod, startDate), nil
	default:
		return nil, NewValidationError("interest_method", "unknown interest method: "+loan.InterestMethod)
	}
}

// generateFlat charges the rate once on the full principal. The term only
// spreads the fixed total across installments, it never scales the interest.
func (s *ScheduleService) generateFlat(loan *models.Loan, periods, monthsPerPeriod int, startDate time.Time) *ScheduleResult {
	principal := decimal.NewFromFloat(loan.PrincipalAmount)
	rate := decimal.NewFromFloat(loan.InterestRate).Div(decimal.NewFromInt(100))
	n := decimal.NewFromInt(int64(periods))

	totalInterest := principal.Mul(rate).Round(0)
	totalRepayable := principal.Add(totalInterest)
	installment := totalRepayable.Div(n).Round(0)
	principalPer := principal.Div(n).Round(0)
	interestPer := installment.Sub(principalPer)

	installments := make([]models.Installment, 0, periods)
	for i := 1; i <= periods; i++ {
		amount := installment
		principalComponent := principalPer
		interestComponent := interestPer

		if i == periods {
			// The last row balances the schedule against the exact totals
			paidSoFar := installment.Mul(decimal.NewFromInt(int64(periods - 1)))
			amount = totalRepayable.Sub(paidSoFar)
			principalComponent = principal.Sub(principalPer.Mul(decimal.NewFromInt(int64(periods - 1))))
			interestComponent = amount.Sub(principalComponent)
		}

		installments = append(installments, models.Installment{
			LoanID:             loan.ID,
			Number:             i,
			DueDate:            startDate.AddDate(0, i*monthsPerPeriod, 0),
			Amount:             amount.InexactFloat64(),
			PrincipalComponent: principalComponent.InexactFloat64(),
			InterestComponent:  interestComponent.InexactFloat64(),
			Status:             models.InstallmentStatusPending,
		})
	}

	return &ScheduleResult{
		TotalInterest:     totalInterest.InexactFloat64(),
		TotalRepayable:    totalRepayable.InexactFloat64(),
		InstallmentAmount: installment.InexactFloat64(),
		Installments:      installments,
	}
}

// generateDeclining amortizes the loan as an annuity: a constant installment
// of P*r*(1+r)^n / ((1+r)^n - 1), with each period's interest charged on the
// balance still outstanding and the remainder retiring principal.
func (s *ScheduleService) generateDeclining(loan *models.Loan, periods, monthsPerPeriod int, startDate time.Time) *ScheduleResult {
	principal := decimal.NewFromFloat(loan.PrincipalAmount)
	periodRate := decimal.NewFromFloat(loan.InterestRate).
		Div(decimal.NewFromInt(100)).
		Mul(decimal.NewFromInt(int64(monthsPerPeriod))).
		Div(decimal.NewFromInt(12))
	n := decimal.NewFromInt(int64(periods))

	var payment decimal.Decimal
	if periodRate.IsZero() {
		payment = principal.Div(n).Round(0)
	} else {
		factor := decimal.NewFromInt(1).Add(periodRate).Pow(n)
		payment = principal.Mul(periodRate).Mul(factor).
			Div(factor.Sub(decimal.NewFromInt(1))).
			Round(0)
	}

	balance := principal
	totalInterest := decimal.Zero

	installments := make([]models.Installment, 0, periods)
	for i := 1; i <= periods; i++ {
		interestComponent := balance.Mul(periodRate).Round(0)
		principalComponent := payment.Sub(interestComponent)
		amount := payment
		if i == periods {
			// Last row clears whatever principal rounding left behind
			principalComponent = balance
			amount = principalComponent.Add(interestComponent)
		}

		installments = append(installments, models.Installment{
			LoanID:             loan.ID,
			Number:             i,
			DueDate:            startDate.AddDate(0, i*monthsPerPeriod, 0),
			Amount:             amount.InexactFloat64(),
			PrincipalComponent: principalComponent.InexactFloat64(),
			InterestComponent:  interestComponent.InexactFloat64(),
			Status:             models.InstallmentStatusPending,
		})

		totalInterest = totalInterest.Add(interestComponent)
		balance = balance.Sub(principalComponent)
	}

	totalRepayable := principal.Add(totalInterest)

	return &ScheduleResult{
		TotalInterest:     totalInterest.InexactFloat64(),
		TotalRepayable:    totalRepayable.InexactFloat64(),
		InstallmentAmount: payment.InexactFloat64(),
		Installments:      installments,
	}
}
