package services

import (
	"context"
	"encoding/csv"
	"testing"
	"time"

	"github.com/kopesha/kopesha-api/internal/models"
	"github.com/kopesha/kopesha-api/internal/repository"
	"github.com/stretchr/testify/assert"
)

func TestGenerateArrearsCSV(t *testing.T) {
	loanRepo := &mockLoanRepo{}
	service := NewReportService(loanRepo, nil, nil)

	officerID := uint(3)
	loanRepo.mockFindByStatus = func(ctx context.Context, statuses []string) ([]models.Loan, error) {
		assert.Equal(t, []string{models.LoanStatusInArrears}, statuses)
		return []models.Loan{
			{
				Reference:          "LN-2026-0042",
				PrincipalAmount:    50000,
				OutstandingBalance: 31000,
				DaysInArrears:      14,
				OfficerID:          &officerID,
				Client:             models.User{ID: 7, FullName: "Wanjiku Kamau", Phone: "254712345678"},
			},
			{
				Reference:          "LN-2026-0051",
				PrincipalAmount:    20000,
				OutstandingBalance: 8400,
				DaysInArrears:      3,
			},
		}, nil
	}

	buf, err := service.GenerateArrearsCSV(context.Background())
	assert.NoError(t, err)

	records, err := csv.NewReader(buf).ReadAll()
	assert.NoError(t, err)
	assert.Len(t, records, 3)

	assert.Equal(t, []string{"Reference", "Client", "Phone", "Principal", "Outstanding", "Days In Arrears", "Officer ID"}, records[0])

	row1 := records[1]
	assert.Equal(t, "LN-2026-0042", row1[0])
	assert.Equal(t, "Wanjiku Kamau", row1[1])
	assert.Equal(t, "254712345678", row1[2])
	assert.Equal(t, "50000", row1[3])
	assert.Equal(t, "31000", row1[4])
	assert.Equal(t, "14", row1[5])
	assert.Equal(t, "3", row1[6])

	// Loans without a preloaded client still export
	row2 := records[2]
	assert.Equal(t, "N/A", row2[1])
	assert.Equal(t, "", row2[6])
}

func TestGenerateCollectionsCSV(t *testing.T) {
	repaymentRepo := &mockRepaymentRepo{}
	service := NewReportService(nil, repaymentRepo, nil)

	paymentDate := time.Date(2026, 8, 14, 0, 0, 0, 0, time.UTC)
	repaymentRepo.mockList = func(ctx context.Context, query *repository.ListQuery) ([]models.Repayment, int64, error) {
		assert.Equal(t, "2026-08-01", query.Filters["start_date"])
		assert.Equal(t, "2026-08-31", query.Filters["end_date"])
		repayments := []models.Repayment{
			{
				ID:            1,
				LoanID:        9,
				Amount:        4667,
				PaymentDate:   paymentDate,
				Method:        models.RepaymentMethodMpesa,
				TransactionID: strPtr("SFC8K2T1XQ"),
				Loan: models.Loan{
					ID:        9,
					Reference: "LN-2026-0042",
					Client:    models.User{ID: 7, FullName: "Wanjiku Kamau"},
				},
			},
		}
		return repayments, 1, nil
	}

	buf, err := service.GenerateCollectionsCSV(context.Background(), "2026-08-01", "2026-08-31")
	assert.NoError(t, err)

	records, err := csv.NewReader(buf).ReadAll()
	assert.NoError(t, err)
	assert.Len(t, records, 2)

	row := records[1]
	assert.Equal(t, "LN-2026-0042", row[1])
	assert.Equal(t, "Wanjiku Kamau", row[2])
	assert.Equal(t, "4667", row[3])
	assert.Equal(t, "2026-08-14", row[4])
	assert.Equal(t, models.RepaymentMethodMpesa, row[5])
	assert.Equal(t, "SFC8K2T1XQ", row[6])
}

func TestGenerateLoanStatementPDF(t *testing.T) {
	loanRepo := &mockLoanRepo{}
	service := NewReportService(loanRepo, nil, nil)

	start := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	loanRepo.mockFindByIDWithDetails = func(ctx context.Context, id uint) (*models.Loan, error) {
		return &models.Loan{
			ID:                 id,
			Reference:          "LN-2026-0042",
			Status:             models.LoanStatusActive,
			PrincipalAmount:    50000,
			InterestRate:       12,
			TermMonths:         12,
			TotalRepayable:     56000,
			OutstandingBalance: 51333,
			Client:             models.User{ID: 7, FullName: "Wanjiku Kamau"},
			Product:            models.LoanProduct{ID: 1, Name: "Biashara Boost"},
			Installments: []models.Installment{
				{Number: 1, DueDate: start.AddDate(0, 1, 0), Amount: 4667, PrincipalComponent: 4167, InterestComponent: 500, PaidAmount: 4667, Status: models.InstallmentStatusPaid},
				{Number: 2, DueDate: start.AddDate(0, 2, 0), Amount: 4667, PrincipalComponent: 4167, InterestComponent: 500, Status: models.InstallmentStatusPending},
			},
			Repayments: []models.Repayment{
				{Amount: 4667, PaymentDate: start.AddDate(0, 1, -2), Method: models.RepaymentMethodMpesa, TransactionID: strPtr("SFC8K2T1XQ")},
			},
		}, nil
	}

	buf, err := service.GenerateLoanStatementPDF(context.Background(), 9)
	assert.NoError(t, err)
	assert.NotNil(t, buf)
	assert.Greater(t, buf.Len(), 0, "PDF buffer should not be empty")
}
