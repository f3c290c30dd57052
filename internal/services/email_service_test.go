package services

import (
	"context"
	"testing"
	"time"

	"github.com/kopesha/kopesha-api/internal/config"
	"github.com/kopesha/kopesha-api/internal/models"
	"github.com/kopesha/kopesha-api/pkg/logger"
	"github.com/stretchr/testify/assert"
)

// Without RESEND_API_KEY the send is logged and skipped, so these tests
// exercise template rendering end to end without a provider.
func TestEmailService_SendLoanApproved(t *testing.T) {
	logger.Setup("test")
	service := NewEmailService(&config.Config{})

	loan := &models.Loan{
		Reference:         "LN-2026-0042",
		PrincipalAmount:   50000,
		InstallmentAmount: 4667,
		TermMonths:        12,
		InterestRate:      12,
		Client:            models.User{FullName: "Wanjiku Kamau", Email: "wanjiku@example.com"},
		Product:           models.LoanProduct{Name: "Biashara Boost"},
	}

	err := service.SendLoanApproved(context.Background(), loan)
	assert.NoError(t, err)
}

func TestEmailService_SendRecoveryCode(t *testing.T) {
	logger.Setup("test")
	service := NewEmailService(&config.Config{})

	user := &models.User{FullName: "John Otieno", Email: "john@example.com"}
	err := service.SendRecoveryCode(context.Background(), user, "482913")
	assert.NoError(t, err)
}

func TestEmailService_SendOverdueInstallments(t *testing.T) {
	logger.Setup("test")
	service := NewEmailService(&config.Config{})

	user := &models.User{FullName: "Mary Akinyi", Email: "mary@example.com"}
	installments := []models.Installment{
		{
			Amount:  9000,
			DueDate: time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
			Loan:    models.Loan{Reference: "LN-2026-0007"},
		},
	}

	err := service.SendOverdueInstallments(context.Background(), user, installments)
	assert.NoError(t, err)
}

func TestEmailService_EmptyRecipient(t *testing.T) {
	logger.Setup("test")
	service := NewEmailService(&config.Config{})

	loan := &models.Loan{
		Reference: "LN-2026-0001",
		Client:    models.User{FullName: "No Email"},
		Product:   models.LoanProduct{Name: "Biashara Boost"},
	}

	err := service.SendLoanApproved(context.Background(), loan)
	assert.True(t, IsValidation(err))
}
