package services

import (
	"context"
	"testing"
	"time"

	"github.com/kopesha/kopesha-api/internal/jobs"
	"github.com/kopesha/kopesha-api/internal/models"
	"github.com/kopesha/kopesha-api/internal/repository"
	"github.com/stretchr/testify/assert"
)

type mockRepaymentRepo struct {
	repository.RepaymentRepository
	mockFindByTransactionID func(ctx context.Context, transactionID string) (*models.Repayment, error)
	mockCreate              func(ctx context.Context, repayment *models.Repayment) error
	mockList                func(ctx context.Context, query *repository.ListQuery) ([]models.Repayment, int64, error)
}

func (m *mockRepaymentRepo) List(ctx context.Context, query *repository.ListQuery) ([]models.Repayment, int64, error) {
	return m.mockList(ctx, query)
}

func (m *mockRepaymentRepo) FindByTransactionID(ctx context.Context, transactionID string) (*models.Repayment, error) {
	if m.mockFindByTransactionID != nil {
		return m.mockFindByTransactionID(ctx, transactionID)
	}
	return nil, ErrNotFound
}

func (m *mockRepaymentRepo) Create(ctx context.Context, repayment *models.Repayment) error {
	if m.mockCreate != nil {
		return m.mockCreate(ctx, repayment)
	}
	return nil
}

type repaymentServiceMocks struct {
	repo            *mockRepaymentRepo
	loanRepo        *mockLoanRepo
	installmentRepo *mockInstallmentRepo
}

func newTestRepaymentService(t *testing.T) (*RepaymentService, *repaymentServiceMocks) {
	m := &repaymentServiceMocks{
		repo:            &mockRepaymentRepo{},
		loanRepo:        &mockLoanRepo{},
		installmentRepo: &mockInstallmentRepo{},
	}

	worker := jobs.NewWorker(1)
	t.Cleanup(worker.Shutdown)

	notificationSvc := NewNotificationService(&mockNotificationRepo{}, &mockUserRepo{})
	svc := NewRepaymentService(m.repo, m.loanRepo, m.installmentRepo,
		notificationSvc, NewAuditService(nil), worker)
	return svc, m
}

func TestRepaymentService_RecordRepayment_AllocatesOldestFirst(t *testing.T) {
	svc, m := newTestRepaymentService(t)

	paymentDate := time.Date(2026, 6, 10, 0, 0, 0, 0, time.UTC)

	m.loanRepo.mockFindByID = func(ctx context.Context, id uint) (*models.Loan, error) {
		return &models.Loan{
			ID:                 id,
			ClientID:           7,
			Status:             models.LoanStatusActive,
			TotalRepayable:     33600,
			OutstandingBalance: 33600,
		}, nil
	}
	m.installmentRepo.mockFindByLoan = func(ctx context.Context, loanID uint) ([]models.Installment, error) {
		return []models.Installment{
			{ID: 1, LoanID: loanID, Number: 1, Amount: 11200, DueDate: paymentDate.AddDate(0, 0, 5), Status: models.InstallmentStatusPending},
			{ID: 2, LoanID: loanID, Number: 2, Amount: 11200, DueDate: paymentDate.AddDate(0, 1, 5), Status: models.InstallmentStatusPending},
			{ID: 3, LoanID: loanID, Number: 3, Amount: 11200, DueDate: paymentDate.AddDate(0, 2, 5), Status: models.InstallmentStatusPending},
		}, nil
	}

	var savedLoan *models.Loan
	m.loanRepo.mockUpdateWithVersion = func(ctx context.Context, loan *models.Loan, expectedVersion int) (bool, error) {
		savedLoan = loan
		return true, nil
	}

	var updated []models.Installment
	m.installmentRepo.mockUpdate = func(ctx context.Context, installment *models.Installment) error {
		updated = append(updated, *installment)
		return nil
	}

	repayment, err := svc.RecordRepayment(context.Background(), &RecordRepaymentInput{
		LoanID:      1,
		Amount:      15000,
		PaymentDate: paymentDate,
		Method:      models.RepaymentMethodMpesa,
	})
	assert.NoError(t, err)
	assert.Equal(t, 15000.0, repayment.Amount)

	assert.Equal(t, 15000.0, savedLoan.PaidAmount)
	assert.Equal(t, 18600.0, savedLoan.OutstandingBalance)
	assert.Equal(t, models.LoanStatusActive, savedLoan.Status)

	// First installment settles in full, the second takes the remainder
	assert.Len(t, updated, 2)
	assert.Equal(t, models.InstallmentStatusPaid, updated[0].Status)
	assert.Equal(t, 11200.0, updated[0].PaidAmount)
	assert.Equal(t, models.InstallmentStatusPending, updated[1].Status)
	assert.Equal(t, 3800.0, updated[1].PaidAmount)
}

func TestRepaymentService_RecordRepayment_SettlesAtZero(t *testing.T) {
	svc, m := newTestRepaymentService(t)

	dueDate := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	paymentDate := dueDate.AddDate(0, 0, 10)

	m.loanRepo.mockFindByID = func(ctx context.Context, id uint) (*models.Loan, error) {
		return &models.Loan{
			ID:                 id,
			ClientID:           7,
			Status:             models.LoanStatusInArrears,
			TotalRepayable:     10000,
			PaidAmount:         8000,
			OutstandingBalance: 2000,
			DaysInArrears:      10,
		}, nil
	}
	m.installmentRepo.mockFindByLoan = func(ctx context.Context, loanID uint) ([]models.Installment, error) {
		return []models.Installment{
			{ID: 1, LoanID: loanID, Number: 1, Amount: 10000, PaidAmount: 8000, DueDate: dueDate, Status: models.InstallmentStatusOverdue},
		}, nil
	}

	var savedLoan *models.Loan
	m.loanRepo.mockUpdateWithVersion = func(ctx context.Context, loan *models.Loan, expectedVersion int) (bool, error) {
		savedLoan = loan
		return true, nil
	}

	var updated []models.Installment
	m.installmentRepo.mockUpdate = func(ctx context.Context, installment *models.Installment) error {
		updated = append(updated, *installment)
		return nil
	}

	_, err := svc.RecordRepayment(context.Background(), &RecordRepaymentInput{
		LoanID:      1,
		Amount:      2000,
		PaymentDate: paymentDate,
		Method:      models.RepaymentMethodCash,
	})
	assert.NoError(t, err)

	// Balance hits zero and the loan settles in the same call
	assert.Equal(t, models.LoanStatusFullyPaid, savedLoan.Status)
	assert.Equal(t, 0.0, savedLoan.OutstandingBalance)
	assert.NotNil(t, savedLoan.SettledAt)
	assert.Equal(t, 0, savedLoan.DaysInArrears)

	assert.Len(t, updated, 1)
	assert.Equal(t, models.InstallmentStatusLatePaid, updated[0].Status)
	assert.NotNil(t, updated[0].PaidAt)
}

func TestRepaymentService_RecordRepayment_DuplicateTransaction(t *testing.T) {
	svc, m := newTestRepaymentService(t)

	existing := &models.Repayment{ID: 42, LoanID: 1, Amount: 5000}
	m.repo.mockFindByTransactionID = func(ctx context.Context, transactionID string) (*models.Repayment, error) {
		return existing, nil
	}

	loanLookups := 0
	m.loanRepo.mockFindByID = func(ctx context.Context, id uint) (*models.Loan, error) {
		loanLookups++
		return nil, ErrNotFound
	}

	// A retried M-Pesa callback returns the original row instead of double-posting
	repayment, err := svc.RecordRepayment(context.Background(), &RecordRepaymentInput{
		LoanID:        1,
		Amount:        5000,
		Method:        models.RepaymentMethodMpesa,
		TransactionID: strPtr("SFC12345XY"),
	})
	assert.NoError(t, err)
	assert.Equal(t, existing, repayment)
	assert.Equal(t, 0, loanLookups)
}

func TestRepaymentService_RecordRepayment_ClosedLoan(t *testing.T) {
	svc, m := newTestRepaymentService(t)

	m.loanRepo.mockFindByID = func(ctx context.Context, id uint) (*models.Loan, error) {
		return &models.Loan{ID: id, Status: models.LoanStatusFullyPaid}, nil
	}

	_, err := svc.RecordRepayment(context.Background(), &RecordRepaymentInput{
		LoanID: 1,
		Amount: 1000,
		Method: models.RepaymentMethodCash,
	})
	assert.True(t, IsInvariantViolation(err))
}

func TestRepaymentService_RecordRepayment_Validation(t *testing.T) {
	svc, _ := newTestRepaymentService(t)

	_, err := svc.RecordRepayment(context.Background(), &RecordRepaymentInput{
		LoanID: 1,
		Amount: 0,
		Method: models.RepaymentMethodCash,
	})
	assert.True(t, IsValidation(err))

	_, err = svc.RecordRepayment(context.Background(), &RecordRepaymentInput{
		LoanID: 1,
		Amount: 1000,
		Method: "barter",
	})
	assert.True(t, IsValidation(err))
}

func TestRepaymentService_RecordRepayment_StaleLoan(t *testing.T) {
	svc, m := newTestRepaymentService(t)

	m.loanRepo.mockFindByID = func(ctx context.Context, id uint) (*models.Loan, error) {
		return &models.Loan{ID: id, Status: models.LoanStatusActive, TotalRepayable: 10000, OutstandingBalance: 10000}, nil
	}
	m.installmentRepo.mockFindByLoan = func(ctx context.Context, loanID uint) ([]models.Installment, error) {
		return []models.Installment{
			{ID: 1, LoanID: loanID, Amount: 10000, DueDate: time.Now().AddDate(0, 1, 0), Status: models.InstallmentStatusPending},
		}, nil
	}
	m.loanRepo.mockUpdateWithVersion = func(ctx context.Context, loan *models.Loan, expectedVersion int) (bool, error) {
		return false, nil
	}

	// A lost version race leaves the schedule untouched
	installmentUpdates := 0
	m.installmentRepo.mockUpdate = func(ctx context.Context, installment *models.Installment) error {
		installmentUpdates++
		return nil
	}

	_, err := svc.RecordRepayment(context.Background(), &RecordRepaymentInput{
		LoanID: 1,
		Amount: 1000,
		Method: models.RepaymentMethodCash,
	})
	assert.Equal(t, ErrStaleState, err)
	assert.Equal(t, 0, installmentUpdates)
}
