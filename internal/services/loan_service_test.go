package services

import (
	"context"
	"testing"

	"github.com/kopesha/kopesha-api/internal/jobs"
	"github.com/kopesha/kopesha-api/internal/models"
	"github.com/kopesha/kopesha-api/internal/repository"
	"github.com/stretchr/testify/assert"
)

type mockLoanRepo struct {
	repository.LoanRepository
	mockFindByID            func(ctx context.Context, id uint) (*models.Loan, error)
	mockFindByIDWithDetails func(ctx context.Context, id uint) (*models.Loan, error)
	mockFindByStatus        func(ctx context.Context, statuses []string) ([]models.Loan, error)
	mockCreate              func(ctx context.Context, loan *models.Loan) error
	mockUpdateWithVersion   func(ctx context.Context, loan *models.Loan, expectedVersion int) (bool, error)
}

func (m *mockLoanRepo) FindByID(ctx context.Context, id uint) (*models.Loan, error) {
	return m.mockFindByID(ctx, id)
}

func (m *mockLoanRepo) FindByIDWithDetails(ctx context.Context, id uint) (*models.Loan, error) {
	return m.mockFindByIDWithDetails(ctx, id)
}

func (m *mockLoanRepo) FindByStatus(ctx context.Context, statuses []string) ([]models.Loan, error) {
	return m.mockFindByStatus(ctx, statuses)
}

func (m *mockLoanRepo) Create(ctx context.Context, loan *models.Loan) error {
	if m.mockCreate != nil {
		return m.mockCreate(ctx, loan)
	}
	return nil
}

func (m *mockLoanRepo) UpdateWithVersion(ctx context.Context, loan *models.Loan, expectedVersion int) (bool, error) {
	if m.mockUpdateWithVersion != nil {
		return m.mockUpdateWithVersion(ctx, loan, expectedVersion)
	}
	return true, nil
}

type mockProductRepo struct {
	repository.ProductRepository
	mockFindByID func(ctx context.Context, id uint) (*models.LoanProduct, error)
}

func (m *mockProductRepo) FindByID(ctx context.Context, id uint) (*models.LoanProduct, error) {
	return m.mockFindByID(ctx, id)
}

type mockInstallmentRepo struct {
	repository.InstallmentRepository
	mockCreateBatch  func(ctx context.Context, installments []models.Installment) error
	mockFindByLoan   func(ctx context.Context, loanID uint) ([]models.Installment, error)
	mockUpdate       func(ctx context.Context, installment *models.Installment) error
	mockDeleteByLoan func(ctx context.Context, loanID uint) error
}

func (m *mockInstallmentRepo) CreateBatch(ctx context.Context, installments []models.Installment) error {
	if m.mockCreateBatch != nil {
		return m.mockCreateBatch(ctx, installments)
	}
	return nil
}

func (m *mockInstallmentRepo) FindByLoan(ctx context.Context, loanID uint) ([]models.Installment, error) {
	return m.mockFindByLoan(ctx, loanID)
}

func (m *mockInstallmentRepo) Update(ctx context.Context, installment *models.Installment) error {
	if m.mockUpdate != nil {
		return m.mockUpdate(ctx, installment)
	}
	return nil
}

func (m *mockInstallmentRepo) DeleteByLoan(ctx context.Context, loanID uint) error {
	if m.mockDeleteByLoan != nil {
		return m.mockDeleteByLoan(ctx, loanID)
	}
	return nil
}

type mockSourceRepo struct {
	repository.PaymentSourceRepository
	mockFindByID func(ctx context.Context, id uint) (*models.PaymentSource, error)
	mockDebit    func(ctx context.Context, id uint, amount float64) (bool, error)
	mockCredit   func(ctx context.Context, id uint, amount float64) error
}

func (m *mockSourceRepo) FindByID(ctx context.Context, id uint) (*models.PaymentSource, error) {
	return m.mockFindByID(ctx, id)
}

func (m *mockSourceRepo) Debit(ctx context.Context, id uint, amount float64) (bool, error) {
	if m.mockDebit != nil {
		return m.mockDebit(ctx, id, amount)
	}
	return true, nil
}

func (m *mockSourceRepo) Credit(ctx context.Context, id uint, amount float64) error {
	if m.mockCredit != nil {
		return m.mockCredit(ctx, id, amount)
	}
	return nil
}

type mockNotificationRepo struct {
	repository.NotificationRepository
	mockCreate func(ctx context.Context, notification *models.Notification) error
}

func (m *mockNotificationRepo) Create(ctx context.Context, notification *models.Notification) error {
	if m.mockCreate != nil {
		return m.mockCreate(ctx, notification)
	}
	return nil
}

type loanServiceMocks struct {
	loanRepo        *mockLoanRepo
	productRepo     *mockProductRepo
	userRepo        *mockUserRepo
	installmentRepo *mockInstallmentRepo
	sourceRepo      *mockSourceRepo
}

func newTestLoanService(t *testing.T) (*LoanService, *loanServiceMocks) {
	m := &loanServiceMocks{
		loanRepo:        &mockLoanRepo{},
		productRepo:     &mockProductRepo{},
		userRepo:        &mockUserRepo{},
		installmentRepo: &mockInstallmentRepo{},
		sourceRepo:      &mockSourceRepo{},
	}

	worker := jobs.NewWorker(1)
	t.Cleanup(worker.Shutdown)

	notificationSvc := NewNotificationService(&mockNotificationRepo{}, m.userRepo)
	svc := NewLoanService(m.loanRepo, m.productRepo, m.userRepo, m.installmentRepo,
		m.sourceRepo, notificationSvc, NewAuditService(nil), nil, worker)
	return svc, m
}

func testLoanProduct() *models.LoanProduct {
	return &models.LoanProduct{
		ID:                 1,
		Name:               "Biashara Boost",
		InterestRate:       12,
		InterestMethod:     models.InterestMethodFlat,
		TermMonths:         12,
		RepaymentFrequency: models.FrequencyMonthly,
		MinAmount:          5000,
		MaxAmount:          200000,
		Active:             true,
	}
}

func uintPtr(v uint) *uint {
	return &v
}

func TestLoanService_Apply(t *testing.T) {
	svc, m := newTestLoanService(t)

	m.userRepo.mockFindByID = func(ctx context.Context, id uint) (*models.User, error) {
		return &models.User{ID: id, FullName: "Wanjiku Kamau", Status: models.StatusActive}, nil
	}
	m.productRepo.mockFindByID = func(ctx context.Context, id uint) (*models.LoanProduct, error) {
		return testLoanProduct(), nil
	}

	var created *models.Loan
	m.loanRepo.mockCreate = func(ctx context.Context, loan *models.Loan) error {
		created = loan
		return nil
	}

	loan, err := svc.Apply(context.Background(), &ApplyLoanInput{
		ClientID:        7,
		ProductID:       1,
		PrincipalAmount: 50000,
		Purpose:         strPtr("Stock for kiosk"),
	})

	assert.NoError(t, err)
	assert.NotNil(t, created)
	assert.NotEmpty(t, loan.Reference)
	assert.Equal(t, models.LoanStatusPending, loan.Status)

	// Product terms are copied onto the loan at application time
	assert.Equal(t, 12.0, loan.InterestRate)
	assert.Equal(t, models.InterestMethodFlat, loan.InterestMethod)
	assert.Equal(t, 12, loan.TermMonths)

	// Flat interest quote: 50000 * 12%
	assert.Equal(t, 6000.0, loan.TotalInterest)
	assert.Equal(t, 56000.0, loan.TotalRepayable)
	assert.Equal(t, 4667.0, loan.InstallmentAmount)

	// Unsecured mid-size loan with no age data scores medium
	assert.Equal(t, 50, loan.RiskScore)
	assert.Equal(t, models.RiskLevelMedium, loan.RiskLevel)
}

func TestLoanService_Apply_AmountOutOfRange(t *testing.T) {
	svc, m := newTestLoanService(t)

	m.userRepo.mockFindByID = func(ctx context.Context, id uint) (*models.User, error) {
		return &models.User{ID: id, Status: models.StatusActive}, nil
	}
	m.productRepo.mockFindByID = func(ctx context.Context, id uint) (*models.LoanProduct, error) {
		return testLoanProduct(), nil
	}

	_, err := svc.Apply(context.Background(), &ApplyLoanInput{
		ClientID:        7,
		ProductID:       1,
		PrincipalAmount: 500000,
	})
	assert.True(t, IsValidation(err))
}

func TestLoanService_Apply_GuarantorRequired(t *testing.T) {
	svc, m := newTestLoanService(t)

	m.userRepo.mockFindByID = func(ctx context.Context, id uint) (*models.User, error) {
		return &models.User{ID: id, Status: models.StatusActive}, nil
	}
	m.productRepo.mockFindByID = func(ctx context.Context, id uint) (*models.LoanProduct, error) {
		product := testLoanProduct()
		product.GuarantorRequired = true
		return product, nil
	}

	_, err := svc.Apply(context.Background(), &ApplyLoanInput{
		ClientID:        7,
		ProductID:       1,
		PrincipalAmount: 50000,
	})
	assert.True(t, IsValidation(err))

	_, err = svc.Apply(context.Background(), &ApplyLoanInput{
		ClientID:        7,
		ProductID:       1,
		PrincipalAmount: 50000,
		GuarantorName:   strPtr("Grace Wanjiru"),
	})
	assert.NoError(t, err)
}

func TestLoanService_Apply_InactiveClient(t *testing.T) {
	svc, m := newTestLoanService(t)

	m.userRepo.mockFindByID = func(ctx context.Context, id uint) (*models.User, error) {
		return &models.User{ID: id, Status: models.StatusSuspended}, nil
	}

	_, err := svc.Apply(context.Background(), &ApplyLoanInput{
		ClientID:        7,
		ProductID:       1,
		PrincipalAmount: 50000,
	})
	assert.True(t, IsValidation(err))
}

func TestLoanService_Review(t *testing.T) {
	svc, m := newTestLoanService(t)

	m.loanRepo.mockFindByID = func(ctx context.Context, id uint) (*models.Loan, error) {
		return &models.Loan{ID: id, Status: models.LoanStatusPending, LockVersion: 3}, nil
	}

	var savedVersion int
	m.loanRepo.mockUpdateWithVersion = func(ctx context.Context, loan *models.Loan, expectedVersion int) (bool, error) {
		savedVersion = expectedVersion
		return true, nil
	}

	loan, err := svc.Review(context.Background(), 1, 99)
	assert.NoError(t, err)
	assert.Equal(t, models.LoanStatusUnderReview, loan.Status)
	assert.Equal(t, 3, savedVersion)
}

func TestLoanService_Review_StaleVersion(t *testing.T) {
	svc, m := newTestLoanService(t)

	m.loanRepo.mockFindByID = func(ctx context.Context, id uint) (*models.Loan, error) {
		return &models.Loan{ID: id, Status: models.LoanStatusPending}, nil
	}
	m.loanRepo.mockUpdateWithVersion = func(ctx context.Context, loan *models.Loan, expectedVersion int) (bool, error) {
		return false, nil
	}

	_, err := svc.Review(context.Background(), 1, 99)
	assert.Equal(t, ErrStaleState, err)
}

func TestLoanService_Approve_InvalidState(t *testing.T) {
	svc, m := newTestLoanService(t)

	m.loanRepo.mockFindByID = func(ctx context.Context, id uint) (*models.Loan, error) {
		return &models.Loan{ID: id, Status: models.LoanStatusPending}, nil
	}

	_, err := svc.Approve(context.Background(), 1, 99)
	assert.True(t, IsInvariantViolation(err))
}

func TestLoanService_Reject(t *testing.T) {
	svc, m := newTestLoanService(t)

	m.loanRepo.mockFindByID = func(ctx context.Context, id uint) (*models.Loan, error) {
		return &models.Loan{ID: id, Status: models.LoanStatusUnderReview}, nil
	}

	_, err := svc.Reject(context.Background(), 1, "", 99)
	assert.True(t, IsValidation(err))

	loan, err := svc.Reject(context.Background(), 1, "Insufficient income", 99)
	assert.NoError(t, err)
	assert.Equal(t, models.LoanStatusRejected, loan.Status)
	assert.Equal(t, "Insufficient income", *loan.RejectionReason)
}

func TestLoanService_Disburse(t *testing.T) {
	svc, m := newTestLoanService(t)

	m.loanRepo.mockFindByID = func(ctx context.Context, id uint) (*models.Loan, error) {
		return &models.Loan{
			ID:              id,
			ClientID:        7,
			ProductID:       1,
			Status:          models.LoanStatusApproved,
			PrincipalAmount: 60000,
			InterestRate:    12,
			InterestMethod:  models.InterestMethodFlat,
			TermMonths:      12,
		}, nil
	}
	m.productRepo.mockFindByID = func(ctx context.Context, id uint) (*models.LoanProduct, error) {
		return testLoanProduct(), nil
	}
	m.sourceRepo.mockFindByID = func(ctx context.Context, id uint) (*models.PaymentSource, error) {
		return &models.PaymentSource{
			ID:      id,
			Name:    "KCB Operating Account",
			Status:  models.PaymentSourceStatusActive,
			Balance: 100000,
		}, nil
	}

	var debited float64
	m.sourceRepo.mockDebit = func(ctx context.Context, id uint, amount float64) (bool, error) {
		debited = amount
		return true, nil
	}

	var schedule []models.Installment
	m.installmentRepo.mockCreateBatch = func(ctx context.Context, installments []models.Installment) error {
		schedule = installments
		return nil
	}

	loan, err := svc.Disburse(context.Background(), 1, 5, 99)
	assert.NoError(t, err)

	assert.Equal(t, models.LoanStatusDisbursed, loan.Status)
	assert.Equal(t, 60000.0, debited)
	assert.NotNil(t, loan.DisbursedAt)
	assert.Equal(t, uint(5), *loan.PaymentSourceID)

	// Outstanding balance opens at the full repayable amount
	assert.Equal(t, 67200.0, loan.TotalRepayable)
	assert.Equal(t, 67200.0, loan.OutstandingBalance)

	assert.Len(t, schedule, 12)
	for _, inst := range schedule {
		assert.Equal(t, loan.ID, inst.LoanID)
	}
}

func TestLoanService_Disburse_UnderfundedSource(t *testing.T) {
	svc, m := newTestLoanService(t)

	m.loanRepo.mockFindByID = func(ctx context.Context, id uint) (*models.Loan, error) {
		return &models.Loan{ID: id, ProductID: 1, Status: models.LoanStatusApproved, PrincipalAmount: 60000}, nil
	}
	m.productRepo.mockFindByID = func(ctx context.Context, id uint) (*models.LoanProduct, error) {
		return testLoanProduct(), nil
	}
	m.sourceRepo.mockFindByID = func(ctx context.Context, id uint) (*models.PaymentSource, error) {
		return &models.PaymentSource{ID: id, Status: models.PaymentSourceStatusActive, Balance: 1000}, nil
	}

	debitCalled := false
	m.sourceRepo.mockDebit = func(ctx context.Context, id uint, amount float64) (bool, error) {
		debitCalled = true
		return true, nil
	}

	_, err := svc.Disburse(context.Background(), 1, 5, 99)
	assert.True(t, IsInvariantViolation(err))
	assert.Contains(t, err.Error(), "active funding source with sufficient balance")
	assert.False(t, debitCalled)
}

func TestLoanService_Disburse_DebitRace(t *testing.T) {
	svc, m := newTestLoanService(t)

	m.loanRepo.mockFindByID = func(ctx context.Context, id uint) (*models.Loan, error) {
		return &models.Loan{ID: id, ProductID: 1, Status: models.LoanStatusApproved, PrincipalAmount: 60000}, nil
	}
	m.productRepo.mockFindByID = func(ctx context.Context, id uint) (*models.LoanProduct, error) {
		return testLoanProduct(), nil
	}
	m.sourceRepo.mockFindByID = func(ctx context.Context, id uint) (*models.PaymentSource, error) {
		return &models.PaymentSource{ID: id, Status: models.PaymentSourceStatusActive, Balance: 100000}, nil
	}

	// Balance check passes but a concurrent disbursement wins the debit
	m.sourceRepo.mockDebit = func(ctx context.Context, id uint, amount float64) (bool, error) {
		return false, nil
	}

	creditCalled := false
	m.sourceRepo.mockCredit = func(ctx context.Context, id uint, amount float64) error {
		creditCalled = true
		return nil
	}

	_, err := svc.Disburse(context.Background(), 1, 5, 99)
	assert.True(t, IsInvariantViolation(err))
	assert.False(t, creditCalled)
}

func TestLoanService_Disburse_RefundsOnStaleState(t *testing.T) {
	svc, m := newTestLoanService(t)

	m.loanRepo.mockFindByID = func(ctx context.Context, id uint) (*models.Loan, error) {
		return &models.Loan{
			ID:              id,
			ProductID:       1,
			Status:          models.LoanStatusApproved,
			PrincipalAmount: 60000,
			InterestRate:    12,
			InterestMethod:  models.InterestMethodFlat,
			TermMonths:      12,
		}, nil
	}
	m.productRepo.mockFindByID = func(ctx context.Context, id uint) (*models.LoanProduct, error) {
		return testLoanProduct(), nil
	}
	m.sourceRepo.mockFindByID = func(ctx context.Context, id uint) (*models.PaymentSource, error) {
		return &models.PaymentSource{ID: id, Status: models.PaymentSourceStatusActive, Balance: 100000}, nil
	}
	m.loanRepo.mockUpdateWithVersion = func(ctx context.Context, loan *models.Loan, expectedVersion int) (bool, error) {
		return false, nil
	}

	var refunded float64
	m.sourceRepo.mockCredit = func(ctx context.Context, id uint, amount float64) error {
		refunded = amount
		return nil
	}
	var scheduleDeleted bool
	m.installmentRepo.mockDeleteByLoan = func(ctx context.Context, loanID uint) error {
		scheduleDeleted = true
		return nil
	}

	_, err := svc.Disburse(context.Background(), 1, 5, 99)
	assert.Equal(t, ErrStaleState, err)
	assert.Equal(t, 60000.0, refunded)

	// The schedule written ahead of the status update gets torn down again
	assert.True(t, scheduleDeleted)
}

func TestLoanService_Disburse_RefundsWhenScheduleWriteFails(t *testing.T) {
	svc, m := newTestLoanService(t)

	m.loanRepo.mockFindByID = func(ctx context.Context, id uint) (*models.Loan, error) {
		return &models.Loan{
			ID:              id,
			ProductID:       1,
			Status:          models.LoanStatusApproved,
			PrincipalAmount: 60000,
			InterestRate:    12,
			InterestMethod:  models.InterestMethodFlat,
			TermMonths:      12,
		}, nil
	}
	m.productRepo.mockFindByID = func(ctx context.Context, id uint) (*models.LoanProduct, error) {
		return testLoanProduct(), nil
	}
	m.sourceRepo.mockFindByID = func(ctx context.Context, id uint) (*models.PaymentSource, error) {
		return &models.PaymentSource{ID: id, Status: models.PaymentSourceStatusActive, Balance: 100000}, nil
	}
	m.installmentRepo.mockCreateBatch = func(ctx context.Context, installments []models.Installment) error {
		return assert.AnError
	}

	var refunded float64
	m.sourceRepo.mockCredit = func(ctx context.Context, id uint, amount float64) error {
		refunded = amount
		return nil
	}
	var statusSaved bool
	m.loanRepo.mockUpdateWithVersion = func(ctx context.Context, loan *models.Loan, expectedVersion int) (bool, error) {
		statusSaved = true
		return true, nil
	}

	_, err := svc.Disburse(context.Background(), 1, 5, 99)
	assert.Error(t, err)

	// A failed schedule write refunds the source and never flips the status,
	// so no loan ends up disbursed with nothing to repay
	assert.Equal(t, 60000.0, refunded)
	assert.False(t, statusSaved)
}

func TestLoanService_BulkAdvance(t *testing.T) {
	svc, m := newTestLoanService(t)

	loans := map[uint]*models.Loan{
		1: {ID: 1, Status: models.LoanStatusPending},
		2: {ID: 2, ProductID: 1, Status: models.LoanStatusApproved, PrincipalAmount: 60000},
		3: {ID: 3, Status: models.LoanStatusActive},
	}
	m.loanRepo.mockFindByID = func(ctx context.Context, id uint) (*models.Loan, error) {
		loan, ok := loans[id]
		if !ok {
			return nil, ErrNotFound
		}
		copied := *loan
		return &copied, nil
	}

	results := svc.BulkAdvance(context.Background(), []uint{1, 2, 3, 404}, nil, 99)
	assert.Len(t, results, 4)

	assert.True(t, results[0].Advanced)
	assert.Equal(t, models.LoanStatusPending, results[0].FromStatus)
	assert.Equal(t, models.LoanStatusUnderReview, results[0].ToStatus)

	// Approved loans cannot step forward without a funding source
	assert.False(t, results[1].Advanced)
	assert.Equal(t, "funding source required to disburse", results[1].Error)

	// Active loans have no happy-path next step
	assert.False(t, results[2].Advanced)
	assert.Contains(t, results[2].Error, "no next step")

	assert.False(t, results[3].Advanced)
	assert.Equal(t, "loan not found", results[3].Error)
}

func TestLoanService_BulkAdvance_DisbursesWithSource(t *testing.T) {
	svc, m := newTestLoanService(t)

	m.loanRepo.mockFindByID = func(ctx context.Context, id uint) (*models.Loan, error) {
		return &models.Loan{
			ID:              id,
			ProductID:       1,
			Status:          models.LoanStatusApproved,
			PrincipalAmount: 20000,
			InterestRate:    12,
			InterestMethod:  models.InterestMethodFlat,
			TermMonths:      6,
		}, nil
	}
	m.productRepo.mockFindByID = func(ctx context.Context, id uint) (*models.LoanProduct, error) {
		return testLoanProduct(), nil
	}
	m.sourceRepo.mockFindByID = func(ctx context.Context, id uint) (*models.PaymentSource, error) {
		return &models.PaymentSource{ID: id, Status: models.PaymentSourceStatusActive, Balance: 500000}, nil
	}

	results := svc.BulkAdvance(context.Background(), []uint{10}, uintPtr(5), 99)
	assert.Len(t, results, 1)
	assert.True(t, results[0].Advanced)
	assert.Equal(t, models.LoanStatusDisbursed, results[0].ToStatus)
}
