package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kopesha/kopesha-api/internal/cache"
	"github.com/kopesha/kopesha-api/internal/config"
	"github.com/kopesha/kopesha-api/internal/jobs"
	"github.com/kopesha/kopesha-api/internal/models"
	"github.com/kopesha/kopesha-api/internal/repository"
	"github.com/stretchr/testify/assert"
)

type mockMpesaRepo struct {
	repository.MpesaRepository
	mockFindByCheckoutRequestID func(ctx context.Context, checkoutRequestID string) (*models.MpesaTransaction, error)
	mockCreate                  func(ctx context.Context, txn *models.MpesaTransaction) error
	mockUpdate                  func(ctx context.Context, txn *models.MpesaTransaction) error
	mockFindPendingOlderThan    func(ctx context.Context, minutes int) ([]models.MpesaTransaction, error)
}

func (m *mockMpesaRepo) FindByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (*models.MpesaTransaction, error) {
	return m.mockFindByCheckoutRequestID(ctx, checkoutRequestID)
}

func (m *mockMpesaRepo) Create(ctx context.Context, txn *models.MpesaTransaction) error {
	if m.mockCreate != nil {
		return m.mockCreate(ctx, txn)
	}
	return nil
}

func (m *mockMpesaRepo) Update(ctx context.Context, txn *models.MpesaTransaction) error {
	if m.mockUpdate != nil {
		return m.mockUpdate(ctx, txn)
	}
	return nil
}

func (m *mockMpesaRepo) FindPendingOlderThan(ctx context.Context, minutes int) ([]models.MpesaTransaction, error) {
	return m.mockFindPendingOlderThan(ctx, minutes)
}

type mpesaServiceMocks struct {
	repo            *mockMpesaRepo
	loanRepo        *mockLoanRepo
	repaymentRepo   *mockRepaymentRepo
	installmentRepo *mockInstallmentRepo
}

func newTestMpesaService(t *testing.T) (*MpesaService, *mpesaServiceMocks) {
	m := &mpesaServiceMocks{
		repo:            &mockMpesaRepo{},
		loanRepo:        &mockLoanRepo{},
		repaymentRepo:   &mockRepaymentRepo{},
		installmentRepo: &mockInstallmentRepo{},
	}

	worker := jobs.NewWorker(1)
	t.Cleanup(worker.Shutdown)

	notificationSvc := NewNotificationService(&mockNotificationRepo{}, &mockUserRepo{})
	repaymentSvc := NewRepaymentService(m.repaymentRepo, m.loanRepo, m.installmentRepo,
		notificationSvc, NewAuditService(nil), worker)

	cfg := &config.Config{
		MpesaEnabled:        true,
		MpesaConsumerKey:    "test-key",
		MpesaConsumerSecret: "test-secret",
		MpesaShortCode:      "174379",
		MpesaPasskey:        "test-passkey",
		MpesaCallbackURL:    "https://example.com/api/v1/mpesa/callback",
	}

	svc := NewMpesaService(cfg, m.repo, m.loanRepo, repaymentSvc, cache.NewMemoryCache())
	return svc, m
}

// darajaStub serves the two endpoints an STK push touches
func darajaStub(t *testing.T, pushResponse map[string]string) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/v1/generate", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"access_token": "stub-token",
			"expires_in":   "3599",
		})
	})
	mux.HandleFunc("/mpesa/stkpush/v1/processrequest", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer stub-token", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(pushResponse)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"0712345678", "254712345678"},
		{"+254712345678", "254712345678"},
		{"254712345678", "254712345678"},
		{"712345678", "254712345678"},
		{"0112345678", "254112345678"},
		{"0712 345 678", "254712345678"},
		{"0712-345-678", "254712345678"},
	}
	for _, tt := range tests {
		normalized, err := NormalizePhone(tt.input)
		assert.NoError(t, err, tt.input)
		assert.Equal(t, tt.expected, normalized)
	}

	for _, invalid := range []string{"12345", "0812345678", "25471234567", "not a phone"} {
		_, err := NormalizePhone(invalid)
		assert.True(t, IsValidation(err), invalid)
	}
}

func TestMpesaService_InitiateSTKPush(t *testing.T) {
	svc, m := newTestMpesaService(t)

	server := darajaStub(t, map[string]string{
		"MerchantRequestID": "29115-34620561-1",
		"CheckoutRequestID": "ws_CO_191220191020363925",
		"ResponseCode":      "0",
		"CustomerMessage":   "Success. Request accepted for processing",
	})
	svc.SetBaseURL(server.URL)

	m.loanRepo.mockFindByID = func(ctx context.Context, id uint) (*models.Loan, error) {
		return &models.Loan{ID: id, Reference: "LN-2026-0042", Status: models.LoanStatusActive}, nil
	}

	var created *models.MpesaTransaction
	m.repo.mockCreate = func(ctx context.Context, txn *models.MpesaTransaction) error {
		created = txn
		return nil
	}

	txn, err := svc.InitiateSTKPush(context.Background(), &StkPushInput{
		LoanID: 1,
		Phone:  "0712345678",
		Amount: 2500,
	})
	assert.NoError(t, err)
	assert.NotNil(t, created)

	assert.Equal(t, "254712345678", txn.Phone)
	assert.Equal(t, 2500.0, txn.Amount)
	assert.Equal(t, "ws_CO_191220191020363925", txn.CheckoutRequestID)
	assert.Equal(t, models.MpesaStatusPending, txn.Status)
}

func TestMpesaService_InitiateSTKPush_Disabled(t *testing.T) {
	svc, _ := newTestMpesaService(t)
	svc.cfg.MpesaEnabled = false

	_, err := svc.InitiateSTKPush(context.Background(), &StkPushInput{
		LoanID: 1,
		Phone:  "0712345678",
		Amount: 2500,
	})
	assert.True(t, IsInvariantViolation(err))
}

func TestMpesaService_InitiateSTKPush_ClosedLoan(t *testing.T) {
	svc, m := newTestMpesaService(t)

	m.loanRepo.mockFindByID = func(ctx context.Context, id uint) (*models.Loan, error) {
		return &models.Loan{ID: id, Status: models.LoanStatusRejected}, nil
	}

	_, err := svc.InitiateSTKPush(context.Background(), &StkPushInput{
		LoanID: 1,
		Phone:  "0712345678",
		Amount: 2500,
	})
	assert.True(t, IsInvariantViolation(err))
}

func TestMpesaService_InitiateSTKPush_ProviderRejection(t *testing.T) {
	svc, m := newTestMpesaService(t)

	server := darajaStub(t, map[string]string{
		"ResponseCode":        "1",
		"ResponseDescription": "Invalid PhoneNumber",
	})
	svc.SetBaseURL(server.URL)

	m.loanRepo.mockFindByID = func(ctx context.Context, id uint) (*models.Loan, error) {
		return &models.Loan{ID: id, Status: models.LoanStatusActive}, nil
	}

	createCalled := false
	m.repo.mockCreate = func(ctx context.Context, txn *models.MpesaTransaction) error {
		createCalled = true
		return nil
	}

	_, err := svc.InitiateSTKPush(context.Background(), &StkPushInput{
		LoanID: 1,
		Phone:  "0712345678",
		Amount: 2500,
	})
	assert.True(t, IsInvariantViolation(err))
	assert.Contains(t, err.Error(), "Invalid PhoneNumber")
	assert.False(t, createCalled)
}

func TestMpesaService_HandleCallback_Success(t *testing.T) {
	svc, m := newTestMpesaService(t)

	txn := &models.MpesaTransaction{
		ID:                1,
		LoanID:            9,
		Phone:             "254712345678",
		Amount:            2500,
		CheckoutRequestID: "ws_CO_1",
		Status:            models.MpesaStatusPending,
	}
	m.repo.mockFindByCheckoutRequestID = func(ctx context.Context, checkoutRequestID string) (*models.MpesaTransaction, error) {
		return txn, nil
	}

	m.loanRepo.mockFindByID = func(ctx context.Context, id uint) (*models.Loan, error) {
		return &models.Loan{
			ID:                 id,
			ClientID:           7,
			Status:             models.LoanStatusActive,
			TotalRepayable:     30000,
			OutstandingBalance: 30000,
		}, nil
	}
	m.installmentRepo.mockFindByLoan = func(ctx context.Context, loanID uint) ([]models.Installment, error) {
		return []models.Installment{
			{ID: 1, LoanID: loanID, Amount: 10000, DueDate: time.Now().AddDate(0, 1, 0), Status: models.InstallmentStatusPending},
		}, nil
	}

	var posted *models.Repayment
	m.repaymentRepo.mockCreate = func(ctx context.Context, repayment *models.Repayment) error {
		posted = repayment
		return nil
	}

	callback := &StkCallback{
		CheckoutRequestID: "ws_CO_1",
		ResultCode:        0,
		ResultDesc:        "The service request is processed successfully.",
	}
	callback.CallbackMetadata.Item = []StkCallbackItem{
		{Name: "Amount", Value: 2500.0},
		{Name: "MpesaReceiptNumber", Value: "SFC8K2T1XQ"},
		{Name: "PhoneNumber", Value: 254712345678.0},
	}

	err := svc.HandleCallback(context.Background(), callback)
	assert.NoError(t, err)

	assert.Equal(t, models.MpesaStatusCompleted, txn.Status)
	assert.Equal(t, "SFC8K2T1XQ", *txn.MpesaReceipt)
	assert.NotNil(t, txn.CompletedAt)

	// The repayment is keyed by the receipt so callback replays cannot double-post
	assert.NotNil(t, posted)
	assert.Equal(t, uint(9), posted.LoanID)
	assert.Equal(t, 2500.0, posted.Amount)
	assert.Equal(t, models.RepaymentMethodMpesa, posted.Method)
	assert.Equal(t, "SFC8K2T1XQ", *posted.TransactionID)
}

func TestMpesaService_HandleCallback_Failure(t *testing.T) {
	svc, m := newTestMpesaService(t)

	txn := &models.MpesaTransaction{
		ID:                1,
		LoanID:            9,
		CheckoutRequestID: "ws_CO_2",
		Status:            models.MpesaStatusPending,
	}
	m.repo.mockFindByCheckoutRequestID = func(ctx context.Context, checkoutRequestID string) (*models.MpesaTransaction, error) {
		return txn, nil
	}

	repaymentPosted := false
	m.repaymentRepo.mockCreate = func(ctx context.Context, repayment *models.Repayment) error {
		repaymentPosted = true
		return nil
	}

	err := svc.HandleCallback(context.Background(), &StkCallback{
		CheckoutRequestID: "ws_CO_2",
		ResultCode:        1032,
		ResultDesc:        "Request cancelled by user",
	})
	assert.NoError(t, err)

	assert.Equal(t, models.MpesaStatusFailed, txn.Status)
	assert.Equal(t, 1032, *txn.ResultCode)
	assert.Equal(t, "Request cancelled by user", *txn.ResultDesc)
	assert.False(t, repaymentPosted)
}

func TestMpesaService_HandleCallback_Replay(t *testing.T) {
	svc, m := newTestMpesaService(t)

	m.repo.mockFindByCheckoutRequestID = func(ctx context.Context, checkoutRequestID string) (*models.MpesaTransaction, error) {
		return &models.MpesaTransaction{ID: 1, CheckoutRequestID: checkoutRequestID, Status: models.MpesaStatusCompleted}, nil
	}

	updateCalled := false
	m.repo.mockUpdate = func(ctx context.Context, txn *models.MpesaTransaction) error {
		updateCalled = true
		return nil
	}

	err := svc.HandleCallback(context.Background(), &StkCallback{
		CheckoutRequestID: "ws_CO_3",
		ResultCode:        0,
	})
	assert.NoError(t, err)
	assert.False(t, updateCalled)
}

func TestMpesaService_ExpireStalePending(t *testing.T) {
	svc, m := newTestMpesaService(t)

	m.repo.mockFindPendingOlderThan = func(ctx context.Context, minutes int) ([]models.MpesaTransaction, error) {
		return []models.MpesaTransaction{
			{ID: 1, CheckoutRequestID: "ws_CO_10", Status: models.MpesaStatusPending},
			{ID: 2, CheckoutRequestID: "ws_CO_11", Status: models.MpesaStatusPending},
		}, nil
	}

	var expired []models.MpesaTransaction
	m.repo.mockUpdate = func(ctx context.Context, txn *models.MpesaTransaction) error {
		expired = append(expired, *txn)
		return nil
	}

	count, err := svc.ExpireStalePending(context.Background(), 15)
	assert.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Len(t, expired, 2)
	for _, txn := range expired {
		assert.Equal(t, models.MpesaStatusFailed, txn.Status)
		assert.Equal(t, "timed out waiting for callback", *txn.ResultDesc)
	}
}
