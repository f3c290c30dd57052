package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/kopesha/kopesha-api/internal/cache"
	"github.com/kopesha/kopesha-api/internal/config"
	"github.com/kopesha/kopesha-api/internal/models"
	"github.com/kopesha/kopesha-api/internal/repository"
	"github.com/kopesha/kopesha-api/internal/statemachine"
	"github.com/kopesha/kopesha-api/pkg/logger"
)

const mpesaTokenCacheKey = "mpesa:oauth_token"

var kenyanMsisdn = regexp.MustCompile(`^254[17]\d{8}$`)

// MpesaService drives STK push collections through the Daraja API. Requests
// are persisted as MpesaTransaction rows keyed by the checkout request ID so
// the asynchronous callback can post the repayment against the right loan.
type MpesaService struct {
	cfg          *config.Config
	repo         repository.MpesaRepository
	loanRepo     repository.LoanRepository
	repaymentSvc *RepaymentService
	cache        cache.Cache
	httpClient   *http.Client
	baseURL      string
}

func NewMpesaService(
	cfg *config.Config,
	repo repository.MpesaRepository,
	loanRepo repository.LoanRepository,
	repaymentSvc *RepaymentService,
	c cache.Cache,
) *MpesaService {
	return &MpesaService{
		cfg:          cfg,
		repo:         repo,
		loanRepo:     loanRepo,
		repaymentSvc: repaymentSvc,
		cache:        c,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		baseURL:      cfg.MpesaBaseURL,
	}
}

// SetBaseURL overrides the Daraja endpoint, used by tests
func (s *MpesaService) SetBaseURL(url string) {
	s.baseURL = strings.TrimSuffix(url, "/")
}

// NormalizePhone converts the accepted Kenyan formats (07XXXXXXXX,
// +2547XXXXXXXX, 2547XXXXXXXX, 7XXXXXXXX) to the 254XXXXXXXXX form Daraja
// requires.
func NormalizePhone(phone string) (string, error) {
	cleaned := strings.TrimSpace(phone)
	cleaned = strings.TrimPrefix(cleaned, "+")
	cleaned = strings.ReplaceAll(cleaned, " ", "")
	cleaned = strings.ReplaceAll(cleaned, "-", "")

	switch {
	case strings.HasPrefix(cleaned, "254"):
		// already international
	case strings.HasPrefix(cleaned, "0") && len(cleaned) == 10:
		cleaned = "254" + cleaned[1:]
	case len(cleaned) == 9 && (cleaned[0] == '7' || cleaned[0] == '1'):
		cleaned = "254" + cleaned
	}

	if !kenyanMsisdn.MatchString(cleaned) {
		return "", NewValidationError("phone_number", "not a valid Kenyan mobile number: "+phone)
	}
	return cleaned, nil
}

type oauthResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   string `json:"expires_in"`
}

// accessToken returns a cached OAuth bearer token, fetching a fresh one from
// Daraja when the cached token has expired.
func (s *MpesaService) accessToken(ctx context.Context) (string, error) {
	if token, ok := s.cache.Get(ctx, mpesaTokenCacheKey); ok {
		return token, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		s.baseURL+"/oauth/v1/generate?grant_type=client_credentials", nil)
	if err != nil {
		return "", fmt.Errorf("failed to build oauth request: %w", err)
	}
	req.SetBasicAuth(s.cfg.MpesaConsumerKey, s.cfg.MpesaConsumerSecret)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("oauth request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("oauth request returned %d: %s", resp.StatusCode, string(body))
	}

	var oauth oauthResponse
	if err := json.NewDecoder(resp.Body).Decode(&oauth); err != nil {
		return "", fmt.Errorf("failed to decode oauth response: %w", err)
	}
	if oauth.AccessToken == "" {
		return "", fmt.Errorf("oauth response contained no access token")
	}

	// Daraja reports expiry in seconds; refresh a minute early
	ttl := 50 * time.Minute
	if secs, err := strconv.Atoi(oauth.ExpiresIn); err == nil && secs > 60 {
		ttl = time.Duration(secs-60) * time.Second
	}
	s.cache.Set(ctx, mpesaTokenCacheKey, oauth.AccessToken, ttl)

	return oauth.AccessToken, nil
}

// StkPushInput carries one collection request
type StkPushInput struct {
	LoanID           uint
	Phone            string
	Amount           float64
	AccountReference string
}

type stkPushRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            string `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

type stkPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
	ErrorMessage        string `json:"errorMessage"`
}

// InitiateSTKPush sends a payment prompt to the client's phone and records a
// pending transaction. Provider rejections are surfaced to the caller.
func (s *MpesaService) InitiateSTKPush(ctx context.Context, input *StkPushInput) (*models.MpesaTransaction, error) {
	if !s.cfg.MpesaEnabled {
		return nil, NewInvariantViolation("M-Pesa integration is not enabled")
	}
	if input.Amount <= 0 {
		return nil, NewValidationError("amount", "must be greater than zero")
	}

	phone, err := NormalizePhone(input.Phone)
	if err != nil {
		return nil, err
	}

	loan, err := s.loanRepo.FindByID(ctx, input.LoanID)
	if err != nil {
		return nil, ErrNotFound
	}
	if !loan.IsOpen() {
		return nil, NewInvariantViolation(
			fmt.Sprintf("cannot collect a payment on a %s loan", loan.Status))
	}

	token, err := s.accessToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to authenticate with daraja: %w", err)
	}

	accountRef := input.AccountReference
	if accountRef == "" {
		accountRef = loan.Reference
	}

	timestamp := time.Now().Format("20060102150405")
	password := base64.StdEncoding.EncodeToString(
		[]byte(s.cfg.MpesaShortCode + s.cfg.MpesaPasskey + timestamp))

	payload := stkPushRequest{
		BusinessShortCode: s.cfg.MpesaShortCode,
		Password:          password,
		Timestamp:         timestamp,
		TransactionType:   "CustomerPayBillOnline",
		Amount:            strconv.Itoa(int(input.Amount)),
		PartyA:            phone,
		PartyB:            s.cfg.MpesaShortCode,
		PhoneNumber:       phone,
		CallBackURL:       s.cfg.MpesaCallbackURL,
		AccountReference:  accountRef,
		TransactionDesc:   "Loan repayment",
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode stk push request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.baseURL+"/mpesa/stkpush/v1/processrequest", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build stk push request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("stk push request failed: %w", err)
	}
	defer resp.Body.Close()

	var pushResp stkPushResponse
	if err := json.NewDecoder(resp.Body).Decode(&pushResp); err != nil {
		return nil, fmt.Errorf("failed to decode stk push response: %w", err)
	}

	if pushResp.ResponseCode != "0" {
		desc := pushResp.ResponseDescription
		if desc == "" {
			desc = pushResp.ErrorMessage
		}
		return nil, NewInvariantViolation("stk push rejected by provider: " + desc)
	}

	txn := &models.MpesaTransaction{
		LoanID:            loan.ID,
		Phone:             phone,
		Amount:            input.Amount,
		MerchantRequestID: pushResp.MerchantRequestID,
		CheckoutRequestID: pushResp.CheckoutRequestID,
		Status:            models.MpesaStatusPending,
	}
	if err := s.repo.Create(ctx, txn); err != nil {
		return nil, NewPersistenceError("create mpesa transaction", err)
	}

	logger.Info(fmt.Sprintf("[MpesaService] STK push sent to %s for loan %s, checkout %s",
		phone, loan.Reference, pushResp.CheckoutRequestID))

	return txn, nil
}

// StkCallbackPayload mirrors the JSON Daraja posts to the callback URL
type StkCallbackPayload struct {
	Body struct {
		StkCallback StkCallback `json:"stkCallback"`
	} `json:"Body"`
}

// StkCallback is the inner callback body
type StkCallback struct {
	MerchantRequestID string `json:"MerchantRequestID"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
	ResultCode        int    `json:"ResultCode"`
	ResultDesc        string `json:"ResultDesc"`
	CallbackMetadata  struct {
		Item []StkCallbackItem `json:"Item"`
	} `json:"CallbackMetadata"`
}

// StkCallbackItem is one name/value pair in the callback metadata
type StkCallbackItem struct {
	Name  string      `json:"Name"`
	Value interface{} `json:"Value"`
}

func (c *StkCallback) metadataString(name string) string {
	for _, item := range c.CallbackMetadata.Item {
		if item.Name == name {
			switch v := item.Value.(type) {
			case string:
				return v
			case float64:
				return strconv.FormatFloat(v, 'f', -1, 64)
			}
		}
	}
	return ""
}

// HandleCallback resolves a pending transaction from its Daraja callback. A
// successful result posts the repayment; replayed callbacks are no-ops because
// the transaction is already final and the receipt-keyed repayment is
// idempotent.
func (s *MpesaService) HandleCallback(ctx context.Context, callback *StkCallback) error {
	txn, err := s.repo.FindByCheckoutRequestID(ctx, callback.CheckoutRequestID)
	if err != nil {
		return ErrNotFound
	}
	if txn.IsFinal() {
		return nil
	}

	resultCode := callback.ResultCode
	txn.ResultCode = &resultCode
	if callback.ResultDesc != "" {
		desc := callback.ResultDesc
		txn.ResultDesc = &desc
	}

	mfsm := statemachine.NewMpesaFSM(txn)

	if callback.ResultCode != 0 {
		if err := mfsm.Fail(ctx); err != nil {
			return NewInvariantViolation(err.Error())
		}
		if err := s.repo.Update(ctx, txn); err != nil {
			return NewPersistenceError("update mpesa transaction", err)
		}
		logger.Info(fmt.Sprintf("[MpesaService] STK push %s failed: %s",
			txn.CheckoutRequestID, callback.ResultDesc))
		return nil
	}

	receipt := callback.metadataString("MpesaReceiptNumber")
	if receipt == "" {
		return NewValidationError("MpesaReceiptNumber", "missing from successful callback")
	}
	if amountStr := callback.metadataString("Amount"); amountStr != "" {
		if amount, err := strconv.ParseFloat(amountStr, 64); err == nil && amount > 0 {
			txn.Amount = amount
		}
	}

	if err := mfsm.Complete(ctx); err != nil {
		return NewInvariantViolation(err.Error())
	}
	now := time.Now()
	txn.MpesaReceipt = &receipt
	txn.CompletedAt = &now

	if err := s.repo.Update(ctx, txn); err != nil {
		return NewPersistenceError("update mpesa transaction", err)
	}

	_, err = s.repaymentSvc.RecordRepayment(ctx, &RecordRepaymentInput{
		LoanID:        txn.LoanID,
		Amount:        txn.Amount,
		PaymentDate:   now,
		Method:        models.RepaymentMethodMpesa,
		TransactionID: &receipt,
	})
	if err != nil {
		return fmt.Errorf("failed to post repayment for receipt %s: %w", receipt, err)
	}

	logger.Info(fmt.Sprintf("[MpesaService] STK push %s completed, receipt %s",
		txn.CheckoutRequestID, receipt))

	return nil
}

// FindByLoan returns a loan's STK push history
func (s *MpesaService) FindByLoan(ctx context.Context, loanID uint) ([]models.MpesaTransaction, error) {
	return s.repo.FindByLoan(ctx, loanID)
}

// ExpireStalePending fails pending transactions whose callback never arrived.
// Run from the scheduler; Daraja callbacks normally land within seconds.
func (s *MpesaService) ExpireStalePending(ctx context.Context, olderThanMinutes int) (int, error) {
	stale, err := s.repo.FindPendingOlderThan(ctx, olderThanMinutes)
	if err != nil {
		return 0, NewPersistenceError("find stale transactions", err)
	}

	expired := 0
	for i := range stale {
		txn := &stale[i]
		mfsm := statemachine.NewMpesaFSM(txn)
		if err := mfsm.Fail(ctx); err != nil {
			continue
		}
		desc := "timed out waiting for callback"
		txn.ResultDesc = &desc
		if err := s.repo.Update(ctx, txn); err != nil {
			logger.Error(fmt.Sprintf("[MpesaService] Failed to expire transaction %s: %v",
				txn.CheckoutRequestID, err))
			continue
		}
		expired++
	}

	if expired > 0 {
		logger.Info(fmt.Sprintf("[MpesaService] Expired %d stale STK transactions", expired))
	}
	return expired, nil
}
