package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kopesha/kopesha-api/internal/middleware"
	"github.com/kopesha/kopesha-api/internal/models"
	"github.com/kopesha/kopesha-api/internal/repository"
	"github.com/kopesha/kopesha-api/internal/services"
	"github.com/kopesha/kopesha-api/pkg/logger"
)

type RepaymentHandler struct {
	repaymentService *services.RepaymentService
}

func NewRepaymentHandler(repaymentService *services.RepaymentService) *RepaymentHandler {
	return &RepaymentHandler{repaymentService: repaymentService}
}

// @Summary List Repayments
// @Description Get a paginated list of recorded repayments
// @Tags Repayments
// @Accept json
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param per_page query int false "Items per page" default(20)
// @Param method query string false "Filter by payment method"
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /repayments [get]
func (h *RepaymentHandler) Index(c *gin.Context) {
	query := repository.NewListQuery()
	query.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	query.PerPage, _ = strconv.Atoi(c.DefaultQuery("per_page", "20"))
	query.Search = c.Query("search_term")
	query.Filters["method"] = c.Query("method")

	repayments, total, err := h.repaymentService.List(c.Request.Context(), query)
	if err != nil {
		respondError(c, err)
		return
	}

	var responses []models.RepaymentResponse
	for _, r := range repayments {
		responses = append(responses, r.ToResponse())
	}

	c.JSON(http.StatusOK, gin.H{
		"repayments": responses,
		"pagination": gin.H{
			"page":        query.Page,
			"per_page":    query.PerPage,
			"total":       total,
			"total_pages": (total + int64(query.PerPage) - 1) / int64(query.PerPage),
		},
	})
}

// @Summary Get Repayment
// @Description Get a single repayment by ID
// @Tags Repayments
// @Accept json
// @Produce json
// @Param repayment_id path int true "Repayment ID"
// @Success 200 {object} models.RepaymentResponse
// @Failure 404 {object} map[string]string
// @Security BearerAuth
// @Router /repayments/{repayment_id} [get]
func (h *RepaymentHandler) Show(c *gin.Context) {
	id, _ := strconv.ParseUint(c.Param("repayment_id"), 10, 32)
	repayment, err := h.repaymentService.FindByID(c.Request.Context(), uint(id))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Repayment not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"repayment": repayment.ToResponse()})
}

// @Summary Monthly Collection Stats
// @Description Collections received this month versus the amount that fell due
// @Tags Repayments
// @Accept json
// @Produce json
// @Success 200 {object} repository.CollectionStats
// @Security BearerAuth
// @Router /repayments/stats [get]
func (h *RepaymentHandler) Stats(c *gin.Context) {
	stats, err := h.repaymentService.GetMonthlyStats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// @Summary List Loan Repayments
// @Description Get the repayment history of a loan
// @Tags Repayments
// @Accept json
// @Produce json
// @Param loan_id path int true "Loan ID"
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /loans/{loan_id}/repayments [get]
func (h *RepaymentHandler) IndexByLoan(c *gin.Context) {
	loanID, _ := strconv.ParseUint(c.Param("loan_id"), 10, 32)
	repayments, err := h.repaymentService.FindByLoan(c.Request.Context(), uint(loanID))
	if err != nil {
		respondError(c, err)
		return
	}

	responses := make([]models.RepaymentResponse, 0, len(repayments))
	for _, r := range repayments {
		responses = append(responses, r.ToResponse())
	}
	c.JSON(http.StatusOK, gin.H{"repayments": responses})
}

type CreateRepaymentRequest struct {
	LoanID        uint    `json:"loan_id" binding:"required"`
	Amount        float64 `json:"amount" binding:"required,gt=0"`
	PaymentDate   string  `json:"payment_date"`
	Method        string  `json:"method" binding:"required"`
	TransactionID *string `json:"transaction_id"`
	Notes         *string `json:"notes"`
}

// @Summary Record Repayment
// @Description Post a payment against a loan (Officer/Admin)
// @Tags Repayments
// @Accept json
// @Produce json
// @Param request body CreateRepaymentRequest true "Repayment Data"
// @Success 201 {object} models.RepaymentResponse
// @Failure 400 {object} map[string]string
// @Security BearerAuth
// @Router /repayments [post]
func (h *RepaymentHandler) Create(c *gin.Context) {
	var req CreateRepaymentRequest
	if err := BindNestedOrFlat(c, "repayment", &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.LoanID == 0 || req.Amount <= 0 || req.Method == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "loan_id, amount and method are required"})
		return
	}

	paymentDate := time.Now()
	if req.PaymentDate != "" {
		parsed, err := time.Parse("2006-01-02", req.PaymentDate)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "payment_date must be in YYYY-MM-DD format"})
			return
		}
		paymentDate = parsed
	}

	receivedBy := middleware.GetUserID(c)
	repayment, err := h.repaymentService.RecordRepayment(c.Request.Context(), &services.RecordRepaymentInput{
		LoanID:        req.LoanID,
		Amount:        req.Amount,
		PaymentDate:   paymentDate,
		Method:        req.Method,
		TransactionID: req.TransactionID,
		ReceivedByID:  &receivedBy,
		Notes:         req.Notes,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"repayment": repayment.ToResponse(), "message": "Repayment recorded"})
}

type MpesaHandler struct {
	mpesaService *services.MpesaService
}

func NewMpesaHandler(mpesaService *services.MpesaService) *MpesaHandler {
	return &MpesaHandler{mpesaService: mpesaService}
}

type StkPushRequest struct {
	LoanID uint    `json:"loan_id" binding:"required"`
	Phone  string  `json:"phone" binding:"required"`
	Amount float64 `json:"amount" binding:"required,gt=0"`
}

// @Summary Initiate STK Push
// @Description Push an M-Pesa payment prompt to the client's phone
// @Tags Mpesa
// @Accept json
// @Produce json
// @Param request body StkPushRequest true "Payment Request"
// @Success 201 {object} models.MpesaTransactionResponse
// @Failure 400 {object} map[string]string
// @Security BearerAuth
// @Router /mpesa/stk_push [post]
func (h *MpesaHandler) StkPush(c *gin.Context) {
	var req StkPushRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tx, err := h.mpesaService.InitiateSTKPush(c.Request.Context(), &services.StkPushInput{
		LoanID: req.LoanID,
		Phone:  req.Phone,
		Amount: req.Amount,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"transaction": tx.ToResponse(), "message": "Payment request sent to phone"})
}

// @Summary M-Pesa Callback
// @Description Receives the STK push result from Safaricom. Always acknowledged.
// @Tags Mpesa
// @Accept json
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /mpesa/callback [post]
func (h *MpesaHandler) Callback(c *gin.Context) {
	var payload services.StkCallbackPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		logger.Log.Warn("M-Pesa callback with malformed body", "error", err)
		c.JSON(http.StatusOK, gin.H{"ResultCode": 0, "ResultDesc": "Accepted"})
		return
	}

	if err := h.mpesaService.HandleCallback(c.Request.Context(), &payload.Body.StkCallback); err != nil {
		logger.Log.Error("M-Pesa callback processing failed", "error", err)
	}

	// Safaricom retries on anything other than a zero result code
	c.JSON(http.StatusOK, gin.H{"ResultCode": 0, "ResultDesc": "Accepted"})
}

// @Summary List Loan M-Pesa Transactions
// @Description Get the M-Pesa transactions initiated for a loan
// @Tags Mpesa
// @Accept json
// @Produce json
// @Param loan_id path int true "Loan ID"
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /loans/{loan_id}/mpesa_transactions [get]
func (h *MpesaHandler) IndexByLoan(c *gin.Context) {
	loanID, _ := strconv.ParseUint(c.Param("loan_id"), 10, 32)
	transactions, err := h.mpesaService.FindByLoan(c.Request.Context(), uint(loanID))
	if err != nil {
		respondError(c, err)
		return
	}

	responses := make([]models.MpesaTransactionResponse, 0, len(transactions))
	for _, tx := range transactions {
		responses = append(responses, tx.ToResponse())
	}
	c.JSON(http.StatusOK, gin.H{"transactions": responses})
}

type PaymentSourceHandler struct {
	sourceService *services.PaymentSourceService
}

func NewPaymentSourceHandler(sourceService *services.PaymentSourceService) *PaymentSourceHandler {
	return &PaymentSourceHandler{sourceService: sourceService}
}

// @Summary List Payment Sources
// @Description Get the funding accounts disbursements are drawn from (Admin)
// @Tags PaymentSources
// @Accept json
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /payment_sources [get]
func (h *PaymentSourceHandler) Index(c *gin.Context) {
	query := repository.NewListQuery()
	query.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	query.PerPage, _ = strconv.Atoi(c.DefaultQuery("per_page", "50"))
	query.Filters["status"] = c.Query("status")
	query.Filters["kind"] = c.Query("kind")

	sources, total, err := h.sourceService.List(c.Request.Context(), query)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"payment_sources": sources,
		"pagination": gin.H{
			"page":        query.Page,
			"per_page":    query.PerPage,
			"total":       total,
			"total_pages": (total + int64(query.PerPage) - 1) / int64(query.PerPage),
		},
	})
}

// @Summary Get Payment Source
// @Description Get a funding account by ID (Admin)
// @Tags PaymentSources
// @Accept json
// @Produce json
// @Param source_id path int true "Source ID"
// @Success 200 {object} models.PaymentSource
// @Failure 404 {object} map[string]string
// @Security BearerAuth
// @Router /payment_sources/{source_id} [get]
func (h *PaymentSourceHandler) Show(c *gin.Context) {
	id, _ := strconv.ParseUint(c.Param("source_id"), 10, 32)
	source, err := h.sourceService.FindByID(c.Request.Context(), uint(id))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Payment source not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"payment_source": source})
}

// @Summary Fundable Sources
// @Description List active sources able to fund the given amount (Admin)
// @Tags PaymentSources
// @Accept json
// @Produce json
// @Param amount query number true "Amount in KES"
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /payment_sources/fundable [get]
func (h *PaymentSourceHandler) Fundable(c *gin.Context) {
	amount, err := strconv.ParseFloat(c.Query("amount"), 64)
	if err != nil || amount <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "A positive amount is required"})
		return
	}

	sources, err := h.sourceService.FindFundable(c.Request.Context(), amount)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payment_sources": sources})
}

type PaymentSourceRequest struct {
	Name          string  `json:"name" binding:"required"`
	Kind          string  `json:"kind" binding:"required"`
	AccountNumber string  `json:"account_number" binding:"required"`
	Balance       float64 `json:"balance"`
}

// @Summary Create Payment Source
// @Description Register a funding account (Admin)
// @Tags PaymentSources
// @Accept json
// @Produce json
// @Param request body PaymentSourceRequest true "Source Data"
// @Success 201 {object} models.PaymentSource
// @Security BearerAuth
// @Router /payment_sources [post]
func (h *PaymentSourceHandler) Create(c *gin.Context) {
	var req PaymentSourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	source := &models.PaymentSource{
		Name:          req.Name,
		Kind:          req.Kind,
		AccountNumber: req.AccountNumber,
		Balance:       req.Balance,
	}
	if err := h.sourceService.Create(c.Request.Context(), source, middleware.GetUserID(c)); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"payment_source": source, "message": "Payment source created"})
}

// @Summary Update Payment Source
// @Description Update a funding account's details (Admin)
// @Tags PaymentSources
// @Accept json
// @Produce json
// @Param source_id path int true "Source ID"
// @Param request body PaymentSourceRequest true "Source Data"
// @Success 200 {object} models.PaymentSource
// @Security BearerAuth
// @Router /payment_sources/{source_id} [put]
func (h *PaymentSourceHandler) Update(c *gin.Context) {
	id, _ := strconv.ParseUint(c.Param("source_id"), 10, 32)
	source, err := h.sourceService.FindByID(c.Request.Context(), uint(id))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Payment source not found"})
		return
	}

	var req PaymentSourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	source.Name = req.Name
	source.Kind = req.Kind
	source.AccountNumber = req.AccountNumber

	if err := h.sourceService.Update(c.Request.Context(), source, middleware.GetUserID(c)); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"payment_source": source, "message": "Payment source updated"})
}

type TopUpRequest struct {
	Amount float64 `json:"amount" binding:"required,gt=0"`
}

// @Summary Top Up Payment Source
// @Description Add funds to a funding account (Admin)
// @Tags PaymentSources
// @Accept json
// @Produce json
// @Param source_id path int true "Source ID"
// @Param request body TopUpRequest true "Amount"
// @Success 200 {object} models.PaymentSource
// @Security BearerAuth
// @Router /payment_sources/{source_id}/top_up [post]
func (h *PaymentSourceHandler) TopUp(c *gin.Context) {
	id, _ := strconv.ParseUint(c.Param("source_id"), 10, 32)
	var req TopUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "A positive amount is required"})
		return
	}

	source, err := h.sourceService.TopUp(c.Request.Context(), uint(id), req.Amount, middleware.GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"payment_source": source, "message": "Balance topped up"})
}

// @Summary Toggle Payment Source Status
// @Description Activate or deactivate a funding account (Admin)
// @Tags PaymentSources
// @Accept json
// @Produce json
// @Param source_id path int true "Source ID"
// @Success 200 {object} models.PaymentSource
// @Security BearerAuth
// @Router /payment_sources/{source_id}/toggle_status [put]
func (h *PaymentSourceHandler) ToggleStatus(c *gin.Context) {
	id, _ := strconv.ParseUint(c.Param("source_id"), 10, 32)
	source, err := h.sourceService.ToggleStatus(c.Request.Context(), uint(id), middleware.GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payment_source": source, "message": "Status updated"})
}

// @Summary Delete Payment Source
// @Description Remove a funding account (Admin)
// @Tags PaymentSources
// @Accept json
// @Produce json
// @Param source_id path int true "Source ID"
// @Success 200 {object} map[string]string
// @Security BearerAuth
// @Router /payment_sources/{source_id} [delete]
func (h *PaymentSourceHandler) Delete(c *gin.Context) {
	id, _ := strconv.ParseUint(c.Param("source_id"), 10, 32)
	if err := h.sourceService.Delete(c.Request.Context(), uint(id), middleware.GetUserID(c)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Payment source deleted"})
}
