package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/kopesha/kopesha-api/internal/middleware"
	"github.com/kopesha/kopesha-api/internal/repository"
	"github.com/kopesha/kopesha-api/internal/services"
)

type LoanHandler struct {
	loanService *services.LoanService
}

func NewLoanHandler(loanService *services.LoanService) *LoanHandler {
	return &LoanHandler{loanService: loanService}
}

// @Summary List Loans
// @Description Get a paginated list of loans. Clients only see their own.
// @Tags Loans
// @Accept json
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param per_page query int false "Items per page" default(20)
// @Param search_term query string false "Search by reference or client"
// @Param status query string false "Filter by status"
// @Param risk_level query string false "Filter by risk level"
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /loans [get]
func (h *LoanHandler) Index(c *gin.Context) {
	query := &repository.LoanQuery{ListQuery: repository.NewListQuery()}
	query.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	query.PerPage, _ = strconv.Atoi(c.DefaultQuery("per_page", "20"))
	query.Search = c.Query("search_term")
	query.Status = c.Query("status")
	query.RiskLevel = c.Query("risk_level")

	if clientID, _ := strconv.ParseUint(c.Query("client_id"), 10, 32); clientID > 0 {
		query.ClientID = uint(clientID)
	}
	if officerID, _ := strconv.ParseUint(c.Query("officer_id"), 10, 32); officerID > 0 {
		query.OfficerID = uint(officerID)
	}
	if groupID, _ := strconv.ParseUint(c.Query("group_id"), 10, 32); groupID > 0 {
		query.GroupID = uint(groupID)
	}

	// Clients only ever see their own loans
	if middleware.GetUserRole(c) == "client" {
		query.ClientID = middleware.GetUserID(c)
	}

	if sort := c.Query("sort"); sort != "" {
		parts := strings.Split(sort, "-")
		query.SortBy = parts[0]
		if len(parts) > 1 {
			query.SortDir = parts[1]
		}
	}

	loans, total, err := h.loanService.List(c.Request.Context(), query)
	if err != nil {
		respondError(c, err)
		return
	}

	var responses []interface{}
	for _, loan := range loans {
		responses = append(responses, loan.ToResponse())
	}

	c.JSON(http.StatusOK, gin.H{
		"loans": responses,
		"pagination": gin.H{
			"page":        query.Page,
			"per_page":    query.PerPage,
			"total":       total,
			"total_pages": (total + int64(query.PerPage) - 1) / int64(query.PerPage),
		},
	})
}

// @Summary Loan Stats
// @Description Get loan counts per status
// @Tags Loans
// @Accept json
// @Produce json
// @Success 200 {object} repository.LoanStats
// @Security BearerAuth
// @Router /loans/stats [get]
func (h *LoanHandler) GetStats(c *gin.Context) {
	stats, err := h.loanService.GetStats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// @Summary Get Loan
// @Description Get a loan with its schedule and repayment history
// @Tags Loans
// @Accept json
// @Produce json
// @Param loan_id path int true "Loan ID"
// @Success 200 {object} models.LoanResponse
// @Failure 404 {object} map[string]string
// @Security BearerAuth
// @Router /loans/{loan_id} [get]
func (h *LoanHandler) Show(c *gin.Context) {
	id, _ := strconv.ParseUint(c.Param("loan_id"), 10, 32)
	loan, err := h.loanService.FindByIDWithDetails(c.Request.Context(), uint(id))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Loan not found"})
		return
	}

	// Clients may only read their own loan
	if middleware.GetUserRole(c) == "client" && loan.ClientID != middleware.GetUserID(c) {
		c.JSON(http.StatusForbidden, gin.H{"error": "You do not have access to this loan"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"loan": loan.ToResponse()})
}

type ApplyLoanRequest struct {
	ClientID              uint     `json:"client_id" binding:"required"`
	ProductID             uint     `json:"product_id" binding:"required"`
	PrincipalAmount       float64  `json:"principal_amount" binding:"required,gt=0"`
	TermMonths            int      `json:"term_months"`
	Purpose               *string  `json:"purpose"`
	GroupID               *uint    `json:"group_id"`
	OfficerID             *uint    `json:"officer_id"`
	GuarantorName         *string  `json:"guarantor_name"`
	GuarantorPhone        *string  `json:"guarantor_phone"`
	CollateralDescription *string  `json:"collateral_description"`
	CollateralValue       *float64 `json:"collateral_value"`
}

// @Summary Apply For Loan
// @Description Register a new loan application
// @Tags Loans
// @Accept json
// @Produce json
// @Param request body ApplyLoanRequest true "Application Data"
// @Success 201 {object} models.LoanResponse
// @Failure 400 {object} map[string]string
// @Security BearerAuth
// @Router /loans [post]
func (h *LoanHandler) Apply(c *gin.Context) {
	var req ApplyLoanRequest
	if err := BindNestedOrFlat(c, "loan", &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Clients can only apply for themselves
	if middleware.GetUserRole(c) == "client" {
		req.ClientID = middleware.GetUserID(c)
	}
	if req.ClientID == 0 || req.ProductID == 0 || req.PrincipalAmount <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "client_id, product_id and principal_amount are required"})
		return
	}

	loan, err := h.loanService.Apply(c.Request.Context(), &services.ApplyLoanInput{
		ClientID:              req.ClientID,
		ProductID:             req.ProductID,
		PrincipalAmount:       req.PrincipalAmount,
		TermMonths:            req.TermMonths,
		Purpose:               req.Purpose,
		GroupID:               req.GroupID,
		OfficerID:             req.OfficerID,
		GuarantorName:         req.GuarantorName,
		GuarantorPhone:        req.GuarantorPhone,
		CollateralDescription: req.CollateralDescription,
		CollateralValue:       req.CollateralValue,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"loan": loan.ToResponse(), "message": "Loan application submitted"})
}

// @Summary Review Loan
// @Description Move a pending loan into review (Officer/Admin)
// @Tags Loans
// @Accept json
// @Produce json
// @Param loan_id path int true "Loan ID"
// @Success 200 {object} models.LoanResponse
// @Security BearerAuth
// @Router /loans/{loan_id}/review [post]
func (h *LoanHandler) Review(c *gin.Context) {
	id, _ := strconv.ParseUint(c.Param("loan_id"), 10, 32)
	loan, err := h.loanService.Review(c.Request.Context(), uint(id), middleware.GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"loan": loan.ToResponse(), "message": "Loan moved to review"})
}

// @Summary Escalate Loan
// @Description Escalate a reviewed loan for approval (Officer/Admin)
// @Tags Loans
// @Accept json
// @Produce json
// @Param loan_id path int true "Loan ID"
// @Success 200 {object} models.LoanResponse
// @Security BearerAuth
// @Router /loans/{loan_id}/escalate [post]
func (h *LoanHandler) Escalate(c *gin.Context) {
	id, _ := strconv.ParseUint(c.Param("loan_id"), 10, 32)
	loan, err := h.loanService.Escalate(c.Request.Context(), uint(id), middleware.GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"loan": loan.ToResponse(), "message": "Loan escalated for approval"})
}

// @Summary Approve Loan
// @Description Approve a loan awaiting decision (Admin)
// @Tags Loans
// @Accept json
// @Produce json
// @Param loan_id path int true "Loan ID"
// @Success 200 {object} models.LoanResponse
// @Security BearerAuth
// @Router /loans/{loan_id}/approve [post]
func (h *LoanHandler) Approve(c *gin.Context) {
	id, _ := strconv.ParseUint(c.Param("loan_id"), 10, 32)
	loan, err := h.loanService.Approve(c.Request.Context(), uint(id), middleware.GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"loan": loan.ToResponse(), "message": "Loan approved"})
}

type RejectLoanRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// @Summary Reject Loan
// @Description Decline a loan application with a reason (Officer/Admin)
// @Tags Loans
// @Accept json
// @Produce json
// @Param loan_id path int true "Loan ID"
// @Param request body RejectLoanRequest true "Reason"
// @Success 200 {object} models.LoanResponse
// @Security BearerAuth
// @Router /loans/{loan_id}/reject [post]
func (h *LoanHandler) Reject(c *gin.Context) {
	id, _ := strconv.ParseUint(c.Param("loan_id"), 10, 32)
	var req RejectLoanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "A rejection reason is required"})
		return
	}

	loan, err := h.loanService.Reject(c.Request.Context(), uint(id), req.Reason, middleware.GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"loan": loan.ToResponse(), "message": "Loan rejected"})
}

type DisburseLoanRequest struct {
	PaymentSourceID uint `json:"payment_source_id" binding:"required"`
}

// @Summary Disburse Loan
// @Description Pay an approved loan out of a funding source (Admin)
// @Tags Loans
// @Accept json
// @Produce json
// @Param loan_id path int true "Loan ID"
// @Param request body DisburseLoanRequest true "Funding Source"
// @Success 200 {object} models.LoanResponse
// @Security BearerAuth
// @Router /loans/{loan_id}/disburse [post]
func (h *LoanHandler) Disburse(c *gin.Context) {
	id, _ := strconv.ParseUint(c.Param("loan_id"), 10, 32)
	var req DisburseLoanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "payment_source_id is required"})
		return
	}

	loan, err := h.loanService.Disburse(c.Request.Context(), uint(id), req.PaymentSourceID, middleware.GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"loan": loan.ToResponse(), "message": "Loan disbursed"})
}

// @Summary Activate Loan
// @Description Mark a disbursed loan as running (Officer/Admin)
// @Tags Loans
// @Accept json
// @Produce json
// @Param loan_id path int true "Loan ID"
// @Success 200 {object} models.LoanResponse
// @Security BearerAuth
// @Router /loans/{loan_id}/activate [post]
func (h *LoanHandler) Activate(c *gin.Context) {
	id, _ := strconv.ParseUint(c.Param("loan_id"), 10, 32)
	loan, err := h.loanService.Activate(c.Request.Context(), uint(id), middleware.GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"loan": loan.ToResponse(), "message": "Loan activated"})
}

type AssignOfficerRequest struct {
	OfficerID uint `json:"officer_id" binding:"required"`
}

// @Summary Assign Officer
// @Description Assign the managing loan officer (Admin)
// @Tags Loans
// @Accept json
// @Produce json
// @Param loan_id path int true "Loan ID"
// @Param request body AssignOfficerRequest true "Officer"
// @Success 200 {object} models.LoanResponse
// @Security BearerAuth
// @Router /loans/{loan_id}/assign_officer [put]
func (h *LoanHandler) AssignOfficer(c *gin.Context) {
	id, _ := strconv.ParseUint(c.Param("loan_id"), 10, 32)
	var req AssignOfficerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "officer_id is required"})
		return
	}

	loan, err := h.loanService.AssignOfficer(c.Request.Context(), uint(id), req.OfficerID, middleware.GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"loan": loan.ToResponse(), "message": "Officer assigned"})
}

type BulkAdvanceRequest struct {
	LoanIDs         []uint `json:"loan_ids" binding:"required"`
	PaymentSourceID *uint  `json:"payment_source_id"`
}

// @Summary Bulk Advance Loans
// @Description Move each loan one step along its workflow (Admin)
// @Tags Loans
// @Accept json
// @Produce json
// @Param request body BulkAdvanceRequest true "Loan IDs"
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /loans/bulk_advance [post]
func (h *LoanHandler) BulkAdvance(c *gin.Context) {
	var req BulkAdvanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "loan_ids is required"})
		return
	}
	if len(req.LoanIDs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "loan_ids cannot be empty"})
		return
	}

	results := h.loanService.BulkAdvance(c.Request.Context(), req.LoanIDs, req.PaymentSourceID, middleware.GetUserID(c))
	c.JSON(http.StatusOK, gin.H{"results": results})
}

// @Summary List Loan Documents
// @Description Get the collateral document paths for a loan
// @Tags Loans
// @Accept json
// @Produce json
// @Param loan_id path int true "Loan ID"
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /loans/{loan_id}/documents [get]
func (h *LoanHandler) Documents(c *gin.Context) {
	id, _ := strconv.ParseUint(c.Param("loan_id"), 10, 32)
	paths, err := h.loanService.Documents(c.Request.Context(), uint(id))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"documents": paths})
}

// @Summary Upload Loan Document
// @Description Attach a collateral or KYC document to a loan
// @Tags Loans
// @Accept multipart/form-data
// @Produce json
// @Param loan_id path int true "Loan ID"
// @Param document formData file true "Document File"
// @Success 200 {object} map[string]string
// @Security BearerAuth
// @Router /loans/{loan_id}/documents [post]
func (h *LoanHandler) UploadDocument(c *gin.Context) {
	id, _ := strconv.ParseUint(c.Param("loan_id"), 10, 32)

	file, header, err := c.Request.FormFile("document")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "A document file is required"})
		return
	}
	defer file.Close()

	path, err := h.loanService.UploadDocument(c.Request.Context(), uint(id), file, header, middleware.GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Document uploaded", "path": path})
}
