package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kopesha/kopesha-api/internal/middleware"
	"github.com/kopesha/kopesha-api/internal/models"
	"github.com/kopesha/kopesha-api/internal/repository"
	"github.com/kopesha/kopesha-api/internal/services"
)

// ProductHandler handles loan product catalogue endpoints
type ProductHandler struct {
	productService *services.ProductService
}

func NewProductHandler(productService *services.ProductService) *ProductHandler {
	return &ProductHandler{productService: productService}
}

// @Summary List Loan Products
// @Description Get a paginated list of loan products
// @Tags Products
// @Accept json
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param per_page query int false "Items per page" default(20)
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /products [get]
func (h *ProductHandler) Index(c *gin.Context) {
	query := repository.NewListQuery()
	query.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	query.PerPage, _ = strconv.Atoi(c.DefaultQuery("per_page", "20"))
	query.Search = c.Query("search_term")

	products, total, err := h.productService.List(c.Request.Context(), query)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"products": products,
		"pagination": gin.H{
			"page":        query.Page,
			"per_page":    query.PerPage,
			"total":       total,
			"total_pages": (total + int64(query.PerPage) - 1) / int64(query.PerPage),
		},
	})
}

// @Summary Active Loan Products
// @Description Get the products currently open for new applications
// @Tags Products
// @Accept json
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /products/active [get]
func (h *ProductHandler) Active(c *gin.Context) {
	products, err := h.productService.FindActive(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products})
}

// @Summary Get Loan Product
// @Description Get a loan product by ID
// @Tags Products
// @Accept json
// @Produce json
// @Param product_id path int true "Product ID"
// @Success 200 {object} models.LoanProduct
// @Failure 404 {object} map[string]string
// @Security BearerAuth
// @Router /products/{product_id} [get]
func (h *ProductHandler) Show(c *gin.Context) {
	id, _ := strconv.ParseUint(c.Param("product_id"), 10, 32)
	product, err := h.productService.FindByID(c.Request.Context(), uint(id))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"product": product})
}

type ProductRequest struct {
	Name               string  `json:"name" binding:"required"`
	Description        *string `json:"description"`
	InterestRate       float64 `json:"interest_rate" binding:"required,gt=0"`
	InterestMethod     string  `json:"interest_method"`
	TermMonths         int     `json:"term_months" binding:"required,gt=0"`
	RepaymentFrequency string  `json:"repayment_frequency"`
	MinAmount          float64 `json:"min_amount" binding:"required,gt=0"`
	MaxAmount          float64 `json:"max_amount" binding:"required,gt=0"`
	ProcessingFeeRate  float64 `json:"processing_fee_rate"`
	GuarantorRequired  bool    `json:"guarantor_required"`
	CollateralRequired bool    `json:"collateral_required"`
	Active             *bool   `json:"active"`
}

// @Summary Create Loan Product
// @Description Add a product to the catalogue (Admin)
// @Tags Products
// @Accept json
// @Produce json
// @Param request body ProductRequest true "Product Data"
// @Success 201 {object} models.LoanProduct
// @Failure 400 {object} map[string]string
// @Security BearerAuth
// @Router /products [post]
func (h *ProductHandler) Create(c *gin.Context) {
	var req ProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	product := &models.LoanProduct{
		Name:               req.Name,
		Description:        req.Description,
		InterestRate:       req.InterestRate,
		InterestMethod:     req.InterestMethod,
		TermMonths:         req.TermMonths,
		RepaymentFrequency: req.RepaymentFrequency,
		MinAmount:          req.MinAmount,
		MaxAmount:          req.MaxAmount,
		ProcessingFeeRate:  req.ProcessingFeeRate,
		GuarantorRequired:  req.GuarantorRequired,
		CollateralRequired: req.CollateralRequired,
		Active:             true,
	}
	if req.Active != nil {
		product.Active = *req.Active
	}

	if err := h.productService.Create(c.Request.Context(), product, middleware.GetUserID(c)); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"product": product, "message": "Product created"})
}

// @Summary Update Loan Product
// @Description Update a product's terms. Live loans keep their priced terms. (Admin)
// @Tags Products
// @Accept json
// @Produce json
// @Param product_id path int true "Product ID"
// @Param request body ProductRequest true "Product Data"
// @Success 200 {object} models.LoanProduct
// @Security BearerAuth
// @Router /products/{product_id} [put]
func (h *ProductHandler) Update(c *gin.Context) {
	id, _ := strconv.ParseUint(c.Param("product_id"), 10, 32)
	product, err := h.productService.FindByID(c.Request.Context(), uint(id))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
		return
	}

	var req ProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	product.Name = req.Name
	product.Description = req.Description
	product.InterestRate = req.InterestRate
	if req.InterestMethod != "" {
		product.InterestMethod = req.InterestMethod
	}
	product.TermMonths = req.TermMonths
	if req.RepaymentFrequency != "" {
		product.RepaymentFrequency = req.RepaymentFrequency
	}
	product.MinAmount = req.MinAmount
	product.MaxAmount = req.MaxAmount
	product.ProcessingFeeRate = req.ProcessingFeeRate
	product.GuarantorRequired = req.GuarantorRequired
	product.CollateralRequired = req.CollateralRequired
	if req.Active != nil {
		product.Active = *req.Active
	}

	if err := h.productService.Update(c.Request.Context(), product, middleware.GetUserID(c)); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"product": product, "message": "Product updated"})
}

// @Summary Delete Loan Product
// @Description Retire a product from the catalogue (Admin)
// @Tags Products
// @Accept json
// @Produce json
// @Param product_id path int true "Product ID"
// @Success 200 {object} map[string]string
// @Security BearerAuth
// @Router /products/{product_id} [delete]
func (h *ProductHandler) Delete(c *gin.Context) {
	id, _ := strconv.ParseUint(c.Param("product_id"), 10, 32)
	if err := h.productService.Delete(c.Request.Context(), uint(id), middleware.GetUserID(c)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Product deleted"})
}

// GroupHandler handles chama (lending group) endpoints
type GroupHandler struct {
	groupService *services.GroupService
}

func NewGroupHandler(groupService *services.GroupService) *GroupHandler {
	return &GroupHandler{groupService: groupService}
}

// @Summary List Groups
// @Description Get a paginated list of lending groups
// @Tags Groups
// @Accept json
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param per_page query int false "Items per page" default(20)
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /groups [get]
func (h *GroupHandler) Index(c *gin.Context) {
	query := repository.NewListQuery()
	query.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	query.PerPage, _ = strconv.Atoi(c.DefaultQuery("per_page", "20"))
	query.Search = c.Query("search_term")
	query.Filters["status"] = c.Query("status")

	groups, total, err := h.groupService.List(c.Request.Context(), query)
	if err != nil {
		respondError(c, err)
		return
	}

	var responses []models.GroupResponse
	for _, g := range groups {
		responses = append(responses, g.ToResponse())
	}

	c.JSON(http.StatusOK, gin.H{
		"groups": responses,
		"pagination": gin.H{
			"page":        query.Page,
			"per_page":    query.PerPage,
			"total":       total,
			"total_pages": (total + int64(query.PerPage) - 1) / int64(query.PerPage),
		},
	})
}

// @Summary Get Group
// @Description Get a lending group with members and aggregated loan figures
// @Tags Groups
// @Accept json
// @Produce json
// @Param group_id path int true "Group ID"
// @Success 200 {object} models.GroupResponse
// @Failure 404 {object} map[string]string
// @Security BearerAuth
// @Router /groups/{group_id} [get]
func (h *GroupHandler) Show(c *gin.Context) {
	id, _ := strconv.ParseUint(c.Param("group_id"), 10, 32)
	group, err := h.groupService.FindByIDWithDetails(c.Request.Context(), uint(id))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Group not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"group": group.ToResponse()})
}

type GroupRequest struct {
	Name               string  `json:"name" binding:"required"`
	RegistrationNumber *string `json:"registration_number"`
	MeetingDay         *string `json:"meeting_day"`
	Status             string  `json:"status"`
}

// @Summary Create Group
// @Description Register a lending group (Officer/Admin)
// @Tags Groups
// @Accept json
// @Produce json
// @Param request body GroupRequest true "Group Data"
// @Success 201 {object} models.GroupResponse
// @Security BearerAuth
// @Router /groups [post]
func (h *GroupHandler) Create(c *gin.Context) {
	var req GroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	group := &models.Group{
		Name:               req.Name,
		RegistrationNumber: req.RegistrationNumber,
		MeetingDay:         req.MeetingDay,
		Status:             req.Status,
	}
	if err := h.groupService.Create(c.Request.Context(), group, middleware.GetUserID(c)); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"group": group.ToResponse(), "message": "Group created"})
}

// @Summary Update Group
// @Description Update a lending group (Officer/Admin)
// @Tags Groups
// @Accept json
// @Produce json
// @Param group_id path int true "Group ID"
// @Param request body GroupRequest true "Group Data"
// @Success 200 {object} models.GroupResponse
// @Security BearerAuth
// @Router /groups/{group_id} [put]
func (h *GroupHandler) Update(c *gin.Context) {
	id, _ := strconv.ParseUint(c.Param("group_id"), 10, 32)
	group, err := h.groupService.FindByID(c.Request.Context(), uint(id))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Group not found"})
		return
	}

	var req GroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	group.Name = req.Name
	group.RegistrationNumber = req.RegistrationNumber
	group.MeetingDay = req.MeetingDay
	if req.Status != "" {
		group.Status = req.Status
	}

	if err := h.groupService.Update(c.Request.Context(), group, middleware.GetUserID(c)); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"group": group.ToResponse(), "message": "Group updated"})
}

// @Summary Delete Group
// @Description Remove a lending group without outstanding loans (Admin)
// @Tags Groups
// @Accept json
// @Produce json
// @Param group_id path int true "Group ID"
// @Success 200 {object} map[string]string
// @Security BearerAuth
// @Router /groups/{group_id} [delete]
func (h *GroupHandler) Delete(c *gin.Context) {
	id, _ := strconv.ParseUint(c.Param("group_id"), 10, 32)
	if err := h.groupService.Delete(c.Request.Context(), uint(id), middleware.GetUserID(c)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Group deleted"})
}

// @Summary List Group Members
// @Description Get the membership roster of a group
// @Tags Groups
// @Accept json
// @Produce json
// @Param group_id path int true "Group ID"
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /groups/{group_id}/members [get]
func (h *GroupHandler) Members(c *gin.Context) {
	id, _ := strconv.ParseUint(c.Param("group_id"), 10, 32)
	members, err := h.groupService.FindMembers(c.Request.Context(), uint(id))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"members": members})
}

type AddMemberRequest struct {
	UserID uint   `json:"user_id" binding:"required"`
	Role   string `json:"role"`
}

// @Summary Add Group Member
// @Description Add a client to a lending group (Officer/Admin)
// @Tags Groups
// @Accept json
// @Produce json
// @Param group_id path int true "Group ID"
// @Param request body AddMemberRequest true "Member Data"
// @Success 201 {object} models.GroupMembership
// @Security BearerAuth
// @Router /groups/{group_id}/members [post]
func (h *GroupHandler) AddMember(c *gin.Context) {
	id, _ := strconv.ParseUint(c.Param("group_id"), 10, 32)
	var req AddMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}

	membership, err := h.groupService.AddMember(c.Request.Context(), uint(id), req.UserID, req.Role, middleware.GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"membership": membership, "message": "Member added"})
}

// @Summary Remove Group Member
// @Description Remove a client from a lending group (Officer/Admin)
// @Tags Groups
// @Accept json
// @Produce json
// @Param group_id path int true "Group ID"
// @Param user_id path int true "User ID"
// @Success 200 {object} map[string]string
// @Security BearerAuth
// @Router /groups/{group_id}/members/{user_id} [delete]
func (h *GroupHandler) RemoveMember(c *gin.Context) {
	id, _ := strconv.ParseUint(c.Param("group_id"), 10, 32)
	userID, _ := strconv.ParseUint(c.Param("user_id"), 10, 32)
	if err := h.groupService.RemoveMember(c.Request.Context(), uint(id), uint(userID), middleware.GetUserID(c)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Member removed"})
}

// @Summary List Group Loans
// @Description Get the loans issued under a group's umbrella
// @Tags Groups
// @Accept json
// @Produce json
// @Param group_id path int true "Group ID"
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /groups/{group_id}/loans [get]
func (h *GroupHandler) Loans(c *gin.Context) {
	id, _ := strconv.ParseUint(c.Param("group_id"), 10, 32)
	loans, err := h.groupService.FindLoans(c.Request.Context(), uint(id))
	if err != nil {
		respondError(c, err)
		return
	}

	responses := make([]models.LoanResponse, 0, len(loans))
	for _, loan := range loans {
		responses = append(responses, loan.ToResponse())
	}
	c.JSON(http.StatusOK, gin.H{"loans": responses})
}

// SmsHandler handles SMS campaign endpoints
type SmsHandler struct {
	smsService *services.SmsService
}

func NewSmsHandler(smsService *services.SmsService) *SmsHandler {
	return &SmsHandler{smsService: smsService}
}

// @Summary List SMS Campaigns
// @Description Get a paginated list of SMS campaigns (Officer/Admin)
// @Tags Sms
// @Accept json
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param per_page query int false "Items per page" default(20)
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /sms_campaigns [get]
func (h *SmsHandler) Index(c *gin.Context) {
	query := repository.NewListQuery()
	query.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	query.PerPage, _ = strconv.Atoi(c.DefaultQuery("per_page", "20"))
	query.Filters["status"] = c.Query("status")

	campaigns, total, err := h.smsService.ListCampaigns(c.Request.Context(), query)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"campaigns": campaigns,
		"pagination": gin.H{
			"page":        query.Page,
			"per_page":    query.PerPage,
			"total":       total,
			"total_pages": (total + int64(query.PerPage) - 1) / int64(query.PerPage),
		},
	})
}

// @Summary Get SMS Campaign
// @Description Get a campaign by ID (Officer/Admin)
// @Tags Sms
// @Accept json
// @Produce json
// @Param campaign_id path int true "Campaign ID"
// @Success 200 {object} models.SmsCampaign
// @Failure 404 {object} map[string]string
// @Security BearerAuth
// @Router /sms_campaigns/{campaign_id} [get]
func (h *SmsHandler) Show(c *gin.Context) {
	id, _ := strconv.ParseUint(c.Param("campaign_id"), 10, 32)
	campaign, err := h.smsService.FindCampaignByID(c.Request.Context(), uint(id))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Campaign not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"campaign": campaign})
}

// @Summary List Campaign Messages
// @Description Get the individual messages of a campaign (Officer/Admin)
// @Tags Sms
// @Accept json
// @Produce json
// @Param campaign_id path int true "Campaign ID"
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /sms_campaigns/{campaign_id}/messages [get]
func (h *SmsHandler) Messages(c *gin.Context) {
	id, _ := strconv.ParseUint(c.Param("campaign_id"), 10, 32)
	messages, err := h.smsService.FindMessagesByCampaign(c.Request.Context(), uint(id))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

type CreateCampaignRequest struct {
	Name        string `json:"name" binding:"required"`
	Message     string `json:"message" binding:"required"`
	Audience    string `json:"audience"`
	ScheduledAt string `json:"scheduled_at"`
}

// @Summary Create SMS Campaign
// @Description Draft a bulk SMS campaign, optionally scheduling it (Officer/Admin)
// @Tags Sms
// @Accept json
// @Produce json
// @Param request body CreateCampaignRequest true "Campaign Data"
// @Success 201 {object} models.SmsCampaign
// @Failure 400 {object} map[string]string
// @Security BearerAuth
// @Router /sms_campaigns [post]
func (h *SmsHandler) Create(c *gin.Context) {
	var req CreateCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var scheduledAt *time.Time
	if req.ScheduledAt != "" {
		parsed, err := time.Parse(time.RFC3339, req.ScheduledAt)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "scheduled_at must be an RFC3339 timestamp"})
			return
		}
		scheduledAt = &parsed
	}

	campaign, err := h.smsService.CreateCampaign(c.Request.Context(), &services.CreateCampaignInput{
		Name:        req.Name,
		Message:     req.Message,
		Audience:    req.Audience,
		ScheduledAt: scheduledAt,
		CreatedByID: middleware.GetUserID(c),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"campaign": campaign, "message": "Campaign created"})
}

type ScheduleCampaignRequest struct {
	ScheduledAt string `json:"scheduled_at"`
}

// @Summary Schedule SMS Campaign
// @Description Queue a draft campaign for dispatch, now or at a future time (Officer/Admin)
// @Tags Sms
// @Accept json
// @Produce json
// @Param campaign_id path int true "Campaign ID"
// @Param request body ScheduleCampaignRequest true "Schedule"
// @Success 200 {object} models.SmsCampaign
// @Security BearerAuth
// @Router /sms_campaigns/{campaign_id}/schedule [post]
func (h *SmsHandler) Schedule(c *gin.Context) {
	id, _ := strconv.ParseUint(c.Param("campaign_id"), 10, 32)
	var req ScheduleCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var at *time.Time
	if req.ScheduledAt != "" {
		parsed, err := time.Parse(time.RFC3339, req.ScheduledAt)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "scheduled_at must be an RFC3339 timestamp"})
			return
		}
		at = &parsed
	}

	campaign, err := h.smsService.Schedule(c.Request.Context(), uint(id), at)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"campaign": campaign, "message": "Campaign scheduled"})
}

// @Summary Delete SMS Campaign
// @Description Delete a campaign that has not been sent (Officer/Admin)
// @Tags Sms
// @Accept json
// @Produce json
// @Param campaign_id path int true "Campaign ID"
// @Success 200 {object} map[string]string
// @Security BearerAuth
// @Router /sms_campaigns/{campaign_id} [delete]
func (h *SmsHandler) Delete(c *gin.Context) {
	id, _ := strconv.ParseUint(c.Param("campaign_id"), 10, 32)
	if err := h.smsService.DeleteCampaign(c.Request.Context(), uint(id)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Campaign deleted"})
}

// NotificationHandler handles in-app notification endpoints
type NotificationHandler struct {
	notificationService *services.NotificationService
}

func NewNotificationHandler(notificationService *services.NotificationService) *NotificationHandler {
	return &NotificationHandler{notificationService: notificationService}
}

// @Summary List Notifications
// @Description Get the current user's notifications
// @Tags Notifications
// @Accept json
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param per_page query int false "Items per page" default(20)
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /notifications [get]
func (h *NotificationHandler) Index(c *gin.Context) {
	query := repository.NewListQuery()
	query.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	query.PerPage, _ = strconv.Atoi(c.DefaultQuery("per_page", "20"))

	userID := middleware.GetUserID(c)
	notifications, total, err := h.notificationService.FindByUser(c.Request.Context(), userID, query)
	if err != nil {
		respondError(c, err)
		return
	}

	unread, _ := h.notificationService.CountUnread(c.Request.Context(), userID)

	var responses []models.NotificationResponse
	for _, n := range notifications {
		responses = append(responses, n.ToResponse())
	}

	c.JSON(http.StatusOK, gin.H{
		"notifications": responses,
		"unread_count":  unread,
		"pagination": gin.H{
			"page":        query.Page,
			"per_page":    query.PerPage,
			"total":       total,
			"total_pages": (total + int64(query.PerPage) - 1) / int64(query.PerPage),
		},
	})
}

// @Summary Mark Notification Read
// @Description Mark a notification as read
// @Tags Notifications
// @Accept json
// @Produce json
// @Param notification_id path int true "Notification ID"
// @Success 200 {object} map[string]string
// @Security BearerAuth
// @Router /notifications/{notification_id}/read [put]
func (h *NotificationHandler) MarkAsRead(c *gin.Context) {
	id, _ := strconv.ParseUint(c.Param("notification_id"), 10, 32)

	notification, err := h.notificationService.FindByID(c.Request.Context(), uint(id))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Notification not found"})
		return
	}
	if notification.UserID != middleware.GetUserID(c) {
		c.JSON(http.StatusForbidden, gin.H{"error": "You do not have access to this information"})
		return
	}

	if err := h.notificationService.MarkAsRead(c.Request.Context(), uint(id)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Notification marked as read"})
}

// @Summary Mark All Notifications Read
// @Description Mark all of the current user's notifications as read
// @Tags Notifications
// @Accept json
// @Produce json
// @Success 200 {object} map[string]string
// @Security BearerAuth
// @Router /notifications/mark_all_read [put]
func (h *NotificationHandler) MarkAllAsRead(c *gin.Context) {
	if err := h.notificationService.MarkAllAsRead(c.Request.Context(), middleware.GetUserID(c)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "All notifications marked as read"})
}

// @Summary Delete Notification
// @Description Delete one of the current user's notifications
// @Tags Notifications
// @Accept json
// @Produce json
// @Param notification_id path int true "Notification ID"
// @Success 200 {object} map[string]string
// @Security BearerAuth
// @Router /notifications/{notification_id} [delete]
func (h *NotificationHandler) Delete(c *gin.Context) {
	id, _ := strconv.ParseUint(c.Param("notification_id"), 10, 32)

	notification, err := h.notificationService.FindByID(c.Request.Context(), uint(id))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Notification not found"})
		return
	}
	if notification.UserID != middleware.GetUserID(c) {
		c.JSON(http.StatusForbidden, gin.H{"error": "You do not have access to this information"})
		return
	}

	if err := h.notificationService.Delete(c.Request.Context(), uint(id)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Notification deleted"})
}

// ReportHandler serves CSV and PDF downloads
type ReportHandler struct {
	reportService *services.ReportService
}

func NewReportHandler(reportService *services.ReportService) *ReportHandler {
	return &ReportHandler{reportService: reportService}
}

// @Summary Arrears Report
// @Description Download the loans in arrears as CSV (Officer/Admin)
// @Tags Reports
// @Produce text/csv
// @Success 200 {file} file
// @Security BearerAuth
// @Router /reports/arrears [get]
func (h *ReportHandler) ArrearsCSV(c *gin.Context) {
	buf, err := h.reportService.GenerateArrearsCSV(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	filename := fmt.Sprintf("arrears_%s.csv", time.Now().Format("2006-01-02"))
	c.Header("Content-Disposition", "attachment; filename="+filename)
	c.Data(http.StatusOK, "text/csv", buf.Bytes())
}

// @Summary Collections Report
// @Description Download repayments received in a date range as CSV (Officer/Admin)
// @Tags Reports
// @Produce text/csv
// @Param start_date query string false "Start date YYYY-MM-DD"
// @Param end_date query string false "End date YYYY-MM-DD"
// @Success 200 {file} file
// @Security BearerAuth
// @Router /reports/collections [get]
func (h *ReportHandler) CollectionsCSV(c *gin.Context) {
	buf, err := h.reportService.GenerateCollectionsCSV(c.Request.Context(), c.Query("start_date"), c.Query("end_date"))
	if err != nil {
		respondError(c, err)
		return
	}

	filename := fmt.Sprintf("collections_%s.csv", time.Now().Format("2006-01-02"))
	c.Header("Content-Disposition", "attachment; filename="+filename)
	c.Data(http.StatusOK, "text/csv", buf.Bytes())
}

// @Summary Loan Statement
// @Description Download a loan's statement as PDF
// @Tags Reports
// @Produce application/pdf
// @Param loan_id path int true "Loan ID"
// @Success 200 {file} file
// @Security BearerAuth
// @Router /loans/{loan_id}/statement [get]
func (h *ReportHandler) LoanStatementPDF(c *gin.Context) {
	id, _ := strconv.ParseUint(c.Param("loan_id"), 10, 32)
	buf, err := h.reportService.GenerateLoanStatementPDF(c.Request.Context(), uint(id))
	if err != nil {
		respondError(c, err)
		return
	}

	filename := fmt.Sprintf("loan_statement_%d.pdf", id)
	c.Header("Content-Disposition", "attachment; filename="+filename)
	c.Data(http.StatusOK, "application/pdf", buf.Bytes())
}

// @Summary Loan Agreement
// @Description Download a loan's agreement document as PDF
// @Tags Reports
// @Produce application/pdf
// @Param loan_id path int true "Loan ID"
// @Success 200 {file} file
// @Security BearerAuth
// @Router /loans/{loan_id}/agreement [get]
func (h *ReportHandler) LoanAgreementPDF(c *gin.Context) {
	id, _ := strconv.ParseUint(c.Param("loan_id"), 10, 32)
	buf, err := h.reportService.GenerateLoanAgreementPDF(c.Request.Context(), uint(id))
	if err != nil {
		respondError(c, err)
		return
	}

	filename := fmt.Sprintf("loan_agreement_%d.pdf", id)
	c.Header("Content-Disposition", "attachment; filename="+filename)
	c.Data(http.StatusOK, "application/pdf", buf.Bytes())
}

// AuditHandler exposes the audit trail (Admin)
type AuditHandler struct {
	auditService *services.AuditService
}

func NewAuditHandler(auditService *services.AuditService) *AuditHandler {
	return &AuditHandler{auditService: auditService}
}

// @Summary List Audit Logs
// @Description Get a paginated audit trail, optionally filtered by entity (Admin)
// @Tags Audit
// @Accept json
// @Produce json
// @Param entity query string false "Entity name"
// @Param page query int false "Page number" default(1)
// @Param per_page query int false "Items per page" default(50)
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /audit_logs [get]
func (h *AuditHandler) Index(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "50"))
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 200 {
		perPage = 50
	}

	logs, total, err := h.auditService.List(c.Request.Context(), c.Query("entity"), perPage, (page-1)*perPage)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"audit_logs": logs,
		"pagination": gin.H{
			"page":        page,
			"per_page":    perPage,
			"total":       total,
			"total_pages": (total + int64(perPage) - 1) / int64(perPage),
		},
	})
}

// @Summary Entity Audit Trail
// @Description Get the audit entries recorded against one record (Admin)
// @Tags Audit
// @Accept json
// @Produce json
// @Param entity path string true "Entity name"
// @Param entity_id path int true "Entity ID"
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /audit_logs/{entity}/{entity_id} [get]
func (h *AuditHandler) ForEntity(c *gin.Context) {
	entityID, _ := strconv.ParseUint(c.Param("entity_id"), 10, 32)
	logs, err := h.auditService.ForEntity(c.Request.Context(), c.Param("entity"), uint(entityID))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"audit_logs": logs})
}
