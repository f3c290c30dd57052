package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kopesha/kopesha-api/internal/services"
)

// Handlers holds all handler instances
type Handlers struct {
	Health        *HealthHandler
	Auth          *AuthHandler
	User          *UserHandler
	Product       *ProductHandler
	Loan          *LoanHandler
	Repayment     *RepaymentHandler
	PaymentSource *PaymentSourceHandler
	Group         *GroupHandler
	Sms           *SmsHandler
	Mpesa         *MpesaHandler
	Notification  *NotificationHandler
	Report        *ReportHandler
	Audit         *AuditHandler
	Analytics     *AnalyticsHandler
	Job           *JobHandler
}

// NewHandlers creates all handler instances
func NewHandlers(svcs *services.Services) *Handlers {
	return &Handlers{
		Health:        NewHealthHandler(),
		Auth:          NewAuthHandler(svcs.Auth),
		User:          NewUserHandler(svcs.User, svcs.Loan, svcs.Image),
		Product:       NewProductHandler(svcs.Product),
		Loan:          NewLoanHandler(svcs.Loan),
		Repayment:     NewRepaymentHandler(svcs.Repayment),
		PaymentSource: NewPaymentSourceHandler(svcs.PaymentSource),
		Group:         NewGroupHandler(svcs.Group),
		Sms:           NewSmsHandler(svcs.Sms),
		Mpesa:         NewMpesaHandler(svcs.Mpesa),
		Notification:  NewNotificationHandler(svcs.Notification),
		Report:        NewReportHandler(svcs.Report),
		Audit:         NewAuditHandler(svcs.Audit),
		Analytics:     NewAnalyticsHandler(svcs.Analytics, svcs.Export),
		Job:           NewJobHandler(svcs.Job),
	}
}

// respondError maps service errors onto HTTP status codes so every handler
// reports domain failures the same way
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Record not found"})
	case errors.Is(err, services.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrDuplicate):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrStaleState):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case services.IsValidation(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case services.IsInvariantViolation(err):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
