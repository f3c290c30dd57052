package services

import (
	"github.com/kopesha/kopesha-api/internal/cache"
	"github.com/kopesha/kopesha-api/internal/config"
	"github.com/kopesha/kopesha-api/internal/jobs"
	"github.com/kopesha/kopesha-api/internal/repository"
	"github.com/kopesha/kopesha-api/internal/storage"
	"gorm.io/gorm"
)

// Services holds all service instances
type Services struct {
	Auth          *AuthService
	User          *UserService
	Product       *ProductService
	Loan          *LoanService
	Repayment     *RepaymentService
	PaymentSource *PaymentSourceService
	Group         *GroupService
	Sms           *SmsService
	Mpesa         *MpesaService
	Notification  *NotificationService
	Report        *ReportService
	Audit         *AuditService
	CreditScore   *CreditScoreService
	Email         *EmailService
	Analytics     *AnalyticsService
	Export        *ExportService
	Job           *JobService
	Image         *ImageService
}

// NewServices creates all service instances
func NewServices(repos *repository.Repositories, worker *jobs.Worker, storage *storage.LocalStorage, c cache.Cache, cfg *config.Config, db *gorm.DB) *Services {
	notificationSvc := NewNotificationService(repos.Notification, repos.User)
	emailSvc := NewEmailService(cfg)
	auditSvc := NewAuditService(db)

	imageSvc := NewImageService(cfg.StoragePath + "/uploads")

	smsProvider := NewLogSmsProvider(cfg.SmsSenderID)

	repaymentSvc := NewRepaymentService(repos.Repayment, repos.Loan, repos.Installment, notificationSvc, auditSvc, worker)
	analyticsSvc := NewAnalyticsService(repos.Analytics, repos.Repayment, notificationSvc, c)
	jobSvc := NewJobService(worker)

	return &Services{
		Auth:          NewAuthService(repos.User, repos.RefreshToken, cfg),
		User:          NewUserService(repos.User, repos.Loan, worker, emailSvc, auditSvc),
		Product:       NewProductService(repos.Product, auditSvc),
		Loan:          NewLoanService(repos.Loan, repos.Product, repos.User, repos.Installment, repos.PaymentSource, notificationSvc, auditSvc, storage, worker),
		Repayment:     repaymentSvc,
		PaymentSource: NewPaymentSourceService(repos.PaymentSource, auditSvc),
		Group:         NewGroupService(repos.Group, repos.User, repos.Loan, auditSvc),
		Sms:           NewSmsService(repos.Sms, repos.User, repos.Loan, repos.Installment, smsProvider, auditSvc),
		Mpesa:         NewMpesaService(cfg, repos.Mpesa, repos.Loan, repaymentSvc, c),
		Notification:  notificationSvc,
		Report:        NewReportService(repos.Loan, repos.Repayment, repos.User),
		Audit:         auditSvc,
		CreditScore:   NewCreditScoreService(repos.User, repos.Loan, repos.Installment),
		Email:         emailSvc,
		Analytics:     analyticsSvc,
		Export:        NewExportService(analyticsSvc, repos.Loan),
		Job:           jobSvc,
		Image:         imageSvc,
	}
}
