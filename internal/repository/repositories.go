package repository

import (
	"gorm.io/gorm"
)

// Repositories holds all repository instances
type Repositories struct {
	User          UserRepository
	Product       ProductRepository
	Loan          LoanRepository
	Installment   InstallmentRepository
	Repayment     RepaymentRepository
	PaymentSource PaymentSourceRepository
	Group         GroupRepository
	Sms           SmsRepository
	Mpesa         MpesaRepository
	Notification  NotificationRepository
	RefreshToken  RefreshTokenRepository
	Analytics     AnalyticsRepository
}

// NewRepositories creates all repository instances
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User:          NewUserRepository(db),
		Product:       NewProductRepository(db),
		Loan:          NewLoanRepository(db),
		Installment:   NewInstallmentRepository(db),
		Repayment:     NewRepaymentRepository(db),
		PaymentSource: NewPaymentSourceRepository(db),
		Group:         NewGroupRepository(db),
		Sms:           NewSmsRepository(db),
		Mpesa:         NewMpesaRepository(db),
		Notification:  NewNotificationRepository(db),
		RefreshToken:  NewRefreshTokenRepository(db),
		Analytics:     NewAnalyticsRepository(db),
	}
}
