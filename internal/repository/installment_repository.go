package repository

import (
	"context"

	"github.com/kopesha/kopesha-api/internal/models"
	"gorm.io/gorm"
)

// InstallmentRepository defines the interface for schedule data access
type InstallmentRepository interface {
	FindByID(ctx context.Context, id uint) (*models.Installment, error)
	FindByLoan(ctx context.Context, loanID uint) ([]models.Installment, error)
	CreateBatch(ctx context.Context, installments []models.Installment) error
	Update(ctx context.Context, installment *models.Installment) error
	DeleteByLoan(ctx context.Context, loanID uint) error
	FindOverdue(ctx context.Context) ([]models.Installment, error)
	FindDueTomorrowForActiveLoans(ctx context.Context) ([]models.Installment, error)
	MarkReminderSent(ctx context.Context, installmentIDs []uint) error
}

type installmentRepository struct {
	db *gorm.DB
}

// NewInstallmentRepository creates a new installment repository
func NewInstallmentRepository(db *gorm.DB) InstallmentRepository {
	return &installmentRepository{db: db}
}

func (r *installmentRepository) FindByID(ctx context.Context, id uint) (*models.Installment, error) {
	var installment models.Installment
	err := r.db.WithContext(ctx).First(&installment, id).Error
	if err != nil {
		return nil, err
	}
	return &installment, nil
}

func (r *installmentRepository) FindByLoan(ctx context.Context, loanID uint) ([]models.Installment, error) {
	var installments []models.Installment
	err := r.db.WithContext(ctx).
		Where("loan_id = ?", loanID).
		Order("number ASC").
		Find(&installments).Error
	return installments, err
}

func (r *installmentRepository) CreateBatch(ctx context.Context, installments []models.Installment) error {
	if len(installments) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&installments).Error
}

func (r *installmentRepository) Update(ctx context.Context, installment *models.Installment) error {
	return r.db.WithContext(ctx).Save(installment).Error
}

func (r *installmentRepository) DeleteByLoan(ctx context.Context, loanID uint) error {
	return r.db.WithContext(ctx).Where("loan_id = ?", loanID).Delete(&models.Installment{}).Error
}

func (r *installmentRepository) FindOverdue(ctx context.Context) ([]models.Installment, error) {
	var installments []models.Installment
	err := r.db.WithContext(ctx).
		Where("installments.status IN ? AND installments.due_date < CURRENT_DATE",
			[]string{models.InstallmentStatusPending, models.InstallmentStatusOverdue}).
		Order("due_date ASC").
		Find(&installments).Error
	return installments, err
}

// FindDueTomorrowForActiveLoans returns unpaid installments falling due
// tomorrow on open loans held by active clients, skipping rows that already
// had a reminder sent.
func (r *installmentRepository) FindDueTomorrowForActiveLoans(ctx context.Context) ([]models.Installment, error) {
	var installments []models.Installment
	err := r.db.WithContext(ctx).
		Joins("JOIN loans ON loans.id = installments.loan_id AND loans.status IN ?",
			[]string{models.LoanStatusActive, models.LoanStatusInArrears}).
		Joins("JOIN users ON users.id = loans.client_id AND users.status = ? AND users.discarded_at IS NULL",
			models.StatusActive).
		Where("installments.status = ? AND installments.due_date = CURRENT_DATE + INTERVAL '1 day'",
			models.InstallmentStatusPending).
		Where("installments.reminder_sent_at IS NULL").
		Preload("Loan.Client").
		Order("installments.due_date ASC").
		Find(&installments).Error
	return installments, err
}

// MarkReminderSent sets reminder_sent_at to now for the given installment IDs.
func (r *installmentRepository) MarkReminderSent(ctx context.Context, installmentIDs []uint) error {
	if len(installmentIDs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&models.Installment{}).
		Where("id IN ?", installmentIDs).
		Update("reminder_sent_at", gorm.Expr("CURRENT_TIMESTAMP")).Error
}
