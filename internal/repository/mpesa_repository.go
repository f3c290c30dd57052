package repository

import (
	"context"

	"github.com/kopesha/kopesha-api/internal/models"
	"gorm.io/gorm"
)

// MpesaRepository defines the interface for STK transaction data access
type MpesaRepository interface {
	FindByID(ctx context.Context, id uint) (*models.MpesaTransaction, error)
	FindByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (*models.MpesaTransaction, error)
	FindByLoan(ctx context.Context, loanID uint) ([]models.MpesaTransaction, error)
	Create(ctx context.Context, txn *models.MpesaTransaction) error
	Update(ctx context.Context, txn *models.MpesaTransaction) error
	FindPendingOlderThan(ctx context.Context, minutes int) ([]models.MpesaTransaction, error)
}

type mpesaRepository struct {
	db *gorm.DB
}

// NewMpesaRepository creates a new M-Pesa transaction repository
func NewMpesaRepository(db *gorm.DB) MpesaRepository {
	return &mpesaRepository{db: db}
}

func (r *mpesaRepository) FindByID(ctx context.Context, id uint) (*models.MpesaTransaction, error) {
	var txn models.MpesaTransaction
	err := r.db.WithContext(ctx).First(&txn, id).Error
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

func (r *mpesaRepository) FindByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (*models.MpesaTransaction, error) {
	var txn models.MpesaTransaction
	err := r.db.WithContext(ctx).
		Where("checkout_request_id = ?", checkoutRequestID).
		First(&txn).Error
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

func (r *mpesaRepository) FindByLoan(ctx context.Context, loanID uint) ([]models.MpesaTransaction, error) {
	var txns []models.MpesaTransaction
	err := r.db.WithContext(ctx).
		Where("loan_id = ?", loanID).
		Order("created_at DESC").
		Find(&txns).Error
	return txns, err
}

func (r *mpesaRepository) Create(ctx context.Context, txn *models.MpesaTransaction) error {
	return r.db.WithContext(ctx).Create(txn).Error
}

func (r *mpesaRepository) Update(ctx context.Context, txn *models.MpesaTransaction) error {
	return r.db.WithContext(ctx).Save(txn).Error
}

// FindPendingOlderThan returns pending transactions whose callback never
// arrived, so a sweep can mark them failed.
func (r *mpesaRepository) FindPendingOlderThan(ctx context.Context, minutes int) ([]models.MpesaTransaction, error) {
	var txns []models.MpesaTransaction
	err := r.db.WithContext(ctx).
		Where("status = ?", models.MpesaStatusPending).
		Where("created_at < CURRENT_TIMESTAMP - make_interval(mins => ?)", minutes).
		Find(&txns).Error
	return txns, err
}
