package repository

import (
	"context"

	"github.com/kopesha/kopesha-api/internal/models"
	"gorm.io/gorm"
)

// PaymentSourceRepository defines the interface for funding account data access
type PaymentSourceRepository interface {
	FindByID(ctx context.Context, id uint) (*models.PaymentSource, error)
	FindActive(ctx context.Context) ([]models.PaymentSource, error)
	FindActiveWithBalance(ctx context.Context, minBalance float64) ([]models.PaymentSource, error)
	Create(ctx context.Context, source *models.PaymentSource) error
	Update(ctx context.Context, source *models.PaymentSource) error
	Delete(ctx context.Context, id uint) error
	List(ctx context.Context, query *ListQuery) ([]models.PaymentSource, int64, error)
	Debit(ctx context.Context, id uint, amount float64) (bool, error)
	Credit(ctx context.Context, id uint, amount float64) error
}

type paymentSourceRepository struct {
	db *gorm.DB
}

// NewPaymentSourceRepository creates a new payment source repository
func NewPaymentSourceRepository(db *gorm.DB) PaymentSourceRepository {
	return &paymentSourceRepository{db: db}
}

func (r *paymentSourceRepository) FindByID(ctx context.Context, id uint) (*models.PaymentSource, error) {
	var source models.PaymentSource
	err := r.db.WithContext(ctx).First(&source, id).Error
	if err != nil {
		return nil, err
	}
	return &source, nil
}

func (r *paymentSourceRepository) FindActive(ctx context.Context) ([]models.PaymentSource, error) {
	var sources []models.PaymentSource
	err := r.db.WithContext(ctx).
		Where("status = ?", models.PaymentSourceStatusActive).
		Order("name ASC").
		Find(&sources).Error
	return sources, err
}

func (r *paymentSourceRepository) FindActiveWithBalance(ctx context.Context, minBalance float64) ([]models.PaymentSource, error) {
	var sources []models.PaymentSource
	err := r.db.WithContext(ctx).
		Where("status = ? AND balance >= ?", models.PaymentSourceStatusActive, minBalance).
		Order("balance DESC").
		Find(&sources).Error
	return sources, err
}

func (r *paymentSourceRepository) Create(ctx context.Context, source *models.PaymentSource) error {
	return r.db.WithContext(ctx).Create(source).Error
}

func (r *paymentSourceRepository) Update(ctx context.Context, source *models.PaymentSource) error {
	return r.db.WithContext(ctx).Save(source).Error
}

func (r *paymentSourceRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&models.PaymentSource{}, id).Error
}

func (r *paymentSourceRepository) List(ctx context.Context, query *ListQuery) ([]models.PaymentSource, int64, error) {
	var sources []models.PaymentSource
	var total int64

	db := r.db.WithContext(ctx).Model(&models.PaymentSource{})

	if query.Search != "" {
		search := "%" + query.Search + "%"
		db = db.Where("name ILIKE ? OR account_number ILIKE ?", search, search)
	}

	if query.Filters["kind"] != "" {
		db = db.Where("kind = ?", query.Filters["kind"])
	}

	if query.Filters["status"] != "" {
		db = db.Where("status = ?", query.Filters["status"])
	}

	db.Count(&total)

	if query.SortBy != "" {
		order := query.SortBy
		if query.SortDir == "desc" {
			order += " DESC"
		}
		db = db.Order(order)
	} else {
		db = db.Order("name ASC")
	}

	if query.PerPage > 0 {
		db = db.Offset((query.Page - 1) * query.PerPage).Limit(query.PerPage)
	}

	err := db.Find(&sources).Error
	return sources, total, err
}

// Debit decrements the balance only when the source is active and holds at
// least amount, in a single conditional UPDATE. Returns false when the guard
// fails, so concurrent disbursements cannot overdraw a source.
func (r *paymentSourceRepository) Debit(ctx context.Context, id uint, amount float64) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.PaymentSource{}).
		Where("id = ? AND status = ? AND balance >= ?", id, models.PaymentSourceStatusActive, amount).
		Update("balance", gorm.Expr("balance - ?", amount))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// Credit increments the balance unconditionally.
func (r *paymentSourceRepository) Credit(ctx context.Context, id uint, amount float64) error {
	return r.db.WithContext(ctx).
		Model(&models.PaymentSource{}).
		Where("id = ?", id).
		Update("balance", gorm.Expr("balance + ?", amount)).Error
}
