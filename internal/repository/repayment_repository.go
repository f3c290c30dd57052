package repository

import (
	"context"

	"github.com/kopesha/kopesha-api/internal/models"
	"gorm.io/gorm"
)

// CollectionStats holds monthly collection statistics
type CollectionStats struct {
	CollectedThisMonth float64 `json:"collected_this_month"`
	ExpectedThisMonth  float64 `json:"expected_this_month"`
	TotalOverdue       float64 `json:"total_overdue"`
}

// RepaymentRepository defines the interface for repayment data access
type RepaymentRepository interface {
	FindByID(ctx context.Context, id uint) (*models.Repayment, error)
	FindByLoan(ctx context.Context, loanID uint) ([]models.Repayment, error)
	FindByTransactionID(ctx context.Context, transactionID string) (*models.Repayment, error)
	Create(ctx context.Context, repayment *models.Repayment) error
	List(ctx context.Context, query *ListQuery) ([]models.Repayment, int64, error)
	SumByLoan(ctx context.Context, loanID uint) (float64, error)
	FindByMonth(ctx context.Context, month, year int) ([]models.Repayment, error)
	GetMonthlyStats(ctx context.Context) (*CollectionStats, error)
}

type repaymentRepository struct {
	db *gorm.DB
}

// NewRepaymentRepository creates a new repayment repository
func NewRepaymentRepository(db *gorm.DB) RepaymentRepository {
	return &repaymentRepository{db: db}
}

func (r *repaymentRepository) FindByID(ctx context.Context, id uint) (*models.Repayment, error) {
	var repayment models.Repayment
	err := r.db.WithContext(ctx).
		Preload("Loan.Client").
		Preload("ReceivedBy").
		First(&repayment, id).Error
	if err != nil {
		return nil, err
	}
	return &repayment, nil
}

func (r *repaymentRepository) FindByLoan(ctx context.Context, loanID uint) ([]models.Repayment, error) {
	var repayments []models.Repayment
	err := r.db.WithContext(ctx).
		Preload("ReceivedBy").
		Where("loan_id = ?", loanID).
		Order("payment_date ASC, created_at ASC").
		Find(&repayments).Error
	return repayments, err
}

func (r *repaymentRepository) FindByTransactionID(ctx context.Context, transactionID string) (*models.Repayment, error) {
	var repayment models.Repayment
	err := r.db.WithContext(ctx).
		Where("transaction_id = ?", transactionID).
		First(&repayment).Error
	if err != nil {
		return nil, err
	}
	return &repayment, nil
}

func (r *repaymentRepository) Create(ctx context.Context, repayment *models.Repayment) error {
	return r.db.WithContext(ctx).Create(repayment).Error
}

func (r *repaymentRepository) List(ctx context.Context, query *ListQuery) ([]models.Repayment, int64, error) {
	var repayments []models.Repayment
	var total int64

	db := r.db.WithContext(ctx).Model(&models.Repayment{})

	if query.Filters["method"] != "" {
		db = db.Where("repayments.method = ?", query.Filters["method"])
	}

	if val, ok := query.Filters["loan_id"]; ok && val != "" {
		db = db.Where("repayments.loan_id = ?", val)
	}

	// Apply date filters
	if val, ok := query.Filters["start_date"]; ok && val != "" {
		db = db.Where("repayments.payment_date >= ?", val)
	}
	if val, ok := query.Filters["end_date"]; ok && val != "" {
		db = db.Where("repayments.payment_date <= ?", val)
	}

	// Apply search across client fields and references
	if query.Search != "" {
		search := "%" + query.Search + "%"
		db = db.Joins("JOIN loans ON loans.id = repayments.loan_id").
			Joins("JOIN users ON users.id = loans.client_id").
			Where("users.full_name ILIKE ? OR users.phone ILIKE ? OR loans.reference ILIKE ? OR COALESCE(repayments.transaction_id, '') ILIKE ?",
				search, search, search, search)
	}

	// Count using a separate session so the main query is unaffected
	countDB := db.Session(&gorm.Session{})
	if err := countDB.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if query.SortBy != "" {
		order := "repayments." + query.SortBy
		if query.SortDir == "desc" {
			order += " DESC"
		}
		db = db.Order(order)
	} else {
		db = db.Order("repayments.created_at DESC")
	}

	if query.PerPage > 0 {
		db = db.Offset((query.Page - 1) * query.PerPage).Limit(query.PerPage)
	}

	err := db.
		Select("repayments.*").
		Preload("Loan.Client").
		Preload("ReceivedBy").
		Find(&repayments).Error

	return repayments, total, err
}

func (r *repaymentRepository) SumByLoan(ctx context.Context, loanID uint) (float64, error) {
	var total float64
	err := r.db.WithContext(ctx).
		Model(&models.Repayment{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("loan_id = ?", loanID).
		Scan(&total).Error
	return total, err
}

func (r *repaymentRepository) FindByMonth(ctx context.Context, month, year int) ([]models.Repayment, error) {
	var repayments []models.Repayment
	err := r.db.WithContext(ctx).
		Preload("Loan.Client").
		Preload("ReceivedBy").
		Where("EXTRACT(MONTH FROM payment_date) = ? AND EXTRACT(YEAR FROM payment_date) = ?", month, year).
		Order("payment_date ASC").
		Find(&repayments).Error
	return repayments, err
}

func (r *repaymentRepository) GetMonthlyStats(ctx context.Context) (*CollectionStats, error) {
	stats := &CollectionStats{}

	var collected, expected, overdue float64

	// 1. Collected this month
	err := r.db.WithContext(ctx).
		Model(&models.Repayment{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("EXTRACT(MONTH FROM payment_date) = EXTRACT(MONTH FROM CURRENT_DATE) AND EXTRACT(YEAR FROM payment_date) = EXTRACT(YEAR FROM CURRENT_DATE)").
		Scan(&collected).Error
	if err != nil {
		return nil, err
	}

	// 2. Expected from installments due this month
	err = r.db.WithContext(ctx).
		Model(&models.Installment{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("EXTRACT(MONTH FROM due_date) = EXTRACT(MONTH FROM CURRENT_DATE) AND EXTRACT(YEAR FROM due_date) = EXTRACT(YEAR FROM CURRENT_DATE)").
		Scan(&expected).Error
	if err != nil {
		return nil, err
	}

	// 3. Total unpaid amount past due
	err = r.db.WithContext(ctx).
		Model(&models.Installment{}).
		Select("COALESCE(SUM(amount - paid_amount), 0)").
		Where("status IN ? AND due_date < CURRENT_DATE",
			[]string{models.InstallmentStatusPending, models.InstallmentStatusOverdue}).
		Scan(&overdue).Error
	if err != nil {
		return nil, err
	}

	stats.CollectedThisMonth = collected
	stats.ExpectedThisMonth = expected
	stats.TotalOverdue = overdue

	return stats, nil
}
