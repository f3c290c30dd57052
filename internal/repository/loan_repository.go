package repository

import (
	"context"
	"strings"

	"github.com/kopesha/kopesha-api/internal/models"
	"gorm.io/gorm"
)

// LoanRepository defines the interface for loan data access
type LoanRepository interface {
	FindByID(ctx context.Context, id uint) (*models.Loan, error)
	FindByIDWithDetails(ctx context.Context, id uint) (*models.Loan, error)
	FindByReference(ctx context.Context, reference string) (*models.Loan, error)
	FindByClient(ctx context.Context, clientID uint) ([]models.Loan, error)
	FindByGroup(ctx context.Context, groupID uint) ([]models.Loan, error)
	FindByStatus(ctx context.Context, statuses []string) ([]models.Loan, error)
	FindByIDs(ctx context.Context, ids []uint) ([]models.Loan, error)
	FindOpenLoans(ctx context.Context) ([]models.Loan, error)
	Create(ctx context.Context, loan *models.Loan) error
	Update(ctx context.Context, loan *models.Loan) error
	UpdateWithVersion(ctx context.Context, loan *models.Loan, expectedVersion int) (bool, error)
	Delete(ctx context.Context, id uint) error
	List(ctx context.Context, query *LoanQuery) ([]models.Loan, int64, error)
	GetStats(ctx context.Context) (*LoanStats, error)
	HasOpenLoans(ctx context.Context, clientID uint) (bool, error)
}

// LoanQuery extends ListQuery with loan-specific filters
type LoanQuery struct {
	*ListQuery
	ClientID  uint
	OfficerID uint
	GroupID   uint
	Status    string
	RiskLevel string
}

type loanRepository struct {
	db *gorm.DB
}

// NewLoanRepository creates a new loan repository
func NewLoanRepository(db *gorm.DB) LoanRepository {
	return &loanRepository{db: db}
}

func (r *loanRepository) FindByID(ctx context.Context, id uint) (*models.Loan, error) {
	var loan models.Loan
	err := r.db.WithContext(ctx).First(&loan, id).Error
	if err != nil {
		return nil, err
	}
	return &loan, nil
}

func (r *loanRepository) FindByIDWithDetails(ctx context.Context, id uint) (*models.Loan, error) {
	var loan models.Loan
	// Client, Product, Officer and Group come in via Joins; the one-to-many
	// schedule and repayment history stay as Preloads.
	err := r.db.WithContext(ctx).
		Joins("Client").
		Joins("Product").
		Joins("Officer").
		Joins("Group").
		Preload("Installments", func(db *gorm.DB) *gorm.DB {
			return db.Order("number ASC")
		}).
		Preload("Repayments", func(db *gorm.DB) *gorm.DB {
			return db.Order("payment_date ASC, created_at ASC")
		}).
		First(&loan, id).Error
	if err != nil {
		return nil, err
	}
	return &loan, nil
}

func (r *loanRepository) FindByReference(ctx context.Context, reference string) (*models.Loan, error) {
	var loan models.Loan
	err := r.db.WithContext(ctx).
		Where("reference = ?", reference).
		First(&loan).Error
	if err != nil {
		return nil, err
	}
	return &loan, nil
}

func (r *loanRepository) FindByClient(ctx context.Context, clientID uint) ([]models.Loan, error) {
	var loans []models.Loan
	err := r.db.WithContext(ctx).
		Where("client_id = ?", clientID).
		Preload("Product").
		Order("created_at DESC").
		Find(&loans).Error
	return loans, err
}

func (r *loanRepository) FindByGroup(ctx context.Context, groupID uint) ([]models.Loan, error) {
	var loans []models.Loan
	err := r.db.WithContext(ctx).
		Where("group_id = ?", groupID).
		Preload("Client").
		Preload("Product").
		Order("created_at DESC").
		Find(&loans).Error
	return loans, err
}

func (r *loanRepository) FindByStatus(ctx context.Context, statuses []string) ([]models.Loan, error) {
	var loans []models.Loan
	err := r.db.WithContext(ctx).
		Where("status IN ?", statuses).
		Preload("Client").
		Order("created_at ASC").
		Find(&loans).Error
	return loans, err
}

func (r *loanRepository) FindByIDs(ctx context.Context, ids []uint) ([]models.Loan, error) {
	var loans []models.Loan
	err := r.db.WithContext(ctx).
		Where("id IN ?", ids).
		Find(&loans).Error
	return loans, err
}

// FindOpenLoans returns loans that still carry an obligation, with their
// schedules loaded. Used by the arrears sweep.
func (r *loanRepository) FindOpenLoans(ctx context.Context) ([]models.Loan, error) {
	var loans []models.Loan
	err := r.db.WithContext(ctx).
		Where("status IN ?", []string{models.LoanStatusDisbursed, models.LoanStatusActive, models.LoanStatusInArrears}).
		Preload("Installments", func(db *gorm.DB) *gorm.DB {
			return db.Order("number ASC")
		}).
		Find(&loans).Error
	return loans, err
}

func (r *loanRepository) Create(ctx context.Context, loan *models.Loan) error {
	return r.db.WithContext(ctx).Create(loan).Error
}

func (r *loanRepository) Update(ctx context.Context, loan *models.Loan) error {
	return r.db.WithContext(ctx).Save(loan).Error
}

// UpdateWithVersion saves the loan only if its lock_version still matches
// expectedVersion, bumping the version in the same statement. Returns false
// when another writer got there first; the caller reloads and retries or
// surfaces a conflict.
func (r *loanRepository) UpdateWithVersion(ctx context.Context, loan *models.Loan, expectedVersion int) (bool, error) {
	loan.LockVersion = expectedVersion + 1
	result := r.db.WithContext(ctx).
		Model(&models.Loan{}).
		Where("id = ? AND lock_version = ?", loan.ID, expectedVersion).
		Select("*").
		Omit("created_at").
		Updates(loan)
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected == 0 {
		loan.LockVersion = expectedVersion
		return false, nil
	}
	return true, nil
}

func (r *loanRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&models.Loan{}, id).Error
}

func (r *loanRepository) List(ctx context.Context, query *LoanQuery) ([]models.Loan, int64, error) {
	var loans []models.Loan
	var total int64

	db := r.db.WithContext(ctx).Model(&models.Loan{})

	if query.ClientID > 0 {
		db = db.Where("loans.client_id = ?", query.ClientID)
	}
	if query.OfficerID > 0 {
		db = db.Where("loans.officer_id = ?", query.OfficerID)
	}
	if query.GroupID > 0 {
		db = db.Where("loans.group_id = ?", query.GroupID)
	}

	// Apply status filter (single or multiple via status_in)
	if query.Filters != nil {
		if val, ok := query.Filters["status_in"]; ok && val != "" {
			statuses := strings.Split(val, ",")
			for i, s := range statuses {
				statuses[i] = models.NormalizeStatus(s)
			}
			db = db.Where("loans.status IN ?", statuses)
		}
	}
	if query.Filters == nil || query.Filters["status_in"] == "" {
		if query.Status != "" {
			db = db.Where("loans.status = ?", models.NormalizeStatus(query.Status))
		}
	}

	if query.RiskLevel != "" {
		db = db.Where("loans.risk_level = ?", query.RiskLevel)
	}

	// Apply date filters on application and disbursement
	if query.Filters != nil {
		if val, ok := query.Filters["applied_from"]; ok && val != "" {
			db = db.Where("loans.application_date >= ?", val)
		}
		if val, ok := query.Filters["applied_to"]; ok && val != "" {
			db = db.Where("loans.application_date <= ?", val)
		}
		if val, ok := query.Filters["disbursed_from"]; ok && val != "" {
			db = db.Where("loans.disbursed_at >= ?", val)
		}
		if val, ok := query.Filters["disbursed_to"]; ok && val != "" {
			// Include the whole day when only a date is provided
			if len(val) == 10 {
				val += " 23:59:59"
			}
			db = db.Where("loans.disbursed_at <= ?", val)
		}
	}

	// Apply search (JOINs only for filtering; associations loaded via Preload below)
	if query.Search != "" {
		search := "%" + query.Search + "%"
		db = db.Joins("LEFT JOIN users ON users.id = loans.client_id").
			Joins("LEFT JOIN loan_products ON loan_products.id = loans.product_id").
			Where("users.full_name ILIKE ? OR users.phone ILIKE ? OR users.national_id ILIKE ? OR loan_products.name ILIKE ? OR loans.reference ILIKE ?",
				search, search, search, search, search)
	}

	// Count total using a separate session so the main query is not altered by Count()
	countDB := db.Session(&gorm.Session{})
	if err := countDB.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	// Apply sorting
	if query.SortBy != "" {
		order := query.SortBy
		if query.SortDir == "desc" {
			order += " DESC"
		}
		db = db.Order(order)
	} else {
		db = db.Order("loans.created_at DESC")
	}

	// Apply pagination
	if query.PerPage > 0 {
		db = db.Offset((query.Page - 1) * query.PerPage).Limit(query.PerPage)
	}

	err := db.
		Select("loans.*").
		Preload("Client").
		Preload("Product").
		Preload("Officer").
		Preload("Group").
		Find(&loans).Error

	return loans, total, err
}

// LoanStats holds the count of loans by pipeline stage
type LoanStats struct {
	Total        int64 `json:"total"`
	Pending      int64 `json:"pending"`
	UnderReview  int64 `json:"under_review"`
	NeedApproval int64 `json:"need_approval"`
	Approved     int64 `json:"approved"`
	Active       int64 `json:"active"`
	InArrears    int64 `json:"in_arrears"`
	FullyPaid    int64 `json:"fully_paid"`
	Rejected     int64 `json:"rejected"`
}

func (r *loanRepository) GetStats(ctx context.Context) (*LoanStats, error) {
	stats := &LoanStats{}

	rows, err := r.db.WithContext(ctx).
		Model(&models.Loan{}).
		Select("status, count(*) as count").
		Group("status").
		Rows()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var total int64
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		total += count
		switch status {
		case models.LoanStatusPending:
			stats.Pending = count
		case models.LoanStatusUnderReview:
			stats.UnderReview = count
		case models.LoanStatusNeedApproval:
			stats.NeedApproval = count
		case models.LoanStatusApproved:
			stats.Approved = count
		case models.LoanStatusActive, models.LoanStatusDisbursed:
			stats.Active += count
		case models.LoanStatusInArrears:
			stats.InArrears = count
		case models.LoanStatusFullyPaid:
			stats.FullyPaid = count
		case models.LoanStatusRejected:
			stats.Rejected = count
		}
	}
	stats.Total = total

	return stats, nil
}

func (r *loanRepository) HasOpenLoans(ctx context.Context, clientID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Loan{}).
		Where("client_id = ?", clientID).
		Where("status IN ?", []string{models.LoanStatusDisbursed, models.LoanStatusActive, models.LoanStatusInArrears}).
		Count(&count).Error
	return count > 0, err
}
