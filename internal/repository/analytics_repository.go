package repository

import (
	"context"
	"time"

	"github.com/kopesha/kopesha-api/internal/models"
	"gorm.io/gorm"
)

// AnalyticsRepository defines the interface for portfolio analytics queries
type AnalyticsRepository interface {
	GetTotalDisbursed(ctx context.Context, startDate, endDate *time.Time) (float64, error)
	GetTotalOutstanding(ctx context.Context) (float64, error)
	GetTotalCollected(ctx context.Context, startDate, endDate *time.Time) (float64, error)
	GetOpenLoanCounts(ctx context.Context) (active int, inArrears int, err error)
	GetPortfolioAtRisk(ctx context.Context) (float64, error)
	GetDisbursementTrend(ctx context.Context, months int) ([]models.DisbursementTrendPoint, error)
	GetStatusDistribution(ctx context.Context) ([]models.StatusCount, error)
	GetRiskDistribution(ctx context.Context) ([]models.RiskCount, error)
	GetOfficerPerformance(ctx context.Context) ([]models.OfficerPerformance, error)
}

type analyticsRepository struct {
	db *gorm.DB
}

func NewAnalyticsRepository(db *gorm.DB) AnalyticsRepository {
	return &analyticsRepository{db: db}
}

func (r *analyticsRepository) GetTotalDisbursed(ctx context.Context, startDate, endDate *time.Time) (float64, error) {
	var total float64
	query := r.db.WithContext(ctx).Model(&models.Loan{}).
		Select("COALESCE(SUM(principal_amount), 0)").
		Where("disbursed_at IS NOT NULL")

	if startDate != nil {
		query = query.Where("disbursed_at >= ?", *startDate)
	}
	if endDate != nil {
		query = query.Where("disbursed_at <= ?", *endDate)
	}

	err := query.Scan(&total).Error
	return total, err
}

func (r *analyticsRepository) GetTotalOutstanding(ctx context.Context) (float64, error) {
	var total float64
	err := r.db.WithContext(ctx).Model(&models.Loan{}).
		Select("COALESCE(SUM(outstanding_balance), 0)").
		Where("status IN ?", []string{models.LoanStatusDisbursed, models.LoanStatusActive, models.LoanStatusInArrears}).
		Scan(&total).Error
	return total, err
}

func (r *analyticsRepository) GetTotalCollected(ctx context.Context, startDate, endDate *time.Time) (float64, error) {
	var total float64
	query := r.db.WithContext(ctx).Model(&models.Repayment{}).
		Select("COALESCE(SUM(amount), 0)")

	if startDate != nil {
		query = query.Where("payment_date >= ?", *startDate)
	}
	if endDate != nil {
		query = query.Where("payment_date <= ?", *endDate)
	}

	err := query.Scan(&total).Error
	return total, err
}

func (r *analyticsRepository) GetOpenLoanCounts(ctx context.Context) (int, int, error) {
	var active, inArrears int64

	err := r.db.WithContext(ctx).Model(&models.Loan{}).
		Where("status IN ?", []string{models.LoanStatusDisbursed, models.LoanStatusActive}).
		Count(&active).Error
	if err != nil {
		return 0, 0, err
	}

	err = r.db.WithContext(ctx).Model(&models.Loan{}).
		Where("status = ?", models.LoanStatusInArrears).
		Count(&inArrears).Error
	if err != nil {
		return 0, 0, err
	}

	return int(active), int(inArrears), nil
}

// GetPortfolioAtRisk returns the share of the open book held by loans in
// arrears, as a percentage.
func (r *analyticsRepository) GetPortfolioAtRisk(ctx context.Context) (float64, error) {
	var open, atRisk float64

	err := r.db.WithContext(ctx).Model(&models.Loan{}).
		Select("COALESCE(SUM(outstanding_balance), 0)").
		Where("status IN ?", []string{models.LoanStatusDisbursed, models.LoanStatusActive, models.LoanStatusInArrears}).
		Scan(&open).Error
	if err != nil || open == 0 {
		return 0, err
	}

	err = r.db.WithContext(ctx).Model(&models.Loan{}).
		Select("COALESCE(SUM(outstanding_balance), 0)").
		Where("status = ?", models.LoanStatusInArrears).
		Scan(&atRisk).Error
	if err != nil {
		return 0, err
	}

	return (atRisk / open) * 100, nil
}

func (r *analyticsRepository) GetDisbursementTrend(ctx context.Context, months int) ([]models.DisbursementTrendPoint, error) {
	if months <= 0 {
		months = 12
	}
	startDate := time.Now().AddDate(0, -months, 0)

	var disbursedResults []struct {
		Label string
		Total float64
	}
	err := r.db.WithContext(ctx).Model(&models.Loan{}).
		Select("TO_CHAR(disbursed_at, 'Mon YYYY') as label, SUM(principal_amount) as total, MIN(disbursed_at) as sort_date").
		Where("disbursed_at >= ?", startDate).
		Group("TO_CHAR(disbursed_at, 'Mon YYYY')").
		Order("sort_date ASC").
		Scan(&disbursedResults).Error
	if err != nil {
		return nil, err
	}

	var collectedResults []struct {
		Label string
		Total float64
	}
	err = r.db.WithContext(ctx).Model(&models.Repayment{}).
		Select("TO_CHAR(payment_date, 'Mon YYYY') as label, SUM(amount) as total, MIN(payment_date) as sort_date").
		Where("payment_date >= ?", startDate).
		Group("TO_CHAR(payment_date, 'Mon YYYY')").
		Order("sort_date ASC").
		Scan(&collectedResults).Error
	if err != nil {
		return nil, err
	}

	collectedByLabel := make(map[string]float64)
	for _, res := range collectedResults {
		collectedByLabel[res.Label] = res.Total
	}

	var points []models.DisbursementTrendPoint
	seen := make(map[string]bool)
	for _, res := range disbursedResults {
		points = append(points, models.DisbursementTrendPoint{
			Label:     res.Label,
			Disbursed: res.Total,
			Collected: collectedByLabel[res.Label],
		})
		seen[res.Label] = true
	}
	for _, res := range collectedResults {
		if !seen[res.Label] {
			points = append(points, models.DisbursementTrendPoint{
				Label:     res.Label,
				Collected: res.Total,
			})
		}
	}

	return points, nil
}

func (r *analyticsRepository) GetStatusDistribution(ctx context.Context) ([]models.StatusCount, error) {
	var results []models.StatusCount
	err := r.db.WithContext(ctx).Model(&models.Loan{}).
		Select("status, COUNT(*) as count").
		Group("status").
		Order("count DESC").
		Scan(&results).Error
	return results, err
}

func (r *analyticsRepository) GetRiskDistribution(ctx context.Context) ([]models.RiskCount, error) {
	var results []models.RiskCount
	err := r.db.WithContext(ctx).Model(&models.Loan{}).
		Select("risk_level, COUNT(*) as count").
		Where("risk_level != ''").
		Group("risk_level").
		Order("count DESC").
		Scan(&results).Error
	return results, err
}

func (r *analyticsRepository) GetOfficerPerformance(ctx context.Context) ([]models.OfficerPerformance, error) {
	var results []models.OfficerPerformance
	err := r.db.WithContext(ctx).
		Table("loans").
		Select(`loans.officer_id as officer_id,
			users.full_name as officer_name,
			COUNT(*) as managed_loans,
			COALESCE(SUM(CASE WHEN loans.disbursed_at IS NOT NULL THEN loans.principal_amount ELSE 0 END), 0) as amount_disbursed,
			COALESCE(SUM(loans.paid_amount), 0) as amount_collected,
			AVG(CASE WHEN loans.status = ? THEN 100.0 ELSE 0.0 END) as arrears_rate`,
			models.LoanStatusInArrears).
		Joins("JOIN users ON users.id = loans.officer_id").
		Where("loans.officer_id IS NOT NULL").
		Group("loans.officer_id, users.full_name").
		Order("amount_disbursed DESC").
		Scan(&results).Error
	return results, err
}
