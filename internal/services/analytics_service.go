package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kopesha/kopesha-api/internal/cache"
	"github.com/kopesha/kopesha-api/internal/models"
	"github.com/kopesha/kopesha-api/internal/repository"
	"github.com/kopesha/kopesha-api/pkg/logger"
)

// AnalyticsService aggregates the portfolio numbers the dashboard shows.
// Snapshots are cached as JSON with a short TTL; a background job refreshes
// them so dashboard reads stay cheap.
type AnalyticsService struct {
	analyticsRepo   repository.AnalyticsRepository
	repaymentRepo   repository.RepaymentRepository
	notificationSvc *NotificationService
	cache           cache.Cache
}

func NewAnalyticsService(
	analyticsRepo repository.AnalyticsRepository,
	repaymentRepo repository.RepaymentRepository,
	notificationSvc *NotificationService,
	c cache.Cache,
) *AnalyticsService {
	return &AnalyticsService{
		analyticsRepo:   analyticsRepo,
		repaymentRepo:   repaymentRepo,
		notificationSvc: notificationSvc,
		cache:           c,
	}
}

// AnalyticsFilters narrows the overview to a date range
type AnalyticsFilters struct {
	StartDate   *time.Time
	EndDate     *time.Time
	TrendMonths int
}

const (
	overviewCacheTTL    = 15 * time.Minute
	performanceCacheTTL = 30 * time.Minute
)

// GetOverview returns the portfolio snapshot, from cache when fresh
func (s *AnalyticsService) GetOverview(ctx context.Context, filters AnalyticsFilters) (*models.PortfolioOverview, error) {
	cacheKey := "analytics:overview"
	if filters.StartDate != nil || filters.EndDate != nil {
		// Ad-hoc date ranges bypass the cache
		return s.computeOverview(ctx, filters)
	}

	if raw, ok := s.cache.Get(ctx, cacheKey); ok {
		var overview models.PortfolioOverview
		if err := json.Unmarshal([]byte(raw), &overview); err == nil {
			return &overview, nil
		}
	}

	overview, err := s.computeOverview(ctx, filters)
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(overview); err == nil {
		s.cache.Set(ctx, cacheKey, string(raw), overviewCacheTTL)
	}

	return overview, nil
}

func (s *AnalyticsService) computeOverview(ctx context.Context, filters AnalyticsFilters) (*models.PortfolioOverview, error) {
	totalDisbursed, err := s.analyticsRepo.GetTotalDisbursed(ctx, filters.StartDate, filters.EndDate)
	if err != nil {
		return nil, err
	}

	totalOutstanding, err := s.analyticsRepo.GetTotalOutstanding(ctx)
	if err != nil {
		return nil, err
	}

	totalCollected, err := s.analyticsRepo.GetTotalCollected(ctx, filters.StartDate, filters.EndDate)
	if err != nil {
		return nil, err
	}

	activeLoans, loansInArrears, err := s.analyticsRepo.GetOpenLoanCounts(ctx)
	if err != nil {
		return nil, err
	}

	par, err := s.analyticsRepo.GetPortfolioAtRisk(ctx)
	if err != nil {
		return nil, err
	}

	trend, err := s.analyticsRepo.GetDisbursementTrend(ctx, filters.TrendMonths)
	if err != nil {
		return nil, err
	}

	statusDist, err := s.analyticsRepo.GetStatusDistribution(ctx)
	if err != nil {
		return nil, err
	}

	riskDist, err := s.analyticsRepo.GetRiskDistribution(ctx)
	if err != nil {
		return nil, err
	}

	// Collection rate compares what came in this month against what fell due
	collectionRate := 0.0
	if stats, err := s.repaymentRepo.GetMonthlyStats(ctx); err == nil && stats.ExpectedThisMonth > 0 {
		collectionRate = roundOneDecimal(stats.CollectedThisMonth / stats.ExpectedThisMonth * 100)
	}

	return &models.PortfolioOverview{
		TotalDisbursed:     totalDisbursed,
		TotalOutstanding:   totalOutstanding,
		TotalCollected:     totalCollected,
		ActiveLoans:        activeLoans,
		LoansInArrears:     loansInArrears,
		PortfolioAtRisk:    roundOneDecimal(par),
		CollectionRate:     collectionRate,
		CurrencySymbol:     "KES",
		DisbursementTrend:  trend,
		StatusDistribution: statusDist,
		RiskDistribution:   riskDist,
	}, nil
}

func roundOneDecimal(v float64) float64 {
	if v < 0 {
		return float64(int(v*10-0.5)) / 10
	}
	return float64(int(v*10+0.5)) / 10
}

// GetOfficerPerformance returns per-officer disbursement and collection
// figures, from cache when fresh
func (s *AnalyticsService) GetOfficerPerformance(ctx context.Context) ([]models.OfficerPerformance, error) {
	cacheKey := "analytics:officer_performance"

	if raw, ok := s.cache.Get(ctx, cacheKey); ok {
		var perf []models.OfficerPerformance
		if err := json.Unmarshal([]byte(raw), &perf); err == nil {
			return perf, nil
		}
	}

	perf, err := s.analyticsRepo.GetOfficerPerformance(ctx)
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(perf); err == nil {
		s.cache.Set(ctx, cacheKey, string(raw), performanceCacheTTL)
	}

	return perf, nil
}

// RefreshCache recomputes the cached snapshots. Scheduled from the worker.
func (s *AnalyticsService) RefreshCache(ctx context.Context) error {
	logger.Info("[AnalyticsService] Refreshing analytics cache in background...")

	s.cache.Delete(ctx, "analytics:overview")
	s.cache.Delete(ctx, "analytics:officer_performance")

	if _, err := s.GetOverview(ctx, AnalyticsFilters{}); err != nil {
		logger.Error(fmt.Sprintf("[AnalyticsService] Overview refresh failed: %v", err))
		return err
	}
	if _, err := s.GetOfficerPerformance(ctx); err != nil {
		logger.Error(fmt.Sprintf("[AnalyticsService] Officer performance refresh failed: %v", err))
		return err
	}

	logger.Info("[AnalyticsService] Analytics cache refresh completed.")
	return nil
}
