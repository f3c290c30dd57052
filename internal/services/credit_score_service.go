package services

import (
	"context"
	"fmt"

	"github.com/kopesha/kopesha-api/internal/models"
	"github.com/kopesha/kopesha-api/internal/repository"
	"github.com/kopesha/kopesha-api/pkg/logger"
)

// CreditScoreService maintains the borrower credit score from repayment
// behaviour. Scores feed the display on loan views; the application risk
// rubric is separate and never re-runs.
type CreditScoreService struct {
	userRepo        repository.UserRepository
	loanRepo        repository.LoanRepository
	installmentRepo repository.InstallmentRepository
}

func NewCreditScoreService(userRepo repository.UserRepository, loanRepo repository.LoanRepository, installmentRepo repository.InstallmentRepository) *CreditScoreService {
	return &CreditScoreService{
		userRepo:        userRepo,
		loanRepo:        loanRepo,
		installmentRepo: installmentRepo,
	}
}

// UpdateScore calculates and updates the credit score for a single client
func (s *CreditScoreService) UpdateScore(ctx context.Context, userID uint) error {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to find user: %w", err)
	}

	score := s.calculateCreditScore(ctx, userID)

	user.CreditScore = score
	if err := s.userRepo.Update(ctx, user); err != nil {
		return fmt.Errorf("failed to update credit score: %w", err)
	}

	logger.Info(fmt.Sprintf("[CreditScoreService] Updated credit score for user %d: %d", userID, score))
	return nil
}

// UpdateAllScores updates credit scores for all users
func (s *CreditScoreService) UpdateAllScores(ctx context.Context) error {
	logger.Info("[CreditScoreService] Updating all user credit scores...")

	// Process users in batches
	page := 1
	pageSize := 100
	totalProcessed := 0

	for {
		query := repository.NewListQuery()
		query.Page = page
		query.PerPage = pageSize
		query.Filters["role"] = models.RoleClient

		users, total, err := s.userRepo.List(ctx, query)
		if err != nil {
			return fmt.Errorf("failed to fetch users page %d: %w", page, err)
		}

		if len(users) == 0 {
			break
		}

		for _, user := range users {
			if err := s.UpdateScore(ctx, user.ID); err != nil {
				logger.Error(fmt.Sprintf("[CreditScoreService] Error updating score for user %d: %v", user.ID, err))
				continue
			}
			totalProcessed++
		}

		if int64(totalProcessed) >= total || len(users) < pageSize {
			break
		}

		page++
	}

	logger.Info(fmt.Sprintf("[CreditScoreService] Updated credit scores for %d users", totalProcessed))
	return nil
}

// calculateCreditScore scores repayment behaviour across the client's loans
func (s *CreditScoreService) calculateCreditScore(ctx context.Context, userID uint) int {
	baseScore := 500 // Starting score

	loans, err := s.loanRepo.FindByClient(ctx, userID)
	if err != nil {
		return baseScore
	}

	for _, loan := range loans {
		installments, err := s.installmentRepo.FindByLoan(ctx, loan.ID)
		if err != nil {
			continue
		}

		for _, inst := range installments {
			switch inst.Status {
			case models.InstallmentStatusPaid:
				// On-time payment: +5 points
				baseScore += 5
			case models.InstallmentStatusLatePaid:
				daysLate := 0
				if inst.PaidAt != nil {
					daysLate = int(inst.PaidAt.Sub(inst.DueDate).Hours() / 24)
				}
				if daysLate <= 7 {
					baseScore -= 2
				} else if daysLate <= 30 {
					baseScore -= 5
				} else {
					baseScore -= 10
				}
			case models.InstallmentStatusOverdue:
				baseScore -= 5
			}
		}

		// Bonus for settled loans, penalty for being in arrears right now
		if loan.Status == models.LoanStatusFullyPaid {
			baseScore += 50
		}
		if loan.Status == models.LoanStatusInArrears {
			baseScore -= 30
		}
	}

	// Clamp to the usual bureau range
	if baseScore < 300 {
		baseScore = 300
	}
	if baseScore > 850 {
		baseScore = 850
	}

	return baseScore
}
