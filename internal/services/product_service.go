package services

import (
	"context"
	"fmt"

	"github.com/kopesha/kopesha-api/internal/models"
	"github.com/kopesha/kopesha-api/internal/repository"
)

// ProductService manages the loan product catalog
type ProductService struct {
	repo     repository.ProductRepository
	auditSvc *AuditService
}

func NewProductService(repo repository.ProductRepository, auditSvc *AuditService) *ProductService {
	return &ProductService{repo: repo, auditSvc: auditSvc}
}

func (s *ProductService) FindByID(ctx context.Context, id uint) (*models.LoanProduct, error) {
	return s.repo.FindByID(ctx, id)
}

func (s *ProductService) List(ctx context.Context, query *repository.ListQuery) ([]models.LoanProduct, int64, error) {
	return s.repo.List(ctx, query)
}

func (s *ProductService) FindActive(ctx context.Context) ([]models.LoanProduct, error) {
	return s.repo.FindActive(ctx)
}

func (s *ProductService) Create(ctx context.Context, product *models.LoanProduct, actorID uint) error {
	if err := validateProduct(product); err != nil {
		return err
	}
	if err := s.repo.Create(ctx, product); err != nil {
		return NewPersistenceError("create product", err)
	}
	return s.auditSvc.Log(ctx, actorID, "CREATE", "LoanProduct", product.ID,
		fmt.Sprintf("Product created: %s (%.1f%% %s, %d months)", product.Name, product.InterestRate, product.InterestMethod, product.TermMonths), "", "")
}

// Update edits a product. Existing loans keep the rate they were issued at.
func (s *ProductService) Update(ctx context.Context, product *models.LoanProduct, actorID uint) error {
	if err := validateProduct(product); err != nil {
		return err
	}
	if err := s.repo.Update(ctx, product); err != nil {
		return NewPersistenceError("update product", err)
	}
	return s.auditSvc.Log(ctx, actorID, "UPDATE", "LoanProduct", product.ID,
		fmt.Sprintf("Product updated: %s", product.Name), "", "")
}

// Delete removes a product that was never lent against. Products with loan
// history are deactivated instead so old loans keep their reference.
func (s *ProductService) Delete(ctx context.Context, id uint, actorID uint) error {
	product, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return ErrNotFound
	}

	hasLoans, err := s.repo.HasLoans(ctx, id)
	if err != nil {
		return NewPersistenceError("check product loans", err)
	}
	if hasLoans {
		product.Active = false
		if err := s.repo.Update(ctx, product); err != nil {
			return NewPersistenceError("deactivate product", err)
		}
		return s.auditSvc.Log(ctx, actorID, "DEACTIVATE", "LoanProduct", id,
			fmt.Sprintf("Product deactivated (has loans): %s", product.Name), "", "")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return NewPersistenceError("delete product", err)
	}
	return s.auditSvc.Log(ctx, actorID, "DELETE", "LoanProduct", id,
		fmt.Sprintf("Product deleted: %s", product.Name), "", "")
}

func validateProduct(p *models.LoanProduct) error {
	if p.Name == "" {
		return NewValidationError("name", "is required")
	}
	if p.InterestRate < 0 {
		return NewValidationError("interest_rate", "cannot be negative")
	}
	if p.InterestMethod != models.InterestMethodFlat && p.InterestMethod != models.InterestMethodDeclining {
		return NewValidationError("interest_method", "unknown method: "+p.InterestMethod)
	}
	if p.RepaymentFrequency != models.FrequencyMonthly && p.RepaymentFrequency != models.FrequencyQuarterly {
		return NewValidationError("repayment_frequency", "unknown frequency: "+p.RepaymentFrequency)
	}
	if p.TermMonths <= 0 {
		return NewValidationError("term_months", "must be greater than zero")
	}
	if p.MinAmount <= 0 || p.MaxAmount < p.MinAmount {
		return NewValidationError("max_amount", "amount range is invalid")
	}
	if p.ProcessingFeeRate < 0 {
		return NewValidationError("processing_fee_rate", "cannot be negative")
	}
	return nil
}
