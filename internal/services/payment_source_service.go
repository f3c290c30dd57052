package services

import (
	"context"
	"fmt"

	"github.com/kopesha/kopesha-api/internal/models"
	"github.com/kopesha/kopesha-api/internal/repository"
)

// PaymentSourceService manages the funding accounts disbursements draw from.
// Balance movements go through the repository's conditional debit; this
// service only handles the administrative surface.
type PaymentSourceService struct {
	repo     repository.PaymentSourceRepository
	auditSvc *AuditService
}

func NewPaymentSourceService(repo repository.PaymentSourceRepository, auditSvc *AuditService) *PaymentSourceService {
	return &PaymentSourceService{repo: repo, auditSvc: auditSvc}
}

func (s *PaymentSourceService) FindByID(ctx context.Context, id uint) (*models.PaymentSource, error) {
	return s.repo.FindByID(ctx, id)
}

func (s *PaymentSourceService) List(ctx context.Context, query *repository.ListQuery) ([]models.PaymentSource, int64, error) {
	return s.repo.List(ctx, query)
}

// FindFundable returns active sources able to cover an amount
func (s *PaymentSourceService) FindFundable(ctx context.Context, amount float64) ([]models.PaymentSource, error) {
	return s.repo.FindActiveWithBalance(ctx, amount)
}

func (s *PaymentSourceService) Create(ctx context.Context, source *models.PaymentSource, actorID uint) error {
	if err := validatePaymentSource(source); err != nil {
		return err
	}
	if err := s.repo.Create(ctx, source); err != nil {
		return NewPersistenceError("create payment source", err)
	}
	return s.auditSvc.Log(ctx, actorID, "CREATE", "PaymentSource", source.ID,
		fmt.Sprintf("Funding source created: %s (%s)", source.Name, source.Kind), "", "")
}

func (s *PaymentSourceService) Update(ctx context.Context, source *models.PaymentSource, actorID uint) error {
	if err := validatePaymentSource(source); err != nil {
		return err
	}
	if err := s.repo.Update(ctx, source); err != nil {
		return NewPersistenceError("update payment source", err)
	}
	return s.auditSvc.Log(ctx, actorID, "UPDATE", "PaymentSource", source.ID,
		fmt.Sprintf("Funding source updated: %s", source.Name), "", "")
}

// TopUp credits a source with fresh float
func (s *PaymentSourceService) TopUp(ctx context.Context, id uint, amount float64, actorID uint) (*models.PaymentSource, error) {
	if amount <= 0 {
		return nil, NewValidationError("amount", "must be greater than zero")
	}
	source, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, ErrNotFound
	}
	if err := s.repo.Credit(ctx, id, amount); err != nil {
		return nil, NewPersistenceError("credit payment source", err)
	}
	s.auditSvc.Log(ctx, actorID, "TOP_UP", "PaymentSource", id,
		fmt.Sprintf("Funding source %s topped up with KES %.0f", source.Name, amount), "", "")
	return s.repo.FindByID(ctx, id)
}

// ToggleStatus flips a source between active and inactive
func (s *PaymentSourceService) ToggleStatus(ctx context.Context, id uint, actorID uint) (*models.PaymentSource, error) {
	source, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, ErrNotFound
	}
	if source.Status == models.PaymentSourceStatusActive {
		source.Status = models.PaymentSourceStatusInactive
	} else {
		source.Status = models.PaymentSourceStatusActive
	}
	if err := s.repo.Update(ctx, source); err != nil {
		return nil, NewPersistenceError("update payment source", err)
	}
	s.auditSvc.Log(ctx, actorID, "TOGGLE_STATUS", "PaymentSource", id,
		fmt.Sprintf("Funding source %s set to %s", source.Name, source.Status), "", "")
	return source, nil
}

func (s *PaymentSourceService) Delete(ctx context.Context, id uint, actorID uint) error {
	source, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return ErrNotFound
	}
	if source.Balance > 0 {
		return NewInvariantViolation("cannot delete a funding source that still holds a balance")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return NewPersistenceError("delete payment source", err)
	}
	return s.auditSvc.Log(ctx, actorID, "DELETE", "PaymentSource", id,
		fmt.Sprintf("Funding source deleted: %s", source.Name), "", "")
}

func validatePaymentSource(s *models.PaymentSource) error {
	if s.Name == "" {
		return NewValidationError("name", "is required")
	}
	if s.Kind != models.PaymentSourceKindBank && s.Kind != models.PaymentSourceKindMobileMoney {
		return NewValidationError("kind", "unknown kind: "+s.Kind)
	}
	if s.AccountNumber == "" {
		return NewValidationError("account_number", "is required")
	}
	if s.Balance < 0 {
		return NewValidationError("balance", "cannot be negative")
	}
	return nil
}
