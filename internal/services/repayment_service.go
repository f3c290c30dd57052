package services

import (
	"context"
	"fmt"
	"time"

	"github.com/kopesha/kopesha-api/internal/jobs"
	"github.com/kopesha/kopesha-api/internal/models"
	"github.com/kopesha/kopesha-api/internal/repository"
	"github.com/kopesha/kopesha-api/internal/statemachine"
)

// RepaymentService records payments against loans. Repayment rows are
// append-only; the service allocates each payment across the schedule oldest
// installment first and keeps the loan's outstanding balance monotonically
// non-increasing.
type RepaymentService struct {
	repo            repository.RepaymentRepository
	loanRepo        repository.LoanRepository
	installmentRepo repository.InstallmentRepository
	notificationSvc *NotificationService
	auditSvc        *AuditService
	worker          *jobs.Worker
}

func NewRepaymentService(
	repo repository.RepaymentRepository,
	loanRepo repository.LoanRepository,
	installmentRepo repository.InstallmentRepository,
	notificationSvc *NotificationService,
	auditSvc *AuditService,
	worker *jobs.Worker,
) *RepaymentService {
	return &RepaymentService{
		repo:            repo,
		loanRepo:        loanRepo,
		installmentRepo: installmentRepo,
		notificationSvc: notificationSvc,
		auditSvc:        auditSvc,
		worker:          worker,
	}
}

// FindByID gets a repayment by ID
func (s *RepaymentService) FindByID(ctx context.Context, id uint) (*models.Repayment, error) {
	return s.repo.FindByID(ctx, id)
}

// FindByLoan returns a loan's full repayment history, oldest first
func (s *RepaymentService) FindByLoan(ctx context.Context, loanID uint) ([]models.Repayment, error) {
	return s.repo.FindByLoan(ctx, loanID)
}

func (s *RepaymentService) List(ctx context.Context, query *repository.ListQuery) ([]models.Repayment, int64, error) {
	return s.repo.List(ctx, query)
}

func (s *RepaymentService) GetMonthlyStats(ctx context.Context) (*repository.CollectionStats, error) {
	return s.repo.GetMonthlyStats(ctx)
}

// RecordRepaymentInput carries one payment event
type RecordRepaymentInput struct {
	LoanID        uint
	Amount        float64
	PaymentDate   time.Time
	Method        string
	TransactionID *string
	ReceivedByID  *uint
	Notes         *string
}

// RecordRepayment posts a payment to a loan. The amount fills unsettled
// installments oldest first, the loan's paid and outstanding figures move in
// lock step, and a loan whose balance reaches zero settles in the same call.
// A repeated transaction ID returns the original row, so M-Pesa callback
// retries cannot double-post.
func (s *RepaymentService) RecordRepayment(ctx context.Context, input *RecordRepaymentInput) (*models.Repayment, error) {
	if input.Amount <= 0 {
		return nil, NewValidationError("amount", "must be greater than zero")
	}
	if !models.ValidRepaymentMethod(input.Method) {
		return nil, NewValidationError("method", "unknown repayment method: "+input.Method)
	}
	if input.PaymentDate.IsZero() {
		input.PaymentDate = time.Now()
	}

	if input.TransactionID != nil && *input.TransactionID != "" {
		if existing, err := s.repo.FindByTransactionID(ctx, *input.TransactionID); err == nil {
			return existing, nil
		}
	}

	loan, err := s.loanRepo.FindByID(ctx, input.LoanID)
	if err != nil {
		return nil, ErrNotFound
	}
	if !loan.IsOpen() {
		return nil, NewInvariantViolation(
			fmt.Sprintf("cannot record a repayment on a %s loan", loan.Status))
	}

	installments, err := s.installmentRepo.FindByLoan(ctx, loan.ID)
	if err != nil {
		return nil, NewPersistenceError("load schedule", err)
	}

	// Allocate oldest first
	remaining := input.Amount
	var touched []*models.Installment
	for i := range installments {
		if remaining <= 0 {
			break
		}
		inst := &installments[i]
		if inst.IsSettled() {
			continue
		}

		due := inst.Remaining()
		applied := due
		if remaining < due {
			applied = remaining
		}
		inst.PaidAmount += applied
		remaining -= applied

		if inst.Remaining() <= 0 {
			paidAt := input.PaymentDate
			inst.PaidAt = &paidAt
			if input.PaymentDate.After(inst.DueDate) {
				inst.Status = models.InstallmentStatusLatePaid
			} else {
				inst.Status = models.InstallmentStatusPaid
			}
		}
		touched = append(touched, inst)
	}

	// Update loan figures; the balance never goes below zero
	loan.PaidAmount += input.Amount
	outstanding := loan.TotalRepayable - loan.PaidAmount
	if outstanding < 0 {
		outstanding = 0
	}
	loan.OutstandingBalance = outstanding

	// Recompute arrears from what is still unpaid
	maxOverdue := 0
	for i := range installments {
		if days := installments[i].OverdueDays(time.Now()); days > maxOverdue {
			maxOverdue = days
		}
	}
	loan.DaysInArrears = maxOverdue

	fsm := statemachine.NewLoanFSM(loan)
	settled := false
	if loan.MaySettle() {
		if err := fsm.Settle(ctx); err != nil {
			return nil, NewInvariantViolation(err.Error())
		}
		now := time.Now()
		loan.SettledAt = &now
		settled = true
	} else if maxOverdue == 0 && loan.MayClearArrears() {
		if err := fsm.ClearArrears(ctx); err != nil {
			return nil, NewInvariantViolation(err.Error())
		}
	}

	// Claim the loan row first; a lost race leaves the schedule untouched
	ok, err := s.loanRepo.UpdateWithVersion(ctx, loan, loan.LockVersion)
	if err != nil {
		return nil, NewPersistenceError("update loan", err)
	}
	if !ok {
		return nil, ErrStaleState
	}

	for _, inst := range touched {
		if err := s.installmentRepo.Update(ctx, inst); err != nil {
			return nil, NewPersistenceError("update installment", err)
		}
	}

	repayment := &models.Repayment{
		LoanID:        loan.ID,
		Amount:        input.Amount,
		PaymentDate:   input.PaymentDate,
		Method:        input.Method,
		TransactionID: input.TransactionID,
		ReceivedByID:  input.ReceivedByID,
		Notes:         input.Notes,
	}
	if err := s.repo.Create(ctx, repayment); err != nil {
		return nil, NewPersistenceError("create repayment", err)
	}

	clientID := loan.ClientID
	amount := input.Amount
	balance := loan.OutstandingBalance
	s.worker.EnqueueAsync(func(ctx context.Context) error {
		return s.notificationSvc.NotifyUser(ctx, clientID,
			"Payment received",
			fmt.Sprintf("KES %.0f received. Outstanding balance: KES %.0f", amount, balance),
			models.NotificationTypeRepaymentPosted)
	})

	if settled {
		s.worker.EnqueueAsync(func(ctx context.Context) error {
			return s.notificationSvc.NotifyUser(ctx, clientID,
				"Loan fully repaid",
				"Congratulations, your loan has been fully repaid",
				models.NotificationTypeLoanSettled)
		})
	}

	actorID := loan.ClientID
	if input.ReceivedByID != nil {
		actorID = *input.ReceivedByID
	}
	s.auditSvc.Log(ctx, actorID, "CREATE", "Repayment", repayment.ID,
		fmt.Sprintf("Repayment of KES %.0f on loan %s via %s", input.Amount, loan.Reference, input.Method), "", "")

	return repayment, nil
}
