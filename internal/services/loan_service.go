package services

import (
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"time"

	"github.com/google/uuid"
	"github.com/kopesha/kopesha-api/internal/jobs"
	"github.com/kopesha/kopesha-api/internal/models"
	"github.com/kopesha/kopesha-api/internal/repository"
	"github.com/kopesha/kopesha-api/internal/statemachine"
	"github.com/kopesha/kopesha-api/internal/storage"
)

// LoanService drives the loan lifecycle from application to settlement.
// Every state transition is validated by the FSM and persisted with a
// lock_version check, so two officers acting on the same loan cannot both
// win.
type LoanService struct {
	repo            repository.LoanRepository
	productRepo     repository.ProductRepository
	userRepo        repository.UserRepository
	installmentRepo repository.InstallmentRepository
	sourceRepo      repository.PaymentSourceRepository
	notificationSvc *NotificationService
	auditSvc        *AuditService
	storage         *storage.LocalStorage
	worker          *jobs.Worker
	scheduleSvc     *ScheduleService
	riskSvc         *RiskService
}

func NewLoanService(
	repo repository.LoanRepository,
	productRepo repository.ProductRepository,
	userRepo repository.UserRepository,
	installmentRepo repository.InstallmentRepository,
	sourceRepo repository.PaymentSourceRepository,
	notificationSvc *NotificationService,
	auditSvc *AuditService,
	storage *storage.LocalStorage,
	worker *jobs.Worker,
) *LoanService {
	return &LoanService{
		repo:            repo,
		productRepo:     productRepo,
		userRepo:        userRepo,
		installmentRepo: installmentRepo,
		sourceRepo:      sourceRepo,
		notificationSvc: notificationSvc,
		auditSvc:        auditSvc,
		storage:         storage,
		worker:          worker,
		scheduleSvc:     NewScheduleService(),
		riskSvc:         NewRiskService(),
	}
}

// FindByID gets a loan by ID
func (s *LoanService) FindByID(ctx context.Context, id uint) (*models.Loan, error) {
	return s.repo.FindByID(ctx, id)
}

// FindByIDWithDetails gets a loan with client, product, schedule and history
func (s *LoanService) FindByIDWithDetails(ctx context.Context, id uint) (*models.Loan, error) {
	return s.repo.FindByIDWithDetails(ctx, id)
}

func (s *LoanService) List(ctx context.Context, query *repository.LoanQuery) ([]models.Loan, int64, error) {
	return s.repo.List(ctx, query)
}

func (s *LoanService) GetStats(ctx context.Context) (*repository.LoanStats, error) {
	return s.repo.GetStats(ctx)
}

// ApplyLoanInput carries a new loan application
type ApplyLoanInput struct {
	ClientID              uint
	ProductID             uint
	PrincipalAmount       float64
	TermMonths            int
	Purpose               *string
	GroupID               *uint
	OfficerID             *uint
	GuarantorName         *string
	GuarantorPhone        *string
	CollateralDescription *string
	CollateralValue       *float64
}

// Apply registers a loan application. The product's current rate and method
// are copied onto the loan, the risk rubric runs once and its result is
// persisted, and the repayment quote (totals and installment figure) is
// computed up front. Schedule rows are only written at disbursement.
func (s *LoanService) Apply(ctx context.Context, input *ApplyLoanInput) (*models.Loan, error) {
	client, err := s.userRepo.FindByID(ctx, input.ClientID)
	if err != nil {
		return nil, ErrNotFound
	}
	if !client.IsActive() {
		return nil, NewValidationError("client_id", "client account is not active")
	}

	product, err := s.productRepo.FindByID(ctx, input.ProductID)
	if err != nil {
		return nil, ErrNotFound
	}
	if !product.Active {
		return nil, NewValidationError("product_id", "product is not active")
	}
	if !product.AllowsAmount(input.PrincipalAmount) {
		return nil, NewValidationError("principal_amount",
			fmt.Sprintf("amount must be between %.0f and %.0f", product.MinAmount, product.MaxAmount))
	}

	termMonths := input.TermMonths
	if termMonths == 0 {
		termMonths = product.TermMonths
	}
	if termMonths <= 0 {
		return nil, NewValidationError("term_months", "must be greater than zero")
	}

	if product.GuarantorRequired && (input.GuarantorName == nil || *input.GuarantorName == "") {
		return nil, NewValidationError("guarantor_name", "product requires a guarantor")
	}
	if product.CollateralRequired && (input.CollateralDescription == nil || *input.CollateralDescription == "") {
		return nil, NewValidationError("collateral_description", "product requires collateral")
	}

	loan := &models.Loan{
		Reference:             uuid.New().String(),
		ClientID:              client.ID,
		ProductID:             product.ID,
		GroupID:               input.GroupID,
		OfficerID:             input.OfficerID,
		PrincipalAmount:       input.PrincipalAmount,
		InterestRate:          product.InterestRate,
		InterestMethod:        product.InterestMethod,
		TermMonths:            termMonths,
		Status:                models.LoanStatusPending,
		Purpose:               input.Purpose,
		GuarantorName:         input.GuarantorName,
		GuarantorPhone:        input.GuarantorPhone,
		CollateralDescription: input.CollateralDescription,
		CollateralValue:       input.CollateralValue,
		ApplicationDate:       time.Now(),
	}

	loan.RiskScore, loan.RiskLevel = s.riskSvc.Score(loan, client)

	quote, err := s.scheduleSvc.Generate(ctx, loan, product, loan.ApplicationDate)
	if err != nil {
		return nil, err
	}
	loan.TotalInterest = quote.TotalInterest
	loan.TotalRepayable = quote.TotalRepayable
	loan.InstallmentAmount = quote.InstallmentAmount

	if err := s.repo.Create(ctx, loan); err != nil {
		return nil, NewPersistenceError("create loan", err)
	}

	// Notify staff asynchronously
	s.worker.EnqueueAsync(func(ctx context.Context) error {
		return s.notificationSvc.NotifyAdmins(ctx,
			"New loan application",
			fmt.Sprintf("%s applied for KES %.0f (%s risk)", client.FullName, loan.PrincipalAmount, loan.RiskLevel),
			models.NotificationTypeNewUser)
	})

	s.auditSvc.Log(ctx, client.ID, "CREATE", "Loan", loan.ID,
		fmt.Sprintf("Loan application %s for KES %.0f over %d months", loan.Reference, loan.PrincipalAmount, loan.TermMonths), "", "")

	return loan, nil
}

// saveTransition persists a status change with the optimistic lock. A lost
// race surfaces as ErrStaleState instead of silently overwriting.
func (s *LoanService) saveTransition(ctx context.Context, loan *models.Loan) error {
	ok, err := s.repo.UpdateWithVersion(ctx, loan, loan.LockVersion)
	if err != nil {
		return NewPersistenceError("update loan", err)
	}
	if !ok {
		return ErrStaleState
	}
	return nil
}

// Review moves a pending loan into review
func (s *LoanService) Review(ctx context.Context, id uint, actorID uint) (*models.Loan, error) {
	loan, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, ErrNotFound
	}

	fsm := statemachine.NewLoanFSM(loan)
	if err := fsm.Review(ctx); err != nil {
		return nil, NewInvariantViolation(err.Error())
	}

	if err := s.saveTransition(ctx, loan); err != nil {
		return nil, err
	}

	s.auditSvc.Log(ctx, actorID, "REVIEW", "Loan", loan.ID,
		fmt.Sprintf("Loan %s moved to review", loan.Reference), "", "")

	return loan, nil
}

// Escalate sends a reviewed loan up for approval
func (s *LoanService) Escalate(ctx context.Context, id uint, actorID uint) (*models.Loan, error) {
	loan, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, ErrNotFound
	}

	fsm := statemachine.NewLoanFSM(loan)
	if err := fsm.Escalate(ctx); err != nil {
		return nil, NewInvariantViolation(err.Error())
	}

	if err := s.saveTransition(ctx, loan); err != nil {
		return nil, err
	}

	s.auditSvc.Log(ctx, actorID, "ESCALATE", "Loan", loan.ID,
		fmt.Sprintf("Loan %s escalated for approval", loan.Reference), "", "")

	return loan, nil
}

// Approve approves a loan awaiting a decision
func (s *LoanService) Approve(ctx context.Context, id uint, actorID uint) (*models.Loan, error) {
	loan, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, ErrNotFound
	}

	fsm := statemachine.NewLoanFSM(loan)
	if err := fsm.Approve(ctx); err != nil {
		return nil, NewInvariantViolation(err.Error())
	}

	now := time.Now()
	loan.ApprovedAt = &now

	if err := s.saveTransition(ctx, loan); err != nil {
		return nil, err
	}

	s.worker.EnqueueAsync(func(ctx context.Context) error {
		return s.notificationSvc.NotifyUser(ctx, loan.ClientID,
			"Loan approved",
			fmt.Sprintf("Your loan of KES %.0f has been approved and is awaiting disbursement", loan.PrincipalAmount),
			models.NotificationTypeLoanApproved)
	})

	s.auditSvc.Log(ctx, actorID, "APPROVE", "Loan", loan.ID,
		fmt.Sprintf("Loan %s approved for KES %.0f", loan.Reference, loan.PrincipalAmount), "", "")

	return loan, nil
}

// Reject declines a loan. Allowed from any state before money moves.
func (s *LoanService) Reject(ctx context.Context, id uint, reason string, actorID uint) (*models.Loan, error) {
	if reason == "" {
		return nil, NewValidationError("reason", "rejection reason is required")
	}

	loan, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, ErrNotFound
	}

	fsm := statemachine.NewLoanFSM(loan)
	if err := fsm.Reject(ctx); err != nil {
		return nil, NewInvariantViolation(err.Error())
	}

	loan.RejectionReason = &reason

	if err := s.saveTransition(ctx, loan); err != nil {
		return nil, err
	}

	s.worker.EnqueueAsync(func(ctx context.Context) error {
		return s.notificationSvc.NotifyUser(ctx, loan.ClientID,
			"Loan application declined",
			"Your loan application was declined: "+reason,
			models.NotificationTypeLoanRejected)
	})

	s.auditSvc.Log(ctx, actorID, "REJECT", "Loan", loan.ID,
		fmt.Sprintf("Loan %s rejected: %s", loan.Reference, reason), "", "")

	return loan, nil
}

// Disburse pays an approved loan out of a funding source and writes the
// repayment schedule. The debit runs as a single conditional update, so an
// inactive or underfunded source fails the disbursement rather than
// overdrawing.
func (s *LoanService) Disburse(ctx context.Context, id uint, sourceID uint, actorID uint) (*models.Loan, error) {
	loan, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, ErrNotFound
	}
	if !loan.MayDisburse() {
		return nil, NewInvariantViolation(
			fmt.Sprintf("loan cannot be disbursed in current state: %s", loan.Status))
	}

	product, err := s.productRepo.FindByID(ctx, loan.ProductID)
	if err != nil {
		return nil, ErrNotFound
	}

	source, err := s.sourceRepo.FindByID(ctx, sourceID)
	if err != nil {
		return nil, ErrNotFound
	}
	if !source.CanFund(loan.PrincipalAmount) {
		return nil, NewInvariantViolation(
			"disbursement requires an active funding source with sufficient balance")
	}

	debited, err := s.sourceRepo.Debit(ctx, source.ID, loan.PrincipalAmount)
	if err != nil {
		return nil, NewPersistenceError("debit funding source", err)
	}
	if !debited {
		// Another disbursement drained the source between the check and the debit
		return nil, NewInvariantViolation(
			"disbursement requires an active funding source with sufficient balance")
	}

	now := time.Now()
	schedule, err := s.scheduleSvc.Generate(ctx, loan, product, now)
	if err != nil {
		s.sourceRepo.Credit(ctx, source.ID, loan.PrincipalAmount)
		return nil, err
	}

	fsm := statemachine.NewLoanFSM(loan)
	if err := fsm.Disburse(ctx); err != nil {
		s.sourceRepo.Credit(ctx, source.ID, loan.PrincipalAmount)
		return nil, NewInvariantViolation(err.Error())
	}

	// Write the schedule before the status flips, so a failure here leaves
	// the loan approved and the source refunded instead of disbursed with no
	// installments.
	for i := range schedule.Installments {
		schedule.Installments[i].LoanID = loan.ID
	}
	if err := s.installmentRepo.CreateBatch(ctx, schedule.Installments); err != nil {
		s.sourceRepo.Credit(ctx, source.ID, loan.PrincipalAmount)
		return nil, NewPersistenceError("create schedule", err)
	}

	loan.DisbursedAt = &now
	loan.PaymentSourceID = &source.ID
	loan.TotalInterest = schedule.TotalInterest
	loan.TotalRepayable = schedule.TotalRepayable
	loan.InstallmentAmount = schedule.InstallmentAmount
	loan.OutstandingBalance = schedule.TotalRepayable

	if err := s.saveTransition(ctx, loan); err != nil {
		s.sourceRepo.Credit(ctx, source.ID, loan.PrincipalAmount)
		s.installmentRepo.DeleteByLoan(ctx, loan.ID)
		return nil, err
	}

	s.worker.EnqueueAsync(func(ctx context.Context) error {
		return s.notificationSvc.NotifyUser(ctx, loan.ClientID,
			"Loan disbursed",
			fmt.Sprintf("KES %.0f has been disbursed. First installment of KES %.0f is due %s",
				loan.PrincipalAmount, loan.InstallmentAmount,
				schedule.Installments[0].DueDate.Format("2 Jan 2006")),
			models.NotificationTypeLoanDisbursed)
	})

	s.auditSvc.Log(ctx, actorID, "DISBURSE", "Loan", loan.ID,
		fmt.Sprintf("Loan %s disbursed from %s", loan.Reference, source.Name), "", "")

	return loan, nil
}

// Activate marks a disbursed loan as running
func (s *LoanService) Activate(ctx context.Context, id uint, actorID uint) (*models.Loan, error) {
	loan, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, ErrNotFound
	}

	fsm := statemachine.NewLoanFSM(loan)
	if err := fsm.Activate(ctx); err != nil {
		return nil, NewInvariantViolation(err.Error())
	}

	if err := s.saveTransition(ctx, loan); err != nil {
		return nil, err
	}

	s.auditSvc.Log(ctx, actorID, "ACTIVATE", "Loan", loan.ID,
		fmt.Sprintf("Loan %s activated", loan.Reference), "", "")

	return loan, nil
}

// AssignOfficer sets the managing loan officer
func (s *LoanService) AssignOfficer(ctx context.Context, id uint, officerID uint, actorID uint) (*models.Loan, error) {
	loan, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, ErrNotFound
	}

	officer, err := s.userRepo.FindByID(ctx, officerID)
	if err != nil {
		return nil, ErrNotFound
	}
	if !officer.IsOfficer() && !officer.IsAdmin() {
		return nil, NewValidationError("officer_id", "user is not a loan officer")
	}

	loan.OfficerID = &officer.ID
	if err := s.saveTransition(ctx, loan); err != nil {
		return nil, err
	}

	s.auditSvc.Log(ctx, actorID, "UPDATE", "Loan", loan.ID,
		fmt.Sprintf("Loan %s assigned to %s", loan.Reference, officer.FullName), "", "")

	return loan, nil
}

// BulkAdvanceResult reports the outcome for one loan in a bulk advance
type BulkAdvanceResult struct {
	LoanID     uint   `json:"loan_id"`
	FromStatus string `json:"from_status"`
	ToStatus   string `json:"to_status"`
	Advanced   bool   `json:"advanced"`
	Error      string `json:"error,omitempty"`
}

// BulkAdvance moves each loan exactly one step along the happy path. Loans
// sitting at approved need a funding source to step into disbursed; when none
// is given those loans are reported as skipped rather than failing the whole
// batch.
func (s *LoanService) BulkAdvance(ctx context.Context, ids []uint, sourceID *uint, actorID uint) []BulkAdvanceResult {
	results := make([]BulkAdvanceResult, 0, len(ids))

	for _, id := range ids {
		loan, err := s.repo.FindByID(ctx, id)
		if err != nil {
			results = append(results, BulkAdvanceResult{LoanID: id, Error: "loan not found"})
			continue
		}

		result := BulkAdvanceResult{LoanID: id, FromStatus: loan.Status, ToStatus: loan.Status}
		event := statemachine.NewLoanFSM(loan).NextEvent()

		var advanced *models.Loan
		switch event {
		case statemachine.EventReview:
			advanced, err = s.Review(ctx, id, actorID)
		case statemachine.EventEscalate:
			advanced, err = s.Escalate(ctx, id, actorID)
		case statemachine.EventApprove:
			advanced, err = s.Approve(ctx, id, actorID)
		case statemachine.EventDisburse:
			if sourceID == nil {
				err = NewInvariantViolation("funding source required to disburse")
			} else {
				advanced, err = s.Disburse(ctx, id, *sourceID, actorID)
			}
		case statemachine.EventActivate:
			advanced, err = s.Activate(ctx, id, actorID)
		default:
			err = NewInvariantViolation("loan has no next step from status " + loan.Status)
		}

		if err != nil {
			result.Error = err.Error()
		} else if advanced != nil {
			result.ToStatus = advanced.Status
			result.Advanced = true
		}
		results = append(results, result)
	}

	return results
}

// UpdateArrears sweeps open loans, refreshes days-in-arrears from each
// schedule and flips the arrears flag both ways. Runs on a schedule; loans
// that lose a version race are skipped and picked up next sweep.
func (s *LoanService) UpdateArrears(ctx context.Context) error {
	loans, err := s.repo.FindOpenLoans(ctx)
	if err != nil {
		return NewPersistenceError("load open loans", err)
	}

	now := time.Now()
	for i := range loans {
		loan := &loans[i]

		maxOverdue := 0
		for j := range loan.Installments {
			inst := &loan.Installments[j]
			days := inst.OverdueDays(now)
			if days > maxOverdue {
				maxOverdue = days
			}
			if days > 0 && inst.Status == models.InstallmentStatusPending {
				inst.Status = models.InstallmentStatusOverdue
				if err := s.installmentRepo.Update(ctx, inst); err != nil {
					return NewPersistenceError("update installment", err)
				}
			}
		}

		wasInArrears := loan.Status == models.LoanStatusInArrears
		loan.DaysInArrears = maxOverdue

		fsm := statemachine.NewLoanFSM(loan)
		if maxOverdue > 0 && loan.MayFlagArrears() {
			if err := fsm.FlagArrears(ctx); err != nil {
				continue
			}
		} else if maxOverdue == 0 && loan.MayClearArrears() {
			if err := fsm.ClearArrears(ctx); err != nil {
				continue
			}
		}

		if err := s.saveTransition(ctx, loan); err != nil {
			if err == ErrStaleState {
				continue
			}
			return err
		}

		if !wasInArrears && loan.Status == models.LoanStatusInArrears {
			clientID := loan.ClientID
			days := maxOverdue
			s.worker.EnqueueAsync(func(ctx context.Context) error {
				return s.notificationSvc.NotifyUser(ctx, clientID,
					"Loan in arrears",
					fmt.Sprintf("Your loan is %d days overdue. Please make a payment to avoid penalties", days),
					models.NotificationTypeLoanInArrears)
			})
		}
	}

	return nil
}

// Documents returns the collateral document paths stored on a loan
func (s *LoanService) Documents(ctx context.Context, id uint) ([]string, error) {
	loan, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, ErrNotFound
	}

	var paths []string
	if loan.DocumentPaths != nil && *loan.DocumentPaths != "" {
		if err := json.Unmarshal([]byte(*loan.DocumentPaths), &paths); err != nil {
			return nil, NewPersistenceError("decode document paths", err)
		}
	}
	return paths, nil
}

// UploadDocument stores a collateral or KYC document against a loan
func (s *LoanService) UploadDocument(ctx context.Context, id uint, file multipart.File, header *multipart.FileHeader, actorID uint) (string, error) {
	if header.Size > storage.MaxFileSize() {
		return "", NewValidationError("document", "file exceeds the 10MB limit")
	}
	if !storage.IsValidContentType(header.Header.Get("Content-Type")) {
		return "", NewValidationError("document", "only PDF, JPG and PNG files are accepted")
	}

	loan, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return "", ErrNotFound
	}
	if loan.IsTerminal() {
		return "", NewInvariantViolation("documents cannot be added to a closed loan")
	}

	path, err := s.storage.Upload(file, header, "loans")
	if err != nil {
		return "", NewPersistenceError("store document", err)
	}

	var paths []string
	if loan.DocumentPaths != nil && *loan.DocumentPaths != "" {
		_ = json.Unmarshal([]byte(*loan.DocumentPaths), &paths)
	}
	paths = append(paths, path)

	encoded, err := json.Marshal(paths)
	if err != nil {
		return "", NewPersistenceError("encode document paths", err)
	}
	joined := string(encoded)
	loan.DocumentPaths = &joined

	if err := s.saveTransition(ctx, loan); err != nil {
		s.storage.Delete(path)
		return "", err
	}

	s.auditSvc.Log(ctx, actorID, "UPLOAD_DOCUMENT", "Loan", loan.ID,
		fmt.Sprintf("Document %s attached to loan %s", header.Filename, loan.Reference), "", "")

	return path, nil
}
