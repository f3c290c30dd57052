package statemachine

import (
	"context"
	"fmt"

	"github.com/kopesha/kopesha-api/internal/models"
	"github.com/looplab/fsm"
)

// Loan lifecycle event names
const (
	EventReview       = "review"
	EventEscalate     = "escalate"
	EventApprove      = "approve"
	EventDisburse     = "disburse"
	EventActivate     = "activate"
	EventReject       = "reject"
	EventFlagArrears  = "flag_arrears"
	EventClearArrears = "clear_arrears"
	EventSettle       = "settle"
)

// LoanFSM wraps a loan with its lifecycle state machine
type LoanFSM struct {
	loan *models.Loan
	fsm  *fsm.FSM
}

// NewLoanFSM creates a new loan state machine seeded from the loan's
// persisted status
func NewLoanFSM(loan *models.Loan) *LoanFSM {
	lfsm := &LoanFSM{
		loan: loan,
	}

	lfsm.fsm = fsm.NewFSM(
		loan.Status,
		fsm.Events{
			// pending → under_review
			{Name: EventReview, Src: []string{models.LoanStatusPending}, Dst: models.LoanStatusUnderReview},

			// pending/under_review → need_approval
			{Name: EventEscalate, Src: []string{models.LoanStatusPending, models.LoanStatusUnderReview}, Dst: models.LoanStatusNeedApproval},

			// need_approval → approved
			{Name: EventApprove, Src: []string{models.LoanStatusNeedApproval}, Dst: models.LoanStatusApproved},

			// approved → disbursed
			{Name: EventDisburse, Src: []string{models.LoanStatusApproved}, Dst: models.LoanStatusDisbursed},

			// disbursed → active
			{Name: EventActivate, Src: []string{models.LoanStatusDisbursed}, Dst: models.LoanStatusActive},

			// any pre-disbursement state → rejected
			{Name: EventReject, Src: []string{models.LoanStatusPending, models.LoanStatusUnderReview, models.LoanStatusNeedApproval, models.LoanStatusApproved}, Dst: models.LoanStatusRejected},

			// active → in_arrears and back
			{Name: EventFlagArrears, Src: []string{models.LoanStatusActive}, Dst: models.LoanStatusInArrears},
			{Name: EventClearArrears, Src: []string{models.LoanStatusInArrears}, Dst: models.LoanStatusActive},

			// disbursed/active/in_arrears → fully_paid, balance permitting
			{Name: EventSettle, Src: []string{models.LoanStatusDisbursed, models.LoanStatusActive, models.LoanStatusInArrears}, Dst: models.LoanStatusFullyPaid},
		},
		fsm.Callbacks{},
	)

	return lfsm
}

// Review transitions loan to under_review state
func (l *LoanFSM) Review(ctx context.Context) error {
	if !l.loan.MayReview() {
		return fmt.Errorf("loan cannot be reviewed in current state: %s", l.loan.Status)
	}

	if err := l.fsm.Event(ctx, EventReview); err != nil {
		return fmt.Errorf("failed to review loan: %w", err)
	}

	l.loan.Status = l.fsm.Current()
	return nil
}

// Escalate transitions loan to need_approval state
func (l *LoanFSM) Escalate(ctx context.Context) error {
	if !l.loan.MayEscalate() {
		return fmt.Errorf("loan cannot be escalated in current state: %s", l.loan.Status)
	}

	if err := l.fsm.Event(ctx, EventEscalate); err != nil {
		return fmt.Errorf("failed to escalate loan: %w", err)
	}

	l.loan.Status = l.fsm.Current()
	return nil
}

// Approve transitions loan to approved state
func (l *LoanFSM) Approve(ctx context.Context) error {
	if !l.loan.MayApprove() {
		return fmt.Errorf("loan cannot be approved in current state: %s", l.loan.Status)
	}

	if err := l.fsm.Event(ctx, EventApprove); err != nil {
		return fmt.Errorf("failed to approve loan: %w", err)
	}

	l.loan.Status = l.fsm.Current()
	return nil
}

// Disburse transitions loan to disbursed state. Funding checks live in the
// service layer; the machine only enforces ordering.
func (l *LoanFSM) Disburse(ctx context.Context) error {
	if !l.loan.MayDisburse() {
		return fmt.Errorf("loan cannot be disbursed in current state: %s", l.loan.Status)
	}

	if err := l.fsm.Event(ctx, EventDisburse); err != nil {
		return fmt.Errorf("failed to disburse loan: %w", err)
	}

	l.loan.Status = l.fsm.Current()
	return nil
}

// Activate transitions loan to active state
func (l *LoanFSM) Activate(ctx context.Context) error {
	if !l.loan.MayActivate() {
		return fmt.Errorf("loan cannot be activated in current state: %s", l.loan.Status)
	}

	if err := l.fsm.Event(ctx, EventActivate); err != nil {
		return fmt.Errorf("failed to activate loan: %w", err)
	}

	l.loan.Status = l.fsm.Current()
	return nil
}

// Reject transitions loan to rejected state
func (l *LoanFSM) Reject(ctx context.Context) error {
	if !l.loan.MayReject() {
		return fmt.Errorf("loan cannot be rejected in current state: %s", l.loan.Status)
	}

	if err := l.fsm.Event(ctx, EventReject); err != nil {
		return fmt.Errorf("failed to reject loan: %w", err)
	}

	l.loan.Status = l.fsm.Current()
	return nil
}

// FlagArrears transitions loan from active to in_arrears
func (l *LoanFSM) FlagArrears(ctx context.Context) error {
	if !l.loan.MayFlagArrears() {
		return fmt.Errorf("loan cannot be flagged for arrears in current state: %s", l.loan.Status)
	}

	if err := l.fsm.Event(ctx, EventFlagArrears); err != nil {
		return fmt.Errorf("failed to flag loan arrears: %w", err)
	}

	l.loan.Status = l.fsm.Current()
	return nil
}

// ClearArrears transitions loan from in_arrears back to active
func (l *LoanFSM) ClearArrears(ctx context.Context) error {
	if !l.loan.MayClearArrears() {
		return fmt.Errorf("loan cannot clear arrears in current state: %s", l.loan.Status)
	}

	if err := l.fsm.Event(ctx, EventClearArrears); err != nil {
		return fmt.Errorf("failed to clear loan arrears: %w", err)
	}

	l.loan.Status = l.fsm.Current()
	return nil
}

// Settle transitions loan to fully_paid state
func (l *LoanFSM) Settle(ctx context.Context) error {
	if !l.loan.MaySettle() {
		return fmt.Errorf("loan cannot be settled: outstanding balance must be <= 0")
	}

	if err := l.fsm.Event(ctx, EventSettle); err != nil {
		return fmt.Errorf("failed to settle loan: %w", err)
	}

	l.loan.Status = l.fsm.Current()
	return nil
}

// Current returns the current state
func (l *LoanFSM) Current() string {
	return l.fsm.Current()
}

// Can checks if a transition is possible
func (l *LoanFSM) Can(event string) bool {
	return l.fsm.Can(event)
}

// NextEvent returns the single happy-path event from the loan's current
// state, or an empty string when the loan is terminal or already active.
// Used by the bulk pipeline advance.
func (l *LoanFSM) NextEvent() string {
	switch l.loan.Status {
	case models.LoanStatusPending:
		return EventReview
	case models.LoanStatusUnderReview:
		return EventEscalate
	case models.LoanStatusNeedApproval:
		return EventApprove
	case models.LoanStatusApproved:
		return EventDisburse
	case models.LoanStatusDisbursed:
		return EventActivate
	}
	return ""
}
