package statemachine

import (
	"context"
	"testing"

	"github.com/kopesha/kopesha-api/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestLoanFSM_HappyPath(t *testing.T) {
	loan := &models.Loan{Status: models.LoanStatusPending}

	ctx := context.Background()
	assert.NoError(t, NewLoanFSM(loan).Review(ctx))
	assert.Equal(t, models.LoanStatusUnderReview, loan.Status)

	assert.NoError(t, NewLoanFSM(loan).Escalate(ctx))
	assert.Equal(t, models.LoanStatusNeedApproval, loan.Status)

	assert.NoError(t, NewLoanFSM(loan).Approve(ctx))
	assert.Equal(t, models.LoanStatusApproved, loan.Status)

	assert.NoError(t, NewLoanFSM(loan).Disburse(ctx))
	assert.Equal(t, models.LoanStatusDisbursed, loan.Status)

	assert.NoError(t, NewLoanFSM(loan).Activate(ctx))
	assert.Equal(t, models.LoanStatusActive, loan.Status)
}

func TestLoanFSM_ApproveRequiresEscalation(t *testing.T) {
	// A loan still under review has not been escalated, so it cannot be
	// approved yet
	loan := &models.Loan{Status: models.LoanStatusUnderReview}
	machine := NewLoanFSM(loan)

	assert.False(t, machine.Can(EventApprove))

	err := machine.Approve(context.Background())
	assert.Error(t, err)
	assert.Equal(t, models.LoanStatusUnderReview, loan.Status)

	escalated := &models.Loan{Status: models.LoanStatusNeedApproval}
	assert.True(t, NewLoanFSM(escalated).Can(EventApprove))
}

func TestLoanFSM_RejectFromPreDisbursement(t *testing.T) {
	ctx := context.Background()

	for _, status := range []string{
		models.LoanStatusPending,
		models.LoanStatusUnderReview,
		models.LoanStatusNeedApproval,
		models.LoanStatusApproved,
	} {
		loan := &models.Loan{Status: status}
		assert.NoError(t, NewLoanFSM(loan).Reject(ctx), status)
		assert.Equal(t, models.LoanStatusRejected, loan.Status)
	}

	disbursed := &models.Loan{Status: models.LoanStatusDisbursed}
	assert.Error(t, NewLoanFSM(disbursed).Reject(ctx))
}

func TestLoanFSM_ArrearsCycle(t *testing.T) {
	ctx := context.Background()
	loan := &models.Loan{Status: models.LoanStatusActive, OutstandingBalance: 12000}

	assert.NoError(t, NewLoanFSM(loan).FlagArrears(ctx))
	assert.Equal(t, models.LoanStatusInArrears, loan.Status)

	assert.NoError(t, NewLoanFSM(loan).ClearArrears(ctx))
	assert.Equal(t, models.LoanStatusActive, loan.Status)
}

func TestLoanFSM_SettleNeedsClearedBalance(t *testing.T) {
	ctx := context.Background()

	owing := &models.Loan{Status: models.LoanStatusActive, OutstandingBalance: 500}
	assert.Error(t, NewLoanFSM(owing).Settle(ctx))

	cleared := &models.Loan{Status: models.LoanStatusInArrears, OutstandingBalance: 0}
	assert.NoError(t, NewLoanFSM(cleared).Settle(ctx))
	assert.Equal(t, models.LoanStatusFullyPaid, cleared.Status)
}

func TestLoanFSM_NextEvent(t *testing.T) {
	cases := map[string]string{
		models.LoanStatusPending:      EventReview,
		models.LoanStatusUnderReview:  EventEscalate,
		models.LoanStatusNeedApproval: EventApprove,
		models.LoanStatusApproved:     EventDisburse,
		models.LoanStatusDisbursed:    EventActivate,
		models.LoanStatusActive:       "",
		models.LoanStatusFullyPaid:    "",
		models.LoanStatusRejected:     "",
	}
	for status, event := range cases {
		loan := &models.Loan{Status: status}
		assert.Equal(t, event, NewLoanFSM(loan).NextEvent(), status)
	}
}
