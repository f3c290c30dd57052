package statemachine

import (
	"context"
	"fmt"

	"github.com/kopesha/kopesha-api/internal/models"
	"github.com/looplab/fsm"
)

// MpesaFSM wraps an STK push transaction with its state machine
type MpesaFSM struct {
	txn *models.MpesaTransaction
	fsm *fsm.FSM
}

// NewMpesaFSM creates a new M-Pesa transaction state machine
func NewMpesaFSM(txn *models.MpesaTransaction) *MpesaFSM {
	mfsm := &MpesaFSM{
		txn: txn,
	}

	mfsm.fsm = fsm.NewFSM(
		txn.Status,
		fsm.Events{
			// pending → completed
			{Name: "complete", Src: []string{models.MpesaStatusPending}, Dst: models.MpesaStatusCompleted},

			// pending → failed
			{Name: "fail", Src: []string{models.MpesaStatusPending}, Dst: models.MpesaStatusFailed},
		},
		fsm.Callbacks{},
	)

	return mfsm
}

// Complete transitions the transaction to completed state
func (m *MpesaFSM) Complete(ctx context.Context) error {
	if m.txn.IsFinal() {
		return fmt.Errorf("transaction already finalized in state: %s", m.txn.Status)
	}

	if err := m.fsm.Event(ctx, "complete"); err != nil {
		return fmt.Errorf("failed to complete transaction: %w", err)
	}

	m.txn.Status = m.fsm.Current()
	return nil
}

// Fail transitions the transaction to failed state
func (m *MpesaFSM) Fail(ctx context.Context) error {
	if m.txn.IsFinal() {
		return fmt.Errorf("transaction already finalized in state: %s", m.txn.Status)
	}

	if err := m.fsm.Event(ctx, "fail"); err != nil {
		return fmt.Errorf("failed to fail transaction: %w", err)
	}

	m.txn.Status = m.fsm.Current()
	return nil
}

// Current returns the current state
func (m *MpesaFSM) Current() string {
	return m.fsm.Current()
}
