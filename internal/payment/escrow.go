package payment

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/suiftly/sealctl/internal/clock"
	"github.com/suiftly/sealctl/internal/enum"
	"github.com/suiftly/sealctl/internal/store"
)

// rollingWindow is the escrow spending-limit lookback (§4.5.7). It is
// strictly the 28-day rolling window — distinct from the calendar
// daysInMonth used by proration elsewhere (§9 Open Question 3).
const rollingWindow = 28 * 24 * time.Hour

// EscrowProvider charges against a customer's on-chain escrow balance,
// tracked here by a running balance on the Customer row plus an
// append-only EscrowTransaction ledger for the rolling spending-limit
// check and audit trail.
type EscrowProvider struct {
	db    *store.DB
	clock clock.Clock
	mock  *MockMode
}

var _ Provider = (*EscrowProvider)(nil)

func NewEscrowProvider(db *store.DB, clk clock.Clock, mock *MockMode) *EscrowProvider {
	return &EscrowProvider{db: db, clock: clk, mock: mock}
}

func (p *EscrowProvider) Kind() enum.ProviderKind { return enum.ProviderEscrow }

func (p *EscrowProvider) IsConfigured(ctx context.Context, customerID string) (bool, error) {
	c, err := store.GetCustomer(ctx, p.db, customerID)
	if err != nil {
		return false, err
	}
	return c.EscrowContractID.Valid, nil
}

func (p *EscrowProvider) CanPay(ctx context.Context, customerID string, amountCents int64) (bool, error) {
	c, err := store.GetCustomer(ctx, p.db, customerID)
	if err != nil {
		return false, err
	}
	if !c.EscrowContractID.Valid {
		return false, nil
	}
	if c.BalanceCents < amountCents {
		return false, nil
	}
	return p.withinSpendingLimit(ctx, p.db, c, amountCents)
}

func (p *EscrowProvider) withinSpendingLimit(ctx context.Context, q store.Queryer, c *store.Customer, amountCents int64) (bool, error) {
	if c.SpendingLimitCents == 0 {
		return true, nil
	}
	now := p.clock.Now()
	periodStart := now
	if c.CurrentPeriodStart.Valid {
		periodStart = c.CurrentPeriodStart.Time
	}
	if now.Sub(periodStart) >= rollingWindow {
		// A fresh 28-day period starts on the next charge; the reset
		// charge is evaluated against zero prior spend.
		return amountCents <= c.SpendingLimitCents, nil
	}
	charged, err := store.SumEscrowChargesSince(ctx, q, c.ID, periodStart)
	if err != nil {
		return false, err
	}
	return charged+amountCents <= c.SpendingLimitCents, nil
}

func (p *EscrowProvider) Charge(ctx context.Context, customerID string, amountCents int64, invoiceID, description string) (ChargeResult, error) {
	if res, injected := applyFaultInjection(ctx, p.mock); injected {
		return res, nil
	}

	var result ChargeResult
	err := store.WithTx(ctx, p.db, func(tx *sql.Tx) error {
		if err := store.LockCustomer(ctx, tx, customerID); err != nil {
			return err
		}
		c, err := store.GetCustomerForUpdate(ctx, tx, customerID)
		if err != nil {
			return err
		}
		if !c.EscrowContractID.Valid {
			result = ChargeResult{Success: false, ErrorCode: enum.ErrAccountNotConfigured, Retryable: false}
			return nil
		}

		now := p.clock.Now()
		periodStart := c.CurrentPeriodStart
		periodCharged := c.CurrentPeriodChargedCents
		if !periodStart.Valid || now.Sub(periodStart.Time) >= rollingWindow {
			periodStart = sql.NullTime{Time: now, Valid: true}
			periodCharged = 0
		}

		if ok, err := p.withinSpendingLimitLocked(c.SpendingLimitCents, periodCharged, amountCents); err != nil {
			return err
		} else if !ok {
			result = ChargeResult{Success: false, ErrorCode: enum.ErrSpendingLimitReached, Retryable: true}
			return recordEscrowFailure(ctx, tx, customerID, amountCents)
		}

		if c.BalanceCents < amountCents {
			result = ChargeResult{Success: false, ErrorCode: enum.ErrInsufficientEscrow, Retryable: true}
			return recordEscrowFailure(ctx, tx, customerID, amountCents)
		}

		newBalance := c.BalanceCents - amountCents
		if err := store.UpdateCustomerBalance(ctx, tx, customerID, newBalance, periodCharged+amountCents, periodStart); err != nil {
			return err
		}

		txDigest := "escrow_" + uuid.NewString()
		if err := store.CreateEscrowTransaction(ctx, tx, &store.EscrowTransaction{
			ID:             uuid.NewString(),
			CustomerID:     customerID,
			Kind:           enum.EscrowTxCharge,
			TxDigest:       sql.NullString{String: txDigest, Valid: true},
			AmountUSDCents: amountCents,
			Success:        true,
		}); err != nil {
			return err
		}

		result = ChargeResult{Success: true, ReferenceID: txDigest, TxDigest: txDigest}
		return nil
	})
	if err != nil {
		return ChargeResult{}, fmt.Errorf("payment: escrow charge: %w", err)
	}
	return result, nil
}

func (p *EscrowProvider) withinSpendingLimitLocked(limitCents, periodChargedCents, amountCents int64) (bool, error) {
	if limitCents == 0 {
		return true, nil
	}
	return periodChargedCents+amountCents <= limitCents, nil
}

func recordEscrowFailure(ctx context.Context, tx *sql.Tx, customerID string, amountCents int64) error {
	return store.CreateEscrowTransaction(ctx, tx, &store.EscrowTransaction{
		ID:             uuid.NewString(),
		CustomerID:     customerID,
		Kind:           enum.EscrowTxCharge,
		AmountUSDCents: amountCents,
		Success:        false,
	})
}

func (p *EscrowProvider) GetInfo(ctx context.Context, customerID string) (*DisplayInfo, error) {
	c, err := store.GetCustomer(ctx, p.db, customerID)
	if err != nil {
		return nil, err
	}
	return &DisplayInfo{
		Kind:         enum.ProviderEscrow,
		Configured:   c.EscrowContractID.Valid,
		BalanceCents: c.BalanceCents,
	}, nil
}
