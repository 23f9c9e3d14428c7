package billing

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/suiftly/sealctl/internal/enum"
	"github.com/suiftly/sealctl/internal/payment"
	"github.com/suiftly/sealctl/internal/store"
)

// chainOutcome is the result of dispatching a charge through the
// provider chain: the invoice status to persist, and (if applicable)
// the paymentActionUrl / the reference provider that paid it.
type chainOutcome struct {
	Status           enum.InvoiceStatus
	PaymentActionURL string
	ErrorCode        enum.ChargeErrorCode
	TxDigest         string
}

// dispatchProviderChain implements §4.5.4. Credits are applied by the
// caller before this is invoked; amountCents here is always the
// provider-facing remainder. On a successful charge, an InvoicePayment
// row is recorded and billing record fields are updated in place.
func (e *Engine) dispatchProviderChain(ctx context.Context, tx *sql.Tx, customerID string, billingRecordID string, amountCents int64, description string) (chainOutcome, error) {
	if amountCents <= 0 {
		return chainOutcome{Status: enum.InvoicePaid}, nil
	}

	for _, provider := range e.chain {
		configured, err := provider.IsConfigured(ctx, customerID)
		if err != nil {
			return chainOutcome{}, err
		}
		if !configured {
			continue
		}

		result, err := provider.Charge(ctx, customerID, amountCents, billingRecordID, description)
		if err != nil {
			return chainOutcome{}, err
		}

		if result.Success {
			if err := store.CreateInvoicePayment(ctx, tx, &store.InvoicePayment{
				ID:              uuid.NewString(),
				BillingRecordID: billingRecordID,
				SourceType:      enum.PaymentSourceProvider,
				ReferenceID:     sql.NullString{String: result.ReferenceID, Valid: result.ReferenceID != ""},
				AmountUSDCents:  amountCents,
			}); err != nil {
				return chainOutcome{}, err
			}
			return chainOutcome{Status: enum.InvoicePaid, TxDigest: result.TxDigest}, nil
		}

		if result.ErrorCode == enum.ErrRequiresAction {
			// Do not try subsequent providers; user action pending.
			return chainOutcome{
				Status:           enum.InvoicePending,
				PaymentActionURL: result.HostedInvoiceURL,
				ErrorCode:        result.ErrorCode,
			}, nil
		}

		// Hard decline / insufficient funds: try next provider.
	}

	return chainOutcome{Status: enum.InvoiceFailed, ErrorCode: enum.ErrAccountNotConfigured}, nil
}
