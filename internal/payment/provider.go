// Package payment implements the uniform provider adapter (C4) over
// the escrow, Stripe, and PayPal variants. Every variant satisfies the
// same Provider interface so the billing engine's provider chain
// (§4.5.4) can iterate them without a type switch.
package payment

import (
	"context"

	"github.com/suiftly/sealctl/internal/enum"
)

// ChargeResult is the outcome of a single charge attempt.
type ChargeResult struct {
	Success          bool
	ReferenceID      string
	TxDigest         string // escrow only
	ErrorCode        enum.ChargeErrorCode
	HostedInvoiceURL string // Stripe 3DS handoff
	Retryable        bool
}

// DisplayInfo is a provider's user-facing payment-instrument summary.
// Escrow's balance is the Customer row's running balance, read from the
// database on every call, never cached in memory.
type DisplayInfo struct {
	Kind        enum.ProviderKind
	Configured  bool
	Last4       string
	BalanceCents int64
}

// Provider is the uniform contract every payment variant satisfies.
type Provider interface {
	Kind() enum.ProviderKind
	IsConfigured(ctx context.Context, customerID string) (bool, error)
	CanPay(ctx context.Context, customerID string, amountCents int64) (bool, error)
	Charge(ctx context.Context, customerID string, amountCents int64, invoiceID, description string) (ChargeResult, error)
	GetInfo(ctx context.Context, customerID string) (*DisplayInfo, error)
}
