package payment

import (
	"context"

	"github.com/suiftly/sealctl/internal/enum"
)

// PaypalProvider is a stub third provider variant: always unconfigured.
// Its purpose is structural — it exercises the provider chain's
// "isConfigured = false, skip" branch (§4.5.4 step 1) with more than
// two providers in the ordering, without requiring a live PayPal
// integration the spec does not otherwise call for.
type PaypalProvider struct{}

var _ Provider = (*PaypalProvider)(nil)

func NewPaypalProvider() *PaypalProvider { return &PaypalProvider{} }

func (PaypalProvider) Kind() enum.ProviderKind { return enum.ProviderPaypal }

func (PaypalProvider) IsConfigured(ctx context.Context, customerID string) (bool, error) {
	return false, nil
}

func (PaypalProvider) CanPay(ctx context.Context, customerID string, amountCents int64) (bool, error) {
	return false, nil
}

func (PaypalProvider) Charge(ctx context.Context, customerID string, amountCents int64, invoiceID, description string) (ChargeResult, error) {
	return ChargeResult{Success: false, ErrorCode: enum.ErrAccountNotConfigured, Retryable: false}, nil
}

func (PaypalProvider) GetInfo(ctx context.Context, customerID string) (*DisplayInfo, error) {
	return &DisplayInfo{Kind: enum.ProviderPaypal, Configured: false}, nil
}
