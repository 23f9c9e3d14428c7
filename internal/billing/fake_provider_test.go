package billing_test

import (
	"context"
	"sync"

	"github.com/suiftly/sealctl/internal/enum"
	"github.com/suiftly/sealctl/internal/payment"
)

// fakeProvider is a deterministic, in-memory stand-in for
// payment.Provider used to drive the billing engine's provider-chain
// dispatch without touching escrow or Stripe.
type fakeProvider struct {
	mu          sync.Mutex
	kind        enum.ProviderKind
	configured  bool
	nextResult  payment.ChargeResult
	nextErr     error
	chargeCalls int
}

func newFakeProvider(kind enum.ProviderKind) *fakeProvider {
	return &fakeProvider{kind: kind, configured: true}
}

func (f *fakeProvider) Kind() enum.ProviderKind { return f.kind }

func (f *fakeProvider) IsConfigured(ctx context.Context, customerID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.configured, nil
}

func (f *fakeProvider) CanPay(ctx context.Context, customerID string, amountCents int64) (bool, error) {
	return true, nil
}

func (f *fakeProvider) Charge(ctx context.Context, customerID string, amountCents int64, invoiceID, description string) (payment.ChargeResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chargeCalls++
	if f.nextErr != nil {
		return payment.ChargeResult{}, f.nextErr
	}
	return f.nextResult, nil
}

func (f *fakeProvider) GetInfo(ctx context.Context, customerID string) (*payment.DisplayInfo, error) {
	return &payment.DisplayInfo{Kind: f.kind, Configured: f.configured}, nil
}

func (f *fakeProvider) setConfigured(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.configured = v
}

func (f *fakeProvider) setResult(r payment.ChargeResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextResult = r
}

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.chargeCalls
}
