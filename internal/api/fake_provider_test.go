//go:build integration

package api_test

import (
	"context"
	"sync"

	"github.com/suiftly/sealctl/internal/enum"
	"github.com/suiftly/sealctl/internal/payment"
)

// fakeProvider is the same deterministic payment.Provider stand-in
// internal/billing uses, duplicated here since test helpers in an
// external _test package aren't importable across packages.
type fakeProvider struct {
	mu         sync.Mutex
	kind       enum.ProviderKind
	nextResult payment.ChargeResult
}

func newFakeProvider(kind enum.ProviderKind) *fakeProvider {
	return &fakeProvider{kind: kind}
}

func (f *fakeProvider) Kind() enum.ProviderKind { return f.kind }

func (f *fakeProvider) IsConfigured(ctx context.Context, customerID string) (bool, error) {
	return true, nil
}

func (f *fakeProvider) CanPay(ctx context.Context, customerID string, amountCents int64) (bool, error) {
	return true, nil
}

func (f *fakeProvider) Charge(ctx context.Context, customerID string, amountCents int64, invoiceID, description string) (payment.ChargeResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nextResult, nil
}

func (f *fakeProvider) GetInfo(ctx context.Context, customerID string) (*payment.DisplayInfo, error) {
	return &payment.DisplayInfo{Kind: f.kind, Configured: true}, nil
}

func (f *fakeProvider) setResult(r payment.ChargeResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextResult = r
}
