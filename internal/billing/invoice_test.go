//go:build integration

package billing_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/suiftly/sealctl/internal/billing"
	"github.com/suiftly/sealctl/internal/clock"
	"github.com/suiftly/sealctl/internal/enum"
	"github.com/suiftly/sealctl/internal/payment"
	"github.com/suiftly/sealctl/internal/store"
)

func TestSyncDraftInvoiceAggregatesLiveServices(t *testing.T) {
	db := newTestDB(t)
	seedCustomer(t, db, "cust_inv_1")

	provider := newFakeProvider(enum.ProviderStripe)
	provider.setResult(payment.ChargeResult{Success: true, ReferenceID: "ref_1", TxDigest: "tx_1"})
	engine := billing.NewEngine(db, clock.Real{}, []payment.Provider{provider}, billing.DefaultPricing)

	_, err := engine.Subscribe(context.Background(), "cust_inv_1", "sma", enum.TierPro)
	require.NoError(t, err)
	_, err = engine.Subscribe(context.Background(), "cust_inv_1", "stb", enum.TierEnterprise)
	require.NoError(t, err)

	require.NoError(t, engine.SyncDraftInvoice(context.Background(), "cust_inv_1"))

	records, err := store.ListBillingRecordsByCustomer(context.Background(), db, "cust_inv_1")
	require.NoError(t, err)

	var draft *store.BillingRecord
	for _, r := range records {
		if r.Status == enum.InvoiceDraft {
			draft = r
		}
	}
	require.NotNil(t, draft)
	require.EqualValues(t, billing.DefaultPricing[enum.TierPro]+billing.DefaultPricing[enum.TierEnterprise], draft.AmountUSDCents)
}

func TestSyncDraftInvoiceAppliesSpendableCredits(t *testing.T) {
	db := newTestDB(t)
	seedCustomer(t, db, "cust_inv_2")

	provider := newFakeProvider(enum.ProviderStripe)
	provider.setResult(payment.ChargeResult{Success: true, ReferenceID: "ref_1", TxDigest: "tx_1"})
	engine := billing.NewEngine(db, clock.Real{}, []payment.Provider{provider}, billing.DefaultPricing)

	_, err := engine.Subscribe(context.Background(), "cust_inv_2", "sma", enum.TierPro)
	require.NoError(t, err)

	require.NoError(t, store.CreateCustomerCredit(context.Background(), db, &store.CustomerCredit{
		ID:                      "credit_1",
		CustomerID:              "cust_inv_2",
		RemainingAmountUSDCents: 1000,
		SourceReason:            enum.CreditReasonReconciliationRemainder,
	}))

	require.NoError(t, engine.SyncDraftInvoice(context.Background(), "cust_inv_2"))

	records, err := store.ListBillingRecordsByCustomer(context.Background(), db, "cust_inv_2")
	require.NoError(t, err)
	var draft *store.BillingRecord
	for _, r := range records {
		if r.Status == enum.InvoiceDraft {
			draft = r
		}
	}
	require.NotNil(t, draft)
	require.EqualValues(t, billing.DefaultPricing[enum.TierPro]-1000, draft.AmountUSDCents)
}

func TestAdvancePeriodBoundaryMarksServicesSubPendingOnFailure(t *testing.T) {
	db := newTestDB(t)
	seedCustomer(t, db, "cust_inv_3")

	provider := newFakeProvider(enum.ProviderStripe)
	provider.setResult(payment.ChargeResult{Success: true, ReferenceID: "ref_1", TxDigest: "tx_1"})
	engine := billing.NewEngine(db, clock.Real{}, []payment.Provider{provider}, billing.DefaultPricing)

	instance, err := engine.Subscribe(context.Background(), "cust_inv_3", "sma", enum.TierPro)
	require.NoError(t, err)

	require.NoError(t, engine.SyncDraftInvoice(context.Background(), "cust_inv_3"))

	provider.setResult(payment.ChargeResult{Success: false, ErrorCode: enum.ErrCardDeclined, Retryable: false})
	require.NoError(t, engine.AdvancePeriodBoundary(context.Background(), "cust_inv_3"))

	stored, err := store.GetServiceInstance(context.Background(), db, instance.ID)
	require.NoError(t, err)
	require.True(t, stored.SubPendingInvoiceID.Valid)
}
