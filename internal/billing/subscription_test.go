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
	"github.com/suiftly/sealctl/internal/testutil"
)

func newTestDB(t *testing.T) *store.DB {
	t.Helper()
	ctx := context.Background()

	pg, err := testutil.StartPostgresContainer(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Stop(ctx) })

	db, err := store.Open(pg.DSN)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, store.Migrate(ctx, db))
	return db
}

func seedCustomer(t *testing.T, db *store.DB, id string) *store.Customer {
	t.Helper()
	c := &store.Customer{ID: id, WalletAddress: "0x" + id, BalanceCents: 0, SpendingLimitCents: 0}
	require.NoError(t, store.CreateCustomer(context.Background(), db, c))
	return c
}

func TestSubscribePaysImmediatelyWhenProviderSucceeds(t *testing.T) {
	db := newTestDB(t)
	seedCustomer(t, db, "cust_sub_1")

	provider := newFakeProvider(enum.ProviderStripe)
	provider.setResult(payment.ChargeResult{Success: true, ReferenceID: "ref_1", TxDigest: "tx_1"})

	engine := billing.NewEngine(db, clock.Real{}, []payment.Provider{provider}, billing.DefaultPricing)

	instance, err := engine.Subscribe(context.Background(), "cust_sub_1", "sma", enum.TierPro)
	require.NoError(t, err)
	require.Equal(t, enum.ServiceDisabled, instance.State)
	require.True(t, instance.PaidOnce)
	require.False(t, instance.SubPendingInvoiceID.Valid)
	require.Equal(t, 1, provider.callCount())

	stored, err := store.GetServiceInstance(context.Background(), db, instance.ID)
	require.NoError(t, err)
	require.True(t, stored.PaidOnce)
}

func TestSubscribeLeavesPendingInvoiceWhenProviderDeclines(t *testing.T) {
	db := newTestDB(t)
	seedCustomer(t, db, "cust_sub_2")

	provider := newFakeProvider(enum.ProviderStripe)
	provider.setResult(payment.ChargeResult{Success: false, ErrorCode: enum.ErrCardDeclined, Retryable: false})

	engine := billing.NewEngine(db, clock.Real{}, []payment.Provider{provider}, billing.DefaultPricing)

	instance, err := engine.Subscribe(context.Background(), "cust_sub_2", "sma", enum.TierPro)
	require.NoError(t, err)
	require.False(t, instance.PaidOnce)
	require.True(t, instance.SubPendingInvoiceID.Valid)
}

func TestSubscribeTwiceForSameServiceTypeFails(t *testing.T) {
	db := newTestDB(t)
	seedCustomer(t, db, "cust_sub_3")

	provider := newFakeProvider(enum.ProviderStripe)
	provider.setResult(payment.ChargeResult{Success: true, ReferenceID: "ref_1", TxDigest: "tx_1"})
	engine := billing.NewEngine(db, clock.Real{}, []payment.Provider{provider}, billing.DefaultPricing)

	_, err := engine.Subscribe(context.Background(), "cust_sub_3", "sma", enum.TierPro)
	require.NoError(t, err)

	_, err = engine.Subscribe(context.Background(), "cust_sub_3", "sma", enum.TierPro)
	require.Error(t, err)
}

func TestEnableRequiresPendingInvoiceToClear(t *testing.T) {
	db := newTestDB(t)
	seedCustomer(t, db, "cust_sub_4")

	provider := newFakeProvider(enum.ProviderStripe)
	provider.setResult(payment.ChargeResult{Success: false, ErrorCode: enum.ErrCardDeclined, Retryable: false})
	engine := billing.NewEngine(db, clock.Real{}, []payment.Provider{provider}, billing.DefaultPricing)

	instance, err := engine.Subscribe(context.Background(), "cust_sub_4", "sma", enum.TierPro)
	require.NoError(t, err)

	err = engine.Enable(context.Background(), "cust_sub_4", instance.ID)
	require.ErrorIs(t, err, billing.ErrChargePending)

	provider.setResult(payment.ChargeResult{Success: true, ReferenceID: "ref_2", TxDigest: "tx_2"})
	err = engine.Enable(context.Background(), "cust_sub_4", instance.ID)
	require.NoError(t, err)

	stored, err := store.GetServiceInstance(context.Background(), db, instance.ID)
	require.NoError(t, err)
	require.Equal(t, enum.ServiceEnabled, stored.State)
	require.True(t, stored.IsUserEnabled)
}

func TestScheduleCancelDeletesUnpaidServiceImmediately(t *testing.T) {
	db := newTestDB(t)
	seedCustomer(t, db, "cust_sub_5")

	provider := newFakeProvider(enum.ProviderStripe)
	provider.setResult(payment.ChargeResult{Success: false, ErrorCode: enum.ErrCardDeclined, Retryable: false})
	engine := billing.NewEngine(db, clock.Real{}, []payment.Provider{provider}, billing.DefaultPricing)

	instance, err := engine.Subscribe(context.Background(), "cust_sub_5", "sma", enum.TierPro)
	require.NoError(t, err)

	require.NoError(t, engine.ScheduleCancel(context.Background(), "cust_sub_5", instance.ID))

	_, err = store.GetServiceInstance(context.Background(), db, instance.ID)
	require.True(t, store.IsNotFound(err))
}

func TestScheduleCancelDefersPaidServiceToPeriodBoundary(t *testing.T) {
	db := newTestDB(t)
	seedCustomer(t, db, "cust_sub_6")

	provider := newFakeProvider(enum.ProviderStripe)
	provider.setResult(payment.ChargeResult{Success: true, ReferenceID: "ref_1", TxDigest: "tx_1"})
	engine := billing.NewEngine(db, clock.Real{}, []payment.Provider{provider}, billing.DefaultPricing)

	instance, err := engine.Subscribe(context.Background(), "cust_sub_6", "sma", enum.TierPro)
	require.NoError(t, err)

	require.NoError(t, engine.ScheduleCancel(context.Background(), "cust_sub_6", instance.ID))

	stored, err := store.GetServiceInstance(context.Background(), db, instance.ID)
	require.NoError(t, err)
	require.True(t, stored.CancellationScheduledFor.Valid)
}
