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

func TestChangeTierUpgradeChargesImmediatelyAndAppliesNow(t *testing.T) {
	db := newTestDB(t)
	seedCustomer(t, db, "cust_tier_1")

	provider := newFakeProvider(enum.ProviderStripe)
	provider.setResult(payment.ChargeResult{Success: true, ReferenceID: "ref_1", TxDigest: "tx_1"})
	engine := billing.NewEngine(db, clock.Real{}, []payment.Provider{provider}, billing.DefaultPricing)

	instance, err := engine.Subscribe(context.Background(), "cust_tier_1", "sma", enum.TierStarter)
	require.NoError(t, err)
	callsAfterSubscribe := provider.callCount()

	require.NoError(t, engine.ChangeTier(context.Background(), "cust_tier_1", instance.ID, enum.TierPro))

	stored, err := store.GetServiceInstance(context.Background(), db, instance.ID)
	require.NoError(t, err)
	require.Equal(t, enum.TierPro, stored.Tier)
	require.False(t, stored.ScheduledTier.Valid)
	require.Greater(t, provider.callCount(), callsAfterSubscribe, "upgrade must dispatch a new charge")
}

func TestChangeTierDowngradeOnlySchedulesNoImmediateCharge(t *testing.T) {
	db := newTestDB(t)
	seedCustomer(t, db, "cust_tier_2")

	provider := newFakeProvider(enum.ProviderStripe)
	provider.setResult(payment.ChargeResult{Success: true, ReferenceID: "ref_1", TxDigest: "tx_1"})
	engine := billing.NewEngine(db, clock.Real{}, []payment.Provider{provider}, billing.DefaultPricing)

	instance, err := engine.Subscribe(context.Background(), "cust_tier_2", "sma", enum.TierEnterprise)
	require.NoError(t, err)
	callsAfterSubscribe := provider.callCount()

	require.NoError(t, engine.ChangeTier(context.Background(), "cust_tier_2", instance.ID, enum.TierStarter))

	stored, err := store.GetServiceInstance(context.Background(), db, instance.ID)
	require.NoError(t, err)
	require.Equal(t, enum.TierEnterprise, stored.Tier, "downgrade must not apply immediately")
	require.True(t, stored.ScheduledTier.Valid)
	require.Equal(t, string(enum.TierStarter), stored.ScheduledTier.String)
	require.Equal(t, callsAfterSubscribe, provider.callCount(), "downgrade must never charge")
}

func TestAdvancePeriodBoundaryAppliesScheduledDowngrade(t *testing.T) {
	db := newTestDB(t)
	seedCustomer(t, db, "cust_tier_3")

	provider := newFakeProvider(enum.ProviderStripe)
	provider.setResult(payment.ChargeResult{Success: true, ReferenceID: "ref_1", TxDigest: "tx_1"})
	engine := billing.NewEngine(db, clock.Real{}, []payment.Provider{provider}, billing.DefaultPricing)

	instance, err := engine.Subscribe(context.Background(), "cust_tier_3", "sma", enum.TierEnterprise)
	require.NoError(t, err)
	require.NoError(t, engine.ChangeTier(context.Background(), "cust_tier_3", instance.ID, enum.TierStarter))

	require.NoError(t, engine.AdvancePeriodBoundary(context.Background(), "cust_tier_3"))

	stored, err := store.GetServiceInstance(context.Background(), db, instance.ID)
	require.NoError(t, err)
	require.Equal(t, enum.TierStarter, stored.Tier)
	require.False(t, stored.ScheduledTier.Valid)
}
