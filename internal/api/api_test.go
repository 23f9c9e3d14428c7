//go:build integration

package api_test

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/suiftly/sealctl/internal/api"
	"github.com/suiftly/sealctl/internal/billing"
	"github.com/suiftly/sealctl/internal/clock"
	"github.com/suiftly/sealctl/internal/enum"
	"github.com/suiftly/sealctl/internal/payment"
	"github.com/suiftly/sealctl/internal/pubsub"
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

func seedCustomer(t *testing.T, db *store.DB, id string) {
	t.Helper()
	require.NoError(t, store.CreateCustomer(context.Background(), db, &store.Customer{
		ID: id, WalletAddress: "0x" + id,
	}))
}

type apiEnvelope struct {
	OK    bool            `json:"ok"`
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Kind      string `json:"kind"`
		Message   string `json:"message"`
		Retryable bool   `json:"retryable"`
	} `json:"error"`
}

func doJSON(t *testing.T, h http.Handler, method, path string, body interface{}) (*httptest.ResponseRecorder, apiEnvelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, path, &buf)
	require.NoError(t, err)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env apiEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return rec, env
}

func newEngine(db *store.DB, provider payment.Provider) *billing.Engine {
	return billing.NewEngine(db, clock.Real{}, []payment.Provider{provider}, billing.DefaultPricing)
}

func TestSubscribeCreatesServiceInstance(t *testing.T) {
	db := newTestDB(t)
	seedCustomer(t, db, "cust_api_1")

	provider := newFakeProvider(enum.ProviderStripe)
	provider.setResult(payment.ChargeResult{Success: true, ReferenceID: "ref", TxDigest: "tx"})

	srv := api.NewServer(api.Config{DB: db, Engine: newEngine(db, provider)})
	router := srv.Router()

	rec, env := doJSON(t, router, http.MethodPost, "/v1/customers/cust_api_1/services",
		map[string]string{"service_type": "sma", "tier": "pro"})

	require.Equal(t, http.StatusCreated, rec.Code)
	require.True(t, env.OK)

	var instance store.ServiceInstance
	require.NoError(t, json.Unmarshal(env.Data, &instance))
	require.Equal(t, "cust_api_1", instance.CustomerID)
	require.True(t, instance.PaidOnce)
}

func TestEnableSurfacesPreconditionFailedForPendingCharge(t *testing.T) {
	db := newTestDB(t)
	seedCustomer(t, db, "cust_api_2")

	provider := newFakeProvider(enum.ProviderStripe)
	provider.setResult(payment.ChargeResult{Success: false, ErrorCode: enum.ErrCardDeclined, Retryable: false})
	engine := newEngine(db, provider)

	instance, err := engine.Subscribe(context.Background(), "cust_api_2", "sma", enum.TierPro)
	require.NoError(t, err)
	require.True(t, instance.SubPendingInvoiceID.Valid)

	srv := api.NewServer(api.Config{DB: db, Engine: engine})
	router := srv.Router()

	rec, env := doJSON(t, router, http.MethodPost, "/v1/customers/cust_api_2/services/sma/enable",
		map[string]string{"instance_id": instance.ID})

	require.Equal(t, http.StatusConflict, rec.Code)
	require.False(t, env.OK)
	require.Equal(t, "precondition_failed", env.Error.Kind)
	require.True(t, env.Error.Retryable)
}

func TestCreateSealKeyAllocatesDerivationIndex(t *testing.T) {
	db := newTestDB(t)
	seedCustomer(t, db, "cust_api_3")

	provider := newFakeProvider(enum.ProviderStripe)
	provider.setResult(payment.ChargeResult{Success: true, ReferenceID: "ref", TxDigest: "tx"})
	engine := newEngine(db, provider)
	instance, err := engine.Subscribe(context.Background(), "cust_api_3", "sma", enum.TierPro)
	require.NoError(t, err)

	srv := api.NewServer(api.Config{DB: db, Engine: engine})
	router := srv.Router()

	rec, env := doJSON(t, router, http.MethodPost, "/v1/customers/cust_api_3/keys",
		map[string]interface{}{"instance_id": instance.ID, "process_group": 1, "public_key": "pk1"})

	require.Equal(t, http.StatusCreated, rec.Code)
	require.True(t, env.OK)

	var key store.SealKey
	require.NoError(t, json.Unmarshal(env.Data, &key))
	require.Equal(t, instance.ID, key.InstanceID)
	require.GreaterOrEqual(t, key.DerivationIndex, int64(1))

	// A second allocation for the same instance gets a distinct index.
	rec2, env2 := doJSON(t, router, http.MethodPost, "/v1/customers/cust_api_3/keys",
		map[string]interface{}{"instance_id": instance.ID, "process_group": 1, "public_key": "pk2"})
	require.Equal(t, http.StatusCreated, rec2.Code)
	var key2 store.SealKey
	require.NoError(t, json.Unmarshal(env2.Data, &key2))
	require.NotEqual(t, key.DerivationIndex, key2.DerivationIndex)
}

func TestCreateSealKeyRejectsInstanceBelongingToAnotherCustomer(t *testing.T) {
	db := newTestDB(t)
	seedCustomer(t, db, "cust_api_4a")
	seedCustomer(t, db, "cust_api_4b")

	provider := newFakeProvider(enum.ProviderStripe)
	provider.setResult(payment.ChargeResult{Success: true, ReferenceID: "ref", TxDigest: "tx"})
	engine := newEngine(db, provider)
	instance, err := engine.Subscribe(context.Background(), "cust_api_4a", "sma", enum.TierPro)
	require.NoError(t, err)

	srv := api.NewServer(api.Config{DB: db, Engine: engine})
	router := srv.Router()

	rec, env := doJSON(t, router, http.MethodPost, "/v1/customers/cust_api_4b/keys",
		map[string]interface{}{"instance_id": instance.ID, "process_group": 1, "public_key": "pk1"})

	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "not_found", env.Error.Kind)
}

// TestUpdateIPAllowlistTracksSyncStatusUntilFleetCatchesUp exercises the
// S5 scenario end to end: mutate the IP allowlist, observe sync-status
// false, record a live LM applying at least the expected seq, observe
// sync-status true.
func TestUpdateIPAllowlistTracksSyncStatusUntilFleetCatchesUp(t *testing.T) {
	db := newTestDB(t)
	seedCustomer(t, db, "cust_api_5")

	provider := newFakeProvider(enum.ProviderStripe)
	provider.setResult(payment.ChargeResult{Success: true, ReferenceID: "ref", TxDigest: "tx"})
	engine := newEngine(db, provider)
	instance, err := engine.Subscribe(context.Background(), "cust_api_5", "sma", enum.TierPro)
	require.NoError(t, err)

	ps := pubsub.NewMemoryPubSub()
	t.Cleanup(func() { _ = ps.Close() })

	srv := api.NewServer(api.Config{DB: db, Engine: engine, PubSub: ps})
	router := srv.Router()

	rec, env := doJSON(t, router, http.MethodPut, "/v1/customers/cust_api_5/config/ip-allowlist",
		map[string]interface{}{"instance_id": instance.ID, "addresses": []string{"10.0.0.1"}})
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, env.OK)

	var result struct {
		ExpectedSeq int64 `json:"expected_seq"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &result))
	require.Equal(t, int64(1), result.ExpectedSeq)

	stored, err := store.GetServiceInstance(context.Background(), db, instance.ID)
	require.NoError(t, err)
	require.Equal(t, "[\"10.0.0.1\"]", stored.ConfigJSON.String)

	statusRec, statusEnv := doJSON(t, router, http.MethodGet,
		"/v1/customers/cust_api_5/sync-status?vault=sma&seq=1", nil)
	require.Equal(t, http.StatusOK, statusRec.Code)
	var status struct {
		Synced bool `json:"synced"`
	}
	require.NoError(t, json.Unmarshal(statusEnv.Data, &status))
	require.False(t, status.Synced, "no live LM has reported yet")

	require.NoError(t, store.UpsertLMStatus(context.Background(), db, &store.LMStatus{
		LMID: "lm-1", VaultType: enum.VaultSealMainnetAPI, AppliedSeq: 1,
		LastSeenAt: sql.NullTime{Time: time.Now(), Valid: true},
	}))

	statusRec2, statusEnv2 := doJSON(t, router, http.MethodGet,
		"/v1/customers/cust_api_5/sync-status?vault=sma&seq=1", nil)
	require.Equal(t, http.StatusOK, statusRec2.Code)
	var status2 struct {
		Synced bool `json:"synced"`
	}
	require.NoError(t, json.Unmarshal(statusEnv2.Data, &status2))
	require.True(t, status2.Synced)
}

func TestReconcileWithoutGMPublishesEventOnConfiguredBroker(t *testing.T) {
	db := newTestDB(t)
	seedCustomer(t, db, "cust_api_6")

	ps := pubsub.NewMemoryPubSub()
	t.Cleanup(func() { _ = ps.Close() })

	ch, cleanup := ps.Subscribe(context.Background(), pubsub.TopicReconcile)
	defer cleanup()

	srv := api.NewServer(api.Config{DB: db, PubSub: ps})
	router := srv.Router()

	rec, env := doJSON(t, router, http.MethodPost, "/v1/customers/cust_api_6/reconcile", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.True(t, env.OK)

	select {
	case raw := <-ch:
		var evt pubsub.ReconcileEvent
		require.NoError(t, json.Unmarshal(raw, &evt))
		require.Equal(t, "cust_api_6", evt.CustomerID)
	case <-time.After(2 * time.Second):
		t.Fatal("expected reconcile event to be published")
	}
}
