package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coachkit/creditledger/pkg/httpserver"
	"github.com/coachkit/creditledger/pkg/logger"
	"github.com/coachkit/creditledger/pkg/metrics"
	"github.com/coachkit/creditledger/svc/credit"
	"github.com/coachkit/creditledger/svc/httpapi"
	"github.com/coachkit/creditledger/svc/ledger"
	"github.com/coachkit/creditledger/svc/quota"
)

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Meta  map[string]any  `json:"meta"`
	Error *struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func newServer(t *testing.T, checks ...httpserver.Check) *httptest.Server {
	t.Helper()
	credits := credit.NewService(ledger.WithRetry(ledger.NewMemoryStore()), credit.WithLogger(logger.Discard()))
	plans := quota.DefaultPlans()
	enforcer, err := quota.NewEnforcer(context.Background(), quota.NewMemorySource(plans), quota.NewMemoryStore(),
		quota.WithLogger(logger.Discard()))
	require.NoError(t, err)

	reg := metrics.NewRegistry()
	srv := httptest.NewServer(httpapi.NewRouter(httpapi.Deps{
		API:      httpapi.New(credits, enforcer, logger.Discard()),
		Metrics:  metrics.New(reg),
		Registry: reg,
		Checks:   checks,
		Logger:   logger.Discard(),
		Webhooks: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusAccepted)
		}),
	}))
	t.Cleanup(srv.Close)
	return srv
}

func call(t *testing.T, method, url string, body any) (int, envelope) {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, rdr)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

func createAccount(t *testing.T, srv *httptest.Server, id string, tier ledger.Tier) {
	t.Helper()
	code, _ := call(t, http.MethodPost, srv.URL+"/v1/accounts", map[string]any{"id": id, "tier": tier, "email": id + "@example.com"})
	require.Equal(t, http.StatusCreated, code)
}

func TestAccounts(t *testing.T) {
	t.Parallel()
	srv := newServer(t)

	code, env := call(t, http.MethodPost, srv.URL+"/v1/accounts", map[string]any{"id": "acc_1", "display_name": "Ana"})
	require.Equal(t, http.StatusCreated, code)
	var acc struct {
		ID           string               `json:"id"`
		Tier         ledger.Tier          `json:"tier"`
		Balance      int64                `json:"balance"`
		Transactions []ledger.Transaction `json:"transactions"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &acc))
	assert.Equal(t, "acc_1", acc.ID)
	assert.Equal(t, ledger.TierFree, acc.Tier)
	assert.Equal(t, int64(250), acc.Balance)
	require.Len(t, acc.Transactions, 1)
	assert.Equal(t, ledger.KindInitialization, acc.Transactions[0].Kind)

	code, env = call(t, http.MethodPost, srv.URL+"/v1/accounts", map[string]any{"id": "acc_1"})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "conflict", env.Error.Code)

	code, _ = call(t, http.MethodPost, srv.URL+"/v1/accounts", map[string]any{"id": "acc_2", "tier": "gold"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = call(t, http.MethodPost, srv.URL+"/v1/accounts", map[string]any{"id": "acc_3", "admin": true})
	assert.Equal(t, http.StatusBadRequest, code)

	code, env = call(t, http.MethodGet, srv.URL+"/v1/accounts/acc_1", nil)
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(env.Data, &acc))
	assert.Equal(t, int64(250), acc.Balance)

	code, env = call(t, http.MethodGet, srv.URL+"/v1/accounts/missing", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "not_found", env.Error.Code)
}

func TestDeductAndAdd(t *testing.T) {
	t.Parallel()
	srv := newServer(t)
	createAccount(t, srv, "acc_1", ledger.TierFree)

	code, env := call(t, http.MethodPost, srv.URL+"/v1/accounts/acc_1/deduct", map[string]any{"amount": 100, "feature": "chat", "reference": "req-1"})
	require.Equal(t, http.StatusOK, code)
	var res credit.Result
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.True(t, res.Success)
	assert.Equal(t, int64(150), res.BalanceAfter)
	assert.Equal(t, int64(-100), res.Delta)

	// Same reference replays instead of charging twice.
	code, env = call(t, http.MethodPost, srv.URL+"/v1/accounts/acc_1/deduct", map[string]any{"amount": 100, "feature": "chat", "reference": "req-1"})
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, int64(150), res.BalanceAfter)

	code, env = call(t, http.MethodPost, srv.URL+"/v1/accounts/acc_1/deduct", map[string]any{"amount": 1000, "feature": "chat"})
	assert.Equal(t, http.StatusPaymentRequired, code)
	require.NotNil(t, env.Error)
	assert.InDelta(t, 150, env.Error.Details["balance"], 0)
	assert.InDelta(t, 1000, env.Error.Details["required"], 0)

	code, _ = call(t, http.MethodPost, srv.URL+"/v1/accounts/acc_1/deduct", map[string]any{"amount": 0})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = call(t, http.MethodPost, srv.URL+"/v1/accounts/nope/deduct", map[string]any{"amount": 1})
	assert.Equal(t, http.StatusNotFound, code)

	code, env = call(t, http.MethodPost, srv.URL+"/v1/accounts/acc_1/credits", map[string]any{"amount": 50, "kind": "refund", "reference": "rf-1"})
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, int64(200), res.BalanceAfter)

	code, _ = call(t, http.MethodPost, srv.URL+"/v1/accounts/acc_1/credits", map[string]any{"amount": 50, "kind": "renewal"})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestQuota(t *testing.T) {
	t.Parallel()
	srv := newServer(t)
	createAccount(t, srv, "acc_1", ledger.TierFree)

	limit := quota.DefaultPlans()[ledger.TierFree].Limits["replay_upload"]
	for i := range limit {
		code, env := call(t, http.MethodPost, srv.URL+"/v1/accounts/acc_1/quota/replay_upload", nil)
		require.Equal(t, http.StatusOK, code)
		var d quota.Decision
		require.NoError(t, json.Unmarshal(env.Data, &d))
		assert.True(t, d.Allowed)
		assert.Equal(t, i+1, d.Used)
	}

	code, env := call(t, http.MethodPost, srv.URL+"/v1/accounts/acc_1/quota/replay_upload", nil)
	assert.Equal(t, http.StatusTooManyRequests, code)
	assert.InDelta(t, float64(limit), env.Error.Details["limit"], 0)

	code, _ = call(t, http.MethodPost, srv.URL+"/v1/accounts/acc_1/quota/teleport", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = call(t, http.MethodPost, srv.URL+"/v1/accounts/missing/quota/chat", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, env = call(t, http.MethodGet, srv.URL+"/v1/accounts/acc_1/usage", nil)
	require.Equal(t, http.StatusOK, code)
	var usage []quota.Usage
	require.NoError(t, json.Unmarshal(env.Data, &usage))
	assert.Len(t, usage, len(quota.DefaultPlans()[ledger.TierFree].Limits))
	assert.Equal(t, "free", env.Meta["tier"])
	for _, u := range usage {
		if u.Feature == "replay_upload" {
			assert.Equal(t, limit, u.Used)
			assert.Zero(t, u.Remaining)
		}
	}
}

func TestProbesAndMounts(t *testing.T) {
	t.Parallel()
	failing := httpserver.Check{Name: "postgres", Fn: func(context.Context) error { return errors.New("down") }}
	srv := newServer(t, failing)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	resp, err = http.Get(srv.URL + "/readyz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/webhooks/stripe", "application/json", bytes.NewReader([]byte(`{}`)))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "creditledger_http_requests_total")
}
