package admin

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/BatmanBruc/chat-earn-ledger/internal/ledger"
	"github.com/BatmanBruc/chat-earn-ledger/internal/pricing"
	"github.com/BatmanBruc/chat-earn-ledger/internal/resolver"
	"github.com/BatmanBruc/chat-earn-ledger/internal/stats"
	"github.com/BatmanBruc/chat-earn-ledger/store"
	"github.com/BatmanBruc/chat-earn-ledger/types"
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	app      *fiber.App
	store    *store.MemoryStore
	engine   *ledger.Engine
	resolver *resolver.Resolver
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st := store.NewMemoryStore()
	policy := pricing.DefaultPolicy()
	engine := ledger.NewEngine(st, policy)
	svc := NewService(st, engine, stats.New(st, nil, nil))

	app := fiber.New()
	Mount(app, svc, "root", "secret")
	return &testEnv{app: app, store: st, engine: engine, resolver: resolver.New(st, policy.SignupBonus)}
}

func (e *testEnv) do(t *testing.T, method, path, body string, auth bool) (int, map[string]json.RawMessage) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth {
		req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte("root:secret")))
	}
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]json.RawMessage
	raw, _ := io.ReadAll(resp.Body)
	_ = json.Unmarshal(raw, &out)
	return resp.StatusCode, out
}

func TestAdminRequiresAuth(t *testing.T) {
	env := newTestEnv(t)
	status, _ := env.do(t, http.MethodGet, "/admin/stats", "", false)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestAdminAccountsAndHistory(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res, err := env.resolver.Resolve(ctx, types.PlatformTelegram, "111", types.Profile{})
	require.NoError(t, err)
	_, err = env.resolver.Resolve(ctx, types.PlatformWeb, "bob", types.Profile{})
	require.NoError(t, err)
	_, err = env.engine.RecordChat(ctx, ledger.ChatRequest{AccountID: res.AccountID, EventID: "tg:1", Platform: types.PlatformTelegram, Message: "hi", Response: "hello"})
	require.NoError(t, err)

	status, body := env.do(t, http.MethodGet, "/admin/accounts?page=1&per_page=1", "", true)
	require.Equal(t, http.StatusOK, status)
	var page AccountPage
	require.NoError(t, json.Unmarshal(body["data"], &page))
	assert.Equal(t, int64(2), page.Total)
	assert.Len(t, page.Accounts, 1)

	status, body = env.do(t, http.MethodGet, "/admin/accounts/"+res.AccountID+"/history", "", true)
	require.Equal(t, http.StatusOK, status)
	var events []types.ChatEvent
	require.NoError(t, json.Unmarshal(body["data"], &events))
	require.Len(t, events, 1)
	assert.Equal(t, "tg:1", events[0].EventID)

	status, body = env.do(t, http.MethodGet, "/admin/accounts/"+res.AccountID, "", true)
	require.Equal(t, http.StatusOK, status)
	var detail AccountDetail
	require.NoError(t, json.Unmarshal(body["data"], &detail))
	assert.True(t, detail.Account.Balance.Equal(decimal.RequireFromString("10.001")))
	require.Len(t, detail.Links, 1)
	assert.Equal(t, "111", detail.Links[0].ExternalID)

	status, body = env.do(t, http.MethodGet, "/admin/stats", "", true)
	require.Equal(t, http.StatusOK, status)
	var snap types.StatsSnapshot
	require.NoError(t, json.Unmarshal(body["data"], &snap))
	assert.Equal(t, int64(2), snap.TotalUsers)
	assert.Equal(t, int64(1), snap.TotalChats)

	status, _ = env.do(t, http.MethodGet, "/admin/accounts/missing/history", "", true)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestAdminAdjustAndPremium(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	res, err := env.resolver.Resolve(ctx, types.PlatformWeb, "carol", types.Profile{})
	require.NoError(t, err)
	base := "/admin/accounts/" + res.AccountID

	tests := []struct {
		name       string
		path       string
		body       string
		wantStatus int
	}{
		{name: "credit", path: base + "/adjust", body: `{"balance_delta":"2.5","reason":"support"}`, wantStatus: http.StatusOK},
		{name: "overdraw", path: base + "/adjust", body: `{"balance_delta":"-100"}`, wantStatus: http.StatusBadRequest},
		{name: "empty request", path: base + "/adjust", body: `{}`, wantStatus: http.StatusBadRequest},
		{name: "premium without expiry", path: base + "/adjust", body: `{"is_premium":true}`, wantStatus: http.StatusBadRequest},
		{name: "premium days too large", path: base + "/adjust", body: `{"is_premium":true,"premium_days":300000}`, wantStatus: http.StatusBadRequest},
		{name: "premium via adjust", path: base + "/adjust", body: `{"is_premium":true,"premium_days":7}`, wantStatus: http.StatusOK},
		{name: "grant premium", path: base + "/premium", body: `{"days":30}`, wantStatus: http.StatusOK},
		{name: "grant zero days", path: base + "/premium", body: `{"days":0}`, wantStatus: http.StatusBadRequest},
		{name: "grant too many days", path: base + "/premium", body: `{"days":300000}`, wantStatus: http.StatusBadRequest},
		{name: "unknown account", path: "/admin/accounts/nope/premium", body: `{"days":1}`, wantStatus: http.StatusNotFound},
		{name: "malformed body", path: base + "/adjust", body: `{`, wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, _ := env.do(t, http.MethodPost, tt.path, tt.body, true)
			assert.Equal(t, tt.wantStatus, status)
		})
	}

	acc, err := env.store.GetAccount(ctx, res.AccountID)
	require.NoError(t, err)
	assert.True(t, acc.Balance.Equal(decimal.RequireFromString("12.5")))
	assert.True(t, acc.TotalEarned.Equal(decimal.RequireFromString("10")))
	require.NotNil(t, acc.PremiumExpiresAt)
	assert.True(t, acc.PremiumActive(acc.CreatedAt.Add(36*24*time.Hour)))
	assert.False(t, acc.PremiumActive(acc.CreatedAt.Add(38*24*time.Hour)))

	audit := env.store.Adjustments(res.AccountID)
	require.Len(t, audit, 2)
	assert.Equal(t, "root", audit[0].Admin)
}

func TestAdminReconcile(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.resolver.Resolve(context.Background(), types.PlatformWeb, "dora", types.Profile{})
	require.NoError(t, err)

	status, body := env.do(t, http.MethodPost, "/admin/stats/reconcile", "", true)
	require.Equal(t, http.StatusOK, status)
	var snap types.StatsSnapshot
	require.NoError(t, json.Unmarshal(body["data"], &snap))
	assert.Equal(t, int64(1), snap.TotalUsers)
}
