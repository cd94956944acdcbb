package handler_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	httpHandler "exchange-core/internal/adapter/http/handler"
	"exchange-core/internal/adapter/http/middleware"
	"exchange-core/internal/adapter/storage/memory"
	redisStorage "exchange-core/internal/adapter/storage/redis"
	"exchange-core/internal/core/domain"
	"exchange-core/internal/core/ports"
	"exchange-core/internal/service"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type steppingClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *steppingClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// testApp wires the real HTTP layer, services and memory storage, with
// miniredis backing revocation and rate limiting.
type testApp struct {
	server   *httptest.Server
	clock    *steppingClock
	store    *memory.Store
	accounts *service.AccountServiceImpl
}

func newTestApp(t *testing.T, rules map[string]middleware.RateLimitRule) *testApp {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	clock := &steppingClock{now: time.Now().UTC().Truncate(time.Second)}
	store := memory.NewStore(clock.Now)

	hasher, err := service.NewArgon2Hasher(service.Argon2Params{Time: 1, Memory: 8 * 1024, Threads: 1})
	require.NoError(t, err)
	tokens := service.NewJWTTokenIssuer("integration-secret-at-least-32-bytes", "exchange-core", clock)
	ttl := 15 * time.Minute

	log := zerolog.Nop()
	accounts := service.NewAccountService(store.Identities(), hasher, tokens,
		redisStorage.NewRevocationStore(rdb, ttl), clock, ttl, log)
	ledger := service.NewLedgerService(store.Identities(), store.Balances(), domain.DefaultCurrencySet(), log)

	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		Accounts:       accounts,
		Ledger:         ledger,
		RateLimitStore: redisStorage.NewRateLimitStore(rdb),
		RateLimitRules: rules,
		HealthCheckers: []ports.HealthChecker{store, redisStorage.NewHealthCheck(rdb)},
		Logger:         log,
	})

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &testApp{server: server, clock: clock, store: store, accounts: accounts}
}

type apiResponse struct {
	status int
	body   map[string]interface{}
}

func (r apiResponse) data() map[string]interface{} {
	d, _ := r.body["data"].(map[string]interface{})
	return d
}

func (a *testApp) call(t *testing.T, method, path, token string, body interface{}) apiResponse {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, a.server.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := a.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := apiResponse{status: resp.StatusCode}
	_ = json.NewDecoder(resp.Body).Decode(&out.body)
	return out
}

func (a *testApp) registerAndLogin(t *testing.T, identifier, password string) string {
	t.Helper()
	reg := a.call(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"identifier": identifier,
		"password":   password,
	})
	require.Equal(t, http.StatusCreated, reg.status, reg.body)

	login := a.call(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"identifier": identifier,
		"password":   password,
	})
	require.Equal(t, http.StatusOK, login.status, login.body)
	token, _ := login.data()["token"].(string)
	require.NotEmpty(t, token)
	return token
}

func (a *testApp) registerAndLoginExisting(t *testing.T, identifier, password string) string {
	t.Helper()
	login := a.call(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"identifier": identifier,
		"password":   password,
	})
	require.Equal(t, http.StatusOK, login.status, login.body)
	token, _ := login.data()["token"].(string)
	require.NotEmpty(t, token)
	return token
}

func TestAPI_HealthCheck(t *testing.T) {
	app := newTestApp(t, nil)

	resp := app.call(t, http.MethodGet, "/health", "", nil)

	assert.Equal(t, http.StatusOK, resp.status)
	assert.Equal(t, "healthy", resp.body["status"])
}

func TestAPI_BalanceLifecycle(t *testing.T) {
	app := newTestApp(t, nil)
	token := app.registerAndLogin(t, "alice", "correct-horse")

	resp := app.call(t, http.MethodPost, "/api/v1/balances/deposit", token, map[string]string{"currency": "USD", "amount": "100"})
	require.Equal(t, http.StatusOK, resp.status, resp.body)
	assert.Equal(t, "100", resp.data()["amount"])

	resp = app.call(t, http.MethodPost, "/api/v1/balances/withdraw", token, map[string]string{"currency": "usd", "amount": "30"})
	require.Equal(t, http.StatusOK, resp.status, resp.body)
	assert.Equal(t, "70", resp.data()["amount"])

	resp = app.call(t, http.MethodPost, "/api/v1/balances/withdraw", token, map[string]string{"currency": "USD", "amount": "1000"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.status)

	resp = app.call(t, http.MethodGet, "/api/v1/balances/USD", token, nil)
	require.Equal(t, http.StatusOK, resp.status)
	assert.Equal(t, "70", resp.data()["amount"])

	resp = app.call(t, http.MethodGet, "/api/v1/balances", token, nil)
	require.Equal(t, http.StatusOK, resp.status)
	list, ok := resp.body["data"].([]interface{})
	require.True(t, ok)
	require.Len(t, list, len(domain.DefaultCurrencies))
	for i, item := range list {
		entry := item.(map[string]interface{})
		assert.Equal(t, string(domain.DefaultCurrencies[i]), entry["currency"])
	}

	resp = app.call(t, http.MethodPost, "/api/v1/balances/deposit", token, map[string]string{"currency": "DOGE", "amount": "1"})
	assert.Equal(t, http.StatusBadRequest, resp.status)
	assert.Equal(t, "BAL_002", resp.body["error_code"])
}

func TestAPI_LoginErrors(t *testing.T) {
	app := newTestApp(t, nil)
	app.registerAndLogin(t, "bob", "bob-password")

	resp := app.call(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"identifier": "bob", "password": "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, resp.status)

	resp = app.call(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"identifier": "nobody", "password": "whatever"})
	assert.Equal(t, http.StatusNotFound, resp.status)

	resp = app.call(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{"identifier": "bob", "password": "another-one"})
	assert.Equal(t, http.StatusConflict, resp.status)
}

func TestAPI_ChangePasswordRevokesOldTokens(t *testing.T) {
	app := newTestApp(t, nil)
	oldToken := app.registerAndLogin(t, "carol", "first-password")

	app.clock.Advance(2 * time.Second)
	resp := app.call(t, http.MethodPut, "/api/v1/accounts/me/password", oldToken, map[string]string{
		"current_password": "first-password",
		"new_password":     "second-password",
	})
	require.Equal(t, http.StatusOK, resp.status, resp.body)

	app.clock.Advance(time.Second)
	resp = app.call(t, http.MethodGet, "/api/v1/accounts/me", oldToken, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.status)

	resp = app.call(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"identifier": "carol", "password": "first-password"})
	assert.Equal(t, http.StatusUnauthorized, resp.status)

	resp = app.call(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"identifier": "carol", "password": "second-password"})
	require.Equal(t, http.StatusOK, resp.status)
	newToken := resp.data()["token"].(string)

	resp = app.call(t, http.MethodGet, "/api/v1/accounts/me", newToken, nil)
	assert.Equal(t, http.StatusOK, resp.status)
}

func TestAPI_RenameKeepsBalances(t *testing.T) {
	app := newTestApp(t, nil)
	token := app.registerAndLogin(t, "dave", "dave-password")

	resp := app.call(t, http.MethodPost, "/api/v1/balances/deposit", token, map[string]string{"currency": "BTC", "amount": "0.5"})
	require.Equal(t, http.StatusOK, resp.status)

	resp = app.call(t, http.MethodPut, "/api/v1/accounts/me/username", token, map[string]string{"identifier": "david"})
	require.Equal(t, http.StatusOK, resp.status, resp.body)
	assert.Equal(t, "david", resp.data()["identifier"])

	resp = app.call(t, http.MethodGet, "/api/v1/accounts/me", token, nil)
	require.Equal(t, http.StatusOK, resp.status)
	assert.Equal(t, "david", resp.data()["identifier"])

	resp = app.call(t, http.MethodGet, "/api/v1/balances/BTC", token, nil)
	require.Equal(t, http.StatusOK, resp.status)
	assert.Equal(t, "0.5", resp.data()["amount"])
}

func TestAPI_AdminBan(t *testing.T) {
	app := newTestApp(t, nil)
	userToken := app.registerAndLogin(t, "eve", "eve-password")

	_, err := app.accounts.Register(t.Context(), ports.RegisterRequest{
		Identifier: "root",
		Password:   "root-password",
		Role:       domain.RoleAdmin,
	})
	require.NoError(t, err)
	login := app.call(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"identifier": "root", "password": "root-password"})
	require.Equal(t, http.StatusOK, login.status)
	adminToken := login.data()["token"].(string)

	resp := app.call(t, http.MethodPost, "/api/v1/admin/accounts/root/ban", userToken, nil)
	assert.Equal(t, http.StatusForbidden, resp.status)

	app.clock.Advance(2 * time.Second)
	resp = app.call(t, http.MethodPost, "/api/v1/admin/accounts/eve/ban", adminToken, nil)
	require.Equal(t, http.StatusOK, resp.status, resp.body)

	resp = app.call(t, http.MethodPost, "/api/v1/admin/accounts/eve/ban", adminToken, nil)
	assert.Equal(t, http.StatusConflict, resp.status)

	resp = app.call(t, http.MethodGet, "/api/v1/balances", userToken, nil)
	assert.NotEqual(t, http.StatusOK, resp.status)

	resp = app.call(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"identifier": "eve", "password": "eve-password"})
	assert.Equal(t, http.StatusForbidden, resp.status)
	resp = app.call(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"identifier": "eve", "password": "bad-password"})
	assert.Equal(t, http.StatusUnauthorized, resp.status)
}

func TestAPI_AdminCreatesAdmin(t *testing.T) {
	app := newTestApp(t, nil)
	userToken := app.registerAndLogin(t, "henry", "henry-password")

	_, err := app.accounts.Register(t.Context(), ports.RegisterRequest{
		Identifier: "root",
		Password:   "root-password",
		Role:       domain.RoleAdmin,
	})
	require.NoError(t, err)
	login := app.call(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"identifier": "root", "password": "root-password"})
	require.Equal(t, http.StatusOK, login.status)
	adminToken := login.data()["token"].(string)

	body := map[string]string{"identifier": "ops", "password": "ops-password"}
	resp := app.call(t, http.MethodPost, "/api/v1/admin/accounts", userToken, body)
	assert.Equal(t, http.StatusForbidden, resp.status)

	resp = app.call(t, http.MethodPost, "/api/v1/admin/accounts", adminToken, body)
	require.Equal(t, http.StatusCreated, resp.status, resp.body)
	assert.Equal(t, "ADMIN", resp.data()["role"])

	resp = app.call(t, http.MethodPost, "/api/v1/admin/accounts", adminToken, body)
	assert.Equal(t, http.StatusConflict, resp.status)

	opsToken := app.registerAndLoginExisting(t, "ops", "ops-password")
	resp = app.call(t, http.MethodPost, "/api/v1/admin/accounts/henry/ban", opsToken, nil)
	assert.Equal(t, http.StatusOK, resp.status, resp.body)
}

func TestAPI_BanIdentifierWithSpecialCharacters(t *testing.T) {
	app := newTestApp(t, nil)
	app.registerAndLogin(t, "o'neil&co", "oneil-password")

	_, err := app.accounts.Register(t.Context(), ports.RegisterRequest{
		Identifier: "root",
		Password:   "root-password",
		Role:       domain.RoleAdmin,
	})
	require.NoError(t, err)
	adminToken := app.registerAndLoginExisting(t, "root", "root-password")

	resp := app.call(t, http.MethodPost, "/api/v1/admin/accounts/"+url.PathEscape("o'neil&co")+"/ban", adminToken, nil)
	require.Equal(t, http.StatusOK, resp.status, resp.body)

	resp = app.call(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"identifier": "o'neil&co", "password": "oneil-password"})
	assert.Equal(t, http.StatusForbidden, resp.status)
}

func TestAPI_Currencies(t *testing.T) {
	app := newTestApp(t, nil)

	resp := app.call(t, http.MethodGet, "/api/v1/currencies", "", nil)
	require.Equal(t, http.StatusOK, resp.status)
	assert.Equal(t, []interface{}{"USD", "BTC", "ETH", "USDT", "BNB"}, resp.data()["currencies"])
}

func TestAPI_DepositOutOfRange(t *testing.T) {
	app := newTestApp(t, nil)
	token := app.registerAndLogin(t, "ivan", "ivan-password")

	for _, amount := range []string{"1e20000000", "1000000000000000000000"} {
		resp := app.call(t, http.MethodPost, "/api/v1/balances/deposit", token, map[string]string{"currency": "USD", "amount": amount})
		assert.Equal(t, http.StatusBadRequest, resp.status, amount)
	}

	resp := app.call(t, http.MethodPost, "/api/v1/balances/deposit", token, map[string]string{"currency": "USD", "amount": "99999999999999999999"})
	require.Equal(t, http.StatusOK, resp.status, resp.body)

	resp = app.call(t, http.MethodPost, "/api/v1/balances/deposit", token, map[string]string{"currency": "USD", "amount": "1"})
	assert.Equal(t, http.StatusBadRequest, resp.status)
	assert.Equal(t, "BAL_001", resp.body["error_code"])

	resp = app.call(t, http.MethodGet, "/api/v1/balances/USD", token, nil)
	assert.Equal(t, "99999999999999999999", resp.data()["amount"])
}

func TestAPI_DeleteAccount(t *testing.T) {
	app := newTestApp(t, nil)
	token := app.registerAndLogin(t, "frank", "frank-password")

	resp := app.call(t, http.MethodPost, "/api/v1/balances/deposit", token, map[string]string{"currency": "ETH", "amount": "3"})
	require.Equal(t, http.StatusOK, resp.status)

	resp = app.call(t, http.MethodDelete, "/api/v1/accounts/me", token, map[string]string{"password": "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, resp.status)

	resp = app.call(t, http.MethodDelete, "/api/v1/accounts/me", token, map[string]string{"password": "frank-password"})
	require.Equal(t, http.StatusOK, resp.status, resp.body)

	resp = app.call(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"identifier": "frank", "password": "frank-password"})
	assert.Equal(t, http.StatusNotFound, resp.status)

	resp = app.call(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{"identifier": "frank", "password": "frank-password"})
	require.Equal(t, http.StatusCreated, resp.status)
}

func TestAPI_ConcurrentDeposits(t *testing.T) {
	app := newTestApp(t, nil)
	token := app.registerAndLogin(t, "grace", "grace-password")

	const workers = 25
	var wg sync.WaitGroup
	codes := make(chan int, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp := app.call(t, http.MethodPost, "/api/v1/balances/deposit", token, map[string]string{"currency": "USDT", "amount": "1.25"})
			codes <- resp.status
		}()
	}
	wg.Wait()
	close(codes)

	for code := range codes {
		assert.Equal(t, http.StatusOK, code)
	}

	resp := app.call(t, http.MethodGet, "/api/v1/balances/USDT", token, nil)
	require.Equal(t, http.StatusOK, resp.status)
	assert.Equal(t, fmt.Sprintf("%.2f", 1.25*workers), resp.data()["amount"])
}

func TestAPI_RateLimitedLogin(t *testing.T) {
	app := newTestApp(t, map[string]middleware.RateLimitRule{
		"auth_login": {Limit: 2, Window: time.Minute},
	})

	body := map[string]string{"identifier": "nobody", "password": "whatever"}
	assert.Equal(t, http.StatusNotFound, app.call(t, http.MethodPost, "/api/v1/auth/login", "", body).status)
	assert.Equal(t, http.StatusNotFound, app.call(t, http.MethodPost, "/api/v1/auth/login", "", body).status)

	resp := app.call(t, http.MethodPost, "/api/v1/auth/login", "", body)
	assert.Equal(t, http.StatusTooManyRequests, resp.status)
	assert.Equal(t, "RATE_001", resp.body["error_code"])
}

func TestAPI_Unauthorized(t *testing.T) {
	app := newTestApp(t, nil)

	assert.Equal(t, http.StatusUnauthorized, app.call(t, http.MethodGet, "/api/v1/balances", "", nil).status)
	assert.Equal(t, http.StatusUnauthorized, app.call(t, http.MethodGet, "/api/v1/balances", "not-a-jwt", nil).status)
}
