package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cloud-clicker/internal/domain"
	"cloud-clicker/internal/repository/sqlite"
	"cloud-clicker/internal/service"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := sqlite.Open(filepath.Join(t.TempDir(), "clicker.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	userRepo := sqlite.NewUserRepository(db)
	counterRepo := sqlite.NewCounterRepository(db)
	require.NoError(t, userRepo.Init(ctx))
	require.NoError(t, counterRepo.Init(ctx))

	users := service.NewUserService(userRepo, counterRepo, false)
	clicks := service.NewClickService(counterRepo)
	tokens := service.NewTokenService("e2e-test-secret", time.Hour)

	router := gin.New()
	NewHandler(users, clicks, tokens).RegisterRoutes(router)
	return router
}

func doJSON(t *testing.T, router *gin.Engine, method, path, token string, body any) (int, map[string]json.RawMessage) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	resp := map[string]json.RawMessage{}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w.Code, resp
}

func registerAndLogin(t *testing.T, router *gin.Engine, username, password string) string {
	t.Helper()

	code, _ := doJSON(t, router, http.MethodPost, "/api/register", "", gin.H{"username": username, "password": password})
	require.Equal(t, http.StatusCreated, code)

	code, resp := doJSON(t, router, http.MethodPost, "/api/login", "", gin.H{"username": username, "password": password})
	require.Equal(t, http.StatusOK, code)

	var token string
	require.NoError(t, json.Unmarshal(resp["access_token"], &token))
	require.NotEmpty(t, token)
	return token
}

func intField(t *testing.T, resp map[string]json.RawMessage, key string) int64 {
	t.Helper()
	raw, ok := resp[key]
	require.True(t, ok, "missing field %q", key)
	var v int64
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

func TestRegisterDuplicate(t *testing.T) {
	router := newTestRouter(t)

	code, resp := doJSON(t, router, http.MethodPost, "/api/register", "", gin.H{"username": "alice", "password": "pw1"})
	assert.Equal(t, http.StatusCreated, code)
	assert.JSONEq(t, `"User registered successfully"`, string(resp["msg"]))

	code, resp = doJSON(t, router, http.MethodPost, "/api/register", "", gin.H{"username": "alice", "password": "pw2"})
	assert.Equal(t, http.StatusConflict, code)
	assert.JSONEq(t, `"Username already exists"`, string(resp["msg"]))

	// the first registration still works for login
	code, _ = doJSON(t, router, http.MethodPost, "/api/login", "", gin.H{"username": "alice", "password": "pw1"})
	assert.Equal(t, http.StatusOK, code)
}

func TestRegisterMalformedBody(t *testing.T) {
	router := newTestRouter(t)

	code, _ := doJSON(t, router, http.MethodPost, "/api/register", "", gin.H{"username": "alice"})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestLoginFailuresAreIdentical(t *testing.T) {
	router := newTestRouter(t)
	registerAndLogin(t, router, "alice", "pw1")

	wrongCode, wrongResp := doJSON(t, router, http.MethodPost, "/api/login", "", gin.H{"username": "alice", "password": "nope"})
	unknownCode, unknownResp := doJSON(t, router, http.MethodPost, "/api/login", "", gin.H{"username": "mallory", "password": "pw1"})

	assert.Equal(t, http.StatusUnauthorized, wrongCode)
	assert.Equal(t, http.StatusUnauthorized, unknownCode)
	assert.Equal(t, wrongResp, unknownResp)
	assert.JSONEq(t, `"Bad username or password"`, string(wrongResp["msg"]))
}

func TestGetClicksWithoutToken(t *testing.T) {
	router := newTestRouter(t)

	code, resp := doJSON(t, router, http.MethodGet, "/api/clicks", "", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, int64(0), intField(t, resp, "total_clicks"))
	assert.NotContains(t, resp, "user_clicks")
}

func TestGetClicksWithFreshToken(t *testing.T) {
	router := newTestRouter(t)
	token := registerAndLogin(t, router, "alice", "pw1")

	code, resp := doJSON(t, router, http.MethodGet, "/api/clicks", token, nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, int64(0), intField(t, resp, "total_clicks"))
	assert.Equal(t, int64(0), intField(t, resp, "user_clicks"))
}

func TestGetClicksIgnoresInvalidToken(t *testing.T) {
	router := newTestRouter(t)

	code, resp := doJSON(t, router, http.MethodGet, "/api/clicks", "garbage-token", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.NotContains(t, resp, "user_clicks")
}

func TestPostClicksRequiresToken(t *testing.T) {
	router := newTestRouter(t)

	code, resp := doJSON(t, router, http.MethodPost, "/api/clicks", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.JSONEq(t, `"Token required"`, string(resp["msg"]))

	code, resp = doJSON(t, router, http.MethodPost, "/api/clicks", "garbage-token", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.JSONEq(t, `"Token required"`, string(resp["msg"]))
}

func TestPostClicksRejectsExpiredToken(t *testing.T) {
	router := newTestRouter(t)
	registerAndLogin(t, router, "alice", "pw1")

	expired, err := service.NewTokenService("e2e-test-secret", -time.Minute).Issue(1, "alice")
	require.NoError(t, err)

	code, _ := doJSON(t, router, http.MethodPost, "/api/clicks", expired, nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestClickScenario(t *testing.T) {
	router := newTestRouter(t)

	aliceToken := registerAndLogin(t, router, "alice", "pw1")

	code, resp := doJSON(t, router, http.MethodPost, "/api/clicks", aliceToken, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, int64(1), intField(t, resp, "total_clicks"))
	assert.Equal(t, int64(1), intField(t, resp, "user_clicks"))

	code, resp = doJSON(t, router, http.MethodPost, "/api/clicks", aliceToken, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, int64(2), intField(t, resp, "total_clicks"))
	assert.Equal(t, int64(2), intField(t, resp, "user_clicks"))

	bobToken := registerAndLogin(t, router, "bob", "pw2")

	code, resp = doJSON(t, router, http.MethodPost, "/api/clicks", bobToken, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, int64(3), intField(t, resp, "total_clicks"))
	assert.Equal(t, int64(1), intField(t, resp, "user_clicks"))

	// anonymous readers see the combined total only
	code, resp = doJSON(t, router, http.MethodGet, "/api/clicks", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, int64(3), intField(t, resp, "total_clicks"))
	assert.NotContains(t, resp, "user_clicks")
}

func TestGetClicksIsIdempotent(t *testing.T) {
	router := newTestRouter(t)
	token := registerAndLogin(t, router, "alice", "pw1")

	code, _ := doJSON(t, router, http.MethodPost, "/api/clicks", token, nil)
	require.Equal(t, http.StatusOK, code)

	for range 5 {
		code, resp := doJSON(t, router, http.MethodGet, "/api/clicks", token, nil)
		require.Equal(t, http.StatusOK, code)
		assert.Equal(t, int64(1), intField(t, resp, "total_clicks"))
		assert.Equal(t, int64(1), intField(t, resp, "user_clicks"))
	}
}

type brokenClickService struct{}

func (brokenClickService) Totals(ctx context.Context) (int64, error) {
	return 0, service.ErrStorageUnavailable
}

func (brokenClickService) UserClicks(ctx context.Context, userID int64) (int64, error) {
	return 0, service.ErrStorageUnavailable
}

func (brokenClickService) Increment(ctx context.Context, userID int64) (domain.ClickTotals, error) {
	return domain.ClickTotals{}, errors.New("internal detail that must not leak")
}

func TestStorageFaultsHideDetail(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tokens := service.NewTokenService("e2e-test-secret", time.Hour)

	router := gin.New()
	NewHandler(nil, brokenClickService{}, tokens).RegisterRoutes(router)

	code, resp := doJSON(t, router, http.MethodGet, "/api/clicks", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.JSONEq(t, `"service unavailable"`, string(resp["msg"]))

	token, err := tokens.Issue(1, "alice")
	require.NoError(t, err)
	code, resp = doJSON(t, router, http.MethodPost, "/api/clicks", token, nil)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.NotContains(t, string(resp["msg"]), "internal detail")
}
