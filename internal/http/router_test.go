package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/keeper-escrow/backend/internal/auth"
	"github.com/keeper-escrow/backend/internal/config"
	apphttp "github.com/keeper-escrow/backend/internal/http"
	"github.com/keeper-escrow/backend/internal/http/handlers"
	"github.com/keeper-escrow/backend/internal/ledger"
	"github.com/keeper-escrow/backend/internal/memstore"
	"github.com/keeper-escrow/backend/internal/models"
	"github.com/keeper-escrow/backend/internal/services"
)

const secret = "test-secret"

var (
	depositor = "0:" + strings.Repeat("d", 64)
	keeper    = "0:" + strings.Repeat("a", 64)
	stranger  = "0:" + strings.Repeat("b", 64)
	admin     = "0:" + strings.Repeat("c", 64)
)

type testAPI struct {
	app   *fiber.App
	store *memstore.Store
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	log := zap.NewNop()
	store := memstore.New()
	cfg := &config.Config{AdminIdentities: []string{admin}}

	authService := services.NewAuthService(memstore.NewNonceStore(nil), nil, services.AuthConfig{
		JWTSecret:     secret,
		JWTExpiration: time.Hour,
	}, log)
	orderService := services.NewOrderService(store, nil, nil, services.DefaultTimeoutPolicy(), log)

	app := fiber.New()
	apphttp.SetupRouter(app, apphttp.RouterDeps{
		Log:           log,
		Authn:         authService,
		Admins:        cfg,
		AuthHandler:   handlers.NewAuthHandler(authService, log),
		OrderHandler:  handlers.NewOrderHandler(orderService, log),
		LedgerHandler: handlers.NewLedgerHandler(services.NewLedgerService(store, log), log),
	})

	require.NoError(t, store.Credit(context.Background(), depositor, "USDT", 10_000))
	return &testAPI{app: app, store: store}
}

type apiResponse struct {
	OK    bool            `json:"ok"`
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error"`
	Code  string          `json:"code"`
}

func (a *testAPI) do(t *testing.T, method, path, identity string, body any) (int, apiResponse) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if identity != "" {
		token, err := auth.GenerateJWT(secret, identity, "", time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := a.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out apiResponse
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func decodeOrder(t *testing.T, r apiResponse) models.DepositOrder {
	t.Helper()
	var o models.DepositOrder
	require.NoError(t, json.Unmarshal(r.Data, &o))
	return o
}

func createBody(id string) map[string]any {
	return map[string]any{
		"order_id":        id,
		"amount":          "1000",
		"asset":           "USDT",
		"keeper":          keeper,
		"timeout_seconds": 600,
	}
}

func TestOrderLifecycleOverHTTP(t *testing.T) {
	a := newTestAPI(t)

	status, _ := a.do(t, nethttp.MethodPost, "/api/v1/orders", "", createBody("7"))
	assert.Equal(t, fiber.StatusUnauthorized, status)

	status, res := a.do(t, nethttp.MethodPost, "/api/v1/orders", depositor, createBody("7"))
	require.Equal(t, fiber.StatusCreated, status, res.Error)
	o := decodeOrder(t, res)
	assert.Equal(t, uint64(7), o.OrderID)
	assert.Equal(t, models.OrderStatusInitialized, o.Status)
	assert.Equal(t, ledger.EscrowAccount(7, "USDT"), o.EscrowAccount)

	status, res = a.do(t, nethttp.MethodPost, "/api/v1/orders", depositor, createBody("7"))
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, "duplicate_order", res.Code)

	status, res = a.do(t, nethttp.MethodPost, "/api/v1/orders/USDT/7/execute", keeper, map[string]any{"amount": "10"})
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, "invalid_order_status", res.Code)

	status, res = a.do(t, nethttp.MethodPost, "/api/v1/orders/USDT/7/ready", depositor, nil)
	assert.Equal(t, fiber.StatusForbidden, status)
	assert.Equal(t, "unauthorized", res.Code)

	status, res = a.do(t, nethttp.MethodPost, "/api/v1/orders/USDT/7/ready", keeper, nil)
	require.Equal(t, fiber.StatusOK, status, res.Error)
	assert.Equal(t, models.OrderStatusReadyToExecute, decodeOrder(t, res).Status)

	status, res = a.do(t, nethttp.MethodPost, "/api/v1/orders/USDT/7/execute", keeper, map[string]any{"amount": "abc"})
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "invalid_amount", res.Code)

	status, res = a.do(t, nethttp.MethodPost, "/api/v1/orders/USDT/7/execute", keeper, map[string]any{"amount": "400"})
	require.Equal(t, fiber.StatusOK, status, res.Error)
	o = decodeOrder(t, res)
	assert.Equal(t, uint64(400), o.CompletedAmount)
	assert.Equal(t, models.OrderStatusReadyToExecute, o.Status)

	status, res = a.do(t, nethttp.MethodPost, "/api/v1/orders/USDT/7/execute", keeper, map[string]any{"amount": "601"})
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "invalid_amount", res.Code)

	status, res = a.do(t, nethttp.MethodPost, "/api/v1/orders/USDT/7/cancel", depositor, nil)
	assert.Equal(t, fiber.StatusConflict, status, "ready and not expired")
	assert.Equal(t, "invalid_order_status", res.Code)

	status, _ = a.do(t, nethttp.MethodGet, "/api/v1/orders/USDT/7", stranger, nil)
	assert.Equal(t, fiber.StatusForbidden, status)

	status, res = a.do(t, nethttp.MethodGet, "/api/v1/orders/USDT/7", keeper, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, uint64(400), decodeOrder(t, res).CompletedAmount)

	status, res = a.do(t, nethttp.MethodGet, "/api/v1/orders/USDT/7/events", depositor, nil)
	require.Equal(t, fiber.StatusOK, status)
	var history []models.AuditLog
	require.NoError(t, json.Unmarshal(res.Data, &history))
	require.Len(t, history, 3)
	assert.Equal(t, services.ActionOrderExecuted, history[0].Action)
}

func TestCreateOrderRejectsOtherDepositor(t *testing.T) {
	a := newTestAPI(t)

	body := createBody("1")
	body["depositor"] = stranger
	status, res := a.do(t, nethttp.MethodPost, "/api/v1/orders", depositor, body)
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Equal(t, "authentication_failure", res.Code)

	body = createBody("1")
	body["keeper"] = "not-an-address"
	status, _ = a.do(t, nethttp.MethodPost, "/api/v1/orders", depositor, body)
	assert.Equal(t, fiber.StatusBadRequest, status)

	body = createBody("1")
	body["timeout_seconds"] = 10
	status, res = a.do(t, nethttp.MethodPost, "/api/v1/orders", depositor, body)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "invalid_timeout", res.Code)

	body = createBody("1")
	body["amount"] = "20000"
	status, res = a.do(t, nethttp.MethodPost, "/api/v1/orders", depositor, body)
	assert.Equal(t, fiber.StatusUnprocessableEntity, status)
	assert.Equal(t, "insufficient_funds", res.Code)
}

func TestListOrdersByRole(t *testing.T) {
	a := newTestAPI(t)
	for _, id := range []string{"1", "2"} {
		status, res := a.do(t, nethttp.MethodPost, "/api/v1/orders", depositor, createBody(id))
		require.Equal(t, fiber.StatusCreated, status, res.Error)
	}

	list := func(identity, query string) []models.DepositOrder {
		status, res := a.do(t, nethttp.MethodGet, "/api/v1/orders"+query, identity, nil)
		require.Equal(t, fiber.StatusOK, status, res.Error)
		var page struct {
			Items []models.DepositOrder `json:"items"`
		}
		require.NoError(t, json.Unmarshal(res.Data, &page))
		return page.Items
	}

	assert.Len(t, list(keeper, ""), 2)
	assert.Len(t, list(keeper, "?role=keeper"), 2)
	assert.Len(t, list(keeper, "?role=depositor"), 0)
	assert.Len(t, list(stranger, ""), 0)
	assert.Len(t, list(depositor, "?status=initialized&limit=1"), 1)

	status, _ := a.do(t, nethttp.MethodGet, "/api/v1/orders?role=admin", depositor, nil)
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestLedgerEndpoints(t *testing.T) {
	a := newTestAPI(t)
	credit := map[string]any{"account": stranger, "asset": "USDT", "amount": "50"}

	status, _ := a.do(t, nethttp.MethodPost, "/api/v1/admin/ledger/credit", stranger, credit)
	assert.Equal(t, fiber.StatusForbidden, status)

	status, res := a.do(t, nethttp.MethodPost, "/api/v1/admin/ledger/credit", admin, credit)
	require.Equal(t, fiber.StatusOK, status, res.Error)

	status, res = a.do(t, nethttp.MethodGet, "/api/v1/ledger/balances/"+stranger+"?asset=USDT", "", nil)
	require.Equal(t, fiber.StatusOK, status, res.Error)
	var bal models.LedgerBalance
	require.NoError(t, json.Unmarshal(res.Data, &bal))
	assert.Equal(t, uint64(50), bal.Balance)

	status, _ = a.do(t, nethttp.MethodGet, "/api/v1/ledger/balances/"+stranger, "", nil)
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestAuthPayload(t *testing.T) {
	a := newTestAPI(t)
	status, res := a.do(t, nethttp.MethodPost, "/api/v1/auth/ton/payload", "", nil)
	require.Equal(t, fiber.StatusOK, status)

	var p struct {
		Payload string `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(res.Data, &p))
	assert.Len(t, p.Payload, 64)

	login := map[string]any{
		"address":    keeper,
		"public_key": strings.Repeat("00", 32),
		"proof":      map[string]any{"payload": "never-issued", "timestamp": time.Now().Unix()},
	}
	status, _ = a.do(t, nethttp.MethodPost, "/api/v1/auth/ton/login", "", login)
	assert.Equal(t, fiber.StatusBadRequest, status, "state_init is required")

	login["state_init"] = "te6ccgEBAQEAAgAAAA=="
	status, _ = a.do(t, nethttp.MethodPost, "/api/v1/auth/ton/login", "", login)
	assert.Equal(t, fiber.StatusUnauthorized, status)
}
