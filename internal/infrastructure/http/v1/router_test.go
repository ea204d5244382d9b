package v1

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/apperror"
	appctx "stockledger/internal/core/context"
	"stockledger/internal/core/id"
	"stockledger/internal/domain/auth"
	"stockledger/internal/domain/balance"
	"stockledger/internal/domain/journal"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/infrastructure/http/v1/middleware"
	"stockledger/internal/infrastructure/idempotency"
	"stockledger/internal/infrastructure/metrics"
	"stockledger/internal/infrastructure/storage/memory"
)

const testOrg = "org-1"

var allPermissions = []string{
	auth.PermissionLedgerRead, auth.PermissionLedgerWrite,
	auth.PermissionJournalRead, auth.PermissionJournalWrite,
	auth.PermissionStockRead, auth.PermissionStockWrite,
}

type testAPI struct {
	t      *testing.T
	router *gin.Engine
	store  *memory.Store
	jwt    *auth.JWTService
	token  string
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memory.New()
	balances := balance.NewService(store.Balances(), store, balance.Options{ForbidNegative: true})
	ledgerService := ledger.NewService(store.Ledger(), balances, store, store, store)
	journals := journal.NewService(store.Journals(), ledgerService, balances, store, store, store, store)
	jwtService := auth.NewJWTService(auth.DefaultJWTConfig("test-secret"))

	router := NewRouter(RouterConfig{
		JWTValidator:     jwtService,
		Ledger:           ledgerService,
		Journals:         journals,
		Balances:         balances,
		IdempotencyStore: idempotency.NewMemoryStore(time.Hour),
		Metrics:          metrics.New(),
	})

	api := &testAPI{t: t, router: router, store: store, jwt: jwtService}
	api.token = api.tokenFor(appctx.UserContext{UserID: "u-1", OrganizationID: testOrg, Permissions: allPermissions})
	return api
}

func (a *testAPI) tokenFor(user appctx.UserContext) string {
	a.t.Helper()
	token, _, err := a.jwt.GenerateAccessToken(user)
	require.NoError(a.t, err)
	return token
}

func (a *testAPI) do(method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	a.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(a.t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.token)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

type entryBody struct {
	ID       string `json:"id"`
	Number   int64  `json:"number"`
	Quantity int64  `json:"quantity"`
}

type errorBody struct {
	Code    string         `json:"code"`
	Details map[string]any `json:"details"`
}

type balanceBody struct {
	ClosingBalance int64 `json:"closingBalance"`
	Received       int64 `json:"received"`
}

func movement(item, warehouse id.ID, qty int64, kind ledger.MovementKind) map[string]any {
	return map[string]any{
		"itemId":       item.String(),
		"warehouseId":  warehouse.String(),
		"quantity":     qty,
		"movementKind": string(kind),
	}
}

func (a *testAPI) closing(item, warehouse id.ID) int64 {
	a.t.Helper()
	w := a.do(http.MethodGet, "/api/v1/inventory/balances?itemId="+item.String()+"&warehouseId="+warehouse.String(), nil)
	require.Equal(a.t, http.StatusOK, w.Code, w.Body.String())
	return decode[balanceBody](a.t, w).ClosingBalance
}

func TestPostMovement_UpdatesBalance(t *testing.T) {
	api := newTestAPI(t)
	item, wh := id.New(), id.New()

	w := api.do(http.MethodPost, "/api/v1/inventory/transactions", movement(item, wh, 10, ledger.KindInbound))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	entry := decode[entryBody](t, w)
	assert.EqualValues(t, 1, entry.Number)
	assert.EqualValues(t, 10, entry.Quantity)

	assert.EqualValues(t, 10, api.closing(item, wh))

	w = api.do(http.MethodGet, "/api/v1/inventory/transactions/"+entry.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestUpdateAndDeleteMovement(t *testing.T) {
	api := newTestAPI(t)
	item, wh := id.New(), id.New()

	w := api.do(http.MethodPost, "/api/v1/inventory/transactions", movement(item, wh, 10, ledger.KindInbound))
	require.Equal(t, http.StatusCreated, w.Code)
	entry := decode[entryBody](t, w)

	w = api.do(http.MethodPut, "/api/v1/inventory/transactions/"+entry.ID, movement(item, wh, 4, ledger.KindInbound))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.EqualValues(t, 4, api.closing(item, wh))

	w = api.do(http.MethodDelete, "/api/v1/inventory/transactions/"+entry.ID, nil)
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())
	assert.EqualValues(t, 0, api.closing(item, wh))

	w = api.do(http.MethodGet, "/api/v1/inventory/transactions/"+entry.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, apperror.CodeNotFound, decode[errorBody](t, w).Code)
}

func TestPostMovement_ValidationErrors(t *testing.T) {
	api := newTestAPI(t)
	item, wh := id.New(), id.New()

	w := api.do(http.MethodPost, "/api/v1/inventory/transactions", movement(item, wh, 5, ledger.KindTransfer))
	require.Equal(t, http.StatusBadRequest, w.Code)
	body := decode[errorBody](t, w)
	assert.Equal(t, apperror.CodeValidation, body.Code)
	assert.Contains(t, body.Details["fields"], "direction")

	bad := movement(item, wh, 5, ledger.KindInbound)
	bad["itemId"] = "not-a-uuid"
	w = api.do(http.MethodPost, "/api/v1/inventory/transactions", bad)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode[errorBody](t, w).Details["fields"], "itemId")

	assert.Equal(t, 0, api.store.EntryCount())
}

func TestPostMovement_InsufficientStock(t *testing.T) {
	api := newTestAPI(t)
	item, wh := id.New(), id.New()

	w := api.do(http.MethodPost, "/api/v1/inventory/transactions", movement(item, wh, 3, ledger.KindOutbound))
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, apperror.CodeInsufficientStock, decode[errorBody](t, w).Code)
	assert.Equal(t, 0, api.store.EntryCount())
}

func TestBulkPost_AllOrNothing(t *testing.T) {
	api := newTestAPI(t)
	item, wh := id.New(), id.New()

	w := api.do(http.MethodPost, "/api/v1/inventory/transactions/bulk", map[string]any{
		"entries": []any{
			movement(item, wh, 5, ledger.KindInbound),
			movement(item, wh, 50, ledger.KindOutbound),
		},
	})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())
	assert.Equal(t, 0, api.store.EntryCount())
	assert.EqualValues(t, 0, api.closing(item, wh))

	w = api.do(http.MethodPost, "/api/v1/inventory/transactions/bulk", map[string]any{
		"entries": []any{
			movement(item, wh, 5, ledger.KindInbound),
			movement(item, wh, 2, ledger.KindOutbound),
		},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	resp := decode[struct {
		Items []entryBody `json:"items"`
	}](t, w)
	assert.Len(t, resp.Items, 2)
	assert.EqualValues(t, 3, api.closing(item, wh))
}

func TestIdempotency_ReplaysAndRejectsMismatch(t *testing.T) {
	api := newTestAPI(t)
	item, wh := id.New(), id.New()
	body := movement(item, wh, 10, ledger.KindInbound)

	first := api.do(http.MethodPost, "/api/v1/inventory/transactions", body, middleware.HeaderIdempotencyKey, "key-1")
	require.Equal(t, http.StatusCreated, first.Code)

	second := api.do(http.MethodPost, "/api/v1/inventory/transactions", body, middleware.HeaderIdempotencyKey, "key-1")
	require.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
	assert.JSONEq(t, first.Body.String(), second.Body.String())
	assert.Equal(t, 1, api.store.EntryCount())
	assert.EqualValues(t, 10, api.closing(item, wh))

	other := movement(item, wh, 11, ledger.KindInbound)
	w := api.do(http.MethodPost, "/api/v1/inventory/transactions", other, middleware.HeaderIdempotencyKey, "key-1")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, 1, api.store.EntryCount())
}

func TestIdempotency_FailedRequestReplaysFailure(t *testing.T) {
	api := newTestAPI(t)
	item, wh := id.New(), id.New()
	body := movement(item, wh, 3, ledger.KindOutbound)

	first := api.do(http.MethodPost, "/api/v1/inventory/transactions", body, middleware.HeaderIdempotencyKey, "key-2")
	require.Equal(t, http.StatusUnprocessableEntity, first.Code)

	second := api.do(http.MethodPost, "/api/v1/inventory/transactions", body, middleware.HeaderIdempotencyKey, "key-2")
	assert.Equal(t, http.StatusUnprocessableEntity, second.Code)
	assert.JSONEq(t, first.Body.String(), second.Body.String())
}

func TestSubmitJournal_TransferAndDelete(t *testing.T) {
	api := newTestAPI(t)
	item, src, dst := id.New(), id.New(), id.New()

	w := api.do(http.MethodPost, "/api/v1/inventory/transactions", movement(item, src, 10, ledger.KindInbound))
	require.Equal(t, http.StatusCreated, w.Code)

	w = api.do(http.MethodPost, "/api/v1/inventory/journals", map[string]any{
		"transactionType":        int(journal.TypeTransfer),
		"sourceWarehouseId":      src.String(),
		"destinationWarehouseId": dst.String(),
		"lines": []any{map[string]any{
			"itemId":   item.String(),
			"quantity": 4,
			"rate":     "2.5",
			"lineKind": int(journal.LineSource),
		}},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	resp := decode[struct {
		ID            string   `json:"id"`
		VoucherNumber string   `json:"voucherNumber"`
		EntryIDs      []string `json:"entryIds"`
	}](t, w)
	assert.Len(t, resp.EntryIDs, 2)
	assert.NotEmpty(t, resp.VoucherNumber)
	assert.EqualValues(t, 6, api.closing(item, src))
	assert.EqualValues(t, 4, api.closing(item, dst))

	// Journal-owned entries change only through the journal.
	w = api.do(http.MethodDelete, "/api/v1/inventory/transactions/"+resp.EntryIDs[0], nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, apperror.CodeJournalOwned, decode[errorBody](t, w).Code)

	w = api.do(http.MethodGet, "/api/v1/inventory/journals/"+resp.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = api.do(http.MethodGet, "/api/v1/inventory/journals/"+resp.ID+"/history", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	history := decode[struct {
		Items []struct {
			Action string `json:"action"`
			UserID string `json:"userId"`
		} `json:"items"`
	}](t, w)
	require.Len(t, history.Items, 1)
	assert.Equal(t, "create", history.Items[0].Action)
	assert.Equal(t, "u-1", history.Items[0].UserID)

	w = api.do(http.MethodDelete, "/api/v1/inventory/journals/"+resp.ID, nil)
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())
	assert.EqualValues(t, 10, api.closing(item, src))
	assert.EqualValues(t, 0, api.closing(item, dst))
	assert.Equal(t, 0, api.store.JournalCount())
}

func TestBalances_ReportSummaryAndOpeningStock(t *testing.T) {
	api := newTestAPI(t)
	item, wh := id.New(), id.New()

	w := api.do(http.MethodPost, "/api/v1/inventory/opening-stock", map[string]any{
		"itemId":      item.String(),
		"warehouseId": wh.String(),
		"quantity":    7,
		"rate":        "3",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.EqualValues(t, 7, api.closing(item, wh))

	w = api.do(http.MethodGet, "/api/v1/inventory/balances/report?limit=10", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	report := decode[struct {
		Items      []balanceBody `json:"items"`
		TotalCount int64         `json:"totalCount"`
	}](t, w)
	assert.EqualValues(t, 1, report.TotalCount)

	w = api.do(http.MethodGet, "/api/v1/inventory/balances/summary", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), item.String())

	w = api.do(http.MethodGet, "/api/v1/inventory/balances", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestOpeningStock_GetListUpdateDelete(t *testing.T) {
	api := newTestAPI(t)
	item, wh := id.New(), id.New()

	w := api.do(http.MethodPost, "/api/v1/inventory/opening-stock", map[string]any{
		"itemId":      item.String(),
		"warehouseId": wh.String(),
		"quantity":    7,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[struct {
		ID      string `json:"id"`
		Version int    `json:"version"`
	}](t, w)

	w = api.do(http.MethodPost, "/api/v1/inventory/transactions", movement(item, wh, 2, ledger.KindInbound))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.EqualValues(t, 9, api.closing(item, wh))

	w = api.do(http.MethodGet, "/api/v1/inventory/opening-stock/"+created.ID, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.EqualValues(t, 7, decode[struct {
		Quantity int64 `json:"quantity"`
	}](t, w).Quantity)

	w = api.do(http.MethodGet, "/api/v1/inventory/opening-stock?itemId="+item.String(), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.EqualValues(t, 1, decode[struct {
		TotalCount int64 `json:"totalCount"`
	}](t, w).TotalCount)

	w = api.do(http.MethodPut, "/api/v1/inventory/opening-stock/"+created.ID, map[string]any{
		"version":  created.Version,
		"quantity": 3,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	updated := decode[struct {
		Quantity int64       `json:"quantity"`
		Balance  balanceBody `json:"balance"`
	}](t, w)
	assert.EqualValues(t, 3, updated.Quantity)
	assert.EqualValues(t, 5, updated.Balance.ClosingBalance)

	w = api.do(http.MethodPut, "/api/v1/inventory/opening-stock/"+created.ID, map[string]any{
		"version":  created.Version,
		"quantity": 4,
	})
	assert.Equal(t, http.StatusConflict, w.Code, w.Body.String())

	w = api.do(http.MethodDelete, "/api/v1/inventory/opening-stock/"+created.ID, nil)
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())
	assert.EqualValues(t, 2, api.closing(item, wh))

	w = api.do(http.MethodGet, "/api/v1/inventory/opening-stock/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAuth(t *testing.T) {
	api := newTestAPI(t)
	item, wh := id.New(), id.New()

	api.token = "garbage"
	w := api.do(http.MethodGet, "/api/v1/inventory/transactions", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	api.token = api.tokenFor(appctx.UserContext{UserID: "u-2", OrganizationID: testOrg, Permissions: []string{auth.PermissionLedgerRead}})
	w = api.do(http.MethodPost, "/api/v1/inventory/transactions", movement(item, wh, 1, ledger.KindInbound))
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = api.do(http.MethodGet, "/api/v1/inventory/transactions", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = api.do(http.MethodGet, "/api/v1/inventory/transactions", nil, middleware.HeaderOrganizationID, "org-2")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAuth_AdminActsForOtherOrganization(t *testing.T) {
	api := newTestAPI(t)
	item, wh := id.New(), id.New()

	api.token = api.tokenFor(appctx.UserContext{UserID: "admin", OrganizationID: testOrg, IsAdmin: true})
	w := api.do(http.MethodPost, "/api/v1/inventory/transactions", movement(item, wh, 2, ledger.KindInbound),
		middleware.HeaderOrganizationID, "org-2")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	// The posting belongs to org-2 only.
	assert.EqualValues(t, 0, api.closing(item, wh))
	w = api.do(http.MethodGet, "/api/v1/inventory/balances?itemId="+item.String()+"&warehouseId="+wh.String(), nil,
		middleware.HeaderOrganizationID, "org-2")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 2, decode[balanceBody](t, w).ClosingBalance)
}

func TestHealthAndMetrics(t *testing.T) {
	api := newTestAPI(t)

	w := httptest.NewRecorder()
	api.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	api.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	api.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "stockledger_http_requests_total")
}
