package v1

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmledger/internal/core/apperror"
	appctx "pharmledger/internal/core/context"
	"pharmledger/internal/domain/inventory"
	"pharmledger/internal/domain/sales"
	"pharmledger/internal/infrastructure/export"
	"pharmledger/internal/infrastructure/http/v1/dto"
	"pharmledger/internal/infrastructure/http/v1/middleware"
	"pharmledger/internal/infrastructure/storage/memory"
	"pharmledger/internal/infrastructure/storage/postgres"
	"pharmledger/pkg/logger"
)

const (
	pharmacistToken = "pharmacist-token"
	managerToken    = "manager-token"
)

type staticValidator map[string]*appctx.UserContext

func (v staticValidator) ValidateToken(token string) (*appctx.UserContext, error) {
	if u, ok := v[token]; ok {
		return u, nil
	}
	return nil, apperror.NewUnauthorized("invalid token")
}

// memoryIdempotency keeps settled responses in a map.
type memoryIdempotency struct {
	mu      sync.Mutex
	pending map[string]bool
	replays map[string]*postgres.IdempotencyReplay
}

func newMemoryIdempotency() *memoryIdempotency {
	return &memoryIdempotency{
		pending: make(map[string]bool),
		replays: make(map[string]*postgres.IdempotencyReplay),
	}
}

func (m *memoryIdempotency) AcquireKey(_ context.Context, key, _, _, _ string) (*postgres.IdempotencyReplay, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.replays[key]; ok {
		return r, nil
	}
	if m.pending[key] {
		return nil, apperror.NewIdempotencyConflict(key)
	}
	m.pending[key] = true
	return nil, nil
}

func (m *memoryIdempotency) settle(key string, status int, contentType string, body []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pending, key)
	m.replays[key] = &postgres.IdempotencyReplay{StatusCode: status, ContentType: contentType, Body: body}
}

func (m *memoryIdempotency) CompleteKey(_ context.Context, key string, status int, contentType string, body []byte) error {
	m.settle(key, status, contentType, body)
	return nil
}

func (m *memoryIdempotency) FailKey(_ context.Context, key string, status int, contentType string, body []byte) error {
	m.settle(key, status, contentType, body)
	return nil
}

func (m *memoryIdempotency) ReleaseKey(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pending, key)
	return nil
}

type testAPI struct {
	t      *testing.T
	router http.Handler
	store  *memory.Store
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	store := memory.New()
	inv := inventory.NewService(store, store)
	router, err := NewRouter(RouterConfig{
		Inventory: inv,
		Sales:     sales.NewService(store, inv, store, store),
		Logger:    logger.NewNop(),
		JWTValidator: staticValidator{
			pharmacistToken: {UserID: "u-pharm", Username: "pat", Roles: []string{appctx.RolePharmacist}},
			managerToken:    {UserID: "u-mgr", Username: "max", Roles: []string{appctx.RoleManager}},
		},
		Idempotency: newMemoryIdempotency(),
	})
	require.NoError(t, err)
	return &testAPI{t: t, router: router, store: store}
}

func (a *testAPI) do(method, path, token string, body any, headers ...string) *httptest.ResponseRecorder {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

type errorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details"`
}

// stockedProduct creates a product with 50 pieces per box and receives boxes onto the shelf.
func (a *testAPI) stockedProduct(boxes int64) dto.ProductResponse {
	a.t.Helper()
	w := a.do(http.MethodPost, "/api/v1/products", managerToken, map[string]any{
		"name":         "Paracetamol 500mg",
		"unitsPerPack": 10,
		"packsPerBox":  5,
		"sellingPrice": "2.00",
	})
	require.Equal(a.t, http.StatusCreated, w.Code, w.Body.String())
	p := decode[dto.ProductResponse](a.t, w)

	if boxes > 0 {
		w = a.do(http.MethodPost, "/api/v1/products/"+p.ID+"/batches", pharmacistToken, map[string]any{
			"containers": boxes,
			"location":   "shelf",
			"expiryDate": "2099-12-31",
		})
		require.Equal(a.t, http.StatusCreated, w.Code, w.Body.String())
	}
	return p
}

func TestHealthLive(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(http.MethodGet, "/health/live", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = api.do(http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuth(t *testing.T) {
	api := newTestAPI(t)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"unknown token", "Bearer nope", http.StatusUnauthorized},
		{"valid token", "Bearer " + pharmacistToken, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := api.do(http.MethodGet, "/api/v1/products", "", nil, "Authorization", tt.header)
			assert.Equal(t, tt.want, w.Code)
			if tt.want == http.StatusUnauthorized {
				assert.Equal(t, apperror.CodeUnauthorized, decode[errorBody](t, w).Code)
			}
		})
	}
}

func TestManagerRoutesRejectPharmacist(t *testing.T) {
	api := newTestAPI(t)
	p := api.stockedProduct(1)

	w := api.do(http.MethodPost, "/api/v1/products/"+p.ID+"/transfer", pharmacistToken, map[string]any{
		"pieces":      10,
		"destination": "backroom",
	})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, apperror.CodeForbidden, decode[errorBody](t, w).Code)

	w = api.do(http.MethodPost, "/api/v1/products/"+p.ID+"/transfer", managerToken, map[string]any{
		"pieces":      10,
		"destination": "backroom",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	moved := decode[dto.TransferResponse](t, w)
	assert.Equal(t, int64(10), moved.Transferred)
	assert.Zero(t, moved.Shortfall)
	require.Len(t, moved.Movements, 2, "source decrement plus inbound entry on the split batch")
	assert.NotEqual(t, moved.Movements[0].BatchID, moved.Movements[1].BatchID)
}

func TestDispense(t *testing.T) {
	api := newTestAPI(t)
	p := api.stockedProduct(1)

	w := api.do(http.MethodPost, "/api/v1/products/"+p.ID+"/dispense", pharmacistToken, map[string]any{"pieces": 20})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[dto.DispenseResponse](t, w)
	assert.Equal(t, int64(20), res.Dispensed)
	assert.Zero(t, res.Shortfall)
	require.Len(t, res.Movements, 1)
	assert.Equal(t, "sale", res.Movements[0].Reason)
	assert.Equal(t, int64(20), res.Movements[0].Quantity)

	w = api.do(http.MethodPost, "/api/v1/products/"+p.ID+"/dispense", pharmacistToken, map[string]any{"pieces": 40})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())
	body := decode[errorBody](t, w)
	assert.Equal(t, apperror.CodeInsufficientStock, body.Code)
	assert.EqualValues(t, 10, body.Details["shortfall"])

	w = api.do(http.MethodGet, "/api/v1/products/"+p.ID+"/stock", pharmacistToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(30), decode[dto.StockSummaryResponse](t, w).Available.TotalPieces)
}

func TestCheckout(t *testing.T) {
	api := newTestAPI(t)
	p := api.stockedProduct(3)

	w := api.do(http.MethodPost, "/api/v1/sales", pharmacistToken, map[string]any{
		"cashReceived": "50.00",
		"lines": []map[string]any{
			{"productId": p.ID, "quantity": 2, "unitType": "pack"},
		},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	sale := decode[dto.SaleResponse](t, w)
	assert.Equal(t, "INV-000001", sale.InvoiceNumber)
	assert.Equal(t, "40.00", sale.FinalAmount)
	assert.Equal(t, "10.00", sale.ChangeAmount)
	assert.Equal(t, "u-pharm", sale.UserID)
	require.Len(t, sale.Lines, 1)
	assert.Equal(t, int64(20), sale.Lines[0].PiecesDispensed)

	w = api.do(http.MethodGet, "/api/v1/products/"+p.ID+"/stock", pharmacistToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	summary := decode[dto.StockSummaryResponse](t, w)
	assert.Equal(t, int64(130), summary.Available.TotalPieces)
	assert.Equal(t, int64(2), summary.Available.Boxes)
	assert.Equal(t, int64(3), summary.Available.Packs)
}

func TestCheckoutRejectsInvalidBody(t *testing.T) {
	api := newTestAPI(t)
	p := api.stockedProduct(1)

	w := api.do(http.MethodPost, "/api/v1/sales", pharmacistToken, map[string]any{
		"cashReceived": "10.00",
		"lines": []map[string]any{
			{"productId": p.ID, "quantity": 1, "unitType": "crate"},
		},
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	body := decode[errorBody](t, w)
	assert.Equal(t, apperror.CodeValidation, body.Code)
	assert.Contains(t, body.Details, "unitType")
}

func TestCheckoutShortfallLeavesNoSale(t *testing.T) {
	api := newTestAPI(t)
	p := api.stockedProduct(1)

	w := api.do(http.MethodPost, "/api/v1/sales", pharmacistToken, map[string]any{
		"cashReceived": "1000.00",
		"lines": []map[string]any{
			{"productId": p.ID, "quantity": 2, "unitType": "box"},
		},
	})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())
	assert.Equal(t, apperror.CodeInsufficientStock, decode[errorBody](t, w).Code)

	w = api.do(http.MethodGet, "/api/v1/sales", pharmacistToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[dto.ListResponse[dto.SaleResponse]](t, w).Items)

	w = api.do(http.MethodGet, "/api/v1/products/"+p.ID+"/stock", pharmacistToken, nil)
	assert.Equal(t, int64(50), decode[dto.StockSummaryResponse](t, w).Available.TotalPieces)
}

func TestCheckoutIdempotencyReplay(t *testing.T) {
	api := newTestAPI(t)
	p := api.stockedProduct(1)

	body := map[string]any{
		"cashReceived": "2.00",
		"lines": []map[string]any{
			{"productId": p.ID, "quantity": 1, "unitType": "piece"},
		},
	}
	first := api.do(http.MethodPost, "/api/v1/sales", pharmacistToken, body, middleware.HeaderIdempotencyKey, "till-1-0001")
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())

	second := api.do(http.MethodPost, "/api/v1/sales", pharmacistToken, body, middleware.HeaderIdempotencyKey, "till-1-0001")
	require.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
	assert.JSONEq(t, first.Body.String(), second.Body.String())

	w := api.do(http.MethodGet, "/api/v1/products/"+p.ID+"/stock", pharmacistToken, nil)
	assert.Equal(t, int64(49), decode[dto.StockSummaryResponse](t, w).Available.TotalPieces)
}

func TestRefundLifecycle(t *testing.T) {
	api := newTestAPI(t)
	p := api.stockedProduct(1)

	w := api.do(http.MethodPost, "/api/v1/sales", pharmacistToken, map[string]any{
		"cashReceived": "20.00",
		"lines": []map[string]any{
			{"productId": p.ID, "quantity": 1, "unitType": "pack"},
		},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	sale := decode[dto.SaleResponse](t, w)

	w = api.do(http.MethodPost, "/api/v1/refunds", pharmacistToken, map[string]any{
		"saleId": sale.ID,
		"reason": "customer_request",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	refund := decode[dto.RefundResponse](t, w)
	assert.Equal(t, "pending", refund.Status)
	assert.Equal(t, "20.00", refund.AmountRefunded)
	assert.Equal(t, int64(10), refund.PiecesRestored)

	w = api.do(http.MethodPost, "/api/v1/refunds", pharmacistToken, map[string]any{
		"saleId": sale.ID,
		"reason": "customer_request",
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = api.do(http.MethodPost, "/api/v1/refunds/"+refund.ID+"/approve", pharmacistToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = api.do(http.MethodPost, "/api/v1/refunds/"+refund.ID+"/approve", managerToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	approved := decode[dto.RefundResponse](t, w)
	assert.Equal(t, "approved", approved.Status)
	assert.Equal(t, "u-mgr", approved.ApprovedBy)

	w = api.do(http.MethodPost, "/api/v1/refunds/"+refund.ID+"/reject", managerToken, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = api.do(http.MethodGet, "/api/v1/products/"+p.ID+"/stock", pharmacistToken, nil)
	assert.Equal(t, int64(50), decode[dto.StockSummaryResponse](t, w).Available.TotalPieces)
}

func TestInvalidPathID(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(http.MethodGet, "/api/v1/products/not-a-uuid", pharmacistToken, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(http.MethodGet, "/api/v1/batches/0190f5a0-0000-7000-8000-000000000000", pharmacistToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, apperror.CodeNotFound, decode[errorBody](t, w).Code)
}

func TestExportMovements(t *testing.T) {
	api := newTestAPI(t)
	p := api.stockedProduct(1)

	w := api.do(http.MethodGet, "/api/v1/movements?productId="+p.ID, pharmacistToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	list := decode[dto.ListResponse[dto.MovementResponse]](t, w)
	require.Len(t, list.Items, 1)
	assert.Equal(t, "transfer", list.Items[0].Reason)
	assert.Equal(t, int64(50), list.Items[0].Quantity)

	w = api.do(http.MethodGet, "/api/v1/movements/export?productId="+p.ID, managerToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, export.ContentTypeXLSX, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "movements-")
	assert.NotZero(t, w.Body.Len())
}

func TestRecoveryRendersInternalError(t *testing.T) {
	store := memory.New()
	inv := inventory.NewService(store, store)
	router, err := NewRouter(RouterConfig{
		Inventory:    inv,
		Sales:        sales.NewService(store, inv, store, store),
		Logger:       logger.NewNop(),
		JWTValidator: staticValidator{},
	})
	require.NoError(t, err)
	router.GET("/boom", func(*gin.Context) { panic("till drawer jammed") })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	body := decode[errorBody](t, w)
	assert.Equal(t, apperror.CodeInternal, body.Code)
	assert.NotContains(t, w.Body.String(), "till drawer jammed")
	assert.NotEmpty(t, w.Header().Get(middleware.HeaderRequestID))
}
