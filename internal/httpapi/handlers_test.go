package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"farmtech/backend/internal/domain"
	"farmtech/backend/internal/identity"
	"farmtech/backend/internal/service"
	"farmtech/backend/internal/store/memory"
)

type testAPI struct {
	t       *testing.T
	repo    *memory.Store
	auth    *AuthManager
	handler http.Handler
}

// newTestAPI wires the real service, directory and auth manager over the
// seeded in-memory store.
func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	repo := memory.NewSeeded()
	svc := service.New(repo)
	directory := identity.NewDirectory(repo, svc)
	auth := NewAuthManager(testSecret, time.Hour, directory)

	return &testAPI{
		t:       t,
		repo:    repo,
		auth:    auth,
		handler: New(svc, directory, auth, "*").Handler(),
	}
}

func (ta *testAPI) token(staffID string) string {
	ta.t.Helper()
	token, _, err := ta.auth.Issue(domain.Staff{ID: staffID})
	require.NoError(ta.t, err)
	return token
}

func (ta *testAPI) do(method string, path string, staffID string, body any) *httptest.ResponseRecorder {
	ta.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(ta.t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if staffID != "" {
		req.Header.Set("Authorization", "Bearer "+ta.token(staffID))
	}
	rec := httptest.NewRecorder()
	ta.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeBody(t, rec)["ok"])
}

func TestCheckoutDecrementsStock(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(http.MethodPost, "/api/v1/checkout", "STF-KASIR", map[string]any{
		"lines": []map[string]any{{"product_id": "PRD-CANGKUL", "qty": 2}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var body struct {
		Sale domain.Sale `json:"sale"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "STF-KASIR", body.Sale.CashierID)
	assert.Equal(t, int64(170000), body.Sale.Subtotal)
	require.Len(t, body.Sale.Lines, 1)

	product, err := api.repo.GetProduct(t.Context(), "PRD-CANGKUL")
	require.NoError(t, err)
	assert.Equal(t, 23, product.Stock)
}

func TestCheckoutErrorsMapToStatus(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(http.MethodPost, "/api/v1/checkout", "STF-KASIR", map[string]any{
		"lines": []map[string]any{{"product_id": "PRD-POMPA", "qty": 4}},
	})
	require.Equal(t, http.StatusConflict, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "PRD-POMPA", body["product_id"])
	assert.EqualValues(t, 4, body["requested"])
	assert.EqualValues(t, 3, body["available"])

	rec = api.do(http.MethodPost, "/api/v1/checkout", "STF-KASIR", map[string]any{
		"lines": []map[string]any{{"product_id": "PRD-NOPE", "qty": 1}},
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.do(http.MethodPost, "/api/v1/checkout", "STF-KASIR", map[string]any{
		"lines": []map[string]any{{"product_id": "PRD-NPK", "qty": 0}},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())

	rec = api.do(http.MethodPost, "/api/v1/checkout", "STF-KASIR", map[string]any{
		"lines": []map[string]any{{"qty": 1}},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body = decodeBody(t, rec)
	assert.Equal(t, "validation failed", body["error"])
	fields, ok := body["fields"].([]any)
	require.True(t, ok)
	require.Len(t, fields, 1)
	assert.Equal(t, "lines[0].product_id", fields[0].(map[string]any)["field"])

	product, err := api.repo.GetProduct(t.Context(), "PRD-NPK")
	require.NoError(t, err)
	assert.Equal(t, 120, product.Stock)
}

func TestInvalidAmountsAreUnprocessable(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(http.MethodPost, "/api/v1/restocks", "STF-ADMIN", map[string]any{
		"supplier_id": "SUP-TANI",
		"lines":       []map[string]any{{"product_id": "PRD-NPK", "qty": 0, "unit_cost": 14000}},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())

	rec = api.do(http.MethodPost, "/api/v1/restocks", "STF-ADMIN", map[string]any{
		"supplier_id": "SUP-TANI",
		"lines":       []map[string]any{{"product_id": "PRD-NPK", "qty": 5, "unit_cost": 0}},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())

	rec = api.do(http.MethodPost, "/api/v1/products", "STF-ADMIN", map[string]any{
		"name": "Sabit", "price": 30000, "cost": 40000, "stock": 5,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())

	rec = api.do(http.MethodPost, "/api/v1/tickets", "STF-KASIR", map[string]any{
		"technician_id": "TEK-02", "equipment": "Mesin potong rumput",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	id := decodeBody(t, rec)["ticket"].(map[string]any)["id"].(string)

	rec = api.do(http.MethodPost, "/api/v1/tickets/"+id+"/advance", "STF-KASIR", map[string]any{"cost": -1})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())

	rec = api.do(http.MethodGet, "/api/v1/tickets/active", "STF-KASIR", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	for _, raw := range decodeBody(t, rec)["tickets"].([]any) {
		ticket := raw.(map[string]any)
		if ticket["id"] == id {
			assert.Equal(t, "Proses", ticket["status"])
		}
	}
}

func TestCheckoutRegistersMemberFromMemberPhone(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(http.MethodPost, "/api/v1/checkout", "STF-KASIR", map[string]any{
		"member_phone": "081277776666",
		"registration": map[string]any{"name": "Pak Harun"},
		"lines":        []map[string]any{{"product_id": "PRD-NPK", "qty": 1}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	sale := decodeBody(t, rec)["sale"].(map[string]any)
	assert.NotEmpty(t, sale["member_id"])

	rec = api.do(http.MethodGet, "/api/v1/members/by-phone/081277776666", "STF-KASIR", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	member := decodeBody(t, rec)["member"].(map[string]any)
	assert.Equal(t, "Pak Harun", member["name"])
	assert.Equal(t, sale["member_id"], member["id"])
	assert.EqualValues(t, 1, member["tx_count"])
}

func TestCheckoutReplaysIdempotencyKey(t *testing.T) {
	api := newTestAPI(t)
	payload := map[string]any{
		"idempotency_key": "till-1-0001",
		"lines":           []map[string]any{{"product_id": "PRD-NPK", "qty": 3}},
	}

	first := api.do(http.MethodPost, "/api/v1/checkout", "STF-KASIR", payload)
	require.Equal(t, http.StatusCreated, first.Code)
	second := api.do(http.MethodPost, "/api/v1/checkout", "STF-KASIR", payload)
	require.Equal(t, http.StatusCreated, second.Code)

	a := decodeBody(t, first)["sale"].(map[string]any)
	b := decodeBody(t, second)["sale"].(map[string]any)
	assert.Equal(t, a["id"], b["id"])

	product, err := api.repo.GetProduct(t.Context(), "PRD-NPK")
	require.NoError(t, err)
	assert.Equal(t, 117, product.Stock)
}

func TestMemberRegistrationAndLookup(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(http.MethodPost, "/api/v1/members", "STF-KASIR", map[string]any{"name": "Pak Darto", "phone": "081299990000"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = api.do(http.MethodPost, "/api/v1/members", "STF-KASIR", map[string]any{"name": "Bu Darto", "phone": "081299990000"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = api.do(http.MethodGet, "/api/v1/members/by-phone/081299990000", "STF-KASIR", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	member := decodeBody(t, rec)["member"].(map[string]any)
	assert.Equal(t, "Pak Darto", member["name"])

	rec = api.do(http.MethodGet, "/api/v1/members/by-phone/0000", "STF-KASIR", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRestockDropsLineWithoutReprice(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(http.MethodPost, "/api/v1/restocks", "STF-ADMIN", map[string]any{
		"supplier_id": "SUP-TANI",
		"lines": []map[string]any{
			{"product_id": "PRD-NPK", "qty": 10, "unit_cost": 14000},
			{"product_id": "PRD-CANGKUL", "qty": 5, "unit_cost": 90000},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var result domain.RestockResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&result))
	require.Len(t, result.Order.Lines, 1)
	assert.Equal(t, int64(140000), result.Order.Total)
	require.Len(t, result.Dropped, 1)
	assert.Equal(t, "PRD-CANGKUL", result.Dropped[0].ProductID)

	rec = api.do(http.MethodPost, "/api/v1/restocks", "STF-ADMIN", map[string]any{
		"supplier_id": "SUP-TANI",
		"lines":       []map[string]any{{"product_id": "PRD-CANGKUL", "qty": 5, "unit_cost": 90000}},
	})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Len(t, decodeBody(t, rec)["dropped"], 1)
}

func TestTicketFlowAndTechnicianGuard(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(http.MethodPost, "/api/v1/tickets", "STF-KASIR", map[string]any{
		"technician_id": "TEK-01", "equipment": "Hand sprayer", "complaint": "Bocor",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	ticket := decodeBody(t, rec)["ticket"].(map[string]any)
	id := ticket["id"].(string)
	assert.Equal(t, "Proses", ticket["status"])
	assert.Equal(t, "STF-KASIR", ticket["cashier_id"])

	rec = api.do(http.MethodDelete, "/api/v1/technicians/TEK-01", "STF-ADMIN", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = api.do(http.MethodPost, "/api/v1/tickets/"+id+"/advance", "STF-KASIR", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = api.do(http.MethodPost, "/api/v1/tickets/"+id+"/advance", "STF-KASIR", map[string]any{"cost": 75000})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Selesai", decodeBody(t, rec)["ticket"].(map[string]any)["status"])

	rec = api.do(http.MethodGet, "/api/v1/tickets/active", "STF-KASIR", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody(t, rec)["tickets"], 1)

	rec = api.do(http.MethodPost, "/api/v1/tickets/"+id+"/advance", "STF-KASIR", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = api.do(http.MethodPost, "/api/v1/tickets/"+id+"/advance", "STF-KASIR", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = api.do(http.MethodDelete, "/api/v1/technicians/TEK-01", "STF-ADMIN", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = api.do(http.MethodPost, "/api/v1/tickets/unknown/advance", "STF-KASIR", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReviseAndStaleReport(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(http.MethodPost, "/api/v1/stale-flags/revise", "STF-OWNER", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.EqualValues(t, 2, decodeBody(t, rec)["flagged"])

	rec = api.do(http.MethodGet, "/api/v1/reports/stale", "STF-OWNER", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Rows []domain.StaleReportRow `json:"rows"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Len(t, body.Rows, 2)
	assert.Equal(t, "PRD-PARANG", body.Rows[0].ProductID)
	assert.Equal(t, int64(52000), body.Rows[0].DiscountedPrice)
	assert.Equal(t, "PRD-POMPA", body.Rows[1].ProductID)

	rec = api.do(http.MethodPost, "/api/v1/stale-flags/revise", "STF-ADMIN", map[string]any{"as_of": "20-05-2026"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReportsValidatePeriod(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(http.MethodGet, "/api/v1/reports/sales?year=2026&month=13", "STF-OWNER", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = api.do(http.MethodGet, "/api/v1/reports/services?year=2026&month=5", "STF-OWNER", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var report domain.ServiceReport
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&report))
	assert.Len(t, report.Rows, 2)

	rec = api.do(http.MethodGet, "/api/v1/reports/stock", "STF-ADMIN", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stock struct {
		Rows []domain.StockReportRow `json:"rows"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&stock))
	require.NotEmpty(t, stock.Rows)
	assert.Equal(t, "PRD-POMPA", stock.Rows[0].ProductID)
	assert.True(t, stock.Rows[0].LowStock)
}
