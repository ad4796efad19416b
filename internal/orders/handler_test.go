package orders

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kasirku/kasir/internal/inventory"
	"github.com/kasirku/kasir/internal/rbac"
	"github.com/kasirku/kasir/internal/shared"
)

type handlerFixture struct {
	store  *memStore
	router http.Handler
	redis  *miniredis.Miniredis
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := newMemStore()
	store.addProduct(inventory.StockRow{ID: 1, Name: "Nasi Goreng", Stock: 5})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(store, ServiceConfig{Logger: logger})
	h := NewHandler(logger, svc, shared.NewIdempotencyStore(client, time.Hour), rbac.Middleware{Logger: logger})

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if role := req.Header.Get("X-Test-Role"); role != "" {
				ctx := shared.ContextWithIdentity(req.Context(), shared.Identity{UserID: 7, Role: shared.Role(role)})
				req = req.WithContext(ctx)
			}
			next.ServeHTTP(w, req)
		})
	})
	r.Route("/api/orders", h.MountRoutes)
	return &handlerFixture{store: store, router: r, redis: mr}
}

func (f *handlerFixture) do(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Test-Role", string(shared.RoleCashier))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

const placeBody = `{"items":[{"id":1,"quantity":2,"price":15000}],"total_amount":30000,"payment_method":"cash","customer_name":"Budi","table_number":"4"}`

func TestHandlerCreateOrder(t *testing.T) {
	f := newHandlerFixture(t)
	rec := f.do(http.MethodPost, "/api/orders/", placeBody, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var got placedResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "Order created successfully", got.Message)
	assert.Equal(t, int64(30000), got.Order.TotalAmount)
	assert.Equal(t, "Nasi Goreng x2", got.Order.ItemsSummary)
	assert.Equal(t, 3, f.store.stock(1))
}

func TestHandlerCreateOrderInsufficientStock(t *testing.T) {
	f := newHandlerFixture(t)
	rec := f.do(http.MethodPost, "/api/orders/",
		`{"items":[{"id":1,"quantity":9,"price":15000}],"customer_name":"Budi","table_number":"4"}`, nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

	var problem map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	assert.EqualValues(t, 1, problem["product_id"])
	assert.Equal(t, 5, f.store.stock(1))
}

func TestHandlerCreateOrderValidation(t *testing.T) {
	f := newHandlerFixture(t)
	for name, body := range map[string]string{
		"empty cart":     `{"items":[],"customer_name":"Budi","table_number":"4"}`,
		"zero quantity":  `{"items":[{"id":1,"quantity":0,"price":1}],"customer_name":"Budi","table_number":"4"}`,
		"no customer":    `{"items":[{"id":1,"quantity":1,"price":1}],"table_number":"4"}`,
		"malformed json": `{"items":`,
	} {
		rec := f.do(http.MethodPost, "/api/orders/", body, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, name)
	}
	assert.Zero(t, f.store.orderCount())
}

func TestHandlerCreateOrderIdempotentReplay(t *testing.T) {
	f := newHandlerFixture(t)
	headers := map[string]string{IdempotencyHeader: "till-1-0001"}

	first := f.do(http.MethodPost, "/api/orders/", placeBody, headers)
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())
	second := f.do(http.MethodPost, "/api/orders/", placeBody, headers)
	require.Equal(t, http.StatusOK, second.Code, second.Body.String())

	var a, b placedResponse
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &a))
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &b))
	assert.Equal(t, a.Order.ID, b.Order.ID)
	assert.Equal(t, "Order already created", b.Message)
	assert.Equal(t, 3, f.store.stock(1), "replay must not sell twice")
	assert.Equal(t, 1, f.store.orderCount())
}

func TestHandlerCreateOrderReleasesKeyOnFailure(t *testing.T) {
	f := newHandlerFixture(t)
	headers := map[string]string{IdempotencyHeader: "till-1-0002"}
	tooMany := `{"items":[{"id":1,"quantity":9,"price":15000}],"customer_name":"Budi","table_number":"4"}`

	require.Equal(t, http.StatusConflict, f.do(http.MethodPost, "/api/orders/", tooMany, headers).Code)
	assert.False(t, f.redis.Exists("idem:orders:create:till-1-0002"))

	rec := f.do(http.MethodPost, "/api/orders/", placeBody, headers)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestHandlerCreateOrderInFlightKey(t *testing.T) {
	f := newHandlerFixture(t)
	require.NoError(t, f.redis.Set("idem:orders:create:busy", "__pending__"))

	rec := f.do(http.MethodPost, "/api/orders/", placeBody, map[string]string{IdempotencyHeader: "busy"})
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Zero(t, f.store.orderCount())
}

func TestHandlerCreateOrderWithoutRedis(t *testing.T) {
	f := newHandlerFixture(t)
	f.redis.SetError("LOADING redis is loading")

	rec := f.do(http.MethodPost, "/api/orders/", placeBody, map[string]string{IdempotencyHeader: "k"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestHandlerRequiresIdentity(t *testing.T) {
	f := newHandlerFixture(t)
	rec := f.do(http.MethodGet, "/api/orders/", "", map[string]string{"X-Test-Role": ""})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandlerStatusAndPaymentUpdates(t *testing.T) {
	f := newHandlerFixture(t)
	require.Equal(t, http.StatusCreated, f.do(http.MethodPost, "/api/orders/", placeBody, nil).Code)

	rec := f.do(http.MethodPatch, "/api/orders/1/status", `{"status":"Selesai"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var msg messageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &msg))
	require.NotNil(t, msg.Order)
	assert.Equal(t, StatusCompleted, msg.Order.Status)

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPatch, "/api/orders/1/status", `{"status":"lost"}`, nil).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPatch, "/api/orders/1/status", `{}`, nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodPatch, "/api/orders/99/status", `{"status":"selesai"}`, nil).Code)

	rec = f.do(http.MethodPatch, "/api/orders/1/payment", `{"payment_status":"PAID"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPatch, "/api/orders/1/payment", `{"payment_status":"lunas"}`, nil).Code)

	rec = f.do(http.MethodGet, "/api/orders/1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var order Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &order))
	assert.Equal(t, PaymentPaid, order.PaymentStatus)
	require.Len(t, order.Items, 1)

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/api/orders/abc", "", nil).Code)
}

func TestHandlerListEndpoints(t *testing.T) {
	f := newHandlerFixture(t)
	require.Equal(t, http.StatusCreated, f.do(http.MethodPost, "/api/orders/", placeBody, nil).Code)

	for _, path := range []string{"/api/orders/", "/api/orders/payments"} {
		rec := f.do(http.MethodGet, path, "", nil)
		require.Equal(t, http.StatusOK, rec.Code, path)
		var list []Order
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
		assert.Len(t, list, 1, path)
	}
}
