package users

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kasirku/kasir/internal/rbac"
	"github.com/kasirku/kasir/internal/shared"
)

func newUserRouter(svc *Service, who shared.Identity) http.Handler {
	h := NewHandler(svc.logger, svc, rbac.Middleware{Logger: svc.logger})
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(shared.ContextWithIdentity(req.Context(), who)))
		})
	})
	r.Route("/api/users", h.MountRoutes)
	return r
}

func serve(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandlerAdminLifecycle(t *testing.T) {
	svc, _, _ := newTestService()
	router := newUserRouter(svc, shared.Identity{UserID: 100, Role: shared.RoleAdmin})

	rec := serve(router, http.MethodPost, "/api/users/", `{"username":"siti","email":"siti@warung.id","password":"rahasia1","role":"cashier"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "password_hash")
	var created userResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotZero(t, created.UserID)

	rec = serve(router, http.MethodPost, "/api/users/", `{"username":"siti","email":"x@warung.id","password":"rahasia1","role":"cashier"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = serve(router, http.MethodPut, "/api/users/1", `{"email":"siti@kasir.id"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = serve(router, http.MethodGet, "/api/users/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "siti@kasir.id", list[0].Email)

	assert.Equal(t, http.StatusOK, serve(router, http.MethodDelete, "/api/users/1", "").Code)
	assert.Equal(t, http.StatusNotFound, serve(router, http.MethodGet, "/api/users/1", "").Code)
	assert.Equal(t, http.StatusBadRequest, serve(router, http.MethodGet, "/api/users/abc", "").Code)
}

func TestHandlerCashierScope(t *testing.T) {
	svc, _, _ := newTestService()
	user, err := svc.Create(adminCtx(1), CreateInput{Username: "budi", Email: "budi@warung.id", Password: "rahasia1", Role: "cashier"})
	require.NoError(t, err)
	router := newUserRouter(svc, shared.Identity{UserID: user.ID, Role: shared.RoleCashier})

	assert.Equal(t, http.StatusForbidden, serve(router, http.MethodGet, "/api/users/", "").Code)
	assert.Equal(t, http.StatusForbidden, serve(router, http.MethodDelete, "/api/users/1", "").Code)

	rec := serve(router, http.MethodGet, "/api/users/profile/me", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var me User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
	assert.Equal(t, "budi", me.Username)

	rec = serve(router, http.MethodPost, "/api/users/change-password", `{"currentPassword":"wrong","newPassword":"baru12345"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = serve(router, http.MethodPost, "/api/users/change-password", `{"currentPassword":"rahasia1","newPassword":"baru12345"}`)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}
