package app

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kasirku/kasir/internal/auth"
	"github.com/kasirku/kasir/internal/inventory"
	"github.com/kasirku/kasir/internal/observability"
	"github.com/kasirku/kasir/internal/orders"
	"github.com/kasirku/kasir/internal/rbac"
	"github.com/kasirku/kasir/internal/sales"
	"github.com/kasirku/kasir/internal/users"
	"github.com/kasirku/kasir/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	Metrics        *observability.Metrics
	RBACMiddleware rbac.Middleware
	AuthMiddleware *auth.Middleware

	AuthHandler      *auth.Handler
	UsersHandler     *users.Handler
	InventoryHandler *inventory.Handler
	OrdersHandler    *orders.Handler
	SalesHandler     *sales.Handler
	JobHandler       *jobs.Handler

	// ImageDir holds uploaded product images served under inventory.ImagePath.
	ImageDir string
}

// NewRouter constructs the chi.Router with kasir defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", params.AuthHandler.MountRoutes)
		r.Group(func(r chi.Router) {
			r.Use(params.AuthMiddleware.Authenticate)
			r.Route("/users", params.UsersHandler.MountRoutes)
			r.Route("/products", params.InventoryHandler.MountRoutes)
			r.Route("/orders", func(r chi.Router) {
				if params.SalesHandler != nil {
					params.SalesHandler.MountRoutes(r)
				}
				params.OrdersHandler.MountRoutes(r)
			})
		})
	})

	if params.JobHandler != nil {
		r.Group(func(r chi.Router) {
			r.Use(params.AuthMiddleware.Authenticate, params.RBACMiddleware.RequireAdmin())
			r.Route("/jobs", params.JobHandler.MountRoutes)
		})
	}

	if params.ImageDir != "" {
		images := http.StripPrefix(inventory.ImagePath, http.FileServer(http.Dir(params.ImageDir)))
		r.Handle(inventory.ImagePath+"*", staticCacheHandler(noDirListing(images)))
	}

	return r
}

// staticCacheHandler wraps a file server with Cache-Control headers.
// Image names are random per upload, so browsers may keep them for a day.
func staticCacheHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=86400")
		next.ServeHTTP(w, r)
	})
}

func noDirListing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}
