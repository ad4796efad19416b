package sales

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kasirku/kasir/internal/platform/httpx"
	"github.com/kasirku/kasir/internal/rbac"
)

// Handler exposes the sales report.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler builds Handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers GET /sales-report for admins.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.rbac.RequireAdmin()).Get("/sales-report", h.Report)
}

// Report handles GET /orders/sales-report?startDate&endDate.
func (h *Handler) Report(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rng, err := ParseRange(q.Get("startDate"), q.Get("endDate"), h.service.Location())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	report, err := h.service.Report(r.Context(), rng)
	if err != nil {
		h.logger.Error("sales report", slog.String("request_id", middleware.GetReqID(r.Context())), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}
