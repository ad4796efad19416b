package orders

import (
	"github.com/go-chi/chi/v5"
)

// MountRoutes registers order routes. Every staff role may take orders and
// settle payments.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireStaff())
		r.Get("/", h.List)
		r.Post("/", h.Create)
		r.Get("/payments", h.Payments)
		r.Get("/{id}", h.Show)
		r.Patch("/{id}/status", h.UpdateStatus)
		r.Patch("/{id}/payment", h.UpdatePayment)
	})
}
