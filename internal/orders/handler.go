package orders

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kasirku/kasir/internal/platform/httpx"
	"github.com/kasirku/kasir/internal/rbac"
	"github.com/kasirku/kasir/internal/shared"
)

// IdempotencyHeader lets a till retry POST /orders without double-selling.
const IdempotencyHeader = "Idempotency-Key"

const idempotencyScope = "orders:create"

// IdempotencyPort remembers which order a client key produced.
type IdempotencyPort interface {
	Claim(ctx context.Context, scope, key string) (string, bool, error)
	Complete(ctx context.Context, scope, key, result string) error
	Release(ctx context.Context, scope, key string) error
}

// Handler exposes order endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	idem    IdempotencyPort
	rbac    rbac.Middleware
}

// NewHandler builds Handler. idem may be nil.
func NewHandler(logger *slog.Logger, service *Service, idem IdempotencyPort, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, idem: idem, rbac: rbac}
}

type placedResponse struct {
	Message string `json:"message"`
	Order   Order  `json:"order"`
}

type messageResponse struct {
	Message string `json:"message"`
	Order   *Order `json:"order,omitempty"`
}

// Create handles POST /orders.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req PlaceOrderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	ctx := r.Context()

	key := r.Header.Get(IdempotencyHeader)
	if key != "" && h.idem != nil {
		prior, claimed, err := h.idem.Claim(ctx, idempotencyScope, key)
		switch {
		case errors.Is(err, shared.ErrIdempotencyInFlight):
			httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
			return
		case err != nil:
			// keep selling when redis is unavailable
			h.logger.Warn("idempotency claim failed", slog.Any("error", err))
			key = ""
		case !claimed:
			h.replay(w, r, prior)
			return
		}
	}

	order, err := h.service.PlaceOrder(ctx, req.toInput())
	if err != nil {
		if key != "" {
			if rerr := h.idem.Release(context.WithoutCancel(ctx), idempotencyScope, key); rerr != nil {
				h.logger.Warn("idempotency release failed", slog.Any("error", rerr))
			}
		}
		h.fail(w, r, "place order", err)
		return
	}
	if key != "" {
		if err := h.idem.Complete(context.WithoutCancel(ctx), idempotencyScope, key, strconv.FormatInt(order.ID, 10)); err != nil {
			h.logger.Warn("idempotency complete failed", slog.Int64("order_id", order.ID), slog.Any("error", err))
		}
	}
	h.logger.Info("order placed",
		slog.Int64("order_id", order.ID),
		slog.Int64("total_amount", order.TotalAmount),
		slog.Int("items", len(order.Items)),
		slog.String("request_id", middleware.GetReqID(ctx)))
	httpx.JSON(w, http.StatusCreated, placedResponse{Message: "Order created successfully", Order: order})
}

func (h *Handler) replay(w http.ResponseWriter, r *http.Request, prior string) {
	id, err := strconv.ParseInt(prior, 10, 64)
	if err != nil {
		h.fail(w, r, "idempotency replay", err)
		return
	}
	order, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, "idempotency replay", err)
		return
	}
	httpx.JSON(w, http.StatusOK, placedResponse{Message: "Order already created", Order: order})
}

// List handles GET /orders.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	orders, err := h.service.List(r.Context())
	if err != nil {
		h.fail(w, r, "list orders", err)
		return
	}
	httpx.JSON(w, http.StatusOK, orders)
}

// Payments handles GET /orders/payments.
func (h *Handler) Payments(w http.ResponseWriter, r *http.Request) {
	orders, err := h.service.ListPayments(r.Context())
	if err != nil {
		h.fail(w, r, "list payments", err)
		return
	}
	httpx.JSON(w, http.StatusOK, orders)
}

// Show handles GET /orders/{id}.
func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	id, err := orderID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	order, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, "get order", err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

// UpdateStatus handles PATCH /orders/{id}/status.
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := orderID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req UpdateStatusRequest
	if err := decodeValid(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	order, err := h.service.UpdateStatus(r.Context(), id, req.Status)
	if err != nil {
		h.fail(w, r, "update order status", err)
		return
	}
	httpx.JSON(w, http.StatusOK, messageResponse{Message: "Order status updated successfully", Order: &order})
}

// UpdatePayment handles PATCH /orders/{id}/payment.
func (h *Handler) UpdatePayment(w http.ResponseWriter, r *http.Request) {
	id, err := orderID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req UpdatePaymentRequest
	if err := decodeValid(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	order, err := h.service.UpdatePaymentStatus(r.Context(), id, req.PaymentStatus)
	if err != nil {
		h.fail(w, r, "update payment status", err)
		return
	}
	httpx.JSON(w, http.StatusOK, messageResponse{Message: "Payment status updated successfully", Order: &order})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	if httpx.IsClientError(err) {
		h.logger.Info(op+" rejected", slog.String("request_id", middleware.GetReqID(r.Context())), slog.String("reason", err.Error()))
	} else {
		h.logger.Error(op, slog.String("request_id", middleware.GetReqID(r.Context())), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func decodeValid(r *http.Request, dst any) error {
	if err := httpx.DecodeJSON(r, dst); err != nil {
		return err
	}
	return httpx.Validate(dst)
}

func orderID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, httpx.NewError(httpx.ErrValidation, "orders: invalid order id")
	}
	return id, nil
}
