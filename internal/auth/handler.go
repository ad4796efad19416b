package auth

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	"github.com/kasirku/kasir/internal/platform/httpx"
	"github.com/kasirku/kasir/internal/shared"
	"github.com/kasirku/kasir/internal/users"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger     *slog.Logger
	service    *Service
	middleware *Middleware
	loginLimit int
}

// NewHandler constructs a Handler instance. loginPerMinute caps login
// attempts per client IP; zero disables the cap.
func NewHandler(logger *slog.Logger, service *Service, mw *Middleware, loginPerMinute int) *Handler {
	return &Handler{logger: logger, service: service, middleware: mw, loginLimit: loginPerMinute}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	login := r
	if h.loginLimit > 0 {
		login = r.With(httprate.Limit(h.loginLimit, time.Minute,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
				httpx.Problem(w, http.StatusTooManyRequests, "Too Many Requests", "too many login attempts, try again later")
			}),
		))
	}
	login.Post("/login", h.login)
	r.Group(func(r chi.Router) {
		r.Use(h.middleware.Authenticate)
		r.Get("/verify", h.verify)
		r.Post("/logout", h.logout)
	})
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type publicUser struct {
	ID       int64       `json:"id"`
	Username string      `json:"username"`
	Email    string      `json:"email"`
	Role     shared.Role `json:"role"`
}

func toPublic(u users.User) publicUser {
	return publicUser{ID: u.ID, Username: u.Username, Email: u.Email, Role: u.Role}
}

type loginResponse struct {
	Token     string     `json:"token"`
	ExpiresAt time.Time  `json:"expiresAt"`
	User      publicUser `json:"user"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := httpx.Validate(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	session, err := h.service.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		h.fail(w, r, "login", err)
		return
	}
	httpx.JSON(w, http.StatusOK, loginResponse{Token: session.Token, ExpiresAt: session.ExpiresAt, User: toPublic(session.User)})
}

func (h *Handler) verify(w http.ResponseWriter, r *http.Request) {
	id, _ := shared.IdentityFromContext(r.Context())
	user, err := h.service.Current(r.Context(), id)
	if err != nil {
		h.fail(w, r, "verify", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"valid": true, "user": toPublic(user)})
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	id, _ := shared.IdentityFromContext(r.Context())
	if err := h.service.Logout(r.Context(), id); err != nil {
		h.fail(w, r, "logout", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	if !httpx.IsClientError(err) {
		h.logger.Error(op, slog.String("request_id", middleware.GetReqID(r.Context())), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
