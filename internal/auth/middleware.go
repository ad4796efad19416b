package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/kasirku/kasir/internal/platform/httpx"
	"github.com/kasirku/kasir/internal/shared"
)

// Middleware resolves Bearer tokens into request identities.
type Middleware struct {
	tokens      *TokenManager
	revocations *RevocationStore
	logger      *slog.Logger
}

// NewMiddleware constructs Middleware.
func NewMiddleware(tokens *TokenManager, revocations *RevocationStore, logger *slog.Logger) *Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return &Middleware{tokens: tokens, revocations: revocations, logger: logger}
}

// Authenticate rejects requests without a valid, unrevoked Bearer token.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearer(r)
		if !ok {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "access token required")
			return
		}
		claims, err := m.tokens.Parse(raw)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		revoked, err := m.revocations.IsRevoked(r.Context(), claims.ID)
		if err != nil {
			// Redis outages must not lock the till out; signature and expiry still hold.
			m.logger.Warn("revocation check failed",
				slog.String("request_id", middleware.GetReqID(r.Context())),
				slog.Any("error", err))
		}
		if revoked {
			httpx.RespondError(w, ErrInvalidToken)
			return
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithIdentity(r.Context(), claims.Identity())))
	})
}

func bearer(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
