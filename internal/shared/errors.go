package shared

import (
	"errors"

	"github.com/kasirku/kasir/internal/platform/httpx"
)

var (
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = httpx.NewError(httpx.ErrUnauthorized, "invalid credentials")
	// ErrIdempotencyInFlight means another request holds the same idempotency key.
	ErrIdempotencyInFlight = errors.New("request with this idempotency key is still in progress")
)
