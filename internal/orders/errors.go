package orders

import (
	"errors"
	"fmt"

	"github.com/kasirku/kasir/internal/platform/httpx"
)

var (
	ErrEmptyCart            = httpx.NewError(httpx.ErrValidation, "orders: cart is empty")
	ErrInvalidQuantity      = httpx.NewError(httpx.ErrValidation, "orders: quantity must be greater than zero")
	ErrInvalidPrice         = httpx.NewError(httpx.ErrValidation, "orders: price cannot be negative")
	ErrQuantityTooLarge     = httpx.NewError(httpx.ErrValidation, "orders: quantity is too large")
	ErrTotalTooLarge        = httpx.NewError(httpx.ErrValidation, "orders: order total is too large")
	ErrInvalidProduct       = httpx.NewError(httpx.ErrValidation, "orders: product id is required")
	ErrMissingCustomerInfo  = httpx.NewError(httpx.ErrValidation, "orders: customer_name and table_number are required")
	ErrTotalMismatch        = httpx.NewError(httpx.ErrValidation, "orders: total_amount does not match items")
	ErrInvalidStatus        = httpx.NewError(httpx.ErrValidation, "orders: invalid status")
	ErrInvalidPaymentStatus = httpx.NewError(httpx.ErrValidation, "orders: payment_status must be pending or paid")
	ErrOrderNotFound        = httpx.NewError(httpx.ErrNotFound, "orders: order not found")

	ErrProductNotFound   = httpx.NewError(httpx.ErrConflict, "product not found")
	ErrInsufficientStock = httpx.NewError(httpx.ErrConflict, "insufficient stock")

	// ErrPersistence marks store failures. The placement was rolled back.
	ErrPersistence = errors.New("orders: persistence failure")
)

// ProductError names the cart product that made a placement fail.
type ProductError struct {
	ProductID int64
	Name      string
	Requested int
	Available int
	Err       error
}

func (e *ProductError) Error() string {
	if errors.Is(e.Err, ErrInsufficientStock) {
		return fmt.Sprintf("orders: insufficient stock for product %d (%s): requested %d, available %d", e.ProductID, e.Name, e.Requested, e.Available)
	}
	return fmt.Sprintf("orders: %v: %d", e.Err, e.ProductID)
}

func (e *ProductError) Unwrap() error { return e.Err }

// OffendingProduct lets the HTTP layer report the product id.
func (e *ProductError) OffendingProduct() int64 { return e.ProductID }

// RejectionReason labels an error for metrics.
func RejectionReason(err error) string {
	switch {
	case errors.Is(err, ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, ErrProductNotFound):
		return "product_not_found"
	case errors.Is(err, httpx.ErrValidation):
		return "validation"
	default:
		return "persistence"
	}
}
