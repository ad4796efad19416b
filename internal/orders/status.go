package orders

import (
	"strings"

	"golang.org/x/text/cases"
)

var statusSynonyms = map[string]Status{
	"pending":    StatusPending,
	"processing": StatusProcessing,
	"completed":  StatusCompleted,
	"cancelled":  StatusCancelled,
	"canceled":   StatusCancelled,
	"rejected":   StatusRejected,
	"diproses":   StatusProcessing,
	"selesai":    StatusCompleted,
	"dibatalkan": StatusCancelled,
	"ditolak":    StatusRejected,
}

var paymentSynonyms = map[string]PaymentStatus{
	"pending": PaymentPending,
	"unpaid":  PaymentPending,
	"paid":    PaymentPaid,
	"lunas":   PaymentPaid,
}

func fold(raw string) string {
	return cases.Fold().String(strings.TrimSpace(raw))
}

// ParseStatus maps any accepted spelling of an order status to its canonical value.
func ParseStatus(raw string) (Status, error) {
	if s, ok := statusSynonyms[fold(raw)]; ok {
		return s, nil
	}
	return "", ErrInvalidStatus
}

// ParsePaymentStatus maps any accepted spelling of a payment status,
// including the legacy "unpaid" and "lunas", to its canonical value.
func ParsePaymentStatus(raw string) (PaymentStatus, error) {
	if s, ok := paymentSynonyms[fold(raw)]; ok {
		return s, nil
	}
	return "", ErrInvalidPaymentStatus
}

// parsePaymentTransition accepts only the canonical values, in any case.
func parsePaymentTransition(raw string) (PaymentStatus, error) {
	switch PaymentStatus(fold(raw)) {
	case PaymentPending:
		return PaymentPending, nil
	case PaymentPaid:
		return PaymentPaid, nil
	}
	return "", ErrInvalidPaymentStatus
}

// statusFromDB tolerates rows written before values were canonical.
func statusFromDB(raw string) Status {
	if s, err := ParseStatus(raw); err == nil {
		return s
	}
	return Status(raw)
}

func paymentFromDB(raw string) PaymentStatus {
	if s, err := ParsePaymentStatus(raw); err == nil {
		return s
	}
	return PaymentStatus(raw)
}
