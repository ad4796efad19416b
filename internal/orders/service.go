package orders

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/kasirku/kasir/internal/inventory"
	"github.com/kasirku/kasir/internal/platform/httpx"
	"github.com/kasirku/kasir/internal/shared"
)

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ReportInvalidator drops cached sales reports.
type ReportInvalidator interface {
	Invalidate(ctx context.Context) error
}

// EventPublisher emits domain events after commit.
type EventPublisher interface {
	Publish(ctx context.Context, eventType, key string, payload any) error
}

// MetricsPort records placement outcomes.
type MetricsPort interface {
	OrderPlaced(total int64)
	OrderRejected(reason string)
}

// EventOrderPlaced is published once per committed order.
const EventOrderPlaced = "order.placed"

// OrderPlacedPayload is the body of EventOrderPlaced.
type OrderPlacedPayload struct {
	OrderID     int64       `json:"order_id"`
	TotalAmount int64       `json:"total_amount"`
	Items       []OrderItem `json:"items"`
}

// Service coordinates order placement and staff transitions.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	invalidator ReportInvalidator
	events      EventPublisher
	metrics     MetricsPort
	logger      *slog.Logger
	loc         *time.Location
	now         func() time.Time
}

// ServiceConfig groups optional collaborators. Nil fields are skipped.
type ServiceConfig struct {
	Audit       AuditPort
	Invalidator ReportInvalidator
	Events      EventPublisher
	Metrics     MetricsPort
	Logger      *slog.Logger
	// Location decides which calendar day counts as today for expiry.
	Location *time.Location
	Clock    func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, cfg ServiceConfig) *Service {
	s := &Service{
		repo:        repo,
		audit:       cfg.Audit,
		invalidator: cfg.Invalidator,
		events:      cfg.Events,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger,
		loc:         cfg.Location,
		now:         cfg.Clock,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// placement is a validated cart: the header to insert, the lines as
// submitted, and the total demand per distinct product.
type placement struct {
	header Order
	lines  []CartLine
	demand map[int64]int
	ids    []int64
}

func (s *Service) prepare(in PlaceOrderInput) (placement, error) {
	if len(in.Items) == 0 {
		return placement{}, ErrEmptyCart
	}
	p := placement{demand: make(map[int64]int, len(in.Items))}
	var total int64
	for _, line := range in.Items {
		if line.ProductID <= 0 {
			return placement{}, ErrInvalidProduct
		}
		if line.Quantity <= 0 {
			return placement{}, &ProductError{ProductID: line.ProductID, Requested: line.Quantity, Err: ErrInvalidQuantity}
		}
		if line.Quantity > math.MaxInt32 {
			return placement{}, &ProductError{ProductID: line.ProductID, Requested: line.Quantity, Err: ErrQuantityTooLarge}
		}
		if line.Price < 0 {
			return placement{}, &ProductError{ProductID: line.ProductID, Err: ErrInvalidPrice}
		}
		// total_amount is a BIGINT; refuse lines that would wrap it
		if line.Price > (math.MaxInt64-total)/int64(line.Quantity) {
			return placement{}, &ProductError{ProductID: line.ProductID, Requested: line.Quantity, Err: ErrTotalTooLarge}
		}
		if _, seen := p.demand[line.ProductID]; !seen {
			p.ids = append(p.ids, line.ProductID)
		}
		// duplicate lines for a product share one stock check and one write
		p.demand[line.ProductID] += line.Quantity
		p.lines = append(p.lines, line)
		total += line.Price * int64(line.Quantity)
	}
	sort.Slice(p.ids, func(i, j int) bool { return p.ids[i] < p.ids[j] })

	customer := strings.TrimSpace(in.CustomerName)
	table := strings.TrimSpace(in.TableNumber)
	if customer == "" || table == "" {
		return placement{}, ErrMissingCustomerInfo
	}
	if err := httpx.Validate(in); err != nil {
		return placement{}, err
	}
	if in.DeclaredTotal != 0 && in.DeclaredTotal != total {
		return placement{}, fmt.Errorf("%w: declared %d, items sum to %d", ErrTotalMismatch, in.DeclaredTotal, total)
	}

	status := StatusPending
	if in.Status != "" {
		parsed, err := ParseStatus(in.Status)
		if err != nil {
			return placement{}, err
		}
		status = parsed
	}
	payment := PaymentPending
	if in.PaymentStatus != "" {
		parsed, err := ParsePaymentStatus(in.PaymentStatus)
		if err != nil {
			return placement{}, err
		}
		payment = parsed
	}

	p.header = Order{
		TotalAmount:   total,
		PaymentMethod: strings.TrimSpace(in.PaymentMethod),
		CustomerName:  customer,
		TableNumber:   table,
		Status:        status,
		PaymentStatus: payment,
	}
	return p, nil
}

// PlaceOrder validates the cart, then in one transaction locks every
// referenced product, re-checks availability on the locked rows, inserts
// the order and its items and writes each product's new stock once.
// Any failure rolls the whole placement back.
func (s *Service) PlaceOrder(ctx context.Context, in PlaceOrderInput) (Order, error) {
	p, err := s.prepare(in)
	if err != nil {
		s.rejected(err)
		return Order{}, err
	}

	var placed Order
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		today := inventory.Today(s.now(), s.loc)
		snapshot, err := tx.LockStock(ctx, p.ids)
		if err != nil {
			return err
		}
		for _, id := range p.ids {
			row, ok := snapshot[id]
			if !ok {
				return &ProductError{ProductID: id, Requested: p.demand[id], Err: ErrProductNotFound}
			}
			if avail := row.Available(today); avail < p.demand[id] {
				return &ProductError{ProductID: id, Name: row.Name, Requested: p.demand[id], Available: avail, Err: ErrInsufficientStock}
			}
		}

		orderID, err := tx.InsertOrder(ctx, p.header)
		if err != nil {
			return err
		}
		items := make([]OrderItem, 0, len(p.lines))
		for _, line := range p.lines {
			items = append(items, OrderItem{OrderID: orderID, ProductID: line.ProductID, Quantity: line.Quantity, PricePerUnit: line.Price})
		}
		if err := tx.InsertItems(ctx, items); err != nil {
			return err
		}
		for _, id := range p.ids {
			if err := tx.WriteStock(ctx, id, max(0, snapshot[id].Stock-p.demand[id])); err != nil {
				return err
			}
		}

		placed, err = tx.GetOrder(ctx, orderID)
		return err
	})
	if err != nil {
		if !httpx.IsClientError(err) {
			err = fmt.Errorf("%w: %w", ErrPersistence, err)
		}
		s.rejected(err)
		return Order{}, err
	}

	if s.metrics != nil {
		s.metrics.OrderPlaced(placed.TotalAmount)
	}
	if placed.PaymentStatus == PaymentPaid {
		s.invalidateReports(ctx)
	}
	s.publishPlaced(ctx, placed)
	return placed, nil
}

func (s *Service) rejected(err error) {
	if s.metrics != nil {
		s.metrics.OrderRejected(RejectionReason(err))
	}
}

func (s *Service) publishPlaced(ctx context.Context, o Order) {
	if s.events == nil {
		return
	}
	payload := OrderPlacedPayload{OrderID: o.ID, TotalAmount: o.TotalAmount, Items: o.Items}
	if err := s.events.Publish(ctx, EventOrderPlaced, strconv.FormatInt(o.ID, 10), payload); err != nil {
		s.logger.Warn("publish order placed", slog.Int64("order_id", o.ID), slog.Any("error", err))
	}
}

func (s *Service) invalidateReports(ctx context.Context) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.Invalidate(ctx); err != nil {
		s.logger.Warn("invalidate sales report cache", slog.Any("error", err))
	}
}

// List returns all orders newest first.
func (s *Service) List(ctx context.Context) ([]Order, error) {
	return s.repo.List(ctx)
}

// ListPayments returns orders with unsettled bills first.
func (s *Service) ListPayments(ctx context.Context) ([]Order, error) {
	return s.repo.ListPayments(ctx)
}

// Get returns one order with items.
func (s *Service) Get(ctx context.Context, id int64) (Order, error) {
	return s.repo.Get(ctx, id)
}

// UpdateStatus moves an order to the status named by raw, which may be any
// accepted spelling.
func (s *Service) UpdateStatus(ctx context.Context, id int64, raw string) (Order, error) {
	status, err := ParseStatus(raw)
	if err != nil {
		return Order{}, err
	}
	if err := s.repo.UpdateStatus(ctx, id, status); err != nil {
		return Order{}, err
	}
	s.record(ctx, shared.AuditOrderStatus, id, map[string]any{"status": status})
	return s.repo.Get(ctx, id)
}

// UpdatePaymentStatus sets payment_status to pending or paid.
func (s *Service) UpdatePaymentStatus(ctx context.Context, id int64, raw string) (Order, error) {
	status, err := parsePaymentTransition(raw)
	if err != nil {
		return Order{}, err
	}
	if err := s.repo.UpdatePaymentStatus(ctx, id, status); err != nil {
		return Order{}, err
	}
	s.invalidateReports(ctx)
	s.record(ctx, shared.AuditOrderPayment, id, map[string]any{"payment_status": status})
	return s.repo.Get(ctx, id)
}

func (s *Service) record(ctx context.Context, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  shared.ActorID(ctx),
		Action:   action,
		Entity:   "order",
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
	})
	if err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}
