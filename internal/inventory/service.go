package inventory

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/kasirku/kasir/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	List(ctx context.Context) ([]Product, error)
	ListByCategory(ctx context.Context, category Category) ([]Product, error)
	Get(ctx context.Context, id int64) (Product, error)
	Create(ctx context.Context, p Product) (Product, error)
	SweepExpired(ctx context.Context, today string) (int64, error)
}

// ImagePort stores product photos.
type ImagePort interface {
	Save(r io.Reader) (string, error)
	Remove(name string) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ReportInvalidator drops cached sales reports after order items change.
type ReportInvalidator interface {
	Invalidate(ctx context.Context) error
}

// Service coordinates catalogue operations.
type Service struct {
	repo        RepositoryPort
	images      ImagePort
	audit       AuditPort
	invalidator ReportInvalidator
	logger      *slog.Logger
	loc         *time.Location
	now         func() time.Time
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	// Location decides which calendar day counts as today for expiry.
	Location *time.Location
	Clock    func() time.Time
	Logger   *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, images ImagePort, audit AuditPort, invalidator ReportInvalidator, cfg ServiceConfig) *Service {
	s := &Service{
		repo:        repo,
		images:      images,
		audit:       audit,
		invalidator: invalidator,
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

func (s *Service) today() time.Time {
	return Today(s.now(), s.loc)
}

// List returns all products.
func (s *Service) List(ctx context.Context) ([]Product, error) {
	return s.repo.List(ctx)
}

// ListByCategory filters by category. "all" returns every product.
func (s *Service) ListByCategory(ctx context.Context, raw string) ([]Product, error) {
	if strings.EqualFold(strings.TrimSpace(raw), "all") {
		return s.repo.List(ctx)
	}
	category, err := ParseCategory(raw)
	if err != nil {
		return nil, err
	}
	return s.repo.ListByCategory(ctx, category)
}

// Get returns a single product.
func (s *Service) Get(ctx context.Context, id int64) (Product, error) {
	return s.repo.Get(ctx, id)
}

// Create validates in, stores the optional image and inserts the product.
// A packaged product that is already expired is created with zero stock.
func (s *Service) Create(ctx context.Context, in ProductInput, image io.Reader) (Product, error) {
	p, err := in.normalize(s.today())
	if err != nil {
		return Product{}, err
	}
	if image != nil {
		name, err := s.images.Save(image)
		if err != nil {
			return Product{}, err
		}
		p.Image = name
	}
	created, err := s.repo.Create(ctx, p)
	if err != nil {
		s.removeImage(p.Image)
		return Product{}, err
	}
	return created, nil
}

// Update replaces the editable fields of product id under a row lock.
// A new image replaces the old one once the update commits.
func (s *Service) Update(ctx context.Context, id int64, in ProductInput, image io.Reader) (Product, error) {
	p, err := in.normalize(s.today())
	if err != nil {
		return Product{}, err
	}
	p.ID = id
	var newImage string
	if image != nil {
		if newImage, err = s.images.Save(image); err != nil {
			return Product{}, err
		}
	}

	var oldImage string
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		oldImage = current.Image
		p.Image = current.Image
		if newImage != "" {
			p.Image = newImage
		}
		return tx.Update(ctx, p)
	})
	if err != nil {
		s.removeImage(newImage)
		return Product{}, err
	}
	if newImage != "" && oldImage != "" {
		s.removeImage(oldImage)
	}
	return s.repo.Get(ctx, id)
}

// SetStock overrides the stock of product id. Expired packaged goods stay at zero.
func (s *Service) SetStock(ctx context.Context, id int64, stock int) (Product, error) {
	if stock < 0 {
		return Product{}, ErrNegativeStock
	}
	if stock > math.MaxInt32 {
		return Product{}, ErrStockTooLarge
	}
	today := s.today()
	var previous, applied int
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		previous = current.Stock
		applied = stock
		if current.Expired(today) {
			applied = 0
		}
		return tx.SetStock(ctx, id, applied)
	})
	if err != nil {
		return Product{}, err
	}
	s.record(ctx, shared.AuditLog{
		ActorID:  shared.ActorID(ctx),
		Action:   shared.AuditStockOverridden,
		Entity:   "product",
		EntityID: strconv.FormatInt(id, 10),
		Meta:     map[string]any{"from": previous, "to": applied, "requested": stock},
	})
	return s.repo.Get(ctx, id)
}

// Delete removes the product and the order items referencing it in one
// transaction, then deletes its image.
func (s *Service) Delete(ctx context.Context, id int64) error {
	var (
		image   string
		removed int64
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		image = current.Image
		if removed, err = tx.DeleteOrderItems(ctx, id); err != nil {
			return err
		}
		return tx.Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	s.removeImage(image)
	if removed > 0 && s.invalidator != nil {
		if err := s.invalidator.Invalidate(ctx); err != nil {
			s.logger.Warn("invalidate sales report cache", slog.Any("error", err))
		}
	}
	s.record(ctx, shared.AuditLog{
		ActorID:  shared.ActorID(ctx),
		Action:   shared.AuditProductDeleted,
		Entity:   "product",
		EntityID: strconv.FormatInt(id, 10),
		Meta:     map[string]any{"order_items_removed": removed},
	})
	return nil
}

func (s *Service) removeImage(name string) {
	if name == "" || s.images == nil {
		return
	}
	if err := s.images.Remove(name); err != nil {
		s.logger.Warn("remove product image", slog.String("image", name), slog.Any("error", err))
	}
}

func (s *Service) record(ctx context.Context, log shared.AuditLog) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, log); err != nil {
		s.logger.Warn("audit record failed", slog.String("action", log.Action), slog.Any("error", err))
	}
}

// SweepExpiredStock zeroes the stock of every packaged product whose
// expiry date is today or earlier and returns how many rows changed.
// Rows already at zero are skipped, so repeated runs are no-ops.
func (s *Service) SweepExpiredStock(ctx context.Context) (int64, error) {
	n, err := s.repo.SweepExpired(ctx, s.today().Format(DateLayout))
	if err != nil {
		return 0, fmt.Errorf("inventory: sweep expired stock: %w", err)
	}
	return n, nil
}
