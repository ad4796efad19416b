package sales

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Store is the aggregate query surface of Repository.
type Store interface {
	Daily(ctx context.Context, rng Range) ([]DailySales, error)
	Products(ctx context.Context, rng Range) ([]ProductSold, error)
	Totals(ctx context.Context, rng Range) (Summary, error)
}

// Service builds sales reports, serving repeats from Cache.
type Service struct {
	store  Store
	cache  *Cache
	loc    *time.Location
	logger *slog.Logger
	group  singleflight.Group
}

// NewService wires a Store with a Cache helper. cache may be nil.
func NewService(store Store, cache *Cache, loc *time.Location, logger *slog.Logger) *Service {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, cache: cache, loc: loc, logger: logger}
}

// Location is the zone report days are counted in.
func (s *Service) Location() *time.Location {
	return s.loc
}

// Report aggregates paid orders created within rng.
func (s *Service) Report(ctx context.Context, rng Range) (Report, error) {
	parts := []string{rng.Start.Format(DateLayout), rng.End.Format(DateLayout), rng.Zone()}
	key, err := s.cache.BuildKey(ctx, parts...)
	if err != nil {
		s.logger.Warn("sales report cache unavailable", slog.Any("error", err))
		return s.load(ctx, rng)
	}

	var cached Report
	if found, err := s.cache.Get(ctx, key, &cached); err != nil {
		s.logger.Warn("sales report cache read failed", slog.String("key", key), slog.Any("error", err))
	} else if found {
		return cached, nil
	}

	v, err, _ := s.group.Do(key, func() (any, error) {
		report, err := s.load(ctx, rng)
		if err != nil {
			return nil, err
		}
		if err := s.cache.Set(ctx, key, report); err != nil {
			s.logger.Warn("sales report cache write failed", slog.String("key", key), slog.Any("error", err))
		}
		return report, nil
	})
	if err != nil {
		return Report{}, err
	}
	return v.(Report), nil
}

func (s *Service) load(ctx context.Context, rng Range) (Report, error) {
	var report Report
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		report.DailySales, err = s.store.Daily(gctx, rng)
		return err
	})
	g.Go(func() (err error) {
		report.ProductsSummary, err = s.store.Products(gctx, rng)
		return err
	})
	g.Go(func() (err error) {
		report.Summary, err = s.store.Totals(gctx, rng)
		return err
	})
	if err := g.Wait(); err != nil {
		return Report{}, err
	}
	if report.DailySales == nil {
		report.DailySales = []DailySales{}
	}
	if report.ProductsSummary == nil {
		report.ProductsSummary = []ProductSold{}
	}
	return report, nil
}

// Invalidate drops every cached report. It satisfies the invalidator ports
// of the orders and inventory services.
func (s *Service) Invalidate(ctx context.Context) error {
	return s.cache.Bump(ctx)
}
