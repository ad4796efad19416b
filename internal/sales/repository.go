package sales

import (
	"context"
	"fmt"
	"time"

	"github.com/kasirku/kasir/internal/platform/db"
)

// paidFilter matches every spelling of a settled payment ever written.
const paidFilter = `lower(o.payment_status) IN ('paid', 'lunas')`

// Repository runs the report aggregates against Postgres.
type Repository struct {
	pool db.Pool
}

// NewRepository builds Repository.
func NewRepository(pool db.Pool) *Repository {
	return &Repository{pool: pool}
}

// Daily buckets paid orders by calendar day in the range's zone.
func (r *Repository) Daily(ctx context.Context, rng Range) ([]DailySales, error) {
	rows, err := r.pool.Query(ctx, `SELECT (o.created_at AT TIME ZONE $3)::date AS day, COUNT(*), COALESCE(SUM(o.total_amount), 0)::bigint
FROM orders o
WHERE `+paidFilter+` AND o.created_at >= $1 AND o.created_at < $2
GROUP BY day
ORDER BY day ASC`, rng.From(), rng.Until(), rng.Zone())
	if err != nil {
		return nil, fmt.Errorf("sales: daily: %w", err)
	}
	defer rows.Close()
	out := []DailySales{}
	for rows.Next() {
		var (
			day time.Time
			d   DailySales
		)
		if err := rows.Scan(&day, &d.Sales, &d.Revenue); err != nil {
			return nil, err
		}
		d.Date = day.Format(DateLayout)
		out = append(out, d)
	}
	return out, rows.Err()
}

// Products sums quantities per product, best sellers first.
func (r *Repository) Products(ctx context.Context, rng Range) ([]ProductSold, error) {
	rows, err := r.pool.Query(ctx, `SELECT p.id, p.name, SUM(oi.quantity)::bigint AS total_sold
FROM order_items oi
JOIN orders o ON o.id = oi.order_id
JOIN products p ON p.id = oi.product_id
WHERE `+paidFilter+` AND o.created_at >= $1 AND o.created_at < $2
GROUP BY p.id, p.name
ORDER BY total_sold DESC, p.id ASC`, rng.From(), rng.Until())
	if err != nil {
		return nil, fmt.Errorf("sales: products: %w", err)
	}
	defer rows.Close()
	out := []ProductSold{}
	for rows.Next() {
		var p ProductSold
		if err := rows.Scan(&p.ID, &p.Name, &p.TotalSold); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Totals counts paid orders and their revenue.
func (r *Repository) Totals(ctx context.Context, rng Range) (Summary, error) {
	var s Summary
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*), COALESCE(SUM(o.total_amount), 0)::bigint
FROM orders o
WHERE `+paidFilter+` AND o.created_at >= $1 AND o.created_at < $2`, rng.From(), rng.Until()).Scan(&s.TotalOrders, &s.TotalRevenue)
	if err != nil {
		return Summary{}, fmt.Errorf("sales: totals: %w", err)
	}
	return s, nil
}
