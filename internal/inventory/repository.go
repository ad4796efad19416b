package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/kasirku/kasir/internal/platform/db"
)

// Repository persists products in PostgreSQL.
type Repository struct {
	pool db.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool db.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the locked read-modify-write operations used by service.
type TxRepository interface {
	GetForUpdate(ctx context.Context, id int64) (Product, error)
	Update(ctx context.Context, p Product) error
	SetStock(ctx context.Context, id int64, stock int) error
	DeleteOrderItems(ctx context.Context, productID int64) (int64, error)
	Delete(ctx context.Context, id int64) error
}

type txRepo struct {
	q Querier
}

const productColumns = `id, name, price, category, stock, jenis_produk, tanggal_expired, COALESCE(image, ''), created_at, updated_at`

// WithTx runs fn inside a transaction from platform/db.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{q: tx})
	})
}

// List returns every product ordered by name.
func (r *Repository) List(ctx context.Context) ([]Product, error) {
	return r.query(ctx, `SELECT `+productColumns+` FROM products ORDER BY name, id`)
}

// ListByCategory returns products in category ordered by name.
func (r *Repository) ListByCategory(ctx context.Context, category Category) ([]Product, error) {
	return r.query(ctx, `SELECT `+productColumns+` FROM products WHERE category = $1 ORDER BY name, id`, string(category))
}

// Get loads one product.
func (r *Repository) Get(ctx context.Context, id int64) (Product, error) {
	return getProduct(ctx, r.pool, id, false)
}

// Create inserts p and returns it with generated fields.
func (r *Repository) Create(ctx context.Context, p Product) (Product, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO products (name, price, category, stock, jenis_produk, tanggal_expired, image)
VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''))
RETURNING `+productColumns,
		p.Name, p.Price, string(p.Category), p.Stock, p.Kind.dbValue(), p.ExpiryDate, p.Image)
	out, err := scanProduct(row)
	if err != nil {
		return Product{}, fmt.Errorf("inventory: insert product: %w", err)
	}
	return out, nil
}

// SweepExpired zeroes stock of packaged products expiring on or before
// today (YYYY-MM-DD). Rows locked by an open order transaction are waited
// on and re-checked by Postgres before update.
func (r *Repository) SweepExpired(ctx context.Context, today string) (int64, error) {
	var affected int64
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE products
SET stock = 0, updated_at = NOW()
WHERE jenis_produk = $1
  AND tanggal_expired IS NOT NULL
  AND tanggal_expired <= $2::date
  AND stock > 0`, dbKindPackaged, today)
		if err != nil {
			return fmt.Errorf("inventory: sweep expired: %w", err)
		}
		affected = tag.RowsAffected()
		return nil
	})
	return affected, err
}

func (r *Repository) query(ctx context.Context, sql string, args ...any) ([]Product, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("inventory: list products: %w", err)
	}
	defer rows.Close()
	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("inventory: scan product: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func getProduct(ctx context.Context, q Querier, id int64, lock bool) (Product, error) {
	sql := `SELECT ` + productColumns + ` FROM products WHERE id = $1`
	if lock {
		sql += ` FOR UPDATE`
	}
	p, err := scanProduct(q.QueryRow(ctx, sql, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrProductNotFound
	}
	if err != nil {
		return Product{}, fmt.Errorf("inventory: get product: %w", err)
	}
	return p, nil
}

func scanProduct(row pgx.Row) (Product, error) {
	var (
		p        Product
		category string
		dbKind   string
	)
	if err := row.Scan(&p.ID, &p.Name, &p.Price, &category, &p.Stock, &dbKind, &p.ExpiryDate, &p.Image, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return Product{}, err
	}
	p.Category = Category(category)
	p.Kind = kindFromDB(dbKind)
	return p, nil
}

func (r *txRepo) GetForUpdate(ctx context.Context, id int64) (Product, error) {
	return getProduct(ctx, r.q, id, true)
}

func (r *txRepo) Update(ctx context.Context, p Product) error {
	tag, err := r.q.Exec(ctx, `UPDATE products
SET name = $2, price = $3, category = $4, stock = $5, jenis_produk = $6, tanggal_expired = $7, image = NULLIF($8, ''), updated_at = NOW()
WHERE id = $1`,
		p.ID, p.Name, p.Price, string(p.Category), p.Stock, p.Kind.dbValue(), p.ExpiryDate, p.Image)
	if err != nil {
		return fmt.Errorf("inventory: update product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}

func (r *txRepo) SetStock(ctx context.Context, id int64, stock int) error {
	return WriteStock(ctx, r.q, id, stock)
}

func (r *txRepo) DeleteOrderItems(ctx context.Context, productID int64) (int64, error) {
	tag, err := r.q.Exec(ctx, `DELETE FROM order_items WHERE product_id = $1`, productID)
	if err != nil {
		return 0, fmt.Errorf("inventory: delete order items: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *txRepo) Delete(ctx context.Context, id int64) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("inventory: delete product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}
