package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/kasirku/kasir/internal/inventory"
	"github.com/kasirku/kasir/internal/platform/db"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	List(ctx context.Context) ([]Order, error)
	ListPayments(ctx context.Context) ([]Order, error)
	Get(ctx context.Context, id int64) (Order, error)
	UpdateStatus(ctx context.Context, id int64, status Status) error
	UpdatePaymentStatus(ctx context.Context, id int64, status PaymentStatus) error
}

// TxRepository is the transactional surface of order placement. Stock rows
// returned by LockStock stay locked until the transaction ends.
type TxRepository interface {
	LockStock(ctx context.Context, productIDs []int64) (map[int64]inventory.StockRow, error)
	WriteStock(ctx context.Context, productID int64, stock int) error
	InsertOrder(ctx context.Context, o Order) (int64, error)
	InsertItems(ctx context.Context, items []OrderItem) error
	GetOrder(ctx context.Context, id int64) (Order, error)
}

// Repository persists orders in PostgreSQL.
type Repository struct {
	pool db.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool db.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx runs fn in one transaction; see db.WithTx for retry semantics.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

const orderSelect = `SELECT o.id, o.total_amount, o.payment_method, o.customer_name, o.table_number,
       o.status, o.payment_status, o.created_at,
       COALESCE(string_agg(p.name || ' x' || oi.quantity, ', ' ORDER BY p.name, oi.id), '') AS items_summary
FROM orders o
LEFT JOIN order_items oi ON oi.order_id = o.id
LEFT JOIN products p ON p.id = oi.product_id`

// List returns all orders, newest first.
func (r *Repository) List(ctx context.Context) ([]Order, error) {
	return r.query(ctx, orderSelect+`
GROUP BY o.id
ORDER BY o.created_at DESC, o.id DESC`)
}

// ListPayments returns orders awaiting payment first, each group newest first.
func (r *Repository) ListPayments(ctx context.Context) ([]Order, error) {
	return r.query(ctx, orderSelect+`
GROUP BY o.id
ORDER BY CASE WHEN lower(o.payment_status) IN ('pending', 'unpaid') THEN 0 ELSE 1 END,
         o.created_at DESC, o.id DESC`)
}

// Get loads one order with its items.
func (r *Repository) Get(ctx context.Context, id int64) (Order, error) {
	return getOrder(ctx, r.pool, id)
}

// UpdateStatus sets the order status.
func (r *Repository) UpdateStatus(ctx context.Context, id int64, status Status) error {
	tag, err := r.pool.Exec(ctx, `UPDATE orders SET status = $2 WHERE id = $1`, id, string(status))
	if err != nil {
		return fmt.Errorf("orders: update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// UpdatePaymentStatus sets the payment status.
func (r *Repository) UpdatePaymentStatus(ctx context.Context, id int64, status PaymentStatus) error {
	tag, err := r.pool.Exec(ctx, `UPDATE orders SET payment_status = $2 WHERE id = $1`, id, string(status))
	if err != nil {
		return fmt.Errorf("orders: update payment status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (r *Repository) query(ctx context.Context, sql string, args ...any) ([]Order, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("orders: list: %w", err)
	}
	defer rows.Close()
	out := []Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("orders: scan: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func scanOrder(row pgx.Row) (Order, error) {
	var (
		o           Order
		status, pay string
	)
	err := row.Scan(&o.ID, &o.TotalAmount, &o.PaymentMethod, &o.CustomerName, &o.TableNumber, &status, &pay, &o.CreatedAt, &o.ItemsSummary)
	if err != nil {
		return Order{}, err
	}
	o.Status = statusFromDB(status)
	o.PaymentStatus = paymentFromDB(pay)
	return o, nil
}

func getOrder(ctx context.Context, q inventory.Querier, id int64) (Order, error) {
	o, err := scanOrder(q.QueryRow(ctx, orderSelect+`
WHERE o.id = $1
GROUP BY o.id`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrOrderNotFound
	}
	if err != nil {
		return Order{}, fmt.Errorf("orders: get: %w", err)
	}

	rows, err := q.Query(ctx, `SELECT oi.id, oi.order_id, oi.product_id, COALESCE(p.name, ''), oi.quantity, oi.price_per_unit
FROM order_items oi
LEFT JOIN products p ON p.id = oi.product_id
WHERE oi.order_id = $1
ORDER BY oi.id`, id)
	if err != nil {
		return Order{}, fmt.Errorf("orders: get items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.ProductName, &it.Quantity, &it.PricePerUnit); err != nil {
			return Order{}, fmt.Errorf("orders: scan item: %w", err)
		}
		o.Items = append(o.Items, it)
	}
	if err := rows.Err(); err != nil {
		return Order{}, fmt.Errorf("orders: get items: %w", err)
	}
	return o, nil
}

func (r *txRepo) LockStock(ctx context.Context, productIDs []int64) (map[int64]inventory.StockRow, error) {
	return inventory.LockStock(ctx, r.tx, productIDs)
}

func (r *txRepo) WriteStock(ctx context.Context, productID int64, stock int) error {
	return inventory.WriteStock(ctx, r.tx, productID, stock)
}

func (r *txRepo) InsertOrder(ctx context.Context, o Order) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO orders (total_amount, payment_method, customer_name, table_number, status, payment_status)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id`,
		o.TotalAmount, o.PaymentMethod, o.CustomerName, o.TableNumber, string(o.Status), string(o.PaymentStatus)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("orders: insert order: %w", err)
	}
	return id, nil
}

// InsertItems writes all lines in one round trip. price mirrors
// price_per_unit for readers of the legacy column.
func (r *txRepo) InsertItems(ctx context.Context, items []OrderItem) error {
	batch := &pgx.Batch{}
	for _, it := range items {
		batch.Queue(`INSERT INTO order_items (order_id, product_id, quantity, price, price_per_unit) VALUES ($1, $2, $3, $4, $4)`,
			it.OrderID, it.ProductID, it.Quantity, it.PricePerUnit)
	}
	if err := r.tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("orders: insert items: %w", err)
	}
	return nil
}

func (r *txRepo) GetOrder(ctx context.Context, id int64) (Order, error) {
	return getOrder(ctx, r.tx, id)
}
