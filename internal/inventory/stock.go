package inventory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the subset of pgx.Tx used by the stock primitives.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// StockRow is a product's stock as seen under a row lock.
type StockRow struct {
	ID         int64
	Name       string
	Stock      int
	Kind       Kind
	ExpiryDate *time.Time
}

// Available returns the sellable quantity on today. Packaged goods past
// their expiry count as zero even if the sweep has not reached them yet.
func (r StockRow) Available(today time.Time) int {
	if isExpired(r.Kind, r.ExpiryDate, today) {
		return 0
	}
	return r.Stock
}

// LockStock locks the product rows for ids with SELECT ... FOR UPDATE and
// returns their current stock. Rows are locked in ascending id order so
// two transactions over overlapping carts cannot deadlock. Missing ids are
// absent from the result. q must be a transaction.
func LockStock(ctx context.Context, q Querier, ids []int64) (map[int64]StockRow, error) {
	if len(ids) == 0 {
		return map[int64]StockRow{}, nil
	}
	sorted := append([]int64(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	rows, err := q.Query(ctx, `SELECT id, name, stock, jenis_produk, tanggal_expired
FROM products
WHERE id = ANY($1)
ORDER BY id
FOR UPDATE`, sorted)
	if err != nil {
		return nil, fmt.Errorf("inventory: lock stock: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]StockRow, len(sorted))
	for rows.Next() {
		var (
			row    StockRow
			dbKind string
		)
		if err := rows.Scan(&row.ID, &row.Name, &row.Stock, &dbKind, &row.ExpiryDate); err != nil {
			return nil, fmt.Errorf("inventory: scan stock: %w", err)
		}
		row.Kind = kindFromDB(dbKind)
		out[row.ID] = row
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("inventory: lock stock: %w", err)
	}
	return out, nil
}

// WriteStock sets an absolute stock value on a row the caller has locked.
func WriteStock(ctx context.Context, q Querier, productID int64, stock int) error {
	if stock < 0 {
		return ErrNegativeStock
	}
	tag, err := q.Exec(ctx, `UPDATE products SET stock = $2, updated_at = NOW() WHERE id = $1`, productID, stock)
	if err != nil {
		return fmt.Errorf("inventory: write stock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}

func kindFromDB(v string) Kind {
	if v == dbKindPackaged {
		return KindPackaged
	}
	return KindNonPackaged
}
