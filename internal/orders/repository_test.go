package orders

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kasirku/kasir/internal/platform/db"
)

const lockSQL = `FROM products\s+WHERE id = ANY\(\$1\)\s+ORDER BY id\s+FOR UPDATE`

func stockRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{"id", "name", "stock", "jenis_produk", "tanggal_expired"}).
		AddRow(int64(1), "Mie Ayam", 4, "non-kemasan", (*time.Time)(nil)).
		AddRow(int64(3), "Teh Botol", 2, "kemasan", (*time.Time)(nil))
}

func TestRepositoryReservesInsideOneTransaction(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	mock.ExpectQuery(lockSQL).WithArgs([]int64{1, 3}).WillReturnRows(stockRows())
	mock.ExpectQuery(`INSERT INTO orders \(total_amount, payment_method, customer_name, table_number, status, payment_status\)`).
		WithArgs(int64(23000), "cash", "Budi", "7", "pending", "pending").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(41)))
	mock.ExpectExec(`UPDATE products SET stock = \$2`).WithArgs(int64(1), 2).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE products SET stock = \$2`).WithArgs(int64(3), 1).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	repo := NewRepository(mock)
	var id int64
	err = repo.WithTx(context.Background(), func(ctx context.Context, tx TxRepository) error {
		rows, err := tx.LockStock(ctx, []int64{3, 1})
		if err != nil {
			return err
		}
		assert.Equal(t, 4, rows[1].Stock)
		id, err = tx.InsertOrder(ctx, Order{TotalAmount: 23000, PaymentMethod: "cash", CustomerName: "Budi", TableNumber: "7", Status: StatusPending, PaymentStatus: PaymentPending})
		if err != nil {
			return err
		}
		if err := tx.WriteStock(ctx, 1, rows[1].Stock-2); err != nil {
			return err
		}
		return tx.WriteStock(ctx, 3, rows[3].Stock-1)
	})
	require.NoError(t, err)
	assert.Equal(t, int64(41), id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryRetriesDeadlockedReservation(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	mock.ExpectQuery(lockSQL).WithArgs([]int64{1, 3}).WillReturnError(&pgconn.PgError{Code: db.CodeDeadlockDetected})
	mock.ExpectRollback()
	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	mock.ExpectQuery(lockSQL).WithArgs([]int64{1, 3}).WillReturnRows(stockRows())
	mock.ExpectCommit()

	attempts := 0
	err = NewRepository(mock).WithTx(context.Background(), func(ctx context.Context, tx TxRepository) error {
		attempts++
		_, err := tx.LockStock(ctx, []int64{1, 3})
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryUpdateStatusMissingOrder(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`UPDATE orders SET status = \$2 WHERE id = \$1`).
		WithArgs(int64(9), "completed").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = NewRepository(mock).UpdateStatus(context.Background(), 9, StatusCompleted)
	require.ErrorIs(t, err, ErrOrderNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
