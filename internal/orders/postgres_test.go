package orders

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kasirku/kasir/internal/inventory"
	"github.com/kasirku/kasir/internal/platform/db"
)

// pgTestDSN points at a disposable database; its tables are truncated.
const pgTestDSN = "KASIR_TEST_PG_DSN"

var pgNow = time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)

func postgresPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv(pgTestDSN)
	if dsn == "" {
		t.Skipf("%s not set", pgTestDSN)
	}
	ctx := context.Background()

	m, err := db.NewMigrator(dsn, "../../migrations")
	require.NoError(t, err)
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		t.Fatalf("migrate: %v", err)
	}
	_, _ = m.Close()

	pool, err := db.New(ctx, dsn, db.PoolConfig{MaxConns: 16, MinConns: 1})
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	_, err = pool.Exec(ctx, `TRUNCATE order_items, orders, products RESTART IDENTITY CASCADE`)
	require.NoError(t, err)
	return pool
}

func pgProduct(t *testing.T, pool *pgxpool.Pool, p inventory.Product) inventory.Product {
	t.Helper()
	if p.Category == "" {
		p.Category = inventory.CategoryFood
	}
	created, err := inventory.NewRepository(pool).Create(context.Background(), p)
	require.NoError(t, err)
	return created
}

func pgStock(t *testing.T, pool *pgxpool.Pool, id int64) int {
	t.Helper()
	var stock int
	require.NoError(t, pool.QueryRow(context.Background(), `SELECT stock FROM products WHERE id = $1`, id).Scan(&stock))
	return stock
}

func pgService(pool *pgxpool.Pool) *Service {
	return NewService(NewRepository(pool), ServiceConfig{Location: time.UTC, Clock: func() time.Time { return pgNow }})
}

func TestPostgresConcurrentOrdersNeverOversell(t *testing.T) {
	pool := postgresPool(t)
	p := pgProduct(t, pool, inventory.Product{Name: "Nasi Uduk", Price: 12000, Stock: 10, Kind: inventory.KindNonPackaged})
	svc := pgService(pool)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		placed   int
		rejected int
	)
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.PlaceOrder(context.Background(), checkout(CartLine{ProductID: p.ID, Quantity: 1, Price: 12000}))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				placed++
			case errors.Is(err, ErrInsufficientStock):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, placed)
	assert.Equal(t, 15, rejected)
	assert.Zero(t, pgStock(t, pool, p.ID))

	var sold int
	require.NoError(t, pool.QueryRow(context.Background(), `SELECT COALESCE(SUM(quantity), 0) FROM order_items WHERE product_id = $1`, p.ID).Scan(&sold))
	assert.Equal(t, 10, sold)
}

func TestPostgresSweepThenOrder(t *testing.T) {
	pool := postgresPool(t)
	ctx := context.Background()
	yesterday := time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC)
	nextMonth := time.Date(2024, 4, 10, 0, 0, 0, 0, time.UTC)
	expired := pgProduct(t, pool, inventory.Product{Name: "Roti Sobek", Price: 8000, Stock: 5, Kind: inventory.KindPackaged, ExpiryDate: &yesterday})
	fresh := pgProduct(t, pool, inventory.Product{Name: "Susu UHT", Price: 7000, Stock: 5, Kind: inventory.KindPackaged, ExpiryDate: &nextMonth})
	svc := pgService(pool)
	products := inventory.NewRepository(pool)

	n, err := products.SweepExpired(ctx, "2024-03-10")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Zero(t, pgStock(t, pool, expired.ID))

	_, err = svc.PlaceOrder(ctx, checkout(CartLine{ProductID: expired.ID, Quantity: 1, Price: 8000}))
	require.ErrorIs(t, err, ErrInsufficientStock)

	order, err := svc.PlaceOrder(ctx, checkout(CartLine{ProductID: fresh.ID, Quantity: 2, Price: 7000}))
	require.NoError(t, err)
	assert.Equal(t, int64(14000), order.TotalAmount)
	assert.Equal(t, 3, pgStock(t, pool, fresh.ID))

	n, err = products.SweepExpired(ctx, "2024-03-10")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPostgresSweepWaitsForLockedRows(t *testing.T) {
	pool := postgresPool(t)
	ctx := context.Background()
	yesterday := time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC)
	p := pgProduct(t, pool, inventory.Product{Name: "Keripik", Price: 5000, Stock: 4, Kind: inventory.KindPackaged, ExpiryDate: &yesterday})

	tx, err := pool.Begin(ctx)
	require.NoError(t, err)
	_, err = inventory.LockStock(ctx, tx, []int64{p.ID})
	require.NoError(t, err)

	done := make(chan int64, 1)
	go func() {
		n, err := inventory.NewRepository(pool).SweepExpired(ctx, "2024-03-10")
		assert.NoError(t, err)
		done <- n
	}()

	select {
	case <-done:
		t.Fatal("sweep ran while the row was locked")
	case <-time.After(300 * time.Millisecond):
	}

	require.NoError(t, inventory.WriteStock(ctx, tx, p.ID, 1))
	require.NoError(t, tx.Commit(ctx))

	select {
	case n := <-done:
		assert.Equal(t, int64(1), n)
	case <-time.After(5 * time.Second):
		t.Fatal("sweep did not resume after commit")
	}
	assert.Zero(t, pgStock(t, pool, p.ID))
}
