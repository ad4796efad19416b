package sales

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// paidPredicate is the settled-payment filter every aggregate must carry.
const paidPredicate = `WHERE lower\(o\.payment_status\) IN \('paid', 'lunas'\) AND o\.created_at >= \$1 AND o\.created_at < \$2`

func mockRepository(t *testing.T) (*Repository, pgxmock.PgxPoolIface, Range) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	loc, err := time.LoadLocation("Asia/Jakarta")
	require.NoError(t, err)
	rng, err := ParseRange("2024-03-01", "2024-03-05", loc)
	require.NoError(t, err)
	return NewRepository(mock), mock, rng
}

func TestDailyBucketsByLocalDay(t *testing.T) {
	repo, mock, rng := mockRepository(t)
	mock.ExpectQuery(`SELECT \(o\.created_at AT TIME ZONE \$3\)::date AS day.*FROM orders o\s+`+paidPredicate+`\s+GROUP BY day\s+ORDER BY day ASC`).
		WithArgs(rng.From(), rng.Until(), "Asia/Jakarta").
		WillReturnRows(pgxmock.NewRows([]string{"day", "count", "sum"}).
			AddRow(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), int64(2), int64(45000)).
			AddRow(time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC), int64(1), int64(12000)))

	days, err := repo.Daily(context.Background(), rng)
	require.NoError(t, err)
	assert.Equal(t, []DailySales{
		{Date: "2024-03-01", Sales: 2, Revenue: 45000},
		{Date: "2024-03-04", Sales: 1, Revenue: 12000},
	}, days)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProductsCountsOnlyPaidOrders(t *testing.T) {
	repo, mock, rng := mockRepository(t)
	mock.ExpectQuery(`FROM order_items oi\s+JOIN orders o ON o\.id = oi\.order_id\s+JOIN products p ON p\.id = oi\.product_id\s+`+paidPredicate+`\s+GROUP BY p\.id, p\.name\s+ORDER BY total_sold DESC, p\.id ASC`).
		WithArgs(rng.From(), rng.Until()).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "total_sold"}).
			AddRow(int64(3), "Es Teh", int64(9)))

	products, err := repo.Products(context.Background(), rng)
	require.NoError(t, err)
	assert.Equal(t, []ProductSold{{ID: 3, Name: "Es Teh", TotalSold: 9}}, products)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTotalsUsesHalfOpenRange(t *testing.T) {
	repo, mock, rng := mockRepository(t)
	mock.ExpectQuery(`SELECT COUNT\(\*\), COALESCE\(SUM\(o\.total_amount\), 0\)::bigint\s+FROM orders o\s+` + paidPredicate + `$`).
		WithArgs(rng.From(), rng.Until()).
		WillReturnRows(pgxmock.NewRows([]string{"count", "sum"}).AddRow(int64(3), int64(57000)))

	sum, err := repo.Totals(context.Background(), rng)
	require.NoError(t, err)
	assert.Equal(t, Summary{TotalOrders: 3, TotalRevenue: 57000}, sum)
	assert.Equal(t, time.Date(2024, 3, 6, 0, 0, 0, 0, rng.From().Location()), rng.Until())
	require.NoError(t, mock.ExpectationsWereMet())
}
