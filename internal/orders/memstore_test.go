package orders

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kasirku/kasir/internal/inventory"
)

// memStore mimics the Postgres behaviour PlaceOrder relies on: row locks
// held until commit, writes invisible to others until commit, and a
// rollback that discards everything.
type memStore struct {
	mu        sync.Mutex
	products  map[int64]inventory.StockRow
	rowLocks  map[int64]*sync.Mutex
	orders    map[int64]Order
	items     []OrderItem
	nextOrder int64
	nextItem  int64

	failInsertItems error
	afterLock       func(ids []int64)
}

func newMemStore() *memStore {
	return &memStore{
		products: make(map[int64]inventory.StockRow),
		rowLocks: make(map[int64]*sync.Mutex),
		orders:   make(map[int64]Order),
	}
}

func (m *memStore) addProduct(row inventory.StockRow) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if row.Kind == "" {
		row.Kind = inventory.KindNonPackaged
	}
	m.products[row.ID] = row
	m.rowLocks[row.ID] = &sync.Mutex{}
}

func (m *memStore) stock(id int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.products[id].Stock
}

func (m *memStore) orderCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders)
}

func (m *memStore) itemCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// sweep behaves like the bulk UPDATE: it waits for each row lock and
// re-evaluates the predicate on the committed row.
func (m *memStore) sweep(today time.Time) int64 {
	m.mu.Lock()
	ids := make([]int64, 0, len(m.products))
	for id := range m.products {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var n int64
	for _, id := range ids {
		l := m.lockFor(id)
		l.Lock()
		m.mu.Lock()
		row := m.products[id]
		if row.Kind == inventory.KindPackaged && row.ExpiryDate != nil && !row.ExpiryDate.After(today) && row.Stock > 0 {
			row.Stock = 0
			m.products[id] = row
			n++
		}
		m.mu.Unlock()
		l.Unlock()
	}
	return n
}

func (m *memStore) lockFor(id int64) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rowLocks[id]
}

type memTx struct {
	m      *memStore
	held   []*sync.Mutex
	stock  map[int64]int
	orders []Order
	items  []OrderItem
}

func (m *memStore) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx := &memTx{m: m, stock: make(map[int64]int)}
	defer func() {
		for i := len(tx.held) - 1; i >= 0; i-- {
			tx.held[i].Unlock()
		}
	}()
	if err := fn(ctx, tx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range tx.stock {
		row := m.products[id]
		row.Stock = s
		m.products[id] = row
	}
	for _, o := range tx.orders {
		m.orders[o.ID] = o
	}
	m.items = append(m.items, tx.items...)
	return nil
}

func (tx *memTx) LockStock(ctx context.Context, ids []int64) (map[int64]inventory.StockRow, error) {
	sorted := append([]int64(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	out := make(map[int64]inventory.StockRow, len(sorted))
	for _, id := range sorted {
		l := tx.m.lockFor(id)
		if l == nil {
			continue
		}
		l.Lock()
		tx.held = append(tx.held, l)
		tx.m.mu.Lock()
		out[id] = tx.m.products[id]
		tx.m.mu.Unlock()
	}
	if tx.m.afterLock != nil {
		tx.m.afterLock(sorted)
	}
	return out, nil
}

func (tx *memTx) WriteStock(ctx context.Context, productID int64, stock int) error {
	if stock < 0 {
		return inventory.ErrNegativeStock
	}
	tx.stock[productID] = stock
	return nil
}

func (tx *memTx) InsertOrder(ctx context.Context, o Order) (int64, error) {
	tx.m.mu.Lock()
	tx.m.nextOrder++
	o.ID = tx.m.nextOrder
	tx.m.mu.Unlock()
	o.CreatedAt = time.Now()
	tx.orders = append(tx.orders, o)
	return o.ID, nil
}

func (tx *memTx) InsertItems(ctx context.Context, items []OrderItem) error {
	if tx.m.failInsertItems != nil {
		return tx.m.failInsertItems
	}
	for _, it := range items {
		tx.m.mu.Lock()
		tx.m.nextItem++
		it.ID = tx.m.nextItem
		tx.m.mu.Unlock()
		tx.items = append(tx.items, it)
	}
	return nil
}

func (tx *memTx) GetOrder(ctx context.Context, id int64) (Order, error) {
	for _, o := range tx.orders {
		if o.ID == id {
			return tx.m.withItems(o, tx.items), nil
		}
	}
	return Order{}, ErrOrderNotFound
}

func (m *memStore) withItems(o Order, pool []OrderItem) Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	o.Items = nil
	var parts []string
	for _, it := range pool {
		if it.OrderID != o.ID {
			continue
		}
		it.ProductName = m.products[it.ProductID].Name
		o.Items = append(o.Items, it)
		parts = append(parts, it.ProductName+" x"+strconv.Itoa(it.Quantity))
	}
	sort.Strings(parts)
	o.ItemsSummary = strings.Join(parts, ", ")
	return o
}

func (m *memStore) List(ctx context.Context) ([]Order, error) {
	m.mu.Lock()
	out := make([]Order, 0, len(m.orders))
	for _, o := range m.orders {
		out = append(out, o)
	}
	m.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *memStore) ListPayments(ctx context.Context) ([]Order, error) {
	out, _ := m.List(ctx)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].PaymentStatus == PaymentPending && out[j].PaymentStatus != PaymentPending
	})
	return out, nil
}

func (m *memStore) Get(ctx context.Context, id int64) (Order, error) {
	m.mu.Lock()
	o, ok := m.orders[id]
	items := append([]OrderItem(nil), m.items...)
	m.mu.Unlock()
	if !ok {
		return Order{}, ErrOrderNotFound
	}
	return m.withItems(o, items), nil
}

func (m *memStore) UpdateStatus(ctx context.Context, id int64, status Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return ErrOrderNotFound
	}
	o.Status = status
	m.orders[id] = o
	return nil
}

func (m *memStore) UpdatePaymentStatus(ctx context.Context, id int64, status PaymentStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return ErrOrderNotFound
	}
	o.PaymentStatus = status
	m.orders[id] = o
	return nil
}

var errStoreDown = errors.New("connection reset by peer")
