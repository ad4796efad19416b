package orders

import "time"

// Status is the kitchen/service state of an order.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusRejected   Status = "rejected"
)

// PaymentStatus tracks whether the bill is settled.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
)

// Order is a committed order header. TotalAmount is fixed at creation.
type Order struct {
	ID            int64         `json:"id"`
	TotalAmount   int64         `json:"total_amount"`
	PaymentMethod string        `json:"payment_method"`
	CustomerName  string        `json:"customer_name"`
	TableNumber   string        `json:"table_number"`
	Status        Status        `json:"status"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	CreatedAt     time.Time     `json:"created_at"`
	ItemsSummary  string        `json:"items_summary"`
	Items         []OrderItem   `json:"items,omitempty"`
}

// OrderItem is one cart line as sold. PricePerUnit is the price at the
// time of sale and never follows later product price changes.
type OrderItem struct {
	ID           int64  `json:"id"`
	OrderID      int64  `json:"order_id"`
	ProductID    int64  `json:"product_id"`
	ProductName  string `json:"product_name,omitempty"`
	Quantity     int    `json:"quantity"`
	PricePerUnit int64  `json:"price_per_unit"`
}

// CartLine is one submitted line of a cart.
type CartLine struct {
	ProductID int64
	Quantity  int
	Price     int64
}

// PlaceOrderInput is a cashier's checkout request.
type PlaceOrderInput struct {
	Items         []CartLine
	DeclaredTotal int64  `json:"total_amount" validate:"gte=0"`
	PaymentMethod string `json:"payment_method" validate:"max=32"`
	CustomerName  string `json:"customer_name" validate:"max=100"`
	TableNumber   string `json:"table_number" validate:"max=16"`
	Status        string
	PaymentStatus string
}
