package orders

// PlaceOrderRequest is the POST /orders body. Field rules are enforced by
// Service.PlaceOrder so direct callers get the same errors.
type PlaceOrderRequest struct {
	Items         []CartLineRequest `json:"items"`
	TotalAmount   int64             `json:"total_amount"`
	PaymentMethod string            `json:"payment_method"`
	CustomerName  string            `json:"customer_name"`
	TableNumber   string            `json:"table_number"`
	Status        string            `json:"status,omitempty"`
	PaymentStatus string            `json:"payment_status,omitempty"`
}

// CartLineRequest is one item of PlaceOrderRequest. ID is the product id.
type CartLineRequest struct {
	ID       int64 `json:"id"`
	Quantity int   `json:"quantity"`
	Price    int64 `json:"price"`
}

func (r PlaceOrderRequest) toInput() PlaceOrderInput {
	in := PlaceOrderInput{
		DeclaredTotal: r.TotalAmount,
		PaymentMethod: r.PaymentMethod,
		CustomerName:  r.CustomerName,
		TableNumber:   r.TableNumber,
		Status:        r.Status,
		PaymentStatus: r.PaymentStatus,
		Items:         make([]CartLine, 0, len(r.Items)),
	}
	for _, it := range r.Items {
		in.Items = append(in.Items, CartLine{ProductID: it.ID, Quantity: it.Quantity, Price: it.Price})
	}
	return in
}

// UpdateStatusRequest is the PATCH /orders/{id}/status body.
type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// UpdatePaymentRequest is the PATCH /orders/{id}/payment body.
type UpdatePaymentRequest struct {
	PaymentStatus string `json:"payment_status" validate:"required"`
}
