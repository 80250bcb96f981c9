package dto

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderResponse represents an order as exposed via transport layers.
type OrderResponse struct {
	ID            uuid.UUID           `json:"id"`
	TransactionID string              `json:"transaction_id"`
	Status        string              `json:"status"`
	OrderStatus   string              `json:"order_status"`
	Amount        decimal.Decimal     `json:"amount"`
	Currency      string              `json:"currency"`
	ProductID     uuid.UUID           `json:"product_id"`
	Quantity      int                 `json:"quantity"`
	PaymentMethod string              `json:"payment_method"`
	CreatedAt     time.Time           `json:"created_at"`
	Items         []OrderItemResponse `json:"items,omitempty"`
}

// OrderItemResponse is one cart line of an order.
type OrderItemResponse struct {
	ProductID uuid.UUID       `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Option    string          `json:"option,omitempty"`
}

// CheckoutItem is one requested cart line.
type CheckoutItem struct {
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int       `json:"quantity"`
	Option    string    `json:"option,omitempty"`
}

// CheckoutRequest creates a single order for the whole cart.
type CheckoutRequest struct {
	PaymentMethod string         `json:"payment_method"`
	Items         []CheckoutItem `json:"items"`
}

// CheckoutResponse reports the created order and, for online payments, the
// gateway page the browser must be sent to.
type CheckoutResponse struct {
	OrderID       uuid.UUID `json:"order_id"`
	TransactionID string    `json:"transaction_id"`
	Status        string    `json:"status"`
	GatewayURL    string    `json:"gateway_url,omitempty"`
}
