package entity

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// PaymentStatus is the payment side of the order lifecycle. Only pending is
// reachable by reconciliation; success and failed are terminal; confirmed is
// the cash-on-delivery terminal equivalent and is never touched by callbacks.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentConfirmed PaymentStatus = "confirmed"
	PaymentSuccess   PaymentStatus = "success"
	PaymentFailed    PaymentStatus = "failed"
)

// Terminal reports whether the payment status is immutable.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentSuccess || s == PaymentFailed
}

// OrderStatus tracks fulfillment, which is driven by administrative action
// only and shares the row with the payment status.
type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderConfirmed  OrderStatus = "confirmed"
	OrderProcessing OrderStatus = "processing"
	OrderShipped    OrderStatus = "shipped"
	OrderDelivered  OrderStatus = "delivered"
	OrderCancelled  OrderStatus = "cancelled"
	OrderReturned   OrderStatus = "returned"
)

// PaymentMethod selects the checkout flow.
type PaymentMethod string

const (
	MethodCOD    PaymentMethod = "cod"
	MethodOnline PaymentMethod = "online"
)

// PlaceholderPrefix marks a locally generated transaction id assigned at
// order creation, before the gateway allocates its own.
const PlaceholderPrefix = "TEMP_"

// Order is a purchase order. transaction_id starts as a TEMP_ placeholder and
// is promoted at most once, while status is still pending, to the gateway id.
type Order struct {
	bun.BaseModel `bun:"table:orders"`

	ID            uuid.UUID       `bun:"id,pk,type:uuid" json:"id"`
	TransactionID string          `bun:"transaction_id" json:"transaction_id"`
	Status        PaymentStatus   `bun:"status" json:"status"`
	OrderStatus   OrderStatus     `bun:"order_status" json:"order_status"`
	Amount        decimal.Decimal `bun:"amount" json:"amount"`
	Currency      string          `bun:"currency" json:"currency"`
	UserID        uuid.UUID       `bun:"user_id,type:uuid" json:"user_id"`
	ProductID     uuid.UUID       `bun:"product_id,type:uuid" json:"product_id"`
	Quantity      int             `bun:"quantity" json:"quantity"`
	PaymentMethod PaymentMethod   `bun:"payment_method" json:"payment_method"`
	CreatedAt     time.Time       `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt     time.Time       `bun:"updated_at,nullzero" json:"updated_at"`

	Items []*OrderItem `bun:"rel:has-many,join:id=order_id" json:"items,omitempty"`
}

// HasPlaceholder reports whether the order still carries its TEMP_ id.
func (o *Order) HasPlaceholder() bool {
	return strings.HasPrefix(o.TransactionID, PlaceholderPrefix)
}

// OrderItem records one cart line of an order. The parent order keeps a
// representative product_id and the aggregate quantity for legacy queries;
// the items carry the real breakdown.
type OrderItem struct {
	bun.BaseModel `bun:"table:order_items"`

	ID        int64           `bun:"id,pk,autoincrement" json:"id"`
	OrderID   uuid.UUID       `bun:"order_id,type:uuid" json:"order_id"`
	ProductID uuid.UUID       `bun:"product_id,type:uuid" json:"product_id"`
	Quantity  int             `bun:"quantity" json:"quantity"`
	UnitPrice decimal.Decimal `bun:"unit_price" json:"unit_price"`
	Option    string          `bun:"option" json:"option,omitempty"`
}
