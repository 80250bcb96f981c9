package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Zannatul-Fahmida/e-commerce-core/internal/config"
	"github.com/Zannatul-Fahmida/e-commerce-core/internal/entity"
	"github.com/Zannatul-Fahmida/e-commerce-core/internal/gateway"
	orderrepo "github.com/Zannatul-Fahmida/e-commerce-core/internal/repository/order"
	"github.com/Zannatul-Fahmida/e-commerce-core/internal/session"
)

var serviceTracer = otel.Tracer("github.com/Zannatul-Fahmida/e-commerce-core/service/checkout")

var (
	// ErrEmptyCart is returned when a checkout carries no line items.
	ErrEmptyCart = errors.New("cart is empty")

	// ErrUnknownProduct is returned when a line item references a product
	// that no longer exists in the catalog.
	ErrUnknownProduct = errors.New("unknown product")

	// ErrInsufficientStock aborts checkout before any order is created or
	// any gateway call is made.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrInvalidPaymentMethod is returned for anything but cod/online.
	ErrInvalidPaymentMethod = errors.New("invalid payment method")

	// ErrInvalidQuantity is returned for non-positive line quantities.
	ErrInvalidQuantity = errors.New("invalid quantity")
)

// GatewaySessionError reports a failed broker call. The order already exists
// with its pending placeholder id; it is intentionally left in place so a
// later callback can still be matched by the fallback tiers.
type GatewaySessionError struct {
	OrderID uuid.UUID
	Err     error
}

func (e *GatewaySessionError) Error() string {
	return fmt.Sprintf("payment session for order %s: %v", e.OrderID, e.Err)
}

func (e *GatewaySessionError) Unwrap() error { return e.Err }

// LineItem is one requested cart line.
type LineItem struct {
	ProductID uuid.UUID
	Quantity  int
	Option    string
}

// Input is a checkout request for an authenticated user.
type Input struct {
	UserID uuid.UUID
	Method entity.PaymentMethod
	Items  []LineItem
}

// Result is the created order plus, for online payments, the gateway page to
// redirect the browser to.
type Result struct {
	Order      *entity.Order
	GatewayURL string
}

// OrderStore is the order persistence slice checkout needs.
type OrderStore interface {
	PlaceOrder(ctx context.Context, o *entity.Order, items []*entity.OrderItem) error
	PromoteTransactionID(ctx context.Context, id uuid.UUID, tranID string) (bool, error)
}

// ProductStore provides the latest catalog state for stock revalidation.
type ProductStore interface {
	GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*entity.Product, error)
}

// Publisher emits order lifecycle events.
type Publisher interface {
	Publish(ctx context.Context, key []byte, value []byte) error
}

// Service turns a cart into a persisted order and, for online payments, a
// gateway session.
type Service struct {
	orders    OrderStore
	products  ProductStore
	profiles  session.Profiles
	broker    gateway.Broker
	publisher Publisher
	publish   bool
	currency  string
	logger    *zap.Logger
	now       func() time.Time
}

// NewService wires a checkout Service.
func NewService(orders OrderStore, products ProductStore, profiles session.Profiles, broker gateway.Broker, publisher Publisher, publish bool, cfg config.Checkout, logger *zap.Logger) *Service {
	return &Service{
		orders:    orders,
		products:  products,
		profiles:  profiles,
		broker:    broker,
		publisher: publisher,
		publish:   publish && publisher != nil,
		currency:  cfg.DefaultCurrency,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Checkout collapses the cart into a single order row (representative
// product id = first line, quantity = aggregate count) with the full
// breakdown in order items, then for online payments opens a gateway session
// and promotes the placeholder transaction id.
func (s *Service) Checkout(ctx context.Context, in Input) (*Result, error) {
	ctx, span := serviceTracer.Start(ctx, "Checkout.Checkout", trace.WithAttributes(
		attribute.String("user.id", in.UserID.String()),
		attribute.String("payment.method", string(in.Method)),
		attribute.Int("cart.lines", len(in.Items)),
	))
	defer span.End()

	if in.Method != entity.MethodCOD && in.Method != entity.MethodOnline {
		return nil, ErrInvalidPaymentMethod
	}
	if len(in.Items) == 0 {
		return nil, ErrEmptyCart
	}
	for _, line := range in.Items {
		if line.Quantity <= 0 {
			return nil, fmt.Errorf("%w: product %s", ErrInvalidQuantity, line.ProductID)
		}
	}

	// Contact fields are required before any order exists, so a missing
	// profile aborts the whole flow up front.
	var customer *entity.User
	if in.Method == entity.MethodOnline {
		profile, err := s.profiles.Get(ctx, in.UserID)
		if err != nil {
			return nil, fmt.Errorf("load profile: %w", err)
		}
		customer = profile
	}

	ids := make([]uuid.UUID, 0, len(in.Items))
	for _, line := range in.Items {
		ids = append(ids, line.ProductID)
	}
	catalog, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, "catalog read failed")
		return nil, fmt.Errorf("load products: %w", err)
	}

	total := decimal.Zero
	totalQuantity := 0
	items := make([]*entity.OrderItem, 0, len(in.Items))
	for _, line := range in.Items {
		product, ok := catalog[line.ProductID]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownProduct, line.ProductID)
		}
		if product.Stock < line.Quantity {
			return nil, fmt.Errorf("%w: %s", ErrInsufficientStock, product.Name)
		}
		price := product.EffectivePrice()
		total = total.Add(price.Mul(decimal.NewFromInt(int64(line.Quantity))))
		totalQuantity += line.Quantity
		items = append(items, &entity.OrderItem{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			UnitPrice: price,
			Option:    line.Option,
		})
	}

	now := s.now()
	status := entity.PaymentPending
	if in.Method == entity.MethodCOD {
		status = entity.PaymentConfirmed
	}
	o := &entity.Order{
		ID:            uuid.New(),
		TransactionID: fmt.Sprintf("%s%d", entity.PlaceholderPrefix, now.UnixMilli()),
		Status:        status,
		OrderStatus:   entity.OrderPending,
		Amount:        total,
		Currency:      s.currency,
		UserID:        in.UserID,
		ProductID:     in.Items[0].ProductID,
		Quantity:      totalQuantity,
		PaymentMethod: in.Method,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.orders.PlaceOrder(ctx, o, items); err != nil {
		if errors.Is(err, orderrepo.ErrInsufficientStock) {
			return nil, ErrInsufficientStock
		}
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, "place order failed")
		return nil, fmt.Errorf("place order: %w", err)
	}
	o.Items = items

	s.logger.Info("order created",
		zap.String("order_id", o.ID.String()),
		zap.String("payment_method", string(in.Method)),
		zap.String("amount", total.String()),
		zap.Int("lines", len(items)),
	)
	s.publishCreated(ctx, o)

	if in.Method == entity.MethodCOD {
		return &Result{Order: o}, nil
	}

	sess, err := s.broker.CreateSession(ctx, gateway.SessionRequest{
		TranID:        uuid.NewString(),
		Amount:        o.Amount,
		Currency:      o.Currency,
		ProductID:     o.ProductID.String(),
		ProductName:   fmt.Sprintf("Cart Checkout - %d items", len(items)),
		OrderID:       o.ID.String(),
		CustomerName:  customer.FullName,
		CustomerEmail: customer.Email,
		CustomerPhone: customer.Phone,
	})
	if err != nil {
		// The pending placeholder order is kept; fallback matching can still
		// reconcile it if the gateway ever calls back.
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, "gateway session failed")
		s.logger.Error("gateway session failed; order left pending with placeholder",
			zap.String("order_id", o.ID.String()),
			zap.String("transaction_id", o.TransactionID),
			zap.Error(err),
		)
		return nil, &GatewaySessionError{OrderID: o.ID, Err: err}
	}

	promoted, err := s.orders.PromoteTransactionID(ctx, o.ID, sess.TransactionID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, "promote failed")
		return nil, &GatewaySessionError{OrderID: o.ID, Err: fmt.Errorf("persist transaction id: %w", err)}
	}
	if promoted {
		o.TransactionID = sess.TransactionID
	} else {
		// A callback beat the promotion; the order already settled through a
		// fallback tier. Nothing to fix.
		s.logger.Warn("transaction id promotion matched no row",
			zap.String("order_id", o.ID.String()),
			zap.String("tran_id", sess.TransactionID),
		)
	}

	return &Result{Order: o, GatewayURL: sess.RedirectURL}, nil
}

// OrderCreatedEvent is emitted when checkout persists a new order.
type OrderCreatedEvent struct {
	Type      string               `json:"type"`
	OrderID   uuid.UUID            `json:"order_id"`
	UserID    uuid.UUID            `json:"user_id"`
	Status    entity.PaymentStatus `json:"status"`
	Amount    decimal.Decimal      `json:"amount"`
	Currency  string               `json:"currency"`
	Method    entity.PaymentMethod `json:"payment_method"`
	LineCount int                  `json:"line_count"`
	CreatedAt time.Time            `json:"created_at"`
}

// EventOrderCreated is the event type discriminator on the orders topic.
const EventOrderCreated = "order.created"

func (s *Service) publishCreated(ctx context.Context, o *entity.Order) {
	if !s.publish {
		return
	}
	event := OrderCreatedEvent{
		Type:      EventOrderCreated,
		OrderID:   o.ID,
		UserID:    o.UserID,
		Status:    o.Status,
		Amount:    o.Amount,
		Currency:  o.Currency,
		Method:    o.PaymentMethod,
		LineCount: len(o.Items),
		CreatedAt: o.CreatedAt,
	}
	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("marshal order created", zap.Error(err))
		return
	}
	if err := s.publisher.Publish(ctx, []byte("order-"+o.ID.String()), payload); err != nil {
		s.logger.Error("publish order created", zap.Error(err))
	}
}
