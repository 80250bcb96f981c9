package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Zannatul-Fahmida/e-commerce-core/internal/entity"
	"github.com/Zannatul-Fahmida/e-commerce-core/internal/messaging"
	orderrepo "github.com/Zannatul-Fahmida/e-commerce-core/internal/repository/order"
)

var serviceTracer = otel.Tracer("github.com/Zannatul-Fahmida/e-commerce-core/service/reconcile")

// Channel identifies which gateway callback entry point delivered the
// notification. The three channels carry different amounts of identifying
// information, which drives the resolver tiering.
type Channel string

const (
	ChannelSuccess Channel = "success"
	ChannelFail    Channel = "fail"
	ChannelIPN     Channel = "ipn"
)

// Gateway-native statuses that map to a successful payment.
const (
	GatewayStatusValid     = "VALID"
	GatewayStatusValidated = "VALIDATED"
)

var (
	// ErrInvalidNotification marks a callback missing required fields. Not
	// retried; malformed payloads do not self-correct on redelivery.
	ErrInvalidNotification = errors.New("invalid notification payload")

	// ErrOrderNotFound marks a resolver miss. The full payload is logged for
	// offline reconciliation before this is returned.
	ErrOrderNotFound = errors.New("no order matches notification")
)

// Notification is the parsed callback payload, delivered in the same shape to
// all three handlers. ProductID and OrderID are the opaque passthrough fields
// (value_a / value_b) set at session creation.
type Notification struct {
	TranID        string
	GatewayStatus string
	Amount        decimal.Decimal
	Currency      string
	ProductID     string
	OrderID       string
	Raw           url.Values
}

// ParseNotification extracts the fields we act on from the form payload.
func ParseNotification(form url.Values) Notification {
	amount, _ := decimal.NewFromString(form.Get("amount"))
	return Notification{
		TranID:        form.Get("tran_id"),
		GatewayStatus: form.Get("status"),
		Amount:        amount,
		Currency:      form.Get("currency"),
		ProductID:     form.Get("value_a"),
		OrderID:       form.Get("value_b"),
		Raw:           form,
	}
}

// Outcome reports what a settle attempt did.
type Outcome struct {
	Order *entity.Order
	// Status is the payment status after the call.
	Status entity.PaymentStatus
	// Transitioned is true when this call performed the pending→terminal
	// write. False with AlreadyTerminal means a duplicate or lost race; the
	// handler still acknowledges success.
	Transitioned    bool
	AlreadyTerminal bool
	// Promoted is true when the TEMP_ placeholder was rewritten to the
	// gateway transaction id in the same write.
	Promoted bool
}

// OrderStore is the slice of the order repository reconciliation needs. Every
// mutation goes through Settle, the atomic conditional update.
type OrderStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Order, error)
	GetByTransactionID(ctx context.Context, tranID string) (*entity.Order, error)
	GetPendingByID(ctx context.Context, id uuid.UUID) (*entity.Order, error)
	FindPendingPlaceholder(ctx context.Context, match *orderrepo.PlaceholderMatch) (*entity.Order, error)
	Settle(ctx context.Context, id uuid.UUID, status entity.PaymentStatus, tranID string, promote bool) (bool, error)
}

// Publisher emits settlement events for downstream accounting.
type Publisher interface {
	Publish(ctx context.Context, key []byte, value []byte) error
}

// Service matches inbound gateway callbacks to orders and applies the
// one-time status transition.
type Service struct {
	store     OrderStore
	logger    *zap.Logger
	publisher Publisher
	publish   bool
}

// NewService constructs the reconciliation service. publisher may be nil when
// messaging is disabled.
func NewService(store OrderStore, logger *zap.Logger, publisher Publisher, publish bool) *Service {
	return &Service{
		store:     store,
		logger:    logger,
		publisher: publisher,
		publish:   publish && publisher != nil,
	}
}

// MapGatewayStatus maps the gateway-native status onto the order's terminal
// payment status. Only VALID and VALIDATED count as success.
func MapGatewayStatus(status string) entity.PaymentStatus {
	switch status {
	case GatewayStatusValid, GatewayStatusValidated:
		return entity.PaymentSuccess
	default:
		return entity.PaymentFailed
	}
}

// Resolve finds the order a notification refers to, in strict priority order:
// exact transaction-id match, passthrough order-id match (pending only), then
// the placeholder fallback — narrowed by product/amount/currency for IPN,
// unfiltered for the redirect channels whose payloads carry less.
func (s *Service) Resolve(ctx context.Context, ch Channel, n Notification) (*entity.Order, error) {
	ctx, span := serviceTracer.Start(ctx, "Reconcile.Resolve", trace.WithAttributes(
		attribute.String("callback.channel", string(ch)),
		attribute.String("callback.tran_id", n.TranID),
	))
	defer span.End()

	o, err := s.store.GetByTransactionID(ctx, n.TranID)
	if err == nil {
		return o, nil
	}
	if !errors.Is(err, orderrepo.ErrNotFound) {
		return nil, err
	}

	if n.OrderID != "" {
		if id, parseErr := uuid.Parse(n.OrderID); parseErr == nil {
			o, err = s.store.GetPendingByID(ctx, id)
			if err == nil {
				return o, nil
			}
			if !errors.Is(err, orderrepo.ErrNotFound) {
				return nil, err
			}
		}
	}

	var match *orderrepo.PlaceholderMatch
	if ch == ChannelIPN {
		// Only IPN carries enough fields to disambiguate the placeholder.
		productID, parseErr := uuid.Parse(n.ProductID)
		if parseErr != nil {
			span.SetStatus(otelcodes.Error, "unresolvable")
			return nil, ErrOrderNotFound
		}
		match = &orderrepo.PlaceholderMatch{
			ProductID: productID,
			Amount:    n.Amount,
			Currency:  n.Currency,
		}
	}

	o, err = s.store.FindPendingPlaceholder(ctx, match)
	if errors.Is(err, orderrepo.ErrNotFound) {
		span.SetStatus(otelcodes.Error, "unresolvable")
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return o, nil
}

// Settle validates the notification, resolves the order, and applies the
// shared transition rule as one conditional write. Replays against a terminal
// order are a designed no-op.
func (s *Service) Settle(ctx context.Context, ch Channel, n Notification) (*Outcome, error) {
	ctx, span := serviceTracer.Start(ctx, "Reconcile.Settle", trace.WithAttributes(
		attribute.String("callback.channel", string(ch)),
		attribute.String("callback.tran_id", n.TranID),
		attribute.String("callback.status", n.GatewayStatus),
	))
	defer span.End()

	if err := validate(ch, n); err != nil {
		s.logger.Warn("rejected malformed gateway callback",
			zap.String("channel", string(ch)),
			zap.Error(err),
			zap.Any("payload", n.Raw),
		)
		return nil, err
	}

	o, err := s.Resolve(ctx, ch, n)
	if errors.Is(err, ErrOrderNotFound) {
		// Full payload retained for manual reconciliation.
		s.logger.Error("gateway callback matched no order",
			zap.String("channel", string(ch)),
			zap.String("tran_id", n.TranID),
			zap.Any("payload", n.Raw),
		)
		return nil, err
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, "resolve failed")
		return nil, err
	}

	if o.Status.Terminal() {
		s.logger.Info("callback for already settled order",
			zap.String("order_id", o.ID.String()),
			zap.String("status", string(o.Status)),
			zap.String("channel", string(ch)),
		)
		return &Outcome{Order: o, Status: o.Status, AlreadyTerminal: true}, nil
	}
	if o.Status != entity.PaymentPending {
		// COD orders sit at confirmed and are never reconciled.
		s.logger.Error("callback resolved to non-reconcilable order",
			zap.String("order_id", o.ID.String()),
			zap.String("status", string(o.Status)),
			zap.Any("payload", n.Raw),
		)
		return nil, ErrOrderNotFound
	}

	target := MapGatewayStatus(n.GatewayStatus)
	if ch == ChannelFail {
		target = entity.PaymentFailed
	}
	promote := o.HasPlaceholder()

	transitioned, err := s.store.Settle(ctx, o.ID, target, n.TranID, promote)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, "settle write failed")
		return nil, fmt.Errorf("settle order %s: %w", o.ID, err)
	}

	if !transitioned {
		// Lost the race against a concurrent callback. Re-read to confirm the
		// other writer reached a terminal state.
		current, readErr := s.store.GetByID(ctx, o.ID)
		if readErr != nil {
			return nil, fmt.Errorf("verify order %s after contested settle: %w", o.ID, readErr)
		}
		if !current.Status.Terminal() {
			return nil, fmt.Errorf("settle order %s: conditional update matched no row", o.ID)
		}
		return &Outcome{Order: current, Status: current.Status, AlreadyTerminal: true}, nil
	}

	o.Status = target
	if promote {
		o.TransactionID = n.TranID
	}

	s.logger.Info("order payment settled",
		zap.String("order_id", o.ID.String()),
		zap.String("tran_id", o.TransactionID),
		zap.String("status", string(target)),
		zap.String("channel", string(ch)),
	)
	s.publishSettled(ctx, ch, o)

	return &Outcome{Order: o, Status: target, Transitioned: true, Promoted: promote}, nil
}

func validate(ch Channel, n Notification) error {
	missing := func(field string) error {
		return fmt.Errorf("%w: missing %s", ErrInvalidNotification, field)
	}
	if n.TranID == "" {
		return missing("tran_id")
	}
	switch ch {
	case ChannelSuccess:
		if n.GatewayStatus == "" {
			return missing("status")
		}
	case ChannelIPN:
		if n.GatewayStatus == "" {
			return missing("status")
		}
		if n.Currency == "" {
			return missing("currency")
		}
		if n.ProductID == "" {
			return missing("value_a")
		}
	case ChannelFail:
		// tran_id alone is enough; the channel itself determines the outcome.
	default:
		return fmt.Errorf("%w: unknown channel %q", ErrInvalidNotification, ch)
	}
	return nil
}

// PaymentSettledEvent is emitted once per order, on the single successful
// transition. IPN-delivered settlements are the authoritative feed for
// downstream accounting.
type PaymentSettledEvent struct {
	Type          string               `json:"type"`
	OrderID       uuid.UUID            `json:"order_id"`
	TransactionID string               `json:"transaction_id"`
	Status        entity.PaymentStatus `json:"status"`
	Amount        decimal.Decimal      `json:"amount"`
	Currency      string               `json:"currency"`
	Method        entity.PaymentMethod `json:"payment_method"`
	Channel       Channel              `json:"channel"`
	SettledAt     time.Time            `json:"settled_at"`
}

// EventPaymentSettled is the event type discriminator on the orders topic.
const EventPaymentSettled = "payment.settled"

func (s *Service) publishSettled(ctx context.Context, ch Channel, o *entity.Order) {
	if !s.publish {
		return
	}
	event := PaymentSettledEvent{
		Type:          EventPaymentSettled,
		OrderID:       o.ID,
		TransactionID: o.TransactionID,
		Status:        o.Status,
		Amount:        o.Amount,
		Currency:      o.Currency,
		Method:        o.PaymentMethod,
		Channel:       ch,
		SettledAt:     time.Now().UTC(),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("marshal payment settled", zap.Error(err))
		return
	}
	if err := s.publisher.Publish(ctx, []byte("order-"+o.ID.String()), payload); err != nil {
		s.logger.Error("publish payment settled", zap.Error(err))
	}
}

var _ Publisher = (messaging.Client)(nil)
