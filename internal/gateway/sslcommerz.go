package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Zannatul-Fahmida/e-commerce-core/internal/config"
)

var gatewayTracer = otel.Tracer("github.com/Zannatul-Fahmida/e-commerce-core/gateway")

const sessionPath = "/gwprocess/v4/api.php"

// ErrSessionRejected means the gateway answered but refused to open a payment
// session. Distinct from transport errors so callers can log the reason; both
// abort the checkout flow.
var ErrSessionRejected = errors.New("gateway rejected session request")

// SessionRequest carries everything the gateway needs to open a payment
// session. OrderID and ProductID are opaque passthrough values echoed back on
// every callback.
type SessionRequest struct {
	TranID        string
	Amount        decimal.Decimal
	Currency      string
	ProductID     string
	ProductName   string
	OrderID       string
	CustomerName  string
	CustomerEmail string
	CustomerPhone string
}

// Session is the broker result: where to send the browser and the gateway's
// transaction identifier.
type Session struct {
	RedirectURL   string
	TransactionID string
}

// Broker opens payment sessions against the external gateway.
type Broker interface {
	CreateSession(ctx context.Context, req SessionRequest) (*Session, error)
}

// Client talks to the SSLCommerz v4 session API.
type Client struct {
	http     *http.Client
	cfg      config.Gateway
	checkout config.Checkout
	logger   *zap.Logger
}

// NewClient builds the gateway client from configuration.
func NewClient(cfg config.Config, logger *zap.Logger) *Client {
	return &Client{
		http:     &http.Client{Timeout: cfg.Gateway.Timeout},
		cfg:      cfg.Gateway,
		checkout: cfg.Checkout,
		logger:   logger,
	}
}

// sessionResponse is the subset of the gateway reply we act on.
type sessionResponse struct {
	Status         string `json:"status"`
	GatewayPageURL string `json:"GatewayPageURL"`
	FailedReason   string `json:"failedreason"`
}

// CreateSession exchanges order details for a redirect URL. It fails closed:
// any ambiguous reply is an error, never a redirect.
func (c *Client) CreateSession(ctx context.Context, req SessionRequest) (*Session, error) {
	ctx, span := gatewayTracer.Start(ctx, "Gateway.CreateSession", trace.WithAttributes(
		attribute.String("gateway.tran_id", req.TranID),
		attribute.String("gateway.currency", req.Currency),
	))
	defer span.End()

	form := url.Values{}
	form.Set("store_id", c.cfg.StoreID)
	form.Set("store_passwd", c.cfg.StorePassword)
	form.Set("total_amount", req.Amount.String())
	form.Set("currency", req.Currency)
	form.Set("tran_id", req.TranID)
	form.Set("success_url", c.checkout.CallbackURL("success"))
	form.Set("fail_url", c.checkout.CallbackURL("fail"))
	form.Set("cancel_url", c.checkout.CancelURL())
	form.Set("ipn_url", c.checkout.CallbackURL("ipn"))
	form.Set("product_name", req.ProductName)
	form.Set("product_category", "General")
	form.Set("product_profile", "general")
	form.Set("cus_name", req.CustomerName)
	form.Set("cus_email", req.CustomerEmail)
	form.Set("cus_phone", req.CustomerPhone)
	form.Set("cus_add1", "N/A")
	form.Set("cus_city", "N/A")
	form.Set("cus_country", "Bangladesh")
	form.Set("ship_name", req.CustomerName)
	form.Set("ship_add1", "N/A")
	form.Set("ship_city", "N/A")
	form.Set("ship_country", "Bangladesh")
	form.Set("shipping_method", "NO")
	form.Set("multi_card_name", "mastercard,visacard,amexcard")
	// Passthrough fields, echoed unchanged on every callback channel.
	form.Set("value_a", req.ProductID)
	form.Set("value_b", req.OrderID)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+sessionPath, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build session request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, "transport failure")
		return nil, fmt.Errorf("gateway session call: %w", err)
	}
	defer resp.Body.Close()

	var parsed sessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, "decode failure")
		return nil, fmt.Errorf("decode gateway response: %w", err)
	}

	if parsed.Status != "SUCCESS" || parsed.GatewayPageURL == "" {
		span.SetStatus(otelcodes.Error, "session rejected")
		c.logger.Warn("gateway session rejected",
			zap.String("tran_id", req.TranID),
			zap.String("gateway_status", parsed.Status),
			zap.String("reason", parsed.FailedReason),
		)
		return nil, fmt.Errorf("%w: %s", ErrSessionRejected, parsed.FailedReason)
	}

	return &Session{
		RedirectURL:   parsed.GatewayPageURL,
		TransactionID: req.TranID,
	}, nil
}
