package checkout

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Zannatul-Fahmida/e-commerce-core/internal/dto"
	"github.com/Zannatul-Fahmida/e-commerce-core/internal/entity"
	"github.com/Zannatul-Fahmida/e-commerce-core/internal/presentation/http/response"
	"github.com/Zannatul-Fahmida/e-commerce-core/internal/session"
	service "github.com/Zannatul-Fahmida/e-commerce-core/internal/service/checkout"
	"github.com/Zannatul-Fahmida/e-commerce-core/pkg/errorbank"
)

var httpTracer = otel.Tracer("github.com/Zannatul-Fahmida/e-commerce-core/transport/http/checkout")

// userIDHeader carries the authenticated user id, set by the upstream auth
// layer. Session mechanics are outside this service.
const userIDHeader = "X-User-ID"

// Handler exposes the checkout endpoint over HTTP.
type Handler struct {
	svc *service.Service
}

// NewHandler constructs a checkout Handler.
func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// Register routes with the provided Echo instance.
func Register(e *echo.Echo, h *Handler) {
	e.POST("/checkout", h.checkout)
}

func (h *Handler) checkout(c echo.Context) error {
	b := response.New(c)

	userID, err := uuid.Parse(c.Request().Header.Get(userIDHeader))
	if err != nil {
		return b.WithError(errorbank.BadRequest("missing or invalid user id", errorbank.WithCause(err))).Build()
	}

	var payload dto.CheckoutRequest
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	items := make([]service.LineItem, 0, len(payload.Items))
	for _, item := range payload.Items {
		items = append(items, service.LineItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Option:    item.Option,
		})
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "checkout.create", trace.WithAttributes(
		attribute.String("user.id", userID.String()),
		attribute.Int("cart.lines", len(items)),
	))
	defer span.End()

	result, err := h.svc.Checkout(ctx, service.Input{
		UserID: userID,
		Method: entity.PaymentMethod(payload.PaymentMethod),
		Items:  items,
	})
	if err != nil {
		return b.WithError(mapError(err)).Build()
	}

	return b.WithStatus(http.StatusCreated).WithData(dto.CheckoutResponse{
		OrderID:       result.Order.ID,
		TransactionID: result.Order.TransactionID,
		Status:        string(result.Order.Status),
		GatewayURL:    result.GatewayURL,
	}).Build()
}

func mapError(err error) error {
	var gatewayErr *service.GatewaySessionError
	switch {
	case errors.Is(err, service.ErrEmptyCart),
		errors.Is(err, service.ErrInvalidPaymentMethod),
		errors.Is(err, service.ErrInvalidQuantity),
		errors.Is(err, service.ErrUnknownProduct):
		return errorbank.BadRequest(err.Error())
	case errors.Is(err, service.ErrInsufficientStock):
		return errorbank.Conflict(err.Error())
	case errors.Is(err, session.ErrProfileNotFound):
		return errorbank.NotFound("profile not found")
	case errors.As(err, &gatewayErr):
		return errorbank.BadGateway("failed to create payment session",
			errorbank.WithCause(gatewayErr.Err),
			errorbank.WithDetail("order_id", gatewayErr.OrderID.String()),
		)
	default:
		return errorbank.Internal("checkout failed", errorbank.WithCause(err))
	}
}
