package order

import (
	"errors"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Zannatul-Fahmida/e-commerce-core/internal/dto"
	"github.com/Zannatul-Fahmida/e-commerce-core/internal/entity"
	"github.com/Zannatul-Fahmida/e-commerce-core/internal/presentation/http/response"
	repo "github.com/Zannatul-Fahmida/e-commerce-core/internal/repository/order"
	"github.com/Zannatul-Fahmida/e-commerce-core/pkg/errorbank"
)

var httpTracer = otel.Tracer("github.com/Zannatul-Fahmida/e-commerce-core/transport/http/order")

// Handler exposes the read-only order surface. Orders are created through
// checkout and mutated only by the reconciliation callbacks.
type Handler struct {
	repo *repo.Repository
}

// NewHandler constructs an order Handler.
func NewHandler(r *repo.Repository) *Handler {
	return &Handler{repo: r}
}

// Register routes with the provided Echo instance.
func Register(e *echo.Echo, h *Handler) {
	e.GET("/orders/:id", h.getByID)
}

func (h *Handler) getByID(c echo.Context) error {
	b := response.New(c)

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return b.WithError(errorbank.BadRequest("invalid id", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.getByID", trace.WithAttributes(attribute.String("order.id", id.String())))
	defer span.End()

	o, err := h.repo.GetByID(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return b.WithError(errorbank.NotFound("order not found")).Build()
	}
	if err != nil {
		return b.WithError(errorbank.Internal("failed to load order", errorbank.WithCause(err))).Build()
	}

	return b.WithData(toDTO(o)).Build()
}

func toDTO(o *entity.Order) dto.OrderResponse {
	items := make([]dto.OrderItemResponse, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, dto.OrderItemResponse{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Option:    item.Option,
		})
	}
	return dto.OrderResponse{
		ID:            o.ID,
		TransactionID: o.TransactionID,
		Status:        string(o.Status),
		OrderStatus:   string(o.OrderStatus),
		Amount:        o.Amount,
		Currency:      o.Currency,
		ProductID:     o.ProductID,
		Quantity:      o.Quantity,
		PaymentMethod: string(o.PaymentMethod),
		CreatedAt:     o.CreatedAt,
		Items:         items,
	}
}
