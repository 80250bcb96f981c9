package payment

import (
	"errors"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Zannatul-Fahmida/e-commerce-core/internal/config"
	"github.com/Zannatul-Fahmida/e-commerce-core/internal/entity"
	"github.com/Zannatul-Fahmida/e-commerce-core/internal/presentation/http/response"
	"github.com/Zannatul-Fahmida/e-commerce-core/internal/service/reconcile"
	"github.com/Zannatul-Fahmida/e-commerce-core/pkg/errorbank"
)

var httpTracer = otel.Tracer("github.com/Zannatul-Fahmida/e-commerce-core/transport/http/payment")

// Handler exposes the three gateway callback channels. The two redirect
// channels always answer with a 302 to one of two fixed pages; only the IPN
// channel reports machine-readable status codes the gateway acts on.
type Handler struct {
	svc    *reconcile.Service
	urls   config.Checkout
	logger *zap.Logger
}

// NewHandler constructs a payment callback Handler.
func NewHandler(svc *reconcile.Service, cfg config.Config, logger *zap.Logger) *Handler {
	return &Handler{svc: svc, urls: cfg.Checkout, logger: logger}
}

// Register routes with the provided Echo instance.
func Register(e *echo.Echo, h *Handler) {
	g := e.Group("/payment")
	g.POST("/success", h.success)
	g.POST("/fail", h.fail)
	g.POST("/ipn", h.ipn)
}

func (h *Handler) success(c echo.Context) error {
	return h.redirectChannel(c, reconcile.ChannelSuccess)
}

func (h *Handler) fail(c echo.Context) error {
	return h.redirectChannel(c, reconcile.ChannelFail)
}

// redirectChannel applies the shared settle logic and answers with a redirect
// no matter what happened internally.
func (h *Handler) redirectChannel(c echo.Context, ch reconcile.Channel) error {
	b := response.New(c)

	form, err := c.FormParams()
	if err != nil {
		return b.WithRedirect(h.urls.CancelURL()).Build()
	}
	n := reconcile.ParseNotification(form)

	ctx, span := httpTracer.Start(c.Request().Context(), "payment."+string(ch), trace.WithAttributes(
		attribute.String("callback.tran_id", n.TranID),
	))
	defer span.End()

	outcome, err := h.svc.Settle(ctx, ch, n)
	if err != nil {
		// Errors on the redirect channels are an accepted lossier path; the
		// IPN channel is the one the gateway retries.
		h.logger.Error("redirect channel settle failed",
			zap.String("channel", string(ch)),
			zap.String("tran_id", n.TranID),
			zap.Error(err),
		)
		return b.WithRedirect(h.urls.CancelURL()).Build()
	}

	if outcome.Status == entity.PaymentSuccess {
		return b.WithRedirect(h.urls.SuccessURL()).Build()
	}
	return b.WithRedirect(h.urls.CancelURL()).Build()
}

func (h *Handler) ipn(c echo.Context) error {
	b := response.New(c)

	form, err := c.FormParams()
	if err != nil {
		return b.WithError(errorbank.BadRequest("invalid IPN data", errorbank.WithCause(err))).Build()
	}
	n := reconcile.ParseNotification(form)

	ctx, span := httpTracer.Start(c.Request().Context(), "payment.ipn", trace.WithAttributes(
		attribute.String("callback.tran_id", n.TranID),
		attribute.String("callback.status", n.GatewayStatus),
	))
	defer span.End()

	outcome, err := h.svc.Settle(ctx, reconcile.ChannelIPN, n)
	switch {
	case errors.Is(err, reconcile.ErrInvalidNotification):
		return b.WithError(errorbank.BadRequest("invalid IPN data", errorbank.WithCause(err))).Build()
	case errors.Is(err, reconcile.ErrOrderNotFound):
		return b.WithError(errorbank.NotFound("order not found")).Build()
	case err != nil:
		// Non-2xx so the gateway redelivers; IPN is the channel eventual
		// consistency relies on.
		return b.WithError(errorbank.Internal("failed to update order", errorbank.WithCause(err))).Build()
	}

	if outcome.AlreadyTerminal {
		return b.WithData(map[string]string{
			"message": "order already processed with status: " + string(outcome.Status),
		}).Build()
	}
	return b.WithData(map[string]string{"message": "payment processed"}).Build()
}
