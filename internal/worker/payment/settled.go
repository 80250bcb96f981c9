package payment

import (
	"context"
	"encoding/json"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Zannatul-Fahmida/e-commerce-core/internal/config"
	"github.com/Zannatul-Fahmida/e-commerce-core/internal/entity"
	"github.com/Zannatul-Fahmida/e-commerce-core/internal/messaging"
	checkoutsvc "github.com/Zannatul-Fahmida/e-commerce-core/internal/service/checkout"
	reconcilesvc "github.com/Zannatul-Fahmida/e-commerce-core/internal/service/reconcile"
	"github.com/Zannatul-Fahmida/e-commerce-core/internal/worker"
)

var workerTracer = otel.Tracer("github.com/Zannatul-Fahmida/e-commerce-core/worker/payment")

// Module registers order-event worker handlers.
var Module = fx.Module("worker_payment",
	fx.Provide(
		fx.Annotate(
			NewOrderEventsHandler,
			fx.ResultTags(`group:"worker.handlers"`),
		),
	),
)

// eventEnvelope carries just enough to dispatch on the event type.
type eventEnvelope struct {
	Type string `json:"type"`
}

// NewOrderEventsHandler consumes the orders topic. Settlement events drive
// the downstream accounting log; only IPN-delivered settlements are treated
// as authoritative there.
func NewOrderEventsHandler(logger *zap.Logger, cfg config.Config) worker.HandlerRegistration {
	handler := func(ctx context.Context, msg messaging.Message) error {
		ctx, span := workerTracer.Start(ctx, "worker.orders.process", trace.WithAttributes(
			attribute.String("messaging.topic", msg.Topic),
		))
		defer span.End()

		var envelope eventEnvelope
		if err := json.Unmarshal(msg.Value, &envelope); err != nil {
			logger.Error("failed to decode order event", zap.Error(err))
			span.RecordError(err)
			span.SetStatus(codes.Error, "decode error")
			return err
		}

		switch envelope.Type {
		case reconcilesvc.EventPaymentSettled:
			var event reconcilesvc.PaymentSettledEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, "decode error")
				return err
			}
			logger.Info("payment settlement recorded",
				zap.String("order_id", event.OrderID.String()),
				zap.String("tran_id", event.TransactionID),
				zap.String("status", string(event.Status)),
				zap.String("channel", string(event.Channel)),
				zap.String("amount", event.Amount.String()),
				zap.String("currency", event.Currency),
				zap.Bool("authoritative", event.Channel == reconcilesvc.ChannelIPN),
			)
		case checkoutsvc.EventOrderCreated:
			var event checkoutsvc.OrderCreatedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, "decode error")
				return err
			}
			logger.Info("order created event processed",
				zap.String("order_id", event.OrderID.String()),
				zap.String("status", string(event.Status)),
				zap.Bool("cod", event.Method == entity.MethodCOD),
			)
		default:
			logger.Warn("unknown order event type", zap.String("type", envelope.Type))
		}
		return nil
	}

	return worker.HandlerRegistration{
		Topic:   cfg.Messaging.Kafka.Topic,
		Handler: handler,
	}
}
