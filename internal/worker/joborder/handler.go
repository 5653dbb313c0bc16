package joborder

import (
	"context"
	"encoding/json"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/fabworks/foundry/internal/config"
	"github.com/fabworks/foundry/internal/messaging"
	jobordersvc "github.com/fabworks/foundry/internal/service/joborder"
	"github.com/fabworks/foundry/internal/worker"
)

var workerTracer = otel.Tracer("github.com/fabworks/foundry/worker/joborder")

// Module registers job-order lifecycle worker handlers.
var Module = fx.Module("worker_joborder",
	fx.Provide(
		fx.Annotate(
			NewLifecycleHandler,
			fx.ResultTags(`group:"worker.handlers"`),
		),
	),
)

// NewLifecycleHandler sets up a worker handler that dispatches notifications
// for committed job-order mutations. Delivery is best effort; the mutation
// has already committed by the time the event arrives.
func NewLifecycleHandler(logger *zap.Logger, cfg config.Config) worker.HandlerRegistration {
	handler := func(ctx context.Context, msg messaging.Message) error {
		ctx, span := workerTracer.Start(ctx, "worker.jobOrders.process", trace.WithAttributes(
			attribute.String("messaging.topic", msg.Topic),
		))
		defer span.End()

		var event jobordersvc.LifecycleEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			logger.Error("failed to decode job order lifecycle event", zap.Error(err))

			span.RecordError(err)
			span.SetStatus(codes.Error, "decode error")
			return err
		}
		logger.Info("job order notification dispatched",
			zap.String("event_id", event.EventID),
			zap.String("action", event.Action),
			zap.Int64("id", event.ID),
			zap.String("job_number", event.JobNumber),
			zap.String("actor", event.Actor),
		)

		return nil
	}

	return worker.HandlerRegistration{
		Topic:   cfg.Messaging.Kafka.Topic,
		Handler: handler,
	}
}
