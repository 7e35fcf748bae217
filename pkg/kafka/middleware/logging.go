package kafka_middleware

import (
	"context"
	"time"

	"roomres/pkg/kafka"
	"roomres/pkg/logger"
)

// LoggingProducerMiddleware logs every publish with its outcome and duration
func LoggingProducerMiddleware(log *logger.Logger) kafka.ProducerMiddleware {
	return func(ctx context.Context, msg kafka.Message, next func(ctx context.Context, msg kafka.Message) error) error {
		start := time.Now()

		err := next(ctx, msg)

		attrs := []any{
			"topic", msg.Topic,
			"key", msg.Key,
			"event_id", msg.GetEventID(),
			"event_type", msg.GetEventType(),
			"correlation_id", msg.GetCorrelationID(),
			"duration_ms", time.Since(start).Milliseconds(),
		}
		if err != nil {
			attrs = append(attrs, "error", err, "transient", kafka.ClassifyError(err) == kafka.ErrorTypeTransient)
			log.Warn("Failed to publish kafka message", attrs...)
		} else {
			log.Debug("Published kafka message", attrs...)
		}

		return err
	}
}
