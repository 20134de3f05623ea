package eventbridge

import (
	"context"

	"go.uber.org/zap"

	"dclass/application/ports"
	"dclass/domain/events"
)

// LoggingPublisher logs events instead of sending them; used when no bus is configured
type LoggingPublisher struct {
	logger *zap.Logger
}

var _ ports.EventPublisher = (*LoggingPublisher)(nil)

// NewLoggingPublisher creates a publisher that only logs
func NewLoggingPublisher(logger *zap.Logger) *LoggingPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoggingPublisher{logger: logger}
}

// Publish logs a single event
func (p *LoggingPublisher) Publish(_ context.Context, event events.DomainEvent) error {
	p.logger.Info("Domain event",
		zap.String("eventType", event.GetEventType()),
		zap.String("aggregateID", event.GetAggregateID()),
		zap.Int("version", event.GetVersion()),
	)
	return nil
}

// PublishBatch logs each event
func (p *LoggingPublisher) PublishBatch(ctx context.Context, domainEvents []events.DomainEvent) error {
	for _, e := range domainEvents {
		p.Publish(ctx, e)
	}
	return nil
}
