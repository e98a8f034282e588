package simplecatalog

import (
	"context"
	"log/slog"
)

// NoopEventSink is a no-operation implementation of EventSink
type NoopEventSink struct{}

// NewNoopEventSink creates a new no-operation event sink
func NewNoopEventSink() EventSink {
	return &NoopEventSink{}
}

// ItemCreated does nothing and returns nil
func (n *NoopEventSink) ItemCreated(ctx context.Context, item *CatalogItem) error {
	return nil
}

// ItemRemoved does nothing and returns nil
func (n *NoopEventSink) ItemRemoved(ctx context.Context, item *CatalogItem) error {
	return nil
}

// LoggingEventSink writes lifecycle events to a structured logger
type LoggingEventSink struct {
	logger *slog.Logger
}

// NewLoggingEventSink creates an event sink that logs at info level
func NewLoggingEventSink(logger *slog.Logger) EventSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingEventSink{logger: logger}
}

func (l *LoggingEventSink) ItemCreated(ctx context.Context, item *CatalogItem) error {
	l.logger.InfoContext(ctx, "catalog item created",
		"item_id", item.ID,
		"name", item.Name,
		"category", item.Category,
		"price", item.Price.String(),
		"image", item.ImageRef)
	return nil
}

func (l *LoggingEventSink) ItemRemoved(ctx context.Context, item *CatalogItem) error {
	l.logger.InfoContext(ctx, "catalog item removed", "item_id", item.ID, "image", item.ImageRef)
	return nil
}
