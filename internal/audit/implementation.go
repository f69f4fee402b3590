// internal/audit/implementation.go
package audit

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type service struct {
	store  Store
	tracer trace.Tracer
}

// NewService creates a new audit service instance.
func NewService(store Store) Service {
	return &service{
		store:  store,
		tracer: otel.Tracer("librarium/audit"),
	}
}

// List streams entries after filter.AfterID in id order.
func (s *service) List(ctx context.Context, filter Filter) ([]*Entry, error) {
	if filter.Limit <= 0 {
		filter.Limit = DefaultLimit
	}
	if filter.Limit > MaxLimit {
		filter.Limit = MaxLimit
	}

	ctx, span := s.tracer.Start(ctx, "audit.list",
		trace.WithAttributes(
			attribute.Int64("from.id", filter.AfterID),
			attribute.Int("batch.size", filter.Limit),
		),
	)
	defer span.End()

	entries, err := s.store.ListEntries(ctx, filter)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("list audit entries: %w", err)
	}

	span.SetAttributes(attribute.Int("entries.streamed", len(entries)))
	return entries, nil
}
