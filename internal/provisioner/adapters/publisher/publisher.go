package publisher

import (
	"context"

	"github.com/docindex-go/internal/domain/index"
	"github.com/docindex-go/internal/provisioner/ports"
	"github.com/docindex-go/pkg/events"
	"go.opentelemetry.io/otel/trace"
)

var _ ports.OutcomePublisher = (*EventPublisher)(nil)

const aggregateType = "index"

// EventPublisher turns provisioning outcomes into events on the bus.
type EventPublisher struct {
	bus events.EventBus
}

func NewEventPublisher(bus events.EventBus) *EventPublisher {
	return &EventPublisher{bus: bus}
}

func (p *EventPublisher) PublishOutcome(ctx context.Context, runID string, outcome index.Outcome) error {
	return p.bus.Publish(ctx, BuildEvent(ctx, runID, outcome))
}

func eventType(status index.Status) string {
	switch status {
	case index.StatusCreated:
		return events.IndexCreated
	case index.StatusAlreadyExists:
		return events.IndexAlreadyExists
	default:
		return events.IndexFailed
	}
}

// BuildEvent describes one outcome. The run ID becomes the correlation ID
// and the active span, if any, supplies the trace and span IDs.
func BuildEvent(ctx context.Context, runID string, outcome index.Outcome) events.Event {
	spec := outcome.Spec
	b := events.NewEventBuilder(eventType(outcome.Status)).
		WithAggregateID(spec.Key()).
		WithAggregateType(aggregateType).
		WithCorrelationID(runID).
		WithPayload("namespace", spec.Namespace).
		WithPayload("kind", string(spec.Kind)).
		WithPayload("status", string(outcome.Status)).
		WithPayload("duration_ms", outcome.Duration.Milliseconds())

	switch spec.Kind {
	case index.KindView:
		b.WithPayload("design_document", spec.DesignDocument).
			WithPayload("view_name", spec.ViewName)
	default:
		b.WithPayload("name", spec.IndexName())
	}

	if outcome.Status == index.StatusFailed {
		b.WithPayload("reason", outcome.Reason()).
			WithPayload("error", outcome.Message())
	}
	if outcome.Primary != nil {
		b.WithPayload("primary_status", string(outcome.Primary.Status))
	}

	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		b.WithTraceID(sc.TraceID().String()).
			WithSpanID(sc.SpanID().String())
	}

	return b.Build()
}
