package emit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OTelEmitter turns each event into a short span named after Event.Msg.
//
// Spans carry agentflow.run_id, agentflow.step and agentflow.node_id plus one
// attribute per Meta entry. An "error" entry marks the span as failed.
//
//	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
//	em := emit.NewOTelEmitter(tp.Tracer("agentflow"))
type OTelEmitter struct {
	tracer trace.Tracer
}

// NewOTelEmitter creates spans with tracer.
func NewOTelEmitter(tracer trace.Tracer) *OTelEmitter {
	return &OTelEmitter{tracer: tracer}
}

// Emit records event as a span.
func (o *OTelEmitter) Emit(event Event) {
	o.emit(context.Background(), event)
}

// EmitContext records event as a child of the span in ctx.
func (o *OTelEmitter) EmitContext(ctx context.Context, event Event) {
	o.emit(ctx, event)
}

func (o *OTelEmitter) emit(ctx context.Context, event Event) {
	_, span := o.tracer.Start(ctx, event.Msg, trace.WithAttributes(
		attribute.String("agentflow.run_id", event.RunID),
		attribute.Int("agentflow.step", event.Step),
		attribute.String("agentflow.node_id", event.NodeID),
	))
	defer span.End()

	for key, value := range event.Meta {
		span.SetAttributes(metaAttribute("agentflow."+key, value))
	}

	if msg, ok := event.Err(); ok {
		span.RecordError(errors.New(msg))
		span.SetStatus(codes.Error, msg)
	}
}

func metaAttribute(key string, value interface{}) attribute.KeyValue {
	switch v := value.(type) {
	case string:
		return attribute.String(key, v)
	case int:
		return attribute.Int(key, v)
	case int64:
		return attribute.Int64(key, v)
	case float64:
		return attribute.Float64(key, v)
	case bool:
		return attribute.Bool(key, v)
	case time.Duration:
		return attribute.Int64(key, v.Milliseconds())
	case []string:
		return attribute.StringSlice(key, v)
	default:
		return attribute.String(key, fmt.Sprintf("%v", v))
	}
}
