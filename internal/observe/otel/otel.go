// Package otel emits observe events as OpenTelemetry spans.
package otel

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/observe"
)

const instrumentationName = "github.com/BridgeDigitalHealth/MobilePassiveData-SDK"

// Sink implements observe.Sink with one zero length span per event.
type Sink struct {
	tracer trace.Tracer
}

// NewSink uses a noop provider when tp is nil.
func NewSink(tp trace.TracerProvider) *Sink {
	if tp == nil {
		tp = noop.NewTracerProvider()
	}
	return &Sink{tracer: tp.Tracer(instrumentationName)}
}

func (s *Sink) Emit(ctx context.Context, event observe.Event) error {
	event.Normalize()

	_, span := s.tracer.Start(ctx, spanNameFor(event.Kind), trace.WithTimestamp(event.Timestamp))
	attrs := []attribute.KeyValue{
		attribute.String("mpd.event.id", event.ID),
		attribute.String("mpd.event.kind", string(event.Kind)),
	}
	if event.SessionID != "" {
		attrs = append(attrs, attribute.String("mpd.session.id", event.SessionID))
	}
	if event.Recorder != "" {
		attrs = append(attrs, attribute.String("mpd.recorder.id", event.Recorder))
	}
	if event.From != "" {
		attrs = append(attrs, attribute.String("mpd.status.from", event.From))
	}
	if event.To != "" {
		attrs = append(attrs, attribute.String("mpd.status.to", event.To))
	}
	if event.StepPath != "" {
		attrs = append(attrs, attribute.String("mpd.step.path", event.StepPath))
	}
	if event.Message != "" {
		attrs = append(attrs, attribute.String("mpd.message", event.Message))
	}
	for k, v := range event.Attributes {
		attrs = append(attrs, attribute.String("mpd.attr."+k, fmt.Sprintf("%v", v)))
	}
	span.SetAttributes(attrs...)

	if event.Error != "" {
		span.SetStatus(codes.Error, event.Error)
		span.RecordError(errors.New(event.Error))
	} else if event.Kind == observe.KindResult {
		span.SetStatus(codes.Ok, "")
	}
	span.End(trace.WithTimestamp(event.Timestamp))
	return nil
}

func spanNameFor(kind observe.Kind) string {
	switch kind {
	case observe.KindSession:
		return "mpd.session"
	case observe.KindStatus:
		return "mpd.recorder.status"
	case observe.KindStep:
		return "mpd.recorder.step"
	case observe.KindResult:
		return "mpd.recorder.result"
	case observe.KindError:
		return "mpd.recorder.error"
	default:
		return "mpd.event"
	}
}
