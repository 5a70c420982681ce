package otel

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/observe"
)

func newExporter(t *testing.T) (*tracetest.InMemoryExporter, *Sink) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { tp.Shutdown(context.Background()) })
	return exporter, NewSink(tp)
}

func TestSinkEmitsSpans(t *testing.T) {
	exporter, sink := newExporter(t)

	err := sink.Emit(context.Background(), observe.Event{
		Kind:      observe.KindStatus,
		SessionID: "sess-1",
		Recorder:  "motion",
		From:      "starting",
		To:        "running",
		Timestamp: time.Now(),
	})
	if err != nil {
		t.Fatal(err)
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	span := spans[0]
	if span.Name != "mpd.recorder.status" {
		t.Errorf("expected span name 'mpd.recorder.status', got %q", span.Name)
	}
	attrs := attrToMap(span.Attributes)
	for key, want := range map[string]string{
		"mpd.session.id":  "sess-1",
		"mpd.recorder.id": "motion",
		"mpd.status.from": "starting",
		"mpd.status.to":   "running",
	} {
		if attrs[key] != want {
			t.Errorf("expected %s=%s, got %v", key, want, attrs)
		}
	}
}

func TestSpanNaming(t *testing.T) {
	exporter, sink := newExporter(t)
	now := time.Now()

	tests := []struct {
		kind     observe.Kind
		wantName string
	}{
		{observe.KindSession, "mpd.session"},
		{observe.KindStep, "mpd.recorder.step"},
		{observe.KindResult, "mpd.recorder.result"},
		{observe.KindError, "mpd.recorder.error"},
		{observe.KindCustom, "mpd.event"},
	}
	for _, tt := range tests {
		exporter.Reset()
		sink.Emit(context.Background(), observe.Event{Kind: tt.kind, Timestamp: now})
		spans := exporter.GetSpans()
		if len(spans) != 1 {
			t.Errorf("expected 1 span for %s, got %d", tt.wantName, len(spans))
			continue
		}
		if spans[0].Name != tt.wantName {
			t.Errorf("expected span name %q, got %q", tt.wantName, spans[0].Name)
		}
	}
}

func TestSinkErrorStatus(t *testing.T) {
	exporter, sink := newExporter(t)
	sink.Emit(context.Background(), observe.Event{
		Kind:      observe.KindError,
		Error:     "sensor unavailable",
		Timestamp: time.Now(),
	})

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Status.Code != codes.Error {
		t.Errorf("expected error status, got %v", spans[0].Status)
	}
	if len(spans[0].Events) == 0 {
		t.Error("expected error event recorded on span")
	}
}

func TestNilTracerProvider(t *testing.T) {
	if err := NewSink(nil).Emit(context.Background(), observe.Event{Kind: observe.KindStep}); err != nil {
		t.Errorf("expected no error with nil provider, got: %v", err)
	}
}

func attrToMap(attrs []attribute.KeyValue) map[string]string {
	m := make(map[string]string, len(attrs))
	for _, a := range attrs {
		m[string(a.Key)] = a.Value.Emit()
	}
	return m
}
