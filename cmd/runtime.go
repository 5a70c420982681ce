package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/audiosession"
	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/config"
	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/observe"
	mpdotel "github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/observe/otel"
	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/permission"
	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/service"
	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/store"
)

// hostPermissions grants every permission. A command line host has no
// consent dialog; access is decided by the operating system.
func hostPermissions() *permission.Registry {
	return permission.NewRegistry(permission.GrantAll(
		permission.Motion,
		permission.Microphone,
		permission.Location,
		permission.LocationWhenInUse,
		permission.Weather,
	))
}

// runtime holds what a command needs to drive sessions.
type runtime struct {
	service *service.PassiveDataService
	store   *store.Store
	async   *observe.AsyncSink
	tracer  *sdktrace.TracerProvider
}

// newRuntime opens the session store and wires the event sinks. extra
// sinks (the websocket hub) receive every event.
func newRuntime(c *config.Config, configFile string, extra ...observe.Sink) (*runtime, error) {
	rt := &runtime{}

	if c.Output.Store != "" {
		db, err := store.New(c.Output.Store)
		if err != nil {
			return nil, fmt.Errorf("failed to open session store: %w", err)
		}
		rt.store = db
	}

	sinks := append([]observe.Sink{}, extra...)
	if traceSpans {
		tp, err := newTracerProvider()
		if err != nil {
			rt.Close()
			return nil, err
		}
		rt.tracer = tp
		sinks = append(sinks, mpdotel.NewSink(rt.tracer))
	}
	var sink observe.Sink
	if len(sinks) > 0 {
		rt.async = observe.NewAsyncSink(observe.NewMultiSink(sinks...), 1024)
		sink = rt.async
	}

	logger := slog.Default()
	rt.service = service.New(c, configFile, service.Options{
		Store:        rt.store,
		Sink:         sink,
		Permissions:  hostPermissions(),
		AudioSession: audiosession.NewController(audiosession.LogSession{Logger: logger}, logger),
		Logger:       logger,
	})
	return rt, nil
}

func (rt *runtime) Close() {
	if rt.async != nil {
		rt.async.Close()
	}
	if rt.tracer != nil {
		if err := rt.tracer.Shutdown(context.Background()); err != nil {
			slog.Warn("Failed to flush spans", "error", err)
		}
	}
	if rt.store == nil {
		return
	}
	if err := rt.store.Close(); err != nil {
		slog.Warn("Failed to close session store", "error", err)
	}
}

// newTracerProvider installs a provider that writes finished spans as JSON
// to stderr next to the log output.
func newTracerProvider() (*sdktrace.TracerProvider, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(os.Stderr), stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("failed to create span exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	otel.SetTracerProvider(tp)
	return tp, nil
}
