package observe

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
)

func TestInit_InstallsGlobalProvidersAndShutsDown(t *testing.T) {
	prevMP := otel.GetMeterProvider()
	prevTP := otel.GetTracerProvider()
	t.Cleanup(func() {
		otel.SetMeterProvider(prevMP)
		otel.SetTracerProvider(prevTP)
	})

	// A private registry keeps the default one reusable across tests.
	shutdown, err := Init(Config{
		ServiceVersion: "test",
		Registerer:     prometheus.NewRegistry(),
	})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	if otel.GetMeterProvider() == prevMP {
		t.Error("meter provider not replaced")
	}
	if otel.GetTracerProvider() == prevTP {
		t.Error("tracer provider not replaced")
	}

	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}
