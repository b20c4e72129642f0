package telemetry

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace/noop"
)

func resetProvider(t *testing.T) {
	t.Cleanup(func() { otel.SetTracerProvider(noop.NewTracerProvider()) })
}

func TestInit_None(t *testing.T) {
	resetProvider(t)
	before := otel.GetTracerProvider()

	shutdown, err := Init(context.Background(), Options{Exporter: ExporterNone})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown: %v", err)
	}
	if otel.GetTracerProvider() != before {
		t.Error("none exporter should leave the global provider alone")
	}
}

func TestInit_Stdout(t *testing.T) {
	resetProvider(t)
	var buf bytes.Buffer

	shutdown, err := Init(context.Background(), Options{
		ServiceName: "catalog-test",
		Exporter:    ExporterStdout,
		Writer:      &buf,
	})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	_, span := otel.Tracer("catalog/test").Start(context.Background(), "catalog.list_all")
	span.End()

	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "catalog.list_all") {
		t.Errorf("exported spans missing span name: %s", out)
	}
	if !strings.Contains(out, "catalog-test") {
		t.Errorf("exported spans missing service name: %s", out)
	}
}

func TestInit_Errors(t *testing.T) {
	resetProvider(t)
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")

	if _, err := Init(context.Background(), Options{Exporter: "zipkin"}); err == nil {
		t.Error("expected error for unknown exporter")
	}
	if _, err := Init(context.Background(), Options{Exporter: ExporterOTLP}); err == nil {
		t.Error("expected error for otlp without endpoint")
	}
}
