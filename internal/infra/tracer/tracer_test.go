package tracer

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace/noop"

	"teamforge/internal/infra/config"
)

func TestSetupNoopVariants(t *testing.T) {
	cases := []config.TracerConfig{
		{Enabled: false},
		{Enabled: true, Exporter: "noop"},
		{Enabled: true, Exporter: ""},
	}
	for _, cfg := range cases {
		shutdown, err := Setup(context.Background(), cfg)
		if err != nil {
			t.Fatalf("Setup(%+v): %v", cfg, err)
		}
		if _, ok := otel.GetTracerProvider().(noop.TracerProvider); !ok {
			t.Errorf("Setup(%+v): expected noop provider, got %T", cfg, otel.GetTracerProvider())
		}
		if err := shutdown(context.Background()); err != nil {
			t.Errorf("shutdown(%+v): %v", cfg, err)
		}
	}
}

func TestSetupStdout(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.TracerConfig{Enabled: true, Exporter: "stdout"})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	defer shutdown(context.Background())

	if _, ok := otel.GetTracerProvider().(noop.TracerProvider); ok {
		t.Error("stdout exporter should install a real provider")
	}
}

func TestSetupUnsupportedExporter(t *testing.T) {
	if _, err := Setup(context.Background(), config.TracerConfig{Enabled: true, Exporter: "invalid"}); err == nil {
		t.Error("expected error for unsupported exporter")
	}
}

func TestSpanHelpers(t *testing.T) {
	otel.SetTracerProvider(noop.NewTracerProvider())

	ctx, span := StartSpan(context.Background(), "planner.test")
	if ctx == nil {
		t.Fatal("context should not be nil")
	}
	SetOK(span)
	RecordError(span, errors.New("turn failed"))
	span.End()
}

func TestAttrHelpers(t *testing.T) {
	if s := StringAttr("agent.id", "ag-1"); string(s.Key) != "agent.id" || s.Value.AsString() != "ag-1" {
		t.Errorf("StringAttr = %v", s)
	}
	if i := IntAttr("skills", 3); string(i.Key) != "skills" || i.Value.AsInt64() != 3 {
		t.Errorf("IntAttr = %v", i)
	}
}
