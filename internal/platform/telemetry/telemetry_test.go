package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func preserveOTelGlobals(t *testing.T) {
	t.Helper()
	prevTP := otel.GetTracerProvider()
	prevProp := otel.GetTextMapPropagator()
	t.Cleanup(func() {
		otel.SetTracerProvider(prevTP)
		otel.SetTextMapPropagator(prevProp)
	})
}

func TestSetup_DisabledIsNoOp(t *testing.T) {
	preserveOTelGlobals(t)
	before := otel.GetTracerProvider()

	shutdown, err := Setup(context.Background(), Config{Enabled: false, Endpoint: "ignored:4317"})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("no-op shutdown returned error: %v", err)
	}
	if otel.GetTracerProvider() != before {
		t.Error("disabled setup must not replace the global provider")
	}
}

func TestSetup_InstallsProvider(t *testing.T) {
	preserveOTelGlobals(t)

	shutdown, err := Setup(context.Background(), Config{
		Enabled:     true,
		Insecure:    true,
		Endpoint:    "localhost:4317",
		ServiceName: "rollcare-test",
		Version:     "v0.0.1",
		SampleRatio: 1,
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	if _, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider); !ok {
		t.Fatal("expected *sdktrace.TracerProvider")
	}

	ctx, span := otel.Tracer("test").Start(context.Background(), "span")
	defer span.End()
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	if carrier.Get("traceparent") == "" {
		t.Error("expected a traceparent header from the propagator")
	}
	if TraceID(ctx) == "" {
		t.Error("expected a trace id on the span context")
	}
}

func TestMiddleware_TagsSpanWithRequestID(t *testing.T) {
	preserveOTelGlobals(t)
	rec := tracetest.NewSpanRecorder()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)))

	e := echo.New()
	e.Use(Middleware("rollcare-test", func(echo.Context) string { return "req-42" }))
	e.GET("/patients/:id", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })

	e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/patients/1", nil))

	spans := rec.Ended()
	if len(spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(spans))
	}
	found := false
	for _, kv := range spans[0].Attributes() {
		if string(kv.Key) == "request_id" && kv.Value.AsString() == "req-42" {
			found = true
		}
	}
	if !found {
		t.Errorf("request_id attribute missing: %v", spans[0].Attributes())
	}
}

func TestTraceID_NoSpan(t *testing.T) {
	if id := TraceID(context.Background()); id != "" {
		t.Errorf("TraceID = %q", id)
	}
}
