package httputil

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func TestMiddlewareTracing_StartsServerSpan(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	var inner trace.SpanContext
	h := MiddlewareRequestID(MiddlewareTracing("test")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		inner = trace.SpanContextFromContext(r.Context())
	})))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/rooms/r1/snapshot", nil))

	if !inner.IsValid() {
		t.Fatalf("handler context carries no span")
	}
	ended := rec.Ended()
	if len(ended) != 1 {
		t.Fatalf("ended spans = %d, want 1", len(ended))
	}
	if ended[0].Name() != "GET /rooms/r1/snapshot" || ended[0].SpanKind() != trace.SpanKindServer {
		t.Fatalf("unexpected span %q kind=%v", ended[0].Name(), ended[0].SpanKind())
	}
	if ended[0].SpanContext().TraceID() != inner.TraceID() {
		t.Fatalf("handler saw a different trace")
	}
}
