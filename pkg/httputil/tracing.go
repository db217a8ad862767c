package httputil

import (
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// MiddlewareTracing opens a server span per request with the global tracer
// provider. Without an installed SDK the span is a no-op.
func MiddlewareTracing(name string) func(http.Handler) http.Handler {
	tracer := otel.Tracer(name)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, span := tracer.Start(r.Context(), r.Method+" "+r.URL.Path,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					attribute.String("http.method", r.Method),
					attribute.String("http.target", r.URL.Path),
				),
			)
			defer span.End()

			if id, ok := FromContext(ctx); ok {
				span.SetAttributes(attribute.String("request.id", id))
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
