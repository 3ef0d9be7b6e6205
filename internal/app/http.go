package app

import (
	"net/http"

	"github.com/cam3ron2/github-insights/internal/telemetry"
	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github-insights/internal/app"

var opsRoutes = []string{"livez", "readyz", "healthz"}

// NewHTTPHandler mounts the analytics API under /api next to the metrics and
// health endpoints.
func NewHTTPHandler(apiHandler, metricsHandler, healthHandler http.Handler) http.Handler {
	router := chi.NewRouter()
	mode := telemetry.TraceMode()
	if apiHandler != nil {
		router.Mount("/api", apiHandler)
	}
	router.Handle("/metrics", wrapHTTPHandler(mode, "metrics", metricsHandler))
	for _, route := range opsRoutes {
		router.Handle("/"+route, wrapHTTPHandler(mode, route, healthHandler))
	}
	return router
}

// wrapHTTPHandler opens a server span named after route around handler.
// Spans for 5xx responses are marked as errors.
func wrapHTTPHandler(mode telemetry.Mode, route string, handler http.Handler) http.Handler {
	if handler == nil {
		handler = http.NotFoundHandler()
	}
	if mode == telemetry.ModeOff {
		return handler
	}
	if route == "" {
		route = "handler"
	}
	spanName := "http.server." + route

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := otel.Tracer(tracerName).Start(r.Context(), spanName,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.route", route),
				attribute.String("http.target", r.URL.Path),
			),
		)
		defer span.End()

		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		handler.ServeHTTP(sw, r.WithContext(ctx))

		span.SetAttributes(attribute.Int("http.status_code", sw.status))
		if sw.status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(sw.status))
		}
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
