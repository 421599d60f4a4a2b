package app

import (
	"net/http"
	"strings"

	"github.com/cam3ron2/issue-relay/internal/telemetry"
	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Routes collects the handlers mounted on the relay router.
type Routes struct {
	API     *API
	Metrics *telemetry.Metrics
	Health  http.Handler
	Logger  *zap.Logger
}

// NewHTTPHandler wires the relay API, metrics, and health endpoints on a single router.
func NewHTTPHandler(routes Routes) http.Handler {
	logger := routes.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := chi.NewRouter()
	router.Use(requestID(logger))
	router.Use(recoverer(logger))
	router.Use(cors)
	router.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	traceMode := telemetry.TraceMode()
	handle := func(method, pattern, route string, handler http.Handler) {
		router.Method(method, pattern, countRequests(routes.Metrics, route, wrapHTTPHandler(traceMode, route, handler)))
	}

	if routes.API != nil {
		handle(http.MethodPost, "/api/github", "issue_forecast", http.HandlerFunc(routes.API.IssueForecast))
		handle(http.MethodPost, "/api/github/details", "repository_details", http.HandlerFunc(routes.API.RepositoryDetails))
	}

	handle(http.MethodGet, "/metrics", "metrics", routes.Metrics.Handler())
	handle(http.MethodGet, "/livez", "livez", routes.Health)
	handle(http.MethodGet, "/readyz", "readyz", routes.Health)
	handle(http.MethodGet, "/healthz", "healthz", routes.Health)
	return router
}

func countRequests(metrics *telemetry.Metrics, route string, handler http.Handler) http.Handler {
	if metrics == nil {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusCapturingResponseWriter{
			ResponseWriter: w,
			status:         http.StatusOK,
		}
		handler.ServeHTTP(recorder, r)
		metrics.ObserveHTTPRequest(route, recorder.status)
	})
}

func wrapHTTPHandler(traceMode, route string, handler http.Handler) http.Handler {
	if handler == nil {
		handler = http.NotFoundHandler()
	}
	if strings.EqualFold(strings.TrimSpace(traceMode), "off") {
		return handler
	}

	operation := strings.TrimSpace(route)
	if operation == "" {
		operation = "handler"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := otel.Tracer("issue-relay/internal/app").Start(
			r.Context(),
			"http.server."+operation,
			trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.target", r.URL.Path),
			),
		)
		defer span.End()

		recorder := &statusCapturingResponseWriter{
			ResponseWriter: w,
			status:         http.StatusOK,
		}
		handler.ServeHTTP(recorder, r.WithContext(ctx))
		span.SetAttributes(attribute.Int("http.status_code", recorder.status))
		if recorder.status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(recorder.status))
			return
		}
		span.SetStatus(codes.Ok, "request completed")
	})
}

type statusCapturingResponseWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusCapturingResponseWriter) WriteHeader(statusCode int) {
	if !w.wroteHeader {
		w.status = statusCode
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusCapturingResponseWriter) Write(payload []byte) (int, error) {
	w.wroteHeader = true
	return w.ResponseWriter.Write(payload)
}
