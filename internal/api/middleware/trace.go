package middleware

import (
	"log/slog"
	"net/http"

	"github.com/defineconsult/consult-api/internal/api/shared"
	"github.com/defineconsult/consult-api/internal/platform/logger"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// TraceHeader echoes the trace id back to the client.
const TraceHeader = "X-Trace-ID"

// Trace adds a trace ID and a request-scoped logger to the request context.
// It reuses chi's request id when RequestID runs first. base may be nil.
func Trace(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := shared.SetTraceID(r.Context(), chimw.GetReqID(r.Context()))
			traceID := shared.GetTraceID(ctx)

			log := base
			if log == nil {
				log = logger.FromContext(ctx)
			}
			log = log.With(slog.String("trace_id", traceID))
			ctx = logger.WithLogger(ctx, log)

			log.Debug("request started",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("remote_addr", r.RemoteAddr))

			w.Header().Set(TraceHeader, traceID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
