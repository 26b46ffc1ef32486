package observability

import (
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel/trace"
)

// Audit emits a structured security-relevant event, tagged with the active
// trace so log lines can be joined to the request's span.
func Audit(r *http.Request, event string, attrs ...any) {
	base := []any{
		"event", event,
		"method", r.Method,
		"path", r.URL.Path,
		"request_id", r.Header.Get("X-Request-Id"),
	}
	span := trace.SpanFromContext(r.Context())
	if sc := span.SpanContext(); sc.HasTraceID() {
		base = append(base, "trace_id", sc.TraceID().String())
	}
	span.AddEvent("audit." + event)
	base = append(base, attrs...)
	slog.InfoContext(r.Context(), "audit", base...)
}
