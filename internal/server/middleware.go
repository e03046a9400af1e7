package server

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/meditrack/coldchain/internal/infra"
)

// TracingMiddleware кладет сквозной trace_id в контекст запроса.
// Клиент может прислать свой через X-Trace-Id (например, sensorsim);
// иначе генерируем новый. ID попадает в журнал аудита каждого события.
func TracingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get("X-Trace-Id")
		if traceID == "" {
			traceID = uuid.NewString()
		}

		w.Header().Set("X-Trace-Id", traceID)
		ctx := infra.WithTraceID(r.Context(), traceID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
