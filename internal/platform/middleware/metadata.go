package middleware

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"bxhive/pkg/requestcontext"
)

// RequestMetadata stamps each request with a correlation ID and a single
// request-scoped time so every write within one operation shares a
// timestamp.
func RequestMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		ctx := requestcontext.WithRequestID(r.Context(), requestID)
		ctx = requestcontext.WithTime(ctx, time.Now().UTC())
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
