package middleware

import (
	"log/slog"
	"net/http"

	"bxhive/pkg/requestcontext"
	"bxhive/pkg/secrets"
)

// RequireAdminToken gates operator routes behind a shared token presented in
// X-Admin-Token and verified against a bcrypt hash. This is a deployment
// credential, distinct from the in-domain super-admin identity checks the
// directory service performs itself.
func RequireAdminToken(tokenHash string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.Header.Get("X-Admin-Token")
			if token == "" || secrets.Verify(token, tokenHash) != nil {
				logger.WarnContext(r.Context(), "forbidden - bad admin token",
					"request_id", requestcontext.RequestID(r.Context()),
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte(`{"error":"forbidden","message":"admin token required"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
