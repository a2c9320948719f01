// Package middleware throttles decision submissions per authenticated
// actor using a pluggable sliding window store.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"bxhive/internal/ratelimit/models"
	"bxhive/pkg/platform/httputil"
	"bxhive/pkg/requestcontext"
)

var throttledTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "bxhive_decisions_throttled_total",
	Help: "Decision requests rejected by the rate limiter",
})

// Store checks and records a request against a sliding window.
type Store interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (*models.Result, error)
}

type Middleware struct {
	store    Store
	limit    int
	window   time.Duration
	logger   *slog.Logger
	disabled bool
}

type Option func(*Middleware)

// WithDisabled turns the limiter off entirely. Used for demo mode and tests.
func WithDisabled(disabled bool) Option {
	return func(m *Middleware) {
		m.disabled = disabled
	}
}

func New(store Store, limit int, window time.Duration, logger *slog.Logger, opts ...Option) *Middleware {
	m := &Middleware{
		store:  store,
		limit:  limit,
		window: window,
		logger: logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.disabled {
		logger.Info("decision rate limiting disabled")
	}
	return m
}

// LimitDecisions throttles requests per authenticated actor. Requests
// without an actor pass through; authentication rejects those downstream.
// Store failures fail open so a degraded limiter never blocks play.
func (m *Middleware) LimitDecisions(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.disabled {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		actor := requestcontext.Actor(ctx)
		if actor.IsZero() {
			next.ServeHTTP(w, r)
			return
		}

		result, err := m.store.Allow(ctx, actor.String(), m.limit, m.window)
		if err != nil {
			m.logger.ErrorContext(ctx, "rate limit check failed", "actor", actor, "error", err)
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

		if !result.Allowed {
			throttledTotal.Inc()
			w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfter))
			httputil.WriteJSON(w, http.StatusTooManyRequests, &models.ExceededResponse{
				Error:      "rate_limit_exceeded",
				Message:    "Too many decision submissions. Please try again later.",
				RetryAfter: result.RetryAfter,
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}
