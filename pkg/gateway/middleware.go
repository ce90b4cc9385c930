package gateway

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/benthamhq/bentham/pkg/auth"
	"github.com/benthamhq/bentham/pkg/metrics"
	"github.com/benthamhq/bentham/pkg/types"
)

type contextKey string

const apiKeyContextKey contextKey = "apiKey"

// Permissions gating the study routes. Keys with an empty permission
// set hold both.
const (
	PermStudiesRead  = "studies:read"
	PermStudiesWrite = "studies:write"
)

// keyFromContext returns the resolved API key for an authenticated
// request
func keyFromContext(ctx context.Context) *types.APIKey {
	key, _ := ctx.Value(apiKeyContextKey).(*types.APIKey)
	return key
}

// securityHeaders stamps the browser hardening headers on every
// response, including errors produced by later middleware
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "SAMEORIGIN")
		next.ServeHTTP(w, r)
	})
}

// requestLogger emits one structured line per request and feeds the
// API counters
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		timer := metrics.NewTimer()

		next.ServeHTTP(ww, r)

		metrics.APIRequestsTotal.WithLabelValues(r.Method, strconv.Itoa(ww.Status())).Inc()
		timer.ObserveDurationVec(metrics.APIRequestDuration, r.Method)

		s.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Str("remote", r.RemoteAddr).
			Msg("Request handled")
	})
}

// bodyCap bounds request bodies so an oversized manifest fails fast
// with 413 instead of being buffered
func (s *Server) bodyCap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
		}
		next.ServeHTTP(w, r)
	})
}

// authenticate resolves the bearer token to an API key and binds it
// into the request context. The three failure modes get distinct
// codes so callers can tell a malformed header from a revoked key.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		secret, ok := strings.CutPrefix(header, "Bearer ")
		secret = strings.TrimSpace(secret)
		if !ok || secret == "" {
			respondError(w, http.StatusUnauthorized, types.ErrCodeUnauthorized, "missing or malformed bearer token")
			return
		}

		key, err := s.keychain.Resolve(secret)
		switch {
		case errors.Is(err, auth.ErrUnknownKey):
			respondError(w, http.StatusUnauthorized, types.ErrCodeInvalidAPIKey, "api key is not valid")
			return
		case errors.Is(err, auth.ErrKeyExpired):
			respondError(w, http.StatusUnauthorized, types.ErrCodeAPIKeyExpired, "api key has expired")
			return
		case err != nil:
			s.logger.Error().Err(err).Msg("Key resolution failed")
			respondError(w, http.StatusInternalServerError, types.ErrCodeUnknown, "internal error")
			return
		}

		ctx := context.WithValue(r.Context(), apiKeyContextKey, key)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// rateLimit enforces the key's own budget. Denials carry a
// Retry-After hint in whole seconds.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := keyFromContext(r.Context())

		decision, err := s.limiter.Allow(r.Context(), key.ID, key.RateLimit, key.WindowMs)
		if err != nil {
			// Availability over strictness when the shared limiter is
			// unreachable
			s.logger.Warn().Err(err).Str("key_id", key.ID).Msg("Rate limiter unavailable, admitting request")
			next.ServeHTTP(w, r)
			return
		}
		if !decision.Allowed {
			metrics.RateLimitedTotal.Inc()
			seconds := int(math.Ceil(decision.RetryAfter.Seconds()))
			if seconds < 1 {
				seconds = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(seconds))
			respondError(w, http.StatusTooManyRequests, types.ErrCodeRateLimited, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// requirePermission rejects keys whose permission set excludes the
// route. Empty sets grant everything.
func requirePermission(permission string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFromContext(r.Context())
			if !key.Allows(permission) {
				respondError(w, http.StatusForbidden, types.ErrCodeForbidden, "api key lacks the required permission")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
