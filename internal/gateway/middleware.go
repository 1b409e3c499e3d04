package gateway

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/medrex/rxledger/pkg/logger"
)

const requestIDHeader = "X-Request-ID"

type recorderKey struct{}

// requestIDMiddleware propagates or assigns a request id
func (s *Service) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(requestIDHeader)
		if requestID == "" || len(requestID) > 128 {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)

		ctx := context.WithValue(r.Context(), logger.RequestIDKey, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// corsMiddleware handles CORS headers
func (s *Service) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && (s.allowAnyOrigin || s.allowedOrigins[origin]) {
			if s.allowAnyOrigin {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			} else {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
			w.Header().Set("Access-Control-Max-Age", "86400")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// securityHeadersMiddleware adds security headers
func (s *Service) securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		w.Header().Set("Content-Security-Policy", "default-src 'none'")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Cache-Control", "no-store")

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs requests and responses
func (s *Service) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		recorder := &responseRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(recorder, r.WithContext(context.WithValue(r.Context(), recorderKey{}, recorder)))

		ctx := r.Context()
		if identity := recorder.identity; identity != "" {
			ctx = context.WithValue(ctx, logger.IdentityKey, identity)
		}
		s.logger.HTTPRequest(ctx, r.Method, r.URL.Path, clientIP(r), recorder.statusCode, time.Since(start).Milliseconds())
	})
}

// authMiddleware validates bearer tokens and stores the caller identity
func (s *Service) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" || r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			s.metrics.RecordAuthAttempt("jwt", "missing")
			s.writeErrorResponse(w, r, http.StatusUnauthorized, "MISSING_TOKEN", "missing authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			s.metrics.RecordAuthAttempt("jwt", "malformed")
			s.writeErrorResponse(w, r, http.StatusUnauthorized, "INVALID_TOKEN", "invalid authorization header format")
			return
		}

		identity, err := s.tokenValidator.ValidateJWT(strings.TrimSpace(parts[1]))
		if err != nil {
			s.metrics.RecordAuthAttempt("jwt", "failure")
			s.logger.Security("token_rejected", "", map[string]interface{}{
				"path":      r.URL.Path,
				"client_ip": clientIP(r),
				"reason":    err.Error(),
			})
			s.writeErrorResponse(w, r, http.StatusUnauthorized, "INVALID_TOKEN", "invalid token")
			return
		}
		s.metrics.RecordAuthAttempt("jwt", "success")

		if rec, ok := r.Context().Value(recorderKey{}).(*responseRecorder); ok {
			rec.identity = string(identity)
		}
		ctx := context.WithValue(r.Context(), logger.IdentityKey, string(identity))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// rateLimitMiddleware applies the per-identity request budget
func (s *Service) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller := callerFrom(r.Context())
		if s.rateLimiter == nil || caller == "" {
			next.ServeHTTP(w, r)
			return
		}

		allowed := s.rateLimiter.Allow(string(caller))
		remaining, limit := s.rateLimiter.Remaining(string(caller))
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if !allowed {
			s.logger.WithContext(r.Context()).Warn("Rate limit exceeded")
			s.writeErrorResponse(w, r, http.StatusTooManyRequests, "RATE_LIMITED", "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return strings.TrimSpace(strings.Split(forwarded, ",")[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// responseRecorder captures the status code and authenticated identity
// for the access log
type responseRecorder struct {
	http.ResponseWriter
	statusCode int
	identity   string
}

func (r *responseRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}
