package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/eddydoes42/FieldOpsPro-sub005/internal/auth"
	"github.com/eddydoes42/FieldOpsPro-sub005/internal/ratelimit"
	"github.com/eddydoes42/FieldOpsPro-sub005/internal/security"
	"github.com/eddydoes42/FieldOpsPro-sub005/pkg/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// requestIDMiddleware attaches a UUID request ID to each request.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		w.Header().Set("X-Request-ID", id)
		ctx := withRequestID(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// securityHeadersMiddleware injects the standard security response headers.
// Always first so even short-circuited responses carry them.
func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-XSS-Protection", "1; mode=block")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		h.Set("Content-Security-Policy", "default-src 'none'")
		next.ServeHTTP(w, r)
	})
}

// identityMiddleware resolves the bearer token, when one is present and
// valid, and attaches the principal so audit attribution and rate-limit
// keying see it. It never rejects; authMiddleware enforces on protected
// routes.
func (s *Server) identityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		plaintext := strings.TrimPrefix(header, "Bearer ")
		if header != "" && plaintext != header {
			if principal, err := s.tokens.Authenticate(r.Context(), plaintext); err == nil {
				r = r.WithContext(withPrincipal(r.Context(), principal))
			}
		}
		next.ServeHTTP(w, r)
	})
}

// responseRecorder captures the status code for audit and metrics.
type responseRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rr *responseRecorder) WriteHeader(code int) {
	rr.statusCode = code
	rr.ResponseWriter.WriteHeader(code)
}

// auditMiddleware records every request and its response code.
func (s *Server) auditMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rr := &responseRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rr, r)

		performedBy := ""
		if p := principalFromCtx(r.Context()); p != nil {
			performedBy = p.ID
		}
		s.auditor.Log(&models.AuditEvent{
			EntityType:  "http_request",
			EntityID:    r.URL.Path,
			Action:      r.Method,
			PerformedBy: performedBy,
			RequestID:   requestIDFromCtx(r.Context()),
			ClientIP:    clientIP(r),
			UserAgent:   r.UserAgent(),
			Metadata: map[string]any{
				"status_code":      rr.statusCode,
				"response_time_ms": time.Since(start).Milliseconds(),
			},
		})
	})
}

// riskScoreMiddleware runs lightweight heuristics over the request shape and
// annotates the context. It flags, it never denies.
func riskScoreMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		score := scoreRequest(r)
		if score >= 50 {
			log.Warn().Int("risk_score", score).Str("path", r.URL.Path).
				Str("ip", clientIP(r)).Msg("anomalous request pattern")
		}
		next.ServeHTTP(w, r.WithContext(withRiskScore(r.Context(), score)))
	})
}

var suspiciousFragments = []string{
	"../", "..\\", "%00", "<script", "union select", "' or '", "etc/passwd",
}

func scoreRequest(r *http.Request) int {
	score := 0
	target := strings.ToLower(r.URL.Path + "?" + r.URL.RawQuery)
	for _, frag := range suspiciousFragments {
		if strings.Contains(target, frag) {
			score += 50
		}
	}
	if r.UserAgent() == "" {
		score += 20
	}
	if len(r.URL.RawQuery) > 2048 {
		score += 20
	}
	if r.ContentLength > 10<<20 {
		score += 10
	}
	return score
}

// categoryFor classifies a route into a rate-limit category.
func categoryFor(r *http.Request) string {
	switch {
	case strings.HasPrefix(r.URL.Path, "/api/auth"):
		return ratelimit.CategoryAuth
	case r.URL.Path == "/api/compliance/report",
		r.URL.Path == "/api/audit-logs/export":
		return ratelimit.CategoryBulk
	default:
		return ratelimit.CategoryAPI
	}
}

// rateLimitMiddleware enforces per-category limits. A denied request is
// answered 429, audited, and run through the policy engine so the matching
// rate-limit policy records its violation.
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		category := categoryFor(r)
		key := clientIP(r)
		if p := principalFromCtx(r.Context()); p != nil {
			key = p.ID
		}
		allowed := s.limiter.Allow(key, category)
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(s.limiter.Remaining(key, category)))
		if allowed {
			next.ServeHTTP(w, r)
			return
		}

		log.Warn().Str("key", key).Str("category", category).Msg("rate limit exceeded")
		s.enforcer.Enforce(security.Context{
			Principal: principalFromCtx(r.Context()),
			Action:    r.Method,
			Resource:  r.URL.Path,
			ClientIP:  clientIP(r),
			UserAgent: r.UserAgent(),
			RiskScore: riskScoreFromCtx(r.Context()),
		})
		writeAPIError(w, r, &RateLimitError{Category: category})
	})
}

// authMiddleware rejects requests identityMiddleware could not attribute to
// a principal. Routes registered before it (health, metrics) skip it. The
// re-authentication below only runs on failure paths, to pick the right
// status and message.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if principalFromCtx(r.Context()) != nil {
			next.ServeHTTP(w, r)
			return
		}
		header := r.Header.Get("Authorization")
		plaintext := strings.TrimPrefix(header, "Bearer ")
		if header == "" || plaintext == header {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		principal, err := s.tokens.Authenticate(r.Context(), plaintext)
		if err != nil {
			if err == auth.ErrInvalidToken {
				writeError(w, http.StatusUnauthorized, err.Error())
				return
			}
			writeAPIError(w, r, err)
			return
		}
		ctx := withPrincipal(r.Context(), principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	return r.RemoteAddr
}
