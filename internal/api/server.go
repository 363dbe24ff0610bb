package api

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/eddydoes42/FieldOpsPro-sub005/internal/audit"
	"github.com/eddydoes42/FieldOpsPro-sub005/internal/auth"
	"github.com/eddydoes42/FieldOpsPro-sub005/internal/events"
	"github.com/eddydoes42/FieldOpsPro-sub005/internal/ratelimit"
	"github.com/eddydoes42/FieldOpsPro-sub005/internal/rbac"
	"github.com/eddydoes42/FieldOpsPro-sub005/internal/security"
	"github.com/eddydoes42/FieldOpsPro-sub005/internal/storage"
	"github.com/eddydoes42/FieldOpsPro-sub005/pkg/models"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

// Config holds server configuration.
type Config struct {
	ListenAddr    string
	TLSCertFile   string
	TLSKeyFile    string
	Environment   string
	MaxViolations int
	SweepInterval time.Duration
	RateLimits    map[string]ratelimit.Limit
}

// Server is the API server. All components are wired once here, at
// construction, and passed by reference — no global registry.
type Server struct {
	store    storage.Store
	tokens   *auth.Service
	rbac     *rbac.Service
	auditor  *audit.Logger
	limiter  *ratelimit.Limiter
	bus      *events.Bus
	enforcer *security.Engine

	cfg       Config
	startedAt time.Time
	httpSrv   *http.Server
	unsubBus  func()
}

// NewServer creates a fully wired Server.
func NewServer(store storage.Store, cfg Config) *Server {
	bus := events.NewBus()
	auditor := audit.NewLogger(store, bus)
	limiter := ratelimit.New(cfg.RateLimits)
	rbacSvc := rbac.NewService(store)
	ledger := security.NewLedger(cfg.MaxViolations)
	enforcer := security.NewEngine(rbacSvc, limiter, auditor, bus, ledger)
	for _, p := range security.DefaultPolicies() {
		enforcer.AddPolicy(p)
	}
	enforcer.SetEscalation(func(v models.SecurityViolation, c security.Context) {
		// Extension point: lock account / alert / block origin. The default
		// escalation logs and counts.
		log.Error().Str("violation_id", v.ID).Str("type", v.Type).
			Str("principal", v.PrincipalID).Str("ip", v.ClientIP).
			Msg("critical security violation escalated")
		escalationsTotal.Inc()
	})

	s := &Server{
		store:     store,
		tokens:    auth.NewService(store),
		rbac:      rbacSvc,
		auditor:   auditor,
		limiter:   limiter,
		bus:       bus,
		enforcer:  enforcer,
		cfg:       cfg,
		startedAt: time.Now(),
	}
	s.watchBus()
	return s
}

// watchBus feeds bus events into metrics.
func (s *Server) watchBus() {
	ch, unsub := s.bus.Subscribe(64)
	s.unsubBus = unsub
	go func() {
		for ev := range ch {
			switch e := ev.(type) {
			case events.SecurityBreachDetected:
				violationsTotal.WithLabelValues(string(e.Violation.Severity)).Inc()
			case events.AuditWriteDropped:
				auditDroppedTotal.Add(float64(e.Count))
			}
		}
	}()
}

// Enforcer exposes the policy engine (for cmd wiring and tests).
func (s *Server) Enforcer() *security.Engine {
	return s.enforcer
}

// BuildRouter wires up all routes and returns a chi router.
func (s *Server) BuildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware, in the fixed request-shaping order.
	r.Use(chimiddleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(securityHeadersMiddleware)
	r.Use(metricsMiddleware)
	r.Use(s.identityMiddleware)
	r.Use(s.auditMiddleware)
	r.Use(riskScoreMiddleware)
	r.Use(s.rateLimitMiddleware)

	// Public routes (no auth required)
	r.Handle("/metrics", MetricsHandler())
	r.Get("/api/health", s.HealthHandler)

	// Authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Get("/api/infrastructure/status", s.InfrastructureStatusHandler)

		r.Get("/api/audit-logs", s.AuditLogsHandler)
		r.Post("/api/audit-logs/export", s.AuditExportHandler)
		r.Post("/api/compliance/report", s.ComplianceReportHandler)

		r.Get("/api/security/audit-trail", s.SecurityTrailHandler)
		r.Get("/api/security/violations", s.ViolationsHandler)
		r.Post("/api/security/violations/{id}/resolve", s.ResolveViolationHandler)
		r.Get("/api/security/statistics", s.SecurityStatisticsHandler)
		r.Get("/api/security/policies", s.PoliciesHandler)
		r.Post("/api/security/policies/{name}/enable", s.PolicyEnableHandler)
		r.Post("/api/security/policies/{name}/disable", s.PolicyDisableHandler)

		r.Get("/api/roles/hierarchy", s.RoleHierarchyHandler)
		r.Post("/api/permissions/check", s.PermissionCheckHandler)
	})

	return r
}

// requireAccess checks the caller's permission for resource:action and runs
// the policy engine over the request. On denial it audits, records, and
// writes the response itself, returning false.
func (s *Server) requireAccess(w http.ResponseWriter, r *http.Request, resource, action string) (*models.Principal, bool) {
	principal := principalFromCtx(r.Context())

	secCtx := security.Context{
		Principal: principal,
		Resource:  resource,
		Action:    action,
		Protected: true,
		ClientIP:  clientIP(r),
		UserAgent: r.UserAgent(),
		Payload:   peekPayload(r),
		RiskScore: riskScoreFromCtx(r.Context()),
	}

	if !s.rbac.PrincipalHasPermission(principal, resource, action) {
		s.auditor.Log(&models.AuditEvent{
			EntityType:  "access_control",
			EntityID:    resource,
			Action:      "access_denied",
			PerformedBy: principalID(principal),
			Severity:    models.SeverityMedium,
			RequestID:   requestIDFromCtx(r.Context()),
			ClientIP:    clientIP(r),
			Metadata:    map[string]any{"required": resource + ":" + action},
		})
		s.enforcer.Enforce(secCtx)
		writeAPIError(w, r, &PermissionDeniedError{Resource: resource, Action: action})
		return nil, false
	}

	if !s.enforcer.Enforce(secCtx) {
		writeAPIError(w, r, &PolicyViolationError{})
		return nil, false
	}
	return principal, true
}

// auditAccess emits the endpoint's own self-referential audit event.
func (s *Server) auditAccess(r *http.Request, entityType, action string, meta map[string]any) {
	s.auditor.Log(&models.AuditEvent{
		EntityType:  entityType,
		EntityID:    r.URL.Path,
		Action:      action,
		PerformedBy: principalID(principalFromCtx(r.Context())),
		RequestID:   requestIDFromCtx(r.Context()),
		ClientIP:    clientIP(r),
		UserAgent:   r.UserAgent(),
		Metadata:    meta,
	})
}

// peekPayload reads and restores the JSON body of a mutating request so the
// data-access policy rules can scan the fields the handler is about to
// decode. Non-JSON or empty bodies yield nil.
func peekPayload(r *http.Request) map[string]any {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
	default:
		return nil
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	if len(body) == 0 {
		return nil
	}
	var payload map[string]any
	json.Unmarshal(body, &payload) //nolint:errcheck
	return payload
}

func principalID(p *models.Principal) string {
	if p == nil {
		return ""
	}
	return p.ID
}

// Start begins listening on the configured address.
func (s *Server) Start() error {
	handler := s.BuildRouter()

	if s.cfg.SweepInterval > 0 {
		if err := s.enforcer.StartSweep(s.cfg.SweepInterval); err != nil {
			return err
		}
	}

	s.httpSrv = &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	if s.cfg.TLSCertFile != "" && s.cfg.TLSKeyFile != "" {
		s.httpSrv.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
			CurvePreferences: []tls.CurveID{
				tls.CurveP256,
				tls.X25519,
			},
		}
		log.Info().Str("addr", s.cfg.ListenAddr).Msg("starting HTTPS server")
		return s.httpSrv.ListenAndServeTLS(s.cfg.TLSCertFile, s.cfg.TLSKeyFile)
	}

	log.Info().Str("addr", s.cfg.ListenAddr).Msg("starting HTTP server")
	return s.httpSrv.ListenAndServe()
}

// Shutdown gracefully stops the server, the sweep, and the audit writer.
func (s *Server) Shutdown(ctx context.Context) error {
	s.enforcer.StopSweep()
	var err error
	if s.httpSrv != nil {
		err = s.httpSrv.Shutdown(ctx)
	}
	if s.unsubBus != nil {
		s.unsubBus()
	}
	s.auditor.Close()
	return err
}
