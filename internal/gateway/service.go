package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/medrex/rxledger/internal/ledger"
	"github.com/medrex/rxledger/pkg/logger"
	"github.com/medrex/rxledger/pkg/monitoring"
	"github.com/medrex/rxledger/pkg/types"
)

// AuditArchive serves audit history from long-term storage
type AuditArchive interface {
	Query(ctx context.Context, filter *types.AuditFilter) ([]types.AuditEvent, error)
}

// Config holds the gateway configuration
type Config struct {
	JWTSecret      string
	JWTIssuer      string
	JWTAudience    string
	RateLimit      int
	RatePeriod     time.Duration
	AllowedOrigins []string
	DisableMetrics bool
}

// Dependencies are the collaborators the gateway serves and reports to.
// Only Ledger is required.
type Dependencies struct {
	Ledger  *ledger.Ledger
	Logger  *logger.Logger
	Metrics *monitoring.MetricsCollector
	Tracing *monitoring.TracingManager
	Health  *monitoring.HealthManager
	Archive AuditArchive
}

// Service exposes the ledger over HTTP
type Service struct {
	router         *mux.Router
	handler        http.Handler
	ledger         *ledger.Ledger
	tokenValidator *TokenValidator
	rateLimiter    *RateLimiter
	metrics        *monitoring.MetricsCollector
	tracing        *monitoring.TracingManager
	health         *monitoring.HealthManager
	archive        AuditArchive
	logger         *logger.Logger
	allowedOrigins map[string]bool
	allowAnyOrigin bool
}

// NewService creates the HTTP gateway
func NewService(config *Config, deps Dependencies) *Service {
	s := &Service{
		router:         mux.NewRouter(),
		ledger:         deps.Ledger,
		tokenValidator: NewTokenValidator(config.JWTSecret, config.JWTIssuer, config.JWTAudience),
		metrics:        deps.Metrics,
		tracing:        deps.Tracing,
		health:         deps.Health,
		archive:        deps.Archive,
		logger:         deps.Logger,
		allowedOrigins: make(map[string]bool),
	}

	if s.logger == nil {
		s.logger = logger.Discard()
	}
	if s.metrics == nil {
		s.metrics = monitoring.NewMetricsCollector("rxledger", nil)
	}
	if s.tracing == nil {
		s.tracing = monitoring.NewNoopTracingManager()
	}
	if s.health == nil {
		s.health = monitoring.NewHealthManager("rxledger", "")
	}
	if config.RateLimit > 0 && config.RatePeriod > 0 {
		s.rateLimiter = NewRateLimiter(config.RateLimit, config.RatePeriod)
	}
	for _, origin := range config.AllowedOrigins {
		if origin == "*" {
			s.allowAnyOrigin = true
		}
		s.allowedOrigins[origin] = true
	}

	s.setupRoutes(!config.DisableMetrics)
	s.setupMiddleware()
	return s
}

// Handler returns the fully wrapped HTTP handler
func (s *Service) Handler() http.Handler {
	return s.handler
}

// StartBackground starts housekeeping that runs until ctx is done
func (s *Service) StartBackground(ctx context.Context) {
	if s.rateLimiter != nil {
		s.rateLimiter.StartCleanup(ctx, time.Hour)
	}
}

func (s *Service) setupMiddleware() {
	s.router.Use(
		s.metrics.HTTPMiddleware(routeTemplate),
		s.authMiddleware,
		s.rateLimitMiddleware,
	)

	var h http.Handler = s.router
	h = s.tracing.HTTPMiddleware(h)
	h = s.loggingMiddleware(h)
	h = s.securityHeadersMiddleware(h)
	h = s.corsMiddleware(h)
	h = s.requestIDMiddleware(h)
	s.handler = h
}

func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

// run executes one ledger mutation on behalf of caller with tracing,
// metrics and logging around it
func (s *Service) run(ctx context.Context, operation string, caller types.Identity, fn func(ctx context.Context) error) error {
	ctx, span := s.tracing.StartLedgerSpan(ctx, operation, string(caller))
	defer span.End()

	before := s.ledger.EventCount()
	start := time.Now()
	err := fn(ctx)
	duration := time.Since(start)

	if err != nil {
		kind := types.KindOf(err)
		s.tracing.RecordError(span, err)
		s.metrics.RecordLedgerTransaction(operation, string(kind), duration)
		if kind == types.KindInternal {
			s.metrics.RecordSystemError(operation, "ledger")
		}
		s.logger.Denied(ctx, operation, string(caller), string(kind), err)
		return err
	}

	s.metrics.RecordLedgerTransaction(operation, "committed", duration)
	s.logger.Transaction(ctx, operation, string(caller), int(s.ledger.EventCount()-before), duration.Milliseconds())
	s.refreshGauges()
	return nil
}

func (s *Service) refreshGauges() {
	s.metrics.SetPaused(s.ledger.EffectivePause())
	s.metrics.SetPrescriptionsIssued(s.ledger.GetPrescriptionCount())
}

// callerFrom returns the authenticated identity of the request
func callerFrom(ctx context.Context) types.Identity {
	identity, _ := ctx.Value(logger.IdentityKey).(string)
	return types.Identity(identity)
}
