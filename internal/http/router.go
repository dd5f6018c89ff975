// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, sessions, and rate limiting, and puts host based
// tenant routing in front of all of it.
//
// Design goals:
//   - Host routing runs first, before any Gin middleware
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - API stages in a fixed order: rate checks → session → guard → handler
//   - All dependencies injected; nothing global besides the metrics registry
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/tbourn/go-portfolio-backend/internal/config"
	"github.com/tbourn/go-portfolio-backend/internal/docs"
	"github.com/tbourn/go-portfolio-backend/internal/http/handlers"
	"github.com/tbourn/go-portfolio-backend/internal/http/middleware"
	"github.com/tbourn/go-portfolio-backend/internal/ratelimit"
	"github.com/tbourn/go-portfolio-backend/internal/services"
	"github.com/tbourn/go-portfolio-backend/internal/session"
	"github.com/tbourn/go-portfolio-backend/internal/tenant"
)

// Pinger reports database health for /health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// opsRoots are first path segments served by the engine itself and never
// rewritten by host routing.
var opsRoots = []string{"health", "metrics", "swagger"}

// rateLimitHeaders are exposed to browser scripts.
var rateLimitHeaders = []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"}

// New assembles the complete HTTP handler: a Gin engine with every route,
// wrapped by host routing.
func New(cfg config.Config, db services.DBProvider, rates ratelimit.Store) http.Handler {
	r := gin.New()
	sessions := RegisterRoutes(r, db, rates, cfg)
	return WithHostRouting(r, sessions, cfg)
}

// NewClassifier builds the tenant classifier described by cfg.Routing.
func NewClassifier(cfg config.Config) *tenant.Classifier {
	mode := tenant.Prod
	if cfg.Routing.DevMode {
		mode = tenant.Dev
	}
	return tenant.NewClassifier(mode, cfg.Routing.Hostnames, cfg.Routing.Subdomains)
}

// NewSessionManager builds the session manager over the database.
func NewSessionManager(cfg config.Config, db services.DBProvider) *session.Manager {
	store := sessionStoreShim{db: db}
	return session.NewManager(store, store, session.Options{
		CookieName:   cfg.Session.CookieName,
		CookieDomain: cfg.Session.CookieDomain,
		Secure:       !cfg.Routing.DevMode,
		TTL:          cfg.Session.TTL,
		TouchAfter:   cfg.Session.TouchAfter,
	})
}

// WithHostRouting puts host classification and path rewriting in front of
// next. sessions answers the signed-in check for /login and /signup.
func WithHostRouting(next http.Handler, sessions *session.Manager, cfg config.Config) http.Handler {
	return middleware.HostRouting(next, middleware.HostRoutingOptions{
		Classifier:  NewClassifier(cfg),
		Probe:       sessions,
		CookieName:  sessions.CookieName(),
		APIBase:     cfg.APIBasePath,
		Passthrough: opsRoots,
	})
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine and returns the session manager the API uses.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Compression
//  7. Metrics
//  8. Edge token bucket per IP
//  9. CORS and Security headers
//
// API routes then run: fixed-window rate checks → session resolution →
// guard → handler.
func RegisterRoutes(r *gin.Engine, db services.DBProvider, rates ratelimit.Store, cfg config.Config) *session.Manager {
	r.HandleMethodNotAllowed = true

	// Client IPs key the rate limiters; only configured proxies may set them.
	if err := r.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		log.Error().Err(err).Strs("trusted_proxies", cfg.TrustedProxies).Msg("trusted proxies rejected, using socket peer")
		_ = r.SetTrustedProxies(nil)
	}

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{"X-API-Key"},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB)
	r.Use(limitBody(1 << 20))

	// 6) Compress responses except the metrics scrape
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))

	// 7) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 8) Burst protection before any store access
	if cfg.RateLimit.RateRPS > 0 {
		r.Use(middleware.NewEdgeLimiter(cfg.RateLimit.RateRPS, cfg.RateLimit.RateBurst, middleware.KeyByIP()).Handler())
	}

	// 9) CORS posture and security headers
	r.Use(corsMiddleware(cfg)...)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:    cfg.Security.EnableHSTS,
		HSTSMaxAge:    cfg.Security.HSTSMaxAge,
		NoStore:       false,
		EnablePolicy:  true,
		ExposeHeaders: rateLimitHeaders,
	}))

	// Fallbacks: rewritten page paths land here.
	pages := handlers.NewPageHandlers(cfg.Routing.Subdomains)
	r.NoRoute(pages.Render)
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethod, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", healthHandler(db))

	if cfg.SwaggerEnabled {
		docs.SwaggerInfo.BasePath = cfg.APIBasePath
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Dependency injection: services ← repo/db
	sessions := NewSessionManager(cfg, db)
	authSvc := services.NewAuthService(db, userRepoShim{}, cfg.Session.BcryptCost)
	catalogSvc := services.NewCatalogService(db, catalogRepoShim{})
	auth := handlers.NewAuthHandlers(authSvc, sessions)
	catalog := handlers.NewCatalogHandlers(catalogSvc)

	limiter := ratelimit.New(rates, map[ratelimit.RouteClass]ratelimit.Policy{
		ratelimit.API:  {Window: cfg.RateLimit.APIWindow, Max: int64(cfg.RateLimit.APIMax)},
		ratelimit.Auth: {Window: cfg.RateLimit.AuthWindow, Max: int64(cfg.RateLimit.AuthMax)},
	})
	loginURL := NewClassifier(cfg).LoginURL
	signedIn := middleware.RequireAuthenticated(loginURL)
	anonymous := middleware.RequireAnonymous()

	// Public API. Both rate checks run before session resolution so a
	// throttled client never creates a session row.
	authLimit := middleware.RateLimit(limiter, ratelimit.Auth)
	apiLimit := middleware.RateLimit(limiter, ratelimit.API)
	resolve := middleware.Sessions(sessions)

	account := groupWithPrefix(r, cfg.APIBasePath)
	account.Use(authLimit, resolve)
	{
		account.POST("/login", anonymous, auth.Login)
		account.DELETE("/login", signedIn, auth.Logout)
		account.GET("/session", auth.Session)
		account.POST("/signup", anonymous, auth.Signup)
		account.DELETE("/signup", signedIn, auth.DeleteAccount)
	}

	catalogAPI := groupWithPrefix(r, cfg.APIBasePath)
	catalogAPI.Use(authLimit, apiLimit, resolve, signedIn)
	{
		catalogAPI.POST("/search", catalog.Search)
		catalogAPI.GET("/list", catalog.List)
		catalogAPI.GET("/waifus/:slug", catalog.Waifu)
		catalogAPI.GET("/series/:slug", catalog.Series)
	}
	return sessions
}

// corsMiddleware returns the CORS chain. With no allowlist every origin is
// accepted without credentials; with one, listed origins (the tenant
// subdomains) may send the session cookie.
func corsMiddleware(cfg config.Config) []gin.HandlerFunc {
	allowHeaders := []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"}
	exposeHeaders := append([]string{"X-Request-ID", "Content-Length"}, rateLimitHeaders...)
	methods := []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}

	if len(cfg.CORS.AllowedOrigins) == 0 {
		return []gin.HandlerFunc{
			// Force ACAO: * even for requests without an Origin header.
			func(c *gin.Context) {
				c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
				c.Next()
			},
			cors.New(cors.Config{
				AllowAllOrigins:  true,
				AllowMethods:     methods,
				AllowHeaders:     allowHeaders,
				ExposeHeaders:    exposeHeaders,
				AllowCredentials: false, // must remain false with AllowAllOrigins
				MaxAge:           12 * time.Hour,
			}),
		}
	}
	return []gin.HandlerFunc{cors.New(cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     methods,
		AllowHeaders:     allowHeaders,
		ExposeHeaders:    exposeHeaders,
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})}
}

// healthHandler reports 200 when the database answers a ping.
func healthHandler(db services.DBProvider) gin.HandlerFunc {
	return func(c *gin.Context) {
		if p, ok := db.(Pinger); ok {
			if err := p.Ping(c.Request.Context()); err != nil {
				middleware.LoggerFrom(c).Warn().Err(err).Msg("health: database unreachable")
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
