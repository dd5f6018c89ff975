// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes settings for the
// server, host routing, sessions, storage, rate limiting and observability.
package config

import (
	"errors"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "go-portfolio-backend")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// RoutingConfig drives host classification.
type RoutingConfig struct {
	DevMode    bool     // DEV_MODE
	DomainName string   // DOMAIN_NAME, required outside dev mode
	Hostnames  []string // DOMAIN_NAME followed by HOSTNAMES
	Subdomains []string // recognized tenant labels
}

// SessionConfig holds cookie and lifetime settings for server-side sessions.
type SessionConfig struct {
	CookieName   string        // SESSION_COOKIE
	CookieDomain string        // COOKIE_DOMAIN, falls back to DOMAIN_NAME
	TTL          time.Duration // SESSION_TTL
	TouchAfter   time.Duration // SESSION_TOUCH_AFTER
	BcryptCost   int           // BCRYPT_COST
}

// DBConfig selects the gorm dialector and its connection target.
type DBConfig struct {
	Driver      string // sqlite|postgres
	Path        string // SQLite path
	DSN         string // postgres DSN
	CatalogSeed string // optional JSON seed for the catalog table
}

// RedisConfig is used when RateLimitConfig.Backend is "redis".
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RateLimitConfig configures the windowed limiter and the edge token bucket.
type RateLimitConfig struct {
	Backend    string        // db|redis
	APIWindow  time.Duration // API_RATE_WINDOW
	APIMax     int           // API_RATE_MAX
	AuthWindow time.Duration // AUTH_RATE_WINDOW
	AuthMax    int           // AUTH_RATE_MAX

	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// TrustedProxies are the proxy addresses or CIDRs whose X-Forwarded-For
	// is believed. Empty means the socket peer is the client.
	TrustedProxies []string

	Routing   RoutingConfig
	Session   SessionConfig
	DB        DBConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	domain := normalizeDomain(getenv("DOMAIN_NAME", ""))
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api")),
		TrustedProxies: splitCSV(getenv("TRUSTED_PROXIES", "")),

		Routing: RoutingConfig{
			DevMode:    getbool("DEV_MODE", false),
			DomainName: domain,
			Hostnames:  hostnames(domain, splitCSV(getenv("HOSTNAMES", ""))),
			Subdomains: lowerAll(splitCSV(getenv("SUBDOMAINS", "blog"))),
		},
		Session: SessionConfig{
			CookieName:   getenv("SESSION_COOKIE", "sid"),
			CookieDomain: normalizeDomain(getenv("COOKIE_DOMAIN", domain)),
			TTL:          getdur("SESSION_TTL", 60*24*time.Hour),
			TouchAfter:   getdur("SESSION_TOUCH_AFTER", 30*24*time.Hour),
			BcryptCost:   getint("BCRYPT_COST", 10),
		},
		DB: DBConfig{
			Driver:      strings.ToLower(getenv("DB_DRIVER", "sqlite")),
			Path:        getenv("DB_PATH", "app.db"),
			DSN:         getenv("DB_DSN", ""),
			CatalogSeed: getenv("CATALOG_SEED", ""),
		},
		Redis: RedisConfig{
			Addr:     getenv("REDIS_ADDR", "localhost:6379"),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       getint("REDIS_DB", 0),
		},
		RateLimit: RateLimitConfig{
			Backend:    strings.ToLower(getenv("RATE_LIMIT_BACKEND", "db")),
			APIWindow:  getdur("API_RATE_WINDOW", 15*time.Minute),
			APIMax:     getint("API_RATE_MAX", 100),
			AuthWindow: getdur("AUTH_RATE_WINDOW", time.Second),
			AuthMax:    getint("AUTH_RATE_MAX", 100),
			RateRPS:    getfloat("RATE_RPS", 20.0),
			RateBurst:  getint("RATE_BURST", 40),
		},

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-portfolio-backend"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if !cfg.Routing.DevMode && cfg.Routing.DomainName == "" {
		return cfg, errors.New("DOMAIN_NAME is required unless DEV_MODE is set")
	}
	if strings.TrimSpace(cfg.Session.CookieName) == "" {
		return cfg, errors.New("SESSION_COOKIE must not be empty")
	}
	if cfg.Session.TTL <= 0 || cfg.Session.TouchAfter < 0 {
		return cfg, errors.New("SESSION_TTL must be > 0 and SESSION_TOUCH_AFTER >= 0")
	}
	if cfg.Session.BcryptCost < 4 || cfg.Session.BcryptCost > 31 {
		return cfg, errors.New("BCRYPT_COST must be between 4 and 31")
	}
	switch cfg.DB.Driver {
	case "sqlite":
		if strings.TrimSpace(cfg.DB.Path) == "" {
			return cfg, errors.New("DB_PATH must not be empty")
		}
	case "postgres":
		if strings.TrimSpace(cfg.DB.DSN) == "" {
			return cfg, errors.New("DB_DSN is required when DB_DRIVER=postgres")
		}
	default:
		return cfg, errors.New("DB_DRIVER must be one of: sqlite, postgres")
	}
	switch cfg.RateLimit.Backend {
	case "db", "redis":
	default:
		return cfg, errors.New("RATE_LIMIT_BACKEND must be one of: db, redis")
	}
	if cfg.RateLimit.APIWindow <= 0 || cfg.RateLimit.AuthWindow <= 0 {
		return cfg, errors.New("rate limit windows must be positive durations")
	}
	if cfg.RateLimit.APIMax < 1 || cfg.RateLimit.AuthMax < 1 {
		return cfg, errors.New("rate limit maximums must be >= 1")
	}
	if cfg.RateLimit.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateLimit.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	for _, p := range cfg.TrustedProxies {
		if _, _, err := net.ParseCIDR(p); err != nil && net.ParseIP(p) == nil {
			return cfg, errors.New("TRUSTED_PROXIES must list IP addresses or CIDRs")
		}
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

func lowerAll(in []string) []string {
	for i := range in {
		in[i] = strings.ToLower(in[i])
	}
	return in
}

// normalizeDomain lowercases and strips a leading or trailing dot.
func normalizeDomain(d string) string {
	return strings.Trim(strings.ToLower(strings.TrimSpace(d)), ".")
}

// hostnames puts the primary domain first and drops duplicates.
func hostnames(primary string, extra []string) []string {
	seen := make(map[string]struct{}, len(extra)+1)
	out := make([]string, 0, len(extra)+1)
	for _, h := range append([]string{primary}, extra...) {
		h = normalizeDomain(h)
		if h == "" {
			continue
		}
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		out = append(out, h)
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
