package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/tbourn/go-portfolio-backend/internal/config"
	"github.com/tbourn/go-portfolio-backend/internal/domain"
	"github.com/tbourn/go-portfolio-backend/internal/http/handlers"
	"github.com/tbourn/go-portfolio-backend/internal/ratelimit"
	"github.com/tbourn/go-portfolio-backend/internal/repo"
)

// --- helpers ---

func testConfig() config.Config {
	return config.Config{
		APIBasePath: "/api",
		Routing: config.RoutingConfig{
			DomainName: "example.com",
			Hostnames:  []string{"example.com"},
			Subdomains: []string{"blog"},
		},
		Session: config.SessionConfig{
			CookieName: "sid",
			TTL:        time.Hour,
			TouchAfter: time.Minute,
			BcryptCost: bcrypt.MinCost,
		},
		RateLimit: config.RateLimitConfig{
			Backend:    "db",
			APIWindow:  time.Minute,
			APIMax:     100,
			AuthWindow: time.Minute,
			AuthMax:    100,
		},
		OTEL: config.OTELConfig{ServiceName: "test-svc"},
	}
}

// newTestStore opens a migrated sqlite store in a temp dir (pure Go, no CGO).
func newTestStore(t *testing.T) *repo.Store {
	t.Helper()
	store := repo.NewStore(config.DBConfig{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "router.db"),
	}, repo.Options{Migrate: true})
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// newServer builds the full handler (host routing + engine) over a fresh store.
func newServer(t *testing.T, cfg config.Config) http.Handler {
	t.Helper()
	h, _ := newServerWithStore(t, cfg)
	return h
}

func newServerWithStore(t *testing.T, cfg config.Config) (http.Handler, *repo.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store := newTestStore(t)
	rates, closeRates, err := NewRateStore(cfg, store)
	if err != nil {
		t.Fatalf("rate store: %v", err)
	}
	t.Cleanup(func() { _ = closeRates() })
	return New(cfg, store, rates), store
}

func send(h http.Handler, method, host, path, body, cookie string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.Host = host
	if cookie != "" {
		req.AddCookie(&http.Cookie{Name: "sid", Value: cookie})
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func cookieValue(w *httptest.ResponseRecorder) string {
	v := ""
	for _, c := range w.Result().Cookies() {
		if c.Name == "sid" && c.MaxAge >= 0 {
			v = c.Value
		}
	}
	return v
}

// --- tests ---

func TestRegisterRoutes_CORSAllowAll_Health_Metrics_Fallbacks(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	cfg := testConfig()
	RegisterRoutes(r, newTestStore(t), ratelimit.NewMemoryStore(), cfg)

	// /health works
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	// CORS (AllowAllOrigins) → header "*"
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("AllowAllOrigins expected '*', got %q", got)
	}
	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("security headers missing: %q", got)
	}

	// /metrics is wired
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK || w.Body.Len() == 0 {
		t.Fatalf("GET /metrics bad: code=%d len=%d", w.Code, w.Body.Len())
	}

	// NoRoute → JSON 404
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("NoRoute = %d", w.Code)
	}

	// NoMethod → JSON 405
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/health", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("NoMethod = %d", w.Code)
	}
}

func TestHealth_StoreClosed(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	store := newTestStore(t)
	RegisterRoutes(r, store, ratelimit.NewMemoryStore(), testConfig())
	_ = store.Close()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("GET /health on closed store = %d", w.Code)
	}
}

func TestRegisterRoutes_CORSAllowlist(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	cfg := testConfig()
	cfg.CORS.AllowedOrigins = []string{"https://blog.example.com"}
	RegisterRoutes(r, newTestStore(t), ratelimit.NewMemoryStore(), cfg)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://blog.example.com")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://blog.example.com" {
		t.Fatalf("allowlisted origin: %q", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Fatalf("credentials: %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.test")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("foreign origin allowed: %q", got)
	}
}

func TestRegisterRoutes_Swagger(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	cfg := testConfig()
	cfg.SwaggerEnabled = true
	RegisterRoutes(r, newTestStore(t), ratelimit.NewMemoryStore(), cfg)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/swagger/doc.json", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "/search") {
		t.Fatalf("swagger doc: %d", w.Code)
	}
}

func TestNew_PagesAreRewrittenPerTenant(t *testing.T) {
	h := newServer(t, testConfig())

	cases := []struct {
		host, path, ns, rest string
	}{
		{"example.com", "/", "home", "/"},
		{"example.com", "/about", "home", "/about"},
		{"blog.example.com", "/posts/1", "blog", "/posts/1"},
		{"BLOG.Example.com:443", "/", "blog", "/"},
		{"shop.example.com", "/cart", "home", "/cart"},
	}
	for _, tc := range cases {
		w := send(h, http.MethodGet, tc.host, tc.path, "", "")
		if w.Code != http.StatusOK {
			t.Errorf("%s%s: status=%d", tc.host, tc.path, w.Code)
			continue
		}
		var got handlers.PageResponse
		if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
			t.Fatalf("json: %v", err)
		}
		if got.Namespace != tc.ns || got.Path != tc.rest {
			t.Errorf("%s%s: got %+v", tc.host, tc.path, got)
		}
	}

	// Missing host → internal not-found page.
	if w := send(h, http.MethodGet, "", "/", "", ""); w.Code != http.StatusNotFound {
		t.Fatalf("unroutable: %d", w.Code)
	}
	// Ops endpoints bypass rewriting on any host.
	if w := send(h, http.MethodGet, "blog.example.com", "/health", "", ""); w.Code != http.StatusOK {
		t.Fatalf("health via tenant host: %d", w.Code)
	}
}

func TestNew_SignedInLoginPageRedirects(t *testing.T) {
	h := newServer(t, testConfig())

	w := send(h, http.MethodPost, "example.com", "/api/signup",
		`{"username":"alice","password1":"hunter22","password2":"hunter22"}`, "")
	if w.Code != http.StatusCreated {
		t.Fatalf("signup: %d %s", w.Code, w.Body.String())
	}
	tok := cookieValue(w)
	if tok == "" {
		t.Fatalf("no session cookie")
	}

	w = send(h, http.MethodGet, "example.com", "/login", "", tok)
	if w.Code != http.StatusTemporaryRedirect || w.Header().Get("Location") != "/" {
		t.Fatalf("login page for signed-in user: %d %q", w.Code, w.Header().Get("Location"))
	}

	// Anonymous visitors see the page.
	w = send(h, http.MethodGet, "example.com", "/login", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("anonymous login page: %d", w.Code)
	}

	// Tenant hosts never redirect.
	w = send(h, http.MethodGet, "blog.example.com", "/login", "", tok)
	if w.Code != http.StatusOK {
		t.Fatalf("tenant login page: %d", w.Code)
	}
}

func TestNew_CatalogRequiresLogin(t *testing.T) {
	h := newServer(t, testConfig())

	w := send(h, http.MethodPost, "blog.example.com", "/api/search", `{"text":"rem"}`, "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status=%d", w.Code)
	}
	var er handlers.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &er); err != nil {
		t.Fatalf("json: %v", err)
	}
	if er.Redirect != "https://example.com/login" {
		t.Fatalf("redirect %q", er.Redirect)
	}
	if w.Header().Get("X-RateLimit-Limit") != "100" {
		t.Fatalf("rate headers missing: %v", w.Header())
	}
}

func TestNew_AuthBudgetExhausted(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.AuthMax = 2
	h := newServer(t, cfg)

	for i := 0; i < 2; i++ {
		if w := send(h, http.MethodGet, "example.com", "/api/session", "", ""); w.Code != http.StatusOK {
			t.Fatalf("request %d: %d", i, w.Code)
		}
	}
	w := send(h, http.MethodGet, "example.com", "/api/session", "", "")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("third request: %d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" || w.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Fatalf("headers %v", w.Header())
	}
	var er handlers.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &er); err != nil || er.Code != handlers.ErrCodeRateLimited {
		t.Fatalf("body %s (%v)", w.Body.String(), err)
	}
}

func TestNewRateStore_Backends(t *testing.T) {
	store := newTestStore(t)
	cfg := testConfig()

	cfg.RateLimit.Backend = "redis"
	cfg.Redis.Addr = "127.0.0.1:0"
	s, closeFn, err := NewRateStore(cfg, store)
	if err != nil || s == nil {
		t.Fatalf("redis backend: %v", err)
	}
	_ = closeFn()

	cfg.RateLimit.Backend = "carrier-pigeon"
	if _, _, err := NewRateStore(cfg, store); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}

func sessionSnapshot(t *testing.T, store *repo.Store) int64 {
	t.Helper()
	db, err := store.DB(context.Background())
	if err != nil {
		t.Fatalf("db: %v", err)
	}
	var n int64
	if err := db.Model(&domain.Session{}).Count(&n).Error; err != nil {
		t.Fatalf("count sessions: %v", err)
	}
	return n
}

func TestNew_ForwardedForNeedsTrustedProxy(t *testing.T) {
	fromPeer := func(h http.Handler, i int) int {
		req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
		req.Host = "example.com"
		req.RemoteAddr = "203.0.113.7:51000"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("10.0.0.%d", i))
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w.Code
	}

	cfg := testConfig()
	cfg.RateLimit.AuthMax = 2
	h := newServer(t, cfg)
	var codes []int
	for i := 0; i < 5; i++ {
		codes = append(codes, fromPeer(h, i))
	}
	if codes[2] != http.StatusTooManyRequests || codes[4] != http.StatusTooManyRequests {
		t.Fatalf("rotating X-Forwarded-For escaped the limiter: %v", codes)
	}

	cfg.TrustedProxies = []string{"203.0.113.0/24"}
	h = newServer(t, cfg)
	for i := 0; i < 5; i++ {
		if code := fromPeer(h, i); code != http.StatusOK {
			t.Fatalf("client %d behind trusted proxy: %d", i, code)
		}
	}
}

func TestNew_ThrottledCatalogRequestsCreateNoSession(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.APIMax = 1
	h, store := newServerWithStore(t, cfg)

	var codes []int
	for i := 0; i < 5; i++ {
		codes = append(codes, send(h, http.MethodPost, "example.com", "/api/search", `{"text":"rem"}`, "").Code)
	}
	want := []int{http.StatusUnauthorized, http.StatusTooManyRequests, http.StatusTooManyRequests,
		http.StatusTooManyRequests, http.StatusTooManyRequests}
	for i := range want {
		if codes[i] != want[i] {
			t.Fatalf("codes %v; want %v", codes, want)
		}
	}
	if n := sessionSnapshot(t, store); n != 1 {
		t.Fatalf("sessions created = %d; only the admitted request may create one", n)
	}
}
