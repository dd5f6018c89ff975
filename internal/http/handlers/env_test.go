package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/tbourn/go-portfolio-backend/internal/domain"
	"github.com/tbourn/go-portfolio-backend/internal/http/middleware"
	"github.com/tbourn/go-portfolio-backend/internal/repo"
	"github.com/tbourn/go-portfolio-backend/internal/services"
	"github.com/tbourn/go-portfolio-backend/internal/session"
)

// ---------- test DB + repo shims ----------

type staticDB struct{ db *gorm.DB }

func (s staticDB) DB(context.Context) (*gorm.DB, error) { return s.db, nil }

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := repo.OpenSQLite(filepath.Join(t.TempDir(), "handlers.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

type testUserRepo struct{}

func (testUserRepo) CreateUser(ctx context.Context, db *gorm.DB, username, hash string) (*domain.User, error) {
	return repo.CreateUser(ctx, db, username, hash)
}

func (testUserRepo) GetUserByUsername(ctx context.Context, db *gorm.DB, username string) (*domain.User, error) {
	return repo.GetUserByUsername(ctx, db, username)
}

func (testUserRepo) UsernameExists(ctx context.Context, db *gorm.DB, username string) (bool, error) {
	return repo.UsernameExists(ctx, db, username)
}

func (testUserRepo) DeleteUser(ctx context.Context, db *gorm.DB, id string) (int64, error) {
	return repo.DeleteUser(ctx, db, id)
}

type testCatalogRepo struct{}

func (testCatalogRepo) ListWaifus(ctx context.Context, db *gorm.DB) ([]domain.Waifu, error) {
	return repo.ListWaifus(ctx, db)
}

func (testCatalogRepo) ListWaifusPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.Waifu, error) {
	return repo.ListWaifusPage(ctx, db, offset, limit)
}

func (testCatalogRepo) GetWaifuBySlug(ctx context.Context, db *gorm.DB, slug string) (*domain.Waifu, error) {
	return repo.GetWaifuBySlug(ctx, db, slug)
}

// testSessions adapts the repo session functions to session.Store and
// session.UserLookup.
type testSessions struct{ db *gorm.DB }

func notFound(err error) error {
	if errors.Is(err, repo.ErrNotFound) {
		return session.ErrNotFound
	}
	return err
}

func (s testSessions) Create(ctx context.Context, sess *domain.Session) error {
	return repo.CreateSession(ctx, s.db, sess)
}

func (s testSessions) Get(ctx context.Context, id string) (*domain.Session, error) {
	sess, err := repo.GetSession(ctx, s.db, id)
	return sess, notFound(err)
}

func (s testSessions) Touch(ctx context.Context, id string, touched, expires time.Time) error {
	return notFound(repo.TouchSession(ctx, s.db, id, touched, expires))
}

func (s testSessions) Delete(ctx context.Context, id string) error {
	return repo.DeleteSession(ctx, s.db, id)
}

func (s testSessions) UserByID(ctx context.Context, id string) (*domain.User, error) {
	u, err := repo.GetUserByID(ctx, s.db, id)
	return u, notFound(err)
}

// ---------- engine ----------

type testEnv struct {
	db       *gorm.DB
	sessions *session.Manager
	engine   *gin.Engine
}

func loginURL(host string) string { return "http://" + host + "/login" }

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := newTestDB(t)
	store := testSessions{db: db}
	mgr := session.NewManager(store, store, session.Options{CookieName: "sid"})

	auth := NewAuthHandlers(services.NewAuthService(staticDB{db}, testUserRepo{}, bcrypt.MinCost), mgr)
	catalog := NewCatalogHandlers(services.NewCatalogService(staticDB{db}, testCatalogRepo{}))
	pages := NewPageHandlers([]string{"blog"})

	r := gin.New()
	r.Use(middleware.RequestID())
	r.NoRoute(pages.Render)

	api := r.Group("/api", middleware.Sessions(mgr))
	signedIn := middleware.RequireAuthenticated(loginURL)
	anonymous := middleware.RequireAnonymous()

	api.POST("/login", anonymous, auth.Login)
	api.DELETE("/login", signedIn, auth.Logout)
	api.GET("/session", auth.Session)
	api.POST("/signup", anonymous, auth.Signup)
	api.DELETE("/signup", signedIn, auth.DeleteAccount)

	api.POST("/search", signedIn, catalog.Search)
	api.GET("/list", signedIn, catalog.List)
	api.GET("/waifus/:slug", signedIn, catalog.Waifu)
	api.GET("/series/:slug", signedIn, catalog.Series)

	return &testEnv{db: db, sessions: mgr, engine: r}
}

// do sends a request with an optional JSON body and session cookie.
func (e *testEnv) do(method, path, body, token string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.Host = "example.com"
	if token != "" {
		req.AddCookie(&http.Cookie{Name: "sid", Value: token})
	}
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)
	return w
}

// doForm sends a urlencoded form body without a cookie.
func (e *testEnv) doForm(method, path, form string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(form))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Host = "example.com"
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)
	return w
}

// signup creates an account through the API and returns the session token.
func (e *testEnv) signup(t *testing.T, username, password string) string {
	t.Helper()
	w := e.do(http.MethodPost, "/api/signup",
		`{"username":"`+username+`","password1":"`+password+`","password2":"`+password+`"}`, "")
	if w.Code != http.StatusCreated {
		t.Fatalf("signup: %d %s", w.Code, w.Body.String())
	}
	tok := sessionCookie(w)
	if tok == "" {
		t.Fatalf("signup did not set a session cookie")
	}
	return tok
}

// sessionCookie returns the last live "sid" cookie set by the response.
func sessionCookie(w *httptest.ResponseRecorder) string {
	tok := ""
	for _, c := range w.Result().Cookies() {
		if c.Name == "sid" && c.MaxAge >= 0 {
			tok = c.Value
		}
	}
	return tok
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var er ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &er); err != nil {
		t.Fatalf("decode error body %q: %v", w.Body.String(), err)
	}
	return er
}
