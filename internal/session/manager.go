// Package session resolves, creates, refreshes and destroys server-side
// sessions addressed by an opaque cookie token.
//
// A session starts anonymous and is regenerated under a new token when a
// user logs in. Sessions slide: once TouchAfter has elapsed since the last
// refresh, the expiry moves to now+TTL and the cookie is re-issued.
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/tbourn/go-portfolio-backend/internal/domain"
)

// ErrNotFound is returned by Store and UserLookup implementations for
// missing records.
var ErrNotFound = errors.New("session: not found")

// Store persists sessions.
type Store interface {
	Create(ctx context.Context, s *domain.Session) error
	Get(ctx context.Context, id string) (*domain.Session, error)
	Touch(ctx context.Context, id string, touchedAt, expiresAt time.Time) error
	Delete(ctx context.Context, id string) error
}

// UserLookup loads the account a session is bound to.
type UserLookup interface {
	UserByID(ctx context.Context, id string) (*domain.User, error)
}

// Options configure cookies and expiry.
type Options struct {
	CookieName string
	// CookieDomain is emitted as ".<domain>" when Secure is set.
	CookieDomain string
	Secure       bool
	TTL          time.Duration
	TouchAfter   time.Duration
}

// State is the resolved session of one request.
type State struct {
	Session *domain.Session
	// User is set only for an authenticated session.
	User *domain.User
	// Fresh reports that the cookie must be (re)sent.
	Fresh bool
}

// Authenticated reports whether the state carries a bound, existing user.
func (st *State) Authenticated() bool {
	return st != nil && st.User != nil && st.Session.Authenticated()
}

// Token returns the cookie value for st.
func (st *State) Token() string {
	if st == nil || st.Session == nil {
		return ""
	}
	return st.Session.ID
}

// Manager implements the session lifecycle over a Store.
type Manager struct {
	store Store
	users UserLookup
	opts  Options

	now   func() time.Time
	newID func() (string, error)
}

// NewManager constructs a Manager. Zero option values fall back to a "sid"
// cookie living 60 days with a 30 day refresh interval.
func NewManager(store Store, users UserLookup, opts Options) *Manager {
	if opts.CookieName == "" {
		opts.CookieName = "sid"
	}
	if opts.TTL <= 0 {
		opts.TTL = 60 * 24 * time.Hour
	}
	if opts.TouchAfter <= 0 {
		opts.TouchAfter = 30 * 24 * time.Hour
	}
	return &Manager{
		store: store,
		users: users,
		opts:  opts,
		now:   time.Now,
		newID: randomToken,
	}
}

// CookieName returns the name of the session cookie.
func (m *Manager) CookieName() string { return m.opts.CookieName }

// Resolve loads the session for token, or creates an anonymous one when the
// token is empty, unknown or expired. A session whose user no longer exists
// is replaced by an anonymous session. Store failures are returned as-is.
func (m *Manager) Resolve(ctx context.Context, token string) (*State, error) {
	now := m.now().UTC()
	if token == "" {
		return m.create(ctx, nil, now)
	}

	s, err := m.store.Get(ctx, token)
	switch {
	case errors.Is(err, ErrNotFound):
		return m.create(ctx, nil, now)
	case err != nil:
		return nil, fmt.Errorf("load session: %w", err)
	}

	if s.Expired(now) {
		if err := m.store.Delete(ctx, s.ID); err != nil {
			return nil, fmt.Errorf("drop expired session: %w", err)
		}
		return m.create(ctx, nil, now)
	}

	st := &State{Session: s}
	if s.Authenticated() {
		u, err := m.users.UserByID(ctx, *s.UserID)
		switch {
		case errors.Is(err, ErrNotFound):
			if err := m.store.Delete(ctx, s.ID); err != nil {
				return nil, fmt.Errorf("drop orphaned session: %w", err)
			}
			return m.create(ctx, nil, now)
		case err != nil:
			return nil, fmt.Errorf("load session user: %w", err)
		}
		st.User = u
	}

	if now.Sub(s.TouchedAt) >= m.opts.TouchAfter {
		exp := now.Add(m.opts.TTL)
		if err := m.store.Touch(ctx, s.ID, now, exp); err != nil {
			return nil, fmt.Errorf("touch session: %w", err)
		}
		s.TouchedAt, s.ExpiresAt = now, exp
		st.Fresh = true
	}
	return st, nil
}

// Authenticated reports whether token names a live session bound to an
// existing user. It never writes to the store.
func (m *Manager) Authenticated(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, nil
	}
	s, err := m.store.Get(ctx, token)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if s.Expired(m.now().UTC()) || !s.Authenticated() {
		return false, nil
	}
	if _, err := m.users.UserByID(ctx, *s.UserID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Login binds u to a brand-new session and destroys the previous one, so a
// token observed before login is useless afterwards.
func (m *Manager) Login(ctx context.Context, prev *State, u *domain.User) (*State, error) {
	if u == nil {
		return nil, errors.New("session: login without user")
	}
	if id := prev.Token(); id != "" {
		if err := m.store.Delete(ctx, id); err != nil {
			return nil, fmt.Errorf("regenerate session: %w", err)
		}
	}
	uid := u.ID
	st, err := m.create(ctx, &uid, m.now().UTC())
	if err != nil {
		return nil, err
	}
	st.User = u
	return st, nil
}

// Destroy deletes the session behind st. It is a no-op for an empty state.
func (m *Manager) Destroy(ctx context.Context, st *State) error {
	id := st.Token()
	if id == "" {
		return nil
	}
	if err := m.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("destroy session: %w", err)
	}
	return nil
}

func (m *Manager) create(ctx context.Context, userID *string, now time.Time) (*State, error) {
	id, err := m.newID()
	if err != nil {
		return nil, fmt.Errorf("session id: %w", err)
	}
	s := &domain.Session{
		ID:        id,
		UserID:    userID,
		CreatedAt: now,
		TouchedAt: now,
		ExpiresAt: now.Add(m.opts.TTL),
	}
	if err := m.store.Create(ctx, s); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return &State{Session: s, Fresh: true}, nil
}

// Cookie builds the session cookie for st.
func (m *Manager) Cookie(st *State) *http.Cookie {
	c := &http.Cookie{
		Name:     m.opts.CookieName,
		Value:    st.Token(),
		Path:     "/",
		MaxAge:   int(m.opts.TTL / time.Second),
		HttpOnly: true,
		Secure:   m.opts.Secure,
		SameSite: http.SameSiteStrictMode,
	}
	if st != nil && st.Session != nil {
		c.Expires = st.Session.ExpiresAt
	}
	if m.opts.Secure && m.opts.CookieDomain != "" {
		c.Domain = "." + m.opts.CookieDomain
	}
	return c
}

// ClearCookie builds a cookie that removes the session cookie.
func (m *Manager) ClearCookie() *http.Cookie {
	c := m.Cookie(nil)
	c.Value = ""
	c.MaxAge = -1
	c.Expires = time.Unix(0, 0)
	return c
}

// randomToken returns 32 random bytes, hex encoded.
func randomToken() (string, error) {
	var b [32]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(b[:]), nil
}
