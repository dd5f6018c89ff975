// Package webclient is a Go client for the session-gated JSON API. It keeps
// the session cookie in a cookie jar, turns login-required responses into
// *RedirectError and records where the user was sent from so a later login
// can return there.
package webclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tbourn/go-portfolio-backend/internal/domain"
)

// SeriesLink names the series of a search hit.
type SeriesLink struct {
	Name     string `json:"name"`
	Endpoint string `json:"endpoint"`
}

// SearchResult is one live search hit.
type SearchResult struct {
	Name     string     `json:"name"`
	Series   SeriesLink `json:"series"`
	Endpoint string     `json:"endpoint"`
}

// BrowseResult is one entry of a catalog page.
type BrowseResult struct {
	Name     string     `json:"name"`
	Image    string     `json:"image"`
	Series   SeriesLink `json:"series"`
	Endpoint string     `json:"endpoint"`
}

// APIError is a non-2xx response carrying the standard error envelope.
type APIError struct {
	Status    int
	Code      string `json:"code"`
	Message   string `json:"error"`
	RequestID string `json:"request_id"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("webclient: HTTP %d", e.Status)
	}
	return fmt.Sprintf("webclient: HTTP %d: %s", e.Status, e.Message)
}

// RedirectError is a 401 whose payload tells the browser where to go,
// typically the login page.
type RedirectError struct {
	APIError
	Location string
}

func (e *RedirectError) Error() string {
	return fmt.Sprintf("webclient: redirect to %s: %s", e.Location, e.Message)
}

// Unwrap exposes the underlying envelope to errors.As.
func (e *RedirectError) Unwrap() error { return &e.APIError }

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the transport client. Its Jar is replaced by the
// client's own cookie jar unless it already has one.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithAPIBase sets the API mount point (default "/api").
func WithAPIBase(p string) Option {
	return func(c *Client) { c.apiBase = "/" + strings.Trim(p, "/") }
}

// WithReferral makes SignIn consume r. Share r with LiveSearchOptions so a
// search bounced to the login page is resumed after signing in.
func WithReferral(r *Referral) Option {
	return func(c *Client) { c.referral = r }
}

// Client talks to one site. It is safe for concurrent use.
type Client struct {
	base     *url.URL
	apiBase  string
	http     *http.Client
	referral *Referral
}

// New returns a Client for the site at baseURL (scheme and host, e.g.
// "https://example.com").
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("webclient: parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("webclient: base url %q needs scheme and host", baseURL)
	}
	c := &Client{base: u, apiBase: "/api"}
	for _, o := range opts {
		o(c)
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: 10 * time.Second}
	}
	if c.http.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, err
		}
		c.http.Jar = jar
	}
	// Redirects are data in this API, never followed.
	c.http.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }
	return c, nil
}

type userPayload struct {
	User *domain.User `json:"user"`
}

// Login signs in and returns the account.
func (c *Client) Login(ctx context.Context, username, password string) (*domain.User, error) {
	var out userPayload
	err := c.do(ctx, http.MethodPost, "/login", map[string]string{
		"username": username,
		"password": password,
	}, &out)
	return out.User, err
}

// SignIn logs in like Login and returns the page to continue on: the pending
// login referral, which it clears, or "/" when there is none. A failed login
// leaves the referral in place.
func (c *Client) SignIn(ctx context.Context, username, password string) (*domain.User, string, error) {
	u, err := c.Login(ctx, username, password)
	if err != nil {
		return nil, "", err
	}
	next := "/"
	if c.referral != nil {
		if p := c.referral.Take(); p != "" {
			next = p
		}
	}
	return u, next, nil
}

// Logout ends the session.
func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/login", nil, nil)
}

// Session returns the signed-in account, or nil for an anonymous session.
func (c *Client) Session(ctx context.Context) (*domain.User, error) {
	var out userPayload
	err := c.do(ctx, http.MethodGet, "/session", nil, &out)
	return out.User, err
}

// Signup creates an account and signs it in.
func (c *Client) Signup(ctx context.Context, username, password1, password2 string) (*domain.User, error) {
	var out userPayload
	err := c.do(ctx, http.MethodPost, "/signup", map[string]string{
		"username":  username,
		"password1": password1,
		"password2": password2,
	}, &out)
	return out.User, err
}

// DeleteAccount removes the signed-in account.
func (c *Client) DeleteAccount(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/signup", nil, nil)
}

// Search runs a live search.
func (c *Client) Search(ctx context.Context, text string) ([]SearchResult, error) {
	var out []SearchResult
	if err := c.do(ctx, http.MethodPost, "/search", map[string]string{"text": text}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Page returns one page of the catalog (1-based).
func (c *Client) Page(ctx context.Context, page int) ([]BrowseResult, error) {
	var out []BrowseResult
	if err := c.do(ctx, http.MethodGet, "/list?page="+strconv.Itoa(page), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) endpoint(p string) string {
	base := c.apiBase
	if base == "/" {
		base = ""
	}
	return c.base.ResolveReference(&url.URL{Path: base}).String() + p
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		return decodeError(resp.StatusCode, raw)
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("webclient: decode %s %s: %w", method, path, err)
	}
	return nil
}

func decodeError(status int, raw []byte) error {
	var env struct {
		APIError
		Redirect string `json:"redirect"`
	}
	_ = json.Unmarshal(raw, &env)
	env.Status = status
	if status == http.StatusUnauthorized && env.Redirect != "" {
		return &RedirectError{APIError: env.APIError, Location: env.Redirect}
	}
	e := env.APIError
	return &e
}

// IsRedirect reports whether err carries a login redirect and returns it.
func IsRedirect(err error) (*RedirectError, bool) {
	var re *RedirectError
	ok := errors.As(err, &re)
	return re, ok
}
