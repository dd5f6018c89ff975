// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements HostRouting, the outermost handler. It classifies
// the Host header into a tenant and either rewrites the request path into
// that tenant's namespace or redirects, before the Gin engine sees the
// request. Paths in the exclusion set (API base, assets, ops endpoints,
// root files) pass through untouched.
package middleware

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-portfolio-backend/internal/tenant"
)

// Headers set on rewritten requests.
const (
	TenantHeader       = "X-Tenant"
	OriginalPathHeader = "X-Original-Path"
)

// SessionProbe answers whether a session token belongs to a signed-in user
// without modifying it.
type SessionProbe interface {
	Authenticated(ctx context.Context, token string) (bool, error)
}

// HostRoutingOptions configure HostRouting.
type HostRoutingOptions struct {
	Classifier *tenant.Classifier
	// Probe may be nil; every request is then treated as anonymous.
	Probe      SessionProbe
	CookieName string
	// APIBase is never rewritten (e.g. "/api").
	APIBase string
	// Passthrough lists further first path segments to leave alone.
	Passthrough []string
}

type hostRouter struct {
	opts HostRoutingOptions
	next http.Handler
}

// HostRouting wraps next with host based path rewriting.
//
// The decision is computed fresh for every request. Only default-tenant
// requests for /login or /signup that carry a session cookie look the
// session up; a lookup failure is logged and the visitor is treated as
// anonymous, which shows the form instead of redirecting.
func HostRouting(next http.Handler, opts HostRoutingOptions) http.Handler {
	return &hostRouter{opts: opts, next: next}
}

func (h *hostRouter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	if tenant.Excluded(path, h.opts.APIBase, h.opts.Passthrough...) {
		h.next.ServeHTTP(w, r)
		return
	}

	t := h.opts.Classifier.Classify(r.Host)
	authenticated := false
	if t.IsDefault() && tenant.IsAnonymousOnly(path) {
		authenticated = h.signedIn(r)
	}

	d := tenant.Route(t, path, authenticated)
	if d.IsRedirect() {
		hostRoutes.WithLabelValues("redirect").Inc()
		http.Redirect(w, r, d.Redirect, http.StatusTemporaryRedirect)
		return
	}

	outcome := "rewrite"
	if d.Path == tenant.NotFoundPath {
		outcome = "not_found"
	}
	hostRoutes.WithLabelValues(outcome).Inc()

	r2 := r.Clone(r.Context())
	r2.URL.Path = d.Path
	r2.URL.RawPath = ""
	r2.Header.Set(TenantHeader, string(t))
	r2.Header.Set(OriginalPathHeader, path)
	h.next.ServeHTTP(w, r2)
}

func (h *hostRouter) signedIn(r *http.Request) bool {
	if h.opts.Probe == nil || h.opts.CookieName == "" {
		return false
	}
	ck, err := r.Cookie(h.opts.CookieName)
	if err != nil || ck.Value == "" {
		return false
	}
	ok, err := h.opts.Probe.Authenticated(r.Context(), ck.Value)
	if err != nil {
		log.Warn().Err(err).Str("path", r.URL.Path).Msg("session probe failed; routing as anonymous")
		return false
	}
	return ok
}
