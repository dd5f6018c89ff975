package tenant

import (
	"regexp"
	"strings"
)

// Decision is the outcome of Route. Exactly one of Path and Redirect is set.
type Decision struct {
	// Path is the internal path the request is rewritten to.
	Path string
	// Redirect is the client-visible location to send the browser to.
	Redirect string
}

// IsRedirect reports whether the decision is a redirect.
func (d Decision) IsRedirect() bool { return d.Redirect != "" }

// NotFoundPath is the internal path for unroutable requests.
const NotFoundPath = "/404"

// HomeNamespace is the internal prefix for the default tenant.
const HomeNamespace = "home"

// Route computes the routing decision for one request. authenticated must
// reflect a verified session bound to an existing user.
func Route(t Tenant, path string, authenticated bool) Decision {
	if path == "" || path[0] != '/' {
		path = "/" + path
	}
	switch {
	case t == Unroutable:
		return Decision{Path: NotFoundPath}
	case t.Recognized():
		return Decision{Path: "/" + string(t) + path}
	case authenticated && IsAnonymousOnly(path):
		return Decision{Redirect: "/"}
	default:
		return Decision{Path: "/" + HomeNamespace + path}
	}
}

// IsAnonymousOnly reports whether path is a page that signed-in users are
// bounced away from.
func IsAnonymousOnly(path string) bool {
	return path == "/login" || path == "/signup"
}

// fileRE matches a path segment that names a file, e.g. "favicon.ico".
var fileRE = regexp.MustCompile(`^[\w-]+\.\w+`)

// excludedRoots are first path segments that bypass host routing.
var excludedRoots = map[string]struct{}{
	"_next":  {},
	"fonts":  {},
	"images": {},
	"static": {},
}

// Excluded reports whether path bypasses host routing: API calls, asset
// directories and any path whose last segment is a file name. apiBase is the
// mount point of the JSON API (e.g. "/api"); extra names further first
// segments such as "metrics" or "health".
func Excluded(path, apiBase string, extra ...string) bool {
	first := strings.TrimPrefix(path, "/")
	if i := strings.IndexByte(first, '/'); i >= 0 {
		first = first[:i]
	}
	if first == "" {
		return false
	}
	if base := strings.Trim(apiBase, "/"); base != "" {
		if path == "/"+base || strings.HasPrefix(path, "/"+base+"/") {
			return true
		}
	}
	if _, ok := excludedRoots[first]; ok {
		return true
	}
	for _, e := range extra {
		if first == strings.Trim(e, "/") {
			return true
		}
	}
	last := path[strings.LastIndexByte(path, '/')+1:]
	return fileRE.MatchString(last)
}
