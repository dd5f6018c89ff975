// Page handlers.
//
// HostRouting rewrites every page request into "/<namespace>/<path>". The
// front-end assets are served elsewhere; this renderer answers rewritten
// paths with a small JSON descriptor so the namespace chosen for a request
// is observable. It is mounted as the engine's NoRoute handler.
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-portfolio-backend/internal/tenant"
)

// PageResponse describes a rendered page.
type PageResponse struct {
	// Namespace is "home" for the main site or the tenant label.
	Namespace string `json:"namespace" example:"blog"`
	// Path is the page path inside the namespace.
	Path string `json:"path" example:"/posts/1"`
}

// PageHandlers renders rewritten page paths.
type PageHandlers struct {
	namespaces map[string]struct{}
}

// NewPageHandlers constructs PageHandlers for the home namespace plus the
// given tenant labels.
func NewPageHandlers(tenants []string) *PageHandlers {
	ns := map[string]struct{}{tenant.HomeNamespace: {}}
	for _, t := range tenants {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			ns[t] = struct{}{}
		}
	}
	return &PageHandlers{namespaces: ns}
}

// Render answers GET and HEAD for known namespaces. Everything else,
// including the internal not-found path, is a 404.
func (h *PageHandlers) Render(c *gin.Context) {
	if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "route not found")
		return
	}
	p := c.Request.URL.Path
	if p == tenant.NotFoundPath {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "page not found")
		return
	}

	ns, rest, _ := strings.Cut(strings.TrimPrefix(p, "/"), "/")
	if _, known := h.namespaces[ns]; !known {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "route not found")
		return
	}
	ok(c, http.StatusOK, PageResponse{Namespace: ns, Path: "/" + rest})
}
