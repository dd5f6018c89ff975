// Catalog HTTP handlers.
//
// This file exposes the read-only catalog endpoints, all behind the login
// guard:
//   - POST /search        (live search by name)
//   - GET  /list          (browse by page or name query)
//   - GET  /waifus/{slug} (one entry with its series)
//   - GET  /series/{slug} (one series with its entries)
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-portfolio-backend/internal/domain"
	"github.com/tbourn/go-portfolio-backend/internal/services"
)

// CatalogService defines the catalog queries consumed by the handlers.
type CatalogService interface {
	Search(ctx context.Context, text string) ([]domain.Waifu, error)
	Browse(ctx context.Context, page, query string) ([]domain.Waifu, error)
	Get(ctx context.Context, slug string) (*domain.Waifu, error)
	Series(ctx context.Context, slug string) (*services.Series, error)
}

// CatalogHandlers groups the catalog endpoints.
type CatalogHandlers struct {
	svc CatalogService
}

// NewCatalogHandlers constructs CatalogHandlers.
func NewCatalogHandlers(svc CatalogService) *CatalogHandlers {
	return &CatalogHandlers{svc: svc}
}

//
// DTOs
//

// SearchRequest is the payload of POST /search.
type SearchRequest struct {
	Text string `json:"text" form:"text" example:"rem"`
}

// SeriesLink points at a series.
type SeriesLink struct {
	Name     string `json:"name" example:"Re:Zero"`
	Endpoint string `json:"endpoint" example:"re-zero"`
}

// SearchResult is one live search hit. Series.Endpoint is the bare series
// slug; Endpoint is the page path of the entry.
type SearchResult struct {
	Name     string     `json:"name" example:"Rem"`
	Series   SeriesLink `json:"series"`
	Endpoint string     `json:"endpoint" example:"/waifus/rem"`
}

// BrowseResult is one browse entry. Series.Endpoint is a page path here.
type BrowseResult struct {
	Name     string     `json:"name" example:"Rem"`
	Image    string     `json:"image" example:"https://cdn.example.com/rem.png"`
	Series   SeriesLink `json:"series"`
	Endpoint string     `json:"endpoint" example:"/waifus/rem"`
}

// WaifuResponse is the detail view of one entry.
type WaifuResponse struct {
	Waifu  *domain.Waifu `json:"waifu"`
	Series []SeriesLink  `json:"series"`
}

// SeriesResponse is the detail view of one series.
type SeriesResponse struct {
	Slug   string         `json:"slug" example:"re-zero"`
	Name   string         `json:"name" example:"Re:Zero"`
	Waifus []BrowseResult `json:"waifus"`
}

func entryPath(w domain.Waifu) string { return "/waifus/" + w.Slug }

func browseResult(w domain.Waifu) BrowseResult {
	link := SeriesLink{}
	if a := w.PrimarySeries(); a.Slug != "" {
		link = SeriesLink{Name: a.Name, Endpoint: "/series/" + a.Slug}
	}
	return BrowseResult{
		Name:     w.Name,
		Image:    w.DisplayPicture,
		Series:   link,
		Endpoint: entryPath(w),
	}
}

//
// Handlers
//

// Search godoc
// @Summary      Live search
// @Description  Case-insensitive substring match over entry names. Not paginated.
// @Tags         catalog
// @Accept       json
// @Produce      json
// @Param        body  body      SearchRequest  true  "Query"
// @Success      200   {array}   SearchResult
// @Failure      400   {object}  ErrorResponse
// @Failure      401   {object}  ErrorResponse
// @Failure      429   {object}  ErrorResponse
// @Router       /search [post]
func (h *CatalogHandlers) Search(c *gin.Context) {
	var req SearchRequest
	_ = c.ShouldBind(&req)

	items, err := h.svc.Search(c.Request.Context(), req.Text)
	if err != nil {
		h.catalogError(c, err)
		return
	}
	out := make([]SearchResult, 0, len(items))
	for _, w := range items {
		a := w.PrimarySeries()
		out = append(out, SearchResult{
			Name:     w.Name,
			Series:   SeriesLink{Name: a.Name, Endpoint: a.Slug},
			Endpoint: entryPath(w),
		})
	}
	ok(c, http.StatusOK, out)
}

// List godoc
// @Summary      Browse the catalog
// @Description  Returns page N (20 entries) or all entries whose name matches query. page wins when both are given.
// @Tags         catalog
// @Produce      json
// @Param        page   query     int     false  "1-based page"
// @Param        query  query     string  false  "Name fragment"
// @Success      200    {array}   BrowseResult
// @Failure      400    {object}  ErrorResponse
// @Failure      401    {object}  ErrorResponse
// @Router       /list [get]
func (h *CatalogHandlers) List(c *gin.Context) {
	query := c.Query("query")
	if query == "" {
		query = c.Query("waifu")
	}
	items, err := h.svc.Browse(c.Request.Context(), c.Query("page"), query)
	if err != nil {
		h.catalogError(c, err)
		return
	}
	out := make([]BrowseResult, 0, len(items))
	for _, w := range items {
		out = append(out, browseResult(w))
	}
	ok(c, http.StatusOK, out)
}

// Waifu godoc
// @Summary      Entry detail
// @Tags         catalog
// @Produce      json
// @Param        slug  path      string  true  "Entry slug"
// @Success      200   {object}  WaifuResponse
// @Failure      401   {object}  ErrorResponse
// @Failure      404   {object}  ErrorResponse
// @Router       /waifus/{slug} [get]
func (h *CatalogHandlers) Waifu(c *gin.Context) {
	w, err := h.svc.Get(c.Request.Context(), strings.TrimSpace(c.Param("slug")))
	if err != nil {
		h.catalogError(c, err)
		return
	}
	series := make([]SeriesLink, 0, len(w.Appearances))
	for _, a := range w.Appearances {
		series = append(series, SeriesLink{Name: a.Name, Endpoint: a.Slug})
	}
	ok(c, http.StatusOK, WaifuResponse{Waifu: w, Series: series})
}

// Series godoc
// @Summary      Series detail
// @Tags         catalog
// @Produce      json
// @Param        slug  path      string  true  "Series slug"
// @Success      200   {object}  SeriesResponse
// @Failure      401   {object}  ErrorResponse
// @Failure      404   {object}  ErrorResponse
// @Router       /series/{slug} [get]
func (h *CatalogHandlers) Series(c *gin.Context) {
	s, err := h.svc.Series(c.Request.Context(), strings.TrimSpace(c.Param("slug")))
	if err != nil {
		h.catalogError(c, err)
		return
	}
	resp := SeriesResponse{Slug: s.Slug, Name: s.Name, Waifus: make([]BrowseResult, 0, len(s.Waifus))}
	for _, w := range s.Waifus {
		resp.Waifus = append(resp.Waifus, browseResult(w))
	}
	ok(c, http.StatusOK, resp)
}

// catalogError maps service errors to responses.
func (h *CatalogHandlers) catalogError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrEmptySearch),
		errors.Is(err, services.ErrMissingListParams),
		errors.Is(err, services.ErrInvalidPage):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	case errors.Is(err, services.ErrWaifuNotFound), errors.Is(err, services.ErrSeriesNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, err.Error())
	default:
		internalError(c, err)
	}
}
