// Package services – CatalogService
//
// This file implements CatalogService, the read side of the catalog: live
// search by name, browsing in fixed-size pages, and detail lookups for a
// single entry or a series. Series are not stored on their own; they are
// derived from the appearances recorded on catalog entries.
package services

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-portfolio-backend/internal/domain"
	"github.com/tbourn/go-portfolio-backend/internal/repo"
	"github.com/tbourn/go-portfolio-backend/internal/search"
	"github.com/tbourn/go-portfolio-backend/internal/utils"
)

// PageSize is the number of entries per browse page.
const PageSize = 20

// CatalogRepo defines the repository contract required by CatalogService.
type CatalogRepo interface {
	// ListWaifus returns the whole catalog in a stable order.
	ListWaifus(ctx context.Context, db *gorm.DB) ([]domain.Waifu, error)

	ListWaifusPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.Waifu, error)

	GetWaifuBySlug(ctx context.Context, db *gorm.DB, slug string) (*domain.Waifu, error)
}

// Series is a series with the catalog entries appearing in it.
type Series struct {
	Slug   string
	Name   string
	Waifus []domain.Waifu
}

// CatalogService provides catalog queries.
type CatalogService struct {
	DB   DBProvider
	Repo CatalogRepo

	// MaxResults caps live search results; zero means unlimited.
	MaxResults int
}

// NewCatalogService constructs a CatalogService without a result cap.
func NewCatalogService(db DBProvider, r CatalogRepo) *CatalogService {
	return &CatalogService{DB: db, Repo: r}
}

// Search returns entries whose name contains text, ignoring case. It scans
// the whole catalog on every call. Only empty text is rejected; text that is
// blank after normalization matches nothing.
func (s *CatalogService) Search(ctx context.Context, text string) ([]domain.Waifu, error) {
	ctx, span := otel.Tracer("services/CatalogService").Start(ctx, "Search",
		trace.WithAttributes(attribute.Int("query.len", len(text))),
	)
	defer span.End()

	if text == "" {
		return nil, ErrEmptySearch
	}
	all, err := s.all(ctx)
	if err != nil {
		return nil, err
	}

	names := make([]string, len(all))
	for i := range all {
		names[i] = all[i].Name
	}
	hits := search.NewIndex(names, search.WithMaxResults(s.MaxResults)).Match(text)

	out := make([]domain.Waifu, 0, len(hits))
	for _, i := range hits {
		out = append(out, all[i])
	}
	span.SetAttributes(attribute.Int("results", len(out)))
	return out, nil
}

// Page returns the 1-based page n of the catalog.
func (s *CatalogService) Page(ctx context.Context, n int) ([]domain.Waifu, error) {
	if n < 1 {
		return nil, ErrInvalidPage
	}
	db, err := s.DB.DB(ctx)
	if err != nil {
		return nil, err
	}
	offset, limit := utils.Window(n, PageSize)
	items, err := s.Repo.ListWaifusPage(ctx, db, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("list page %d: %w", n, err)
	}
	return items, nil
}

// Browse serves the browse endpoint: a page number takes precedence over a
// name query. Unparsable page numbers are rejected like non-positive ones.
func (s *CatalogService) Browse(ctx context.Context, page, query string) ([]domain.Waifu, error) {
	switch {
	case page != "":
		n, ok := utils.ParsePage(page)
		if !ok {
			return nil, ErrInvalidPage
		}
		return s.Page(ctx, n)
	case query != "":
		return s.Search(ctx, query)
	default:
		return nil, ErrMissingListParams
	}
}

// Get returns one entry by slug.
func (s *CatalogService) Get(ctx context.Context, slug string) (*domain.Waifu, error) {
	db, err := s.DB.DB(ctx)
	if err != nil {
		return nil, err
	}
	w, err := s.Repo.GetWaifuBySlug(ctx, db, slug)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrWaifuNotFound
		}
		return nil, err
	}
	return w, nil
}

// Series collects the entries appearing in the series with slug.
func (s *CatalogService) Series(ctx context.Context, slug string) (*Series, error) {
	all, err := s.all(ctx)
	if err != nil {
		return nil, err
	}
	var out *Series
	for _, w := range all {
		for _, a := range w.Appearances {
			if a.Slug != slug {
				continue
			}
			if out == nil {
				out = &Series{Slug: a.Slug, Name: a.Name}
			}
			out.Waifus = append(out.Waifus, w)
			break
		}
	}
	if out == nil {
		return nil, ErrSeriesNotFound
	}
	return out, nil
}

func (s *CatalogService) all(ctx context.Context) ([]domain.Waifu, error) {
	db, err := s.DB.DB(ctx)
	if err != nil {
		return nil, err
	}
	all, err := s.Repo.ListWaifus(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("list catalog: %w", err)
	}
	return all, nil
}
