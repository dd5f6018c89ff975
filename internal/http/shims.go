package httpapi

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/tbourn/go-portfolio-backend/internal/config"
	"github.com/tbourn/go-portfolio-backend/internal/domain"
	"github.com/tbourn/go-portfolio-backend/internal/ratelimit"
	"github.com/tbourn/go-portfolio-backend/internal/repo"
	"github.com/tbourn/go-portfolio-backend/internal/services"
	"github.com/tbourn/go-portfolio-backend/internal/session"
)

// userRepoShim adapts the repository free functions to services.UserRepo.
type userRepoShim struct{}

// CreateUser proxies repo.CreateUser.
func (userRepoShim) CreateUser(ctx context.Context, db *gorm.DB, username, hash string) (*domain.User, error) {
	return repo.CreateUser(ctx, db, username, hash)
}

// GetUserByUsername proxies repo.GetUserByUsername.
func (userRepoShim) GetUserByUsername(ctx context.Context, db *gorm.DB, username string) (*domain.User, error) {
	return repo.GetUserByUsername(ctx, db, username)
}

// UsernameExists proxies repo.UsernameExists.
func (userRepoShim) UsernameExists(ctx context.Context, db *gorm.DB, username string) (bool, error) {
	return repo.UsernameExists(ctx, db, username)
}

// DeleteUser proxies repo.DeleteUser.
func (userRepoShim) DeleteUser(ctx context.Context, db *gorm.DB, id string) (int64, error) {
	return repo.DeleteUser(ctx, db, id)
}

// catalogRepoShim adapts the repository free functions to services.CatalogRepo.
type catalogRepoShim struct{}

// ListWaifus proxies repo.ListWaifus.
func (catalogRepoShim) ListWaifus(ctx context.Context, db *gorm.DB) ([]domain.Waifu, error) {
	return repo.ListWaifus(ctx, db)
}

// ListWaifusPage proxies repo.ListWaifusPage.
func (catalogRepoShim) ListWaifusPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.Waifu, error) {
	return repo.ListWaifusPage(ctx, db, offset, limit)
}

// GetWaifuBySlug proxies repo.GetWaifuBySlug.
func (catalogRepoShim) GetWaifuBySlug(ctx context.Context, db *gorm.DB, slug string) (*domain.Waifu, error) {
	return repo.GetWaifuBySlug(ctx, db, slug)
}

// sessionStoreShim backs session.Manager with the sessions and users tables.
// It implements both session.Store and session.UserLookup.
type sessionStoreShim struct {
	db services.DBProvider
}

func sessionErr(err error) error {
	if errors.Is(err, repo.ErrNotFound) {
		return session.ErrNotFound
	}
	return err
}

func (s sessionStoreShim) Create(ctx context.Context, sess *domain.Session) error {
	db, err := s.db.DB(ctx)
	if err != nil {
		return err
	}
	return repo.CreateSession(ctx, db, sess)
}

func (s sessionStoreShim) Get(ctx context.Context, id string) (*domain.Session, error) {
	db, err := s.db.DB(ctx)
	if err != nil {
		return nil, err
	}
	sess, err := repo.GetSession(ctx, db, id)
	return sess, sessionErr(err)
}

func (s sessionStoreShim) Touch(ctx context.Context, id string, touchedAt, expiresAt time.Time) error {
	db, err := s.db.DB(ctx)
	if err != nil {
		return err
	}
	return sessionErr(repo.TouchSession(ctx, db, id, touchedAt, expiresAt))
}

func (s sessionStoreShim) Delete(ctx context.Context, id string) error {
	db, err := s.db.DB(ctx)
	if err != nil {
		return err
	}
	return repo.DeleteSession(ctx, db, id)
}

func (s sessionStoreShim) UserByID(ctx context.Context, id string) (*domain.User, error) {
	db, err := s.db.DB(ctx)
	if err != nil {
		return nil, err
	}
	u, err := repo.GetUserByID(ctx, db, id)
	return u, sessionErr(err)
}

// dbRateStore keeps rate windows in the rate_windows table.
type dbRateStore struct {
	db services.DBProvider
}

// Hit proxies repo.HitRateWindow.
func (s dbRateStore) Hit(ctx context.Context, client string, class ratelimit.RouteClass, window time.Duration, now time.Time) (int64, time.Time, error) {
	db, err := s.db.DB(ctx)
	if err != nil {
		return 0, time.Time{}, err
	}
	return repo.HitRateWindow(ctx, db, client, string(class), window, now)
}

// NewRateStore selects the rate window backend named by
// cfg.RateLimit.Backend. The returned close function releases the Redis
// client, if any.
func NewRateStore(cfg config.Config, db services.DBProvider) (ratelimit.Store, func() error, error) {
	switch strings.ToLower(cfg.RateLimit.Backend) {
	case "", "db":
		return dbRateStore{db: db}, func() error { return nil }, nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		return ratelimit.NewRedisStore(client, "ratelimit:"), client.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown rate limit backend %q", cfg.RateLimit.Backend)
	}
}
