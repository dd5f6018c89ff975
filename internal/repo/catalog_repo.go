// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the catalog.
package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-portfolio-backend/internal/domain"
)

// ListWaifus returns the whole catalog in insertion order.
func ListWaifus(ctx context.Context, db *gorm.DB) ([]domain.Waifu, error) {
	var out []domain.Waifu
	err := db.WithContext(ctx).Order("id ASC").Find(&out).Error
	return out, err
}

// ListWaifusPage returns up to limit entries starting at offset.
func ListWaifusPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.Waifu, error) {
	var out []domain.Waifu
	err := db.WithContext(ctx).
		Order("id ASC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// GetWaifuBySlug fetches one entry or ErrNotFound.
func GetWaifuBySlug(ctx context.Context, db *gorm.DB, slug string) (*domain.Waifu, error) {
	var w domain.Waifu
	if err := db.WithContext(ctx).Where("slug = ?", slug).First(&w).Error; err != nil {
		return nil, err
	}
	return &w, nil
}

// UpsertWaifus inserts entries, updating name, picture and appearances of
// existing slugs.
func UpsertWaifus(ctx context.Context, db *gorm.DB, items []domain.Waifu) error {
	if len(items) == 0 {
		return nil
	}
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "slug"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "display_picture", "appearances"}),
	}).CreateInBatches(items, 200).Error
}

// SeedCatalogFile loads a JSON array of catalog entries from path and
// upserts it. It returns the number of entries read.
func SeedCatalogFile(ctx context.Context, db *gorm.DB, path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read catalog seed: %w", err)
	}
	var items []domain.Waifu
	if err := json.Unmarshal(raw, &items); err != nil {
		return 0, fmt.Errorf("decode catalog seed: %w", err)
	}
	if err := UpsertWaifus(ctx, db, items); err != nil {
		return 0, fmt.Errorf("upsert catalog: %w", err)
	}
	return len(items), nil
}
