// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file counts fixed rate-limit windows in the
// rate_windows table.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-portfolio-backend/internal/domain"
)

// HitRateWindow records one hit for (client, class) and returns the hit count
// of the current window together with its start. The whole sequence runs in
// one transaction so concurrent hits serialize on the row.
func HitRateWindow(ctx context.Context, db *gorm.DB, client, class string, window time.Duration, now time.Time) (int64, time.Time, error) {
	now = now.UTC()
	var row domain.RateWindow

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		fresh := domain.RateWindow{Client: client, RouteClass: class, WindowStart: now, Hits: 0}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&fresh).Error; err != nil {
			return err
		}

		key := tx.Model(&domain.RateWindow{}).
			Where("client = ? AND route_class = ?", client, class).
			Session(&gorm.Session{})

		// Expired windows restart at now.
		if err := key.Where("window_start <= ?", now.Add(-window)).
			Updates(map[string]any{"window_start": now, "hits": 0}).Error; err != nil {
			return err
		}
		if err := key.UpdateColumn("hits", gorm.Expr("hits + ?", 1)).Error; err != nil {
			return err
		}
		return tx.Where("client = ? AND route_class = ?", client, class).First(&row).Error
	})
	if err != nil {
		return 0, time.Time{}, err
	}
	return row.Hits, row.WindowStart, nil
}
