// Package guard is the directory of car guards that can receive tips.
package guard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tipytap/internal/domain" // Importing domain models
	"tipytap/internal/utils"  // Cache helpers

	"github.com/redis/go-redis/v9" // Redis client
	"github.com/sirupsen/logrus"   // Logging library
	"gorm.io/gorm"                 // GORM ORM library
)

// ErrNotFound is returned when no guard has the requested id.
var ErrNotFound = errors.New("guard not found")

// Resolver looks up a guard by id.
type Resolver interface {
	ResolveGuard(ctx context.Context, guardID string) (*domain.CarGuard, error)
}

// Directory resolves guards from the database through a Redis read-through cache.
type Directory struct {
	db    *gorm.DB
	cache redis.Cmdable
	ttl   time.Duration
}

// NewDirectory returns a directory on db. rdb may be nil to disable caching.
func NewDirectory(db *gorm.DB, rdb *redis.Client, ttl time.Duration) *Directory {
	d := &Directory{db: db, ttl: ttl}
	if rdb != nil {
		d.cache = rdb
	}
	return d
}

func cacheKey(guardID string) string {
	return "guard:" + guardID
}

// ResolveGuard returns the guard with guardID or ErrNotFound.
func (d *Directory) ResolveGuard(ctx context.Context, guardID string) (*domain.CarGuard, error) {
	var g domain.CarGuard
	found, err := utils.GetCache(ctx, d.cache, cacheKey(guardID), &g)
	if err == nil && found {
		return &g, nil
	}
	// Cache miss, read from DB
	if err := d.db.WithContext(ctx).Where("id = ?", guardID).First(&g).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to resolve guard: %w", err)
	}
	if err := utils.SetCache(ctx, d.cache, cacheKey(guardID), g, d.ttl); err != nil {
		logrus.WithFields(logrus.Fields{
			"guard_id": guardID,
			"error":    err.Error(),
		}).Warn("Failed to cache guard")
	}
	return &g, nil
}

// Register creates or replaces a guard profile and drops its cached copy.
func (d *Directory) Register(ctx context.Context, g *domain.CarGuard) error {
	if err := d.db.WithContext(ctx).Save(g).Error; err != nil {
		return fmt.Errorf("failed to save guard: %w", err)
	}
	_ = utils.DeleteCache(ctx, d.cache, cacheKey(g.ID)) // Invalidate cached profile
	logrus.WithFields(logrus.Fields{
		"guard_id": g.ID,
		"name":     g.Name,
		"location": g.Location,
	}).Info("Guard registered")
	return nil
}

// List returns one page of guards ordered by name, and the total count.
func (d *Directory) List(ctx context.Context, limit, offset int) ([]domain.CarGuard, int64, error) {
	var total int64
	if err := d.db.WithContext(ctx).Model(&domain.CarGuard{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count guards: %w", err)
	}
	var guards []domain.CarGuard
	if err := d.db.WithContext(ctx).Order("name asc").Offset(offset).Limit(limit).Find(&guards).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch guards: %w", err)
	}
	return guards, total, nil
}
