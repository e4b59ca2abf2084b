// Package fontcache persists fetched font files across sessions in SQLite.
package fontcache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Font is one cached font file.
type Font struct {
	Family    string    `gorm:"primaryKey"`
	Data      []byte    `gorm:"not null"`
	Size      int64     `gorm:"not null"`
	ExpiresAt time.Time `gorm:"not null;index"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (f *Font) IsExpired(now time.Time) bool {
	return now.After(f.ExpiresAt)
}

type Options struct {
	Path          string
	TTL           time.Duration
	SweepInterval time.Duration
	Logger        zerolog.Logger
}

type Cache struct {
	db            *gorm.DB
	ttl           time.Duration
	sweepInterval time.Duration
	logger        zerolog.Logger
	now           func() time.Time

	mu        sync.Mutex
	lastSweep time.Time
}

// Open opens (or creates) the cache database at opts.Path. ":memory:" is
// accepted.
func Open(opts Options) (*Cache, error) {
	if opts.Path == "" {
		return nil, errors.New("font cache path is empty")
	}
	db, err := gorm.Open(sqlite.Open(opts.Path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open font cache: %w", err)
	}
	if opts.Path == ":memory:" {
		// every pooled connection would otherwise get its own empty database
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("open font cache: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return New(db, opts)
}

// New wraps an existing database handle and migrates the schema.
func New(db *gorm.DB, opts Options) (*Cache, error) {
	if err := db.AutoMigrate(&Font{}); err != nil {
		return nil, fmt.Errorf("migrate font cache: %w", err)
	}
	if opts.TTL <= 0 {
		opts.TTL = 7 * 24 * time.Hour
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = time.Hour
	}
	return &Cache{
		db:            db,
		ttl:           opts.TTL,
		sweepInterval: opts.SweepInterval,
		logger:        opts.Logger.With().Str("component", "fontcache").Logger(),
		now:           time.Now,
	}, nil
}

// Get returns the cached bytes for family. Expired entries are misses.
func (c *Cache) Get(ctx context.Context, family string) ([]byte, bool, error) {
	var font Font
	err := c.db.WithContext(ctx).Where("family = ?", family).First(&font).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("query font cache: %w", err)
	}

	if font.IsExpired(c.now()) {
		c.logger.Debug().Str("family", family).Msg("font cache entry expired")
		return nil, false, nil
	}

	c.logger.Debug().Str("family", family).Int64("size", font.Size).Msg("font cache hit")
	return font.Data, true, nil
}

// Put stores data for family, replacing any previous entry.
func (c *Cache) Put(ctx context.Context, family string, data []byte) error {
	font := Font{
		Family:    family,
		Data:      data,
		Size:      int64(len(data)),
		ExpiresAt: c.now().Add(c.ttl),
	}

	err := c.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "family"}},
			DoUpdates: clause.AssignmentColumns([]string{"data", "size", "expires_at", "updated_at"}),
		}).
		Create(&font).Error
	if err != nil {
		return fmt.Errorf("save font cache entry: %w", err)
	}
	return nil
}

// Sweep deletes expired entries and returns how many were removed.
func (c *Cache) Sweep(ctx context.Context) (int64, error) {
	c.mu.Lock()
	c.lastSweep = c.now()
	c.mu.Unlock()

	res := c.db.WithContext(ctx).Where("expires_at < ?", c.now()).Delete(&Font{})
	if res.Error != nil {
		return 0, fmt.Errorf("sweep font cache: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		c.logger.Debug().Int64("removed", res.RowsAffected).Msg("swept expired fonts")
	}
	return res.RowsAffected, nil
}

// MaybeSweep sweeps when the last sweep is older than the sweep interval.
func (c *Cache) MaybeSweep(ctx context.Context) bool {
	c.mu.Lock()
	due := c.now().Sub(c.lastSweep) >= c.sweepInterval
	c.mu.Unlock()

	if !due {
		return false
	}
	if _, err := c.Sweep(ctx); err != nil {
		c.logger.Warn().Err(err).Msg("font cache sweep failed")
	}
	return true
}

func (c *Cache) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
