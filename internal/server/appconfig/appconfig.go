// Package appconfig serves the single site-wide configuration record. Reads
// go through the cache with a long TTL since the record changes rarely;
// writes invalidate immediately.
package appconfig

import (
	"context"
	"fmt"

	"github.com/goldflix/goldflix/internal/kv"
	"github.com/goldflix/goldflix/internal/server/cache"
	"github.com/goldflix/goldflix/internal/server/models"
)

// PrefixConfig is the store key of the configuration record.
const PrefixConfig = "config"

const cacheKey = "config"

type Service struct {
	store kv.Store
	cache *cache.Cache
}

func NewService(store kv.Store, c *cache.Cache) *Service {
	return &Service{store: store, cache: c}
}

// Get returns the current configuration; a missing record yields the
// built-in defaults rather than an error.
func (s *Service) Get(ctx context.Context) (*models.AppConfig, error) {
	if v, ok := s.cache.Get(cache.Config, cacheKey); ok {
		return v.(*models.AppConfig), nil
	}

	cfg := &models.AppConfig{}
	err := kv.GetJSON(ctx, s.store, kv.K(PrefixConfig), cfg)
	if kv.IsNotFound(err) {
		cfg = &models.AppConfig{
			Announcement:     "Welcome to Gold Flix!",
			ShowAnnouncement: true,
		}
	} else if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	s.cache.Put(cache.Config, cacheKey, cfg)
	return cfg, nil
}

// Set replaces the configuration record and drops the cached copy.
func (s *Service) Set(ctx context.Context, cfg *models.AppConfig) error {
	if err := kv.PutJSON(ctx, s.store, kv.K(PrefixConfig), cfg); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	s.cache.InvalidateClass(cache.Config)
	return nil
}
