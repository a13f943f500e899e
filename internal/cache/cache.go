// Package cache stores literature lookups (search results, abstracts,
// robots.txt bodies) so repeated suggestions do not re-query remote services.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/ppiankov/substantiate/internal/model"
)

// Cache defines the interface for caching
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}

const keyPrefix = "substantiate:v1:"

// Key builds a namespaced cache key; parts are hashed so any string is safe
// as a file name or redis key
func Key(kind string, parts ...string) string {
	hash := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return keyPrefix + kind + ":" + hex.EncodeToString(hash[:])
}

// New builds the cache described by cfg. A disabled cache returns a Nop.
// Redis replaces the disk layer when an address is configured.
func New(cfg model.CacheConfig) Cache {
	if !cfg.Enabled {
		return Nop{}
	}
	memory := NewMemoryCache(cfg.MemoryTTL, 10*time.Minute)
	if cfg.RedisAddr != "" {
		return NewLayeredCache(memory, NewRedisCache(NewRedisClient(cfg.RedisAddr), cfg.DiskTTL))
	}
	return NewLayeredCache(memory, NewDiskCache(cfg.Dir, cfg.DiskTTL))
}

// Nop never stores anything
type Nop struct{}

// Get always misses
func (Nop) Get(context.Context, string) ([]byte, bool) {
	return nil, false
}

func (Nop) Set(context.Context, string, []byte, time.Duration) error {
	return nil
}

func (Nop) Delete(context.Context, string) error {
	return nil
}

func (Nop) Clear(context.Context) error {
	return nil
}
