// Package cache provides lookup caches keyed by search term so repeated
// terms across chunks and workers skip the browser entirely.
package cache

import (
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/JakeFAU/rating-enricher/internal/enrich"
)

// Backend names accepted by New.
const (
	BackendNone   = "none"
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Options selects and sizes a cache backend.
type Options struct {
	Backend   string
	Size      int
	RedisAddr string
	TTL       time.Duration
	// Namespace prefixes redis keys, typically the site name.
	Namespace string
}

// New builds the configured cache. It returns nil for BackendNone; the
// executor treats a nil cache as disabled. The returned close func is never nil.
func New(opts Options, logger *zap.Logger) (enrich.Cache, func() error, error) {
	noop := func() error { return nil }
	switch strings.ToLower(opts.Backend) {
	case "", BackendNone:
		return nil, noop, nil
	case BackendMemory:
		c, err := NewLRU(opts.Size)
		if err != nil {
			return nil, noop, err
		}
		return c, noop, nil
	case BackendRedis:
		if opts.RedisAddr == "" {
			return nil, noop, fmt.Errorf("cache: redis backend requires an address")
		}
		client := redis.NewClient(&redis.Options{Addr: opts.RedisAddr})
		c := NewRedis(client, opts.Namespace, opts.TTL, logger)
		return c, client.Close, nil
	default:
		return nil, noop, fmt.Errorf("cache: unknown backend %q", opts.Backend)
	}
}

func normalize(term string) string {
	return strings.ToLower(strings.Join(strings.Fields(term), " "))
}
