package cache

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/JakeFAU/rating-enricher/internal/enrich"
)

// DefaultLRUSize is used when a non-positive size is requested.
const DefaultLRUSize = 1024

// LRU is a bounded in-process cache shared by every session of one worker.
type LRU struct {
	entries *lru.Cache[string, enrich.Result]
}

// NewLRU returns an LRU holding at most size results.
func NewLRU(size int) (*LRU, error) {
	if size <= 0 {
		size = DefaultLRUSize
	}
	entries, err := lru.New[string, enrich.Result](size)
	if err != nil {
		return nil, fmt.Errorf("cache: new lru: %w", err)
	}
	return &LRU{entries: entries}, nil
}

// Get implements enrich.Cache.
func (c *LRU) Get(_ context.Context, term string) (enrich.Result, bool, error) {
	res, ok := c.entries.Get(normalize(term))
	return res, ok, nil
}

// Put implements enrich.Cache.
func (c *LRU) Put(_ context.Context, term string, res enrich.Result) error {
	c.entries.Add(normalize(term), res)
	return nil
}

// Len reports the number of cached terms.
func (c *LRU) Len() int { return c.entries.Len() }
