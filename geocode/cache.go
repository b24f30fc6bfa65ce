package geocode

import (
	"context"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Cache memoizes postal codes per normalized address. Concurrent lookups of
// one address share a single upstream call. Failures are not cached.
type Cache struct {
	next   Geocoder
	mu     sync.RWMutex
	codes  map[string]string
	flight singleflight.Group
}

// NewCache wraps next.
func NewCache(next Geocoder) *Cache {
	return &Cache{next: next, codes: make(map[string]string)}
}

// PostalCode returns the cached code or asks the wrapped Geocoder.
func (c *Cache) PostalCode(ctx context.Context, address string) (string, error) {
	key := strings.ToLower(strings.Join(strings.Fields(address), " "))
	c.mu.RLock()
	code, ok := c.codes[key]
	c.mu.RUnlock()
	if ok {
		return code, nil
	}
	v, err, _ := c.flight.Do(key, func() (interface{}, error) {
		code, err := c.next.PostalCode(ctx, address)
		if err != nil {
			return "", err
		}
		c.mu.Lock()
		c.codes[key] = code
		c.mu.Unlock()
		return code, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Len returns the number of cached addresses.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.codes)
}

var _ Geocoder = (*Cache)(nil)
