package identify

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/Veraticus/collectorstream/internal/model"
)

// DefaultCacheTTL keeps results long enough to cover a retake-and-resubmit.
const DefaultCacheTTL = 30 * time.Minute

// Cache remembers confident results so identical images skip the network.
// A nil Cache is valid and never hits.
type Cache struct {
	store *cache.Cache
}

// NewCache creates a cache with the given TTL.
func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{store: cache.New(ttl, ttl*2)}
}

// CacheKey hashes the request images and sport hint.
func CacheKey(req model.IdentificationRequest) string {
	h := sha256.New()
	h.Write(req.Front)
	h.Write([]byte{0})
	h.Write(req.Back)
	h.Write([]byte{0})
	if hint, ok := req.SportHint.Get(); ok {
		h.Write([]byte(hint))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns a copy of a cached result.
func (c *Cache) Get(req model.IdentificationRequest) (model.IdentificationResult, bool) {
	if c == nil {
		return model.IdentificationResult{}, false
	}
	v, found := c.store.Get(CacheKey(req))
	if !found {
		return model.IdentificationResult{}, false
	}
	result, ok := v.(model.IdentificationResult)
	if !ok || result.Chosen == nil {
		return model.IdentificationResult{}, false
	}
	return cloneResult(result), true
}

// Set stores a result that has a chosen attempt.
func (c *Cache) Set(req model.IdentificationRequest, result model.IdentificationResult) {
	if c == nil || result.Chosen == nil {
		return
	}
	c.store.Set(CacheKey(req), cloneResult(result), cache.DefaultExpiration)
}

// Len returns the number of cached results.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	return c.store.ItemCount()
}

// Flush empties the cache.
func (c *Cache) Flush() {
	if c != nil {
		c.store.Flush()
	}
}

// cloneResult copies the attempt log so Chosen points into the copy.
func cloneResult(r model.IdentificationResult) model.IdentificationResult {
	out := r
	out.Attempts = make([]model.ProviderAttempt, len(r.Attempts))
	copy(out.Attempts, r.Attempts)
	out.Chosen = nil
	for i := range r.Attempts {
		if r.Chosen == &r.Attempts[i] {
			out.Chosen = &out.Attempts[i]
		}
	}
	if out.Chosen == nil && r.Chosen != nil {
		chosen := *r.Chosen
		out.Chosen = &chosen
	}
	out.LowConfidenceFields = append([]model.Field(nil), r.LowConfidenceFields...)
	return out
}
