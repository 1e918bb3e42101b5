package httpserver

import (
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/blackmichael/skystats/internal/domain"
)

type cacheEntry struct {
	report  *domain.Report
	expires time.Time
}

// reportCache keeps recent reports for a fixed time. A nil *reportCache is a
// disabled cache.
type reportCache struct {
	entries *lru.Cache[string, cacheEntry]
	ttl     time.Duration
	now     func() time.Time
}

func newReportCache(size int, ttl time.Duration) *reportCache {
	if size <= 0 || ttl <= 0 {
		return nil
	}
	entries, err := lru.New[string, cacheEntry](size)
	if err != nil {
		return nil
	}
	return &reportCache{entries: entries, ttl: ttl, now: time.Now}
}

func (c *reportCache) get(actor string) (*domain.Report, bool) {
	if c == nil {
		return nil, false
	}
	key := cacheKey(actor)
	entry, ok := c.entries.Get(key)
	if !ok {
		return nil, false
	}
	if !c.now().Before(entry.expires) {
		c.entries.Remove(key)
		return nil, false
	}
	return entry.report, true
}

func (c *reportCache) add(actor string, r *domain.Report) {
	if c == nil {
		return
	}
	c.entries.Add(cacheKey(actor), cacheEntry{report: r, expires: c.now().Add(c.ttl)})
}

// cacheKey normalizes the spellings of a handle.
func cacheKey(actor string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(actor), "@"))
}
