package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/garyjia/repair-center/internal/domain/entity"
	"github.com/garyjia/repair-center/internal/domain/event"
)

const anchorLayout = "2006-01-02"

// SummaryKey identifies one cached summary. Anchor is the UTC reference day.
type SummaryKey struct {
	Scope  entity.Scope
	Period entity.Period
	Anchor string
}

// NewSummaryKey normalizes a reference time to its UTC day
func NewSummaryKey(scope entity.Scope, period entity.Period, at time.Time) SummaryKey {
	return SummaryKey{Scope: scope, Period: period, Anchor: at.UTC().Format(anchorLayout)}
}

// At returns the reference day as a UTC time
func (k SummaryKey) At() time.Time {
	t, err := time.Parse(anchorLayout, k.Anchor)
	if err != nil {
		return time.Time{}
	}
	return t
}

type cachedSummary struct {
	summary  *entity.Summary
	storedAt time.Time
	stale    bool
	lastUsed time.Time
}

// SummaryCache keeps recently requested ledger summaries.
// Entries expire after ttl, and ledger events mark every entry stale.
type SummaryCache struct {
	mu      sync.Mutex
	entries map[SummaryKey]*cachedSummary
	ttl     time.Duration
	maxKeys int
	now     func() time.Time
}

// NewSummaryCache creates a cache. maxKeys <= 0 means unbounded.
func NewSummaryCache(ttl time.Duration, maxKeys int) *SummaryCache {
	return &SummaryCache{
		entries: make(map[SummaryKey]*cachedSummary),
		ttl:     ttl,
		maxKeys: maxKeys,
		now:     time.Now,
	}
}

// Get returns a fresh summary for key
func (c *SummaryCache) Get(key SummaryKey) (*entity.Summary, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	now := c.now()
	e.lastUsed = now
	if e.stale || now.Sub(e.storedAt) > c.ttl {
		return nil, false
	}
	copied := *e.summary
	return &copied, true
}

// Put stores a summary, evicting the least recently used key when full
func (c *SummaryCache) Put(key SummaryKey, s *entity.Summary) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if _, exists := c.entries[key]; !exists && c.maxKeys > 0 && len(c.entries) >= c.maxKeys {
		c.evictLocked()
	}
	copied := *s
	c.entries[key] = &cachedSummary{summary: &copied, storedAt: now, lastUsed: now}
}

func (c *SummaryCache) evictLocked() {
	var oldest SummaryKey
	var oldestAt time.Time
	first := true
	for k, e := range c.entries {
		if first || e.lastUsed.Before(oldestAt) {
			oldest, oldestAt, first = k, e.lastUsed, false
		}
	}
	delete(c.entries, oldest)
}

// Invalidate marks every entry stale. Keys are kept so the refresher recomputes them.
func (c *SummaryCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.entries {
		e.stale = true
	}
}

// Keys lists the cached keys in a stable order
func (c *SummaryCache) Keys() []SummaryKey {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]SummaryKey, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Anchor != keys[j].Anchor {
			return keys[i].Anchor < keys[j].Anchor
		}
		if keys[i].Scope != keys[j].Scope {
			return keys[i].Scope < keys[j].Scope
		}
		return keys[i].Period < keys[j].Period
	})
	return keys
}

// Len returns the number of cached keys
func (c *SummaryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// HandleEvent is a dispatcher handler that invalidates on ledger changes
func (c *SummaryCache) HandleEvent(ctx context.Context, evt *event.Event) error {
	if evt.Type.IsLedgerChange() {
		c.Invalidate()
	}
	return nil
}
