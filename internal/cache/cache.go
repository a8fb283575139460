// Package cache memoizes full validation runs per comparison key. The
// cache is an explicit object with injected capacity, clock and data
// modification lookup so tests can drive staleness deterministically.
// Eviction is FIFO on insertion order, not LRU on access.
package cache

import (
	"fmt"
	"sync"
	"time"

	"nav-validation-service/internal/models"
	"nav-validation-service/pkg/logger"
)

// DefaultCapacity bounds the number of distinct comparison keys kept.
const DefaultCapacity = 50

// Clock supplies the current time, injectable for tests.
type Clock func() time.Time

// ModTimeFunc returns the latest modification time of the underlying
// data for one fund/source/date slice. A nil func disables staleness
// checks.
type ModTimeFunc func(fund string, d models.SourceDescriptor) (time.Time, error)

// Key builds the cache key for one comparison request.
func Key(fund string, a, b models.SourceDescriptor) string {
	return fmt.Sprintf("%s|%s|%s|%s|%s", fund, a.Source, b.Source, a.DateString(), b.DateString())
}

type entry struct {
	fund     string
	sourceA  models.SourceDescriptor
	sourceB  models.SourceDescriptor
	statuses []*models.ValidationStatus
	storedAt time.Time
}

// ResultCache is the one piece of shared mutable state in the
// validation core. All access is serialized by a single mutex; the
// check-then-act sequences in Get and Set hold it for their whole span.
type ResultCache struct {
	mu       sync.Mutex
	capacity int
	clock    Clock
	modTime  ModTimeFunc
	entries  map[string]*entry
	order    []string
	log      logger.Logger
}

// New creates a result cache. A non-positive capacity falls back to
// DefaultCapacity and a nil clock to the wall clock.
func New(capacity int, clock Clock, modTime ModTimeFunc) *ResultCache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if clock == nil {
		clock = time.Now
	}
	return &ResultCache{
		capacity: capacity,
		clock:    clock,
		modTime:  modTime,
		entries:  make(map[string]*entry),
		log:      logger.GetGlobalLogger().WithComponent("result_cache"),
	}
}

// Get returns the cached statuses for a comparison, or false on a miss.
// An entry whose underlying data changed since it was stored counts as
// a miss and is removed.
func (c *ResultCache) Get(fund string, a, b models.SourceDescriptor) ([]*models.ValidationStatus, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := Key(fund, a, b)
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.isStale(e) {
		c.remove(key)
		c.log.WithField("key", key).Debug("Evicted stale cache entry")
		return nil, false
	}
	return e.statuses, true
}

// Set stores a validation result, evicting the oldest entry when the
// cache is full and the key is new.
func (c *ResultCache) Set(fund string, a, b models.SourceDescriptor, statuses []*models.ValidationStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := Key(fund, a, b)
	if _, exists := c.entries[key]; !exists {
		if len(c.order) >= c.capacity {
			oldest := c.order[0]
			c.remove(oldest)
			c.log.WithField("key", oldest).Debug("Evicted oldest cache entry at capacity")
		}
		c.order = append(c.order, key)
	}
	c.entries[key] = &entry{
		fund:     fund,
		sourceA:  a,
		sourceB:  b,
		statuses: statuses,
		storedAt: c.clock(),
	}
}

// Invalidate removes every entry matching any given criterion: the
// fund name, a source appearing on either side, or a date appearing on
// either side. Empty strings are wildcards; all empty clears the whole
// cache. Returns the number of removed entries.
func (c *ResultCache) Invalidate(fund, source, date string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if fund == "" && source == "" && date == "" {
		n := len(c.entries)
		c.entries = make(map[string]*entry)
		c.order = nil
		return n
	}

	var toRemove []string
	for key, e := range c.entries {
		switch {
		case fund != "" && e.fund == fund:
			toRemove = append(toRemove, key)
		case source != "" && (e.sourceA.Source == source || e.sourceB.Source == source):
			toRemove = append(toRemove, key)
		case date != "" && (e.sourceA.DateString() == date || e.sourceB.DateString() == date):
			toRemove = append(toRemove, key)
		}
	}
	for _, key := range toRemove {
		c.remove(key)
	}
	return len(toRemove)
}

// Clear drops every entry
func (c *ResultCache) Clear() {
	c.Invalidate("", "", "")
}

// Len returns the number of cached entries
func (c *ResultCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// isStale checks the entry against the latest data modification times
// of both sides. Lookup failures count as stale so the caller
// recomputes rather than serving possibly outdated results.
func (c *ResultCache) isStale(e *entry) bool {
	if c.modTime == nil {
		return false
	}
	for _, d := range []models.SourceDescriptor{e.sourceA, e.sourceB} {
		modified, err := c.modTime(e.fund, d)
		if err != nil {
			return true
		}
		if modified.After(e.storedAt) {
			return true
		}
	}
	return false
}

func (c *ResultCache) remove(key string) {
	delete(c.entries, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}
