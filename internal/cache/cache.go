// Package cache is the in-process result cache for read-mostly
// identity lookups. Entries carry per-class TTLs; an expired entry
// reads as absent. Mutating a resource must invalidate both its direct
// key and every composite key that embeds it — stale identity after a
// mutation is worse than a cache miss.
package cache

import (
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// TTLs per resource class. Session-init snapshots change whenever the
// index or decisions move, billing data changes on every call, and
// workspace/project metadata is near-static.
const (
	SessionInitTTL   = 2 * time.Minute
	MetadataTTL      = 10 * time.Minute
	CreditBalanceTTL = 30 * time.Second
)

// Cache is a namespaced key→value store with per-entry expiry.
type Cache struct {
	store *gocache.Cache
}

// New creates an empty cache. Expired entries are lazily evicted on
// read and swept every few minutes.
func New() *Cache {
	return &Cache{store: gocache.New(gocache.NoExpiration, 5*time.Minute)}
}

// WorkspaceKey is the direct cache key for a workspace.
func WorkspaceKey(id string) string { return "workspace:" + id }

// ProjectKey is the direct cache key for a project.
func ProjectKey(id string) string { return "project:" + id }

// SessionInitKey is the composite key for a session-init snapshot.
// projectID may be "*" when the session has no project.
func SessionInitKey(workspaceID, projectID string) string {
	if projectID == "" {
		projectID = "*"
	}
	return fmt.Sprintf("session_init:%s:%s", workspaceID, projectID)
}

// CreditBalanceKey is the cache key for billing/plan data.
func CreditBalanceKey() string { return "credit_balance" }

// Get returns the value stored under key, or absent when the key was
// never set or has expired.
func Get[T any](c *Cache, key string) (T, bool) {
	var zero T
	v, ok := c.store.Get(key)
	if !ok {
		return zero, false
	}
	typed, ok := v.(T)
	if !ok {
		return zero, false
	}
	return typed, true
}

// Set stores value under key, overwriting any existing entry.
func (c *Cache) Set(key string, value any, ttl time.Duration) {
	c.store.Set(key, value, ttl)
}

// Delete removes key. Deleting an absent key is a no-op.
func (c *Cache) Delete(key string) {
	c.store.Delete(key)
}

// InvalidateWorkspace drops the workspace's direct key and every
// session-init snapshot composed from it.
func (c *Cache) InvalidateWorkspace(id string) {
	c.Delete(WorkspaceKey(id))
	for key := range c.store.Items() {
		if len(key) > 13 && key[:13] == "session_init:" && containsSegment(key, id) {
			c.Delete(key)
		}
	}
}

// InvalidateProject drops the project's direct key and the session-init
// snapshots that embed it (both the concrete key and the workspace's
// wildcard key, which may have been built before the project existed).
func (c *Cache) InvalidateProject(workspaceID, projectID string) {
	c.Delete(ProjectKey(projectID))
	c.Delete(SessionInitKey(workspaceID, projectID))
	c.Delete(SessionInitKey(workspaceID, "*"))
}

// containsSegment reports whether a colon-separated key contains id as
// one of its segments. Plain substring matching would let one uuid
// shadow another's prefix.
func containsSegment(key, id string) bool {
	start := 0
	for i := 0; i <= len(key); i++ {
		if i == len(key) || key[i] == ':' {
			if key[start:i] == id {
				return true
			}
			start = i + 1
		}
	}
	return false
}
