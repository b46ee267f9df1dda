package main

import (
	"time"

	"github.com/mattermost/mattermost/server/public/pluginapi"
	"github.com/patrickmn/go-cache"
)

const (
	// BroadcastThrottleTTL is how long a delivered broadcast suppresses a repeat of itself
	BroadcastThrottleTTL = 30 * time.Minute

	// BroadcastThrottleCleanupInterval is how often expired entries are purged
	BroadcastThrottleCleanupInterval = 5 * time.Minute
)

// Throttle suppresses repeated guardian broadcasts for the same incident and kind.
type Throttle struct {
	api  *pluginapi.Client
	seen *cache.Cache
}

// NewThrottle creates a throttle whose entries live for ttl.
func NewThrottle(api *pluginapi.Client, ttl time.Duration) *Throttle {
	t := &Throttle{
		api:  api,
		seen: cache.New(ttl, BroadcastThrottleCleanupInterval),
	}

	t.seen.OnEvicted(func(key string, _ interface{}) {
		t.api.Log.Debug("Broadcast throttle entry released", "key", key)
	})

	return t
}

// Allow atomically checks whether key was broadcast within the TTL and marks it
// as broadcast if not. Returns true if the broadcast should go out.
func (t *Throttle) Allow(key string) bool {
	return t.seen.Add(key, struct{}{}, cache.DefaultExpiration) == nil
}

// Forget releases key so the next broadcast for it goes out. Used when a
// delivery failed entirely.
func (t *Throttle) Forget(key string) {
	t.seen.Delete(key)
}

// Len returns the number of tracked broadcasts, expired entries included until
// the next cleanup.
func (t *Throttle) Len() int {
	return t.seen.ItemCount()
}

// Stop drops every tracked entry.
func (t *Throttle) Stop() {
	t.seen.Flush()
}
