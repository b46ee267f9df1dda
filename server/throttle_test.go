package main

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/mattermost/mattermost/server/public/plugin/plugintest"
	"github.com/mattermost/mattermost/server/public/pluginapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestThrottle(t *testing.T) {
	t.Run("first broadcast is allowed", func(t *testing.T) {
		api := plugintest.NewAPI(t)
		client := pluginapi.NewClient(api, &plugintest.Driver{})

		throttle := NewThrottle(client, BroadcastThrottleTTL)
		defer throttle.Stop()

		assert.True(t, throttle.Allow("incident-1:SOS"), "First broadcast should go out")
	})

	t.Run("repeated broadcast is suppressed", func(t *testing.T) {
		api := plugintest.NewAPI(t)
		client := pluginapi.NewClient(api, &plugintest.Driver{})

		throttle := NewThrottle(client, BroadcastThrottleTTL)
		defer throttle.Stop()

		assert.True(t, throttle.Allow("incident-1:SOS"))
		assert.False(t, throttle.Allow("incident-1:SOS"), "Second broadcast should be suppressed")
		assert.Equal(t, 1, throttle.Len())
	})

	t.Run("kinds and incidents are tracked separately", func(t *testing.T) {
		api := plugintest.NewAPI(t)
		client := pluginapi.NewClient(api, &plugintest.Driver{})

		throttle := NewThrottle(client, BroadcastThrottleTTL)
		defer throttle.Stop()

		assert.True(t, throttle.Allow("incident-1:SOS"))
		assert.True(t, throttle.Allow("incident-1:STAND_DOWN"))
		assert.True(t, throttle.Allow("incident-2:SOS"))

		assert.False(t, throttle.Allow("incident-1:SOS"))
		assert.False(t, throttle.Allow("incident-1:STAND_DOWN"))
		assert.False(t, throttle.Allow("incident-2:SOS"))
	})

	t.Run("entries expire after the TTL", func(t *testing.T) {
		api := plugintest.NewAPI(t)
		client := pluginapi.NewClient(api, &plugintest.Driver{})

		throttle := NewThrottle(client, 20*time.Millisecond)
		defer throttle.Stop()

		assert.True(t, throttle.Allow("incident-1:SOS"))
		time.Sleep(50 * time.Millisecond)
		assert.True(t, throttle.Allow("incident-1:SOS"), "Broadcast should go out again after expiry")
	})

	t.Run("forget releases the key", func(t *testing.T) {
		api := plugintest.NewAPI(t)
		api.On("LogDebug", "Broadcast throttle entry released", "key", "incident-1:SOS").Once()
		client := pluginapi.NewClient(api, &plugintest.Driver{})

		throttle := NewThrottle(client, BroadcastThrottleTTL)
		defer throttle.Stop()

		assert.True(t, throttle.Allow("incident-1:SOS"))
		throttle.Forget("incident-1:SOS")
		assert.True(t, throttle.Allow("incident-1:SOS"), "Broadcast should go out again after forget")
	})

	t.Run("stop drops every entry", func(t *testing.T) {
		api := plugintest.NewAPI(t)
		client := pluginapi.NewClient(api, &plugintest.Driver{})

		throttle := NewThrottle(client, BroadcastThrottleTTL)
		assert.True(t, throttle.Allow("incident-1:SOS"))
		assert.True(t, throttle.Allow("incident-2:SOS"))

		throttle.Stop()
		assert.Equal(t, 0, throttle.Len())
	})

	t.Run("concurrent access allows each key once", func(t *testing.T) {
		api := plugintest.NewAPI(t)
		api.On("LogDebug", mock.Anything, mock.Anything, mock.Anything).Maybe()
		client := pluginapi.NewClient(api, &plugintest.Driver{})

		throttle := NewThrottle(client, BroadcastThrottleTTL)
		defer throttle.Stop()

		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			allowed int
		)
		for g := 0; g < 4; g++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < 50; i++ {
					if throttle.Allow(fmt.Sprintf("incident-%d:SOS", i)) {
						mu.Lock()
						allowed++
						mu.Unlock()
					}
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 50, allowed)
	})
}
