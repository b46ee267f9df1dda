// Package location tracks the user's current position from a continuous watch.
package location

import (
	"fmt"
	"sync"

	"github.com/mattermost/mattermost-plugin-guardian/server/intel"
)

// Logger is the subset of the plugin log service used by this package.
type Logger interface {
	Debug(message string, keyValuePairs ...interface{})
	Warn(message string, keyValuePairs ...interface{})
}

// Tracker owns the most recent fix. Fixes replace the stored location; errors
// are logged and leave both the location and the watch untouched.
type Tracker struct {
	mu         sync.Mutex
	watcher    Watcher
	watch      Watch
	generation uint64
	current    *intel.Location
	lastError  string

	logger Logger
}

// NewTracker creates a tracker over watcher. The watch is not started.
func NewTracker(watcher Watcher, logger Logger) *Tracker {
	return &Tracker{
		watcher: watcher,
		logger:  logger,
	}
}

// Start begins watching and calls onUpdate with every accepted fix. Calling
// Start while already watching is a no-op.
func (t *Tracker) Start(onUpdate func(intel.Location)) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.watch != nil {
		return nil
	}

	t.generation++
	generation := t.generation

	watch, err := t.watcher.Watch(
		func(loc intel.Location) { t.handleFix(generation, loc, onUpdate) },
		func(err error) { t.handleError(generation, err) },
	)
	if err != nil {
		return fmt.Errorf("failed to start position watch: %w", err)
	}

	t.watch = watch
	t.logger.Debug("Position watch started")
	return nil
}

// Stop tears the watch down. The last known location is kept.
func (t *Tracker) Stop() {
	t.mu.Lock()
	watch := t.watch
	t.watch = nil
	t.generation++
	t.mu.Unlock()

	if watch != nil {
		watch.Stop()
		t.logger.Debug("Position watch stopped")
	}
}

// Watching reports whether a watch is running.
func (t *Tracker) Watching() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.watch != nil
}

// Current returns a copy of the last fix, or nil if none was received.
func (t *Tracker) Current() *intel.Location {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.current == nil {
		return nil
	}
	loc := *t.current
	if loc.Accuracy != nil {
		loc.Accuracy = intel.Float(*loc.Accuracy)
	}
	return &loc
}

// LastError returns the message of the most recent watch error.
func (t *Tracker) LastError() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.lastError
}

func (t *Tracker) handleFix(generation uint64, loc intel.Location, onUpdate func(intel.Location)) {
	t.mu.Lock()
	if generation != t.generation {
		t.mu.Unlock()
		return
	}
	fix := loc
	if loc.Accuracy != nil {
		fix.Accuracy = intel.Float(*loc.Accuracy)
	}
	t.current = &fix
	t.lastError = ""
	t.mu.Unlock()

	if onUpdate != nil {
		onUpdate(loc)
	}
}

func (t *Tracker) handleError(generation uint64, err error) {
	t.mu.Lock()
	if generation != t.generation {
		t.mu.Unlock()
		return
	}
	t.lastError = err.Error()
	t.mu.Unlock()

	t.logger.Warn("Position watch reported an error", "error", err.Error())
}
