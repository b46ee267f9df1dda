package location

import (
	"errors"
	"sync"

	"github.com/mattermost/mattermost-plugin-guardian/server/intel"
)

// ErrWatchActive is returned when a second watch is requested on a PushWatcher.
var ErrWatchActive = errors.New("position watch already active")

// Watcher is the geolocation capability: a continuous position watch.
type Watcher interface {
	// Watch starts delivering fixes to onFix and failures to onError until the
	// returned Watch is stopped. Errors do not end the watch.
	Watch(onFix func(intel.Location), onError func(error)) (Watch, error)
}

// Watch is a running position watch.
type Watch interface {
	Stop()
}

// PushWatcher is a Watcher fed by the client: fixes and errors arrive over the
// HTTP API and are forwarded to the active watch, if any.
type PushWatcher struct {
	mu      sync.Mutex
	active  *pushWatch
	onFix   func(intel.Location)
	onError func(error)
}

// NewPushWatcher creates a watcher with no active watch.
func NewPushWatcher() *PushWatcher {
	return &PushWatcher{}
}

type pushWatch struct {
	owner *PushWatcher
}

// Watch implements Watcher.
func (w *PushWatcher) Watch(onFix func(intel.Location), onError func(error)) (Watch, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.active != nil {
		return nil, ErrWatchActive
	}

	w.active = &pushWatch{owner: w}
	w.onFix = onFix
	w.onError = onError
	return w.active, nil
}

// Push delivers a fix. It reports false when no watch is active.
func (w *PushWatcher) Push(loc intel.Location) bool {
	w.mu.Lock()
	onFix := w.onFix
	w.mu.Unlock()

	if onFix == nil {
		return false
	}
	onFix(loc)
	return true
}

// PushError delivers a watch error. It reports false when no watch is active.
func (w *PushWatcher) PushError(err error) bool {
	w.mu.Lock()
	onError := w.onError
	w.mu.Unlock()

	if onError == nil {
		return false
	}
	onError(err)
	return true
}

// Watching reports whether a watch is active.
func (w *PushWatcher) Watching() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.active != nil
}

func (p *pushWatch) Stop() {
	w := p.owner
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.active != p {
		return
	}
	w.active = nil
	w.onFix = nil
	w.onError = nil
}
