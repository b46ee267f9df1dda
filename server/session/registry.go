package session

import (
	"fmt"
	"sync"
)

// Factory builds the controller for a user.
type Factory func(userID string) (*Controller, error)

// Registry holds the live session controller of every user that has
// contacted the plugin. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Controller
	factory  Factory
	onCount  func(int)
}

// NewRegistry creates an empty registry. onCount, if set, is called with the
// new session count after every add or remove.
func NewRegistry(factory Factory, onCount func(int)) *Registry {
	return &Registry{
		sessions: make(map[string]*Controller),
		factory:  factory,
		onCount:  onCount,
	}
}

// Get returns the session of userID, or nil.
func (r *Registry) Get(userID string) *Controller {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.sessions[userID]
}

// GetOrCreate returns the session of userID, creating and restoring it on
// first contact. A restore failure is returned alongside the usable,
// unregistered session.
func (r *Registry) GetOrCreate(userID string) (*Controller, error) {
	if userID == "" {
		return nil, fmt.Errorf("user ID cannot be empty")
	}

	if c := r.Get(userID); c != nil {
		return c, nil
	}

	r.mu.Lock()
	if c, exists := r.sessions[userID]; exists {
		r.mu.Unlock()
		return c, nil
	}

	c, err := r.factory(userID)
	if err != nil {
		r.mu.Unlock()
		return nil, fmt.Errorf("failed to create session for %s: %w", userID, err)
	}
	r.sessions[userID] = c
	count := len(r.sessions)
	r.mu.Unlock()

	r.notify(count)

	if err := c.Restore(); err != nil {
		return c, err
	}
	return c, nil
}

// Remove closes and forgets the session of userID.
// Returns an error if the session doesn't exist.
func (r *Registry) Remove(userID string) error {
	r.mu.Lock()
	c, exists := r.sessions[userID]
	if !exists {
		r.mu.Unlock()
		return fmt.Errorf("session for %s not found", userID)
	}
	delete(r.sessions, userID)
	count := len(r.sessions)
	r.mu.Unlock()

	// Close after releasing the lock to avoid blocking other registry operations
	c.Close()
	r.notify(count)
	return nil
}

// List returns all live sessions.
func (r *Registry) List() []*Controller {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessions := make([]*Controller, 0, len(r.sessions))
	for _, c := range r.sessions {
		sessions = append(sessions, c)
	}
	return sessions
}

// CloseAll closes and forgets every session.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	sessions := make([]*Controller, 0, len(r.sessions))
	for id, c := range r.sessions {
		sessions = append(sessions, c)
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	for _, c := range sessions {
		c.Close()
	}
	r.notify(0)
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.sessions)
}

func (r *Registry) notify(count int) {
	if r.onCount != nil {
		r.onCount(count)
	}
}
