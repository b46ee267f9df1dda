// Package timer provides the cancellable scheduled-task abstraction used for
// the SOS grace period and the scan delay.
package timer

import (
	"sort"
	"sync"
	"time"
)

// Handle is a scheduled callback that can be cancelled.
type Handle interface {
	// Stop cancels the callback. It returns false if the callback already ran
	// or was already stopped.
	Stop() bool
}

// Scheduler schedules one-shot callbacks.
type Scheduler interface {
	// AfterFunc runs f once after d has elapsed, on its own goroutine.
	AfterFunc(d time.Duration, f func()) Handle

	// Now returns the scheduler's notion of the current time.
	Now() time.Time
}

// Real is the production scheduler backed by time.AfterFunc.
type Real struct{}

// AfterFunc implements Scheduler.
func (Real) AfterFunc(d time.Duration, f func()) Handle {
	return time.AfterFunc(d, f)
}

// Now implements Scheduler.
func (Real) Now() time.Time {
	return time.Now()
}

// Manual is a scheduler driven by Advance. Callbacks run synchronously on the
// goroutine that calls Advance, in deadline order.
type Manual struct {
	mu      sync.Mutex
	now     time.Time
	nextSeq int
	pending []*manualTask
}

type manualTask struct {
	owner    *Manual
	deadline time.Time
	seq      int
	fn       func()
	done     bool
}

// NewManual creates a manual scheduler starting at start.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

// AfterFunc implements Scheduler.
func (m *Manual) AfterFunc(d time.Duration, f func()) Handle {
	m.mu.Lock()
	defer m.mu.Unlock()

	task := &manualTask{owner: m, deadline: m.now.Add(d), seq: m.nextSeq, fn: f}
	m.nextSeq++
	m.pending = append(m.pending, task)
	return task
}

// Now implements Scheduler.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.now
}

// Advance moves time forward by d and runs every callback whose deadline has
// been reached. Callbacks scheduled while advancing run too if they fall due.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()

	for {
		m.mu.Lock()
		task := m.nextDue(target)
		if task == nil {
			m.now = target
			m.mu.Unlock()
			return
		}
		task.done = true
		m.now = task.deadline
		m.mu.Unlock()

		task.fn()
	}
}

// Pending returns the number of scheduled callbacks that have not run or been stopped.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for _, task := range m.pending {
		if !task.done {
			count++
		}
	}
	return count
}

// nextDue pops the earliest live task due at or before target. Caller holds mu.
func (m *Manual) nextDue(target time.Time) *manualTask {
	live := m.pending[:0]
	for _, task := range m.pending {
		if !task.done {
			live = append(live, task)
		}
	}
	m.pending = live

	sort.SliceStable(m.pending, func(i, j int) bool {
		if m.pending[i].deadline.Equal(m.pending[j].deadline) {
			return m.pending[i].seq < m.pending[j].seq
		}
		return m.pending[i].deadline.Before(m.pending[j].deadline)
	})

	if len(m.pending) == 0 || m.pending[0].deadline.After(target) {
		return nil
	}
	return m.pending[0]
}

// Stop implements Handle.
func (t *manualTask) Stop() bool {
	t.owner.mu.Lock()
	defer t.owner.mu.Unlock()

	if t.done {
		return false
	}
	t.done = true
	return true
}
