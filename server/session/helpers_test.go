package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mattermost/mattermost-plugin-guardian/server/alert"
	"github.com/mattermost/mattermost-plugin-guardian/server/intel"
	"github.com/mattermost/mattermost-plugin-guardian/server/store"
	"github.com/mattermost/mattermost-plugin-guardian/server/timer"
)

type testLogger struct {
	mu     sync.Mutex
	errors []string
}

func (l *testLogger) Debug(string, ...interface{}) {}
func (l *testLogger) Info(string, ...interface{})  {}
func (l *testLogger) Warn(string, ...interface{})  {}
func (l *testLogger) Error(message string, _ ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, message)
}

type memIdentities struct {
	mu      sync.Mutex
	records map[string]store.Identity
	saveErr error
	loadErr error
	deletes int
}

func newMemIdentities() *memIdentities {
	return &memIdentities{records: make(map[string]store.Identity)}
}

func (m *memIdentities) Save(userID string, identity store.Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.records[userID] = identity
	return nil
}

func (m *memIdentities) Load(userID string) (*store.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	identity, ok := m.records[userID]
	if !ok {
		return nil, nil
	}
	return &identity, nil
}

func (m *memIdentities) Delete(userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes++
	delete(m.records, userID)
	return nil
}

type memIncidents struct {
	mu    sync.Mutex
	saves []store.Incident
}

func (m *memIncidents) Save(incident store.Incident) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves = append(m.saves, incident)
	return nil
}

func (m *memIncidents) last() store.Incident {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves[len(m.saves)-1]
}

type advisorCall struct {
	situation string
	loc       *intel.Location
}

// fakeAdvisor returns report, or the fallback when report is nil.
type fakeAdvisor struct {
	mu     sync.Mutex
	calls  []advisorCall
	report *intel.Report
}

func (a *fakeAdvisor) GetTacticalAdvice(_ context.Context, situation string, loc *intel.Location) *intel.Report {
	a.mu.Lock()
	a.calls = append(a.calls, advisorCall{situation: situation, loc: loc})
	report := a.report
	a.mu.Unlock()

	if report == nil {
		return intel.FallbackReport(loc)
	}
	return report.Clone()
}

func (a *fakeAdvisor) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.calls)
}

func (a *fakeAdvisor) lastCall() advisorCall {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls[len(a.calls)-1]
}

type fakeCapture struct {
	mu       sync.Mutex
	starts   int
	stops    int
	active   bool
	startErr error
}

func (f *fakeCapture) Start(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	if f.startErr != nil {
		return f.startErr
	}
	f.active = true
	return nil
}

func (f *fakeCapture) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	f.active = false
}

func (f *fakeCapture) Active() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

func (f *fakeCapture) Recording() bool { return f.Active() }

func (f *fakeCapture) StreamID() string {
	if f.Active() {
		return "stream-1"
	}
	return ""
}

func (f *fakeCapture) LiveTracks() int {
	if f.Active() {
		return 2
	}
	return 0
}

func (f *fakeCapture) startCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts
}

type fakeBroadcaster struct {
	mu      sync.Mutex
	alerts  []alert.Alert
	notices []alert.Alert
	err     error
}

func (b *fakeBroadcaster) Broadcast(_ context.Context, a alert.Alert) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.alerts = append(b.alerts, a)
	if b.err != nil {
		return "", b.err
	}
	return "post-" + string(a.Kind), nil
}

func (b *fakeBroadcaster) NotifyUser(_ context.Context, a alert.Alert) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.notices = append(b.notices, a)
	return b.err
}

func (b *fakeBroadcaster) userNotices() []alert.Alert {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]alert.Alert(nil), b.notices...)
}

func (b *fakeBroadcaster) kinds() []alert.Kind {
	b.mu.Lock()
	defer b.mu.Unlock()
	kinds := make([]alert.Kind, 0, len(b.alerts))
	for _, a := range b.alerts {
		kinds = append(kinds, a.Kind)
	}
	return kinds
}

type recordingRecorder struct {
	mu          sync.Mutex
	transitions []string
	captures    []bool
	broadcasts  int
	locErrors   int
}

func (r *recordingRecorder) ObserveTransition(from, to string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions = append(r.transitions, from+"->"+to)
}

func (r *recordingRecorder) ObserveCapture(started bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.captures = append(r.captures, started)
}

func (r *recordingRecorder) ObserveBroadcast(string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.broadcasts++
}

func (r *recordingRecorder) ObserveLocationError() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.locErrors++
}

type harness struct {
	c           *Controller
	clock       *timer.Manual
	identities  *memIdentities
	incidents   *memIncidents
	advisor     *fakeAdvisor
	capture     *fakeCapture
	broadcaster *fakeBroadcaster
	recorder    *recordingRecorder
	logger      *testLogger
	dispatch    func(func())

	mu        sync.Mutex
	published []Snapshot
}

var testStart = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func syncDispatch(f func()) {
	f()
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWith(t, syncDispatch)
}

func newHarnessWith(t *testing.T, dispatch func(func())) *harness {
	t.Helper()

	h := &harness{
		dispatch:    dispatch,
		clock:       timer.NewManual(testStart),
		identities:  newMemIdentities(),
		incidents:   &memIncidents{},
		advisor:     &fakeAdvisor{},
		capture:     &fakeCapture{},
		broadcaster: &fakeBroadcaster{},
		recorder:    &recordingRecorder{},
		logger:      &testLogger{},
	}
	h.c = h.newController(h.advisor)
	t.Cleanup(h.c.Close)
	return h
}

func (h *harness) newController(advisor Advisor) *Controller {
	return NewController(Config{
		UserID:      "user-1",
		Identities:  h.identities,
		Incidents:   h.incidents,
		Advisor:     advisor,
		Capture:     h.capture,
		Broadcaster: h.broadcaster,
		Recorder:    h.recorder,
		Logger:      h.logger,
		Scheduler:   h.clock,
		Dispatch:    h.dispatch,
		Publish: func(_ string, s Snapshot) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.published = append(h.published, s)
		},
	})
}

func (h *harness) lastPublished() Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.published[len(h.published)-1]
}

func janeDoe() store.Identity {
	return store.Identity{
		FullName: "Jane Doe",
		IDNumber: "9001010000000",
		Phone:    "+27821234567",
		Email:    "jane@x.com",
	}
}

func (h *harness) register(t *testing.T) {
	t.Helper()
	require.NoError(t, h.c.Register(janeDoe()))
	require.Equal(t, StatusIdle, h.c.Status())
}

func (h *harness) fix(t *testing.T, lat, lng float64) {
	t.Helper()
	accepted, err := h.c.ReportLocation(intel.Location{Lat: lat, Lng: lng})
	require.NoError(t, err)
	require.True(t, accepted)
}

// drive moves a fresh harness into status.
func (h *harness) drive(t *testing.T, status Status) {
	t.Helper()

	if status == StatusUnregistered {
		return
	}
	h.register(t)

	switch status {
	case StatusIdle:
	case StatusScanning:
		h.c.Scan()
	case StatusSOSPending:
		h.c.TriggerSOS()
	case StatusSOSActive:
		h.c.TriggerSOS()
		h.clock.Advance(GracePeriod)
	case StatusDebriefing:
		h.c.TriggerSOS()
		h.c.Cancel()
	case StatusMarketplace:
		h.c.OpenMarketplace()
	}
	require.Equal(t, status, h.c.Status())
}

// taskQueue holds dispatched work until the test runs it.
type taskQueue struct {
	mu    sync.Mutex
	tasks []func()
}

func (q *taskQueue) dispatch(f func()) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, f)
}

// runNext runs the oldest queued task. It reports false when the queue is empty.
func (q *taskQueue) runNext() bool {
	q.mu.Lock()
	if len(q.tasks) == 0 {
		q.mu.Unlock()
		return false
	}
	task := q.tasks[0]
	q.tasks = q.tasks[1:]
	q.mu.Unlock()

	task()
	return true
}

func (q *taskQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

var errBoom = errors.New("boom")
