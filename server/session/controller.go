// Package session implements the SOS lifecycle controller: one state machine
// per signed-in user that owns the application status, the grace and scan
// timers, media capture and the merging of intelligence reports.
package session

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/mattermost/mattermost-plugin-guardian/server/alert"
	"github.com/mattermost/mattermost-plugin-guardian/server/devices"
	"github.com/mattermost/mattermost-plugin-guardian/server/intel"
	"github.com/mattermost/mattermost-plugin-guardian/server/location"
	"github.com/mattermost/mattermost-plugin-guardian/server/store"
	"github.com/mattermost/mattermost-plugin-guardian/server/timer"
)

// Timing and validation constants.
const (
	GracePeriod      = 5 * time.Second
	ScanDelay        = 4 * time.Second
	MinDebriefLength = 5

	defaultBroadcastTimeout = 30 * time.Second
	defaultCaptureTimeout   = 15 * time.Second
)

var (
	// ErrDebriefTooShort rejects a debrief reason under MinDebriefLength runes
	ErrDebriefTooShort = errors.New("debrief reason too short")

	// ErrInvalidLocation rejects a fix outside valid coordinate ranges
	ErrInvalidLocation = errors.New("invalid location")

	// ErrSessionClosed is returned by commands issued after Close
	ErrSessionClosed = errors.New("session closed")
)

// refreshKind selects the situation text and how a report is merged.
type refreshKind int

const (
	refreshAuto refreshKind = iota
	refreshGeneric
	refreshCritical
)

func genericSituation(name string) string {
	return fmt.Sprintf("Identifying infrastructure and life updates for %s.", name)
}

func criticalSituation(name, phone string) string {
	return fmt.Sprintf("%s %s (%s) needs assistance.", intel.CriticalSituationPrefix, name, phone)
}

// Controller is the SOS lifecycle state machine of one user.
//
// All state is guarded by mu. Commands mutate state under the lock and queue
// follow-up work (intelligence calls, capture start, broadcasts) which runs
// through dispatch after the lock is released. Snapshots are published after
// every change and carry a version so clients can drop out-of-order pushes.
type Controller struct {
	mu sync.Mutex

	userID      string
	identities  IdentityRepository
	incidents   IncidentRepository
	advisor     Advisor
	watcher     *location.PushWatcher
	tracker     *location.Tracker
	capture     MediaCapture
	broadcaster Broadcaster
	publish     Publisher
	recorder    Recorder
	scheduler   timer.Scheduler
	dispatch    func(func())
	logger      Logger

	broadcastTimeout time.Duration
	captureTimeout   time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	closed bool

	status    Status
	returnTo  Status
	identity  *store.Identity
	epoch     uint64
	report    *intel.Report
	devices   []intel.Device
	incident  *store.Incident
	version   uint64
	updatedAt time.Time

	grace         timer.Handle
	graceSeq      uint64
	graceDeadline time.Time

	scan       timer.Handle
	scanSeq    uint64
	scanActive uint64

	autoRefreshing bool
}

// effects collects work to run once the controller lock is released.
type effects struct {
	tasks []func()
}

func (e *effects) async(task func()) {
	e.tasks = append(e.tasks, task)
}

// NewController creates a controller in UNREGISTERED. Call Restore to pick up
// a persisted identity.
func NewController(cfg Config) *Controller {
	ctx, cancel := context.WithCancel(context.Background())

	c := &Controller{
		userID:           cfg.UserID,
		identities:       cfg.Identities,
		incidents:        cfg.Incidents,
		advisor:          cfg.Advisor,
		watcher:          cfg.Watcher,
		capture:          cfg.Capture,
		broadcaster:      cfg.Broadcaster,
		publish:          cfg.Publish,
		recorder:         cfg.Recorder,
		scheduler:        cfg.Scheduler,
		dispatch:         cfg.Dispatch,
		logger:           cfg.Logger,
		broadcastTimeout: cfg.BroadcastTimeout,
		captureTimeout:   cfg.CaptureTimeout,
		ctx:              ctx,
		cancel:           cancel,
		status:           StatusUnregistered,
	}

	if c.incidents == nil {
		c.incidents = nopIncidents{}
	}
	if c.watcher == nil {
		c.watcher = location.NewPushWatcher()
	}
	if c.recorder == nil {
		c.recorder = nopRecorder{}
	}
	if c.scheduler == nil {
		c.scheduler = timer.Real{}
	}
	if c.dispatch == nil {
		c.dispatch = goDispatch
	}
	if c.broadcastTimeout <= 0 {
		c.broadcastTimeout = defaultBroadcastTimeout
	}
	if c.captureTimeout <= 0 {
		c.captureTimeout = defaultCaptureTimeout
	}

	c.tracker = location.NewTracker(c.watcher, c.logger)
	c.updatedAt = c.scheduler.Now()
	return c
}

// UserID returns the Mattermost user the session belongs to.
func (c *Controller) UserID() string {
	return c.userID
}

// apply runs fn under the lock, publishes a snapshot if fn changed anything,
// then dispatches the queued effects.
func (c *Controller) apply(fn func(e *effects) error) error {
	var e effects

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrSessionClosed
	}
	version := c.version
	err := fn(&e)
	changed := c.version != version
	var snapshot Snapshot
	if changed {
		snapshot = c.snapshotLocked()
	}
	c.mu.Unlock()

	if changed && c.publish != nil {
		c.publish(c.userID, snapshot)
	}
	for _, task := range e.tasks {
		c.dispatch(task)
	}
	return err
}

// touchLocked marks state as changed.
func (c *Controller) touchLocked() {
	c.version++
	c.updatedAt = c.scheduler.Now()
}

// setStatusLocked moves to status to. Leaving SOS_PENDING by any path cancels
// the grace timer.
func (c *Controller) setStatusLocked(to Status) {
	from := c.status
	if from == to {
		return
	}
	if !CanTransition(from, to) {
		c.logger.Error("Refusing illegal status transition", "userId", c.userID, "from", string(from), "to", string(to))
		return
	}

	if to != StatusSOSPending {
		c.cancelGraceLocked()
	}

	c.status = to
	c.touchLocked()
	c.recorder.ObserveTransition(string(from), string(to))
	c.logger.Info("Session status changed", "userId", c.userID, "from", string(from), "to", string(to))
}

// Restore loads a persisted identity and, if one exists, signs the session in.
func (c *Controller) Restore() error {
	return c.apply(func(e *effects) error {
		if c.status != StatusUnregistered {
			return nil
		}

		identity, err := c.identities.Load(c.userID)
		if err != nil {
			c.logger.Error("Failed to load persisted identity", "userId", c.userID, "error", err.Error())
			return fmt.Errorf("failed to restore session: %w", err)
		}
		if identity == nil {
			return nil
		}

		c.signInLocked(e, *identity)
		c.logger.Info("Session restored", "userId", c.userID)
		return nil
	})
}

// Register validates and persists identity and moves the session to IDLE.
// Registering an already registered session is ignored.
func (c *Controller) Register(identity store.Identity) error {
	return c.apply(func(e *effects) error {
		if c.status != StatusUnregistered {
			return nil
		}

		identity = identity.Normalize()
		if err := identity.Validate(); err != nil {
			return err
		}
		identity.IsVerified = true

		if err := c.identities.Save(c.userID, identity); err != nil {
			c.logger.Error("Failed to persist identity", "userId", c.userID, "error", err.Error())
			return fmt.Errorf("failed to register: %w", err)
		}

		c.signInLocked(e, identity)
		c.logger.Info("Identity registered", "userId", c.userID)
		return nil
	})
}

func (c *Controller) signInLocked(e *effects, identity store.Identity) {
	c.identity = &identity
	c.epoch++
	c.setStatusLocked(StatusIdle)

	if err := c.tracker.Start(c.handleFix); err != nil {
		c.logger.Warn("Failed to start position watch", "userId", c.userID, "error", err.Error())
	}
	c.maybeAutoRefreshLocked(e)
}

// Logout tears the session down and erases the identity. It is accepted from
// every registered status. Teardown happens before the status changes.
func (c *Controller) Logout() {
	_ = c.apply(func(e *effects) error {
		if !c.status.Registered() {
			return nil
		}

		now := c.scheduler.Now()
		switch c.status {
		case StatusSOSPending:
			c.closeIncidentLocked(store.OutcomeAbortedPending, now)
		case StatusSOSActive:
			c.closeIncidentLocked(store.OutcomeStoodDown, now)
			standDown := c.alertLocked(alert.KindStandDown, now)
			e.async(func() { c.broadcast(standDown) })
		}

		c.teardownLocked()
		if err := c.identities.Delete(c.userID); err != nil {
			c.logger.Error("Failed to delete persisted identity", "userId", c.userID, "error", err.Error())
		}

		c.setStatusLocked(StatusUnregistered)
		c.logger.Info("Session logged out", "userId", c.userID)
		return nil
	})
}

// teardownLocked stops every running resource and clears all session data.
func (c *Controller) teardownLocked() {
	c.cancelGraceLocked()
	c.stopScanLocked()
	c.capture.Stop()
	c.tracker.Stop()

	c.report = nil
	c.devices = nil
	c.identity = nil
	c.incident = nil
	c.returnTo = ""
	c.autoRefreshing = false
	c.epoch++
	c.touchLocked()
}

// Scan starts a scan: the session moves to SCANNING and, after ScanDelay, an
// intelligence refresh runs. The status returns to IDLE once it resolves.
func (c *Controller) Scan() {
	_ = c.apply(func(e *effects) error {
		if c.identity == nil || c.status != StatusIdle {
			return nil
		}

		c.setStatusLocked(StatusScanning)

		c.stopScanLocked()
		c.scanSeq++
		seq, epoch := c.scanSeq, c.epoch
		c.scanActive = seq
		c.scan = c.scheduler.AfterFunc(ScanDelay, func() { c.completeScan(epoch, seq) })
		return nil
	})
}

func (c *Controller) stopScanLocked() {
	if c.scan != nil {
		c.scan.Stop()
		c.scan = nil
	}
	c.scanActive = 0
}

// completeScan runs the delayed refresh of scan seq. The report is applied
// even if the session has moved on; only a scan that is still current moves
// the status back to IDLE.
func (c *Controller) completeScan(epoch, seq uint64) {
	c.mu.Lock()
	if c.closed || epoch != c.epoch || c.identity == nil {
		c.mu.Unlock()
		return
	}
	situation := genericSituation(c.identity.FullName)
	loc := c.tracker.Current()
	c.mu.Unlock()

	report := c.advisor.GetTacticalAdvice(c.ctx, situation, loc)

	_ = c.apply(func(e *effects) error {
		if epoch != c.epoch {
			return nil
		}
		c.installReportLocked(report, true)

		if c.scanActive != seq {
			return nil
		}
		c.scanActive = 0
		c.scan = nil

		switch c.status {
		case StatusScanning:
			c.setStatusLocked(StatusIdle)
		case StatusMarketplace:
			if c.returnTo == StatusScanning {
				c.returnTo = StatusIdle
			}
		}
		return nil
	})
}

// TriggerSOS starts the grace period. It is ignored without an identity and
// outside IDLE and SCANNING.
func (c *Controller) TriggerSOS() {
	_ = c.apply(func(e *effects) error {
		if c.identity == nil {
			return nil
		}
		if c.status != StatusIdle && c.status != StatusScanning {
			return nil
		}

		c.setStatusLocked(StatusSOSPending)

		now := c.scheduler.Now()
		c.incident = &store.Incident{
			ID:        uuid.NewString(),
			UserID:    c.userID,
			Outcome:   store.OutcomePending,
			StartedAt: now,
			Location:  c.tracker.Current(),
		}
		if c.report != nil {
			c.incident.RiskLevel = c.report.RiskLevel
		}
		c.saveIncidentLocked()

		c.startGraceLocked(now)
		c.logger.Info("SOS grace period started", "userId", c.userID, "incidentId", c.incident.ID)
		return nil
	})
}

func (c *Controller) startGraceLocked(now time.Time) {
	c.cancelGraceLocked()

	c.graceSeq++
	seq := c.graceSeq
	c.graceDeadline = now.Add(GracePeriod)
	c.grace = c.scheduler.AfterFunc(GracePeriod, func() { c.finalizeSOS(seq) })
}

// cancelGraceLocked stops the grace timer and invalidates any firing already
// in flight.
func (c *Controller) cancelGraceLocked() {
	if c.grace != nil {
		c.grace.Stop()
		c.grace = nil
	}
	c.graceSeq++
	c.graceDeadline = time.Time{}
}

// finalizeSOS activates the broadcast when grace timer seq elapses.
func (c *Controller) finalizeSOS(seq uint64) {
	_ = c.apply(func(e *effects) error {
		if c.status != StatusSOSPending || seq != c.graceSeq || c.identity == nil {
			return nil
		}
		c.grace = nil

		c.setStatusLocked(StatusSOSActive)

		now := c.scheduler.Now()
		c.devices = devices.WithSuspect(c.devices)

		incident := c.incident
		incident.Outcome = store.OutcomeActive
		incident.ActivatedAt = &now
		if loc := c.tracker.Current(); loc != nil {
			incident.Location = loc
		}
		c.saveIncidentLocked()

		sos := c.alertLocked(alert.KindSOS, now)
		e.async(func() { c.activate(sos) })
		c.requestRefreshLocked(e, refreshCritical)

		c.logger.Info("SOS broadcast active", "userId", c.userID, "incidentId", incident.ID)
		return nil
	})
}

// activate starts media capture and then broadcasts the SOS. Capture failure
// is logged and the broadcast goes out without a stream.
func (c *Controller) activate(sos alert.Alert) {
	ctx, cancel := context.WithTimeout(c.ctx, c.captureTimeout)
	err := c.capture.Start(ctx)
	cancel()

	c.recorder.ObserveCapture(err == nil)
	if err != nil {
		c.logger.Warn("SOS proceeding without media capture", "userId", c.userID, "incidentId", sos.IncidentID, "error", err.Error())
	}

	stale := false
	err = c.apply(func(e *effects) error {
		if c.status != StatusSOSActive || c.incident == nil || c.incident.ID != sos.IncidentID {
			stale = true
			return nil
		}
		c.touchLocked()
		return nil
	})
	if errors.Is(err, ErrSessionClosed) {
		stale = true
	}

	if stale {
		// Stood down (or logged out) while capture was being acquired
		c.capture.Stop()
	} else {
		sos.StreamID = c.capture.StreamID()
	}

	c.broadcast(sos)
}

// broadcast delivers a to guardians and threads later alerts under the SOS post.
func (c *Controller) broadcast(a alert.Alert) {
	if c.broadcaster == nil {
		return
	}

	ctx, cancel := context.WithTimeout(c.ctx, c.broadcastTimeout)
	defer cancel()

	postID, err := c.broadcaster.Broadcast(ctx, a)
	c.recorder.ObserveBroadcast(string(a.Kind), err == nil)
	if err != nil {
		c.logger.Error("Failed to broadcast guardian alert", "userId", c.userID, "incidentId", a.IncidentID,
			"kind", string(a.Kind), "error", err.Error())
	}

	if a.Kind != alert.KindSOS || postID == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.incident != nil && c.incident.ID == a.IncidentID {
		c.incident.PostID = postID
		c.saveIncidentLocked()
	}
}

// confirmDebrief sends the debrief to the user alone. Guardians never saw the
// aborted SOS.
func (c *Controller) confirmDebrief(a alert.Alert) {
	if c.broadcaster == nil {
		return
	}

	ctx, cancel := context.WithTimeout(c.ctx, c.broadcastTimeout)
	defer cancel()

	if err := c.broadcaster.NotifyUser(ctx, a); err != nil {
		c.logger.Warn("Failed to confirm debrief to user", "userId", c.userID, "incidentId", a.IncidentID, "error", err.Error())
	}
}

// Cancel aborts the SOS. During the grace period the session moves to
// DEBRIEFING; once active it stands down to IDLE, stops capture and refreshes.
func (c *Controller) Cancel() {
	_ = c.apply(func(e *effects) error {
		now := c.scheduler.Now()

		switch c.status {
		case StatusSOSPending:
			c.setStatusLocked(StatusDebriefing)
			c.closeIncidentLocked(store.OutcomeAbortedPending, now)
			c.logger.Info("SOS aborted during grace period", "userId", c.userID)

		case StatusSOSActive:
			c.setStatusLocked(StatusIdle)
			c.capture.Stop()
			c.closeIncidentLocked(store.OutcomeStoodDown, now)

			standDown := c.alertLocked(alert.KindStandDown, now)
			e.async(func() { c.broadcast(standDown) })
			c.requestRefreshLocked(e, refreshGeneric)
			c.logger.Info("SOS stood down", "userId", c.userID)
		}
		return nil
	})
}

// SubmitDebrief records why an SOS was aborted and returns the session to
// IDLE. Reasons shorter than MinDebriefLength runes (after trimming) are
// rejected and the session stays in DEBRIEFING.
func (c *Controller) SubmitDebrief(reason string) error {
	return c.apply(func(e *effects) error {
		if c.status != StatusDebriefing {
			return nil
		}

		reason = strings.TrimSpace(reason)
		if utf8.RuneCountInString(reason) < MinDebriefLength {
			return fmt.Errorf("%w: at least %d characters required", ErrDebriefTooShort, MinDebriefLength)
		}

		now := c.scheduler.Now()
		c.setStatusLocked(StatusIdle)

		if c.incident != nil {
			c.incident.DebriefReason = reason
			c.saveIncidentLocked()
		}

		debrief := c.alertLocked(alert.KindDebrief, now)
		debrief.Reason = reason
		e.async(func() { c.confirmDebrief(debrief) })
		c.requestRefreshLocked(e, refreshGeneric)
		return nil
	})
}

// OpenMarketplace shows the marketplace from IDLE or SCANNING.
func (c *Controller) OpenMarketplace() {
	_ = c.apply(func(e *effects) error {
		if c.identity == nil {
			return nil
		}
		if c.status != StatusIdle && c.status != StatusScanning {
			return nil
		}

		c.returnTo = c.status
		c.setStatusLocked(StatusMarketplace)
		return nil
	})
}

// CloseMarketplace returns to the status the marketplace was opened from, or
// IDLE if a scan finished in the meantime.
func (c *Controller) CloseMarketplace() {
	_ = c.apply(func(e *effects) error {
		if c.status != StatusMarketplace {
			return nil
		}

		to := c.returnTo
		if to == "" {
			to = StatusIdle
		}
		c.returnTo = ""
		c.setStatusLocked(to)

		if to == StatusIdle {
			c.maybeAutoRefreshLocked(e)
		}
		return nil
	})
}

// ReportLocation feeds a fix from the client into the position watch. It
// reports false when no watch is running.
func (c *Controller) ReportLocation(loc intel.Location) (bool, error) {
	if !validLocation(loc) {
		return false, fmt.Errorf("%w: lat=%v lng=%v", ErrInvalidLocation, loc.Lat, loc.Lng)
	}
	return c.watcher.Push(loc), nil
}

// ReportLocationError feeds a watch error from the client. The watch stays
// alive and the last location is kept.
func (c *Controller) ReportLocationError(err error) bool {
	if !c.watcher.PushError(err) {
		return false
	}
	c.recorder.ObserveLocationError()

	_ = c.apply(func(e *effects) error {
		c.touchLocked()
		return nil
	})
	return true
}

func validLocation(loc intel.Location) bool {
	if math.IsNaN(loc.Lat) || math.IsNaN(loc.Lng) {
		return false
	}
	return loc.Lat >= -90 && loc.Lat <= 90 && loc.Lng >= -180 && loc.Lng <= 180
}

// handleFix is the tracker's update callback.
func (c *Controller) handleFix(loc intel.Location) {
	_ = c.apply(func(e *effects) error {
		if !c.status.Registered() {
			return nil
		}
		c.touchLocked()
		c.logger.Debug("Location updated", "userId", c.userID, "lat", loc.Lat, "lng", loc.Lng)
		c.maybeAutoRefreshLocked(e)
		return nil
	})
}

// maybeAutoRefreshLocked issues the first refresh once the session is idle,
// has a fix and has no report. Only one such refresh is in flight at a time.
func (c *Controller) maybeAutoRefreshLocked(e *effects) {
	if c.status != StatusIdle || c.report != nil || c.autoRefreshing || c.identity == nil {
		return
	}
	if c.tracker.Current() == nil {
		return
	}

	c.autoRefreshing = true
	c.requestRefreshLocked(e, refreshAuto)
}

// requestRefreshLocked queues an intelligence call. It is a no-op without an
// identity. The result is dropped if the identity changes before it arrives.
func (c *Controller) requestRefreshLocked(e *effects, kind refreshKind) {
	if c.identity == nil {
		return
	}

	situation := genericSituation(c.identity.FullName)
	if kind == refreshCritical {
		situation = criticalSituation(c.identity.FullName, c.identity.Phone)
	}
	loc := c.tracker.Current()
	epoch := c.epoch

	e.async(func() {
		report := c.advisor.GetTacticalAdvice(c.ctx, situation, loc)
		c.applyReport(epoch, kind, report)
	})
}

func (c *Controller) applyReport(epoch uint64, kind refreshKind, report *intel.Report) {
	_ = c.apply(func(e *effects) error {
		if epoch != c.epoch {
			c.logger.Debug("Discarding intelligence report from a previous sign-in", "userId", c.userID)
			return nil
		}
		if kind == refreshAuto {
			c.autoRefreshing = false
		}

		// The critical SOS report replaces the report only; the device list
		// keeps the injected suspect.
		c.installReportLocked(report, kind != refreshCritical)
		return nil
	})
}

// installReportLocked replaces the report wholesale and, if rebuild is set,
// rebuilds the device list from it. A rebuild during SOS_ACTIVE keeps the
// suspect in the list.
func (c *Controller) installReportLocked(report *intel.Report, rebuild bool) {
	if report == nil {
		return
	}

	c.report = report
	if rebuild {
		c.devices = devices.FromReport(report)
		if c.status == StatusSOSActive {
			c.devices = devices.WithSuspect(c.devices)
		}
	}
	if c.incident != nil && c.status == StatusSOSActive {
		c.incident.RiskLevel = report.RiskLevel
	}
	c.touchLocked()
}

func (c *Controller) closeIncidentLocked(outcome store.Outcome, now time.Time) {
	if c.incident == nil {
		return
	}
	c.incident.Outcome = outcome
	c.incident.EndedAt = &now
	c.saveIncidentLocked()
}

func (c *Controller) saveIncidentLocked() {
	if c.incident == nil {
		return
	}
	if err := c.incidents.Save(*c.incident); err != nil {
		c.logger.Error("Failed to save incident", "userId", c.userID, "incidentId", c.incident.ID, "error", err.Error())
	}
}

// alertLocked builds the guardian alert for the current incident.
func (c *Controller) alertLocked(kind alert.Kind, now time.Time) alert.Alert {
	a := alert.Alert{
		Kind:     kind,
		UserID:   c.userID,
		Time:     now,
		Location: c.tracker.Current(),
		Report:   c.report.Clone(),
	}
	if c.identity != nil {
		a.Name = c.identity.FullName
		a.Phone = c.identity.Phone
		a.Email = c.identity.Email
		a.MaskedID = c.identity.MaskedID()
	}
	if c.incident != nil {
		a.IncidentID = c.incident.ID
		if kind != alert.KindSOS {
			a.RootPostID = c.incident.PostID
		}
	}
	return a
}

// Close stops timers, capture and the position watch. Commands issued after
// Close fail with ErrSessionClosed. The persisted identity is kept.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.cancelGraceLocked()
	c.stopScanLocked()
	c.capture.Stop()
	c.tracker.Stop()
	c.mu.Unlock()

	c.cancel()
}
