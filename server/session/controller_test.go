package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattermost/mattermost-plugin-guardian/server/alert"
	"github.com/mattermost/mattermost-plugin-guardian/server/devices"
	"github.com/mattermost/mattermost-plugin-guardian/server/intel"
	"github.com/mattermost/mattermost-plugin-guardian/server/store"
)

type event struct {
	name string
	fire func(h *harness)
}

var events = []event{
	{"register", func(h *harness) { _ = h.c.Register(janeDoe()) }},
	{"scan", func(h *harness) { h.c.Scan() }},
	{"timers elapse", func(h *harness) { h.clock.Advance(GracePeriod) }},
	{"sos", func(h *harness) { h.c.TriggerSOS() }},
	{"cancel", func(h *harness) { h.c.Cancel() }},
	{"debrief", func(h *harness) { _ = h.c.SubmitDebrief("false alarm") }},
	{"logout", func(h *harness) { h.c.Logout() }},
	{"open marketplace", func(h *harness) { h.c.OpenMarketplace() }},
	{"close marketplace", func(h *harness) { h.c.CloseMarketplace() }},
}

func TestController_TransitionTable(t *testing.T) {
	// Pairs not listed leave the status unchanged.
	expected := map[Status]map[string]Status{
		StatusUnregistered: {
			"register": StatusIdle,
		},
		StatusIdle: {
			"scan":             StatusScanning,
			"sos":              StatusSOSPending,
			"logout":           StatusUnregistered,
			"open marketplace": StatusMarketplace,
		},
		StatusScanning: {
			"timers elapse":    StatusIdle,
			"sos":              StatusSOSPending,
			"logout":           StatusUnregistered,
			"open marketplace": StatusMarketplace,
		},
		StatusSOSPending: {
			"timers elapse": StatusSOSActive,
			"cancel":        StatusDebriefing,
			"logout":        StatusUnregistered,
		},
		StatusSOSActive: {
			"cancel": StatusIdle,
			"logout": StatusUnregistered,
		},
		StatusDebriefing: {
			"debrief": StatusIdle,
			"logout":  StatusUnregistered,
		},
		StatusMarketplace: {
			"close marketplace": StatusIdle,
			"logout":            StatusUnregistered,
		},
	}

	for _, from := range AllStatuses {
		for _, ev := range events {
			from, ev := from, ev
			t.Run(string(from)+"/"+ev.name, func(t *testing.T) {
				h := newHarness(t)
				h.drive(t, from)

				ev.fire(h)

				want, listed := expected[from][ev.name]
				if !listed {
					want = from
				}
				assert.Equal(t, want, h.c.Status())
			})
		}
	}
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(StatusIdle, StatusSOSPending))
	assert.True(t, CanTransition(StatusMarketplace, StatusScanning))
	assert.False(t, CanTransition(StatusUnregistered, StatusSOSPending))
	assert.False(t, CanTransition(StatusDebriefing, StatusSOSActive))
	assert.False(t, CanTransition(StatusSOSActive, StatusDebriefing))

	for _, s := range AllStatuses {
		assert.True(t, s.Valid())
		if s.Registered() {
			assert.True(t, CanTransition(s, StatusUnregistered), "logout must be legal from %s", s)
		}
	}
	assert.False(t, Status("PAUSED").Valid())
}

func TestController_GraceCancelledBeforeElapsing(t *testing.T) {
	h := newHarness(t)
	h.register(t)
	h.fix(t, -26.2041, 28.0473)

	h.c.TriggerSOS()
	h.clock.Advance(GracePeriod - time.Millisecond)
	require.Equal(t, StatusSOSPending, h.c.Status())

	h.c.Cancel()
	assert.Equal(t, StatusDebriefing, h.c.Status())

	h.clock.Advance(time.Minute)
	assert.Equal(t, StatusDebriefing, h.c.Status(), "cancelled grace timer must never fire")
	assert.Equal(t, 0, h.capture.startCount())
	assert.Zero(t, devices.CountByType(h.c.Snapshot().Devices)[intel.DeviceSuspect])
	assert.Empty(t, h.broadcaster.kinds(), "nothing is broadcast for an aborted grace period")
	assert.Equal(t, 0, h.clock.Pending())

	incident := h.incidents.last()
	assert.Equal(t, store.OutcomeAbortedPending, incident.Outcome)
	require.NotNil(t, incident.EndedAt)
	assert.Nil(t, incident.ActivatedAt)
}

func TestController_GraceElapses(t *testing.T) {
	h := newHarness(t)
	h.register(t)
	h.fix(t, -26.2041, 28.0473)
	require.Len(t, h.c.Snapshot().Devices, 7)

	h.c.TriggerSOS()
	h.clock.Advance(GracePeriod)

	require.Equal(t, StatusSOSActive, h.c.Status())
	assert.Equal(t, 1, h.capture.startCount(), "capture start attempted exactly once")

	snapshot := h.c.Snapshot()
	require.Len(t, snapshot.Devices, 8)
	assert.Equal(t, devices.Suspect(), snapshot.Devices[7])
	assert.True(t, snapshot.Capture.Active)
	assert.Equal(t, 2, snapshot.Capture.LiveTracks)

	call := h.advisor.lastCall()
	assert.Equal(t, "CRITICAL SOS: Jane Doe (+27821234567) needs assistance.", call.situation)
	require.NotNil(t, call.loc)
	assert.Equal(t, -26.2041, call.loc.Lat)

	require.Equal(t, []alert.Kind{alert.KindSOS}, h.broadcaster.kinds())
	sos := h.broadcaster.alerts[0]
	assert.Equal(t, "Jane Doe", sos.Name)
	assert.Equal(t, "+27821234567", sos.Phone)
	assert.Equal(t, "*********0000", sos.MaskedID)
	assert.Equal(t, "stream-1", sos.StreamID)
	assert.Equal(t, snapshot.IncidentID, sos.IncidentID)

	incident := h.incidents.last()
	assert.Equal(t, store.OutcomeActive, incident.Outcome)
	assert.Equal(t, "post-SOS", incident.PostID)
	require.NotNil(t, incident.ActivatedAt)
	assert.Equal(t, testStart.Add(GracePeriod), *incident.ActivatedAt)
}

func TestController_GraceCountdown(t *testing.T) {
	h := newHarness(t)
	h.register(t)

	h.c.TriggerSOS()
	assert.Equal(t, 5, h.c.Snapshot().GraceRemainingSeconds)

	h.clock.Advance(2500 * time.Millisecond)
	assert.Equal(t, 3, h.c.Snapshot().GraceRemainingSeconds)

	h.c.TriggerSOS()
	assert.Equal(t, 3, h.c.Snapshot().GraceRemainingSeconds, "a second trigger must not restart the timer")

	h.clock.Advance(2500 * time.Millisecond)
	assert.Equal(t, StatusSOSActive, h.c.Status())
	assert.Zero(t, h.c.Snapshot().GraceRemainingSeconds)
}

func TestController_LogoutTeardown(t *testing.T) {
	h := newHarness(t)
	h.register(t)
	h.fix(t, -26.10, 28.05)
	h.c.TriggerSOS()
	h.clock.Advance(GracePeriod)
	require.True(t, h.capture.Active())

	h.c.Logout()

	snapshot := h.c.Snapshot()
	assert.Equal(t, StatusUnregistered, snapshot.Status)
	assert.Nil(t, snapshot.Identity)
	assert.Nil(t, h.c.Identity())
	assert.Nil(t, snapshot.Report)
	assert.Empty(t, snapshot.Devices)
	assert.False(t, snapshot.Capture.Active)
	assert.Zero(t, snapshot.Capture.LiveTracks)
	assert.Empty(t, h.identities.records)
	assert.Equal(t, 0, h.clock.Pending())

	assert.Equal(t, []alert.Kind{alert.KindSOS, alert.KindStandDown}, h.broadcaster.kinds())
	assert.Equal(t, store.OutcomeStoodDown, h.incidents.last().Outcome)

	accepted, err := h.c.ReportLocation(intel.Location{Lat: 1, Lng: 1})
	require.NoError(t, err)
	assert.False(t, accepted, "the watch stops on logout")
	calls := h.advisor.callCount()
	h.c.Scan()
	h.c.TriggerSOS()
	assert.Equal(t, calls, h.advisor.callCount(), "no intelligence calls without an identity")

	h.register(t)
	accepted, err = h.c.ReportLocation(intel.Location{Lat: 1, Lng: 1})
	require.NoError(t, err)
	assert.True(t, accepted, "the watch restarts on registration")
}

func TestController_LogoutFromPending(t *testing.T) {
	h := newHarness(t)
	h.register(t)
	h.c.TriggerSOS()

	h.c.Logout()
	h.clock.Advance(GracePeriod)

	assert.Equal(t, StatusUnregistered, h.c.Status())
	assert.Equal(t, 0, h.capture.startCount())
	assert.Empty(t, h.broadcaster.kinds())
	assert.Equal(t, store.OutcomeAbortedPending, h.incidents.last().Outcome)
}

func TestController_DebriefGate(t *testing.T) {
	h := newHarness(t)
	h.register(t)
	h.c.TriggerSOS()
	h.c.Cancel()
	require.Equal(t, StatusDebriefing, h.c.Status())

	err := h.c.SubmitDebrief("abcd")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDebriefTooShort))
	assert.Equal(t, StatusDebriefing, h.c.Status())

	err = h.c.SubmitDebrief("   abcd   ")
	assert.True(t, errors.Is(err, ErrDebriefTooShort), "length is measured on trimmed text")
	assert.Equal(t, StatusDebriefing, h.c.Status())

	calls := h.advisor.callCount()
	require.NoError(t, h.c.SubmitDebrief("abcde"))
	assert.Equal(t, StatusIdle, h.c.Status())
	assert.Equal(t, calls+1, h.advisor.callCount(), "debrief triggers a refresh")
	assert.Equal(t, "Identifying infrastructure and life updates for Jane Doe.", h.advisor.lastCall().situation)

	assert.Equal(t, "abcde", h.incidents.last().DebriefReason)
	assert.Empty(t, h.broadcaster.kinds(), "guardians never hear about an aborted grace period")

	notices := h.broadcaster.userNotices()
	require.Len(t, notices, 1)
	assert.Equal(t, alert.KindDebrief, notices[0].Kind)
	assert.Equal(t, "abcde", notices[0].Reason)
}

func TestController_DebriefCountsRunes(t *testing.T) {
	h := newHarness(t)
	h.drive(t, StatusDebriefing)

	assert.True(t, errors.Is(h.c.SubmitDebrief("ñañá"), ErrDebriefTooShort))
	require.NoError(t, h.c.SubmitDebrief("héllo"))
	assert.Equal(t, StatusIdle, h.c.Status())
}

type failingProvider struct{}

func (failingProvider) GetReport(context.Context, intel.Request) (*intel.Report, error) {
	return nil, errBoom
}

func (failingProvider) GetType() string { return "failing" }

type countingAdvisor struct {
	Advisor
	calls int
}

func (a *countingAdvisor) GetTacticalAdvice(ctx context.Context, situation string, loc *intel.Location) *intel.Report {
	a.calls++
	return a.Advisor.GetTacticalAdvice(ctx, situation, loc)
}

func TestController_RegistrationScenario(t *testing.T) {
	h := newHarness(t)
	gateway := intel.NewGateway(failingProvider{}, intel.ProviderConfig{}, h.logger, nil)
	advisor := &countingAdvisor{Advisor: gateway}
	h.c = h.newController(advisor)
	t.Cleanup(h.c.Close)

	require.NoError(t, h.c.Register(janeDoe()))
	assert.Equal(t, StatusIdle, h.c.Status())
	assert.Equal(t, 0, advisor.calls, "no refresh before the first fix")

	h.fix(t, -26.10, 28.05)
	assert.Equal(t, 1, advisor.calls)

	report := h.c.Snapshot().Report
	require.NotNil(t, report)
	assert.Equal(t, intel.RiskHigh, report.RiskLevel)
	assert.Equal(t, "Unknown Sector", report.CityName)
	assert.Len(t, report.TacticalZones, 2)
	assert.Len(t, report.NearbyPOIs, 4)
	assert.Len(t, h.c.Snapshot().Devices, 7)

	h.fix(t, -26.11, 28.06)
	assert.Equal(t, 1, advisor.calls, "later fixes do not refresh once a report exists")
}

func TestController_RegisterValidation(t *testing.T) {
	h := newHarness(t)

	identity := janeDoe()
	identity.Email = "not-an-email"
	err := h.c.Register(identity)
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrInvalidRegistration))
	assert.Equal(t, StatusUnregistered, h.c.Status())
	assert.Empty(t, h.identities.records)

	h.identities.saveErr = errBoom
	err = h.c.Register(janeDoe())
	require.Error(t, err)
	assert.Equal(t, StatusUnregistered, h.c.Status())

	h.identities.saveErr = nil
	require.NoError(t, h.c.Register(janeDoe()))
	saved := h.identities.records["user-1"]
	assert.True(t, saved.IsVerified)

	other := janeDoe()
	other.FullName = "Someone Else"
	require.NoError(t, h.c.Register(other), "registering twice is ignored")
	assert.Equal(t, "Jane Doe", h.c.Identity().FullName)
}

func TestController_Restore(t *testing.T) {
	t.Run("persisted identity", func(t *testing.T) {
		h := newHarness(t)
		h.identities.records["user-1"] = janeDoe()

		require.NoError(t, h.c.Restore())
		assert.Equal(t, StatusIdle, h.c.Status())
		assert.Equal(t, "Jane Doe", h.c.Identity().FullName)
	})

	t.Run("nothing persisted", func(t *testing.T) {
		h := newHarness(t)
		require.NoError(t, h.c.Restore())
		assert.Equal(t, StatusUnregistered, h.c.Status())
	})

	t.Run("load failure", func(t *testing.T) {
		h := newHarness(t)
		h.identities.loadErr = errBoom
		require.Error(t, h.c.Restore())
		assert.Equal(t, StatusUnregistered, h.c.Status())
	})
}

func TestController_Scan(t *testing.T) {
	h := newHarness(t)
	h.register(t)
	h.fix(t, -26.2041, 28.0473)
	calls := h.advisor.callCount()

	h.c.Scan()
	assert.Equal(t, StatusScanning, h.c.Status())
	assert.Equal(t, calls, h.advisor.callCount(), "refresh waits for the scan delay")

	h.clock.Advance(ScanDelay - time.Millisecond)
	assert.Equal(t, StatusScanning, h.c.Status())

	h.clock.Advance(time.Millisecond)
	assert.Equal(t, StatusIdle, h.c.Status())
	assert.Equal(t, calls+1, h.advisor.callCount())
	assert.Equal(t, "Identifying infrastructure and life updates for Jane Doe.", h.advisor.lastCall().situation)
}

func TestController_StaleScanStillAppliesReport(t *testing.T) {
	h := newHarness(t)
	h.register(t)

	h.c.Scan()
	h.clock.Advance(time.Second)
	h.c.TriggerSOS()
	require.Equal(t, StatusSOSPending, h.c.Status())

	h.clock.Advance(ScanDelay - time.Second)
	assert.Equal(t, StatusSOSPending, h.c.Status(), "a stale scan must not change the status")
	require.NotNil(t, h.c.Snapshot().Report, "a stale scan still applies its report")
	assert.Len(t, h.c.Snapshot().Devices, 7)

	h.clock.Advance(GracePeriod)
	assert.Equal(t, StatusSOSActive, h.c.Status())
	assert.Len(t, h.c.Snapshot().Devices, 8)
}

func TestController_ScanStoppedByLogout(t *testing.T) {
	h := newHarness(t)
	h.register(t)
	h.c.Scan()
	h.c.Logout()

	h.clock.Advance(ScanDelay)
	assert.Equal(t, 0, h.advisor.callCount())
	assert.Equal(t, StatusUnregistered, h.c.Status())
}

func TestController_ReportFromPreviousSignInDiscarded(t *testing.T) {
	queue := &taskQueue{}
	h := newHarnessWith(t, queue.dispatch)
	h.register(t)
	h.fix(t, -26.10, 28.05)
	require.Equal(t, 1, queue.len(), "first fix queues one refresh")

	h.fix(t, -26.11, 28.05)
	assert.Equal(t, 1, queue.len(), "first-fix refresh is single-flight")

	h.c.Logout()
	h.register(t)
	require.Equal(t, 2, queue.len(), "re-registration with a known fix queues a new refresh")

	require.True(t, queue.runNext())
	assert.Nil(t, h.c.Snapshot().Report, "report issued before logout is dropped")

	require.True(t, queue.runNext())
	assert.NotNil(t, h.c.Snapshot().Report)
}

func TestController_RefreshDuringActiveKeepsSuspect(t *testing.T) {
	queue := &taskQueue{}
	h := newHarnessWith(t, queue.dispatch)
	h.register(t)
	h.fix(t, -26.10, 28.05)

	h.c.TriggerSOS()
	h.clock.Advance(GracePeriod)
	require.Equal(t, StatusSOSActive, h.c.Status())
	require.Len(t, h.c.Snapshot().Devices, 1, "suspect appended to the empty list")

	// The first-fix refresh lands after activation.
	require.True(t, queue.runNext())

	snapshot := h.c.Snapshot()
	require.Len(t, snapshot.Devices, 8)
	assert.Equal(t, intel.DeviceSuspect, snapshot.Devices[7].Type)

	for queue.runNext() {
	}
	snapshot = h.c.Snapshot()
	assert.Len(t, snapshot.Devices, 8, "the critical report replaces the report only")
	assert.Equal(t, 1, devices.CountByType(snapshot.Devices)[intel.DeviceSuspect])
}

func TestController_StandDown(t *testing.T) {
	h := newHarness(t)
	h.register(t)
	h.fix(t, -26.10, 28.05)
	h.c.TriggerSOS()
	h.clock.Advance(GracePeriod)
	calls := h.advisor.callCount()

	h.c.Cancel()

	assert.Equal(t, StatusIdle, h.c.Status())
	assert.False(t, h.capture.Active())
	assert.Equal(t, calls+1, h.advisor.callCount())
	assert.Equal(t, "Identifying infrastructure and life updates for Jane Doe.", h.advisor.lastCall().situation)

	snapshot := h.c.Snapshot()
	assert.Len(t, snapshot.Devices, 7, "refresh after stand-down drops the suspect")
	assert.Empty(t, snapshot.IncidentID)

	require.Equal(t, []alert.Kind{alert.KindSOS, alert.KindStandDown}, h.broadcaster.kinds())
	assert.Equal(t, "post-SOS", h.broadcaster.alerts[1].RootPostID)
	assert.Equal(t, store.OutcomeStoodDown, h.incidents.last().Outcome)
}

func TestController_CaptureFailureIsNotFatal(t *testing.T) {
	h := newHarness(t)
	h.capture.startErr = errBoom
	h.register(t)

	h.c.TriggerSOS()
	h.clock.Advance(GracePeriod)

	assert.Equal(t, StatusSOSActive, h.c.Status())
	assert.False(t, h.c.Snapshot().Capture.Active)
	require.Equal(t, []alert.Kind{alert.KindSOS}, h.broadcaster.kinds())
	assert.Empty(t, h.broadcaster.alerts[0].StreamID)
	assert.Equal(t, []bool{false}, h.recorder.captures)
}

func TestController_BroadcastFailureIsNotFatal(t *testing.T) {
	h := newHarness(t)
	h.broadcaster.err = errBoom
	h.register(t)

	h.c.TriggerSOS()
	h.clock.Advance(GracePeriod)

	assert.Equal(t, StatusSOSActive, h.c.Status())
	assert.Contains(t, h.logger.errors, "Failed to broadcast guardian alert")
	assert.Empty(t, h.incidents.last().PostID)
}

func TestController_CaptureStartedAfterStandDownIsStopped(t *testing.T) {
	queue := &taskQueue{}
	h := newHarnessWith(t, queue.dispatch)
	h.register(t)

	h.c.TriggerSOS()
	h.clock.Advance(GracePeriod)
	h.c.Cancel()
	require.Equal(t, StatusIdle, h.c.Status())

	for queue.runNext() {
	}

	assert.Equal(t, 1, h.capture.startCount())
	assert.False(t, h.capture.Active(), "a stream opened after stand-down must be closed")
}

func TestController_Marketplace(t *testing.T) {
	t.Run("from idle", func(t *testing.T) {
		h := newHarness(t)
		h.register(t)

		h.c.OpenMarketplace()
		assert.Equal(t, StatusMarketplace, h.c.Status())
		h.c.CloseMarketplace()
		assert.Equal(t, StatusIdle, h.c.Status())
	})

	t.Run("closed while scanning", func(t *testing.T) {
		h := newHarness(t)
		h.register(t)
		h.c.Scan()

		h.c.OpenMarketplace()
		h.c.CloseMarketplace()
		assert.Equal(t, StatusScanning, h.c.Status())

		h.clock.Advance(ScanDelay)
		assert.Equal(t, StatusIdle, h.c.Status())
	})

	t.Run("scan finishes while open", func(t *testing.T) {
		h := newHarness(t)
		h.register(t)
		h.c.Scan()
		h.c.OpenMarketplace()

		h.clock.Advance(ScanDelay)
		assert.Equal(t, StatusMarketplace, h.c.Status(), "no other state is mutated")
		assert.NotNil(t, h.c.Snapshot().Report)

		h.c.CloseMarketplace()
		assert.Equal(t, StatusIdle, h.c.Status())
	})

	t.Run("requires identity", func(t *testing.T) {
		h := newHarness(t)
		h.c.OpenMarketplace()
		assert.Equal(t, StatusUnregistered, h.c.Status())
	})
}

func TestController_Location(t *testing.T) {
	h := newHarness(t)

	accepted, err := h.c.ReportLocation(intel.Location{Lat: -26.1, Lng: 28.0})
	require.NoError(t, err)
	assert.False(t, accepted, "no watch before registration")

	assert.False(t, h.c.ReportLocationError(errors.New("permission denied")))
	assert.Zero(t, h.recorder.locErrors, "errors without a watch are not counted")

	h.register(t)

	_, err = h.c.ReportLocation(intel.Location{Lat: 91, Lng: 0})
	assert.True(t, errors.Is(err, ErrInvalidLocation))

	h.fix(t, -26.1, 28.0)
	require.NotNil(t, h.c.Location())

	assert.True(t, h.c.ReportLocationError(errors.New("permission denied")))
	snapshot := h.c.Snapshot()
	assert.Equal(t, "permission denied", snapshot.LocationError)
	require.NotNil(t, snapshot.Location, "errors keep the last location")
	assert.Equal(t, -26.1, snapshot.Location.Lat)
	assert.Equal(t, 1, h.recorder.locErrors)

	h.fix(t, -26.2, 28.1)
	assert.Empty(t, h.c.Snapshot().LocationError)
	assert.Equal(t, -26.2, h.c.Location().Lat)
}

func TestController_SnapshotZoneAndMasking(t *testing.T) {
	h := newHarness(t)
	h.register(t)
	h.fix(t, -26.10, 28.05)

	// The fallback red zone is centered at +0.005/+0.005 with a 300m radius.
	h.fix(t, -26.095, 28.055)

	snapshot := h.c.Snapshot()
	require.NotNil(t, snapshot.ActiveZone)
	assert.Equal(t, "z1", snapshot.ActiveZone.ID)
	require.NotNil(t, snapshot.Identity)
	assert.Equal(t, "*********0000", snapshot.Identity.IDNumber)
	assert.Equal(t, "9001010000000", h.c.Identity().IDNumber)
}

func TestController_PublishesVersionedSnapshots(t *testing.T) {
	h := newHarness(t)
	h.register(t)
	h.c.Scan()
	h.clock.Advance(ScanDelay)

	h.mu.Lock()
	published := append([]Snapshot(nil), h.published...)
	h.mu.Unlock()

	require.NotEmpty(t, published)
	for i := 1; i < len(published); i++ {
		assert.Greater(t, published[i].Version, published[i-1].Version)
	}
	assert.Equal(t, StatusIdle, h.lastPublished().Status)
	assert.Equal(t, "user-1", h.lastPublished().UserID)
}

func TestController_Close(t *testing.T) {
	h := newHarness(t)
	h.register(t)
	h.c.TriggerSOS()

	h.c.Close()
	h.c.Close()

	assert.Equal(t, 0, h.clock.Pending())
	assert.True(t, errors.Is(h.c.Register(janeDoe()), ErrSessionClosed))
	assert.True(t, errors.Is(h.c.SubmitDebrief("valid reason"), ErrSessionClosed))
	assert.Equal(t, StatusSOSPending, h.c.Status())
	assert.Equal(t, "Jane Doe", h.identities.records["user-1"].FullName, "close keeps the persisted identity")
}
