package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/harborview/mediahub/internal/sessions/domain"
	"github.com/harborview/mediahub/internal/sessions/events"
	"github.com/harborview/mediahub/internal/sessions/service"
)

func countEvents(bus *events.Bus, kind events.Kind) *int {
	var mu sync.Mutex
	count := new(int)
	bus.Subscribe(func(_ context.Context, _ events.Event) {
		mu.Lock()
		*count++
		mu.Unlock()
	}, kind)
	return count
}

// TestConcurrentActivityCreatesOneSession verifies exactly-once creation:
// many goroutines reporting activity for the same device end up sharing a
// single session and a single SessionStarted event.
func TestConcurrentActivityCreatesOneSession(t *testing.T) {
	bus := events.NewBus()
	registry := service.NewSessionRegistry(bus)
	started := countEvents(bus, events.KindSessionStarted)

	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := registry.LogActivity(ctx, "TestClient", "1.0", "device-1", "TV", "10.0.0.1", nil)
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	require.Len(t, registry.List(), 1)
	require.Equal(t, 1, *started, "SessionStarted must fire exactly once")
}

// TestActivityTimestampIsMonotonic verifies a slow request finishing after
// a fresher one cannot roll the last-activity timestamp backwards.
func TestActivityTimestampIsMonotonic(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	now := base
	bus := events.NewBus()
	registry := service.NewSessionRegistry(bus, service.WithClock(func() time.Time { return now }))

	ctx := context.Background()
	s, err := registry.LogActivity(ctx, "TestClient", "1.0", "device-1", "", "", nil)
	require.NoError(t, err)
	require.Equal(t, base, s.LastActivityDate)

	// Clock jumps ahead, then a stale request arrives with an older reading.
	now = base.Add(time.Minute)
	_, err = registry.LogActivity(ctx, "TestClient", "1.0", "device-1", "", "", nil)
	require.NoError(t, err)

	now = base.Add(30 * time.Second)
	s, err = registry.LogActivity(ctx, "TestClient", "1.0", "device-1", "", "", nil)
	require.NoError(t, err)
	require.Equal(t, base.Add(time.Minute), s.LastActivityDate)
}

// TestSameDeviceDifferentClientsGetSeparateSessions verifies the session
// key covers client and version, not just the device.
func TestSameDeviceDifferentClientsGetSeparateSessions(t *testing.T) {
	bus := events.NewBus()
	registry := service.NewSessionRegistry(bus)
	ctx := context.Background()

	a, err := registry.LogActivity(ctx, "WebClient", "1.0", "device-1", "", "", nil)
	require.NoError(t, err)
	b, err := registry.LogActivity(ctx, "AndroidClient", "1.0", "device-1", "", "", nil)
	require.NoError(t, err)

	require.NotEqual(t, a.ID, b.ID)
	require.Len(t, registry.GetByDevice("device-1"), 2)
}

// TestGetByDeviceTriple verifies sessions can be addressed by the same
// device+client+version combination that created them.
func TestGetByDeviceTriple(t *testing.T) {
	bus := events.NewBus()
	registry := service.NewSessionRegistry(bus)
	ctx := context.Background()

	s, err := registry.LogActivity(ctx, "WebClient", "1.0", "device-1", "", "", nil)
	require.NoError(t, err)

	got, err := registry.Get("device-1", "WebClient", "1.0")
	require.NoError(t, err)
	require.Equal(t, s.ID, got.ID)

	// A different version keys a different session.
	_, err = registry.Get("device-1", "WebClient", "2.0")
	require.ErrorIs(t, err, service.ErrSessionNotFound)

	// Anonymous sessions carry one-off ids and have no stable address.
	_, err = registry.Get("", "WebClient", "1.0")
	require.ErrorIs(t, err, service.ErrSessionNotFound)
}

// TestAnonymousActivityWithoutClientNameFails verifies a client name is
// required to key a session at all.
func TestAnonymousActivityWithoutClientNameFails(t *testing.T) {
	registry := service.NewSessionRegistry(events.NewBus())
	_, err := registry.LogActivity(context.Background(), "", "1.0", "device-1", "", "", nil)
	require.ErrorIs(t, err, service.ErrMissingDeviceInfo)
}

// TestEndSessionIsIdempotent verifies ending twice is a no-op and the
// SessionEnded event fires exactly once.
func TestEndSessionIsIdempotent(t *testing.T) {
	bus := events.NewBus()
	registry := service.NewSessionRegistry(bus)
	ended := countEvents(bus, events.KindSessionEnded)

	ctx := context.Background()
	s, err := registry.LogActivity(ctx, "TestClient", "1.0", "device-1", "", "", nil)
	require.NoError(t, err)

	registry.EndSession(ctx, s.ID)
	registry.EndSession(ctx, s.ID)
	registry.EndSession(ctx, "never-existed")

	require.Equal(t, 1, *ended, "SessionEnded must fire exactly once")
	_, err = registry.GetSession(s.ID)
	require.ErrorIs(t, err, service.ErrSessionNotFound)
}

// TestActivityRacingEndIsNotLost hammers activity reports against session
// ends on one device key. A report that loses the race with an end must
// start a fresh session rather than write into the removed record, so the
// newest reported timestamp always surfaces in a live session or in the
// snapshot an end published.
func TestActivityRacingEndIsNotLost(t *testing.T) {
	var clockMu sync.Mutex
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	tick := func() time.Time {
		clockMu.Lock()
		defer clockMu.Unlock()
		now = now.Add(time.Millisecond)
		return now
	}

	bus := events.NewBus()
	registry := service.NewSessionRegistry(bus, service.WithClock(tick))
	ctx := context.Background()

	var endedMu sync.Mutex
	var lastEnded time.Time
	bus.Subscribe(func(_ context.Context, ev events.Event) {
		se := ev.(events.SessionEvent)
		endedMu.Lock()
		if se.Session.LastActivityDate.After(lastEnded) {
			lastEnded = se.Session.LastActivityDate
		}
		endedMu.Unlock()
	}, events.KindSessionEnded)

	var reportedMu sync.Mutex
	var lastReported time.Time

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				s, err := registry.LogActivity(ctx, "WebClient", "1.0", "device-1", "", "", nil)
				require.NoError(t, err)
				reportedMu.Lock()
				if s.LastActivityDate.After(lastReported) {
					lastReported = s.LastActivityDate
				}
				reportedMu.Unlock()
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				if s, err := registry.Get("device-1", "WebClient", "1.0"); err == nil {
					registry.EndSession(ctx, s.ID)
				}
			}
		}()
	}
	wg.Wait()

	newest := lastEnded
	if s, err := registry.Get("device-1", "WebClient", "1.0"); err == nil && s.LastActivityDate.After(newest) {
		newest = s.LastActivityDate
	}
	require.False(t, newest.Before(lastReported),
		"an acknowledged activity report left no trace in any session lifetime")
}

// TestCloseIdleSessionsSkipsActiveTranscodes verifies the idle sweep exempts
// sessions with an attached transcode even when they are long quiet.
func TestCloseIdleSessionsSkipsActiveTranscodes(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	now := base
	bus := events.NewBus()
	registry := service.NewSessionRegistry(bus,
		service.WithIdleTimeout(10*time.Minute),
		service.WithClock(func() time.Time { return now }),
	)
	ctx := context.Background()

	idle, err := registry.LogActivity(ctx, "IdleClient", "1.0", "device-idle", "", "", nil)
	require.NoError(t, err)
	transcoding, err := registry.LogActivity(ctx, "TranscodeClient", "1.0", "device-tc", "", "", nil)
	require.NoError(t, err)
	registry.SetTranscodingInfo("device-tc", domain.TranscodingInfo{VideoCodec: "h264"})

	// Both sessions go quiet past the idle timeout.
	now = base.Add(11 * time.Minute)
	closed := registry.CloseIdleSessions(ctx)

	require.Equal(t, 1, closed)
	_, err = registry.GetSession(idle.ID)
	require.ErrorIs(t, err, service.ErrSessionNotFound)
	s, err := registry.GetSession(transcoding.ID)
	require.NoError(t, err)
	require.NotNil(t, s.TranscodingInfo)

	// Once the transcode finishes the next sweep takes it.
	registry.ClearTranscodingInfo("device-tc")
	require.Equal(t, 1, registry.CloseIdleSessions(ctx))
}

// TestPlaybackLifecycle verifies start, progress and stop reports mutate
// the session and publish the matching events.
func TestPlaybackLifecycle(t *testing.T) {
	bus := events.NewBus()
	registry := service.NewSessionRegistry(bus)
	ctx := context.Background()

	var kinds []events.Kind
	bus.Subscribe(func(_ context.Context, ev events.Event) {
		kinds = append(kinds, ev.Kind())
	}, events.KindPlaybackStart, events.KindPlaybackProgress, events.KindPlaybackStopped)

	s, err := registry.LogActivity(ctx, "TestClient", "1.0", "device-1", "", "", nil)
	require.NoError(t, err)

	item := domain.NowPlayingItem{ID: "item-1", Name: "Some Movie", MediaType: "Video"}
	require.NoError(t, registry.ReportPlaybackStart(ctx, s.ID, item, domain.PlayState{}))
	require.NoError(t, registry.ReportPlaybackProgress(ctx, s.ID, domain.PlayState{PositionTicks: 500, IsPaused: true}))

	got, err := registry.GetSession(s.ID)
	require.NoError(t, err)
	require.NotNil(t, got.NowPlayingItem)
	require.Equal(t, "item-1", got.NowPlayingItem.ID)
	require.True(t, got.PlayState.IsPaused)
	require.EqualValues(t, 500, got.PlayState.PositionTicks)

	require.NoError(t, registry.ReportPlaybackStopped(ctx, s.ID, domain.PlayState{PositionTicks: 900}))
	got, err = registry.GetSession(s.ID)
	require.NoError(t, err)
	require.Nil(t, got.NowPlayingItem, "stop clears the now-playing item")

	require.Equal(t, []events.Kind{
		events.KindPlaybackStart,
		events.KindPlaybackProgress,
		events.KindPlaybackStopped,
	}, kinds)
}

// TestAdditionalUsers verifies attach/detach plus the ContainsUser rules.
func TestAdditionalUsers(t *testing.T) {
	bus := events.NewBus()
	registry := service.NewSessionRegistry(bus)
	ctx := context.Background()

	owner := domain.User{ID: uuid.New(), Username: "alice"}
	guest := uuid.New()

	s, err := registry.LogActivity(ctx, "TestClient", "1.0", "device-1", "", "", &owner)
	require.NoError(t, err)

	require.NoError(t, registry.AddAdditionalUser(s.ID, guest))
	// Adding the owner or a duplicate changes nothing.
	require.NoError(t, registry.AddAdditionalUser(s.ID, owner.ID))
	require.NoError(t, registry.AddAdditionalUser(s.ID, guest))

	got, err := registry.GetSession(s.ID)
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{guest}, got.AdditionalUsers)
	require.True(t, got.ContainsUser(owner.ID))
	require.True(t, got.ContainsUser(guest))

	require.NoError(t, registry.RemoveAdditionalUser(s.ID, guest))
	got, err = registry.GetSession(s.ID)
	require.NoError(t, err)
	require.Empty(t, got.AdditionalUsers)

	require.Len(t, registry.ListForUser(owner.ID), 1)
	require.Empty(t, registry.ListForUser(guest))
}

// TestSnapshotsAreIsolated verifies mutating a returned session does not
// leak into the registry's live record.
func TestSnapshotsAreIsolated(t *testing.T) {
	bus := events.NewBus()
	registry := service.NewSessionRegistry(bus)
	ctx := context.Background()

	s, err := registry.LogActivity(ctx, "TestClient", "1.0", "device-1", "", "", nil)
	require.NoError(t, err)
	require.NoError(t, registry.ReportPlaybackStart(ctx, s.ID, domain.NowPlayingItem{ID: "item-1"}, domain.PlayState{}))

	snapshot, err := registry.GetSession(s.ID)
	require.NoError(t, err)
	snapshot.NowPlayingItem.ID = "tampered"
	snapshot.DeviceName = "tampered"

	got, err := registry.GetSession(s.ID)
	require.NoError(t, err)
	require.Equal(t, "item-1", got.NowPlayingItem.ID)
	require.NotEqual(t, "tampered", got.DeviceName)
}

// TestShutdownEndsEverything verifies shutdown drains the registry and
// refuses new sessions afterwards.
func TestShutdownEndsEverything(t *testing.T) {
	bus := events.NewBus()
	registry := service.NewSessionRegistry(bus)
	ended := countEvents(bus, events.KindSessionEnded)
	ctx := context.Background()

	_, err := registry.LogActivity(ctx, "ClientA", "1.0", "device-a", "", "", nil)
	require.NoError(t, err)
	_, err = registry.LogActivity(ctx, "ClientB", "1.0", "device-b", "", "", nil)
	require.NoError(t, err)

	registry.Shutdown(ctx)

	require.Empty(t, registry.List())
	require.Equal(t, 2, *ended)

	_, err = registry.LogActivity(ctx, "ClientC", "1.0", "device-c", "", "", nil)
	require.ErrorIs(t, err, service.ErrSessionNotFound)
}
