package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/harborview/mediahub/internal/sessions/domain"
	"github.com/harborview/mediahub/internal/sessions/events"
	"github.com/harborview/mediahub/pkg/idx"
)

// DefaultSessionIdleTimeout is how long a session may sit without activity
// before the idle sweep ends it.
const DefaultSessionIdleTimeout = 10 * time.Minute

// ErrMissingDeviceInfo reports an activity call without the client name
// required to key a session.
var ErrMissingDeviceInfo = errors.New("missing_device_info")

// SessionRegistry owns the live session table: one record per connected
// device+client+version combination. All reads hand out deep copies; the
// registry is the single writer of live records.
type SessionRegistry struct {
	bus         *events.Bus
	idleTimeout time.Duration
	now         func() time.Time

	mu       sync.Mutex
	sessions map[string]*liveSession
	closed   bool
}

// liveSession pairs the record with its own lock so field updates on one
// session never contend with updates on another. The registry map lock is
// only held for lookup and insert/remove.
type liveSession struct {
	mu    sync.Mutex
	s     domain.Session
	ended bool
}

type RegistryOption func(*SessionRegistry)

// WithIdleTimeout overrides DefaultSessionIdleTimeout.
func WithIdleTimeout(d time.Duration) RegistryOption {
	return func(r *SessionRegistry) {
		if d > 0 {
			r.idleTimeout = d
		}
	}
}

// WithClock overrides the registry clock, for tests.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *SessionRegistry) { r.now = now }
}

func NewSessionRegistry(bus *events.Bus, opts ...RegistryOption) *SessionRegistry {
	r := &SessionRegistry{
		bus:         bus,
		idleTimeout: DefaultSessionIdleTimeout,
		now:         time.Now,
		sessions:    make(map[string]*liveSession),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// sessionKey derives the stable session identifier for a known device. The
// same device+client+version always maps to the same session, which is what
// makes concurrent first-activity reports collapse into one record.
func sessionKey(deviceID, client, version string) string {
	sum := sha256.Sum256([]byte(deviceID + client + version))
	return hex.EncodeToString(sum[:16])
}

// LogActivity records one request's worth of liveness for the calling
// device, creating the session on first contact. Creation is exactly-once:
// concurrent calls with the same key race to insert under the registry lock
// and only the winner publishes SessionStarted.
func (r *SessionRegistry) LogActivity(ctx context.Context, appName, appVersion, deviceID, deviceName, remoteEndPoint string, user *domain.User) (domain.Session, error) {
	if appName == "" {
		return domain.Session{}, ErrMissingDeviceInfo
	}

	var id string
	if deviceID == "" {
		// Anonymous context: no stable key exists, mint a one-off id.
		id = idx.New().String()
	} else {
		id = sessionKey(deviceID, appName, appVersion)
	}

	var (
		live    *liveSession
		created bool
	)
	for {
		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			return domain.Session{}, ErrSessionNotFound
		}
		var ok bool
		live, ok = r.sessions[id]
		created = !ok
		if created {
			live = &liveSession{s: domain.Session{
				ID:                 id,
				Client:             appName,
				ApplicationVersion: appVersion,
				DeviceID:           deviceID,
			}}
			r.sessions[id] = live
		}
		r.mu.Unlock()

		live.mu.Lock()
		if !live.ended {
			break
		}
		// Lost a race with EndSession between the map lookup and the
		// session lock; the record is already removed, start over.
		live.mu.Unlock()
	}
	now := r.now()
	// Last activity only moves forward; a slow request finishing after a
	// fresher one must not roll the timestamp back.
	if now.After(live.s.LastActivityDate) {
		live.s.LastActivityDate = now
	}
	if deviceName != "" {
		live.s.DeviceName = deviceName
	}
	if remoteEndPoint != "" {
		live.s.RemoteEndPoint = remoteEndPoint
	}
	if user != nil {
		live.s.UserID = user.ID
		live.s.Username = user.Username
		live.s.UserIsAdministrator = user.IsAdministrator
	}
	snapshot := live.s.Clone()
	live.mu.Unlock()

	if created {
		r.bus.Publish(ctx, events.SessionEvent{EventKind: events.KindSessionStarted, Session: snapshot})
	}
	r.bus.Publish(ctx, events.SessionEvent{EventKind: events.KindSessionActivity, Session: snapshot})

	return snapshot, nil
}

// GetSession returns a snapshot of the session with the given id.
func (r *SessionRegistry) GetSession(id string) (domain.Session, error) {
	live, ok := r.lookup(id)
	if !ok {
		return domain.Session{}, ErrSessionNotFound
	}
	live.mu.Lock()
	defer live.mu.Unlock()
	return live.s.Clone(), nil
}

// Get returns a snapshot of the session keyed by the device triple, the
// same derivation LogActivity uses. Anonymous sessions carry a one-off id
// and cannot be found this way.
func (r *SessionRegistry) Get(deviceID, client, version string) (domain.Session, error) {
	if deviceID == "" {
		return domain.Session{}, ErrSessionNotFound
	}
	return r.GetSession(sessionKey(deviceID, client, version))
}

// GetByDevice returns snapshots of every session attached to a device.
func (r *SessionRegistry) GetByDevice(deviceID string) []domain.Session {
	return r.snapshotWhere(func(s *domain.Session) bool { return s.DeviceID == deviceID })
}

// List returns snapshots of all sessions, most recently active first.
func (r *SessionRegistry) List() []domain.Session {
	out := r.snapshotWhere(func(*domain.Session) bool { return true })
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastActivityDate.After(out[j].LastActivityDate)
	})
	return out
}

// ListForUser returns snapshots of sessions the user owns or participates in.
func (r *SessionRegistry) ListForUser(userID uuid.UUID) []domain.Session {
	return r.snapshotWhere(func(s *domain.Session) bool { return s.ContainsUser(userID) })
}

func (r *SessionRegistry) snapshotWhere(keep func(*domain.Session) bool) []domain.Session {
	r.mu.Lock()
	lives := make([]*liveSession, 0, len(r.sessions))
	for _, live := range r.sessions {
		lives = append(lives, live)
	}
	r.mu.Unlock()

	var out []domain.Session
	for _, live := range lives {
		live.mu.Lock()
		if keep(&live.s) {
			out = append(out, live.s.Clone())
		}
		live.mu.Unlock()
	}
	return out
}

func (r *SessionRegistry) lookup(id string) (*liveSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	live, ok := r.sessions[id]
	return live, ok
}

// UpdateCapabilities replaces the session's capability report.
func (r *SessionRegistry) UpdateCapabilities(ctx context.Context, id string, caps domain.ClientCapabilities) error {
	snapshot, err := r.mutate(id, func(s *domain.Session) {
		s.Capabilities = caps
	})
	if err != nil {
		return err
	}
	r.bus.Publish(ctx, events.SessionEvent{EventKind: events.KindCapabilitiesChanged, Session: snapshot})
	return nil
}

// ReportPlaybackStart attaches a now-playing item to the session.
func (r *SessionRegistry) ReportPlaybackStart(ctx context.Context, id string, item domain.NowPlayingItem, state domain.PlayState) error {
	snapshot, err := r.mutate(id, func(s *domain.Session) {
		s.NowPlayingItem = &item
		s.PlayState = state
		s.LastPlaybackCheckIn = r.now()
	})
	if err != nil {
		return err
	}
	r.bus.Publish(ctx, events.PlaybackEvent{
		EventKind: events.KindPlaybackStart,
		Session:   snapshot,
		Item:      snapshot.NowPlayingItem,
		PlayState: state,
	})
	return nil
}

// ReportPlaybackProgress updates the client-reported position.
func (r *SessionRegistry) ReportPlaybackProgress(ctx context.Context, id string, state domain.PlayState) error {
	snapshot, err := r.mutate(id, func(s *domain.Session) {
		s.PlayState = state
		s.LastPlaybackCheckIn = r.now()
	})
	if err != nil {
		return err
	}
	r.bus.Publish(ctx, events.PlaybackEvent{
		EventKind: events.KindPlaybackProgress,
		Session:   snapshot,
		Item:      snapshot.NowPlayingItem,
		PlayState: state,
	})
	return nil
}

// ReportPlaybackStopped clears the now-playing item. The stop event carries
// the item that was playing.
func (r *SessionRegistry) ReportPlaybackStopped(ctx context.Context, id string, state domain.PlayState) error {
	var stopped *domain.NowPlayingItem
	snapshot, err := r.mutate(id, func(s *domain.Session) {
		stopped = s.NowPlayingItem
		s.NowPlayingItem = nil
		s.PlayState = state
		s.LastPlaybackCheckIn = r.now()
	})
	if err != nil {
		return err
	}
	r.bus.Publish(ctx, events.PlaybackEvent{
		EventKind: events.KindPlaybackStopped,
		Session:   snapshot,
		Item:      stopped,
		PlayState: state,
	})
	return nil
}

// ReportNowViewing records the item a session is browsing without playing.
func (r *SessionRegistry) ReportNowViewing(ctx context.Context, id string, item domain.NowPlayingItem) error {
	snapshot, err := r.mutate(id, func(s *domain.Session) {
		s.NowViewingItem = &item
	})
	if err != nil {
		return err
	}
	r.bus.Publish(ctx, events.SessionEvent{EventKind: events.KindSessionActivity, Session: snapshot})
	return nil
}

// AddAdditionalUser attaches an extra user to a shared session. Adding the
// owner or an already attached user is a no-op.
func (r *SessionRegistry) AddAdditionalUser(id string, userID uuid.UUID) error {
	_, err := r.mutate(id, func(s *domain.Session) {
		if s.ContainsUser(userID) {
			return
		}
		s.AdditionalUsers = append(s.AdditionalUsers, userID)
	})
	return err
}

// RemoveAdditionalUser detaches an extra user. Unknown users are a no-op;
// the owner cannot be removed this way.
func (r *SessionRegistry) RemoveAdditionalUser(id string, userID uuid.UUID) error {
	_, err := r.mutate(id, func(s *domain.Session) {
		for i, u := range s.AdditionalUsers {
			if u == userID {
				s.AdditionalUsers = append(s.AdditionalUsers[:i], s.AdditionalUsers[i+1:]...)
				return
			}
		}
	})
	return err
}

// SetTranscodingInfo attaches transcode state to every session on a device.
// The transcoding collaborator keys by device, not session.
func (r *SessionRegistry) SetTranscodingInfo(deviceID string, info domain.TranscodingInfo) {
	r.mutateDevice(deviceID, func(s *domain.Session) {
		cp := info
		s.TranscodingInfo = &cp
	})
}

// ClearTranscodingInfo detaches transcode state from a device's sessions.
func (r *SessionRegistry) ClearTranscodingInfo(deviceID string) {
	r.mutateDevice(deviceID, func(s *domain.Session) {
		s.TranscodingInfo = nil
	})
}

func (r *SessionRegistry) mutate(id string, fn func(*domain.Session)) (domain.Session, error) {
	live, ok := r.lookup(id)
	if !ok {
		return domain.Session{}, ErrSessionNotFound
	}
	live.mu.Lock()
	defer live.mu.Unlock()
	if live.ended {
		return domain.Session{}, ErrSessionNotFound
	}
	fn(&live.s)
	return live.s.Clone(), nil
}

func (r *SessionRegistry) mutateDevice(deviceID string, fn func(*domain.Session)) {
	r.mu.Lock()
	lives := make([]*liveSession, 0, 1)
	for _, live := range r.sessions {
		lives = append(lives, live)
	}
	r.mu.Unlock()

	for _, live := range lives {
		live.mu.Lock()
		if live.s.DeviceID == deviceID && !live.ended {
			fn(&live.s)
		}
		live.mu.Unlock()
	}
}

// EndSession removes a session and publishes SessionEnded. Ending an
// unknown or already ended session is a no-op; the event fires exactly once
// per session lifetime regardless of how many callers race here.
func (r *SessionRegistry) EndSession(ctx context.Context, id string) {
	r.mu.Lock()
	live, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()
	if !ok {
		return
	}

	live.mu.Lock()
	if live.ended {
		live.mu.Unlock()
		return
	}
	live.ended = true
	snapshot := live.s.Clone()
	live.mu.Unlock()

	r.bus.Publish(ctx, events.SessionEvent{EventKind: events.KindSessionEnded, Session: snapshot})
}

// EndSessionsForDevice ends every session attached to a device, typically
// after its token was revoked.
func (r *SessionRegistry) EndSessionsForDevice(ctx context.Context, deviceID string) {
	for _, s := range r.GetByDevice(deviceID) {
		r.EndSession(ctx, s.ID)
	}
}

// CloseIdleSessions ends sessions whose last activity predates the idle
// timeout. Sessions with an active transcode are exempt: the client may be
// buffering far ahead and legitimately quiet.
func (r *SessionRegistry) CloseIdleSessions(ctx context.Context) int {
	cutoff := r.now().Add(-r.idleTimeout)

	var idle []string
	for _, s := range r.snapshotWhere(func(*domain.Session) bool { return true }) {
		if s.TranscodingInfo != nil {
			continue
		}
		if s.LastActivityDate.Before(cutoff) {
			idle = append(idle, s.ID)
		}
	}
	for _, id := range idle {
		r.EndSession(ctx, id)
	}
	return len(idle)
}

// Shutdown ends every session. The registry accepts no new sessions
// afterwards.
func (r *SessionRegistry) Shutdown(ctx context.Context) {
	r.mu.Lock()
	r.closed = true
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	for _, id := range ids {
		r.EndSession(ctx, id)
	}
}
