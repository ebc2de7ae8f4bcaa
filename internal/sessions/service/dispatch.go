package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/harborview/mediahub/internal/sessions/domain"
	"github.com/harborview/mediahub/internal/sessions/events"
)

// Message types understood by client transports.
const (
	MessageTypeCommand     = "GeneralCommand"
	MessageTypeDisplay     = "DisplayMessage"
	MessageTypeGroupUpdate = "GroupUpdate"
)

// DisplayMessage is the payload for MessageTypeDisplay.
type DisplayMessage struct {
	Header    string
	Text      string
	TimeoutMS int64
}

// Transport delivers a typed message to one session's live connection. The
// dispatch engine owns targeting and permissions; the transport owns the
// wire.
type Transport interface {
	SendToSession(ctx context.Context, sessionID, messageType string, payload any) error
}

// TargetResult records the outcome of one delivery inside a fan-out.
type TargetResult struct {
	SessionID string
	Err       error
}

// DispatchResult aggregates a fan-out. A partial failure is not an error at
// the engine level; callers inspect Failed when they care.
type DispatchResult struct {
	Delivered []string
	Failed    []TargetResult
	Skipped   []string
}

// DispatchEngine routes commands, messages and group updates to live
// sessions through their transport. Fan-outs isolate per-target failures,
// single-target sends surface them.
type DispatchEngine struct {
	registry  *SessionRegistry
	transport Transport

	// seq serializes deliveries per target session so group updates from
	// one caller arrive in the order they were sent.
	mu  sync.Mutex
	seq map[string]*sync.Mutex
}

func NewDispatchEngine(registry *SessionRegistry, transport Transport, bus *events.Bus) *DispatchEngine {
	e := &DispatchEngine{
		registry:  registry,
		transport: transport,
		seq:       make(map[string]*sync.Mutex),
	}
	// Drop per-session ordering state once the session is gone.
	bus.Subscribe(func(_ context.Context, ev events.Event) {
		if se, ok := ev.(events.SessionEvent); ok {
			e.mu.Lock()
			delete(e.seq, se.Session.ID)
			e.mu.Unlock()
		}
	}, events.KindSessionEnded)
	return e
}

func (e *DispatchEngine) sessionLock(id string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	lock, ok := e.seq[id]
	if !ok {
		lock = &sync.Mutex{}
		e.seq[id] = lock
	}
	return lock
}

func (e *DispatchEngine) send(ctx context.Context, sessionID, messageType string, payload any) error {
	lock := e.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()
	if err := e.transport.SendToSession(ctx, sessionID, messageType, payload); err != nil {
		return fmt.Errorf("%w: session %s: %v", ErrDispatchFailed, sessionID, err)
	}
	return nil
}

// authorize checks that the controlling session may drive the target. An
// empty controlling id means a server-initiated send, which is always
// allowed.
func (e *DispatchEngine) authorize(controllingID string, target domain.Session) error {
	if controllingID == "" || controllingID == target.ID {
		return nil
	}
	controller, err := e.registry.GetSession(controllingID)
	if err != nil {
		return err
	}
	if controller.UserIsAdministrator {
		return nil
	}
	if controller.UserID != uuid.Nil && target.ContainsUser(controller.UserID) {
		return nil
	}
	return ErrUnauthorized
}

// SendCommand delivers a remote-control command to one session. The target
// must report SupportsMediaControl; the controlling session must own the
// target or be an administrator.
func (e *DispatchEngine) SendCommand(ctx context.Context, controllingID, targetID string, cmd domain.GeneralCommand) error {
	target, err := e.registry.GetSession(targetID)
	if err != nil {
		return err
	}
	if err := e.authorize(controllingID, target); err != nil {
		return err
	}
	if !target.SupportsRemoteControl() {
		return fmt.Errorf("%w: session %s does not accept remote control", ErrUnauthorized, targetID)
	}
	cmd.ControllingSessionID = controllingID
	return e.send(ctx, targetID, MessageTypeCommand, cmd)
}

// SendMessage delivers a display message to one session.
func (e *DispatchEngine) SendMessage(ctx context.Context, controllingID, targetID string, msg DisplayMessage) error {
	target, err := e.registry.GetSession(targetID)
	if err != nil {
		return err
	}
	if err := e.authorize(controllingID, target); err != nil {
		return err
	}
	return e.send(ctx, targetID, MessageTypeDisplay, msg)
}

// SendGroupUpdate delivers a group state change to each listed session, in
// FIFO order per session relative to other group updates.
func (e *DispatchEngine) SendGroupUpdate(ctx context.Context, sessionIDs []string, update domain.GroupUpdate) DispatchResult {
	return e.fanOut(ctx, sessionIDs, MessageTypeGroupUpdate, update)
}

// SendToUser fans a message out to every session the user owns or
// participates in.
func (e *DispatchEngine) SendToUser(ctx context.Context, userID uuid.UUID, messageType string, payload any) DispatchResult {
	return e.fanOut(ctx, sessionIDs(e.registry.ListForUser(userID)), messageType, payload)
}

// SendToDevice fans a message out to every session on a device.
func (e *DispatchEngine) SendToDevice(ctx context.Context, deviceID, messageType string, payload any) DispatchResult {
	return e.fanOut(ctx, sessionIDs(e.registry.GetByDevice(deviceID)), messageType, payload)
}

// SendToAdmins fans a message out to every administrator session.
func (e *DispatchEngine) SendToAdmins(ctx context.Context, messageType string, payload any) DispatchResult {
	var ids []string
	for _, s := range e.registry.List() {
		if s.UserIsAdministrator {
			ids = append(ids, s.ID)
		}
	}
	return e.fanOut(ctx, ids, messageType, payload)
}

// Broadcast fans a message out to every live session.
func (e *DispatchEngine) Broadcast(ctx context.Context, messageType string, payload any) DispatchResult {
	return e.fanOut(ctx, sessionIDs(e.registry.List()), messageType, payload)
}

// fanOut delivers to each target independently: one target's failure never
// aborts the others. Once ctx is done, targets not yet attempted are
// skipped rather than failed.
func (e *DispatchEngine) fanOut(ctx context.Context, ids []string, messageType string, payload any) DispatchResult {
	var (
		mu     sync.Mutex
		result DispatchResult
		wg     sync.WaitGroup
	)
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()

			var outcome func(*DispatchResult)
			if ctx.Err() != nil {
				outcome = func(r *DispatchResult) { r.Skipped = append(r.Skipped, id) }
			} else if err := e.send(ctx, id, messageType, payload); err != nil {
				outcome = func(r *DispatchResult) { r.Failed = append(r.Failed, TargetResult{SessionID: id, Err: err}) }
			} else {
				outcome = func(r *DispatchResult) { r.Delivered = append(r.Delivered, id) }
			}

			mu.Lock()
			outcome(&result)
			mu.Unlock()
		}(id)
	}
	wg.Wait()
	return result
}

func sessionIDs(sessions []domain.Session) []string {
	ids := make([]string, 0, len(sessions))
	for _, s := range sessions {
		ids = append(ids, s.ID)
	}
	return ids
}
