package service

import (
	"context"
	"log/slog"

	"github.com/harborview/mediahub/internal/sessions/events"
)

// ActivityLogger turns bus events into structured log lines. It is the
// default observer wired in by the application; external activity sinks
// subscribe the same way.
type ActivityLogger struct {
	Logger *slog.Logger
}

func NewActivityLogger(logger *slog.Logger, bus *events.Bus) *ActivityLogger {
	l := &ActivityLogger{Logger: logger}
	bus.Subscribe(l.onEvent,
		events.KindSessionStarted,
		events.KindSessionEnded,
		events.KindPlaybackStart,
		events.KindPlaybackStopped,
		events.KindAuthenticationSucceeded,
		events.KindAuthenticationFailed,
	)
	return l
}

func (l *ActivityLogger) onEvent(_ context.Context, ev events.Event) {
	switch e := ev.(type) {
	case events.SessionEvent:
		l.Logger.Info(string(e.EventKind),
			"session_id", e.Session.ID,
			"client", e.Session.Client,
			"device", e.Session.DeviceName,
			"username", e.Session.Username,
		)
	case events.PlaybackEvent:
		attrs := []any{
			"session_id", e.Session.ID,
			"username", e.Session.Username,
		}
		if e.Item != nil {
			attrs = append(attrs, "item_id", e.Item.ID, "item_name", e.Item.Name)
		}
		l.Logger.Info(string(e.EventKind), attrs...)
	case events.AuthenticationEvent:
		if e.Success {
			l.Logger.Info("authentication succeeded",
				"username", e.Username,
				"client", e.Client,
				"remote", e.RemoteEndPoint,
			)
		} else {
			l.Logger.Warn("authentication failed",
				"username", e.Username,
				"client", e.Client,
				"remote", e.RemoteEndPoint,
			)
		}
	}
}
