package transport_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/harborview/mediahub/internal/sessions/domain"
	"github.com/harborview/mediahub/internal/sessions/events"
	"github.com/harborview/mediahub/internal/sessions/transport"
)

type recordingConn struct {
	messages []transport.Message
}

func (c *recordingConn) Send(_ context.Context, msg transport.Message) error {
	c.messages = append(c.messages, msg)
	return nil
}

func TestHubRoutesToAttachedConn(t *testing.T) {
	hub := transport.NewHub(events.NewBus())
	conn := &recordingConn{}
	hub.Attach("s1", conn)

	err := hub.SendToSession(context.Background(), "s1", "DisplayMessage", "hello")
	require.NoError(t, err)
	require.Len(t, conn.messages, 1)
	require.Equal(t, "DisplayMessage", conn.messages[0].Type)
	require.Equal(t, "hello", conn.messages[0].Data)
}

func TestHubWithoutConnFails(t *testing.T) {
	hub := transport.NewHub(events.NewBus())
	err := hub.SendToSession(context.Background(), "s1", "DisplayMessage", "hello")
	require.ErrorIs(t, err, transport.ErrNoConnection)
}

func TestHubDetach(t *testing.T) {
	hub := transport.NewHub(events.NewBus())
	hub.Attach("s1", &recordingConn{})
	require.True(t, hub.Connected("s1"))

	hub.Detach("s1")
	require.False(t, hub.Connected("s1"))
	err := hub.SendToSession(context.Background(), "s1", "DisplayMessage", "hello")
	require.ErrorIs(t, err, transport.ErrNoConnection)
}

// TestHubDropsConnWhenSessionEnds verifies the bus wiring: a SessionEnded
// event detaches the pipe automatically.
func TestHubDropsConnWhenSessionEnds(t *testing.T) {
	bus := events.NewBus()
	hub := transport.NewHub(bus)
	hub.Attach("s1", &recordingConn{})

	bus.Publish(context.Background(), events.SessionEvent{
		EventKind: events.KindSessionEnded,
		Session:   domain.Session{ID: "s1"},
	})

	require.False(t, hub.Connected("s1"))
}
