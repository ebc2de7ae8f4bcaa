package service

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/time/rate"

	"github.com/harborview/mediahub/internal/sessions/events"
)

// AuthGuard tracks failed logins per remote endpoint. Each failure consumes
// a token from that endpoint's bucket; once the bucket is empty the
// endpoint is considered blocked until the bucket refills. Successful
// logins reset the endpoint.
type AuthGuard struct {
	Logger *slog.Logger

	// FailureLimit is the burst of failures tolerated before blocking.
	FailureLimit int
	// FailureRate is how fast the budget refills, in failures per second.
	FailureRate rate.Limit

	mu      sync.Mutex
	buckets map[string]*rate.Limiter
}

func NewAuthGuard(logger *slog.Logger, bus *events.Bus) *AuthGuard {
	g := &AuthGuard{
		Logger:       logger,
		FailureLimit: 5,
		FailureRate:  rate.Limit(1.0 / 60), // one forgiven failure per minute
		buckets:      make(map[string]*rate.Limiter),
	}
	bus.Subscribe(g.onAuthEvent, events.KindAuthenticationFailed, events.KindAuthenticationSucceeded)
	return g
}

func (g *AuthGuard) onAuthEvent(_ context.Context, ev events.Event) {
	ae, ok := ev.(events.AuthenticationEvent)
	if !ok || ae.RemoteEndPoint == "" {
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if ae.Success {
		delete(g.buckets, ae.RemoteEndPoint)
		return
	}

	bucket, found := g.buckets[ae.RemoteEndPoint]
	if !found {
		bucket = rate.NewLimiter(g.FailureRate, g.FailureLimit)
		g.buckets[ae.RemoteEndPoint] = bucket
	}
	if !bucket.Allow() {
		g.Logger.Warn("repeated authentication failures",
			"remote", ae.RemoteEndPoint,
			"username", ae.Username,
			"client", ae.Client,
		)
	}
}

// Blocked reports whether an endpoint has exhausted its failure budget.
// Checking does not consume from the bucket.
func (g *AuthGuard) Blocked(remoteEndPoint string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	bucket, found := g.buckets[remoteEndPoint]
	if !found {
		return false
	}
	return bucket.Tokens() < 1
}
