package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/harborview/mediahub/internal/sessions/store"
)

// HousekeepingService periodically sweeps idle sessions out of the registry
// and, when a token inactivity timeout is configured, prunes stale token
// records from the store.
type HousekeepingService struct {
	Store    store.Store
	Registry *SessionRegistry
	Logger   *slog.Logger
	Interval time.Duration

	// TokenInactivityTimeout enables stale token pruning when positive.
	// Zero disables it: tokens then live until explicitly revoked.
	TokenInactivityTimeout time.Duration

	// Internal channels for lifecycle management
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService creates a new housekeeping service with the given
// interval. If interval is 0 or negative, defaults to 30 seconds.
func NewHousekeepingService(st store.Store, registry *SessionRegistry, logger *slog.Logger, interval, tokenInactivity time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = 30 * time.Second
	}

	return &HousekeepingService{
		Store:                  st,
		Registry:               registry,
		Logger:                 logger,
		Interval:               interval,
		TokenInactivityTimeout: tokenInactivity,
		stopCh:                 make(chan struct{}),
		doneCh:                 make(chan struct{}),
	}
}

// Start begins the background worker that periodically runs cleanup.
// Call Stop() to gracefully shutdown the worker.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval)
}

// Stop gracefully shuts down the background worker.
// Blocks until the worker has finished any in-progress cleanup.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stopCh:
			return
		}
	}
}

// cleanup runs one sweep. Each task is independent - a failure in one won't
// stop the others.
func (s *HousekeepingService) cleanup() {
	ctx := context.Background()

	if closed := s.Registry.CloseIdleSessions(ctx); closed > 0 {
		s.Logger.Info("closed idle sessions", "count", closed)
	}

	if s.TokenInactivityTimeout > 0 {
		cutoff := time.Now().Add(-s.TokenInactivityTimeout)
		if err := s.Store.Tokens().DeleteInactive(ctx, cutoff); err != nil {
			s.Logger.Error("failed to delete inactive tokens", "error", err)
		} else {
			s.Logger.Debug("pruned inactive tokens", "cutoff", cutoff)
		}
	}
}
