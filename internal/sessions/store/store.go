package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/harborview/mediahub/internal/sessions/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers (sqlite today)
// implement this. Sub-repositories keep token and user concerns separate
// and individually mockable.
type Store interface {
	Tokens() Tokens
	Users() Users

	ApplyMigrations() error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tokens owns TokenRecords: the durable token -> device/user mapping the
// authorization resolver consults on every request. The store must support
// concurrent reads and writes without external locking.
type Tokens interface {
	// Create inserts a freshly minted token record.
	Create(ctx context.Context, t domain.TokenRecord) error

	// GetByToken returns the record for an opaque access token.
	GetByToken(ctx context.Context, token string) (domain.TokenRecord, error)

	// Update writes back a reconciled record (device rename, version bump,
	// activity refresh). The record is matched by AccessToken.
	Update(ctx context.Context, t domain.TokenRecord) error

	// Delete revokes a single token. Deleting an unknown token is a no-op.
	Delete(ctx context.Context, token string) error

	// DeleteAllForUser revokes every token bound to a user, optionally
	// sparing one (the token the user is currently acting through).
	DeleteAllForUser(ctx context.Context, userID uuid.UUID, exceptToken string) error

	// ListForUser returns all active tokens bound to a user.
	ListForUser(ctx context.Context, userID uuid.UUID) ([]domain.TokenRecord, error)

	// DeleteInactive removes tokens whose last activity predates the cutoff.
	DeleteInactive(ctx context.Context, before time.Time) error
}

// Users is the user directory the resolver binds identities against.
type Users interface {
	GetByID(ctx context.Context, id uuid.UUID) (domain.User, error)
	GetByUsername(ctx context.Context, username string) (domain.User, error)
	Create(ctx context.Context, u domain.User) error
	UpdateLastLogin(ctx context.Context, id uuid.UUID) error

	// IsEmpty reports whether any user exists; used for first-run bootstrap.
	IsEmpty(ctx context.Context) (bool, error)
}
