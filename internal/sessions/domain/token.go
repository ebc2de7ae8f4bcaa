package domain

import (
	"time"

	"github.com/google/uuid"
)

// TokenRecord is the durable mapping from an opaque access token to the
// device and user it was issued for. A record with a nil UserID is an API
// key: valid credentials not bound to any user.
type TokenRecord struct {
	AccessToken      string // unique key
	UserID           uuid.UUID
	UserName         string // denormalized; reconciled on resolve
	DeviceID         string
	DeviceName       string
	AppName          string
	AppVersion       string
	DateCreated      time.Time
	DateLastActivity time.Time
}

// IsAPIKey reports whether the record represents machine credentials.
func (t TokenRecord) IsAPIKey() bool { return t.UserID == uuid.Nil }
