package domain

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID              uuid.UUID
	Username        string
	PasswordHash    string // argon2 encoded
	IsAdministrator bool
	LastLoginDate   time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
