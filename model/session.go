package model

import (
	"time"

	"github.com/google/uuid"
)

// RefreshSession binds one refresh token to a user for ExpiresIn seconds
// counted from CreatedAt.
type RefreshSession struct {
	ID           int64     `json:"id"`
	RefreshToken uuid.UUID `json:"-"` // never echoed back to clients
	UserID       uuid.UUID `json:"user_id"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresIn    int64     `json:"expires_in"`
}

// ExpiresAt is the absolute expiry of the session.
func (s *RefreshSession) ExpiresAt() time.Time {
	return s.CreatedAt.Add(time.Duration(s.ExpiresIn) * time.Second)
}
