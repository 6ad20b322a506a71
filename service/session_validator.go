package service

import (
	"go-auth-service/model"
	"time"

	"github.com/google/uuid"
)

// SessionValidator gates refresh sessions on ownership and age.
type SessionValidator struct {
	now Clock
}

func NewSessionValidator(clock Clock) *SessionValidator {
	if clock == nil {
		clock = time.Now
	}
	return &SessionValidator{now: clock}
}

// Verify returns nil when session exists, belongs to claimedUserID and has
// not expired. A missing session and a foreign session fail the same way.
func (v *SessionValidator) Verify(session *model.RefreshSession, claimedUserID uuid.UUID) error {
	if session == nil || session.UserID != claimedUserID {
		return ErrInvalidRefreshToken
	}
	if v.now().After(session.ExpiresAt()) {
		return ErrTokenExpired
	}
	return nil
}
