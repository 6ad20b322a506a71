package service

import (
	"go-auth-service/model"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestSessionValidator_Verify(t *testing.T) {
	clock := newTestClock()
	validator := NewSessionValidator(clock.Now)
	owner := uuid.New()
	session := &model.RefreshSession{
		ID:           1,
		RefreshToken: uuid.New(),
		UserID:       owner,
		CreatedAt:    clock.Now(),
		ExpiresIn:    3600,
	}

	assert.ErrorIs(t, validator.Verify(nil, owner), ErrInvalidRefreshToken)
	assert.ErrorIs(t, validator.Verify(session, uuid.New()), ErrInvalidRefreshToken,
		"a foreign session looks exactly like a missing one")
	assert.NoError(t, validator.Verify(session, owner))

	clock.Advance(time.Hour)
	assert.NoError(t, validator.Verify(session, owner), "expiry instant itself is still valid")

	clock.Advance(time.Second)
	assert.ErrorIs(t, validator.Verify(session, owner), ErrTokenExpired)
	assert.ErrorIs(t, validator.Verify(session, uuid.New()), ErrInvalidRefreshToken,
		"ownership is checked before expiry")
}
