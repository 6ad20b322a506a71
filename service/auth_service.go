package service

import (
	"context"
	"errors"
	"go-auth-service/config"
	"go-auth-service/logger"
	"go-auth-service/model"
	"go-auth-service/repository"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// AuthSettings are the lifecycle knobs of AuthService.
type AuthSettings struct {
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	// EvictOldestOnLimit makes Authenticate drop the user's oldest session
	// instead of failing with ErrTokenLimitExceeded. The eviction and the
	// insert are one atomic store operation.
	EvictOldestOnLimit bool
	Clock              Clock
}

// SettingsFromConfig converts the token section of the config.
func SettingsFromConfig(cfg config.TokenConfig) AuthSettings {
	return AuthSettings{
		AccessTTL:          time.Duration(cfg.AccessTTLSeconds) * time.Second,
		RefreshTTL:         time.Duration(cfg.RefreshTTLSeconds) * time.Second,
		EvictOldestOnLimit: cfg.EvictOldestOnLimit,
	}
}

// IAuthService is what the HTTP layer needs from the token lifecycle.
type IAuthService interface {
	Authenticate(ctx context.Context, login, password string) (*model.Tokens, error)
	Refresh(ctx context.Context, refreshToken, accessToken string) (*model.Tokens, error)
	Logout(ctx context.Context, refreshToken string) error
	LogoutAll(ctx context.Context, accessToken string) (int64, error)
	Identify(accessToken string) (uuid.UUID, error)
	CurrentUser(ctx context.Context, userID uuid.UUID) (*model.User, error)
	ListSessions(ctx context.Context, userID uuid.UUID) ([]*model.RefreshSession, error)
}

// AuthService issues, rotates and revokes token pairs. It keeps no state of
// its own; every operation is one unit of work against the session store.
type AuthService struct {
	users     repository.IUserRepository
	sessions  repository.SessionStore
	passwords PasswordVerifier
	codec     *TokenCodec
	validator *SessionValidator
	settings  AuthSettings
}

// NewAuthService creates a new AuthService.
func NewAuthService(
	users repository.IUserRepository,
	sessions repository.SessionStore,
	passwords PasswordVerifier,
	codec *TokenCodec,
	settings AuthSettings,
) *AuthService {
	if settings.Clock == nil {
		settings.Clock = time.Now
	}
	return &AuthService{
		users:     users,
		sessions:  sessions,
		passwords: passwords,
		codec:     codec,
		validator: NewSessionValidator(settings.Clock),
		settings:  settings,
	}
}

// Authenticate checks the credentials and opens a new session.
func (s *AuthService) Authenticate(ctx context.Context, login, password string) (*model.Tokens, error) {
	log := logger.Log.WithField("login", login)

	user, err := s.users.FindByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			log.Info("Login attempt for unknown user")
			return nil, ErrInvalidCredentials
		}
		return nil, s.unexpected("authenticate", err, logrus.Fields{"login": login})
	}
	if !s.passwords.Compare(password, user.PasswordHash) {
		log.WithField("user_id", user.ID).Info("Login attempt with wrong password")
		return nil, ErrInvalidCredentials
	}

	accessToken, err := s.codec.Mint(user.ID, s.settings.AccessTTL)
	if err != nil {
		return nil, s.unexpected("authenticate", err, logrus.Fields{"user_id": user.ID})
	}
	session := &model.RefreshSession{
		RefreshToken: uuid.New(),
		UserID:       user.ID,
		CreatedAt:    s.settings.Clock().UTC(),
		ExpiresIn:    int64(s.settings.RefreshTTL / time.Second),
	}

	err = s.sessions.WithinTx(ctx, func(ctx context.Context, repo repository.ISessionRepository) error {
		if !s.settings.EvictOldestOnLimit {
			return repo.Insert(ctx, session)
		}
		evicted, err := repo.InsertEvictingOldest(ctx, session)
		if err == nil && evicted > 0 {
			log.WithFields(logrus.Fields{"user_id": user.ID, "evicted": evicted}).Info("Evicted oldest refresh sessions")
		}
		return err
	})
	if errors.Is(err, repository.ErrSessionLimitReached) {
		log.WithField("user_id", user.ID).Warn("Refusing login: session limit reached")
		return nil, ErrTokenLimitExceeded
	}
	if err != nil {
		return nil, s.unexpected("authenticate", err, logrus.Fields{"user_id": user.ID})
	}

	log.WithFields(logrus.Fields{"user_id": user.ID, "session_id": session.ID}).Info("User authenticated")
	return model.NewTokens(accessToken, session.RefreshToken), nil
}

// Refresh rotates refreshToken and returns a new pair. When accessToken is
// given, its subject must own the session; its expiry is not checked.
func (s *AuthService) Refresh(ctx context.Context, refreshToken, accessToken string) (*model.Tokens, error) {
	token, err := uuid.Parse(refreshToken)
	if err != nil {
		return nil, ErrInvalidRefreshToken
	}

	var claimed *uuid.UUID
	if accessToken != "" {
		payload, err := s.codec.DecodeIgnoringExpiry(accessToken)
		if err != nil {
			return nil, err
		}
		claimed = &payload.Subject
	}

	var tokens *model.Tokens
	err = s.sessions.WithinTx(ctx, func(ctx context.Context, repo repository.ISessionRepository) error {
		session, err := repo.FindByRefreshToken(ctx, token)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrInvalidRefreshToken
		}
		if err != nil {
			return err
		}

		owner := session.UserID
		if claimed != nil {
			owner = *claimed
		}
		if err := s.validator.Verify(session, owner); err != nil {
			return err
		}

		user, err := s.users.FindByID(ctx, session.UserID)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrInvalidCredentials
		}
		if err != nil {
			return err
		}

		access, err := s.codec.Mint(user.ID, s.settings.AccessTTL)
		if err != nil {
			return err
		}
		newToken := uuid.New()
		n, err := repo.UpdateRefreshToken(ctx, session.ID, token, newToken, s.settings.Clock().UTC())
		if err != nil {
			return err
		}
		if n == 0 {
			// rotated or revoked by a concurrent request
			return ErrInvalidRefreshToken
		}

		logger.Log.WithFields(logrus.Fields{"user_id": user.ID, "session_id": session.ID}).Info("Refresh session rotated")
		tokens = model.NewTokens(access, newToken)
		return nil
	})
	if err != nil {
		return nil, s.classify("refresh", err, logrus.Fields{})
	}
	return tokens, nil
}

// Logout ends the session of refreshToken. A token that matches nothing,
// including one already logged out, returns ErrRefreshNotExist.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	token, err := uuid.Parse(refreshToken)
	if err != nil {
		return ErrRefreshNotExist
	}

	var n int64
	err = s.sessions.WithinTx(ctx, func(ctx context.Context, repo repository.ISessionRepository) error {
		var err error
		n, err = repo.DeleteByRefreshToken(ctx, token)
		return err
	})
	if err != nil {
		return s.unexpected("logout", err, logrus.Fields{})
	}
	if n == 0 {
		return ErrRefreshNotExist
	}
	logger.Log.Info("Refresh session deleted")
	return nil
}

// LogoutAll ends every session of the access token's subject and returns how
// many there were. Zero is not an error.
func (s *AuthService) LogoutAll(ctx context.Context, accessToken string) (int64, error) {
	payload, err := s.codec.Decode(accessToken)
	if err != nil {
		return 0, err
	}

	var n int64
	err = s.sessions.WithinTx(ctx, func(ctx context.Context, repo repository.ISessionRepository) error {
		var err error
		n, err = repo.DeleteAllByUser(ctx, payload.Subject)
		return err
	})
	if err != nil {
		return 0, s.unexpected("logout_all", err, logrus.Fields{"user_id": payload.Subject})
	}

	logger.Log.WithFields(logrus.Fields{"user_id": payload.Subject, "revoked": n}).Info("All refresh sessions deleted")
	return n, nil
}

// Identify returns the subject of a valid access token. It has no side
// effects and is called on every protected request.
func (s *AuthService) Identify(accessToken string) (uuid.UUID, error) {
	payload, err := s.codec.Decode(accessToken)
	if err != nil {
		return uuid.Nil, err
	}
	return payload.Subject, nil
}

// CurrentUser loads the user behind an identified subject. A subject whose
// user is gone is treated like bad credentials.
func (s *AuthService) CurrentUser(ctx context.Context, userID uuid.UUID) (*model.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, s.unexpected("current_user", err, logrus.Fields{"user_id": userID})
	}
	return user, nil
}

// ListSessions returns the sessions of userID, oldest first.
func (s *AuthService) ListSessions(ctx context.Context, userID uuid.UUID) ([]*model.RefreshSession, error) {
	var sessions []*model.RefreshSession
	err := s.sessions.WithinTx(ctx, func(ctx context.Context, repo repository.ISessionRepository) error {
		var err error
		sessions, err = repo.FindAllByUser(ctx, userID)
		return err
	})
	if err != nil {
		return nil, s.unexpected("list_sessions", err, logrus.Fields{"user_id": userID})
	}
	return sessions, nil
}

var taxonomy = []error{
	ErrInvalidCredentials,
	ErrInvalidRefreshToken,
	ErrTokenExpired,
	ErrInvalidAccessToken,
	ErrTokenLimitExceeded,
	ErrRefreshNotExist,
}

// classify passes taxonomy errors through and hides everything else.
func (s *AuthService) classify(op string, err error, fields logrus.Fields) error {
	for _, known := range taxonomy {
		if errors.Is(err, known) {
			return known
		}
	}
	return s.unexpected(op, err, fields)
}

func (s *AuthService) unexpected(op string, err error, fields logrus.Fields) error {
	logger.Log.WithError(err).WithFields(fields).WithField("operation", op).Error("Unexpected failure in token lifecycle")
	return ErrUnexpected
}
