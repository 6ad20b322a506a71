// file: repository/session_repository.go

package repository

import (
	"context"
	"database/sql"
	"errors"
	"go-auth-service/db"
	"go-auth-service/logger"
	"go-auth-service/model"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ISessionRepository defines the contract for refresh session persistence.
// Raw refresh tokens are never logged by implementations.
type ISessionRepository interface {
	// Insert stores a new session, failing with ErrSessionLimitReached when
	// the user already holds the maximum number of live sessions. Expired
	// sessions of the user are purged first. The purge, the count and the
	// insert are atomic with respect to concurrent inserts for the user.
	Insert(ctx context.Context, session *model.RefreshSession) error
	// InsertEvictingOldest is Insert that makes room by deleting the user's
	// oldest sessions instead of failing. It returns how many were evicted.
	InsertEvictingOldest(ctx context.Context, session *model.RefreshSession) (int64, error)
	FindByRefreshToken(ctx context.Context, token uuid.UUID) (*model.RefreshSession, error)
	FindAllByUser(ctx context.Context, userID uuid.UUID) ([]*model.RefreshSession, error)
	DeleteByRefreshToken(ctx context.Context, token uuid.UUID) (int64, error)
	DeleteAllByUser(ctx context.Context, userID uuid.UUID) (int64, error)
	// UpdateRefreshToken rotates the token of session id in place. The update
	// only applies while the row still carries oldToken, so it returns 0 when
	// another caller rotated or deleted the session first.
	UpdateRefreshToken(ctx context.Context, id int64, oldToken, newToken uuid.UUID, createdAt time.Time) (int64, error)
}

// SessionStore is the transaction boundary around session writes.
type SessionStore interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, repo ISessionRepository) error) error
}

// SessionRepository implements ISessionRepository on PostgreSQL.
type SessionRepository struct {
	DB        db.DBTX
	MaxTokens int
}

// NewSessionRepository creates a SessionRepository bound to a *sql.DB or *sql.Tx.
// Insert relies on a transaction-scoped advisory lock, so it must run on a *sql.Tx.
func NewSessionRepository(database db.DBTX, maxTokens int) *SessionRepository {
	return &SessionRepository{DB: database, MaxTokens: maxTokens}
}

// Insert serializes inserts per user with pg_advisory_xact_lock, then purges,
// counts and inserts inside the same transaction.
func (r *SessionRepository) Insert(ctx context.Context, session *model.RefreshSession) error {
	_, err := r.insert(ctx, session, false)
	return err
}

func (r *SessionRepository) InsertEvictingOldest(ctx context.Context, session *model.RefreshSession) (int64, error) {
	return r.insert(ctx, session, true)
}

func (r *SessionRepository) insert(ctx context.Context, session *model.RefreshSession, evict bool) (int64, error) {
	log := logger.Log.WithFields(logrus.Fields{
		"user_id":    session.UserID,
		"expires_in": session.ExpiresIn,
	})
	log.Debug("Executing query to create a new refresh session")

	if _, err := r.DB.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, session.UserID.String()); err != nil {
		log.WithError(err).Error("Failed to acquire refresh session lock")
		return 0, err
	}

	purge := `DELETE FROM refresh_sessions WHERE user_id = $1 AND created_at + expires_in * interval '1 second' < $2`
	if _, err := r.exec(ctx, "purge_expired", purge, session.UserID, session.CreatedAt); err != nil {
		return 0, err
	}

	var count int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM refresh_sessions WHERE user_id = $1`, session.UserID).Scan(&count); err != nil {
		log.WithError(err).Error("Failed to count refresh sessions")
		return 0, err
	}

	var evicted int64
	if count >= r.MaxTokens {
		if !evict || r.MaxTokens <= 0 {
			log.WithFields(logrus.Fields{
				"max_tokens":     r.MaxTokens,
				"current_tokens": count,
			}).Warn("Refresh session limit reached")
			return 0, ErrSessionLimitReached
		}
		query := `DELETE FROM refresh_sessions WHERE id IN (SELECT id FROM refresh_sessions WHERE user_id = $1 ORDER BY created_at, id LIMIT $2)`
		n, err := r.exec(ctx, "evict_oldest", query, session.UserID, count-r.MaxTokens+1)
		if err != nil {
			return 0, err
		}
		evicted = n
	}

	query := `INSERT INTO refresh_sessions (refresh_token, user_id, created_at, expires_in) VALUES ($1, $2, $3, $4) RETURNING id, created_at`
	err := r.DB.QueryRowContext(ctx, query, session.RefreshToken, session.UserID, session.CreatedAt, session.ExpiresIn).
		Scan(&session.ID, &session.CreatedAt)
	if err != nil {
		log.WithError(err).Error("Failed to execute create refresh session query")
		return 0, err
	}
	return evicted, nil
}

// FindByRefreshToken returns ErrNotFound if no session carries token.
func (r *SessionRepository) FindByRefreshToken(ctx context.Context, token uuid.UUID) (*model.RefreshSession, error) {
	query := `SELECT id, refresh_token, user_id, created_at, expires_in FROM refresh_sessions WHERE refresh_token = $1`
	s := &model.RefreshSession{}
	err := r.DB.QueryRowContext(ctx, query, token).Scan(&s.ID, &s.RefreshToken, &s.UserID, &s.CreatedAt, &s.ExpiresIn)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		logger.Log.WithError(err).Error("Failed to execute get refresh session query")
		return nil, err
	}
	return s, nil
}

// FindAllByUser lists the sessions of a user, oldest first.
func (r *SessionRepository) FindAllByUser(ctx context.Context, userID uuid.UUID) ([]*model.RefreshSession, error) {
	log := logger.Log.WithField("user_id", userID)

	query := `SELECT id, refresh_token, user_id, created_at, expires_in FROM refresh_sessions WHERE user_id = $1 ORDER BY created_at, id`
	rows, err := r.DB.QueryContext(ctx, query, userID)
	if err != nil {
		log.WithError(err).Error("Failed to execute query for refresh sessions by user")
		return nil, err
	}
	defer rows.Close()

	var sessions []*model.RefreshSession
	for rows.Next() {
		var s model.RefreshSession
		if err := rows.Scan(&s.ID, &s.RefreshToken, &s.UserID, &s.CreatedAt, &s.ExpiresIn); err != nil {
			log.WithError(err).Error("Failed to scan refresh session row")
			return nil, err
		}
		sessions = append(sessions, &s)
	}
	return sessions, rows.Err()
}

func (r *SessionRepository) DeleteByRefreshToken(ctx context.Context, token uuid.UUID) (int64, error) {
	return r.exec(ctx, "delete_by_token", `DELETE FROM refresh_sessions WHERE refresh_token = $1`, token)
}

// DeleteAllByUser is used for logging out from all devices.
func (r *SessionRepository) DeleteAllByUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	return r.exec(ctx, "delete_all_by_user", `DELETE FROM refresh_sessions WHERE user_id = $1`, userID)
}

func (r *SessionRepository) UpdateRefreshToken(ctx context.Context, id int64, oldToken, newToken uuid.UUID, createdAt time.Time) (int64, error) {
	query := `UPDATE refresh_sessions SET refresh_token = $1, created_at = $2 WHERE id = $3 AND refresh_token = $4`
	return r.exec(ctx, "rotate", query, newToken, createdAt, id, oldToken)
}

func (r *SessionRepository) exec(ctx context.Context, op, query string, args ...any) (int64, error) {
	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		logger.Log.WithError(err).WithField("operation", op).Error("Failed to execute refresh session statement")
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, nil
}

// PostgresSessionStore opens one transaction per unit of work.
type PostgresSessionStore struct {
	DB        *sql.DB
	MaxTokens int
}

func NewPostgresSessionStore(database *sql.DB, maxTokens int) *PostgresSessionStore {
	return &PostgresSessionStore{DB: database, MaxTokens: maxTokens}
}

func (s *PostgresSessionStore) WithinTx(ctx context.Context, fn func(ctx context.Context, repo ISessionRepository) error) error {
	return db.WithTx(ctx, s.DB, nil, func(ctx context.Context, tx db.DBTX) error {
		return fn(ctx, NewSessionRepository(tx, s.MaxTokens))
	})
}
