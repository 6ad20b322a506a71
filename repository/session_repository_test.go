package repository

import (
	"context"
	"database/sql"
	"errors"
	"go-auth-service/logger"
	"go-auth-service/model"
	"os"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	logger.Init()
	os.Exit(m.Run())
}

func newSessionRepoWithMock(t *testing.T, maxTokens int) (*SessionRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	database, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return NewSessionRepository(database, maxTokens), mock, database
}

var (
	lockQuery   = regexp.QuoteMeta(`SELECT pg_advisory_xact_lock(hashtext($1))`)
	purgeQuery  = regexp.QuoteMeta(`DELETE FROM refresh_sessions WHERE user_id = $1 AND created_at + expires_in * interval '1 second' < $2`)
	countQuery  = regexp.QuoteMeta(`SELECT COUNT(*) FROM refresh_sessions WHERE user_id = $1`)
	evictQuery  = regexp.QuoteMeta(`DELETE FROM refresh_sessions WHERE id IN (SELECT id FROM refresh_sessions WHERE user_id = $1 ORDER BY created_at, id LIMIT $2)`)
	insertQuery = regexp.QuoteMeta(`INSERT INTO refresh_sessions (refresh_token, user_id, created_at, expires_in) VALUES ($1, $2, $3, $4) RETURNING id, created_at`)
)

func TestSessionRepository_Insert(t *testing.T) {
	userID := uuid.New()
	token := uuid.New()
	createdAt := time.Date(2024, 9, 8, 10, 0, 0, 0, time.UTC)

	t.Run("success takes the advisory lock before counting", func(t *testing.T) {
		// A bare count-then-insert without the per-user lock lets two
		// concurrent inserts both observe count < max. The ordered
		// expectations below pin the lock as the first statement.
		repo, mock, _ := newSessionRepoWithMock(t, 5)

		mock.ExpectExec(lockQuery).WithArgs(userID.String()).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(purgeQuery).WithArgs(userID, createdAt).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(countQuery).WithArgs(userID).WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))
		mock.ExpectQuery(insertQuery).
			WithArgs(token, userID, createdAt, int64(3600)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(7), createdAt))

		s := &model.RefreshSession{RefreshToken: token, UserID: userID, CreatedAt: createdAt, ExpiresIn: 3600}
		require.NoError(t, repo.Insert(context.Background(), s))
		assert.Equal(t, int64(7), s.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("expired sessions are purged before counting", func(t *testing.T) {
		repo, mock, _ := newSessionRepoWithMock(t, 5)

		mock.ExpectExec(lockQuery).WithArgs(userID.String()).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(purgeQuery).WithArgs(userID, createdAt).WillReturnResult(sqlmock.NewResult(0, 2))
		mock.ExpectQuery(countQuery).WithArgs(userID).WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
		mock.ExpectQuery(insertQuery).
			WithArgs(token, userID, createdAt, int64(3600)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(8), createdAt))

		s := &model.RefreshSession{RefreshToken: token, UserID: userID, CreatedAt: createdAt, ExpiresIn: 3600}
		require.NoError(t, repo.Insert(context.Background(), s))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("limit reached", func(t *testing.T) {
		repo, mock, _ := newSessionRepoWithMock(t, 5)

		mock.ExpectExec(lockQuery).WithArgs(userID.String()).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(purgeQuery).WithArgs(userID, createdAt).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(countQuery).WithArgs(userID).WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(5))

		s := &model.RefreshSession{RefreshToken: token, UserID: userID, CreatedAt: createdAt, ExpiresIn: 3600}
		err := repo.Insert(context.Background(), s)
		assert.ErrorIs(t, err, ErrSessionLimitReached)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("lock error", func(t *testing.T) {
		repo, mock, _ := newSessionRepoWithMock(t, 5)
		mock.ExpectExec(lockQuery).WillReturnError(errors.New("db down"))

		err := repo.Insert(context.Background(), &model.RefreshSession{UserID: userID})
		assert.EqualError(t, err, "db down")
	})
}

func TestSessionRepository_InsertEvictingOldest(t *testing.T) {
	userID := uuid.New()
	token := uuid.New()
	createdAt := time.Date(2024, 9, 8, 10, 0, 0, 0, time.UTC)

	t.Run("evicts under the same lock as the insert", func(t *testing.T) {
		repo, mock, _ := newSessionRepoWithMock(t, 5)

		mock.ExpectExec(lockQuery).WithArgs(userID.String()).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(purgeQuery).WithArgs(userID, createdAt).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(countQuery).WithArgs(userID).WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(5))
		mock.ExpectExec(evictQuery).WithArgs(userID, 1).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(insertQuery).
			WithArgs(token, userID, createdAt, int64(3600)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(9), createdAt))

		s := &model.RefreshSession{RefreshToken: token, UserID: userID, CreatedAt: createdAt, ExpiresIn: 3600}
		evicted, err := repo.InsertEvictingOldest(context.Background(), s)
		require.NoError(t, err)
		assert.Equal(t, int64(1), evicted)
		assert.Equal(t, int64(9), s.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("below the limit nothing is evicted", func(t *testing.T) {
		repo, mock, _ := newSessionRepoWithMock(t, 5)

		mock.ExpectExec(lockQuery).WithArgs(userID.String()).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(purgeQuery).WithArgs(userID, createdAt).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(countQuery).WithArgs(userID).WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
		mock.ExpectQuery(insertQuery).
			WithArgs(token, userID, createdAt, int64(3600)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(10), createdAt))

		s := &model.RefreshSession{RefreshToken: token, UserID: userID, CreatedAt: createdAt, ExpiresIn: 3600}
		evicted, err := repo.InsertEvictingOldest(context.Background(), s)
		require.NoError(t, err)
		assert.Equal(t, int64(0), evicted)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSessionRepository_FindByRefreshToken(t *testing.T) {
	query := regexp.QuoteMeta(`SELECT id, refresh_token, user_id, created_at, expires_in FROM refresh_sessions WHERE refresh_token = $1`)
	token := uuid.New()
	userID := uuid.New()
	createdAt := time.Now().UTC().Truncate(time.Second)

	t.Run("found", func(t *testing.T) {
		repo, mock, _ := newSessionRepoWithMock(t, 5)
		mock.ExpectQuery(query).WithArgs(token).
			WillReturnRows(sqlmock.NewRows([]string{"id", "refresh_token", "user_id", "created_at", "expires_in"}).
				AddRow(int64(1), token.String(), userID.String(), createdAt, int64(60)))

		s, err := repo.FindByRefreshToken(context.Background(), token)
		require.NoError(t, err)
		assert.Equal(t, token, s.RefreshToken)
		assert.Equal(t, userID, s.UserID)
		assert.Equal(t, int64(60), s.ExpiresIn)
	})

	t.Run("not found", func(t *testing.T) {
		repo, mock, _ := newSessionRepoWithMock(t, 5)
		mock.ExpectQuery(query).WithArgs(token).WillReturnError(sql.ErrNoRows)

		_, err := repo.FindByRefreshToken(context.Background(), token)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("db error", func(t *testing.T) {
		repo, mock, _ := newSessionRepoWithMock(t, 5)
		mock.ExpectQuery(query).WithArgs(token).WillReturnError(errors.New("db err"))

		_, err := repo.FindByRefreshToken(context.Background(), token)
		assert.EqualError(t, err, "db err")
	})
}

func TestSessionRepository_FindAllByUser(t *testing.T) {
	repo, mock, _ := newSessionRepoWithMock(t, 5)
	userID := uuid.New()
	now := time.Now().UTC()

	rows := sqlmock.NewRows([]string{"id", "refresh_token", "user_id", "created_at", "expires_in"}).
		AddRow(int64(1), uuid.NewString(), userID.String(), now, int64(60)).
		AddRow(int64(2), uuid.NewString(), userID.String(), now, int64(60))
	mock.ExpectQuery(`SELECT id, refresh_token, user_id, created_at, expires_in FROM refresh_sessions WHERE user_id = \$1`).
		WithArgs(userID).WillReturnRows(rows)

	sessions, err := repo.FindAllByUser(context.Background(), userID)
	require.NoError(t, err)
	assert.Len(t, sessions, 2)
	assert.Equal(t, int64(2), sessions[1].ID)
}

func TestSessionRepository_Deletes(t *testing.T) {
	userID := uuid.New()
	token := uuid.New()

	t.Run("by token", func(t *testing.T) {
		repo, mock, _ := newSessionRepoWithMock(t, 5)
		mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM refresh_sessions WHERE refresh_token = $1`)).
			WithArgs(token).WillReturnResult(sqlmock.NewResult(0, 1))

		n, err := repo.DeleteByRefreshToken(context.Background(), token)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})

	t.Run("all by user", func(t *testing.T) {
		repo, mock, _ := newSessionRepoWithMock(t, 5)
		mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM refresh_sessions WHERE user_id = $1`)).
			WithArgs(userID).WillReturnResult(sqlmock.NewResult(0, 3))

		n, err := repo.DeleteAllByUser(context.Background(), userID)
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)
	})

	t.Run("db error", func(t *testing.T) {
		repo, mock, _ := newSessionRepoWithMock(t, 5)
		mock.ExpectExec(`DELETE FROM refresh_sessions`).WillReturnError(errors.New("db err"))

		_, err := repo.DeleteByRefreshToken(context.Background(), token)
		assert.Error(t, err)
	})
}

func TestSessionRepository_UpdateRefreshToken(t *testing.T) {
	query := regexp.QuoteMeta(`UPDATE refresh_sessions SET refresh_token = $1, created_at = $2 WHERE id = $3 AND refresh_token = $4`)
	oldToken, newToken := uuid.New(), uuid.New()
	at := time.Now().UTC()

	t.Run("rotated", func(t *testing.T) {
		repo, mock, _ := newSessionRepoWithMock(t, 5)
		mock.ExpectExec(query).WithArgs(newToken, at, int64(9), oldToken).WillReturnResult(sqlmock.NewResult(0, 1))

		n, err := repo.UpdateRefreshToken(context.Background(), 9, oldToken, newToken, at)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})

	t.Run("stale token matches nothing", func(t *testing.T) {
		repo, mock, _ := newSessionRepoWithMock(t, 5)
		mock.ExpectExec(query).WithArgs(newToken, at, int64(9), oldToken).WillReturnResult(sqlmock.NewResult(0, 0))

		n, err := repo.UpdateRefreshToken(context.Background(), 9, oldToken, newToken, at)
		require.NoError(t, err)
		assert.Equal(t, int64(0), n)
	})
}

func TestPostgresSessionStore_WithinTx(t *testing.T) {
	token := uuid.New()
	deleteQuery := regexp.QuoteMeta(`DELETE FROM refresh_sessions WHERE refresh_token = $1`)

	t.Run("commits on success", func(t *testing.T) {
		database, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer database.Close()

		mock.ExpectBegin()
		mock.ExpectExec(deleteQuery).WithArgs(token).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		store := NewPostgresSessionStore(database, 5)
		err = store.WithinTx(context.Background(), func(ctx context.Context, repo ISessionRepository) error {
			_, err := repo.DeleteByRefreshToken(ctx, token)
			return err
		})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back on error", func(t *testing.T) {
		database, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer database.Close()

		mock.ExpectBegin()
		mock.ExpectExec(deleteQuery).WithArgs(token).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectRollback()

		store := NewPostgresSessionStore(database, 5)
		boom := errors.New("mint failed")
		err = store.WithinTx(context.Background(), func(ctx context.Context, repo ISessionRepository) error {
			if _, err := repo.DeleteByRefreshToken(ctx, token); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
