package repository

import (
	"context"
	"database/sql"
	"errors"
	"go-auth-service/db"
	"go-auth-service/logger"
	"go-auth-service/model"

	"github.com/google/uuid"
)

// IUserRepository is the read-only user lookup the token core depends on.
type IUserRepository interface {
	FindByLogin(ctx context.Context, login string) (*model.User, error)
	FindByID(ctx context.Context, userID uuid.UUID) (*model.User, error)
}

type UserRepository struct {
	DB db.DBTX
}

func NewUserRepository(database db.DBTX) *UserRepository {
	return &UserRepository{DB: database}
}

const selectUserColumns = `SELECT user_id, login, pass_hash, role, display_name FROM users`

// FindByLogin returns ErrNotFound when no user has the given login.
func (r *UserRepository) FindByLogin(ctx context.Context, login string) (*model.User, error) {
	return r.findOne(ctx, selectUserColumns+` WHERE login = $1`, login)
}

// FindByID returns ErrNotFound when the user does not exist.
func (r *UserRepository) FindByID(ctx context.Context, userID uuid.UUID) (*model.User, error) {
	return r.findOne(ctx, selectUserColumns+` WHERE user_id = $1`, userID)
}

func (r *UserRepository) findOne(ctx context.Context, query string, arg any) (*model.User, error) {
	user := &model.User{}
	var role string
	err := r.DB.QueryRowContext(ctx, query, arg).Scan(&user.ID, &user.Login, &user.PasswordHash, &role, &user.DisplayName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		logger.Log.WithError(err).Error("Failed to execute user lookup query")
		return nil, err
	}
	user.Role = model.Role(role)
	return user, nil
}

// CreateUser inserts a user row. The token core never calls it; it exists for
// seeding and tests.
func (r *UserRepository) CreateUser(ctx context.Context, user *model.User) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	if user.Role == "" {
		user.Role = model.RoleReader
	}
	query := `INSERT INTO users (user_id, login, pass_hash, role, display_name) VALUES ($1, $2, $3, $4, $5)`
	_, err := r.DB.ExecContext(ctx, query, user.ID, user.Login, user.PasswordHash, string(user.Role), user.DisplayName)
	if err != nil {
		logger.Log.WithError(err).WithField("login", user.Login).Error("Failed to execute create user query")
		return err
	}
	return nil
}
