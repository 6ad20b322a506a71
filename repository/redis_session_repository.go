// file: repository/redis_session_repository.go

package repository

import (
	"context"
	"errors"
	"fmt"
	"go-auth-service/logger"
	"go-auth-service/model"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// ErrDuplicateRefreshToken is returned when an insert reuses a live token.
var ErrDuplicateRefreshToken = errors.New("refresh token already exists")

// Each session lives in a hash keyed by its token; a per-user sorted set
// (scored by creation time) indexes the user's tokens. Every operation is a
// single Lua script, so it is atomic with respect to other clients. The
// scripts derive some keys from ARGV and are not Redis Cluster safe.

// insertSessionScript returns {id, evicted}; id is -1 when the limit is
// reached and -2 when the token is already taken.
const insertSessionScript = `
if redis.call("EXISTS", KEYS[1]) == 1 then
  return {-2, 0}
end
local now = tonumber(ARGV[4])
for _, t in ipairs(redis.call("ZRANGE", KEYS[2], 0, -1)) do
  local f = redis.call("HMGET", ARGV[6] .. t, "created_at", "expires_in")
  if not f[1] or not f[2] or tonumber(f[1]) + tonumber(f[2]) * 1000000 < now then
    redis.call("DEL", ARGV[6] .. t)
    redis.call("ZREM", KEYS[2], t)
  end
end
local max = tonumber(ARGV[1])
local evicted = 0
if redis.call("ZCARD", KEYS[2]) >= max then
  if ARGV[7] ~= "1" or max < 1 then
    return {-1, 0}
  end
  while redis.call("ZCARD", KEYS[2]) >= max do
    local oldest = redis.call("ZPOPMIN", KEYS[2])
    redis.call("DEL", ARGV[6] .. oldest[1])
    evicted = evicted + 1
  end
end
local id = redis.call("INCR", KEYS[3])
redis.call("HSET", KEYS[1], "id", id, "user_id", ARGV[3], "created_at", ARGV[4], "expires_in", ARGV[5])
redis.call("ZADD", KEYS[2], ARGV[4], ARGV[2])
return {id, evicted}
`

const rotateSessionScript = `
local id = redis.call("HGET", KEYS[1], "id")
if not id or id ~= ARGV[1] then
  return 0
end
if redis.call("EXISTS", KEYS[2]) == 1 then
  return 0
end
local user = redis.call("HGET", KEYS[1], "user_id")
local expires = redis.call("HGET", KEYS[1], "expires_in")
redis.call("DEL", KEYS[1])
redis.call("HSET", KEYS[2], "id", id, "user_id", user, "created_at", ARGV[4], "expires_in", expires)
local userKey = ARGV[5] .. user
redis.call("ZREM", userKey, ARGV[2])
redis.call("ZADD", userKey, ARGV[4], ARGV[3])
return 1
`

const deleteSessionScript = `
local user = redis.call("HGET", KEYS[1], "user_id")
if not user then
  return 0
end
redis.call("DEL", KEYS[1])
redis.call("ZREM", ARGV[1] .. user, ARGV[2])
return 1
`

const deleteUserSessionsScript = `
local tokens = redis.call("ZRANGE", KEYS[1], 0, -1)
for _, t in ipairs(tokens) do
  redis.call("DEL", ARGV[1] .. t)
end
redis.call("DEL", KEYS[1])
return #tokens
`

var (
	insertSessionLua      = redis.NewScript(insertSessionScript)
	rotateSessionLua      = redis.NewScript(rotateSessionScript)
	deleteSessionLua      = redis.NewScript(deleteSessionScript)
	deleteUserSessionsLua = redis.NewScript(deleteUserSessionsScript)
)

// RedisSessionRepository implements both ISessionRepository and SessionStore.
type RedisSessionRepository struct {
	redis     redis.UniversalClient
	prefix    string
	maxTokens int
}

// NewRedisSessionRepository creates a Redis-backed session store. prefix
// namespaces all keys.
func NewRedisSessionRepository(client redis.UniversalClient, prefix string, maxTokens int) *RedisSessionRepository {
	return &RedisSessionRepository{redis: client, prefix: prefix, maxTokens: maxTokens}
}

func (r *RedisSessionRepository) tokenKeyPrefix() string { return r.prefix + ":rs:" }
func (r *RedisSessionRepository) userKeyPrefix() string  { return r.prefix + ":ru:" }

func (r *RedisSessionRepository) tokenKey(token uuid.UUID) string {
	return r.tokenKeyPrefix() + token.String()
}

func (r *RedisSessionRepository) userKey(userID uuid.UUID) string {
	return r.userKeyPrefix() + userID.String()
}

func (r *RedisSessionRepository) seqKey() string { return r.prefix + ":rs-seq" }

// WithinTx runs fn directly: every repository call is already atomic.
func (r *RedisSessionRepository) WithinTx(ctx context.Context, fn func(ctx context.Context, repo ISessionRepository) error) error {
	return fn(ctx, r)
}

func (r *RedisSessionRepository) Insert(ctx context.Context, session *model.RefreshSession) error {
	_, err := r.insert(ctx, session, false)
	return err
}

func (r *RedisSessionRepository) InsertEvictingOldest(ctx context.Context, session *model.RefreshSession) (int64, error) {
	return r.insert(ctx, session, true)
}

func (r *RedisSessionRepository) insert(ctx context.Context, session *model.RefreshSession, evict bool) (int64, error) {
	log := logger.Log.WithFields(logrus.Fields{
		"user_id":    session.UserID,
		"expires_in": session.ExpiresIn,
	})

	evictFlag := "0"
	if evict {
		evictFlag = "1"
	}
	keys := []string{r.tokenKey(session.RefreshToken), r.userKey(session.UserID), r.seqKey()}
	res, err := insertSessionLua.Run(ctx, r.redis, keys,
		r.maxTokens,
		session.RefreshToken.String(),
		session.UserID.String(),
		session.CreatedAt.UnixMicro(),
		session.ExpiresIn,
		r.tokenKeyPrefix(),
		evictFlag,
	).Int64Slice()
	if err != nil {
		log.WithError(err).Error("Failed to run insert refresh session script")
		return 0, err
	}
	if len(res) != 2 {
		return 0, fmt.Errorf("unexpected insert refresh session reply: %v", res)
	}

	switch id := res[0]; id {
	case -1:
		log.WithField("max_tokens", r.maxTokens).Warn("Refresh session limit reached")
		return 0, ErrSessionLimitReached
	case -2:
		return 0, ErrDuplicateRefreshToken
	default:
		session.ID = id
	}
	session.CreatedAt = time.UnixMicro(session.CreatedAt.UnixMicro()).UTC()
	return res[1], nil
}

func (r *RedisSessionRepository) FindByRefreshToken(ctx context.Context, token uuid.UUID) (*model.RefreshSession, error) {
	fields, err := r.redis.HGetAll(ctx, r.tokenKey(token)).Result()
	if err != nil {
		logger.Log.WithError(err).Error("Failed to read refresh session")
		return nil, err
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	return decodeSession(token, fields)
}

func (r *RedisSessionRepository) FindAllByUser(ctx context.Context, userID uuid.UUID) ([]*model.RefreshSession, error) {
	log := logger.Log.WithField("user_id", userID)

	members, err := r.redis.ZRange(ctx, r.userKey(userID), 0, -1).Result()
	if err != nil {
		log.WithError(err).Error("Failed to list refresh sessions for user")
		return nil, err
	}

	cmds := make([]*redis.MapStringStringCmd, len(members))
	_, err = r.redis.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, m := range members {
			cmds[i] = pipe.HGetAll(ctx, r.tokenKeyPrefix()+m)
		}
		return nil
	})
	if err != nil {
		log.WithError(err).Error("Failed to read refresh sessions for user")
		return nil, err
	}

	sessions := make([]*model.RefreshSession, 0, len(members))
	for i, m := range members {
		fields := cmds[i].Val()
		if len(fields) == 0 {
			continue
		}
		token, err := uuid.Parse(m)
		if err != nil {
			return nil, fmt.Errorf("corrupt refresh session index entry: %w", err)
		}
		s, err := decodeSession(token, fields)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, nil
}

func (r *RedisSessionRepository) DeleteByRefreshToken(ctx context.Context, token uuid.UUID) (int64, error) {
	n, err := deleteSessionLua.Run(ctx, r.redis, []string{r.tokenKey(token)}, r.userKeyPrefix(), token.String()).Int64()
	if err != nil {
		logger.Log.WithError(err).Error("Failed to run delete refresh session script")
		return 0, err
	}
	return n, nil
}

func (r *RedisSessionRepository) DeleteAllByUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	n, err := deleteUserSessionsLua.Run(ctx, r.redis, []string{r.userKey(userID)}, r.tokenKeyPrefix()).Int64()
	if err != nil {
		logger.Log.WithError(err).WithField("user_id", userID).Error("Failed to run delete user sessions script")
		return 0, err
	}
	return n, nil
}

func (r *RedisSessionRepository) UpdateRefreshToken(ctx context.Context, id int64, oldToken, newToken uuid.UUID, createdAt time.Time) (int64, error) {
	keys := []string{r.tokenKey(oldToken), r.tokenKey(newToken)}
	n, err := rotateSessionLua.Run(ctx, r.redis, keys,
		strconv.FormatInt(id, 10),
		oldToken.String(),
		newToken.String(),
		createdAt.UnixMicro(),
		r.userKeyPrefix(),
	).Int64()
	if err != nil {
		logger.Log.WithError(err).WithField("session_id", id).Error("Failed to run rotate refresh session script")
		return 0, err
	}
	return n, nil
}

func decodeSession(token uuid.UUID, fields map[string]string) (*model.RefreshSession, error) {
	id, err := strconv.ParseInt(fields["id"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt refresh session id: %w", err)
	}
	userID, err := uuid.Parse(fields["user_id"])
	if err != nil {
		return nil, fmt.Errorf("corrupt refresh session user: %w", err)
	}
	createdAt, err := strconv.ParseInt(fields["created_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt refresh session created_at: %w", err)
	}
	expiresIn, err := strconv.ParseInt(fields["expires_in"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt refresh session expires_in: %w", err)
	}
	return &model.RefreshSession{
		ID:           id,
		RefreshToken: token,
		UserID:       userID,
		CreatedAt:    time.UnixMicro(createdAt).UTC(),
		ExpiresIn:    expiresIn,
	}, nil
}
