package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis"
	"github.com/google/uuid"
)

var ErrNoSession = errors.New("auth: no session")

// SessionStore holds server-side sessions. A session maps an opaque id to
// a user id until it expires or is destroyed.
type SessionStore interface {
	Create(ctx context.Context, userID int) (string, error)
	UserID(ctx context.Context, sid string) (int, error)
	Destroy(ctx context.Context, sid string) error
}

type RedisSessions struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisSessions(rdb *redis.Client, ttl time.Duration) *RedisSessions {
	return &RedisSessions{rdb: rdb, ttl: ttl}
}

func sessionKey(sid string) string {
	return "sess:" + sid
}

func (s *RedisSessions) Create(ctx context.Context, userID int) (string, error) {
	sid := uuid.NewString()
	if err := s.rdb.WithContext(ctx).Set(sessionKey(sid), strconv.Itoa(userID), s.ttl).Err(); err != nil {
		return "", fmt.Errorf("creating session: %w", err)
	}
	return sid, nil
}

func (s *RedisSessions) UserID(ctx context.Context, sid string) (int, error) {
	id, err := s.rdb.WithContext(ctx).Get(sessionKey(sid)).Int()
	if err == redis.Nil {
		return 0, ErrNoSession
	}
	if err != nil {
		return 0, fmt.Errorf("reading session: %w", err)
	}
	return id, nil
}

func (s *RedisSessions) Destroy(ctx context.Context, sid string) error {
	return s.rdb.WithContext(ctx).Del(sessionKey(sid)).Err()
}
