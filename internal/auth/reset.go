package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidResetToken = errors.New("auth: invalid or expired reset token")

// ResetTokens issues single-use password reset tokens. Only a hash of the
// token is stored, and issuing a new token replaces the previous one.
type ResetTokens interface {
	Issue(ctx context.Context, userID int) (string, error)
	Verify(ctx context.Context, userID int, token string) error
	Revoke(ctx context.Context, userID int) error
}

type RedisResetTokens struct {
	rdb  *redis.Client
	ttl  time.Duration
	cost int
}

func NewRedisResetTokens(rdb *redis.Client, ttl time.Duration) *RedisResetTokens {
	return &RedisResetTokens{rdb: rdb, ttl: ttl, cost: bcrypt.DefaultCost}
}

func resetKey(userID int) string {
	return "forgot-password:" + strconv.Itoa(userID)
}

func (r *RedisResetTokens) Issue(ctx context.Context, userID int) (string, error) {
	token := uuid.NewString()
	hash, err := bcrypt.GenerateFromPassword([]byte(token), r.cost)
	if err != nil {
		return "", fmt.Errorf("hashing reset token: %w", err)
	}
	if err := r.rdb.WithContext(ctx).Set(resetKey(userID), hash, r.ttl).Err(); err != nil {
		return "", fmt.Errorf("storing reset token: %w", err)
	}
	return token, nil
}

func (r *RedisResetTokens) Verify(ctx context.Context, userID int, token string) error {
	hash, err := r.rdb.WithContext(ctx).Get(resetKey(userID)).Bytes()
	if err == redis.Nil {
		return ErrInvalidResetToken
	}
	if err != nil {
		return fmt.Errorf("reading reset token: %w", err)
	}
	if bcrypt.CompareHashAndPassword(hash, []byte(token)) != nil {
		return ErrInvalidResetToken
	}
	return nil
}

func (r *RedisResetTokens) Revoke(ctx context.Context, userID int) error {
	return r.rdb.WithContext(ctx).Del(resetKey(userID)).Err()
}
