package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/ec-storefront/internal/domain/user"
	goredis "github.com/redis/go-redis/v9"
)

const resetKeyPrefix = "storefront:password-reset:"

// TokenStore keeps password reset tokens in Redis. The key expiry is the
// token lifetime and GETDEL makes each token single use.
type TokenStore struct {
	client goredis.Cmdable
}

func NewTokenStore(client goredis.Cmdable) *TokenStore {
	return &TokenStore{client: client}
}

// Connect parses a redis:// URL and pings the server
func Connect(ctx context.Context, redisURL string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	client := goredis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

func (s *TokenStore) Save(ctx context.Context, token, userID string, ttl time.Duration) error {
	return s.client.Set(ctx, resetKey(token), userID, ttl).Err()
}

func (s *TokenStore) Consume(ctx context.Context, token string) (string, error) {
	userID, err := s.client.GetDel(ctx, resetKey(token)).Result()
	if errors.Is(err, goredis.Nil) {
		return "", user.ErrResetTokenInvalid
	}
	if err != nil {
		return "", fmt.Errorf("failed to consume reset token: %w", err)
	}
	return userID, nil
}

func resetKey(token string) string {
	return resetKeyPrefix + token
}
