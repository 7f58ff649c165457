package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"task_service/internal/storage"

	"github.com/redis/go-redis/v9"
)

// CodeStore keeps one-time 2FA codes keyed by recipient email. The
// "2fa:" prefix separates them from unrelated data in the same
// database. Expiry is handled by redis, there is no cleanup job.
type CodeStore struct {
	client *redis.Client
}

func New(ctx context.Context, addr, pass string, db int) (*CodeStore, error) {
	const op = "storage.redis.New"

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     pass,
		DB:           db,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &CodeStore{
		client: client,
	}, nil
}

// SetCode stores the code for the email, overwriting any previous one.
func (s *CodeStore) SetCode(ctx context.Context, email, code string, ttl time.Duration) error {
	const op = "storage.redis.SetCode"

	err := s.client.Set(ctx, codeKey(email), code, ttl).Err()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// Code returns the stored code or storage.ErrCodeNotFound if it is
// absent or already expired.
func (s *CodeStore) Code(ctx context.Context, email string) (string, error) {
	const op = "storage.redis.Code"

	code, err := s.client.Get(ctx, codeKey(email)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", storage.ErrCodeNotFound
		}

		return "", fmt.Errorf("%s: %w", op, err)
	}

	return code, nil
}

// DeleteCode removes the code. Deleting an absent key is a no-op.
func (s *CodeStore) DeleteCode(ctx context.Context, email string) error {
	const op = "storage.redis.DeleteCode"

	err := s.client.Del(ctx, codeKey(email)).Err()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *CodeStore) Close() {
	s.client.Close()
}

func codeKey(email string) string {
	return fmt.Sprintf("2fa:%s", email)
}
