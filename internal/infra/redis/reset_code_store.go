package redis

import (
	"context"
	"fmt"
	"time"

	"umuhanda-backend/internal/domain"
	"umuhanda-backend/internal/domain/ports/repository"
)

var _ repository.ResetCodeStore = (*ResetCodeStore)(nil)

// ResetCodeStore keeps one password reset code per user; Redis expiry enforces the TTL.
type ResetCodeStore struct {
	client RedisClient
}

func NewResetCodeStore(client RedisClient) *ResetCodeStore {
	return &ResetCodeStore{client: client}
}

func (s *ResetCodeStore) key(userID string) string {
	return fmt.Sprintf("pwd_reset:%s", userID)
}

func (s *ResetCodeStore) failKey(userID string) string {
	return fmt.Sprintf("pwd_reset_fail:%s", userID)
}

func (s *ResetCodeStore) Put(ctx context.Context, userID, code string, ttl time.Duration) error {
	if err := s.client.Del(ctx, s.failKey(userID)); err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(userID), code, ttl)
}

func (s *ResetCodeStore) Get(ctx context.Context, userID string) (string, error) {
	val, err := s.client.Get(ctx, s.key(userID))
	if IsNil(err) {
		return "", domain.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return val, nil
}

func (s *ResetCodeStore) Delete(ctx context.Context, userID string) error {
	return s.client.Del(ctx, s.key(userID), s.failKey(userID))
}

func (s *ResetCodeStore) RecordFailure(ctx context.Context, userID string, ttl time.Duration) (int, error) {
	n, err := s.client.Incr(ctx, s.failKey(userID))
	if err != nil {
		return 0, err
	}
	if n == 1 {
		if err := s.client.Expire(ctx, s.failKey(userID), ttl); err != nil {
			return int(n), err
		}
	}
	return int(n), nil
}
