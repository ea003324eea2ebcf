package redis

// Package redis provides Redis-based adapters for the CLIKA admin system.

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	domainauth "github.com/clika/admin-api/internal/domain/auth"
	apperrors "github.com/clika/admin-api/internal/errors"
)

// DefaultBundleTTL bounds how long a persisted token bundle survives without
// being refreshed. The refresh token outlives the access token, so the TTL
// tracks the refresh window, not Session.ExpiresAt.
const DefaultBundleTTL = 30 * 24 * time.Hour

// TokenStore persists the auth backend's token bundle in Redis so a restart
// can restore the session. One store instance holds one bundle, keyed by the
// installation name.
type TokenStore struct {
	client redis.UniversalClient
	key    string
	ttl    time.Duration
}

// NewTokenStore creates a token store for the named installation.
func NewTokenStore(client redis.UniversalClient, name string) *TokenStore {
	return &TokenStore{
		client: client,
		key:    "clika:tokens:" + name,
		ttl:    DefaultBundleTTL,
	}
}

// NewTokenStoreWithTTL creates a token store with a custom bundle TTL.
func NewTokenStoreWithTTL(client redis.UniversalClient, name string, ttl time.Duration) *TokenStore {
	s := NewTokenStore(client, name)
	if ttl > 0 {
		s.ttl = ttl
	}
	return s
}

func (s *TokenStore) Save(ctx context.Context, sess domainauth.Session) error {
	if sess.AccessToken == "" {
		return apperrors.Validation("access token cannot be empty")
	}

	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal token bundle: %w", err)
	}

	if err := s.client.Set(ctx, s.key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (s *TokenStore) Load(ctx context.Context) (domainauth.Session, error) {
	data, err := s.client.Get(ctx, s.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domainauth.Session{}, apperrors.NotFound("no token bundle persisted")
		}
		return domainauth.Session{}, fmt.Errorf("redis get: %w", err)
	}

	var sess domainauth.Session
	if unmarshalErr := json.Unmarshal([]byte(data), &sess); unmarshalErr != nil {
		return domainauth.Session{}, fmt.Errorf("unmarshal token bundle: %w", unmarshalErr)
	}

	// An expired access token is still restorable through the refresh token,
	// but a bundle with no refresh token and a dead access token is useless.
	if sess.RefreshToken == "" && sess.Expired() {
		if deleteErr := s.Delete(ctx); deleteErr != nil {
			return domainauth.Session{}, fmt.Errorf("cleanup dead bundle: %w", deleteErr)
		}
		return domainauth.Session{}, apperrors.NotFound("persisted token bundle expired")
	}

	return sess, nil
}

func (s *TokenStore) Delete(ctx context.Context) error {
	return s.client.Del(ctx, s.key).Err()
}
