package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// TokenStore keeps bearer sessions in Redis. Only a keyed digest of the token
// is used as the key, so a Redis dump cannot be replayed as credentials.
type TokenStore struct {
	client *redis.Client
	ttl    time.Duration
	secret []byte
	now    func() time.Time
}

// NewTokenStore constructs a TokenStore.
func NewTokenStore(client *redis.Client, secret string, ttl time.Duration) *TokenStore {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &TokenStore{client: client, ttl: ttl, secret: []byte(secret), now: time.Now}
}

// TTL returns the lifetime of issued tokens.
func (s *TokenStore) TTL() time.Duration {
	return s.ttl
}

// Issue creates a new token for p.
func (s *TokenStore) Issue(ctx context.Context, p Principal) (Session, error) {
	token := uuid.NewString()
	payload, err := json.Marshal(p)
	if err != nil {
		return Session{}, err
	}
	if err := s.client.Set(ctx, s.redisKey(token), payload, s.ttl).Err(); err != nil {
		return Session{}, err
	}
	return Session{Token: token, ExpiresAt: s.now().Add(s.ttl).UTC(), Principal: p}, nil
}

// Lookup resolves token into its principal.
func (s *TokenStore) Lookup(ctx context.Context, token string) (Principal, error) {
	if _, err := uuid.Parse(token); err != nil {
		return Principal{}, ErrTokenInvalid
	}
	payload, err := s.client.Get(ctx, s.redisKey(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Principal{}, ErrTokenInvalid
		}
		return Principal{}, err
	}
	var p Principal
	if err := json.Unmarshal(payload, &p); err != nil {
		return Principal{}, err
	}
	return p, nil
}

// Revoke deletes token. Revoking an unknown token is not an error.
func (s *TokenStore) Revoke(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, s.redisKey(token)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	return nil
}

func (s *TokenStore) redisKey(token string) string {
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(token))
	return "auth:token:" + hex.EncodeToString(mac.Sum(nil))
}
