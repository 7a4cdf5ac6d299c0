package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"videoclient/internal/domain"
)

const redisKeyPrefix = "videogen:session:"

// Redis keeps the session JSON under one key. A zero ttl keeps it forever.
type Redis struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRedis returns a store for the session called name.
func NewRedis(client *redis.Client, name string, ttl time.Duration) (*Redis, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("session: name is required")
	}
	return &Redis{client: client, key: RedisKey(name), ttl: ttl}, nil
}

// RedisKey returns the key holding the named session.
func RedisKey(name string) string {
	return redisKeyPrefix + name
}

func (r *Redis) Get(ctx context.Context) (*domain.Credentials, error) {
	raw, err := r.client.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session: redis get: %w", err)
	}
	var creds domain.Credentials
	if err := json.Unmarshal(raw, &creds); err != nil {
		return nil, fmt.Errorf("session: decode redis value: %w", err)
	}
	// A half pair is no session.
	if creds.Validate() != nil {
		return nil, nil
	}
	return &creds, nil
}

func (r *Redis) Set(ctx context.Context, creds domain.Credentials) error {
	if err := creds.Validate(); err != nil {
		return err
	}
	raw, err := json.Marshal(creds)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.key, raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("session: redis set: %w", err)
	}
	return nil
}

func (r *Redis) Clear(ctx context.Context) error {
	if err := r.client.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("session: redis del: %w", err)
	}
	return nil
}

var _ domain.CredentialStore = (*Redis)(nil)
