package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	red "github.com/redis/go-redis/v9"

	"github.com/Anas43xq/EmployeeManagementSystem-sub000/internal/core/port"
	"github.com/Anas43xq/EmployeeManagementSystem-sub000/internal/repository"
)

const (
	defaultNamespace = "hrms"
	scanBatchSize    = 200
)

// KeyValueStore persists local session state under a namespace in Redis.
type KeyValueStore struct {
	client *red.Client
	prefix string
}

var _ port.KeyValueStore = (*KeyValueStore)(nil)

// NewKeyValueStore constructs a namespaced store. Keys are written as "<namespace>:<key>".
func NewKeyValueStore(client *red.Client, namespace string) *KeyValueStore {
	prefix := strings.TrimSpace(namespace)
	if prefix == "" {
		prefix = defaultNamespace
	}
	return &KeyValueStore{client: client, prefix: prefix}
}

// Get returns the stored value, or repository.ErrNotFound on a miss.
func (s *KeyValueStore) Get(ctx context.Context, key string) (string, error) {
	fullKey := s.key(key)
	if fullKey == "" {
		return "", repository.ErrInvalidKey
	}

	value, err := s.client.Get(ctx, fullKey).Result()
	if err != nil {
		if errors.Is(err, red.Nil) {
			return "", repository.ErrNotFound
		}
		return "", fmt.Errorf("redis get %s: %w", key, err)
	}
	return value, nil
}

// Set stores value without expiry.
func (s *KeyValueStore) Set(ctx context.Context, key string, value string) error {
	fullKey := s.key(key)
	if fullKey == "" {
		return repository.ErrInvalidKey
	}
	if err := s.client.Set(ctx, fullKey, value, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Delete removes the supplied keys. Missing keys are ignored.
func (s *KeyValueStore) Delete(ctx context.Context, keys ...string) error {
	fullKeys := make([]string, 0, len(keys))
	for _, key := range keys {
		if fullKey := s.key(key); fullKey != "" {
			fullKeys = append(fullKeys, fullKey)
		}
	}
	if len(fullKeys) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, fullKeys...).Err(); err != nil {
		return fmt.Errorf("redis delete: %w", err)
	}
	return nil
}

// DeletePrefix scans and removes every key under prefix within the namespace.
func (s *KeyValueStore) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	if strings.TrimSpace(prefix) == "" {
		return 0, repository.ErrInvalidKey
	}

	pattern := s.prefix + ":" + escapeGlob(prefix) + "*"
	removed := 0

	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, pattern, scanBatchSize).Result()
		if err != nil {
			return removed, fmt.Errorf("redis scan %s: %w", prefix, err)
		}
		if len(keys) > 0 {
			n, err := s.client.Del(ctx, keys...).Result()
			if err != nil {
				return removed, fmt.Errorf("redis delete prefix %s: %w", prefix, err)
			}
			removed += int(n)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}

	return removed, nil
}

// Ping checks connectivity for readiness probes.
func (s *KeyValueStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *KeyValueStore) key(key string) string {
	trimmed := strings.TrimSpace(key)
	if trimmed == "" {
		return ""
	}
	return fmt.Sprintf("%s:%s", s.prefix, trimmed)
}

var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

func escapeGlob(value string) string {
	return globEscaper.Replace(value)
}
