package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/barekit/agrilab/pkg/llm"
	"github.com/redis/go-redis/v9"
)

// RedisStore implements transcript.Store using Redis.
type RedisStore struct {
	client *redis.Client
}

// New creates a new RedisStore.
func New(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func key(sessionID string) string {
	return fmt.Sprintf("transcript:%s", sessionID)
}

// Append adds a turn to the session's transcript.
// Turns are stored as a JSON list under "transcript:{sessionID}".
func (s *RedisStore) Append(ctx context.Context, sessionID string, msg llm.Message) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal turn: %w", err)
	}

	return s.client.RPush(ctx, key(sessionID), b).Err()
}

// Load returns the session's transcript.
func (s *RedisStore) Load(ctx context.Context, sessionID string) ([]llm.Message, error) {
	result, err := s.client.LRange(ctx, key(sessionID), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	messages := make([]llm.Message, len(result))
	for i, item := range result {
		var msg llm.Message
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal turn at index %d: %w", i, err)
		}
		messages[i] = msg
	}

	return messages, nil
}

// Reset discards the session's transcript.
func (s *RedisStore) Reset(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, key(sessionID)).Err()
}
