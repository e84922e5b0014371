package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/castmind/castmind/internal/pipeline"
)

const historyTTL = 24 * time.Hour

// RedisStore keeps each conversation's collaboration turns in a capped
// Redis list so history survives process restarts.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to Redis at addr and verifies the connection.
func NewRedisStore(ctx context.Context, addr string) (*RedisStore, error) {
	if strings.TrimSpace(addr) == "" {
		return nil, errors.New("redis address is empty")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func historyKey(conversationID string) string {
	return "collab:history:" + conversationID
}

func (s *RedisStore) Recent(ctx context.Context, conversationID string, n int) ([]pipeline.CollabTurn, error) {
	if n <= 0 {
		n = historyCap
	}

	raw, err := s.client.LRange(ctx, historyKey(conversationID), 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("read collaboration history: %w", err)
	}

	// list is newest-first; return oldest-first
	turns := make([]pipeline.CollabTurn, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		var turn pipeline.CollabTurn
		if err := json.Unmarshal([]byte(raw[i]), &turn); err != nil {
			continue
		}
		turns = append(turns, turn)
	}

	return turns, nil
}

func (s *RedisStore) Append(ctx context.Context, conversationID string, turns []pipeline.CollabTurn) error {
	if len(turns) == 0 {
		return nil
	}

	key := historyKey(conversationID)
	pipe := s.client.TxPipeline()
	for _, turn := range turns {
		payload, err := json.Marshal(turn)
		if err != nil {
			return fmt.Errorf("encode collaboration turn: %w", err)
		}
		pipe.LPush(ctx, key, payload)
	}
	pipe.LTrim(ctx, key, 0, historyCap-1)
	pipe.Expire(ctx, key, historyTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append collaboration history: %w", err)
	}

	return nil
}
