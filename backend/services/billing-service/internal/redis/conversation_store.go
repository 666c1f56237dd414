package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Conversation maps a voice conversation to the attempt and student it bills.
type Conversation struct {
	ConversationID string `json:"conversation_id"`
	AttemptID      string `json:"attempt_id"`
	StudentID      string `json:"student_id"`
}

// Store caches conversation lookups for the per-minute webhook.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStore returns redis-backed store.
func NewStore(client *redis.Client, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl}
}

func (s *Store) key(conversationID string) string {
	return fmt.Sprintf("billing:conversation:%s", conversationID)
}

// Save caches conversation.
func (s *Store) Save(ctx context.Context, c Conversation) error {
	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(c.ConversationID), data, s.ttl).Err()
}

// Get returns cached conversation or redis.Nil.
func (s *Store) Get(ctx context.Context, conversationID string) (*Conversation, error) {
	result, err := s.client.Get(ctx, s.key(conversationID)).Result()
	if err != nil {
		return nil, err
	}
	var c Conversation
	if err := json.Unmarshal([]byte(result), &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// Delete removes cached conversation.
func (s *Store) Delete(ctx context.Context, conversationID string) error {
	return s.client.Del(ctx, s.key(conversationID)).Err()
}

// Ping checks redis reachability.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
