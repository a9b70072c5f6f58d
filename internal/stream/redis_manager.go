package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/deepresearch-go/pipeline/internal/types"
	"github.com/deepresearch-go/pipeline/internal/types/interfaces"
	"github.com/redis/go-redis/v9"
)

// redisStreamInfo is the JSON shape persisted per in-flight stream.
type redisStreamInfo struct {
	SessionID           string               `json:"session_id"`
	RequestID           string               `json:"request_id"`
	Query               string               `json:"query"`
	Content             string               `json:"content"`
	KnowledgeReferences []types.RetrieveItem `json:"knowledge_references"`
	LastUpdated         time.Time            `json:"last_updated"`
	IsCompleted         bool                 `json:"is_completed"`
}

// RedisStreamManager is the cross-replica StreamManager: any replica can
// serve GET /chat/sessions/:session_id/stream/:request_id for a session
// started on another one, since
// state lives in Redis rather than process memory.
type RedisStreamManager struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

func NewRedisStreamManager(redisAddr, redisPassword string,
	redisDB int, prefix string, ttl time.Duration,
) (*RedisStreamManager, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		Password: redisPassword,
		DB:       redisDB,
	})

	if _, err := client.Ping(context.Background()).Result(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	if ttl == 0 {
		ttl = 24 * time.Hour
	}
	if prefix == "" {
		prefix = "stream:"
	}

	return &RedisStreamManager{client: client, ttl: ttl, prefix: prefix}, nil
}

func (r *RedisStreamManager) buildKey(sessionID, requestID string) string {
	return fmt.Sprintf("%s:%s:%s", r.prefix, sessionID, requestID)
}

func (r *RedisStreamManager) RegisterStream(ctx context.Context, sessionID, requestID, query string) error {
	info := &redisStreamInfo{
		SessionID:   sessionID,
		RequestID:   requestID,
		Query:       query,
		LastUpdated: time.Now(),
	}

	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("marshal stream info: %w", err)
	}

	key := r.buildKey(sessionID, requestID)
	return r.client.Set(ctx, key, data, r.ttl).Err()
}

func (r *RedisStreamManager) UpdateStream(ctx context.Context, sessionID, requestID string, content string, references []types.RetrieveItem) error {
	key := r.buildKey(sessionID, requestID)

	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil
		}
		return fmt.Errorf("get stream data: %w", err)
	}

	var info redisStreamInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return fmt.Errorf("unmarshal stream data: %w", err)
	}

	info.Content += content
	if len(references) > 0 {
		info.KnowledgeReferences = references
	}
	info.LastUpdated = time.Now()

	updatedData, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("marshal updated stream info: %w", err)
	}

	return r.client.Set(ctx, key, updatedData, r.ttl).Err()
}

func (r *RedisStreamManager) CompleteStream(ctx context.Context, sessionID, requestID string) error {
	key := r.buildKey(sessionID, requestID)

	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil
		}
		return fmt.Errorf("get stream data: %w", err)
	}

	var info redisStreamInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return fmt.Errorf("unmarshal stream data: %w", err)
	}

	info.IsCompleted = true
	info.LastUpdated = time.Now()

	updatedData, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("marshal updated stream info: %w", err)
	}

	// Evict the key 30s after completion to give a disconnected client
	// time to reconnect and read the final state.
	go func() {
		time.Sleep(30 * time.Second)
		r.client.Del(context.Background(), key)
	}()
	return r.client.Set(ctx, key, updatedData, r.ttl).Err()
}

func (r *RedisStreamManager) GetStream(ctx context.Context, sessionID, requestID string) (*interfaces.StreamInfo, error) {
	key := r.buildKey(sessionID, requestID)

	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("get stream data: %w", err)
	}

	var info redisStreamInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("unmarshal stream data: %w", err)
	}

	return &interfaces.StreamInfo{
		SessionID:           info.SessionID,
		RequestID:           info.RequestID,
		Query:               info.Query,
		Content:             info.Content,
		KnowledgeReferences: info.KnowledgeReferences,
		LastUpdated:         info.LastUpdated,
		IsCompleted:         info.IsCompleted,
	}, nil
}

func (r *RedisStreamManager) Close() error {
	return r.client.Close()
}

var _ interfaces.StreamManager = (*RedisStreamManager)(nil)
