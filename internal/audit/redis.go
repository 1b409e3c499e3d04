package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/medrex/rxledger/pkg/types"
)

// StreamClient is the subset of the go-redis client used by RedisStreamSink
type StreamClient interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	Ping(ctx context.Context) *redis.StatusCmd
}

// RedisStreamSink appends audit events to a capped Redis stream so other
// services can tail them with XREAD
type RedisStreamSink struct {
	client StreamClient
	stream string
	maxLen int64
}

// NewRedisClient builds a client from connection settings and pings it
func NewRedisClient(ctx context.Context, addr, password string, db, poolSize int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
		PoolSize: poolSize,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis: ping failed: %w", err)
	}
	return client, nil
}

// NewRedisStreamSink creates a sink writing to stream. maxLen caps the
// stream approximately; zero leaves it unbounded.
func NewRedisStreamSink(client StreamClient, stream string, maxLen int64) *RedisStreamSink {
	return &RedisStreamSink{client: client, stream: stream, maxLen: maxLen}
}

// Name implements Sink
func (s *RedisStreamSink) Name() string { return "redis" }

// Write implements Sink
func (s *RedisStreamSink) Write(ctx context.Context, events []types.AuditEvent) error {
	for _, e := range events {
		payload, err := json.Marshal(e.Payload)
		if err != nil {
			return fmt.Errorf("redis: marshal payload failed: %w", err)
		}

		args := &redis.XAddArgs{
			Stream: s.stream,
			Values: map[string]interface{}{
				"id":        e.ID,
				"sequence":  strconv.FormatUint(e.Sequence, 10),
				"name":      string(e.Name),
				"actor":     string(e.Actor),
				"subject":   e.Subject,
				"timestamp": e.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z07:00"),
				"payload":   string(payload),
			},
		}
		if s.maxLen > 0 {
			args.MaxLen = s.maxLen
			args.Approx = true
		}

		if err := s.client.XAdd(ctx, args).Err(); err != nil {
			return fmt.Errorf("redis: xadd failed: %w", err)
		}
	}
	return nil
}

// Ping checks the Redis connection
func (s *RedisStreamSink) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
