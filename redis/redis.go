package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/messagely/message-api/api"
	"github.com/redis/go-redis/v9"
)

// Redis provides caching in Redis.
type Redis struct {
	cli *redis.Client
	ttl time.Duration
}

// Options configure the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
	// TTL bounds how long a cached message lives. Zero means DefaultTTL.
	TTL time.Duration
}

// DefaultTTL is the lifetime of a cached message when Options.TTL is zero.
const DefaultTTL = time.Hour

// Connect connects to the Redis server and pings the server to ensure the
// connection is working.
func Connect(ctx context.Context, opts Options) (*Redis, error) {
	cli := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := cli.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{
		cli: cli,
		ttl: ttl,
	}, nil
}

// Close closes the client.
func (r *Redis) Close() error {
	return r.cli.Close()
}

const (
	messagePrefix = "messages"
	maxSize       = 100
	maxTxRetries  = 3
)

func messageKey(id string) string {
	return fmt.Sprintf("%s:%s", messagePrefix, id)
}

// GetMessage retrieves a message from Redis by its ID.
func (r *Redis) GetMessage(ctx context.Context, id string) (*api.Message, error) {
	var m message
	if err := r.cli.HGetAll(ctx, messageKey(id)).Scan(&m); err != nil {
		return nil, fmt.Errorf("redis get message: %w", err)
	}
	if m.ID == "" {
		return nil, api.ErrMessageNotFoundInCache
	}

	msg, err := m.APIMessage()
	if err != nil {
		return nil, fmt.Errorf("redis get message: %w", err)
	}
	return &msg, nil
}

// InsertMessage adds the message to Redis with messages:MESSAGE_ID as the key
// and adds the key to a sorted set scored by the time it was sent. The key
// expires after the configured TTL.
//
// A message is only ever marked read once, so an unread copy never replaces
// the read_at of a copy already cached.
func (r *Redis) InsertMessage(ctx context.Context, msg api.Message) error {
	m, err := toRedisMessage(msg)
	if err != nil {
		return err
	}
	key := messageKey(m.ID)
	insert := func(tx *redis.Tx) error {
		if m.ReadAt == "" {
			readAt, err := tx.HGet(ctx, key, "read_at").Result()
			if err != nil && !errors.Is(err, redis.Nil) {
				return fmt.Errorf("hget read_at: %w", err)
			}
			m.ReadAt = readAt
		}
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			pipe.HSet(ctx, key, m)
			pipe.Expire(ctx, key, r.ttl)
			pipe.ZAdd(ctx, messagePrefix, redis.Z{
				Score:  float64(msg.SentAt.UnixNano()),
				Member: key,
			})
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err = r.cli.Watch(ctx, insert, key)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("redis insert message: %w", err)
	}

	if err := r.evictOldest(ctx); err != nil {
		return fmt.Errorf("evict oldest: %w", err)
	}
	return nil
}

// DeleteMessage removes a message from Redis by its ID.
func (r *Redis) DeleteMessage(ctx context.Context, id string) error {
	key := messageKey(id)
	err := r.cli.Watch(ctx, func(tx *redis.Tx) error {
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			pipe.ZRem(ctx, messagePrefix, key)
			return nil
		})
		return err
	}, key)
	if err != nil {
		return fmt.Errorf("redis delete message: %w", err)
	}
	return nil
}

// evictOldest keeps at most maxSize messages cached, dropping the ones sent
// first.
func (r *Redis) evictOldest(ctx context.Context) error {
	keys, err := r.cli.ZRange(ctx, messagePrefix, 0, int64(-maxSize-1)).Result()
	if err != nil {
		return fmt.Errorf("zrange: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}

	members := make([]any, len(keys))
	for i, k := range keys {
		members[i] = k
	}
	_, err = r.cli.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, messagePrefix, members...)
		pipe.Del(ctx, keys...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("evict: %w", err)
	}
	return nil
}
