package source

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mnhsh/digital-capsule/internal/capsule"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisConfig holds the connection settings for the redis mirror.
type RedisConfig struct {
	Addr     string
	Username string
	Password string
	DB       int
}

// Redis reads entries kept in a hash (<key>:entries, field = entry id,
// value = JSON record). Writers publish the id of each new entry on
// <key>:added.
type Redis struct {
	client *redis.Client
	key    string
	logger *zap.Logger
}

func NewRedisClient(cfg RedisConfig) (*redis.Client, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		return nil, fmt.Errorf("%w: redis addr is not set", ErrConfigurationMissing)
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	}), nil
}

// NewRedis derives the key prefix from the logical data path, so
// "/capsuleEntries" reads capsuleEntries:entries.
func NewRedis(client *redis.Client, path string, logger *zap.Logger) *Redis {
	key := strings.ReplaceAll(strings.Trim(path, "/"), "/", ":")
	return &Redis{client: client, key: key, logger: logger.Named("redis")}
}

func (r *Redis) HashKey() string {
	return r.key + ":entries"
}

func (r *Redis) Channel() string {
	return r.key + ":added"
}

func (r *Redis) Subscribe(ctx context.Context) (<-chan Event, error) {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetchFailure, err)
	}

	// subscribe before the full read so nothing published in between is lost
	pubsub := r.client.Subscribe(ctx, r.Channel())
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("%w: %w", ErrFetchFailure, err)
	}

	ch := make(chan Event, 16)
	go func() {
		defer close(ch)
		defer pubsub.Close()

		entries, err := r.readAll(ctx)
		if err != nil {
			send(ctx, ch, ErrorEvent(err))
			return
		}
		if !send(ctx, ch, ValueEvent(entries)) {
			return
		}

		msgs := pubsub.Channel()
		for {
			select {
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				id := strings.TrimSpace(msg.Payload)
				e, found, err := r.read(ctx, id)
				if err != nil {
					send(ctx, ch, ErrorEvent(err))
					return
				}
				if !found {
					r.logger.Warn("Announced entry not found", zap.String("id", id))
					continue
				}
				if !send(ctx, ch, ChildEvent(id, e)) {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return ch, nil
}

func (r *Redis) readAll(ctx context.Context) (map[string]capsule.Entry, error) {
	raw, err := r.client.HGetAll(ctx, r.HashKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetchFailure, err)
	}
	entries := make(map[string]capsule.Entry, len(raw))
	for id, data := range raw {
		e, err := capsule.DecodeEntry([]byte(data))
		if err != nil {
			r.logger.Warn("Skipping unreadable entry", zap.String("id", id), zap.Error(err))
			continue
		}
		entries[id] = e
	}
	return entries, nil
}

func (r *Redis) read(ctx context.Context, id string) (capsule.Entry, bool, error) {
	data, err := r.client.HGet(ctx, r.HashKey(), id).Result()
	if errors.Is(err, redis.Nil) {
		return capsule.Entry{}, false, nil
	}
	if err != nil {
		return capsule.Entry{}, false, fmt.Errorf("%w: %w", ErrFetchFailure, err)
	}
	e, err := capsule.DecodeEntry([]byte(data))
	if err != nil {
		r.logger.Warn("Skipping unreadable entry", zap.String("id", id), zap.Error(err))
		return capsule.Entry{}, false, nil
	}
	return e, true, nil
}
