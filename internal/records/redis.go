package records

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKeyPrefix namespaces every key the Redis backend writes.
const DefaultRedisKeyPrefix = "attentionguard:"

// RedisOptions holds connection settings for the Redis backend.
type RedisOptions struct {
	Address   string
	Password  string
	DB        int
	KeyPrefix string
}

// Redis persists records as one hash field per source.
type Redis struct {
	client *redis.Client
	prefix string
}

// OpenRedis connects and pings the server.
func OpenRedis(ctx context.Context, opts RedisOptions) (*Redis, error) {
	if strings.TrimSpace(opts.Address) == "" {
		return nil, errors.New("redis address is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Address,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return newRedis(client, opts.KeyPrefix), nil
}

func newRedis(client *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = DefaultRedisKeyPrefix
	}
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) Name() string { return "redis" }

func (r *Redis) recordsKey() string  { return r.prefix + "records" }
func (r *Redis) settingsKey() string { return r.prefix + "settings" }

func (r *Redis) Load(ctx context.Context) (map[string]Record, error) {
	fields, err := r.client.HGetAll(ctx, r.recordsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis load records: %w", err)
	}
	out := make(map[string]Record, len(fields))
	for source, raw := range fields {
		rec, err := decodeRecord(source, raw)
		if err != nil {
			return nil, err
		}
		out[source] = rec
	}
	return out, nil
}

func (r *Redis) Get(ctx context.Context, source string) (Record, error) {
	raw, err := r.client.HGet(ctx, r.recordsKey(), source).Result()
	if errors.Is(err, redis.Nil) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("redis get record %s: %w", source, err)
	}
	return decodeRecord(source, raw)
}

func (r *Redis) Put(ctx context.Context, rec Record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	if err := r.client.HSet(ctx, r.recordsKey(), rec.Source, string(raw)).Err(); err != nil {
		return fmt.Errorf("redis put record %s: %w", rec.Source, err)
	}
	return nil
}

func (r *Redis) Replace(ctx context.Context, recs map[string]Record) error {
	values := make([]any, 0, len(recs)*2)
	for source, rec := range recs {
		rec.Source = source
		raw, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode record: %w", err)
		}
		values = append(values, source, string(raw))
	}
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.recordsKey())
		if len(values) > 0 {
			pipe.HSet(ctx, r.recordsKey(), values...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis replace records: %w", err)
	}
	return nil
}

func (r *Redis) LoadSettings(ctx context.Context) (Settings, error) {
	raw, err := r.client.Get(ctx, r.settingsKey()).Result()
	if errors.Is(err, redis.Nil) {
		return Settings{}, ErrNotFound
	}
	if err != nil {
		return Settings{}, fmt.Errorf("redis load settings: %w", err)
	}
	var settings Settings
	if err := json.Unmarshal([]byte(raw), &settings); err != nil {
		return Settings{}, fmt.Errorf("decode settings: %w", err)
	}
	return settings, nil
}

func (r *Redis) SaveSettings(ctx context.Context, settings Settings) error {
	raw, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := r.client.Set(ctx, r.settingsKey(), string(raw), 0).Err(); err != nil {
		return fmt.Errorf("redis save settings: %w", err)
	}
	return nil
}

func (r *Redis) Close() error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Close()
}

func decodeRecord(source, raw string) (Record, error) {
	var rec Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return Record{}, fmt.Errorf("decode record %s: %w", source, err)
	}
	rec.Source = source
	if rec.Categories == nil {
		rec.Categories = map[string]int{}
	}
	if rec.Severities == nil {
		rec.Severities = map[string]int{}
	}
	return rec, nil
}
