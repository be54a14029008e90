package dedup

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
)

// DefaultRedisKey is the set holding known POI identifiers.
const DefaultRedisKey = "poi:known_ids"

// setCommands is the subset of redis.Cmdable used by RedisIndex.
type setCommands interface {
	SAdd(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
	SIsMember(ctx context.Context, key string, member interface{}) *redis.BoolCmd
	SCard(ctx context.Context, key string) *redis.IntCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisIndex keeps known identifiers in a Redis set so the index survives
// across processes.
type RedisIndex struct {
	rdb setCommands
	key string
}

// NewRedisIndex wraps a redis client. An empty key selects DefaultRedisKey.
func NewRedisIndex(rdb redis.Cmdable, key string) *RedisIndex {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisIndex{rdb: rdb, key: key}
}

// DialRedis connects to addr and verifies the connection.
func DialRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, eris.Wrapf(err, "dedup: ping redis %s", addr)
	}
	return rdb, nil
}

func (r *RedisIndex) Has(ctx context.Context, id string) (bool, error) {
	ok, err := r.rdb.SIsMember(ctx, r.key, id).Result()
	if err != nil {
		return false, eris.Wrap(err, "dedup: redis sismember")
	}
	return ok, nil
}

func (r *RedisIndex) Add(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	members := make([]interface{}, len(ids))
	for i, id := range ids {
		members[i] = id
	}
	if err := r.rdb.SAdd(ctx, r.key, members...).Err(); err != nil {
		return eris.Wrap(err, "dedup: redis sadd")
	}
	return nil
}

func (r *RedisIndex) Len(ctx context.Context) (int, error) {
	n, err := r.rdb.SCard(ctx, r.key).Result()
	if err != nil {
		return 0, eris.Wrap(err, "dedup: redis scard")
	}
	return int(n), nil
}

// Reset drops the set. The index is reseeded from the store on the next run.
func (r *RedisIndex) Reset(ctx context.Context) error {
	if err := r.rdb.Del(ctx, r.key).Err(); err != nil {
		return eris.Wrap(err, "dedup: redis del")
	}
	return nil
}
