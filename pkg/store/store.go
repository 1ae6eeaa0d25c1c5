package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/glottahq/glotta/pkg/log"
	"github.com/glottahq/glotta/pkg/metrics"
)

// ErrNotFound is returned when a key does not exist.
var ErrNotFound = errors.New("store: key not found")

// Config holds coordination store connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// Client is a typed façade over the coordination store. Every operation
// takes a context and returns an explicit error; callers decide whether a
// failure is fatal (queue, claim set) or falls open (counters).
type Client struct {
	rdb *redis.Client
	log zerolog.Logger
}

// New creates a store client. The connection is lazy; call Ping to verify
// reachability.
func New(cfg Config) *Client {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &Client{
		rdb: rdb,
		log: log.WithComponent("store"),
	}
}

// Ping verifies the store is reachable.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return c.fail("ping", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Get returns the value at key, or ErrNotFound.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	val, err := c.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", c.fail("get "+key, err)
	}
	return val, nil
}

// Set writes key=value. A positive ttl bounds the key's lifetime; zero
// means no expiry.
func (c *Client) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := c.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return c.fail("set "+key, err)
	}
	return nil
}

// SetNX writes key=value with a ttl only if the key does not exist.
// Returns true when the write happened.
func (c *Client) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	ok, err := c.rdb.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, c.fail("setnx "+key, err)
	}
	return ok, nil
}

// Del removes the given keys. Missing keys are not an error.
func (c *Client) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		return c.fail("del", err)
	}
	return nil
}

// Exists reports whether key is present.
func (c *Client) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, c.fail("exists "+key, err)
	}
	return n > 0, nil
}

// Incr atomically increments key by one. When the increment creates the
// key and ttl is positive, the ttl is applied, keeping every counter bound
// to its accounting window.
func (c *Client) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	n, err := c.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, c.fail("incr "+key, err)
	}
	if ttl > 0 && n == 1 {
		if err := c.rdb.Expire(ctx, key, ttl).Err(); err != nil {
			return n, c.fail("expire "+key, err)
		}
	}
	return n, nil
}

// IncrBy atomically adds n to key, applying ttl when the addition created
// the key.
func (c *Client) IncrBy(ctx context.Context, key string, n int64, ttl time.Duration) (int64, error) {
	total, err := c.rdb.IncrBy(ctx, key, n).Result()
	if err != nil {
		return 0, c.fail("incrby "+key, err)
	}
	if ttl > 0 && total == n {
		if err := c.rdb.Expire(ctx, key, ttl).Err(); err != nil {
			return total, c.fail("expire "+key, err)
		}
	}
	return total, nil
}

// Expire resets the ttl on key.
func (c *Client) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := c.rdb.Expire(ctx, key, ttl).Err(); err != nil {
		return c.fail("expire "+key, err)
	}
	return nil
}

// MGet reads several keys in one round trip. Missing keys yield nil
// entries, preserving positions.
func (c *Client) MGet(ctx context.Context, keys ...string) ([]*string, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	vals, err := c.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, c.fail("mget", err)
	}
	out := make([]*string, len(vals))
	for i, v := range vals {
		if v == nil {
			continue
		}
		if s, ok := v.(string); ok {
			out[i] = &s
		}
	}
	return out, nil
}

// LPush prepends values to the list at key.
func (c *Client) LPush(ctx context.Context, key string, values ...string) error {
	args := make([]interface{}, len(values))
	for i, v := range values {
		args[i] = v
	}
	if err := c.rdb.LPush(ctx, key, args...).Err(); err != nil {
		return c.fail("lpush "+key, err)
	}
	return nil
}

// RPush appends values to the list at key.
func (c *Client) RPush(ctx context.Context, key string, values ...string) error {
	args := make([]interface{}, len(values))
	for i, v := range values {
		args[i] = v
	}
	if err := c.rdb.RPush(ctx, key, args...).Err(); err != nil {
		return c.fail("rpush "+key, err)
	}
	return nil
}

// RPop removes and returns the tail of the list, or ErrNotFound when the
// list is empty.
func (c *Client) RPop(ctx context.Context, key string) (string, error) {
	val, err := c.rdb.RPop(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", c.fail("rpop "+key, err)
	}
	return val, nil
}

// BRPop blocks up to timeout for a tail element. An idle timeout is not an
// error: ok is false and err is nil.
func (c *Client) BRPop(ctx context.Context, key string, timeout time.Duration) (string, bool, error) {
	res, err := c.rdb.BRPop(ctx, timeout, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, c.fail("brpop "+key, err)
	}
	// res is [key, value]
	return res[1], true, nil
}

// LLen returns the length of the list at key.
func (c *Client) LLen(ctx context.Context, key string) (int64, error) {
	n, err := c.rdb.LLen(ctx, key).Result()
	if err != nil {
		return 0, c.fail("llen "+key, err)
	}
	return n, nil
}

// LRange returns list elements between start and stop inclusive
// (0, -1 for all).
func (c *Client) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	vals, err := c.rdb.LRange(ctx, key, start, stop).Result()
	if err != nil {
		return nil, c.fail("lrange "+key, err)
	}
	return vals, nil
}

// SAdd adds members to the set at key.
func (c *Client) SAdd(ctx context.Context, key string, members ...string) error {
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	if err := c.rdb.SAdd(ctx, key, args...).Err(); err != nil {
		return c.fail("sadd "+key, err)
	}
	return nil
}

// SRem removes members from the set at key.
func (c *Client) SRem(ctx context.Context, key string, members ...string) error {
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	if err := c.rdb.SRem(ctx, key, args...).Err(); err != nil {
		return c.fail("srem "+key, err)
	}
	return nil
}

// SCard returns the cardinality of the set at key.
func (c *Client) SCard(ctx context.Context, key string) (int64, error) {
	n, err := c.rdb.SCard(ctx, key).Result()
	if err != nil {
		return 0, c.fail("scard "+key, err)
	}
	return n, nil
}

// SMembers returns every member of the set at key.
func (c *Client) SMembers(ctx context.Context, key string) ([]string, error) {
	members, err := c.rdb.SMembers(ctx, key).Result()
	if err != nil {
		return nil, c.fail("smembers "+key, err)
	}
	return members, nil
}

// HSet writes the given hash fields at key.
func (c *Client) HSet(ctx context.Context, key string, fields map[string]string) error {
	args := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	if err := c.rdb.HSet(ctx, key, args...).Err(); err != nil {
		return c.fail("hset "+key, err)
	}
	return nil
}

// HGetAll returns the hash at key; an empty map when the key is missing.
func (c *Client) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	fields, err := c.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, c.fail("hgetall "+key, err)
	}
	return fields, nil
}

func (c *Client) fail(op string, err error) error {
	metrics.StoreErrorsTotal.Inc()
	return fmt.Errorf("store: %s: %w", op, err)
}
