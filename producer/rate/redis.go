package rate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gomodule/redigo/redis"
	"github.com/vpbank/snmp_monitor/models"
)

// ConnGetter hands out redis connections. *redis.Pool satisfies it.
type ConnGetter interface {
	Get() redis.Conn
}

// RedisConfig controls RedisStore behaviour.
type RedisConfig struct {
	// Prefix namespaces every key. Default "snmp_monitor:counter:".
	Prefix string

	// TTL expires snapshots of interfaces that stop being polled.
	// Default 24h.
	TTL time.Duration
}

func (c *RedisConfig) withDefaults() {
	if c.Prefix == "" {
		c.Prefix = "snmp_monitor:counter:"
	}
	if c.TTL <= 0 {
		c.TTL = 24 * time.Hour
	}
}

// RedisStore keeps snapshots in redis so several collector processes, or a
// restarted one, share the same baselines. Values are JSON encoded; a
// per-device set tracks the keys for Forget.
type RedisStore struct {
	pool ConnGetter
	cfg  RedisConfig
}

// NewRedisPool builds a connection pool for addr ("host:port").
func NewRedisPool(addr string, maxIdle int) *redis.Pool {
	return &redis.Pool{
		MaxIdle:     maxIdle,
		IdleTimeout: 5 * time.Minute,
		Dial: func() (redis.Conn, error) {
			return redis.Dial("tcp", addr,
				redis.DialConnectTimeout(2*time.Second),
				redis.DialReadTimeout(2*time.Second),
				redis.DialWriteTimeout(2*time.Second),
			)
		},
		TestOnBorrow: func(c redis.Conn, t time.Time) error {
			if time.Since(t) < time.Minute {
				return nil
			}
			_, err := c.Do("PING")
			return err
		},
	}
}

// NewRedisStore creates a RedisStore over pool.
func NewRedisStore(pool ConnGetter, cfg RedisConfig) *RedisStore {
	cfg.withDefaults()
	return &RedisStore{pool: pool, cfg: cfg}
}

func (r *RedisStore) key(k string) string       { return r.cfg.Prefix + k }
func (r *RedisStore) deviceKey(d string) string { return r.cfg.Prefix + "device:" + d }

// Swap implements SnapshotStore with GETSET inside a MULTI/EXEC block.
func (r *RedisStore) Swap(ctx context.Context, snap models.CounterSnapshot) (models.CounterSnapshot, bool, error) {
	if err := ctx.Err(); err != nil {
		return models.CounterSnapshot{}, false, err
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return models.CounterSnapshot{}, false, fmt.Errorf("rate: redis encode: %w", err)
	}

	conn := r.pool.Get()
	defer conn.Close()

	key := r.key(snap.Key())
	ttl := int64(r.cfg.TTL / time.Second)
	if err := sendAll(conn,
		[]interface{}{"MULTI"},
		[]interface{}{"GETSET", key, payload},
		[]interface{}{"EXPIRE", key, ttl},
		[]interface{}{"SADD", r.deviceKey(snap.Device), key},
		[]interface{}{"EXPIRE", r.deviceKey(snap.Device), ttl},
	); err != nil {
		return models.CounterSnapshot{}, false, fmt.Errorf("rate: redis swap %s: %w", key, err)
	}
	replies, err := redis.Values(conn.Do("EXEC"))
	if err != nil {
		return models.CounterSnapshot{}, false, fmt.Errorf("rate: redis swap %s: %w", key, err)
	}
	if len(replies) == 0 {
		return models.CounterSnapshot{}, false, fmt.Errorf("rate: redis swap %s: empty EXEC reply", key)
	}

	old, err := redis.Bytes(replies[0], nil)
	if errors.Is(err, redis.ErrNil) {
		return models.CounterSnapshot{}, false, nil
	}
	if err != nil {
		return models.CounterSnapshot{}, false, fmt.Errorf("rate: redis swap %s: %w", key, err)
	}
	var prev models.CounterSnapshot
	if err := json.Unmarshal(old, &prev); err != nil {
		// A corrupt baseline is as good as none; the new value is stored.
		return models.CounterSnapshot{}, false, nil
	}
	return prev, true, nil
}

// Forget implements SnapshotStore.
func (r *RedisStore) Forget(ctx context.Context, device string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	conn := r.pool.Get()
	defer conn.Close()

	dk := r.deviceKey(device)
	keys, err := redis.Strings(conn.Do("SMEMBERS", dk))
	if err != nil {
		return fmt.Errorf("rate: redis forget %s: %w", device, err)
	}
	args := redis.Args{}.Add(dk).AddFlat(keys)
	if _, err := conn.Do("DEL", args...); err != nil {
		return fmt.Errorf("rate: redis forget %s: %w", device, err)
	}
	return nil
}

func sendAll(conn redis.Conn, cmds ...[]interface{}) error {
	for _, c := range cmds {
		if err := conn.Send(c[0].(string), c[1:]...); err != nil {
			return err
		}
	}
	return nil
}
