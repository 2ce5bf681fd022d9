package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/domain/pipeline"
)

// DefaultRedisPrefix namespaces ledger keys.
const DefaultRedisPrefix = "mindbreeze:ledger:"

// reserveScript atomically checks and decrements a balance.
// KEYS[1] = balance key, KEYS[2] = reservation key
// ARGV[1] = amount, ARGV[2] = account id
var reserveScript = redis.NewScript(`
local balance = tonumber(redis.call("GET", KEYS[1]) or "0")
local amount = tonumber(ARGV[1])
if balance < amount then
    return {0, balance}
end
redis.call("DECRBY", KEYS[1], amount)
redis.call("HSET", KEYS[2], "account", ARGV[2], "amount", amount, "state", "held")
return {1, balance - amount}
`)

// settleScript moves a held reservation to ARGV[1]. Releasing refunds the
// amount to the balance key built from ARGV[2] and the stored account.
// Returns 1 on success or no-op, -1 for unknown, -2 for settled differently.
var settleScript = redis.NewScript(`
local state = redis.call("HGET", KEYS[1], "state")
if not state then
    return -1
end
if state == ARGV[1] then
    return 1
end
if state ~= "held" then
    return -2
end
if ARGV[1] == "released" then
    local account = redis.call("HGET", KEYS[1], "account")
    local amount = tonumber(redis.call("HGET", KEYS[1], "amount"))
    redis.call("INCRBY", ARGV[2] .. account, amount)
end
redis.call("HSET", KEYS[1], "state", ARGV[1])
return 1
`)

// Redis is a ledger backed by Redis Lua scripts. Each movement is a single
// script call, so concurrent callers are serialized by the server.
type Redis struct {
	client *redis.Client
	prefix string
	newID  func() string
}

// RedisOption configures a Redis ledger.
type RedisOption func(*Redis)

// WithRedisPrefix sets the key prefix.
func WithRedisPrefix(prefix string) RedisOption {
	return func(r *Redis) {
		if prefix != "" {
			r.prefix = prefix
		}
	}
}

// NewRedis creates a ledger on an existing client.
func NewRedis(client *redis.Client, opts ...RedisOption) *Redis {
	r := &Redis{client: client, prefix: DefaultRedisPrefix, newID: newReservationID}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// DialRedis creates a client for addr and verifies connectivity.
func DialRedis(ctx context.Context, addr, password string, db int, opts ...RedisOption) (*Redis, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis %s: %w", addr, err)
	}
	return NewRedis(client, opts...), nil
}

// Close closes the client.
func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) balanceKey(accountID string) string {
	return r.prefix + "balance:" + accountID
}

func (r *Redis) reservationKey(id string) string {
	return r.prefix + "reservation:" + id
}

// Reserve implements pipeline.Ledger.
func (r *Redis) Reserve(ctx context.Context, accountID string, amount int) (id string, err error) {
	defer func() { record("redis", "reserve", err) }()
	if amount < 0 {
		return "", pipeline.ErrInvalidAmount
	}
	id = r.newID()
	res, err := reserveScript.Run(ctx, r.client,
		[]string{r.balanceKey(accountID), r.reservationKey(id)}, amount, accountID).Slice()
	if err != nil {
		return "", fmt.Errorf("redis reserve: %w", err)
	}
	if len(res) != 2 {
		return "", errors.New("redis reserve: invalid script response")
	}
	if allowed, _ := res[0].(int64); allowed != 1 {
		balance, _ := res[1].(int64)
		return "", fmt.Errorf("%w: account %s has %d, needs %d", pipeline.ErrInsufficientCredit, accountID, balance, amount)
	}
	return id, nil
}

// Debit implements pipeline.Ledger.
func (r *Redis) Debit(ctx context.Context, reservationID string) (err error) {
	defer func() { record("redis", "debit", err) }()
	return r.settle(ctx, reservationID, StateDebited)
}

// Release implements pipeline.Ledger.
func (r *Redis) Release(ctx context.Context, reservationID string) (err error) {
	defer func() { record("redis", "release", err) }()
	return r.settle(ctx, reservationID, StateReleased)
}

func (r *Redis) settle(ctx context.Context, reservationID, target string) error {
	code, err := settleScript.Run(ctx, r.client,
		[]string{r.reservationKey(reservationID)}, target, r.prefix+"balance:").Int64()
	if err != nil {
		return fmt.Errorf("redis settle: %w", err)
	}
	switch code {
	case -1:
		return fmt.Errorf("%w: %s", pipeline.ErrReservationNotFound, reservationID)
	case -2:
		return fmt.Errorf("%w: %s", pipeline.ErrReservationSettled, reservationID)
	}
	return nil
}

// TopUp implements Ledger.
func (r *Redis) TopUp(ctx context.Context, accountID string, amount int) (int, error) {
	if amount < 0 {
		return 0, pipeline.ErrInvalidAmount
	}
	balance, err := r.client.IncrBy(ctx, r.balanceKey(accountID), int64(amount)).Result()
	if err != nil {
		return 0, fmt.Errorf("redis top up: %w", err)
	}
	return int(balance), nil
}

// Balance implements Ledger.
func (r *Redis) Balance(ctx context.Context, accountID string) (int, error) {
	balance, err := r.client.Get(ctx, r.balanceKey(accountID)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis balance: %w", err)
	}
	return balance, nil
}
