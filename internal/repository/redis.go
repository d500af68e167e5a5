package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/cardtable/blackjack-server/internal/round"
	"github.com/redis/go-redis/v9"
)

const (
	defaultRedisAddr        = "127.0.0.1:6379"
	defaultRedisPoolSize    = 10
	defaultRedisMinIdle     = 2
	defaultRedisMaxLifetime = 2 * time.Minute
	defaultRedisMaxIdleTime = 5 * time.Minute
	defaultKeyPrefix        = "blackjack"
)

// RedisOption configures a redis client.
type RedisOption func(*redis.Options)

// NewRedisClient creates a redis client with defaults overridden by opts.
func NewRedisClient(opts ...RedisOption) *redis.Client {
	options := &redis.Options{
		Addr:            defaultRedisAddr,
		PoolSize:        defaultRedisPoolSize,
		MinIdleConns:    defaultRedisMinIdle,
		ConnMaxLifetime: defaultRedisMaxLifetime,
		ConnMaxIdleTime: defaultRedisMaxIdleTime,
	}
	for _, opt := range opts {
		opt(options)
	}
	return redis.NewClient(options)
}

// WithAddress sets host:port. Malformed addresses are ignored.
func WithAddress(addr string) RedisOption {
	return func(o *redis.Options) {
		if _, _, err := net.SplitHostPort(addr); err == nil {
			o.Addr = addr
		}
	}
}

// WithPassword sets the AUTH password.
func WithPassword(pass string) RedisOption {
	return func(o *redis.Options) {
		o.Password = pass
	}
}

// WithDB selects the logical database.
func WithDB(db int) RedisOption {
	return func(o *redis.Options) {
		if db >= 0 {
			o.DB = db
		}
	}
}

// WithPoolSize sets the connection pool size.
func WithPoolSize(size int) RedisOption {
	return func(o *redis.Options) {
		if size > 0 {
			o.PoolSize = size
		}
	}
}

// createScript stores the round unless an unfinished round holds the join code.
// KEYS[1] round key, KEYS[2] join code key. ARGV[1] document, ARGV[2] id, ARGV[3] round key prefix.
var createScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return -1
end
local holder = redis.call('GET', KEYS[2])
if holder then
	local doc = redis.call('GET', ARGV[3] .. holder)
	if doc then
		local existing = cjson.decode(doc)
		if not existing.finished then
			return 0
		end
	end
end
redis.call('SET', KEYS[1], ARGV[1])
redis.call('SET', KEYS[2], ARGV[2])
return 1
`)

// saveScript replaces the round when the stored version equals ARGV[2]. An open round
// (ARGV[5] == "1") claims its join code unless another open round holds it.
// KEYS[1] round key, KEYS[2] join code key. ARGV[1] document, ARGV[2] expected version,
// ARGV[3] round key prefix, ARGV[4] id, ARGV[5] open flag.
var saveScript = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
if not current then
	return -1
end
local decoded = cjson.decode(current)
if tonumber(decoded.version) ~= tonumber(ARGV[2]) then
	return 0
end
if ARGV[5] == '1' then
	local holder = redis.call('GET', KEYS[2])
	if holder and holder ~= ARGV[4] then
		local doc = redis.call('GET', ARGV[3] .. holder)
		if doc then
			local existing = cjson.decode(doc)
			if not existing.finished then
				return -2
			end
		end
	end
	redis.call('SET', KEYS[2], ARGV[4])
end
redis.call('SET', KEYS[1], ARGV[1])
return 1
`)

// RedisStore keeps each round as a JSON document under <prefix>:round:<id>, with
// <prefix>:code:<code> pointing at the latest round using a join code.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore wraps a connected client.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) roundPrefix() string {
	return s.prefix + ":round:"
}

func (s *RedisStore) roundKey(id string) string {
	return s.roundPrefix() + id
}

func (s *RedisStore) codeKey(code string) string {
	return s.prefix + ":code:" + code
}

// Create inserts a new round at version 1.
func (s *RedisStore) Create(ctx context.Context, r *round.Round) error {
	r.Version = 1
	doc, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to encode round: %w", err)
	}

	res, err := createScript.Run(ctx, s.client,
		[]string{s.roundKey(r.ID), s.codeKey(r.JoinCode)},
		string(doc), r.ID, s.roundPrefix()).Int()
	if err != nil {
		return fmt.Errorf("failed to create round: %w", err)
	}
	switch res {
	case -1:
		return ErrDuplicateID
	case 0:
		return round.ErrJoinCodeTaken
	}
	return nil
}

// Get loads a round by id.
func (s *RedisStore) Get(ctx context.Context, id string) (*round.Round, error) {
	doc, err := s.client.Get(ctx, s.roundKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, round.ErrRoundNotFound
		}
		return nil, fmt.Errorf("failed to load round: %w", err)
	}
	return decodeRound(doc)
}

// GetByJoinCode resolves the join code and loads the round.
func (s *RedisStore) GetByJoinCode(ctx context.Context, code string) (*round.Round, error) {
	id, err := s.client.Get(ctx, s.codeKey(code)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, round.ErrRoundNotFound
		}
		return nil, fmt.Errorf("failed to resolve join code: %w", err)
	}
	return s.Get(ctx, id)
}

// Save writes the round if its version is unchanged.
func (s *RedisStore) Save(ctx context.Context, r *round.Round) error {
	expected := r.Version
	next := r.Clone()
	next.Version = expected + 1
	doc, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("failed to encode round: %w", err)
	}

	open := "0"
	if !r.Finished {
		open = "1"
	}
	res, err := saveScript.Run(ctx, s.client,
		[]string{s.roundKey(r.ID), s.codeKey(r.JoinCode)},
		string(doc), expected, s.roundPrefix(), r.ID, open).Int()
	if err != nil {
		return fmt.Errorf("failed to save round: %w", err)
	}
	switch res {
	case -2:
		return round.ErrJoinCodeTaken
	case -1:
		return round.ErrRoundNotFound
	case 0:
		return round.ErrVersionConflict
	}
	r.Version = next.Version
	return nil
}

// Ping checks the server.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func decodeRound(doc []byte) (*round.Round, error) {
	var r round.Round
	if err := json.Unmarshal(doc, &r); err != nil {
		return nil, fmt.Errorf("failed to decode round: %w", err)
	}
	if r.Hands == nil {
		r.Hands = make(map[string]*round.Hand)
	}
	return &r, nil
}
