package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cardtable/blackjack-server/internal/round"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type envelope struct {
	Origin string      `json:"origin"`
	Room   string      `json:"room"`
	Event  round.Event `json:"event"`
}

// RedisRelay shares events between server instances over a redis channel. Publish sends
// to the channel; Run delivers events published by other instances to the local
// broadcaster.
type RedisRelay struct {
	client  redis.UniversalClient
	channel string
	origin  string
	local   round.Broadcaster
	logger  *zap.Logger
}

// NewRedisRelay creates a relay with a random instance id.
func NewRedisRelay(client redis.UniversalClient, channel string, local round.Broadcaster, logger *zap.Logger) (*RedisRelay, error) {
	origin, err := gonanoid.New()
	if err != nil {
		return nil, fmt.Errorf("failed to generate relay id: %w", err)
	}
	return &RedisRelay{
		client:  client,
		channel: channel,
		origin:  origin,
		local:   local,
		logger:  logger.With(zap.String("relay_id", origin)),
	}, nil
}

// Origin returns the instance id stamped on outgoing messages.
func (r *RedisRelay) Origin() string {
	return r.origin
}

// Publish implements round.Broadcaster.
func (r *RedisRelay) Publish(ctx context.Context, room string, ev round.Event) {
	payload, err := json.Marshal(envelope{Origin: r.origin, Room: room, Event: ev})
	if err != nil {
		r.logger.Error("failed to encode relay message", zap.Error(err))
		return
	}
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		r.logger.Warn("failed to relay event",
			zap.String("room", room),
			zap.String("type", string(ev.Type)),
			zap.Error(err))
	}
}

// Run subscribes to the channel until ctx ends.
func (r *RedisRelay) Run(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", r.channel, err)
	}
	r.logger.Info("event relay subscribed", zap.String("channel", r.channel))

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return errors.New("relay subscription closed")
			}
			r.deliver(ctx, msg.Payload)
		}
	}
}

func (r *RedisRelay) deliver(ctx context.Context, payload string) {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		r.logger.Warn("discarding malformed relay message", zap.Error(err))
		return
	}
	if env.Origin == r.origin {
		return
	}
	r.local.Publish(ctx, env.Room, env.Event)
}
