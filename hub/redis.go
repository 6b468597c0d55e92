package hub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type relayFrame struct {
	Group string          `json:"group"`
	Msg   json.RawMessage `json:"msg"`
}

// RedisRelay carries frames between processes over a Redis pub/sub channel.
type RedisRelay struct {
	client  *redis.Client
	channel string
	hub     *Hub
	log     *zap.Logger
}

func NewRedisRelay(client *redis.Client, channel string, h *Hub, logger *zap.Logger) *RedisRelay {
	return &RedisRelay{
		client:  client,
		channel: channel,
		hub:     h,
		log:     logger.Named("hub.redis"),
	}
}

func (r *RedisRelay) Forward(ctx context.Context, group string, msg []byte) error {
	if !json.Valid(msg) {
		return fmt.Errorf("relay frame for %s is not valid JSON", group)
	}
	data, err := json.Marshal(relayFrame{Group: group, Msg: msg})
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.channel, data).Err()
}

// Run subscribes to the relay channel and delivers frames to the local hub
// until ctx is done. The subscription is confirmed before Run starts
// consuming, so an unreachable Redis is reported immediately.
func (r *RedisRelay) Run(ctx context.Context) error {
	ps := r.client.Subscribe(ctx, r.channel)
	defer ps.Close()
	if _, err := ps.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	r.log.Info("hub: redis relay subscribed", zap.String("channel", r.channel))

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			var f relayFrame
			if err := json.Unmarshal([]byte(m.Payload), &f); err != nil {
				r.log.Warn("hub: bad relay frame", zap.Error(err))
				continue
			}
			r.hub.Deliver(f.Group, f.Msg)
		}
	}
}
