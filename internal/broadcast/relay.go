package broadcast

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"oktel-workforce/internal/model"
)

const relayChannel = "workforce:events"

type envelope struct {
	Origin string      `json:"origin"`
	Topic  string      `json:"topic"`
	Event  model.Event `json:"event"`
}

// RedisRelay publishes events through a redis channel so that subscribers connected
// to any instance receive them. Run feeds relayed events into the local Hub.
type RedisRelay struct {
	client  *redis.Client
	local   *Hub
	channel string
	origin  string
}

func NewRedisRelay(client *redis.Client, local *Hub) *RedisRelay {
	return &RedisRelay{client: client, local: local, channel: relayChannel, origin: uuid.NewString()}
}

func (r *RedisRelay) Publish(topic string, ev model.Event) {
	data, err := json.Marshal(envelope{Origin: r.origin, Topic: topic, Event: ev})
	if err != nil {
		slog.Error("marshal relay event", "topic", topic, "event", ev.Type, "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.client.Publish(ctx, r.channel, data).Err(); err != nil {
		// Keep local subscribers informed even when redis is unavailable.
		slog.Warn("relay publish failed, delivering locally", "topic", topic, "event", ev.Type, "error", err)
		r.local.Publish(topic, ev)
	}
}

// Run forwards relayed events to the local hub until ctx is cancelled.
func (r *RedisRelay) Run(ctx context.Context) error {
	pubsub := r.client.Subscribe(ctx, r.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}
	slog.Info("broadcast relay subscribed", "channel", r.channel)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				slog.Warn("drop malformed relay message", "error", err)
				continue
			}
			r.deliver(env)
		}
	}
}

// deliver hands a relayed envelope to the local hub, marking events from other instances.
func (r *RedisRelay) deliver(env envelope) {
	env.Event.Relayed = env.Origin != r.origin
	r.local.Publish(env.Topic, env.Event)
}
