package live

import (
	"context"
	"encoding/json"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/ammar1510/huddle/internal/logger"
)

const redisChannel = "huddle:live"

var relayLog = logger.New("live")

type envelope struct {
	Origin string   `json:"origin"`
	Topics []string `json:"topics"`
}

// RedisRelay publishes to the local hub immediately and forwards the topics to
// other instances through a Redis channel. Notifications received from other
// instances are re-published into the local hub.
type RedisRelay struct {
	hub    *Hub
	client *redis.Client
	origin string
}

func NewRedisRelay(hub *Hub, client *redis.Client) *RedisRelay {
	return &RedisRelay{hub: hub, client: client, origin: uuid.NewString()}
}

// NewRedisClient parses a redis:// URL.
func NewRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return redis.NewClient(opts), nil
}

func (r *RedisRelay) Publish(topics ...string) {
	r.hub.Publish(topics...)

	payload, err := json.Marshal(envelope{Origin: r.origin, Topics: topics})
	if err != nil {
		relayLog.Error("Failed to encode topics: %v", err)
		return
	}
	if err := r.client.Publish(context.Background(), redisChannel, payload).Err(); err != nil {
		relayLog.Warn("Redis publish failed, peers will miss %v: %v", topics, err)
	}
}

// Run relays remote notifications until ctx is cancelled.
func (r *RedisRelay) Run(ctx context.Context) error {
	pubsub := r.client.Subscribe(ctx, redisChannel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}
	relayLog.Info("Relaying live notifications through redis channel %s", redisChannel)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.deliver(msg.Payload)
		}
	}
}

func (r *RedisRelay) deliver(payload string) {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		relayLog.Warn("Dropping malformed relay payload: %v", err)
		return
	}
	if env.Origin == r.origin {
		return
	}
	r.hub.Publish(env.Topics...)
}
