package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// RedisPublisher keeps a bounded per-user history list and fans events out
// on a per-user pub/sub channel.
type RedisPublisher struct {
	client  *redis.Client
	history int64
	ttl     time.Duration
	log     *logrus.Entry
}

func NewRedisPublisher(client *redis.Client, history int64, ttl time.Duration, log *logrus.Entry) *RedisPublisher {
	if history <= 0 {
		history = 100
	}
	return &RedisPublisher{client: client, history: history, ttl: ttl, log: log}
}

func historyKey(userID string) string {
	return fmt.Sprintf("notifications:%s", userID)
}

func liveChannel(userID string) string {
	return fmt.Sprintf("notifications:%s:live", userID)
}

func (p *RedisPublisher) Publish(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	payload := string(data)
	key := historyKey(ev.RecipientID)

	if err := p.client.LPush(ctx, key, payload).Err(); err != nil {
		return fmt.Errorf("push notification: %w", err)
	}
	if err := p.client.LTrim(ctx, key, 0, p.history-1).Err(); err != nil {
		return fmt.Errorf("trim notifications: %w", err)
	}
	if p.ttl > 0 {
		if err := p.client.Expire(ctx, key, p.ttl).Err(); err != nil {
			return fmt.Errorf("expire notifications: %w", err)
		}
	}
	if err := p.client.Publish(ctx, liveChannel(ev.RecipientID), payload).Err(); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

// List returns the most recent events for a user, newest first.
func (p *RedisPublisher) List(ctx context.Context, userID string, limit int64) ([]Event, error) {
	if limit <= 0 || limit > p.history {
		limit = p.history
	}
	raw, err := p.client.LRange(ctx, historyKey(userID), 0, limit-1).Result()
	if err != nil {
		return nil, err
	}

	events := make([]Event, 0, len(raw))
	for _, item := range raw {
		var ev Event
		if err := json.Unmarshal([]byte(item), &ev); err != nil {
			p.log.WithError(err).WithField("user_id", userID).Warn("[NOTIFY] skipping malformed event")
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

// Subscribe streams live events for a user until the returned stop func is
// called or ctx ends.
func (p *RedisPublisher) Subscribe(ctx context.Context, userID string) (<-chan Event, func(), error) {
	pubsub := p.client.Subscribe(ctx, liveChannel(userID))
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, nil, err
	}

	out := make(chan Event)
	go func() {
		defer close(out)
		for msg := range pubsub.Channel() {
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, func() { pubsub.Close() }, nil
}
