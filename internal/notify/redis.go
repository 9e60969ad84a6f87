package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const DefaultChannel = "EVENT_NEW_JOBS"

// Publisher is the subset of redis.Cmdable used to publish events.
type Publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// Redis publishes an EVENT_NEW_JOBS message so the gateway can forward it
// to the user's open sessions.
type Redis struct {
	pub     Publisher
	channel string
}

func NewRedis(pub Publisher, channel string) *Redis {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Redis{pub: pub, channel: channel}
}

type newJobsEvent struct {
	Type string `json:"type"`
	Notification
}

func (r *Redis) Notify(ctx context.Context, n Notification) error {
	event, err := json.Marshal(newJobsEvent{Type: r.channel, Notification: n})
	if err != nil {
		return fmt.Errorf("marshal %s: %w", r.channel, err)
	}
	if err := r.pub.Publish(ctx, r.channel, event).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", r.channel, err)
	}
	return nil
}
