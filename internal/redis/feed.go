package redis

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"jarvis/internal/config"
	"jarvis/internal/conversation"
	"jarvis/internal/models"
)

// Feed mirrors conversation messages onto a redis pub/sub channel.
type Feed struct {
	client  *Client
	channel string
}

func NewFeed(client *Client, channel string) *Feed {
	if channel == "" {
		channel = config.DefaultRedisChannel
	}
	return &Feed{client: client, channel: channel}
}

// Publish broadcasts msg as JSON.
func (f *Feed) Publish(ctx context.Context, msg models.Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return f.client.Publish(ctx, f.channel, payload)
}

// Mirror publishes every message appended to conv until ctx is done.
func (f *Feed) Mirror(ctx context.Context, conv *conversation.Conversation) {
	ch, cancel := conv.Subscribe(0)
	go func() {
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				if err := f.Publish(ctx, msg); err != nil {
					log.Warn().Err(err).Str("component", "redis_feed").Int64("message_id", msg.ID).Msg("publish message failed")
				}
			}
		}
	}()
}

// Listen delivers decoded messages from the channel to handler until ctx is done.
// It returns once the subscription is confirmed.
func (f *Feed) Listen(ctx context.Context, handler func(models.Message)) error {
	pubsub, err := f.client.Subscribe(ctx, f.channel)
	if err != nil {
		return err
	}
	go func() {
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case raw, ok := <-ch:
				if !ok {
					return
				}
				var msg models.Message
				if err := json.Unmarshal([]byte(raw.Payload), &msg); err != nil {
					log.Warn().Err(err).Str("component", "redis_feed").Msg("decode feed message failed")
					continue
				}
				handler(msg)
			}
		}
	}()
	return nil
}
