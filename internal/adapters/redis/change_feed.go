package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	domainauth "github.com/target/storefront-admin/internal/domain/auth"
)

// DefaultChannel is the pub/sub channel carrying credential change events.
const DefaultChannel = "storefront:credential-changes"

// ChangeFeed implements ports.ChangeFeed over Redis pub/sub.
type ChangeFeed struct {
	client  redis.UniversalClient
	channel string
	logger  *slog.Logger
}

// NewChangeFeed creates a feed on channel (DefaultChannel when empty).
func NewChangeFeed(client redis.UniversalClient, channel string, logger *slog.Logger) *ChangeFeed {
	if client == nil {
		panic("redis ChangeFeed requires client")
	}
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ChangeFeed{client: client, channel: channel, logger: logger}
}

func (f *ChangeFeed) Publish(ctx context.Context, ev domainauth.ChangeEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal change event: %w", err)
	}
	return f.client.Publish(ctx, f.channel, data).Err()
}

// Listen subscribes to the channel and delivers decoded events to fn until ctx is done.
// A closed subscription is reported as an error so callers can reconnect.
func (f *ChangeFeed) Listen(ctx context.Context, fn func(domainauth.ChangeEvent)) error {
	sub := f.client.Subscribe(ctx, f.channel)
	defer func() {
		if err := sub.Close(); err != nil {
			f.logger.Debug("close change subscription", "error", err)
		}
	}()

	// Block until the server confirms the subscription.
	if _, err := sub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("subscribe %s: %w", f.channel, err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("subscription to %s closed", f.channel)
			}
			var ev domainauth.ChangeEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				f.logger.Warn("dropping malformed change event", "error", err)
				continue
			}
			fn(ev)
		}
	}
}
