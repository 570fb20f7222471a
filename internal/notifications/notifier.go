package notifications

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
)

const (
	sessionChannelPrefix = "qna:session:"
	userChannelPrefix    = "qna:user:"
)

// Notifier publishes Q&A events into Redis channels so every server replica
// fans them out to its own subscribers.
type Notifier struct {
	rdb *redis.Client
}

// NewNotifier returns a notifier over the given Redis client (nil disables publishing).
func NewNotifier(rdb *redis.Client) *Notifier {
	return &Notifier{rdb: rdb}
}

// PublishSession sends an event payload to a session's channel.
func (n *Notifier) PublishSession(ctx context.Context, sessionID, payload string) error {
	if n.rdb == nil {
		return nil
	}
	return n.rdb.Publish(ctx, SessionChannel(sessionID), payload).Err()
}

// PublishUser sends an event payload to a user's channel. Each replica
// forwards it to the sessions that user is connected to locally.
func (n *Notifier) PublishUser(ctx context.Context, userID uint, payload string) error {
	if n.rdb == nil {
		return nil
	}
	return n.rdb.Publish(ctx, UserChannel(userID), payload).Err()
}

// StartPatternSubscriber subscribes to the Q&A channel patterns and calls
// onMessage for each incoming message until ctx is done.
func (n *Notifier) StartPatternSubscriber(ctx context.Context, onMessage func(channel, payload string)) error {
	if n.rdb == nil {
		return nil
	}
	sub := n.rdb.PSubscribe(ctx, sessionChannelPrefix+"*", userChannelPrefix+"*")
	ch := sub.Channel()

	go func() {
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				onMessage(msg.Channel, msg.Payload)
			}
		}
	}()

	return nil
}

// SessionChannel derives the Redis channel name for a session.
func SessionChannel(sessionID string) string {
	return sessionChannelPrefix + sessionID
}

// UserChannel derives the Redis channel name for a user.
func UserChannel(userID uint) string {
	return userChannelPrefix + strconv.FormatUint(uint64(userID), 10)
}

func parseUserChannel(channel string) (uint, error) {
	raw := strings.TrimPrefix(channel, userChannelPrefix)
	id64, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("parse user channel %q: %w", channel, err)
	}
	return uint(id64), nil
}
