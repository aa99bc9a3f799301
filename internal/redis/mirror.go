// Package redis republishes bus events on Redis pub/sub.
package redis

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/danhigham/vkplay/internal/events"
	"github.com/danhigham/vkplay/internal/feed"
)

const (
	DefaultPrefix  = "vk:"
	publishTimeout = 2 * time.Second
)

// Publisher is the subset of the Redis client the mirror needs.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// Mirror implements bus.Mirror by publishing each event envelope to
// <prefix><channel>.
type Mirror struct {
	rdb    Publisher
	prefix string
	logger *zap.Logger
	now    func() time.Time
}

func NewMirror(rdb Publisher, prefix string, logger *zap.Logger) *Mirror {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mirror{rdb: rdb, prefix: prefix, logger: logger, now: time.Now}
}

// Dial connects to the Redis server at url and checks it with PING.
func Dial(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url")
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrap(err, "ping redis")
	}
	return rdb, nil
}

// Topic returns the Redis channel for a bus channel.
func (m *Mirror) Topic(ch events.Channel) string {
	return m.prefix + string(ch)
}

func (m *Mirror) Mirror(ev events.Event) {
	payload, err := feed.Marshal(ev, m.now())
	if err != nil {
		m.logger.Error("Encode event", zap.String("channel", string(ev.Channel())), zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	topic := m.Topic(ev.Channel())
	if err := m.rdb.Publish(ctx, topic, payload).Err(); err != nil {
		m.logger.Warn("Publish to redis failed", zap.String("topic", topic), zap.Error(err))
	}
}
