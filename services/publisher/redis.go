package publisher

import (
	"context"
	"encoding/base64"

	"github.com/redis/go-redis/v9"

	"sjsage522/listingworker/logger"
	crawlerrors "sjsage522/listingworker/pkg/errors"
)

// MessageField is the stream entry field holding the base64 encoded record
const MessageField = "b64_listing"

// RedisPublisher implements Publisher using Redis streams, one stream per source
type RedisPublisher struct {
	client          *redis.Client
	streamPrefix    string
	streamMaxLength int
	log             *logger.Logger
}

// NewRedisPublisher creates a new Redis publisher
func NewRedisPublisher(addr string, db int, streamPrefix string, streamMaxLength int) *RedisPublisher {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	return &RedisPublisher{
		client:          client,
		streamPrefix:    streamPrefix,
		streamMaxLength: streamMaxLength,
		log: logger.ForPublisher().WithFields(logger.Fields{
			"addr":   addr,
			"db":     db,
			"prefix": streamPrefix,
		}),
	}
}

// Ping checks the connection
func (p *RedisPublisher) Ping(ctx context.Context) error {
	if err := p.client.Ping(ctx).Err(); err != nil {
		return crawlerrors.NewPublisher("redis", "ping failed", err)
	}
	return nil
}

// StreamName returns the stream a source publishes to
func (p *RedisPublisher) StreamName(source string) string {
	return p.streamPrefix + ":" + source
}

// Publish publishes a message to the source's Redis stream.
// The message is base64 encoded before publishing.
func (p *RedisPublisher) Publish(ctx context.Context, source string, message []byte) error {
	encodedMessage := base64.StdEncoding.EncodeToString(message)

	args := &redis.XAddArgs{
		Stream: p.StreamName(source),
		Values: map[string]interface{}{
			MessageField: encodedMessage,
		},
	}
	if p.streamMaxLength > 0 {
		args.MaxLen = int64(p.streamMaxLength)
		args.Approx = true
	}

	id, err := p.client.XAdd(ctx, args).Result()
	if err != nil {
		return crawlerrors.NewPublisher(source, "xadd failed", err)
	}
	p.log.Debug().Str("stream", args.Stream).Str("id", id).Msg("Published record")
	return nil
}

// TrimStreams trims all streams to the configured maximum length
func (p *RedisPublisher) TrimStreams(ctx context.Context) error {
	if p.streamMaxLength <= 0 {
		return nil
	}

	pattern := p.streamPrefix + ":*"
	streams, err := p.client.Keys(ctx, pattern).Result()
	if err != nil {
		return crawlerrors.NewPublisher("redis", "list streams failed", err)
	}

	for _, stream := range streams {
		trimmed, err := p.client.XTrimMaxLen(ctx, stream, int64(p.streamMaxLength)).Result()
		if err != nil {
			return crawlerrors.NewPublisher("redis", "trim "+stream+" failed", err)
		}
		p.log.Debug().Str("stream", stream).Int64("trimmed", trimmed).Msg("Trimmed stream")
	}

	return nil
}

// Close closes the Redis connection
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
