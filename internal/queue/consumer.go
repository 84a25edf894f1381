package queue

import (
	"context"
	"time"

	"subject-choices/internal/logger"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
)

const (
	popTimeout   = 5 * time.Second
	errorBackoff = time.Second
)

type Consumer struct {
	client    ListClient
	queue     string
	dlqSuffix string
	log       zerolog.Logger
}

type MessageHandler func(ctx context.Context, data []byte) error

func NewConsumer(client ListClient, queueName, dlqSuffix string) *Consumer {
	return &Consumer{
		client:    client,
		queue:     queueName,
		dlqSuffix: dlqSuffix,
		log:       logger.Get().With().Str("queue", queueName).Logger(),
	}
}

func (c *Consumer) DeadLetterQueue() string {
	return c.queue + c.dlqSuffix
}

// Consume pops messages until ctx is cancelled. A message the handler rejects
// is pushed to the dead-letter list.
func (c *Consumer) Consume(ctx context.Context, handler MessageHandler) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		result, err := c.client.BRPop(ctx, popTimeout, c.queue).Result()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.log.Error().Err(err).Msg("Failed to consume message")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(errorBackoff):
			}
			continue
		}

		if len(result) < 2 {
			continue
		}

		message := result[1]
		if err := handler(ctx, []byte(message)); err != nil {
			c.log.Error().Err(err).Msg("Failed to process message")
			dlq := c.DeadLetterQueue()
			if dlqErr := c.client.LPush(ctx, dlq, message).Err(); dlqErr != nil {
				c.log.Error().Err(dlqErr).Str("dlq", dlq).Msg("Failed to move message to DLQ")
			}
		}
	}
}
