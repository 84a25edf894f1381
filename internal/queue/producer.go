package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"subject-choices/internal/model"
)

type Producer struct {
	client ListClient
	queue  string
}

func NewProducer(client ListClient, queueName string) *Producer {
	return &Producer{
		client: client,
		queue:  queueName,
	}
}

func (p *Producer) EnqueueIngestionJob(ctx context.Context, job model.IngestionJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}

	if err := p.client.LPush(ctx, p.queue, data).Err(); err != nil {
		return fmt.Errorf("failed to enqueue ingestion job: %w", err)
	}
	return nil
}
