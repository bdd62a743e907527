package export

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/photolog/backend/shared/rabbitmq"
)

// JobMessage is the queue payload dispatching a job to a worker
type JobMessage struct {
	JobID string `json:"job_id"`
}

// AMQPQueue publishes job messages through the shared RabbitMQ client
type AMQPQueue struct {
	client *rabbitmq.Client
}

// NewAMQPQueue creates a queue backed by the given RabbitMQ client
func NewAMQPQueue(client *rabbitmq.Client) *AMQPQueue {
	return &AMQPQueue{client: client}
}

// PublishJob publishes the job id with retry and backoff
func (q *AMQPQueue) PublishJob(ctx context.Context, jobID string) error {
	body, err := json.Marshal(JobMessage{JobID: jobID})
	if err != nil {
		return fmt.Errorf("failed to marshal job message: %w", err)
	}

	if err := q.client.PublishWithRetry(ctx, body, "application/json"); err != nil {
		return fmt.Errorf("failed to publish job message: %w", err)
	}
	return nil
}
