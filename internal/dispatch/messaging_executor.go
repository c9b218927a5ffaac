package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ductran/service-agent/internal/job"
)

// Publisher sends one message onto a named bus topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, headers map[string]string, value []byte) error
}

// MessagingExecutor publishes a job's payload onto the tenant-namespaced
// topic {tenantId}.{topic}. The namespace prefix is the sole
// tenant-isolation mechanism on the publish side.
type MessagingExecutor struct {
	publisher Publisher
	logger    *slog.Logger
}

// NewMessagingExecutor creates a new MessagingExecutor.
func NewMessagingExecutor(publisher Publisher, logger *slog.Logger) *MessagingExecutor {
	return &MessagingExecutor{
		publisher: publisher,
		logger:    logger,
	}
}

// Execute implements Executor.
func (e *MessagingExecutor) Execute(ctx context.Context, j *job.Job) (*Outcome, error) {
	topic := j.NamespacedTopic()

	value, err := json.Marshal(j.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode message body: %w", err)
	}

	if err := e.publisher.Publish(ctx, topic, j.Headers, value); err != nil {
		return nil, fmt.Errorf("failed to publish job message: %w", err)
	}

	e.logger.Info("Messaging job executed",
		slog.String("job_id", j.JobID),
		slog.String("topic", topic),
	)

	return &Outcome{
		Response: job.JSONMap{
			"message": "Message published to topic",
			"topic":   topic,
		},
	}, nil
}
