package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/ductran/service-agent/internal/job"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	topic   string
	headers map[string]string
	value   []byte
	err     error
}

func (p *fakePublisher) Publish(_ context.Context, topic string, headers map[string]string, value []byte) error {
	p.topic = topic
	p.headers = headers
	p.value = value
	return p.err
}

func messagingJob(t *testing.T) *job.Job {
	t.Helper()
	j, err := job.New("acme", job.CreateParams{
		Name:        "notify",
		ServiceType: job.ServiceTypeMessaging,
		Topic:       "alerts",
		Headers:     map[string]string{"priority": "high"},
		Body:        map[string]interface{}{"event": "signup"},
	})
	require.NoError(t, err)
	return j
}

func TestMessagingExecutor_PublishesToNamespacedTopic(t *testing.T) {
	publisher := &fakePublisher{}
	executor := NewMessagingExecutor(publisher, slog.New(slog.NewTextHandler(io.Discard, nil)))

	outcome, err := executor.Execute(context.Background(), messagingJob(t))
	require.NoError(t, err)

	assert.Equal(t, "acme.alerts", publisher.topic)
	assert.Equal(t, map[string]string{"priority": "high"}, publisher.headers)

	var published map[string]interface{}
	require.NoError(t, json.Unmarshal(publisher.value, &published))
	assert.Equal(t, map[string]interface{}{"event": "signup"}, published)

	assert.Equal(t, "Message published to topic", outcome.Response["message"])
	assert.Equal(t, "acme.alerts", outcome.Response["topic"])
}

func TestMessagingExecutor_PublishError(t *testing.T) {
	publisher := &fakePublisher{err: errors.New("broker unavailable")}
	executor := NewMessagingExecutor(publisher, slog.New(slog.NewTextHandler(io.Discard, nil)))

	outcome, err := executor.Execute(context.Background(), messagingJob(t))
	assert.ErrorContains(t, err, "broker unavailable")
	assert.Nil(t, outcome)
}
