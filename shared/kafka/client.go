package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	kafkago "github.com/segmentio/kafka-go"
)

// Config holds Kafka connection configuration.
type Config struct {
	Brokers       []string
	ClientID      string
	GroupID       string
	FromBeginning bool
}

// Message is one record fetched from the bus, with headers decoded to a
// string map.
type Message struct {
	Topic     string
	Partition int
	Offset    int64
	Headers   map[string]string
	Value     []byte
	Time      time.Time

	raw kafkago.Message
}

// Reader consumes messages from a fixed set of topics until closed.
type Reader interface {
	// Fetch blocks until a message arrives, the context is canceled, or the
	// reader is closed.
	Fetch(ctx context.Context) (Message, error)
	// Commit marks the message as processed within the consumer group.
	Commit(ctx context.Context, msg Message) error
	Close() error
}

// Client is an explicitly owned handle on the Kafka cluster. Publishing
// opens and closes its own writer per call; consuming holds a long-lived
// group reader; metadata operations use a separate connection so topic
// listing never contends with an active consume loop.
type Client struct {
	config *Config
	client *kafkago.Client
	logger *slog.Logger
}

// NewClient creates a new Kafka client. No connection is established until
// the first operation; call Ping to verify the cluster is reachable.
func NewClient(config *Config, logger *slog.Logger) (*Client, error) {
	if len(config.Brokers) == 0 {
		return nil, fmt.Errorf("at least one kafka broker is required")
	}

	client := &Client{
		config: config,
		client: &kafkago.Client{
			Addr: kafkago.TCP(config.Brokers...),
		},
		logger: logger,
	}

	logger.Info("Kafka client initialized",
		slog.Any("brokers", config.Brokers),
		slog.String("client_id", config.ClientID),
	)

	return client, nil
}

// Ping verifies the cluster is reachable by requesting metadata.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.client.Metadata(ctx, &kafkago.MetadataRequest{})
	if err != nil {
		return fmt.Errorf("failed to reach kafka cluster: %w", err)
	}
	return nil
}

// ListTopics returns the names of all topics on the bus, sorted.
func (c *Client) ListTopics(ctx context.Context) ([]string, error) {
	meta, err := c.client.Metadata(ctx, &kafkago.MetadataRequest{})
	if err != nil {
		return nil, fmt.Errorf("failed to list topics: %w", err)
	}

	topics := make([]string, 0, len(meta.Topics))
	for _, t := range meta.Topics {
		if t.Error != nil {
			continue
		}
		topics = append(topics, t.Name)
	}
	sort.Strings(topics)

	return topics, nil
}

// Publish sends one message onto a topic. A writer is opened and closed per
// call; publish volume is bounded by job-creation rate, so connection reuse
// is not worth the lifecycle complexity here.
func (c *Client) Publish(ctx context.Context, topic string, headers map[string]string, value []byte) error {
	writer := &kafkago.Writer{
		Addr:                   kafkago.TCP(c.config.Brokers...),
		Balancer:               &kafkago.LeastBytes{},
		AllowAutoTopicCreation: true,
	}
	defer writer.Close()

	kafkaHeaders := make([]kafkago.Header, 0, len(headers))
	for k, v := range headers {
		kafkaHeaders = append(kafkaHeaders, kafkago.Header{Key: k, Value: []byte(v)})
	}

	err := writer.WriteMessages(ctx, kafkago.Message{
		Topic:   topic,
		Value:   value,
		Headers: kafkaHeaders,
		Time:    time.Now(),
	})
	if err != nil {
		c.logger.Error("Failed to publish message",
			slog.String("topic", topic),
			slog.Any("error", err),
		)
		return fmt.Errorf("failed to publish to topic %s: %w", topic, err)
	}

	c.logger.Debug("Message published",
		slog.String("topic", topic),
		slog.Int("body_size", len(value)),
	)

	return nil
}

// NewReader opens a consumer-group reader over the given topic set. New
// group subscriptions start from the earliest retained offset when
// FromBeginning is set, otherwise from new messages only.
func (c *Client) NewReader(topics []string) Reader {
	startOffset := kafkago.LastOffset
	if c.config.FromBeginning {
		startOffset = kafkago.FirstOffset
	}

	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     c.config.Brokers,
		GroupID:     c.config.GroupID,
		GroupTopics: topics,
		StartOffset: startOffset,
	})

	c.logger.Info("Kafka reader opened",
		slog.String("group_id", c.config.GroupID),
		slog.Int("topic_count", len(topics)),
		slog.Bool("from_beginning", c.config.FromBeginning),
	)

	return &groupReader{reader: reader}
}

type groupReader struct {
	reader *kafkago.Reader
}

func (r *groupReader) Fetch(ctx context.Context) (Message, error) {
	m, err := r.reader.FetchMessage(ctx)
	if err != nil {
		return Message{}, err
	}

	headers := make(map[string]string, len(m.Headers))
	for _, h := range m.Headers {
		headers[h.Key] = string(h.Value)
	}

	return Message{
		Topic:     m.Topic,
		Partition: m.Partition,
		Offset:    m.Offset,
		Headers:   headers,
		Value:     m.Value,
		Time:      m.Time,
		raw:       m,
	}, nil
}

func (r *groupReader) Commit(ctx context.Context, msg Message) error {
	return r.reader.CommitMessages(ctx, msg.raw)
}

func (r *groupReader) Close() error {
	return r.reader.Close()
}
