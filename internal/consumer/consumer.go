package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ductran/service-agent/internal/job"
	"github.com/ductran/service-agent/shared/kafka"
)

// State is the consumer's position in its subscription lifecycle.
type State string

const (
	// StateIdle means not consuming: either no namespaced topic exists yet
	// or the consumer has not started.
	StateIdle State = "IDLE"
	// StateListening means actively consuming the current subscription set.
	StateListening State = "LISTENING"
	// StateRebalancing means consumption is paused while the subscription
	// set is being expanded. Messages queued on already-subscribed topics
	// are delayed, not lost.
	StateRebalancing State = "REBALANCING"
)

// DefaultDiscoveryInterval is how often the bus is re-scanned for new
// tenant topics.
const DefaultDiscoveryInterval = 30 * time.Second

// Bus is the slice of the message bus the consumer needs: topic listing on
// a connection separate from the consume loop, and group readers over a
// topic set.
type Bus interface {
	ListTopics(ctx context.Context) ([]string, error)
	NewReader(topics []string) kafka.Reader
}

// IncomingMessage is one decoded job message with the tenant recovered from
// the namespaced topic.
type IncomingMessage struct {
	TenantID  string
	Topic     string
	FullTopic string
	Partition int
	Offset    int64
	Headers   map[string]string
	Body      map[string]interface{}
}

// Handler processes one decoded message. Downstream handling is
// pluggable; the default handler logs.
type Handler func(ctx context.Context, msg IncomingMessage)

// Config holds consumer configuration.
type Config struct {
	Bus               Bus
	Logger            *slog.Logger
	DiscoveryInterval time.Duration
	Handler           Handler
	// OnStateChange, when set, observes every state transition.
	OnStateChange func(State)
}

// Consumer subscribes to every tenant-namespaced topic it can discover and
// periodically re-scans the bus, expanding its subscription set without
// dropping queued messages. Topics are never unsubscribed once added.
type Consumer struct {
	bus           Bus
	logger        *slog.Logger
	interval      time.Duration
	handler       Handler
	onStateChange func(State)

	mu         sync.Mutex
	state      State
	subscribed map[string]struct{}
	reader     kafka.Reader

	wg sync.WaitGroup
}

// New creates a new Consumer.
func New(cfg *Config) *Consumer {
	interval := cfg.DiscoveryInterval
	if interval <= 0 {
		interval = DefaultDiscoveryInterval
	}

	c := &Consumer{
		bus:           cfg.Bus,
		logger:        cfg.Logger,
		interval:      interval,
		handler:       cfg.Handler,
		onStateChange: cfg.OnStateChange,
		state:         StateIdle,
		subscribed:    make(map[string]struct{}),
	}

	if c.handler == nil {
		c.handler = c.logMessage
	}

	return c
}

// State returns the current lifecycle state.
func (c *Consumer) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Subscribed returns the current subscription set, sorted.
func (c *Consumer) Subscribed() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	topics := make([]string, 0, len(c.subscribed))
	for t := range c.subscribed {
		topics = append(topics, t)
	}
	sort.Strings(topics)
	return topics
}

// Run subscribes to all existing namespaced topics, then alternates between
// consuming and periodic topic discovery until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	initial, err := c.listNamespacedTopics(ctx)
	if err != nil {
		c.logger.Error("Initial topic listing failed",
			slog.Any("error", err),
		)
	}

	if len(initial) > 0 {
		c.logger.Info("Found namespaced topics",
			slog.Int("count", len(initial)),
			slog.Any("topics", initial),
		)
		c.subscribe(ctx, initial)
	} else {
		c.logger.Info("No namespaced topics found, will check periodically for new topics")
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return ctx.Err()
		case <-ticker.C:
			c.discover(ctx)
		}
	}
}

// discover re-lists bus topics and expands the subscription set when new
// namespaced topics have appeared.
func (c *Consumer) discover(ctx context.Context) {
	topics, err := c.listNamespacedTopics(ctx)
	if err != nil {
		c.logger.Error("Topic discovery failed",
			slog.Any("error", err),
		)
		return
	}

	c.mu.Lock()
	var newTopics []string
	for _, t := range topics {
		if _, ok := c.subscribed[t]; !ok {
			newTopics = append(newTopics, t)
		}
	}
	c.mu.Unlock()

	if len(newTopics) == 0 {
		return
	}

	c.logger.Info("Discovered new topics",
		slog.Int("count", len(newTopics)),
		slog.Any("topics", newTopics),
	)

	c.setState(StateRebalancing)
	c.stopConsuming()
	c.subscribe(ctx, newTopics)
}

// subscribe merges topics into the subscription set, opens a reader over
// the full merged set, and resumes consumption.
func (c *Consumer) subscribe(ctx context.Context, topics []string) {
	c.mu.Lock()
	for _, t := range topics {
		c.subscribed[t] = struct{}{}
	}
	merged := make([]string, 0, len(c.subscribed))
	for t := range c.subscribed {
		merged = append(merged, t)
	}
	sort.Strings(merged)

	reader := c.bus.NewReader(merged)
	c.reader = reader
	c.mu.Unlock()

	c.wg.Add(1)
	go c.consumeLoop(ctx, reader)

	c.setState(StateListening)

	c.logger.Info("Consumer subscribed",
		slog.Int("topic_count", len(merged)),
	)
}

// stopConsuming closes the active reader and waits for the consume loop to
// drain. Messages on already-subscribed topics stay queued at the bus.
func (c *Consumer) stopConsuming() {
	c.mu.Lock()
	reader := c.reader
	c.reader = nil
	c.mu.Unlock()

	if reader == nil {
		return
	}

	if err := reader.Close(); err != nil {
		c.logger.Warn("Failed to close reader",
			slog.Any("error", err),
		)
	}
	c.wg.Wait()
}

func (c *Consumer) shutdown() {
	c.stopConsuming()
	c.setState(StateIdle)
	c.logger.Info("Consumer stopped")
}

func (c *Consumer) consumeLoop(ctx context.Context, reader kafka.Reader) {
	defer c.wg.Done()

	for {
		msg, err := reader.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
				c.logger.Debug("Consume loop stopped")
			} else {
				c.logger.Error("Consume loop stopped on fetch error",
					slog.Any("error", err),
				)
			}
			return
		}

		c.processMessage(ctx, msg)

		if err := reader.Commit(ctx, msg); err != nil {
			c.logger.Warn("Failed to commit message",
				slog.String("topic", msg.Topic),
				slog.Int64("offset", msg.Offset),
				slog.Any("error", err),
			)
		}
	}
}

// processMessage decodes one record. Empty or non-JSON payloads are skipped
// without error: shared infrastructure carries non-job traffic and the
// consumer tolerates it.
func (c *Consumer) processMessage(ctx context.Context, msg kafka.Message) {
	if len(msg.Value) == 0 {
		c.logger.Debug("Skipping empty message",
			slog.String("topic", msg.Topic),
		)
		return
	}

	var body map[string]interface{}
	if err := json.Unmarshal(msg.Value, &body); err != nil {
		c.logger.Info("Skipping non-JSON message",
			slog.String("topic", msg.Topic),
		)
		return
	}

	tenantID, topicName, _ := job.SplitTopic(msg.Topic)

	c.handler(ctx, IncomingMessage{
		TenantID:  tenantID,
		Topic:     topicName,
		FullTopic: msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Headers:   msg.Headers,
		Body:      body,
	})
}

func (c *Consumer) logMessage(_ context.Context, msg IncomingMessage) {
	c.logger.Info("Received message",
		slog.String("tenant_id", msg.TenantID),
		slog.String("topic", msg.Topic),
		slog.String("full_topic", msg.FullTopic),
		slog.Int("partition", msg.Partition),
		slog.Int64("offset", msg.Offset),
		slog.Any("headers", msg.Headers),
		slog.Any("body", msg.Body),
	)
}

func (c *Consumer) listNamespacedTopics(ctx context.Context) ([]string, error) {
	topics, err := c.bus.ListTopics(ctx)
	if err != nil {
		return nil, err
	}

	var namespaced []string
	for _, t := range topics {
		if strings.Contains(t, job.TopicSeparator) && !strings.HasPrefix(t, "__") {
			namespaced = append(namespaced, t)
		}
	}
	return namespaced, nil
}

func (c *Consumer) setState(s State) {
	c.mu.Lock()
	changed := c.state != s
	c.state = s
	c.mu.Unlock()

	if changed && c.onStateChange != nil {
		c.onStateChange(s)
	}
}
