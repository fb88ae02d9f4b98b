package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// defaultConsumerGroup is the consumer group workers join.
	defaultConsumerGroup = "workers"

	// defaultBlockTimeout is how long a read blocks waiting for messages.
	defaultBlockTimeout = 5 * time.Second

	// defaultBatchSize is the number of messages read per batch.
	defaultBatchSize = 10

	// defaultClaimMinIdle is the minimum idle time before a pending message
	// abandoned by a dead consumer is claimed.
	defaultClaimMinIdle = 5 * time.Minute

	// maxPendingCheck caps how many pending messages one claim pass inspects.
	maxPendingCheck = 100
)

// ConsumedTask is a task read from the queue along with its delivery handle.
type ConsumedTask struct {
	MessageID  string
	Stream     string
	Task       Task
	EnqueuedAt time.Time
}

// Consumer reads tasks from the per-type streams through a consumer group.
type Consumer struct {
	client        *StreamsClient
	consumerGroup string
	consumerID    string
	blockTimeout  time.Duration
	batchSize     int64
	claimMinIdle  time.Duration
}

// ConsumerConfig holds configuration for the Consumer.
type ConsumerConfig struct {
	ConsumerGroup string        // Consumer group name (default "workers")
	ConsumerID    string        // Unique consumer identifier (required)
	BlockTimeout  time.Duration // Block timeout for reads (0 = default)
	BatchSize     int64         // Messages per read (0 = default)
	ClaimMinIdle  time.Duration // Min idle before claiming (0 = default)
}

// NewConsumer creates a new task consumer.
func NewConsumer(client *StreamsClient, cfg ConsumerConfig) (*Consumer, error) {
	if cfg.ConsumerID == "" {
		return nil, errors.New("consumer ID is required")
	}

	group := cfg.ConsumerGroup
	if group == "" {
		group = defaultConsumerGroup
	}

	blockTimeout := cfg.BlockTimeout
	if blockTimeout <= 0 {
		blockTimeout = defaultBlockTimeout
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	claimMinIdle := cfg.ClaimMinIdle
	if claimMinIdle <= 0 {
		claimMinIdle = defaultClaimMinIdle
	}

	return &Consumer{
		client:        client,
		consumerGroup: group,
		consumerID:    cfg.ConsumerID,
		blockTimeout:  blockTimeout,
		batchSize:     batchSize,
		claimMinIdle:  claimMinIdle,
	}, nil
}

// Initialize creates the consumer group on every task stream.
func (c *Consumer) Initialize(ctx context.Context) error {
	for _, stream := range c.client.AllStreams() {
		err := c.client.Client().XGroupCreateMkStream(ctx, stream, c.consumerGroup, "0").Err()
		if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
			return fmt.Errorf("failed to create consumer group on %s: %w", stream, err)
		}
	}
	return nil
}

// Read blocks until tasks are available on any stream, up to the block
// timeout. An empty slice means the timeout elapsed with nothing to do.
func (c *Consumer) Read(ctx context.Context) ([]ConsumedTask, error) {
	streams := c.client.AllStreams()
	args := make([]string, 0, len(streams)*2)
	args = append(args, streams...)
	for range streams {
		args = append(args, ">")
	}

	result, err := c.client.Client().XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.consumerGroup,
		Consumer: c.consumerID,
		Streams:  args,
		Count:    c.batchSize,
		Block:    c.blockTimeout,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read from streams: %w", err)
	}

	var tasks []ConsumedTask
	for _, stream := range result {
		for _, msg := range stream.Messages {
			task, parseErr := parseMessage(stream.Stream, msg)
			if parseErr != nil {
				// A malformed message can never succeed; drop it from the
				// pending list so it is not redelivered forever.
				_ = c.Ack(ctx, stream.Stream, msg.ID)
				continue
			}
			tasks = append(tasks, task)
		}
	}

	return tasks, nil
}

// ClaimStale claims pending messages abandoned by dead consumers.
func (c *Consumer) ClaimStale(ctx context.Context) ([]ConsumedTask, error) {
	var tasks []ConsumedTask

	for _, stream := range c.client.AllStreams() {
		msgs, _, err := c.client.Client().XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   stream,
			Group:    c.consumerGroup,
			Consumer: c.consumerID,
			MinIdle:  c.claimMinIdle,
			Start:    "0",
			Count:    maxPendingCheck,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return tasks, fmt.Errorf("failed to claim stale messages on %s: %w", stream, err)
		}

		for _, msg := range msgs {
			task, parseErr := parseMessage(stream, msg)
			if parseErr != nil {
				_ = c.Ack(ctx, stream, msg.ID)
				continue
			}
			tasks = append(tasks, task)
		}
	}

	return tasks, nil
}

// Ack acknowledges a processed message.
func (c *Consumer) Ack(ctx context.Context, stream, messageID string) error {
	if err := c.client.Client().XAck(ctx, stream, c.consumerGroup, messageID).Err(); err != nil {
		return fmt.Errorf("failed to ack message %s: %w", messageID, err)
	}
	return nil
}

// parseMessage decodes one stream message into a ConsumedTask.
func parseMessage(stream string, msg redis.XMessage) (ConsumedTask, error) {
	raw, ok := msg.Values[TaskDataField].(string)
	if !ok {
		return ConsumedTask{}, fmt.Errorf("message %s missing task data", msg.ID)
	}

	var task Task
	if err := json.Unmarshal([]byte(raw), &task); err != nil {
		return ConsumedTask{}, fmt.Errorf("failed to decode task in message %s: %w", msg.ID, err)
	}

	consumed := ConsumedTask{
		MessageID: msg.ID,
		Stream:    stream,
		Task:      task,
	}

	if ts, ok := msg.Values[EnqueuedAtField].(string); ok {
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			consumed.EnqueuedAt = t
		}
	}

	return consumed, nil
}
