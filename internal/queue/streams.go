// Package queue provides the Redis Streams task scheduler the control plane
// fans work out through: one FETCH_LEADS task per campaign start, one
// ENRICH_LEAD task per lead, and periodic CLEANUP sweeps.
package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ekemper/leadGen-sub001/internal/domain"
)

const (
	// defaultConnectionTimeout bounds the connectivity check.
	defaultConnectionTimeout = 2 * time.Second

	// defaultPrefix namespaces stream keys when none is configured.
	defaultPrefix = "leadgen"
)

// StreamsClient wraps a Redis client with streams-specific operations.
type StreamsClient struct {
	client *redis.Client
	prefix string
}

// NewStreamsClient creates a StreamsClient from an existing Redis client.
func NewStreamsClient(client *redis.Client, prefix string) *StreamsClient {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &StreamsClient{client: client, prefix: prefix}
}

// StreamName returns the stream key for a task type.
func (c *StreamsClient) StreamName(taskType domain.JobType) string {
	return fmt.Sprintf("%s:tasks:%s", c.prefix, taskType)
}

// AllStreams returns the stream keys for every task type.
func (c *StreamsClient) AllStreams() []string {
	return []string{
		c.StreamName(domain.JobTypeFetchLeads),
		c.StreamName(domain.JobTypeEnrichLead),
		c.StreamName(domain.JobTypeCleanup),
	}
}

// XAdd appends a message to a stream with bounded length.
func (c *StreamsClient) XAdd(ctx context.Context, stream string, maxLen int64, values map[string]any) (string, error) {
	return c.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: maxLen,
		Approx: true,
		Values: values,
	}).Result()
}

// Ping verifies connectivity.
func (c *StreamsClient) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, defaultConnectionTimeout)
	defer cancel()
	return c.client.Ping(ctx).Err()
}

// Client exposes the underlying Redis client for consumer-group operations.
func (c *StreamsClient) Client() *redis.Client {
	return c.client
}
