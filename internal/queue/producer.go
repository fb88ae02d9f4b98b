package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ekemper/leadGen-sub001/internal/domain"
)

const (
	// TaskDataField is the field name for the serialized task in stream messages.
	TaskDataField = "task"

	// EnqueuedAtField is the field name for the enqueue timestamp.
	EnqueuedAtField = "enqueued_at"

	// defaultMaxStreamLen caps stream growth.
	defaultMaxStreamLen = 10000
)

// Task is one unit of asynchronous work referencing its job record. The task
// carries IDs only; workers re-read entity state from the database so a task
// replayed after a crash never acts on stale data.
type Task struct {
	Type       domain.JobType `json:"type"`
	JobID      string         `json:"job_id"`
	CampaignID string         `json:"campaign_id"`
	// LeadID is set for ENRICH_LEAD tasks only.
	LeadID string `json:"lead_id,omitempty"`
}

// Producer enqueues tasks onto the per-type streams.
type Producer struct {
	client       *StreamsClient
	maxStreamLen int64
}

// ProducerConfig holds configuration for the Producer.
type ProducerConfig struct {
	MaxStreamLen int64 // Maximum stream length (0 = default)
}

// NewProducer creates a new task producer.
func NewProducer(client *StreamsClient, cfg ProducerConfig) *Producer {
	maxLen := cfg.MaxStreamLen
	if maxLen <= 0 {
		maxLen = defaultMaxStreamLen
	}

	return &Producer{
		client:       client,
		maxStreamLen: maxLen,
	}
}

// Enqueue adds a task to the stream for its type and returns the stream
// message ID, which callers persist as the job's task handle.
func (p *Producer) Enqueue(ctx context.Context, task Task) (string, error) {
	if task.JobID == "" {
		return "", errors.New("task job id is required")
	}
	if task.Type == "" {
		return "", errors.New("task type is required")
	}

	data, err := json.Marshal(task)
	if err != nil {
		return "", fmt.Errorf("failed to serialize task: %w", err)
	}

	values := map[string]any{
		TaskDataField:   string(data),
		EnqueuedAtField: time.Now().UTC().Format(time.RFC3339),
	}

	stream := p.client.StreamName(task.Type)
	messageID, err := p.client.XAdd(ctx, stream, p.maxStreamLen, values)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue task to stream %s: %w", stream, err)
	}

	return messageID, nil
}
