package queue

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekemper/leadGen-sub001/internal/domain"
)

func TestStreamNames(t *testing.T) {
	client := NewStreamsClient(nil, "leadgen")

	assert.Equal(t, "leadgen:tasks:fetch_leads", client.StreamName(domain.JobTypeFetchLeads))
	assert.Equal(t, "leadgen:tasks:enrich_lead", client.StreamName(domain.JobTypeEnrichLead))
	assert.Equal(t, "leadgen:tasks:cleanup", client.StreamName(domain.JobTypeCleanup))
	assert.Len(t, client.AllStreams(), 3)
}

func TestStreamNameDefaultPrefix(t *testing.T) {
	client := NewStreamsClient(nil, "")

	assert.Equal(t, "leadgen:tasks:cleanup", client.StreamName(domain.JobTypeCleanup))
}

func TestEnqueueValidation(t *testing.T) {
	producer := NewProducer(NewStreamsClient(nil, ""), ProducerConfig{})

	_, err := producer.Enqueue(context.Background(), Task{Type: domain.JobTypeCleanup})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "job id is required")

	_, err = producer.Enqueue(context.Background(), Task{JobID: "job-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "type is required")
}

func TestParseMessage(t *testing.T) {
	msg := redis.XMessage{
		ID: "1693000000000-0",
		Values: map[string]any{
			TaskDataField:   `{"type":"enrich_lead","job_id":"job-1","campaign_id":"camp-1","lead_id":"lead-1"}`,
			EnqueuedAtField: "2026-08-30T12:00:00Z",
		},
	}

	consumed, err := parseMessage("leadgen:tasks:enrich_lead", msg)

	require.NoError(t, err)
	assert.Equal(t, "1693000000000-0", consumed.MessageID)
	assert.Equal(t, "leadgen:tasks:enrich_lead", consumed.Stream)
	assert.Equal(t, domain.JobTypeEnrichLead, consumed.Task.Type)
	assert.Equal(t, "job-1", consumed.Task.JobID)
	assert.Equal(t, "lead-1", consumed.Task.LeadID)
	assert.Equal(t, 2026, consumed.EnqueuedAt.Year())
}

func TestParseMessageMissingTaskData(t *testing.T) {
	_, err := parseMessage("s", redis.XMessage{ID: "1-0", Values: map[string]any{}})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing task data")
}

func TestParseMessageBadJSON(t *testing.T) {
	_, err := parseMessage("s", redis.XMessage{
		ID:     "1-0",
		Values: map[string]any{TaskDataField: "{not json"},
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode task")
}

func TestConsumerConfigValidation(t *testing.T) {
	client := NewStreamsClient(nil, "")

	_, err := NewConsumer(client, ConsumerConfig{})
	require.Error(t, err)

	c, err := NewConsumer(client, ConsumerConfig{ConsumerID: "worker-1"})
	require.NoError(t, err)
	assert.NotNil(t, c)
}
