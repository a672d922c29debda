package kafka

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	topic, key string
	value      []byte
}

func (c *capturePublisher) Publish(_ context.Context, topic, key string, value []byte) error {
	c.topic, c.key, c.value = topic, key, value
	return nil
}

func TestNewProducer_NoBrokersDropsEvents(t *testing.T) {
	p, err := NewProducer(context.Background(), &ProducerConfig{}, nil)
	require.NoError(t, err)
	assert.False(t, p.Enabled())
	assert.NoError(t, p.Publish(context.Background(), "tenant-events", "t1", []byte("{}")))
	p.Close()

	var nilProducer *Producer
	assert.NoError(t, nilProducer.Publish(context.Background(), "x", "y", nil))
}

func TestPublishJSON(t *testing.T) {
	pub := &capturePublisher{}
	err := PublishJSON(context.Background(), pub, "tenant-events", "tenant-1", map[string]string{"type": "tenant_created"})
	require.NoError(t, err)

	assert.Equal(t, "tenant-events", pub.topic)
	assert.Equal(t, "tenant-1", pub.key)
	var got map[string]string
	require.NoError(t, json.Unmarshal(pub.value, &got))
	assert.Equal(t, "tenant_created", got["type"])
}

func TestPublishJSON_MarshalError(t *testing.T) {
	err := PublishJSON(context.Background(), &capturePublisher{}, "t", "k", make(chan int))
	assert.Error(t, err)
}

// Integration test. Run with: INTEGRATION_TEST=true KAFKA_BROKERS=localhost:9092 go test ./pkg/kafka/...
func TestProducer_Integration(t *testing.T) {
	if os.Getenv("INTEGRATION_TEST") != "true" || os.Getenv("KAFKA_BROKERS") == "" {
		t.Skip("Skipping integration test. Set INTEGRATION_TEST=true and KAFKA_BROKERS to run.")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	p, err := NewProducer(ctx, &ProducerConfig{
		Brokers:  strings.Split(os.Getenv("KAFKA_BROKERS"), ","),
		ClientID: "gym-platform-test",
	}, nil)
	require.NoError(t, err)
	defer p.Close()

	assert.True(t, p.Enabled())
	assert.NoError(t, p.Publish(ctx, "tenant-events", "integration", []byte(`{"type":"ping"}`)))
}
