package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prohmpiriya/gym-platform/pkg/logger"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"
)

// Publisher publishes one event
type Publisher interface {
	Publish(ctx context.Context, topic, key string, value []byte) error
}

// ProducerConfig holds producer settings
type ProducerConfig struct {
	Brokers        []string
	ClientID       string
	ProduceTimeout time.Duration
}

// Producer is a synchronous franz-go producer. With no brokers configured
// it drops events.
type Producer struct {
	client  *kgo.Client
	timeout time.Duration
	log     *logger.Logger
}

// NewProducer creates a producer and pings the cluster
func NewProducer(ctx context.Context, cfg *ProducerConfig, log *logger.Logger) (*Producer, error) {
	if log == nil {
		log = logger.Nop()
	}
	p := &Producer{timeout: 5 * time.Second, log: log.Named("kafka")}
	if cfg == nil || len(cfg.Brokers) == 0 {
		p.log.Warn("no kafka brokers configured, events will be dropped")
		return p, nil
	}
	if cfg.ProduceTimeout > 0 {
		p.timeout = cfg.ProduceTimeout
	}

	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerLinger(0),
	}
	if cfg.ClientID != "" {
		opts = append(opts, kgo.ClientID(cfg.ClientID))
	}
	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}
	if err := client.Ping(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to reach kafka brokers: %w", err)
	}
	p.client = client
	return p, nil
}

// Enabled reports whether events are actually sent
func (p *Producer) Enabled() bool {
	return p != nil && p.client != nil
}

// Publish produces a record and waits for the broker ack
func (p *Producer) Publish(ctx context.Context, topic, key string, value []byte) error {
	if !p.Enabled() {
		return nil
	}
	if topic == "" {
		return errors.New("kafka: topic is required")
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	record := &kgo.Record{Topic: topic, Key: []byte(key), Value: value}
	if rid, ok := ctx.Value(logger.RequestIDKey).(string); ok && rid != "" {
		record.Headers = append(record.Headers, kgo.RecordHeader{Key: "request_id", Value: []byte(rid)})
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	return nil
}

// PublishJSON marshals v and publishes it
func PublishJSON(ctx context.Context, pub Publisher, topic, key string, v interface{}) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return pub.Publish(ctx, topic, key, body)
}

// Close flushes buffered records and closes the client
func (p *Producer) Close() {
	if !p.Enabled() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	if err := p.client.Flush(ctx); err != nil {
		p.log.Warn("kafka flush on close failed", zap.Error(err))
	}
	p.client.Close()
}
