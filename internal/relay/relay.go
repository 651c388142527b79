// Package relay drains the transactional outbox into Kafka. Events reach the
// topic at least once and in per-aggregate order; rows are marked dispatched
// only after the broker acknowledges them.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"taskstream/internal/aggregate"
	"taskstream/internal/eventlog"
	"taskstream/internal/platform/config"
	"taskstream/internal/platform/metrics"
)

const defaultBatchSize = 100

// Producer abstracts the Kafka client so the poll loop is testable.
type Producer interface {
	Produce(ctx context.Context, records []*kgo.Record) error
	Close()
}

// KafkaProducer publishes with franz-go and synchronous acks.
type KafkaProducer struct {
	client *kgo.Client
}

// NewKafkaProducer connects to the brokers and ensures the topic exists.
func NewKafkaProducer(ctx context.Context, cfg config.KafkaConfig) (*KafkaProducer, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}

	admin := kadm.NewClient(client)
	responses, err := admin.CreateTopics(ctx, 3, 1, nil, cfg.Topic)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("ensure topic %s: %w", cfg.Topic, err)
	}
	for _, response := range responses {
		if response.Err != nil && !errors.Is(response.Err, kerr.TopicAlreadyExists) {
			client.Close()
			return nil, fmt.Errorf("ensure topic %s: %w", cfg.Topic, response.Err)
		}
	}

	return &KafkaProducer{client: client}, nil
}

func (p *KafkaProducer) Produce(ctx context.Context, records []*kgo.Record) error {
	return p.client.ProduceSync(ctx, records...).FirstErr()
}

func (p *KafkaProducer) Close() { p.client.Close() }

// envelope is the wire shape of one relayed event.
type envelope struct {
	AggregateType string          `json:"aggregate_type"`
	AggregateID   uuid.UUID       `json:"aggregate_id"`
	Seq           uint64          `json:"seq"`
	Kind          string          `json:"kind"`
	Actor         string          `json:"actor,omitempty"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Payload       json.RawMessage `json:"payload"`
}

// Relay polls the outbox and forwards rows to the producer.
type Relay struct {
	outbox   eventlog.Outbox
	producer Producer
	log      *logrus.Logger
	metrics  *metrics.Metrics

	interval time.Duration
	batch    int
}

func New(outbox eventlog.Outbox, producer Producer, log *logrus.Logger, m *metrics.Metrics, interval time.Duration) *Relay {
	if interval <= 0 {
		interval = time.Second
	}
	return &Relay{
		outbox:   outbox,
		producer: producer,
		log:      log,
		metrics:  m,
		interval: interval,
		batch:    defaultBatchSize,
	}
}

// Run polls until the context is cancelled. Publish failures are logged and
// retried on the next tick; rows stay undispatched until acknowledged.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.Drain(ctx); err != nil {
				r.log.WithError(err).Warn("outbox drain failed, will retry")
			}
		}
	}
}

// Drain relays batches until the outbox is empty.
func (r *Relay) Drain(ctx context.Context) error {
	for {
		relayed, err := r.relayBatch(ctx)
		if err != nil || relayed < r.batch {
			return err
		}
	}
}

func (r *Relay) relayBatch(ctx context.Context) (int, error) {
	entries, err := r.outbox.ReadUndispatched(ctx, r.batch)
	if err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		return 0, nil
	}

	records := make([]*kgo.Record, 0, len(entries))
	ids := make([]int64, 0, len(entries))
	for _, entry := range entries {
		record, err := recordFor(entry.Event)
		if err != nil {
			return 0, err
		}
		records = append(records, record)
		ids = append(ids, entry.ID)
	}

	if err := r.producer.Produce(ctx, records); err != nil {
		return 0, fmt.Errorf("produce outbox batch: %w", err)
	}
	if err := r.outbox.MarkDispatched(ctx, ids); err != nil {
		// The batch was published; the next poll republishes it, which
		// downstream consumers must tolerate (at-least-once).
		return 0, fmt.Errorf("mark outbox dispatched: %w", err)
	}

	r.metrics.OutboxRelayed.Add(float64(len(entries)))
	r.log.WithField("count", len(entries)).Debug("outbox batch relayed")
	return len(entries), nil
}

// recordFor keys records by aggregate id so one aggregate's events land on
// one partition, preserving their order for consumers.
func recordFor(event aggregate.Event) (*kgo.Record, error) {
	payload, err := aggregate.EncodePayload(event.Payload)
	if err != nil {
		return nil, err
	}
	env := envelope{
		AggregateType: string(event.AggregateType),
		AggregateID:   event.AggregateID,
		Seq:           event.Seq,
		Kind:          string(event.Kind),
		OccurredAt:    event.OccurredAt,
		Payload:       payload,
	}
	if !event.Actor.IsNil() {
		env.Actor = event.Actor.String()
	}
	value, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal relay envelope: %w", err)
	}
	return &kgo.Record{
		Key:   []byte(event.AggregateID.String()),
		Value: value,
	}, nil
}
