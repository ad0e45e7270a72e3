package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/arklim/social-platform-offline/internal/core/domain"
	"github.com/arklim/social-platform-offline/internal/core/port"
	"github.com/arklim/social-platform-offline/internal/infra/config"
)

// Applier publishes queued mutations to Kafka, one topic per operation kind
// (<topic_prefix>.<kind>). The producer is synchronous because the drain
// coordinator needs a per-operation result to drive its retry bookkeeping.
type Applier struct {
	producer sarama.SyncProducer
	logger   *zap.Logger
	cfg      config.KafkaSettings
}

// NewApplier initializes the Kafka sync producer.
func NewApplier(cfg config.KafkaSettings, logger *zap.Logger) (*Applier, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_5_0_0

	saramaConfig.Producer.RequiredAcks = sarama.WaitForAll
	saramaConfig.Producer.Compression = sarama.CompressionSnappy
	saramaConfig.Producer.Retry.Max = 3
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true

	saramaConfig.Metadata.Retry.Max = 3
	saramaConfig.Metadata.Retry.Backoff = 250 * time.Millisecond

	producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}

	logger.Info("Kafka applier initialized",
		zap.Strings("brokers", cfg.Brokers),
		zap.String("topic_prefix", cfg.TopicPrefix),
	)

	return &Applier{
		producer: producer,
		logger:   logger,
		cfg:      cfg,
	}, nil
}

// Apply publishes op to its kind topic, keyed by the operation id so
// re-deliveries of the same operation stay on one partition.
func (a *Applier) Apply(_ context.Context, op domain.SyncOperation) error {
	payload, err := json.Marshal(op)
	if err != nil {
		return &domain.ApplyFailure{Kind: op.Kind, ID: op.ID, Err: fmt.Errorf("marshal operation: %w", err)}
	}

	message := &sarama.ProducerMessage{
		Topic: fmt.Sprintf("%s.%s", a.cfg.TopicPrefix, op.Kind),
		Key:   sarama.StringEncoder(op.ID),
		Value: sarama.ByteEncoder(payload),
	}

	partition, offset, err := a.producer.SendMessage(message)
	if err != nil {
		return &domain.ApplyFailure{Kind: op.Kind, ID: op.ID, Err: err}
	}

	a.logger.Debug("sync operation published",
		zap.String("id", op.ID),
		zap.String("topic", message.Topic),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
	)
	return nil
}

// Close shuts down the producer.
func (a *Applier) Close() error {
	if err := a.producer.Close(); err != nil {
		return fmt.Errorf("close kafka producer: %w", err)
	}
	return nil
}

var _ port.Applier = (*Applier)(nil)
