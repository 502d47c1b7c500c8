// Package notify publishes configuration activation events so downstream
// consumers can react when the default configuration pointer advances.
package notify

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/matchforge/configurator/pkg/errors"
	"github.com/matchforge/configurator/pkg/json"
	"github.com/matchforge/configurator/pkg/logger"
)

// Event describes one configuration activation.
type Event struct {
	ConfigID    int64     `json:"configID"`
	Comment     string    `json:"comment"`
	DataSources []string  `json:"datasources"`
	ActivatedAt time.Time `json:"activatedAt"`
}

// Notifier publishes activation events. Publishing is best-effort from the
// caller's point of view; the commit protocol downgrades failures to
// warnings.
type Notifier interface {
	ConfigActivated(ctx context.Context, event Event) error
	Close() error
}

// Nop discards every event. Used when no brokers are configured.
type Nop struct{}

var _ Notifier = Nop{}

func (Nop) ConfigActivated(context.Context, Event) error { return nil }

func (Nop) Close() error { return nil }

// Kafka publishes activation events to a Kafka topic, keyed by
// configuration ID so consumers see per-configuration ordering.
type Kafka struct {
	producer sarama.SyncProducer
	topic    string
	logger   *zap.Logger
}

var _ Notifier = (*Kafka)(nil)

// NewKafka connects a synchronous producer to the comma-separated broker
// list. Messages wait for acknowledgement from all in-sync replicas.
func NewKafka(bootstrapServers, topic string) (*Kafka, error) {
	brokers := splitBrokers(bootstrapServers)
	if len(brokers) == 0 {
		return nil, errors.New(errors.ErrorTypeConfig, "kafka bootstrap servers required")
	}
	if topic == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "kafka topic required")
	}

	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 3
	cfg.Producer.Return.Successes = true

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "connecting Kafka producer").
			WithDetail("brokers", bootstrapServers)
	}

	log := logger.Get().With(zap.String("component", "notifier"))
	log.Info("connected to Kafka",
		zap.Strings("brokers", brokers),
		zap.String("topic", topic))

	return &Kafka{producer: producer, topic: topic, logger: log}, nil
}

func (k *Kafka) ConfigActivated(_ context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "encoding activation event")
	}

	message := &sarama.ProducerMessage{
		Topic:     k.topic,
		Key:       sarama.StringEncoder(strconv.FormatInt(event.ConfigID, 10)),
		Value:     sarama.ByteEncoder(payload),
		Timestamp: event.ActivatedAt,
	}

	partition, offset, err := k.producer.SendMessage(message)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "publishing activation event").
			WithDetail("config_id", event.ConfigID).
			WithDetail("topic", k.topic)
	}

	k.logger.Debug("published activation event",
		zap.Int64("config_id", event.ConfigID),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset))
	return nil
}

func (k *Kafka) Close() error {
	if err := k.producer.Close(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "closing Kafka producer")
	}
	return nil
}

func splitBrokers(bootstrapServers string) []string {
	var brokers []string
	for _, broker := range strings.Split(bootstrapServers, ",") {
		broker = strings.TrimSpace(broker)
		if broker != "" {
			brokers = append(brokers, broker)
		}
	}
	return brokers
}
