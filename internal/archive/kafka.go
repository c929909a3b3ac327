package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/zach-short/ceros/internal/domain"
	"github.com/zach-short/ceros/pkg/log"
)

// ConfluentArchiver produces every room event to a Kafka topic keyed by
// room id, preserving per-room ordering for downstream consumers.
type ConfluentArchiver struct {
	producer *kafka.Producer
	topic    string
	doneCh   chan struct{}
}

func NewConfluentArchiver(brokers, topic string, partitions int) (*ConfluentArchiver, error) {
	if err := ensureTopic(brokers, topic, partitions); err != nil {
		l := log.L()
		l.Warn().Err(err).Str("topic", topic).Msg("failed to ensure topic (may already exist)")
	}

	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": brokers,
		"acks":              "1",
		"linger.ms":         5,
		"compression.type":  "snappy",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	a := &ConfluentArchiver{
		producer: p,
		topic:    topic,
		doneCh:   make(chan struct{}),
	}

	go a.deliveryReportHandler()

	return a, nil
}

func ensureTopic(brokers, topic string, partitions int) error {
	admin, err := kafka.NewAdminClient(&kafka.ConfigMap{
		"bootstrap.servers": brokers,
	})
	if err != nil {
		return fmt.Errorf("failed to create admin client: %w", err)
	}
	defer admin.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	results, err := admin.CreateTopics(ctx, []kafka.TopicSpecification{
		{
			Topic:             topic,
			NumPartitions:     partitions,
			ReplicationFactor: 1,
		},
	})
	if err != nil {
		return err
	}

	for _, result := range results {
		if result.Error.Code() != kafka.ErrNoError && result.Error.Code() != kafka.ErrTopicAlreadyExists {
			return fmt.Errorf("failed to create topic %s: %v", result.Topic, result.Error)
		}
	}

	return nil
}

func (a *ConfluentArchiver) deliveryReportHandler() {
	for e := range a.producer.Events() {
		switch ev := e.(type) {
		case *kafka.Message:
			if ev.TopicPartition.Error != nil {
				l := log.L()
				l.Error().Err(ev.TopicPartition.Error).Msg("kafka delivery failed")
			}
		}
	}
	close(a.doneCh)
}

func (a *ConfluentArchiver) Archive(ctx context.Context, roomID string, frame domain.Frame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	return a.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &a.topic, Partition: kafka.PartitionAny},
		Key:            []byte(roomID),
		Value:          data,
	}, nil)
}

func (a *ConfluentArchiver) Close() error {
	a.producer.Flush(5000)
	a.producer.Close()
	<-a.doneCh
	return nil
}
