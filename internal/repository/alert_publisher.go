package repository

import (
	"context"

	"BookPulse/internal/domain/models"
	domrepo "BookPulse/internal/domain/repository"
	pkgkafka "BookPulse/pkg/kafka"
)

// KafkaAlertPublisher implements AlertPublisher for Kafka. Messages are
// keyed by symbol so one symbol's alerts stay ordered within a partition.
type KafkaAlertPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

// NewKafkaAlertPublisher creates a Kafka alert publisher.
func NewKafkaAlertPublisher(producer *pkgkafka.Producer, topic string) domrepo.AlertPublisher {
	return &KafkaAlertPublisher{producer: producer, topic: topic}
}

func (p *KafkaAlertPublisher) PublishAnomalies(ctx context.Context, anomalies []models.MicrostructureAnomaly) error {
	if len(anomalies) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, len(anomalies))
	for i, a := range anomalies {
		msgs[i] = pkgkafka.Message{
			Key:   []byte(a.Symbol),
			Value: a,
		}
	}
	return p.producer.PublishBatch(ctx, p.topic, msgs)
}

func (p *KafkaAlertPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
