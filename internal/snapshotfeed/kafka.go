package snapshotfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/semiotic-ai/network-topology/internal/topology"
)

// KafkaPublisher publishes the same UpdateEvent Hub broadcasts in-process
// to an operator-configured Kafka topic, for downstream services that want
// network-change signals without polling the admin API. This side only
// ever produces; consuming belongs to those downstream services.
type KafkaPublisher struct {
	writer *kafka.Writer
	topic  string
}

// NewKafkaPublisher builds a KafkaPublisher. brokers must be non-empty.
func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("snapshotfeed: at least one kafka broker is required")
	}
	if topic == "" {
		topic = "network-topology.snapshot-updated"
	}
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Balancer:     &kafka.LeastBytes{},
			BatchTimeout: 10 * time.Millisecond,
			Async:        false,
		},
		topic: topic,
	}, nil
}

// Publish writes an UpdateEvent derived from stats to the configured
// topic. The write runs on its own goroutine, so Publish returns at once;
// failures are logged and swallowed: a Kafka outage must never stall or
// fail a refresh.
func (p *KafkaPublisher) Publish(refreshID string, stats topology.RefreshStats) {
	evt := UpdateEvent{
		RefreshID:   refreshID,
		PublishedAt: stats.StartedAt.Add(stats.Duration),
		DurationMS:  stats.Duration.Milliseconds(),
		Subgraphs:   stats.Subgraphs,
		Deployments: stats.Deployments,
		Indexers:    stats.Indexers,
	}
	value, err := json.Marshal(evt)
	if err != nil {
		log.Printf("snapshotfeed: failed to marshal kafka event: %v", err)
		return
	}

	msg := kafka.Message{Topic: p.topic, Key: []byte(uuid.New().String()), Value: value}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := p.writer.WriteMessages(ctx, msg); err != nil {
			log.Printf("snapshotfeed: kafka publish failed (tolerated): %v", err)
		}
	}()
}

// Close shuts down the underlying writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
