package publisher

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"gridcast/backend/services/energy-service/internal/models"
)

type kafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes one message per reading keyed by station id.
type KafkaPublisher struct {
	writer kafkaWriter
	runID  string
}

// NewKafkaWriter builds a synchronous writer that waits for the leader ack.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchSize:    1,
		WriteTimeout: 10 * time.Second,
	}
}

// NewKafkaPublisher wraps writer; runID is stamped on every message.
func NewKafkaPublisher(writer kafkaWriter, runID string) *KafkaPublisher {
	return &KafkaPublisher{writer: writer, runID: runID}
}

// Publish writes one reading keyed by station so a station's readings stay ordered.
func (p *KafkaPublisher) Publish(ctx context.Context, reading models.Reading) error {
	payload, err := Encode(p.runID, reading)
	if err != nil {
		return fmt.Errorf("publisher: encode reading: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(reading.StationID),
		Value: payload,
		Time:  reading.Timestamp,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publisher: kafka write: %w", err)
	}
	return nil
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
