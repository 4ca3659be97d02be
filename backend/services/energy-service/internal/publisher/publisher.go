// Package publisher forwards accepted readings to an optional message broker.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"gridcast/backend/services/energy-service/internal/models"
)

// Supported backends.
const (
	BackendNone  = "none"
	BackendMQTT  = "mqtt"
	BackendKafka = "kafka"
)

// Publisher is the third acquisition sink.
type Publisher interface {
	Publish(ctx context.Context, reading models.Reading) error
	Close() error
}

// Config selects and configures a backend.
type Config struct {
	Backend      string
	MQTTBroker   string
	MQTTClientID string
	KafkaBrokers []string
	KafkaTopic   string
}

// Message is the wire payload.
type Message struct {
	RunID string `json:"run_id"`
	models.Reading
}

// Encode renders a reading for the wire.
func Encode(runID string, reading models.Reading) ([]byte, error) {
	return json.Marshal(Message{RunID: runID, Reading: reading.Normalized()})
}

// Topic is the MQTT topic of a station.
func Topic(station string) string {
	return fmt.Sprintf("gridcast/%s/readings", station)
}

// New builds the configured publisher. Backend none yields a nil Publisher.
func New(cfg Config, runID string, logger *zap.Logger) (Publisher, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", BackendNone:
		return nil, nil
	case BackendMQTT:
		client, err := DialMQTT(cfg.MQTTBroker, cfg.MQTTClientID, 10*time.Second)
		if err != nil {
			return nil, err
		}
		logger.Info("publishing readings over mqtt", zap.String("broker", cfg.MQTTBroker))
		return NewMQTTPublisher(client, runID), nil
	case BackendKafka:
		if len(cfg.KafkaBrokers) == 0 || strings.TrimSpace(cfg.KafkaTopic) == "" {
			return nil, fmt.Errorf("publisher: kafka needs brokers and topic")
		}
		logger.Info("publishing readings to kafka", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
		return NewKafkaPublisher(NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic), runID), nil
	default:
		return nil, fmt.Errorf("publisher: unknown backend %q", cfg.Backend)
	}
}
