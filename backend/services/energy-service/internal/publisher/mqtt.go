package publisher

import (
	"context"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"gridcast/backend/services/energy-service/internal/models"
)

// mqttClient is the subset of mqtt.Client the publisher needs.
type mqttClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTTPublisher sends readings with QoS 0 to gridcast/{station}/readings.
type MQTTPublisher struct {
	client mqttClient
	runID  string
}

// DialMQTT connects to the broker with auto-reconnect enabled.
func DialMQTT(broker, clientID string, timeout time.Duration) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetConnectTimeout(timeout)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("publisher: connect mqtt broker: %w", token.Error())
	}
	return client, nil
}

// NewMQTTPublisher wraps a connected client; runID is stamped on every message.
func NewMQTTPublisher(client mqttClient, runID string) *MQTTPublisher {
	return &MQTTPublisher{client: client, runID: runID}
}

// Publish sends one reading and waits for the client to hand it off or ctx to end.
func (p *MQTTPublisher) Publish(ctx context.Context, reading models.Reading) error {
	payload, err := Encode(p.runID, reading)
	if err != nil {
		return fmt.Errorf("publisher: encode reading: %w", err)
	}

	token := p.client.Publish(Topic(reading.StationID), 0, false, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publisher: mqtt publish: %w", err)
	}
	return nil
}

// Close disconnects from the broker, letting in-flight work finish for 250ms.
func (p *MQTTPublisher) Close() error {
	p.client.Disconnect(250)
	return nil
}
