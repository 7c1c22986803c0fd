package app

import (
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const mqttTimeout = 5 * time.Second

// Publisher delivers the calibration result to downstream consumers.
type Publisher interface {
	Publish(topic string, payload []byte) error
	Close()
}

// MQTTPublisher publishes retained messages through a paho client.
type MQTTPublisher struct {
	client mqtt.Client
	broker string
}

// NewMQTTPublisher connects to broker.
func NewMQTTPublisher(broker, clientID string) (*MQTTPublisher, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetConnectTimeout(mqttTimeout)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker %s: %w", broker, token.Error())
	}
	log.Printf("mqtt: connected to broker at %s", broker)
	return &MQTTPublisher{client: client, broker: broker}, nil
}

// Publish sends payload with QoS 0 and the retained flag set, so late
// subscribers receive the latest calibration.
func (p *MQTTPublisher) Publish(topic string, payload []byte) error {
	token := p.client.Publish(topic, 0, true, payload)
	if !token.WaitTimeout(mqttTimeout) {
		return fmt.Errorf("timed out publishing to %s", topic)
	}
	return token.Error()
}

func (p *MQTTPublisher) Close() {
	p.client.Disconnect(250)
	log.Printf("mqtt: disconnected from %s", p.broker)
}
