package telemetry

import (
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTConfig configures the optional cycle publisher. An empty Broker
// disables publishing.
type MQTTConfig struct {
	Broker   string `yaml:"broker" json:"broker"`
	ClientID string `yaml:"client_id" json:"client_id"`
	Topic    string `yaml:"topic" json:"topic"`
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"-"`
	QoS      byte   `yaml:"qos" json:"qos"`
	Retained bool   `yaml:"retained" json:"retained"`
}

// Publisher sends cycle payloads to a message broker.
type Publisher interface {
	Publish(payload []byte) error
	Close()
}

type noopPublisher struct{}

func (noopPublisher) Publish([]byte) error { return nil }
func (noopPublisher) Close()               {}

// NoopPublisher discards every payload.
func NoopPublisher() Publisher { return noopPublisher{} }

const mqttTimeout = 5 * time.Second

type mqttPublisher struct {
	client mqtt.Client
	cfg    MQTTConfig
}

// NewPublisher connects to cfg.Broker, or returns a no-op publisher when no
// broker is configured.
func NewPublisher(cfg MQTTConfig) (Publisher, error) {
	if cfg.Broker == "" {
		return NoopPublisher(), nil
	}
	if cfg.Topic == "" {
		cfg.Topic = "guardian/soil"
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "pepper-guardian"
	}
	if cfg.QoS > 2 {
		return nil, fmt.Errorf("mqtt qos %d outside 0-2", cfg.QoS)
	}
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetAutoReconnect(true).
		SetConnectTimeout(mqttTimeout).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Println("mqtt: connection lost:", err)
		})
	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(mqttTimeout) {
		return nil, fmt.Errorf("mqtt: connect to %s timed out", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt: connect to %s: %w", cfg.Broker, err)
	}
	log.Println("mqtt: publishing cycles to", cfg.Broker, cfg.Topic)
	return &mqttPublisher{client: client, cfg: cfg}, nil
}

func (p *mqttPublisher) Publish(payload []byte) error {
	token := p.client.Publish(p.cfg.Topic, p.cfg.QoS, p.cfg.Retained, payload)
	if !token.WaitTimeout(mqttTimeout) {
		return fmt.Errorf("mqtt: publish to %s timed out", p.cfg.Topic)
	}
	return token.Error()
}

func (p *mqttPublisher) Close() {
	p.client.Disconnect(250)
}
