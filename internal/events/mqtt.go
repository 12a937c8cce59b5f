package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type MQTTConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	ClientID string
}

// MQTTClient wraps a connected paho client.
type MQTTClient struct {
	client mqtt.Client
}

func NewMQTTClient(cfg MQTTConfig) (*MQTTClient, error) {
	broker := fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(5 * time.Second)
	opts.SetKeepAlive(30 * time.Second)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	cli := mqtt.NewClient(opts)
	token := cli.Connect()
	if ok := token.WaitTimeout(10 * time.Second); !ok {
		return nil, fmt.Errorf("mqtt connect timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect error: %w", err)
	}
	return &MQTTClient{client: cli}, nil
}

func (c *MQTTClient) Publish(topic string, qos byte, retained bool, payload []byte) error {
	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("mqtt publish to %s timed out", topic)
	}
	return token.Error()
}

func (c *MQTTClient) Close() {
	if c.client != nil && c.client.IsConnected() {
		c.client.Disconnect(250)
	}
}

type mqttPublisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// MQTTSink publishes retained presence messages to {base}/{camera}/presence.
type MQTTSink struct {
	pub       mqttPublisher
	topicBase string
}

func NewMQTTSink(pub mqttPublisher, topicBase string) *MQTTSink {
	return &MQTTSink{pub: pub, topicBase: topicBase}
}

func (s *MQTTSink) Name() string { return "mqtt" }

func (s *MQTTSink) Topic(cameraID string) string {
	return s.topicBase + "/" + cameraID + "/presence"
}

func (s *MQTTSink) Publish(ctx context.Context, ev PresenceEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}
	return s.pub.Publish(s.Topic(ev.CameraID), 1, true, payload)
}
