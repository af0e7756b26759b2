// Package mqtt delivers forwarded messages and telemetry to the remote
// broker. Reconnection of the broker link itself is left to the paho
// client; the gateway core only sees publish errors.
package mqtt

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"sms-gateway/internal/config"
	"sms-gateway/internal/sms"
)

const (
	publishTimeout    = 5 * time.Second
	disconnectQuiesce = 1000 // milliseconds
	keepAlive         = 60 * time.Second
)

// Client wraps the paho client with the gateway's two topics.
type Client struct {
	client pahomqtt.Client
	cfg    config.MQTTConfig
	logger *log.Logger
}

// smsPayload is the wire format published for each forwarded message.
type smsPayload struct {
	ID         string `json:"id"`
	Sender     string `json:"sender"`
	Body       string `json:"body"`
	Timestamp  string `json:"timestamp"`
	ReceivedAt string `json:"received_at"`
}

// Connect establishes the broker session. Fails when the broker is not
// reachable within the configured connect timeout.
func Connect(cfg config.MQTTConfig, logger *log.Logger) (*Client, error) {
	opts := pahomqtt.NewClientOptions()

	scheme := "tcp"
	if cfg.TLS {
		scheme = "ssl"
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Host, cfg.Port))
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetKeepAlive(keepAlive)
	opts.SetAutoReconnect(true)
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		logger.Printf("[MQTT] connection lost: %v", err)
	})
	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		logger.Printf("[MQTT] connected to %s:%d", cfg.Host, cfg.Port)
	})

	c := &Client{
		client: pahomqtt.NewClient(opts),
		cfg:    cfg,
		logger: logger,
	}

	token := c.client.Connect()
	if !token.WaitTimeout(cfg.ConnectTimeout) {
		return nil, fmt.Errorf("broker connect timed out after %v", cfg.ConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("broker connect failed: %v", err)
	}

	return c, nil
}

// PublishSMS forwards one message to the inbound SMS topic.
func (c *Client) PublishSMS(msg sms.Message) error {
	payload, err := json.Marshal(smsPayload{
		ID:         msg.ID,
		Sender:     msg.Sender,
		Body:       msg.Body,
		Timestamp:  msg.Timestamp,
		ReceivedAt: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("cannot encode message %s: %v", msg.ID, err)
	}
	return c.publish(c.cfg.TopicSMS, payload)
}

// PublishTelemetry publishes the telemetry snapshot as JSON.
func (c *Client) PublishTelemetry(snapshot interface{}) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("cannot encode telemetry: %v", err)
	}
	return c.publish(c.cfg.TopicTelemetry, payload)
}

// Close flushes pending operations and disconnects.
func (c *Client) Close() {
	c.client.Disconnect(disconnectQuiesce)
}

func (c *Client) publish(topic string, payload []byte) error {
	token := c.client.Publish(topic, c.cfg.QoS, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish to %s timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s failed: %v", topic, err)
	}
	return nil
}
