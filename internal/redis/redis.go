// Package redis publishes gateway state to the local Redis instance so
// other on-device services can observe connectivity and ingestion status
// without talking to the hardware themselves.
package redis

import (
	"context"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"
)

// Hash keys used for state publication.
const (
	HashWifi    = "wifi"
	HashGateway = "gateway"
)

// Client wraps the Redis client with the gateway's publish operations.
type Client struct {
	client *redis.Client
	logger *log.Logger
}

// New creates a new Redis client from a redis:// URL.
func New(redisURL string, logger *log.Logger) (*Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %v", err)
	}

	return &Client{
		client: redis.NewClient(opt),
		logger: logger,
	}, nil
}

// Ping checks if the Redis server is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.client.Close()
}

// PublishWifiState sets a field in the wifi hash and notifies subscribers.
func (c *Client) PublishWifiState(ctx context.Context, field, value string) error {
	return c.publish(ctx, HashWifi, field, value)
}

// PublishGatewayState sets a field in the gateway hash and notifies
// subscribers.
func (c *Client) PublishGatewayState(ctx context.Context, field, value string) error {
	return c.publish(ctx, HashGateway, field, value)
}

func (c *Client) publish(ctx context.Context, hash, field, value string) error {
	pipe := c.client.Pipeline()
	pipe.HSet(ctx, hash, field, value)
	pipe.Publish(ctx, hash, field)
	_, err := pipe.Exec(ctx)
	if err != nil {
		c.logger.Printf("Unable to set %s.%s in redis: %v", hash, field, err)
		return fmt.Errorf("cannot write to redis: %v", err)
	}
	return nil
}
