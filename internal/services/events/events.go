// Package events publishes order lifecycle events on Redis pub/sub.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	EventOrderCreated = "order.created"
	ChannelPrefix     = "crm:events:"
	ChannelAll        = "crm:events:all"
)

type OrderEvent struct {
	EventType     string    `json:"event_type"`
	OrderID       int64     `json:"order_id"`
	ClientID      int64     `json:"client_id"`
	SalespersonID int64     `json:"salesperson_id"`
	TotalAmount   string    `json:"total_amount"`
	Commission    string    `json:"commission"`
	Timestamp     time.Time `json:"timestamp"`
}

type Publisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

type RedisPublisher struct {
	redis *redis.Client
}

func NewRedisPublisher(redisClient *redis.Client) *RedisPublisher {
	return &RedisPublisher{redis: redisClient}
}

func (p *RedisPublisher) PublishOrderEvent(ctx context.Context, event OrderEvent) error {
	eventJSON, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := p.redis.Publish(ctx, ChannelPrefix+event.EventType, eventJSON).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	if err := p.redis.Publish(ctx, ChannelAll, eventJSON).Err(); err != nil {
		return fmt.Errorf("failed to publish to all channel: %w", err)
	}

	return nil
}

type NopPublisher struct{}

func (NopPublisher) PublishOrderEvent(context.Context, OrderEvent) error { return nil }
