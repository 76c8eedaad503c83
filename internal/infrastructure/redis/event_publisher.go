package redis

import (
	"context"
	"encoding/json"

	"github.com/go-redis/redis/v8"

	"sales-engine/internal/domain"
)

const SaleEventsChannel = "sale_events"

type EventPublisherImpl struct {
	client  *redis.Client
	channel string
}

func NewEventPublisher(client *redis.Client) *EventPublisherImpl {
	return &EventPublisherImpl{client: client, channel: SaleEventsChannel}
}

func (r *EventPublisherImpl) PublishSaleEvent(ctx context.Context, event *domain.SaleEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.channel, payload).Err()
}
