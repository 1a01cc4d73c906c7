// Package reporting keeps the dashboard KPI counters warm: a consumer on
// the fulfillment topic folds each committed order into redis counters so
// the dashboard never scans the store for totals.
package reporting

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"

	"github.com/wholesale-shop/backoffice/internal/fulfillment"
	kafkax "github.com/wholesale-shop/backoffice/internal/kafka"
	"github.com/wholesale-shop/backoffice/internal/redisx"
)

type Service struct {
	Redis       *redis.Client
	ServiceName string
}

// HandleOrderFulfilled is mounted as the consumer handler.
func (s *Service) HandleOrderFulfilled(ctx context.Context, m kafkago.Message) error {
	var env fulfillment.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return err
	}
	if env.EventType != fulfillment.EventOrderFulfilled {
		return nil // not ours
	}

	// dedup on event_id; redelivery must not double-count
	dkey := fmt.Sprintf(redisx.KeyDedup, "reporting", env.EventID)
	seen, err := redisx.Exists(ctx, s.Redis, dkey)
	if err != nil {
		return err
	}
	if seen {
		return nil
	}

	p, err := kafkax.UnwrapPayload[fulfillment.OrderFulfilledPayload](env.Payload)
	if err != nil {
		return err
	}

	var items int64
	for _, it := range p.Items {
		items += it.Quantity
	}
	revenuePaise := p.Total.Mul(decimal.NewFromInt(100)).IntPart()

	pipe := s.Redis.TxPipeline()
	pipe.Incr(ctx, redisx.KeyKPIOrders)
	pipe.IncrBy(ctx, redisx.KeyKPIItems, items)
	pipe.IncrBy(ctx, redisx.KeyKPIRevenuePaise, revenuePaise)
	pipe.Set(ctx, dkey, "1", redisx.TTLDedup)
	_, err = pipe.Exec(ctx)
	return err
}
