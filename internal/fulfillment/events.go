package fulfillment

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"

	kafkax "github.com/wholesale-shop/backoffice/internal/kafka"
)

const (
	TopicOrderFulfilled   = "order.fulfilled"
	TopicOrderCompensated = "order.compensated"
)

const (
	EventOrderFulfilled   = "OrderFulfilled"
	EventOrderCompensated = "OrderCompensated"
)

// Partition key = order_id, so every event of one order keeps its order.
func PartitionKey(orderID int64) []byte {
	return []byte(jsonNumber(orderID))
}

func jsonNumber(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

type ItemLine struct {
	ProductID int64           `json:"product_id"`
	Quantity  int64           `json:"quantity"`
	LineTotal decimal.Decimal `json:"line_total"`
}

type OrderFulfilledPayload struct {
	OrderID           int64           `json:"order_id"`
	CustomerID        int64           `json:"customer_id"`
	Items             []ItemLine      `json:"items"`
	Total             decimal.Decimal `json:"total"`
	PaymentRecorded   bool            `json:"payment_recorded"`
	PaymentAmount     decimal.Decimal `json:"payment_amount"`
	TransportRecorded bool            `json:"transport_recorded"`
}

type OrderCompensatedPayload struct {
	OrderID     int64  `json:"order_id"`
	Reason      string `json:"reason"`
	Compensated bool   `json:"compensated"`
}

// Publisher is what the saga needs from the kafka producer; nil disables
// event publishing (tests, single-binary runs).
type Publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

func newEnvelope(eventType, producer string, orderID int64, payload any) []byte {
	env := Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		CorrelationID: jsonNumber(orderID),
		Payload:       kafkax.MustMarshal(payload),
	}
	return kafkax.MustMarshal(env)
}
