package events

import (
	"context"
	"log"
	"time"
)

// Event is a committed transaction's domain event. The payload is the exact
// bytes the transaction set, so every peer publishes an identical event for
// the same transaction.
type Event struct {
	Name      string    `json:"name"`
	Payload   []byte    `json:"payload,omitempty"`
	TxID      string    `json:"txId"`
	Timestamp time.Time `json:"timestamp"`
}

// Bus delivers committed events to downstream consumers. Delivery is
// best-effort and happens after commit; a failed publish never rolls back
// the transaction.
type Bus interface {
	Publish(ctx context.Context, e Event) error
}

// LogBus writes events to the process log instead of a broker.
type LogBus struct{}

func (LogBus) Publish(_ context.Context, e Event) error {
	log.Printf("event name=%s tx=%s payload=%s", e.Name, e.TxID, e.Payload)
	return nil
}
