package audit

import (
	"context"
	"encoding/json"
	"log"
	"time"
)

// Entry is one committed operation as seen by the off-ledger audit trail.
// The ledger history remains the source of truth; entries here exist so
// operational tooling can query activity without replaying state.
type Entry struct {
	Action     string          `json:"action"`
	EntityType string          `json:"entityType"`
	EntityID   string          `json:"entityId"`
	Actor      string          `json:"actor"`
	TxID       string          `json:"txId"`
	At         time.Time       `json:"at"`
	Detail     json.RawMessage `json:"detail,omitempty"`
}

// Sink receives entries after their transaction has committed. A failing
// sink must not affect committed state, so callers log and move on.
type Sink interface {
	Record(ctx context.Context, e Entry) error
}

// LogSink writes entries to the process log. Used when no database is
// configured, e.g. in tests and local tooling.
type LogSink struct{}

func (LogSink) Record(_ context.Context, e Entry) error {
	log.Printf("audit action=%s entity=%s/%s actor=%s tx=%s", e.Action, e.EntityType, e.EntityID, e.Actor, e.TxID)
	return nil
}
