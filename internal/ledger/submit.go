package ledger

import (
	"context"
	"errors"
	"time"
)

// Submitter is the transaction-submission layer: it re-simulates a
// transaction whose commit lost MVCC validation. The engine itself never
// retries; bounded retry policy lives here, outside the deterministic core.
type Submitter struct {
	Ledger  *Ledger
	Retries int
	Backoff time.Duration
}

// NewSubmitter returns a submitter with the given retry budget. A zero
// backoff disables the inter-attempt pause.
func NewSubmitter(l *Ledger, retries int, backoff time.Duration) *Submitter {
	return &Submitter{Ledger: l, Retries: retries, Backoff: backoff}
}

// Submit runs fn through Ledger.Submit, re-simulating on ErrTxConflict up to
// the retry budget. Every attempt is a fresh transaction with a fresh
// timestamp. All other errors pass through unchanged.
func (s *Submitter) Submit(ctx context.Context, creator string, fn func(tx TxContext) error) (*Receipt, error) {
	var lastErr error
	for attempt := 0; attempt <= s.Retries; attempt++ {
		if attempt > 0 && s.Backoff > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * s.Backoff):
			}
		}

		receipt, err := s.Ledger.Submit(ctx, creator, fn)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ErrTxConflict) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

// View delegates to Ledger.View; reads need no retry.
func (s *Submitter) View(ctx context.Context, creator string, fn func(tx TxContext) error) error {
	return s.Ledger.View(ctx, creator, fn)
}
