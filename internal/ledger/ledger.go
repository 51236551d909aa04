// Package ledger implements the permissioned state store the engine runs
// against: versioned world state behind a narrow get/put/del/query surface,
// deterministic per-transaction contexts, and optimistic commit validation.
//
// An operation simulates against committed state while buffering its writes,
// then commits its whole write set or nothing. Reads performed through
// GetState are recorded with the version they observed and validated at
// commit; a losing transaction fails with ErrTxConflict and may be
// re-simulated by the submission layer. Rich-query results are deliberately
// not added to the read set, matching the platform semantics the engine is
// written for, so invariants that depend on query results must be enforced
// with explicit reservation keys that force write-write conflicts.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrTxConflict reports that commit validation found a stale read; the
	// transaction applied nothing and is safe to re-simulate.
	ErrTxConflict = errors.New("transaction conflicts with a committed write")

	// ErrReadOnlyTx reports a write attempted inside a read-only view.
	ErrReadOnlyTx = errors.New("write attempted in read-only transaction")

	// ErrClosed reports use of a ledger after Close.
	ErrClosed = errors.New("ledger is closed")
)

// Store is the state access surface visible to engine code.
// GetState returns nil bytes for absent keys.
type Store interface {
	GetState(key string) ([]byte, error)
	PutState(key string, value []byte) error
	DelState(key string) error
	Query(q Query) ([]KV, error)
}

// TxContext carries one deterministic transaction: state access plus the
// transaction's identity, timestamp and submitting principal. Engine code
// must take its notion of "now" exclusively from Timestamp.
type TxContext interface {
	Store

	TxID() string
	Timestamp() time.Time
	Creator() string

	// SetEvent records the transaction's domain event. At most one event is
	// kept per transaction; a later call replaces an earlier one.
	SetEvent(name string, payload []byte)
}

// KV is one key/value pair returned by a rich query.
type KV struct {
	Key   string
	Value []byte
}

// Event is a domain event captured during simulation and released to
// subscribers only after the transaction commits.
type Event struct {
	Name    string
	Payload []byte
}

// Receipt describes a committed transaction.
type Receipt struct {
	TxID      string
	Timestamp time.Time
	Height    uint64
	Event     *Event
}

// Ledger is a single-node embodiment of the replicated store: world state in
// a StateDB, per-key versions for optimistic concurrency, and a commit
// counter. Versions are tracked per process; they restart at zero when the
// ledger is reopened over an existing state database.
type Ledger struct {
	mu       sync.Mutex
	db       StateDB
	versions map[string]uint64
	height   uint64
	closed   bool

	// now supplies the per-transaction timestamp; overridable in tests so
	// replay produces identical state bytes.
	now func() time.Time
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock replaces the transaction timestamp source. The returned time is
// normalized to UTC millisecond precision before it reaches any transaction.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// New creates a ledger over the given state database.
func New(db StateDB, opts ...Option) *Ledger {
	l := &Ledger{
		db:       db,
		versions: make(map[string]uint64),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Height returns the number of committed transactions this process has seen.
func (l *Ledger) Height() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.height
}

// Close releases the underlying state database.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return l.db.Close()
}

// Ping verifies the state database is reachable.
func (l *Ledger) Ping() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	_, err := l.db.Get("ping")
	return err
}

// Submit simulates fn in a fresh transaction and commits its write set
// atomically. The transaction timestamp is fixed once, before simulation,
// and is the only clock fn may observe. On ErrTxConflict nothing was
// applied; any other error from fn aborts the transaction unchanged.
func (l *Ledger) Submit(ctx context.Context, creator string, fn func(tx TxContext) error) (*Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tx, err := l.begin(creator, false)
	if err != nil {
		return nil, err
	}

	if err := fn(tx); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	height, err := l.commit(tx)
	if err != nil {
		return nil, err
	}

	return &Receipt{
		TxID:      tx.id,
		Timestamp: tx.ts,
		Height:    height,
		Event:     tx.event,
	}, nil
}

// View runs fn against committed state in a read-only transaction. Writes
// fail with ErrReadOnlyTx and nothing is committed or validated.
func (l *Ledger) View(ctx context.Context, creator string, fn func(tx TxContext) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx, err := l.begin(creator, true)
	if err != nil {
		return err
	}
	return fn(tx)
}

func (l *Ledger) begin(creator string, readOnly bool) (*tx, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, ErrClosed
	}
	return &tx{
		ledger:   l,
		id:       uuid.NewString(),
		ts:       l.now().UTC().Truncate(time.Millisecond),
		creator:  creator,
		readOnly: readOnly,
		reads:    make(map[string]readRecord),
		writeIdx: make(map[string]int),
	}, nil
}

// read returns the committed value and version for key.
func (l *Ledger) read(key string) ([]byte, uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, 0, ErrClosed
	}
	val, err := l.db.Get(key)
	if err != nil {
		return nil, 0, err
	}
	return val, l.versions[key], nil
}

// commit validates the transaction's read set against current versions and,
// if every read is still current, applies the write set in one batch.
func (l *Ledger) commit(t *tx) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return 0, ErrClosed
	}

	for key, rec := range t.reads {
		if l.versions[key] != rec.version {
			return 0, fmt.Errorf("stale read of %q: %w", key, ErrTxConflict)
		}
	}

	if len(t.writes) > 0 {
		if err := l.db.Apply(t.writes); err != nil {
			return 0, fmt.Errorf("apply write set: %w", err)
		}
		l.height++
		for _, w := range t.writes {
			l.versions[w.Key] = l.height
		}
	} else {
		l.height++
	}

	return l.height, nil
}

type readRecord struct {
	value   []byte
	version uint64
}

// Write is one buffered state mutation; Delete marks a tombstone.
type Write struct {
	Key    string
	Value  []byte
	Delete bool
}

type tx struct {
	ledger   *Ledger
	id       string
	ts       time.Time
	creator  string
	readOnly bool

	reads    map[string]readRecord
	writes   []Write
	writeIdx map[string]int
	event    *Event
}

func (t *tx) TxID() string         { return t.id }
func (t *tx) Timestamp() time.Time { return t.ts }
func (t *tx) Creator() string      { return t.creator }

func (t *tx) SetEvent(name string, payload []byte) {
	t.event = &Event{Name: name, Payload: payload}
}

// GetState returns the transaction's view of key: its own buffered write if
// one exists, otherwise the committed value. The first committed read of a
// key pins both the value and the version for the rest of the transaction.
func (t *tx) GetState(key string) ([]byte, error) {
	if i, ok := t.writeIdx[key]; ok {
		w := t.writes[i]
		if w.Delete {
			return nil, nil
		}
		return cloneBytes(w.Value), nil
	}

	if rec, ok := t.reads[key]; ok {
		return cloneBytes(rec.value), nil
	}

	val, ver, err := t.ledger.read(key)
	if err != nil {
		return nil, fmt.Errorf("read %q: %w", key, err)
	}
	t.reads[key] = readRecord{value: val, version: ver}
	return cloneBytes(val), nil
}

func (t *tx) PutState(key string, value []byte) error {
	if t.readOnly {
		return ErrReadOnlyTx
	}
	t.stage(Write{Key: key, Value: cloneBytes(value)})
	return nil
}

func (t *tx) DelState(key string) error {
	if t.readOnly {
		return ErrReadOnlyTx
	}
	t.stage(Write{Key: key, Delete: true})
	return nil
}

func (t *tx) stage(w Write) {
	if i, ok := t.writeIdx[w.Key]; ok {
		t.writes[i] = w
		return
	}
	t.writeIdx[w.Key] = len(t.writes)
	t.writes = append(t.writes, w)
}

// Query evaluates q over committed state overlaid with this transaction's
// own writes, so a transaction sees documents it has already written.
// Returned keys are not added to the read set.
func (t *tx) Query(q Query) ([]KV, error) {
	docs := make(map[string][]byte)

	err := t.ledger.iterate(q.Prefix, func(key string, value []byte) error {
		docs[key] = value
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %q: %w", q.Prefix, err)
	}

	for _, w := range t.writes {
		if !hasPrefix(w.Key, q.Prefix) {
			continue
		}
		if w.Delete {
			delete(docs, w.Key)
		} else {
			docs[w.Key] = w.Value
		}
	}

	return evaluate(q, docs)
}

func (l *Ledger) iterate(prefix string, fn func(key string, value []byte) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	return l.db.Iterate(prefix, fn)
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}
