package ledger

import (
	"context"
	"testing"
)

func seedQueryDocs(t *testing.T, l *Ledger) {
	t.Helper()
	docs := map[string]string{
		"appt:1":  `{"doctor":"DOC-1","day":"2025-06-10","slot":"09:00","status":"scheduled","reason":{"urgency":"normal"}}`,
		"appt:2":  `{"doctor":"DOC-1","day":"2025-06-10","slot":"11:00","status":"confirmed","reason":{"urgency":"urgent"}}`,
		"appt:3":  `{"doctor":"DOC-2","day":"2025-06-11","slot":"09:00","status":"scheduled","reason":{"urgency":"normal"}}`,
		"appt:4":  `{"doctor":"DOC-1","day":"2025-06-12","slot":"08:00","status":"cancelled","reason":{"urgency":"emergency"}}`,
		"other:1": `{"doctor":"DOC-1"}`,
	}
	mustSubmit(t, l, "seed", func(tx TxContext) error {
		for k, v := range docs {
			if err := tx.PutState(k, []byte(v)); err != nil {
				return err
			}
		}
		return nil
	})
}

func runQuery(t *testing.T, l *Ledger, q Query) []KV {
	t.Helper()
	var kvs []KV
	err := l.View(context.Background(), "reader", func(tx TxContext) error {
		var err error
		kvs, err = tx.Query(q)
		return err
	})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	return kvs
}

func keysOf(kvs []KV) []string {
	keys := make([]string, len(kvs))
	for i, kv := range kvs {
		keys[i] = kv.Key
	}
	return keys
}

func assertKeys(t *testing.T, got []KV, want ...string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected keys %v, got %v", want, keysOf(got))
	}
	for i, kv := range got {
		if kv.Key != want[i] {
			t.Fatalf("expected keys %v, got %v", want, keysOf(got))
		}
	}
}

func TestQueryPrefixIsolation(t *testing.T) {
	l := testLedger()
	seedQueryDocs(t, l)

	got := runQuery(t, l, Query{Prefix: "appt:"})
	assertKeys(t, got, "appt:1", "appt:2", "appt:3", "appt:4")
}

func TestQueryEq(t *testing.T) {
	l := testLedger()
	seedQueryDocs(t, l)

	got := runQuery(t, l, Query{
		Prefix: "appt:",
		Conds:  []Cond{Eq("doctor", "DOC-2")},
	})
	assertKeys(t, got, "appt:3")
}

func TestQueryConditionsAreAnded(t *testing.T) {
	l := testLedger()
	seedQueryDocs(t, l)

	got := runQuery(t, l, Query{
		Prefix: "appt:",
		Conds: []Cond{
			Eq("doctor", "DOC-1"),
			Eq("day", "2025-06-10"),
		},
	})
	assertKeys(t, got, "appt:1", "appt:2")
}

func TestQueryIn(t *testing.T) {
	l := testLedger()
	seedQueryDocs(t, l)

	got := runQuery(t, l, Query{
		Prefix: "appt:",
		Conds:  []Cond{In("status", "scheduled", "confirmed")},
	})
	assertKeys(t, got, "appt:1", "appt:2", "appt:3")
}

func TestQueryRange(t *testing.T) {
	l := testLedger()
	seedQueryDocs(t, l)

	got := runQuery(t, l, Query{
		Prefix: "appt:",
		Conds: []Cond{
			Gte("day", "2025-06-11"),
			Lte("day", "2025-06-12"),
		},
	})
	assertKeys(t, got, "appt:3", "appt:4")
}

func TestQueryDottedPath(t *testing.T) {
	l := testLedger()
	seedQueryDocs(t, l)

	got := runQuery(t, l, Query{
		Prefix: "appt:",
		Conds:  []Cond{Eq("reason.urgency", "urgent")},
	})
	assertKeys(t, got, "appt:2")
}

func TestQueryMissingFieldNeverMatchesEq(t *testing.T) {
	l := testLedger()
	seedQueryDocs(t, l)

	got := runQuery(t, l, Query{
		Prefix: "appt:",
		Conds:  []Cond{Eq("nonexistent", "x")},
	})
	if len(got) != 0 {
		t.Errorf("expected no matches on a missing field, got %v", keysOf(got))
	}
}

func TestQuerySortAscendingWithTieBreak(t *testing.T) {
	l := testLedger()
	seedQueryDocs(t, l)

	// appt:1 and appt:3 share the slot value, so the ledger key decides.
	got := runQuery(t, l, Query{
		Prefix: "appt:",
		Sort:   []SortField{Asc("slot")},
	})
	assertKeys(t, got, "appt:4", "appt:1", "appt:3", "appt:2")
}

func TestQuerySortDescending(t *testing.T) {
	l := testLedger()
	seedQueryDocs(t, l)

	got := runQuery(t, l, Query{
		Prefix: "appt:",
		Sort:   []SortField{Desc("day"), Desc("slot")},
	})
	assertKeys(t, got, "appt:4", "appt:3", "appt:2", "appt:1")
}

func TestQueryMultiFieldSort(t *testing.T) {
	l := testLedger()
	seedQueryDocs(t, l)

	got := runQuery(t, l, Query{
		Prefix: "appt:",
		Sort:   []SortField{Asc("day"), Asc("slot")},
	})
	assertKeys(t, got, "appt:1", "appt:2", "appt:3", "appt:4")
}

func TestFieldStringScalars(t *testing.T) {
	fields := map[string]any{
		"s": "hello",
		"n": float64(3),
		"f": 3.5,
		"b": true,
		"z": nil,
		"nested": map[string]any{
			"inner": "deep",
		},
	}
	cases := []struct {
		path string
		want string
	}{
		{"s", "hello"},
		{"n", "3"},
		{"f", "3.5"},
		{"b", "true"},
		{"z", ""},
		{"nested.inner", "deep"},
		{"nested.missing", ""},
		{"missing", ""},
		{"s.not-a-map", ""},
	}
	for _, c := range cases {
		if got := fieldString(fields, c.path); got != c.want {
			t.Errorf("fieldString(%q) = %q, want %q", c.path, got, c.want)
		}
	}
}

func TestQueryMalformedDocumentFails(t *testing.T) {
	l := testLedger()
	mustSubmit(t, l, "seed", func(tx TxContext) error {
		return tx.PutState("bad:1", []byte("not json"))
	})

	err := l.View(context.Background(), "reader", func(tx TxContext) error {
		_, err := tx.Query(Query{Prefix: "bad:"})
		return err
	})
	if err == nil {
		t.Error("expected an error for an undecodable document")
	}
}
