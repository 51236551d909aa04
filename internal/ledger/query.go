package ledger

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Op is a selector comparison operator.
type Op string

const (
	OpEq  Op = "eq"
	OpGte Op = "gte"
	OpLte Op = "lte"
	OpIn  Op = "in"
)

// Cond is one selector condition on a document field. Fields address stored
// JSON documents and may be dotted paths ("reason.urgency"). All conditions
// in a query are ANDed.
type Cond struct {
	Field  string
	Op     Op
	Value  string
	Values []string
}

// SortField orders results by a document field.
type SortField struct {
	Field string
	Desc  bool
}

// Query selects documents under a key prefix. Sort fields are compared as
// strings in declaration order; remaining ties break on the ledger key, so
// the result order is total and identical on every node.
type Query struct {
	Prefix string
	Conds  []Cond
	Sort   []SortField
}

// Eq builds an equality condition.
func Eq(field, value string) Cond { return Cond{Field: field, Op: OpEq, Value: value} }

// Gte builds a greater-or-equal condition.
func Gte(field, value string) Cond { return Cond{Field: field, Op: OpGte, Value: value} }

// Lte builds a less-or-equal condition.
func Lte(field, value string) Cond { return Cond{Field: field, Op: OpLte, Value: value} }

// In builds a membership condition.
func In(field string, values ...string) Cond { return Cond{Field: field, Op: OpIn, Values: values} }

// Asc and Desc build sort fields.
func Asc(field string) SortField  { return SortField{Field: field} }
func Desc(field string) SortField { return SortField{Field: field, Desc: true} }

type matchedDoc struct {
	key    string
	value  []byte
	fields map[string]any
}

// evaluate filters and orders the candidate documents.
func evaluate(q Query, docs map[string][]byte) ([]KV, error) {
	matched := make([]matchedDoc, 0, len(docs))

	for key, raw := range docs {
		var fields map[string]any
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, fmt.Errorf("decode document %q: %w", key, err)
		}
		ok, err := matches(q.Conds, fields)
		if err != nil {
			return nil, fmt.Errorf("match document %q: %w", key, err)
		}
		if ok {
			matched = append(matched, matchedDoc{key: key, value: raw, fields: fields})
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		for _, sf := range q.Sort {
			a := fieldString(matched[i].fields, sf.Field)
			b := fieldString(matched[j].fields, sf.Field)
			if a == b {
				continue
			}
			if sf.Desc {
				return a > b
			}
			return a < b
		}
		return matched[i].key < matched[j].key
	})

	out := make([]KV, len(matched))
	for i, m := range matched {
		out[i] = KV{Key: m.key, Value: m.value}
	}
	return out, nil
}

func matches(conds []Cond, fields map[string]any) (bool, error) {
	for _, c := range conds {
		got := fieldString(fields, c.Field)
		switch c.Op {
		case OpEq:
			if got != c.Value {
				return false, nil
			}
		case OpGte:
			if got < c.Value {
				return false, nil
			}
		case OpLte:
			if got > c.Value {
				return false, nil
			}
		case OpIn:
			found := false
			for _, v := range c.Values {
				if got == v {
					found = true
					break
				}
			}
			if !found {
				return false, nil
			}
		default:
			return false, fmt.Errorf("unknown operator %q", c.Op)
		}
	}
	return true, nil
}

// fieldString resolves a dotted path inside a decoded document and renders
// the leaf as a string. Missing paths render as the empty string, which
// sorts first and never satisfies an equality condition on a real value.
func fieldString(fields map[string]any, path string) string {
	var cur any = fields
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return ""
		}
		cur, ok = m[part]
		if !ok {
			return ""
		}
	}

	switch v := cur.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}
