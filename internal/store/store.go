// Package store defines the document store used by the compliance core and
// provides an in-memory implementation. PostgreSQL and Redis implementations
// live in the pgstore and redisstore subpackages.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var (
	// ErrNotFound is returned when a document does not exist
	ErrNotFound = errors.New("document not found")
	// ErrVersionConflict is returned when a conditional update sees a newer version
	ErrVersionConflict = errors.New("document version conflict")
	// ErrAlreadyExists is returned when creating a document with a taken id
	ErrAlreadyExists = errors.New("document already exists")
)

// Document is a stored record with its version
type Document struct {
	ID      string          `json:"id"`
	Version int64           `json:"version"`
	Data    json.RawMessage `json:"data"`
}

// Decode unmarshals the document data into v
func (d *Document) Decode(v interface{}) error {
	if err := json.Unmarshal(d.Data, v); err != nil {
		return fmt.Errorf("failed to decode document %s: %w", d.ID, err)
	}
	return nil
}

// Op is a predicate comparison operator
type Op string

const (
	OpEqual    Op = "=="
	OpNotEqual Op = "!="
)

// Predicate compares a top-level field with a value
type Predicate struct {
	Field string
	Op    Op
	Value interface{}
}

// Where builds an equality predicate
func Where(field string, value interface{}) Predicate {
	return Predicate{Field: field, Op: OpEqual, Value: value}
}

// Query selects documents of a collection
type Query struct {
	Where      []Predicate
	OrderBy    string
	Descending bool
	Limit      int
}

// Store is an asynchronous document store with per-document versions.
// Versions start at 1 and increase by one on every update.
type Store interface {
	// Create stores data under id, or under a generated id when id is empty.
	Create(ctx context.Context, collection, id string, data interface{}) (string, error)
	Get(ctx context.Context, collection, id string) (*Document, error)
	Query(ctx context.Context, collection string, q Query) ([]*Document, error)
	// Update merges patch into the top-level fields of the document. When
	// ifVersion is non-zero the update only applies at that version.
	Update(ctx context.Context, collection, id string, patch map[string]interface{}, ifVersion int64) (int64, error)
	Delete(ctx context.Context, collection, id string) error
}

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidateQuery checks field names and operators
func ValidateQuery(q Query) error {
	for _, p := range q.Where {
		if !identifier.MatchString(p.Field) {
			return fmt.Errorf("invalid field name %q", p.Field)
		}
		if p.Op != OpEqual && p.Op != OpNotEqual {
			return fmt.Errorf("unsupported operator %q", p.Op)
		}
	}
	if q.OrderBy != "" && !identifier.MatchString(q.OrderBy) {
		return fmt.Errorf("invalid order field %q", q.OrderBy)
	}
	if q.Limit < 0 {
		return fmt.Errorf("invalid limit %d", q.Limit)
	}
	return nil
}

// ValidateCollection checks a collection name
func ValidateCollection(collection string) error {
	if !identifier.MatchString(collection) {
		return fmt.Errorf("invalid collection name %q", collection)
	}
	return nil
}

// toFields converts a record to its top-level JSON fields
func toFields(data interface{}) (map[string]json.RawMessage, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	fields := make(map[string]json.RawMessage)
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("document must encode to a JSON object: %w", err)
	}
	return fields, nil
}

// MergeJSON applies a top-level patch to a JSON object
func MergeJSON(base json.RawMessage, patch map[string]interface{}) (json.RawMessage, error) {
	fields := make(map[string]json.RawMessage)
	if len(base) > 0 {
		if err := json.Unmarshal(base, &fields); err != nil {
			return nil, fmt.Errorf("failed to decode stored document: %w", err)
		}
	}
	overlay, err := toFields(patch)
	if err != nil {
		return nil, err
	}
	for k, v := range overlay {
		fields[k] = v
	}
	return json.Marshal(fields)
}

// EncodeObject marshals data and checks that it is a JSON object
func EncodeObject(data interface{}) (json.RawMessage, error) {
	fields, err := toFields(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(fields)
}

// Matches evaluates the predicates against a JSON object
func Matches(data json.RawMessage, preds []Predicate) (bool, error) {
	if len(preds) == 0 {
		return true, nil
	}
	fields := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &fields); err != nil {
		return false, fmt.Errorf("failed to decode stored document: %w", err)
	}
	for _, p := range preds {
		want, err := json.Marshal(p.Value)
		if err != nil {
			return false, fmt.Errorf("failed to encode predicate value: %w", err)
		}
		got, ok := fields[p.Field]
		equal := ok && jsonEqual(got, want)
		if (p.Op == OpEqual) != equal {
			return false, nil
		}
	}
	return true, nil
}

func jsonEqual(a, b json.RawMessage) bool {
	var av, bv interface{}
	if json.Unmarshal(a, &av) != nil || json.Unmarshal(b, &bv) != nil {
		return false
	}
	ab, _ := json.Marshal(av)
	bb, _ := json.Marshal(bv)
	return string(ab) == string(bb)
}

// Apply filters, orders and limits documents in memory. Ties keep the id order.
func Apply(docs []*Document, q Query) ([]*Document, error) {
	out := make([]*Document, 0, len(docs))
	for _, d := range docs {
		ok, err := Matches(d.Data, q.Where)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, d)
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if q.OrderBy != "" {
		sort.SliceStable(out, func(i, j int) bool {
			c := compareField(out[i].Data, out[j].Data, q.OrderBy)
			if q.Descending {
				return c > 0
			}
			return c < 0
		})
	}

	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// compareField orders numbers numerically and everything else by string form
func compareField(a, b json.RawMessage, field string) int {
	av, bv := fieldValue(a, field), fieldValue(b, field)
	if af, ok := av.(float64); ok {
		if bf, ok := bv.(float64); ok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			}
			return 0
		}
	}
	return strings.Compare(fmt.Sprint(av), fmt.Sprint(bv))
}

func fieldValue(data json.RawMessage, field string) interface{} {
	fields := make(map[string]interface{})
	if json.Unmarshal(data, &fields) != nil {
		return nil
	}
	return fields[field]
}
