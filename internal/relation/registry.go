package relation

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Entry records where a completed job wrote its records.
type Entry struct {
	TableName   string `json:"destination_table_name"`
	BaseID      string `json:"destination_base_id"`
	TableID     string `json:"destination_table_id"`
	OriginField string `json:"origin_field"`
}

// Registry is the run-scoped, append-only map of source database id to the
// destination table its job wrote. Jobs are registered only after their records
// were written, so lookups only ever see completed jobs.
type Registry struct {
	order   []string
	entries map[string]Entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: map[string]Entry{}}
}

// NormalizeID lowercases id and strips dashes so dashed and undashed forms compare equal.
func NormalizeID(id string) string {
	return strings.ToLower(strings.ReplaceAll(id, "-", ""))
}

// Register records a completed job. It returns false, leaving the registry
// unchanged, when the database was already registered.
func (r *Registry) Register(databaseID string, entry Entry) bool {
	key := NormalizeID(databaseID)
	if _, ok := r.entries[key]; ok {
		return false
	}
	r.order = append(r.order, databaseID)
	r.entries[key] = entry
	return true
}

// Lookup returns the entry of a completed job.
func (r *Registry) Lookup(databaseID string) (Entry, bool) {
	e, ok := r.entries[NormalizeID(databaseID)]
	return e, ok
}

// Len returns the number of registered jobs.
func (r *Registry) Len() int {
	return len(r.order)
}

// Entries calls fn for every entry in registration order.
func (r *Registry) Entries(fn func(databaseID string, entry Entry)) {
	for _, id := range r.order {
		fn(id, r.entries[NormalizeID(id)])
	}
}

// MarshalJSON encodes the registry as an object in registration order.
func (r *Registry) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, id := range r.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(id)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(r.entries[NormalizeID(id)])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
