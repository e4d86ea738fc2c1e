// Package materialize turns source pages into destination record drafts and
// writes them in batches.
package materialize

import (
	"bytes"
	"encoding/json"
)

// Draft is one destination record under construction. Field order follows
// insertion order; an unset field is absent from the written record.
type Draft struct {
	// PageID is the source page the draft was built from.
	PageID string

	// Relations holds the raw linked page ids of each relation property, keyed
	// by source property name. It is not written.
	Relations map[string][]string

	names  []string
	values map[string]any
}

// NewDraft creates an empty draft for a source page.
func NewDraft(pageID string) *Draft {
	return &Draft{
		PageID:    pageID,
		Relations: map[string][]string{},
		values:    map[string]any{},
	}
}

// Set assigns a field. A nil value removes the field.
func (d *Draft) Set(name string, value any) {
	if value == nil {
		d.Delete(name)
		return
	}
	if _, ok := d.values[name]; !ok {
		d.names = append(d.names, name)
	}
	d.values[name] = value
}

// Get returns a field value.
func (d *Draft) Get(name string) (any, bool) {
	v, ok := d.values[name]
	return v, ok
}

// Delete removes a field.
func (d *Draft) Delete(name string) {
	if _, ok := d.values[name]; !ok {
		return
	}
	delete(d.values, name)
	for i, n := range d.names {
		if n == name {
			d.names = append(d.names[:i], d.names[i+1:]...)
			break
		}
	}
}

// Names returns the set field names in order.
func (d *Draft) Names() []string {
	return append([]string(nil), d.names...)
}

// Fields returns the set fields as a map for the records API.
func (d *Draft) Fields() map[string]any {
	out := make(map[string]any, len(d.values))
	for k, v := range d.values {
		out[k] = v
	}
	return out
}

// MarshalJSON encodes the set fields as an object in field order.
func (d *Draft) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range d.names {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(d.values[name])
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
