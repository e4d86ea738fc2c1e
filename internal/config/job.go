package config

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/nucleus/meno-sync/internal/codec"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultOriginField holds the source page id in every destination table.
	DefaultOriginField = "Notion ID"
	// DefaultSampleSize is the number of records sampled for type inference.
	DefaultSampleSize = 25
)

// ErrInvalidJob is returned for jobs missing required keys.
var ErrInvalidJob = errors.New("invalid job")

// Mapping pairs a source property with its destination field.
type Mapping struct {
	Source      string
	Destination string
}

// PropertyMap is an ordered source property → destination field mapping. Order
// follows the job file and drives field creation and record layout.
type PropertyMap []Mapping

// Destination returns the destination field mapped from source.
func (m PropertyMap) Destination(source string) (string, bool) {
	for _, p := range m {
		if p.Source == source {
			return p.Destination, true
		}
	}
	return "", false
}

// Sources returns the mapped source property names in order.
func (m PropertyMap) Sources() []string {
	out := make([]string, 0, len(m))
	for _, p := range m {
		out = append(out, p.Source)
	}
	return out
}

// UnmarshalJSON decodes a JSON object keeping key order.
func (m *PropertyMap) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return errors.New("property_map must be an object")
	}

	out := PropertyMap{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		var dest string
		if err := dec.Decode(&dest); err != nil {
			return errors.Wrapf(err, "property_map[%v]", keyTok)
		}
		out = append(out, Mapping{Source: keyTok.(string), Destination: dest})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*m = out
	return nil
}

// MarshalJSON encodes the mapping as a JSON object in order.
func (m PropertyMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, p := range m {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(p.Source)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(p.Destination)
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

// UnmarshalYAML decodes a YAML mapping keeping key order.
func (m *PropertyMap) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return errors.Errorf("line %d: property_map must be a mapping", node.Line)
	}
	out := make(PropertyMap, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		var source, dest string
		if err := node.Content[i].Decode(&source); err != nil {
			return err
		}
		if err := node.Content[i+1].Decode(&dest); err != nil {
			return err
		}
		out = append(out, Mapping{Source: source, Destination: dest})
	}
	*m = out
	return nil
}

// Job migrates one source database into one destination table.
type Job struct {
	SourceDatabaseID string                `json:"notion_db_id" yaml:"notion_db_id"`
	TableName        string                `json:"airtable_table_name" yaml:"airtable_table_name"`
	BaseID           string                `json:"airtable_base_id" yaml:"airtable_base_id"`
	PropertyMap      PropertyMap           `json:"property_map" yaml:"property_map"`
	OriginField      string                `json:"origin_field,omitempty" yaml:"origin_field,omitempty"`
	PropertyKinds    map[string]codec.Kind `json:"property_kinds,omitempty" yaml:"property_kinds,omitempty"`
	SampleSize       int                   `json:"sample_size,omitempty" yaml:"sample_size,omitempty"`
}

// Validate checks required keys and fills defaults.
func (j *Job) Validate() error {
	var missing []string
	if j.SourceDatabaseID == "" {
		missing = append(missing, "notion_db_id")
	}
	if j.TableName == "" {
		missing = append(missing, "airtable_table_name")
	}
	if j.BaseID == "" {
		missing = append(missing, "airtable_base_id")
	}
	if len(j.PropertyMap) == 0 {
		missing = append(missing, "property_map")
	}
	if len(missing) > 0 {
		return errors.Wrapf(ErrInvalidJob, "missing %s", strings.Join(missing, ", "))
	}

	seen := make(map[string]bool, len(j.PropertyMap))
	for _, p := range j.PropertyMap {
		if p.Destination == "" {
			return errors.Wrapf(ErrInvalidJob, "property %q has no destination field", p.Source)
		}
		if seen[p.Destination] {
			return errors.Wrapf(ErrInvalidJob, "destination field %q mapped twice", p.Destination)
		}
		seen[p.Destination] = true
	}
	for name, kind := range j.PropertyKinds {
		if _, err := codec.ParseKind(string(kind)); err != nil {
			return errors.Wrapf(ErrInvalidJob, "property_kinds[%q]: %v", name, err)
		}
	}

	if j.OriginField == "" {
		j.OriginField = DefaultOriginField
	}
	if seen[j.OriginField] {
		return errors.Wrapf(ErrInvalidJob, "origin field %q is also a mapped destination", j.OriginField)
	}
	if j.SampleSize <= 0 {
		j.SampleSize = DefaultSampleSize
	}
	return nil
}

// LoadJobs reads the job list. Files ending in .yaml or .yml are parsed as YAML,
// everything else as JSON. Jobs are returned in file order and are not validated.
func LoadJobs(path string) ([]Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read job file")
	}

	var jobs []Job
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &jobs)
	default:
		err = json.Unmarshal(data, &jobs)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "parse job file %s", path)
	}
	return jobs, nil
}
