package schema

import (
	"github.com/nucleus/meno-sync/internal/codec"
	"github.com/nucleus/meno-sync/internal/config"
	"github.com/nucleus/meno-sync/internal/connector/notion"
	"github.com/pkg/errors"
)

var (
	// ErrKindNotObserved is returned for a mapped property found in no sampled record.
	ErrKindNotObserved = errors.New("property not present in sampled records")
	// ErrKindConflict is returned when sampled records disagree on a property's kind.
	ErrKindConflict = errors.New("property kind differs across sampled records")
)

// TypeMap maps source property names to their kinds.
type TypeMap map[string]codec.Kind

// Relations returns the mapped source properties of kind relation, in job order.
func (t TypeMap) Relations(job *config.Job) []string {
	var out []string
	for _, p := range job.PropertyMap {
		if t[p.Source] == codec.KindRelation {
			out = append(out, p.Source)
		}
	}
	return out
}

// InferTypeMap builds the type map of a job. Declared property_kinds win; other
// properties take the kind observed across the first SampleSize pages. A property
// that is never observed, or observed with different kinds, is left out of the
// map and reported as an error.
func InferTypeMap(job *config.Job, pages []notion.Page) (TypeMap, []error) {
	sample := pages
	if job.SampleSize > 0 && len(sample) > job.SampleSize {
		sample = sample[:job.SampleSize]
	}

	types := make(TypeMap, len(job.PropertyMap))
	var errs []error
	for _, p := range job.PropertyMap {
		if kind, ok := job.PropertyKinds[p.Source]; ok {
			types[p.Source] = kind
			continue
		}

		var observed codec.Kind
		conflict := false
		for _, page := range sample {
			raw, ok := page.Properties[p.Source]
			if !ok {
				continue
			}
			kind, err := codec.KindOf(raw)
			if err != nil {
				errs = append(errs, errors.Wrapf(err, "property %q of page %s", p.Source, page.ID))
				continue
			}
			if observed == "" {
				observed = kind
			} else if observed != kind {
				conflict = true
			}
		}

		switch {
		case conflict:
			errs = append(errs, errors.Wrapf(ErrKindConflict, "property %q", p.Source))
		case observed == "":
			errs = append(errs, errors.Wrapf(ErrKindNotObserved, "property %q", p.Source))
		default:
			types[p.Source] = observed
		}
	}
	return types, errs
}
