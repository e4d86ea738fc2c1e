package materialize

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/nucleus/meno-sync/internal/codec"
	"github.com/nucleus/meno-sync/internal/config"
	"github.com/nucleus/meno-sync/internal/connector/airtable"
	"github.com/nucleus/meno-sync/internal/connector/notion"
	"github.com/nucleus/meno-sync/internal/schema"
	"github.com/pkg/errors"
)

// DateLayout is the destination date form.
const DateLayout = "2006-01-02"

// RecordWriter is the subset of the destination client used to write drafts.
type RecordWriter interface {
	CreateRecords(ctx context.Context, baseID, table string, fields []map[string]any) ([]airtable.Record, error)
}

// Materialize builds one draft per page. Mapped properties missing from a page
// are absent from its draft. A property that fails to decode is left out of that
// draft only and reported in the returned errors. The origin field is always set
// to the page id.
func Materialize(pages []notion.Page, job *config.Job, types schema.TypeMap) ([]*Draft, []error) {
	specs := schema.Plan(job, types)
	drafts := make([]*Draft, 0, len(pages))
	var errs []error

	for _, page := range pages {
		d := NewDraft(page.ID)
		for _, spec := range specs {
			raw, ok := page.Properties[spec.Source]
			if !ok {
				continue
			}
			decoded, err := codec.Decode(raw)
			if err != nil {
				errs = append(errs, errors.Wrapf(err, "page %s property %q", page.ID, spec.Source))
				continue
			}
			if spec.Kind == codec.KindRelation {
				d.Relations[spec.Source] = codec.Flatten(decoded)
			}
			value, err := Convert(spec.Kind, decoded)
			if err != nil {
				errs = append(errs, errors.Wrapf(err, "page %s property %q", page.ID, spec.Source))
				continue
			}
			d.Set(spec.Destination, value)
		}
		d.Set(job.OriginField, page.ID)
		drafts = append(drafts, d)
	}
	return drafts, errs
}

// Convert turns a decoded value into the form written to the destination field
// of the given source kind. A nil result means the field is absent.
func Convert(kind codec.Kind, value codec.Value) (any, error) {
	if value == nil {
		return nil, nil
	}

	switch kind {
	case codec.KindDate:
		return convertDate(value)
	case codec.KindRelation, codec.KindRollup, codec.KindPeople, codec.KindFiles:
		return stringifyList(codec.Flatten(value))
	case codec.KindTitle, codec.KindRichText:
		return nonEmpty(strings.Join(codec.Flatten(value), "")), nil
	case codec.KindFormula:
		return nonEmpty(strings.Join(codec.Flatten(value), ", ")), nil
	case codec.KindMultiSelect:
		list := codec.Flatten(value)
		if len(list) == 0 {
			return nil, nil
		}
		return list, nil
	}

	switch v := value.(type) {
	case string:
		return nonEmpty(v), nil
	case []string:
		return stringifyList(v)
	default:
		return v, nil
	}
}

func convertDate(value codec.Value) (any, error) {
	var start string
	switch v := value.(type) {
	case codec.DateRange:
		start = v.Start
	case string:
		start = v
	default:
		return nil, errors.Wrapf(codec.ErrInvalidValue, "date cannot hold %T", value)
	}
	if start == "" {
		return nil, nil
	}
	if len(start) > len(DateLayout) {
		start = start[:len(DateLayout)]
	}
	t, err := time.Parse(DateLayout, start)
	if err != nil {
		return nil, errors.Wrapf(codec.ErrInvalidValue, "date %q", start)
	}
	return t.Format(DateLayout), nil
}

func stringifyList(values []string) (any, error) {
	if len(values) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(values)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func nonEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Submit writes the drafts to the table and returns the created record ids in
// draft order.
func Submit(ctx context.Context, writer RecordWriter, baseID, tableID string, drafts []*Draft) ([]string, error) {
	if len(drafts) == 0 {
		return nil, nil
	}
	fields := make([]map[string]any, 0, len(drafts))
	for _, d := range drafts {
		fields = append(fields, d.Fields())
	}

	records, err := writer.CreateRecords(ctx, baseID, tableID, fields)
	ids := make([]string, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.ID)
	}
	if err != nil {
		return ids, errors.Wrapf(err, "wrote %d of %d records", len(ids), len(drafts))
	}
	return ids, nil
}
