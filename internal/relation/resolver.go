// Package relation resolves relation properties into destination record links.
//
// Resolution runs in two passes per job. DiscoverTargets finds the source
// database each relation property points at by following one linked page. Link
// then sets the companion link field of every draft whose linked pages were
// written by an earlier job of the same run. Links to jobs that have not run yet
// are reported as pending; the deferred pass can patch them once every job
// finished.
package relation

import (
	"context"
	"sort"

	"github.com/nucleus/meno-sync/internal/connector/airtable"
	"github.com/nucleus/meno-sync/internal/connector/notion"
	"github.com/nucleus/meno-sync/internal/materialize"
	"github.com/nucleus/meno-sync/internal/schema"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// PageGetter retrieves source pages.
type PageGetter interface {
	RetrievePage(ctx context.Context, pageID string) (notion.Page, error)
}

// RecordStore lists and patches destination records.
type RecordStore interface {
	ListRecords(ctx context.Context, baseID, table string, fields ...string) ([]airtable.Record, error)
	UpdateRecords(ctx context.Context, baseID, table string, updates []airtable.RecordUpdate) ([]airtable.Record, error)
}

// LinkFields creates companion link fields for the deferred pass.
type LinkFields interface {
	EnsureTable(ctx context.Context, baseID, tableName string) (*schema.Table, error)
	EnsureLinkField(ctx context.Context, table *schema.Table, source, linkedTableID string) (string, error)
}

// Mapping maps a relation property to the source database it points at. An
// empty target means no page linked anywhere and the relation is unresolvable
// this run.
type Mapping map[string]string

// Properties returns the mapped properties in sorted order.
func (m Mapping) Properties() []string {
	out := make([]string, 0, len(m))
	for p := range m {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// PendingLink is a relation whose target database has not been written yet.
type PendingLink struct {
	Property string `json:"property"`
	Target   string `json:"target"`
}

// LinkReport summarizes one linking pass.
type LinkReport struct {
	// Linked counts, per property, the records that received at least one link.
	Linked map[string]int `json:"linked"`
	// Pending lists relations whose target job has not run yet.
	Pending []PendingLink `json:"pending,omitempty"`
	// Unresolved lists relations with no discoverable target.
	Unresolved []string `json:"unresolved,omitempty"`
}

func newReport() LinkReport {
	return LinkReport{Linked: map[string]int{}}
}

// Resolver discovers relation targets and links drafts.
type Resolver struct {
	pages   PageGetter
	records RecordStore
	fields  LinkFields
	logger  log.FieldLogger
}

// NewResolver creates a resolver. fields may be nil when the deferred pass is not used.
func NewResolver(pages PageGetter, records RecordStore, fields LinkFields, logger log.FieldLogger) *Resolver {
	return &Resolver{
		pages:   pages,
		records: records,
		fields:  fields,
		logger:  logger.WithField("component", "relation"),
	}
}

// DiscoverTargets finds, for each relation property, the first page in order
// with a non-empty value, retrieves its first linked page and reads that page's
// parent database. The target stays empty when no page links anywhere or the
// linked page cannot be retrieved. Only cancellation of ctx is returned as an
// error.
func (r *Resolver) DiscoverTargets(ctx context.Context, pages []notion.Page, relationFields []string) (Mapping, error) {
	mapping := make(Mapping, len(relationFields))
	for _, field := range relationFields {
		mapping[field] = ""
		logger := r.logger.WithField("property", field)

		linked := firstLink(pages, field)
		if linked == "" {
			logger.Info("No page carries relation data, relation is unresolvable this run")
			continue
		}

		target, err := r.pages.RetrievePage(ctx, linked)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			logger.WithError(err).WithField("page", linked).Warn("Linked page not retrievable, relation is unresolvable this run")
			continue
		}
		if target.IsZero() || target.Parent.DatabaseID == "" {
			logger.WithField("page", linked).Warn("Linked page unavailable, relation is unresolvable this run")
			continue
		}
		mapping[field] = target.Parent.DatabaseID
		logger.WithField("target", target.Parent.DatabaseID).Debug("Discovered relation target")
	}
	return mapping, nil
}

func firstLink(pages []notion.Page, field string) string {
	for _, p := range pages {
		v, ok, err := p.Property(field)
		if err != nil || !ok {
			continue
		}
		if ids, ok := v.([]string); ok && len(ids) > 0 {
			return ids[0]
		}
	}
	return ""
}

// Link sets the companion link field of each draft to the destination records of
// its linked pages, for every relation whose target job already ran. links maps
// a relation property to its companion field name. Drafts are modified in place.
func (r *Resolver) Link(ctx context.Context, drafts []*materialize.Draft, mapping Mapping, registry *Registry, links map[string]string) (LinkReport, error) {
	report := newReport()
	for _, property := range mapping.Properties() {
		target := mapping[property]
		logger := r.logger.WithFields(log.Fields{"property": property, "target": target})
		if target == "" {
			report.Unresolved = append(report.Unresolved, property)
			continue
		}
		entry, ok := registry.Lookup(target)
		if !ok {
			logger.Info("Relation target not written yet, leaving links unset")
			report.Pending = append(report.Pending, PendingLink{Property: property, Target: target})
			continue
		}
		companion, ok := links[property]
		if !ok {
			report.Unresolved = append(report.Unresolved, property)
			continue
		}

		index, err := r.index(ctx, entry)
		if err != nil {
			return report, err
		}
		for _, d := range drafts {
			if matched := match(d.Relations[property], index); len(matched) > 0 {
				d.Set(companion, matched)
				report.Linked[property]++
			}
		}
		logger.WithField("records", report.Linked[property]).Info("Linked relation")
	}
	return report, nil
}

// index maps normalized origin ids to destination record ids for a written table.
func (r *Resolver) index(ctx context.Context, entry Entry) (map[string]string, error) {
	table := entry.TableID
	if table == "" {
		table = entry.TableName
	}
	records, err := r.records.ListRecords(ctx, entry.BaseID, table, entry.OriginField)
	if err != nil {
		return nil, errors.Wrapf(err, "list records of %s", entry.TableName)
	}
	index := make(map[string]string, len(records))
	for _, rec := range records {
		origin, ok := rec.Fields[entry.OriginField].(string)
		if !ok || origin == "" {
			continue
		}
		index[NormalizeID(origin)] = rec.ID
	}
	return index, nil
}

// match returns the destination record ids of the linked pages, in link order.
// Matching is exact on normalized ids.
func match(pageIDs []string, index map[string]string) []string {
	var out []string
	seen := map[string]bool{}
	for _, id := range pageIDs {
		recID, ok := index[NormalizeID(id)]
		if !ok || seen[recID] {
			continue
		}
		seen[recID] = true
		out = append(out, recID)
	}
	return out
}
