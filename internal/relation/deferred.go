package relation

import (
	"context"

	"github.com/nucleus/meno-sync/internal/connector/airtable"
	"github.com/nucleus/meno-sync/internal/materialize"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Deferred is a pending relation of a written table, kept for the deferred pass.
type Deferred struct {
	Source   Entry
	Property string
	Target   string
	Records  []DeferredRecord
}

// DeferredRecord pairs a written record with its linked source page ids.
type DeferredRecord struct {
	RecordID    string
	RelationIDs []string
}

// NewDeferred builds the deferred work for the pending links of a job. recordIDs
// are the created record ids, in draft order.
func NewDeferred(source Entry, report LinkReport, drafts []*materialize.Draft, recordIDs []string) []Deferred {
	var out []Deferred
	for _, p := range report.Pending {
		d := Deferred{Source: source, Property: p.Property, Target: p.Target}
		for i, draft := range drafts {
			if i >= len(recordIDs) {
				break
			}
			if ids := draft.Relations[p.Property]; len(ids) > 0 {
				d.Records = append(d.Records, DeferredRecord{RecordID: recordIDs[i], RelationIDs: ids})
			}
		}
		if len(d.Records) > 0 {
			out = append(out, d)
		}
	}
	return out
}

// ResolveDeferred links pending relations whose target job has since run. It
// adds the companion link field to the source table and patches the written
// records. A relation that fails is logged and reported unresolved; only
// cancellation of ctx stops the pass.
func (r *Resolver) ResolveDeferred(ctx context.Context, deferred []Deferred, registry *Registry) (LinkReport, error) {
	report := newReport()
	if r.fields == nil {
		return report, errors.New("deferred linking needs a link field creator")
	}

	for _, d := range deferred {
		logger := r.logger.WithFields(log.Fields{
			"table":    d.Source.TableName,
			"property": d.Property,
			"target":   d.Target,
		})
		entry, ok := registry.Lookup(d.Target)
		if !ok {
			logger.Info("Relation target never written, leaving links unset")
			report.Unresolved = append(report.Unresolved, d.Property)
			continue
		}

		linked, err := r.resolveOne(ctx, d, entry)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return report, ctxErr
			}
			logger.WithError(err).Error("Failed to link deferred relation")
			report.Unresolved = append(report.Unresolved, d.Property)
			continue
		}
		if linked == 0 {
			continue
		}
		report.Linked[d.Property] += linked
		logger.WithField("records", linked).Info("Linked deferred relation")
	}
	return report, nil
}

func (r *Resolver) resolveOne(ctx context.Context, d Deferred, entry Entry) (int, error) {
	table, err := r.fields.EnsureTable(ctx, d.Source.BaseID, d.Source.TableName)
	if err != nil {
		return 0, err
	}
	companion, err := r.fields.EnsureLinkField(ctx, table, d.Property, entry.TableID)
	if err != nil {
		return 0, err
	}

	index, err := r.index(ctx, entry)
	if err != nil {
		return 0, err
	}
	var updates []airtable.RecordUpdate
	for _, rec := range d.Records {
		if matched := match(rec.RelationIDs, index); len(matched) > 0 {
			updates = append(updates, airtable.RecordUpdate{
				ID:     rec.RecordID,
				Fields: map[string]any{companion: matched},
			})
		}
	}
	if len(updates) == 0 {
		return 0, nil
	}
	if _, err := r.records.UpdateRecords(ctx, d.Source.BaseID, table.ID, updates); err != nil {
		return 0, errors.Wrapf(err, "patch links of %s", d.Source.TableName)
	}
	return len(updates), nil
}
