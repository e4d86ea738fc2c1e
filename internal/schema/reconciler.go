package schema

import (
	"context"

	"github.com/nucleus/meno-sync/internal/codec"
	"github.com/nucleus/meno-sync/internal/config"
	"github.com/nucleus/meno-sync/internal/connector/airtable"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// ErrBaseNotFound is returned by EnsureTable when the base is not accessible.
var ErrBaseNotFound = errors.New("base not found")

// API is the subset of the destination client the reconciler needs.
type API interface {
	ListBases(ctx context.Context) ([]airtable.Base, error)
	ListTables(ctx context.Context, baseID string) ([]airtable.Table, error)
	CreateTable(ctx context.Context, baseID, name string, fields []airtable.Field) (airtable.Table, error)
	CreateField(ctx context.Context, baseID, tableID string, field airtable.Field) (airtable.Field, error)
}

// Table is a destination table handle.
type Table struct {
	BaseID string
	airtable.Table
}

// State is the outcome of reconciling one job against its table.
type State struct {
	// Existing lists wanted fields that were already on the table.
	Existing []string
	// Missing lists fields that had to be created.
	Missing []string
	// RelationFields lists the source properties of kind relation.
	RelationFields []string
	// Links maps a relation property to its companion link field. Only relations
	// whose target table is known have one.
	Links map[string]string
	// Fields is the destination layout in property-map order.
	Fields []FieldSpec
}

// Reconciler creates destination tables and fields.
type Reconciler struct {
	api    API
	logger log.FieldLogger
}

// NewReconciler creates a reconciler using api.
func NewReconciler(api API, logger log.FieldLogger) *Reconciler {
	return &Reconciler{
		api:    api,
		logger: logger.WithField("component", "schema"),
	}
}

// EnsureTable returns the table named tableName in baseID, creating it with a
// single Name field if it does not exist.
func (r *Reconciler) EnsureTable(ctx context.Context, baseID, tableName string) (*Table, error) {
	bases, err := r.api.ListBases(ctx)
	if err != nil {
		return nil, err
	}
	found := false
	for _, b := range bases {
		if b.ID == baseID {
			found = true
			break
		}
	}
	if !found {
		return nil, errors.Wrapf(ErrBaseNotFound, "base %s", baseID)
	}

	tables, err := r.api.ListTables(ctx, baseID)
	if err != nil {
		return nil, err
	}
	for _, t := range tables {
		if t.Name == tableName {
			return &Table{BaseID: baseID, Table: t}, nil
		}
	}

	logger := r.logger.WithFields(log.Fields{"base": baseID, "table": tableName})
	logger.Info("Table not found, creating empty table")
	created, err := r.api.CreateTable(ctx, baseID, tableName, []airtable.Field{
		{Name: "Name", Type: airtable.FieldSingleLineText},
	})
	if err != nil {
		return nil, err
	}
	return &Table{BaseID: baseID, Table: created}, nil
}

// Reconcile creates every field the job needs that the table lacks: a companion
// link field for each relation whose target table id is in targets, one field
// per mapped property, and the origin field. Created fields are appended to
// table, so reconciling again is a no-op.
func (r *Reconciler) Reconcile(ctx context.Context, table *Table, job *config.Job, types TypeMap, targets map[string]string) (*State, error) {
	logger := r.logger.WithFields(log.Fields{"base": table.BaseID, "table": table.Name})
	state := &State{
		RelationFields: types.Relations(job),
		Links:          map[string]string{},
		Fields:         Plan(job, types),
	}

	for _, source := range state.RelationFields {
		targetTable := targets[source]
		if targetTable == "" {
			logger.WithField("property", source).Debug("Relation target unknown, no link field")
			continue
		}
		name := RelationFieldName(source)
		state.Links[source] = name
		if err := r.ensureField(ctx, table, linkField(name, targetTable), state, logger); err != nil {
			return nil, err
		}
	}

	for _, spec := range state.Fields {
		if err := r.ensureField(ctx, table, spec.Field(), state, logger); err != nil {
			return nil, err
		}
	}

	origin := FieldSpec{Destination: job.OriginField, Kind: codec.KindTitle, Type: airtable.FieldSingleLineText}
	if err := r.ensureField(ctx, table, origin.Field(), state, logger); err != nil {
		return nil, err
	}
	return state, nil
}

// EnsureLinkField creates the companion link field of a relation property,
// pointing at linkedTableID, unless the table already has it.
func (r *Reconciler) EnsureLinkField(ctx context.Context, table *Table, source, linkedTableID string) (string, error) {
	name := RelationFieldName(source)
	logger := r.logger.WithFields(log.Fields{"base": table.BaseID, "table": table.Name})
	if err := r.ensureField(ctx, table, linkField(name, linkedTableID), &State{}, logger); err != nil {
		return "", err
	}
	return name, nil
}

func linkField(name, linkedTableID string) airtable.Field {
	return airtable.Field{
		Name:    name,
		Type:    airtable.FieldMultipleRecordLinks,
		Options: map[string]any{"linkedTableId": linkedTableID},
	}
}

func (r *Reconciler) ensureField(ctx context.Context, table *Table, field airtable.Field, state *State, logger log.FieldLogger) error {
	if _, ok := table.Field(field.Name); ok {
		state.Existing = append(state.Existing, field.Name)
		return nil
	}

	logger.WithFields(log.Fields{"field": field.Name, "type": field.Type}).Info("Adding field")
	created, err := r.api.CreateField(ctx, table.BaseID, table.ID, field)
	if err != nil {
		return errors.Wrapf(err, "add field %q to %s", field.Name, table.Name)
	}
	table.Fields = append(table.Fields, created)
	state.Missing = append(state.Missing, field.Name)
	return nil
}
