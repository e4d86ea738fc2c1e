// Package orchestration runs sync jobs in configuration order and collects the
// run summary.
package orchestration

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/nucleus/meno-sync/internal/config"
	"github.com/nucleus/meno-sync/internal/connector/airtable"
	"github.com/nucleus/meno-sync/internal/connector/notion"
	"github.com/nucleus/meno-sync/internal/ledger"
	"github.com/nucleus/meno-sync/internal/materialize"
	"github.com/nucleus/meno-sync/internal/relation"
	"github.com/nucleus/meno-sync/internal/schema"
	"github.com/nucleus/meno-sync/pkg/logstore"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// ErrEmptySource marks a job whose source query returned no pages. An empty
// database and an exhausted query look the same, so the job is skipped.
var ErrEmptySource = errors.New("source returned no pages")

// Source reads pages from the source backend.
type Source interface {
	relation.PageGetter
	Query(ctx context.Context, databaseID string, opts notion.QueryOptions) ([]notion.Page, error)
}

// Destination is the destination backend.
type Destination interface {
	schema.API
	materialize.RecordWriter
	relation.RecordStore
}

// Ledger records runs. *ledger.Ledger implements it.
type Ledger interface {
	StartRun(ctx context.Context, run ledger.Run) error
	RecordJob(ctx context.Context, runID string, result ledger.JobResult) error
	FinishRun(ctx context.Context, run ledger.Run) error
}

// Options configures a Runner. Artifacts and Ledger are optional.
type Options struct {
	// DeferredLinks patches relations to tables written later in the run once
	// every job finished.
	DeferredLinks bool
	Artifacts     logstore.Store
	Ledger        Ledger
	Logger        log.FieldLogger
}

// Runner executes jobs strictly in order on a single goroutine.
type Runner struct {
	source     Source
	dest       Destination
	reconciler *schema.Reconciler
	resolver   *relation.Resolver
	artifacts  logstore.Store
	ledger     Ledger
	deferred   bool
	logger     log.FieldLogger
	now        func() time.Time
}

// NewRunner creates a runner reading from source and writing to dest.
func NewRunner(source Source, dest Destination, opts Options) *Runner {
	logger := opts.Logger
	if logger == nil {
		logger = log.StandardLogger()
	}
	reconciler := schema.NewReconciler(dest, logger)
	return &Runner{
		source:     source,
		dest:       dest,
		reconciler: reconciler,
		resolver:   relation.NewResolver(source, dest, reconciler, logger),
		artifacts:  opts.Artifacts,
		ledger:     opts.Ledger,
		deferred:   opts.DeferredLinks,
		logger:     logger.WithField("component", "runner"),
		now:        time.Now,
	}
}

// JobResult is the outcome of one job.
type JobResult struct {
	Job        string              `json:"job"`
	DatabaseID string              `json:"databaseId"`
	BaseID     string              `json:"baseId"`
	TableID    string              `json:"tableId,omitempty"`
	Status     string              `json:"status"`
	Records    int                 `json:"records"`
	Created    []string            `json:"createdFields,omitempty"`
	Links      relation.LinkReport `json:"links"`
	Warnings   []string            `json:"warnings,omitempty"`
	Archive    string              `json:"archive,omitempty"`
	Err        error               `json:"-"`
}

// Message returns the job failure message, or "".
func (r JobResult) Message() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

func (r JobResult) ledgerResult() ledger.JobResult {
	linked := 0
	for _, n := range r.Links.Linked {
		linked += n
	}
	return ledger.JobResult{
		Job:        r.Job,
		DatabaseID: r.DatabaseID,
		Table:      r.Job,
		Status:     r.Status,
		Records:    r.Records,
		Linked:     linked,
		Pending:    len(r.Links.Pending),
		Error:      r.Message(),
		Archive:    r.Archive,
	}
}

// RunSummary describes a completed run.
type RunSummary struct {
	RunID      string               `json:"runId"`
	StartedAt  time.Time            `json:"startedAt"`
	FinishedAt time.Time            `json:"finishedAt"`
	Jobs       []JobResult          `json:"jobs"`
	Deferred   *relation.LinkReport `json:"deferred,omitempty"`
	Snapshot   string               `json:"snapshot,omitempty"`
	Registry   *relation.Registry   `json:"registry"`
}

// Failed returns the jobs that failed.
func (s *RunSummary) Failed() []JobResult {
	var out []JobResult
	for _, j := range s.Jobs {
		if j.Status == ledger.StatusFailed {
			out = append(out, j)
		}
	}
	return out
}

// Run executes every job in order. A failing job is logged and recorded, and
// the run moves on to the next one. Run only returns an error when ctx is done.
func (r *Runner) Run(ctx context.Context, jobs []config.Job) (*RunSummary, error) {
	summary := &RunSummary{
		RunID:     uuid.NewString(),
		StartedAt: r.now().UTC(),
		Registry:  relation.NewRegistry(),
	}
	logger := r.logger.WithField("run", summary.RunID)
	logger.WithField("jobs", len(jobs)).Info("Starting sync run")

	if r.ledger != nil {
		if err := r.ledger.StartRun(ctx, ledger.Run{ID: summary.RunID, StartedAt: summary.StartedAt, Jobs: len(jobs)}); err != nil {
			logger.WithError(err).Warn("Could not record run start")
		}
	}

	var pending []relation.Deferred
	for i := range jobs {
		if err := ctx.Err(); err != nil {
			summary.FinishedAt = r.now().UTC()
			return summary, err
		}
		job := jobs[i]
		result, deferred := r.runJob(ctx, summary.RunID, summary.Registry, &job)
		pending = append(pending, deferred...)
		summary.Jobs = append(summary.Jobs, result)
		r.recordJob(ctx, summary.RunID, result)
	}

	if r.deferred && len(pending) > 0 {
		report, err := r.resolver.ResolveDeferred(ctx, pending, summary.Registry)
		if err != nil {
			logger.WithError(err).Error("Deferred link pass failed")
		}
		summary.Deferred = &report
	}

	summary.FinishedAt = r.now().UTC()
	r.finish(ctx, summary)
	logger.WithFields(log.Fields{
		"jobs":   len(summary.Jobs),
		"failed": len(summary.Failed()),
	}).Info("Sync run finished")
	return summary, nil
}

func (r *Runner) runJob(ctx context.Context, runID string, registry *relation.Registry, job *config.Job) (JobResult, []relation.Deferred) {
	result := JobResult{
		Job:        job.TableName,
		DatabaseID: job.SourceDatabaseID,
		BaseID:     job.BaseID,
		Links:      relation.LinkReport{Linked: map[string]int{}},
	}
	logger := r.logger.WithFields(log.Fields{"run": runID, "job": job.TableName, "database": job.SourceDatabaseID})
	fail := func(err error, msg string) (JobResult, []relation.Deferred) {
		result.Status = ledger.StatusFailed
		result.Err = errors.Wrap(err, msg)
		logger.WithError(err).Error(msg)
		return result, nil
	}

	if err := job.Validate(); err != nil {
		return fail(err, "Invalid job configuration")
	}

	table, err := r.reconciler.EnsureTable(ctx, job.BaseID, job.TableName)
	if err != nil {
		return fail(err, "Could not prepare destination table")
	}
	result.TableID = table.ID

	pages, err := r.source.Query(ctx, job.SourceDatabaseID, notion.QueryOptions{})
	if err != nil {
		return fail(err, "Could not query source database")
	}
	if len(pages) == 0 {
		result.Status = ledger.StatusSkipped
		result.Err = ErrEmptySource
		logger.Warn("Source returned no pages, skipping job")
		return result, nil
	}

	types, typeErrs := schema.InferTypeMap(job, pages)
	for _, e := range typeErrs {
		logger.WithError(e).Warn("Property type not resolved")
		result.Warnings = append(result.Warnings, e.Error())
	}

	mapping, err := r.resolver.DiscoverTargets(ctx, pages, types.Relations(job))
	if err != nil {
		return fail(err, "Could not discover relation targets")
	}
	targets := map[string]string{}
	for property, database := range mapping {
		if entry, ok := registry.Lookup(database); ok && database != "" {
			targets[property] = entry.TableID
		}
	}

	state, err := r.reconciler.Reconcile(ctx, table, job, types, targets)
	if err != nil {
		return fail(err, "Could not reconcile destination schema")
	}
	result.Created = state.Missing

	drafts, convErrs := materialize.Materialize(pages, job, types)
	for _, e := range convErrs {
		logger.WithError(e).Error("Property not converted")
		result.Warnings = append(result.Warnings, e.Error())
	}

	report, err := r.resolver.Link(ctx, drafts, mapping, registry, state.Links)
	if err != nil {
		return fail(err, "Could not link relations")
	}
	result.Links = report

	ids, err := materialize.Submit(ctx, r.dest, table.BaseID, table.ID, drafts)
	result.Records = len(ids)
	if err != nil {
		return fail(err, "Could not write records")
	}

	entry := relation.Entry{
		TableName:   job.TableName,
		BaseID:      table.BaseID,
		TableID:     table.ID,
		OriginField: job.OriginField,
	}
	if !registry.Register(job.SourceDatabaseID, entry) {
		logger.Warn("Source database already synced in this run, keeping the first table for links")
	}
	result.Status = ledger.StatusWritten
	result.Archive = r.archive(ctx, runID, job.TableName, drafts, ids, logger)
	logger.WithFields(log.Fields{
		"records": len(ids),
		"pending": len(report.Pending),
	}).Info("Job written")

	if !r.deferred {
		return result, nil
	}
	return result, relation.NewDeferred(entry, report, drafts, ids)
}

func (r *Runner) archive(ctx context.Context, runID, table string, drafts []*materialize.Draft, ids []string, logger log.FieldLogger) string {
	if r.artifacts == nil {
		return ""
	}
	rows := make([]logstore.Row, 0, len(drafts))
	for i, d := range drafts {
		row := logstore.Row{PageID: d.PageID, Fields: d.Fields()}
		if i < len(ids) {
			row.RecordID = ids[i]
		}
		rows = append(rows, row)
	}
	uri, err := r.artifacts.WriteArchive(ctx, runID, table, rows)
	if err != nil {
		logger.WithError(err).Warn("Could not archive written records")
		return ""
	}
	return uri
}

func (r *Runner) recordJob(ctx context.Context, runID string, result JobResult) {
	if r.ledger == nil {
		return
	}
	if err := r.ledger.RecordJob(ctx, runID, result.ledgerResult()); err != nil {
		r.logger.WithError(err).WithField("job", result.Job).Warn("Could not record job result")
	}
}

// finish writes the registry snapshot and event log and closes the ledger run.
func (r *Runner) finish(ctx context.Context, summary *RunSummary) {
	logger := r.logger.WithField("run", summary.RunID)

	if r.artifacts != nil {
		snapshot, err := json.MarshalIndent(summary.Registry, "", "  ")
		if err == nil {
			summary.Snapshot, err = r.artifacts.WriteSnapshot(ctx, summary.RunID, "registry", snapshot)
		}
		if err != nil {
			logger.WithError(err).Warn("Could not write registry snapshot")
		}

		events := make([]logstore.Event, 0, len(summary.Jobs))
		for _, j := range summary.Jobs {
			events = append(events, logstore.Event{
				Job:     j.Job,
				Op:      j.Status,
				Table:   j.TableID,
				Records: j.Records,
				Error:   j.Message(),
				At:      summary.FinishedAt.Format(time.RFC3339),
			})
		}
		if _, err := r.artifacts.Append(ctx, summary.RunID, events); err != nil {
			logger.WithError(err).Warn("Could not write run events")
		}
	}

	if r.ledger != nil {
		finished := summary.FinishedAt
		err := r.ledger.FinishRun(ctx, ledger.Run{
			ID:         summary.RunID,
			StartedAt:  summary.StartedAt,
			FinishedAt: &finished,
			Jobs:       len(summary.Jobs),
			Failed:     len(summary.Failed()),
			Snapshot:   summary.Snapshot,
		})
		if err != nil {
			logger.WithError(err).Warn("Could not record run end")
		}
	}
}

var _ Destination = (*airtable.Client)(nil)
var _ Source = (*notion.Client)(nil)
