// Package logstore persists the artifacts of a sync run: the link registry
// snapshot, a parquet archive of the records written per table, and an
// append-only event log.
package logstore

import "context"

// Event is a single run log entry.
type Event struct {
	RunID   string `json:"runId"`
	Job     string `json:"job"`
	Op      string `json:"op"`
	Table   string `json:"table,omitempty"`
	Records int    `json:"records,omitempty"`
	Error   string `json:"error,omitempty"`
	At      string `json:"at"`
}

// Row is one archived destination record.
type Row struct {
	PageID   string
	RecordID string
	Fields   map[string]any
}

// Store abstracts run artifact storage.
type Store interface {
	Append(ctx context.Context, runID string, events []Event) (string, error)
	WriteSnapshot(ctx context.Context, runID, name string, snapshot []byte) (string, error)
	WriteArchive(ctx context.Context, runID, table string, rows []Row) (string, error)
	ListPaths(ctx context.Context, runID string) ([]string, error)
}
