package logstore

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	minioep "github.com/nucleus/meno-sync/internal/connector/minio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/reader"
)

func newStore(t *testing.T) (*MinioStore, *minioep.LocalStore) {
	t.Helper()
	objects := minioep.NewLocalStore(t.TempDir())
	store := NewMinioStoreWith(objects, "artifacts", "runs")
	store.now = func() time.Time { return time.Date(2024, 9, 19, 10, 0, 0, 0, time.UTC) }
	return store, objects
}

func TestWriteSnapshot(t *testing.T) {
	store, objects := newStore(t)
	ctx := context.Background()

	uri, err := store.WriteSnapshot(ctx, "run-1", "registry", []byte(`{"db1":{}}`))
	require.NoError(t, err)
	assert.Equal(t, "minio://artifacts/runs/run-1/registry.snapshot.json", uri)

	data, err := objects.GetObject(ctx, "artifacts", "runs/run-1/registry.snapshot.json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"db1":{}}`, string(data))
}

func TestAppend(t *testing.T) {
	store, objects := newStore(t)
	ctx := context.Background()

	uri, err := store.Append(ctx, "run-1", nil)
	require.NoError(t, err)
	assert.Empty(t, uri)

	uri, err = store.Append(ctx, "run-1", []Event{
		{Job: "Fabric", Op: "written", Table: "Fabric", Records: 2},
		{Job: "Vendor", Op: "failed", Error: "base not found"},
	})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(uri, "minio://artifacts/runs/run-1/events-"))

	data, err := objects.GetObject(ctx, "artifacts", strings.TrimPrefix(uri, "minio://artifacts/"))
	require.NoError(t, err)
	lines := bytes.Split(bytes.TrimSpace(data), []byte("\n"))
	require.Len(t, lines, 2)

	var first Event
	require.NoError(t, json.Unmarshal(lines[0], &first))
	assert.Equal(t, Event{RunID: "run-1", Job: "Fabric", Op: "written", Table: "Fabric", Records: 2, At: "2024-09-19T10:00:00Z"}, first)
}

func TestWriteArchive(t *testing.T) {
	store, objects := newStore(t)
	ctx := context.Background()

	uri, err := store.WriteArchive(ctx, "run-1", "Fabric", nil)
	require.NoError(t, err)
	assert.Empty(t, uri)

	rows := []Row{
		{PageID: "p1", RecordID: "rec1", Fields: map[string]any{"Name": "Widget", "Cost": 4.5}},
		{PageID: "p2", RecordID: "rec2", Fields: map[string]any{"Name": "Gadget"}},
		{PageID: "p3", Fields: map[string]any{}},
	}
	uri, err = store.WriteArchive(ctx, "run-1", "Fabric Orders", rows)
	require.NoError(t, err)
	assert.Equal(t, "minio://artifacts/runs/run-1/tables/Fabric_Orders.parquet", uri)

	path := filepath.Join(objects.Root(), "artifacts", "runs", "run-1", "tables", "Fabric_Orders.parquet")
	fr, err := local.NewLocalFileReader(path)
	require.NoError(t, err)
	defer fr.Close()

	pr, err := reader.NewParquetReader(fr, nil, 1)
	require.NoError(t, err)
	defer pr.ReadStop()
	assert.EqualValues(t, 3, pr.GetNumRows())

	paths, err := store.ListPaths(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"runs/run-1/tables/Fabric_Orders.parquet"}, paths)
}

func TestArchiveLine(t *testing.T) {
	line, err := archiveLine("run-1", "Fabric", Row{PageID: "p1", Fields: map[string]any{"Name": "Widget"}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"run_id":"run-1","table":"Fabric","page_id":"p1","record_id":null,"fields":"{\"Name\":\"Widget\"}"}`, line)
}

func TestSlug(t *testing.T) {
	assert.Equal(t, "Fabric_Orders", Slug("Fabric Orders"))
	assert.Equal(t, "a_b", Slug("a/b"))
	assert.Equal(t, "unnamed", Slug("  "))
}
