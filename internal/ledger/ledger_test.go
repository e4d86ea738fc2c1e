package ledger

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_RequiresDSN(t *testing.T) {
	_, err := Open(context.Background(), "")
	assert.Error(t, err)
}

// TestLedger_Integration runs against a live Postgres when MENO_LEDGER_TEST_DSN is set.
func TestLedger_Integration(t *testing.T) {
	dsn := os.Getenv("MENO_LEDGER_TEST_DSN")
	if dsn == "" {
		t.Skip("MENO_LEDGER_TEST_DSN not set")
	}
	ctx := context.Background()
	l, err := Open(ctx, dsn)
	require.NoError(t, err)
	defer l.Close()

	run := Run{ID: uuid.NewString(), StartedAt: time.Now().UTC().Truncate(time.Millisecond), Jobs: 2}
	require.NoError(t, l.StartRun(ctx, run))
	require.NoError(t, l.RecordJob(ctx, run.ID, JobResult{Job: "Vendor", DatabaseID: "db-b", Table: "Vendor", Status: StatusWritten, Records: 3}))
	require.NoError(t, l.RecordJob(ctx, run.ID, JobResult{Job: "Fabric", DatabaseID: "db-a", Table: "Fabric", Status: StatusFailed, Error: "base not found"}))

	run.Failed = 1
	run.Snapshot = "minio://meno-sync/runs/" + run.ID + "/registry.snapshot.json"
	require.NoError(t, l.FinishRun(ctx, run))

	results, err := l.JobResults(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "Vendor", results[0].Job)
	assert.Equal(t, StatusFailed, results[1].Status)

	runs, err := l.Runs(ctx, 50)
	require.NoError(t, err)
	var found bool
	for _, r := range runs {
		if r.ID == run.ID {
			found = true
			assert.Equal(t, 1, r.Failed)
			assert.NotNil(t, r.FinishedAt)
		}
	}
	assert.True(t, found)
}
