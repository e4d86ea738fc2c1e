package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nucleus/meno-sync/internal/codec"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const jobsJSON = `[
  {
    "notion_db_id": "db-fabric",
    "airtable_table_name": "Fabric",
    "airtable_base_id": "appOps",
    "property_map": {"Name": "Name", "Vendor": "Vendor", "Cost": "Cost per yard"}
  },
  {
    "notion_db_id": "db-vendors",
    "airtable_table_name": "Vendors",
    "airtable_base_id": "appOps",
    "property_map": {"Company": "Company"},
    "origin_field": "Source ID",
    "property_kinds": {"Company": "title"},
    "sample_size": 5
  }
]`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadJobs_JSONKeepsPropertyOrder(t *testing.T) {
	jobs, err := LoadJobs(writeFile(t, "jobs.json", jobsJSON))
	require.NoError(t, err)
	require.Len(t, jobs, 2)

	assert.Equal(t, PropertyMap{
		{Source: "Name", Destination: "Name"},
		{Source: "Vendor", Destination: "Vendor"},
		{Source: "Cost", Destination: "Cost per yard"},
	}, jobs[0].PropertyMap)
	assert.Equal(t, codec.KindTitle, jobs[1].PropertyKinds["Company"])

	require.NoError(t, jobs[0].Validate())
	assert.Equal(t, DefaultOriginField, jobs[0].OriginField)
	assert.Equal(t, DefaultSampleSize, jobs[0].SampleSize)

	require.NoError(t, jobs[1].Validate())
	assert.Equal(t, "Source ID", jobs[1].OriginField)
	assert.Equal(t, 5, jobs[1].SampleSize)

	dest, ok := jobs[0].PropertyMap.Destination("Cost")
	assert.True(t, ok)
	assert.Equal(t, "Cost per yard", dest)
}

func TestLoadJobs_YAML(t *testing.T) {
	path := writeFile(t, "jobs.yaml", `
- notion_db_id: db-fabric
  airtable_table_name: Fabric
  airtable_base_id: appOps
  property_map:
    Zeta: Z
    Alpha: A
`)
	jobs, err := LoadJobs(path)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, []string{"Zeta", "Alpha"}, jobs[0].PropertyMap.Sources())
}

func TestLoadJobs_Errors(t *testing.T) {
	_, err := LoadJobs(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	_, err = LoadJobs(writeFile(t, "bad.json", `[{"property_map": ["a"]}]`))
	assert.Error(t, err)
}

func TestPropertyMap_MarshalJSON(t *testing.T) {
	data, err := json.Marshal(PropertyMap{{"b", "B"}, {"a", "A"}})
	require.NoError(t, err)
	assert.Equal(t, `{"b":"B","a":"A"}`, string(data))
}

func TestJob_Validate(t *testing.T) {
	tests := []struct {
		name string
		job  Job
	}{
		{"empty", Job{}},
		{"no map", Job{SourceDatabaseID: "db", TableName: "T", BaseID: "app"}},
		{"duplicate destination", Job{SourceDatabaseID: "db", TableName: "T", BaseID: "app",
			PropertyMap: PropertyMap{{"a", "X"}, {"b", "X"}}}},
		{"origin collides", Job{SourceDatabaseID: "db", TableName: "T", BaseID: "app",
			PropertyMap: PropertyMap{{"id", "Notion ID"}}}},
		{"unknown kind", Job{SourceDatabaseID: "db", TableName: "T", BaseID: "app",
			PropertyMap: PropertyMap{{"a", "A"}}, PropertyKinds: map[string]codec.Kind{"a": "button"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.job.Validate()
			assert.True(t, errors.Is(err, ErrInvalidJob), "got %v", err)
		})
	}
}

func TestSettings_Tokens(t *testing.T) {
	dir := t.TempDir()
	notionFile := filepath.Join(dir, "Notion_Token.txt")
	require.NoError(t, os.WriteFile(notionFile, []byte("  secret_notion\n"), 0o600))

	s := &Settings{
		NotionTokenFile:   notionFile,
		AirtableToken:     "pat-env",
		AirtableTokenFile: filepath.Join(dir, "missing.txt"),
	}
	notion, airtable, err := s.Tokens()
	require.NoError(t, err)
	assert.Equal(t, "secret_notion", notion)
	assert.Equal(t, "pat-env", airtable)

	s.AirtableToken = ""
	_, _, err = s.Tokens()
	assert.True(t, errors.Is(err, ErrMissingCredential))
}

func TestLoadSettings_Env(t *testing.T) {
	t.Setenv("MENO_NOTION_PAGE_DELAY", "250ms")
	t.Setenv("MENO_HTTP_MAX_RETRIES", "5")
	t.Setenv("MENO_DEFERRED_LINKS", "true")
	t.Setenv("MENO_AIRTABLE_RATE_LIMIT", "not-a-number")

	s := LoadSettings()
	assert.Equal(t, 250*time.Millisecond, s.NotionPageDelay)
	assert.Equal(t, 5, s.MaxRetries)
	assert.True(t, s.DeferredLinks)
	assert.Equal(t, 5, s.AirtableRateLimit)
	assert.Equal(t, 30*time.Second, s.RetryDelay)
}
