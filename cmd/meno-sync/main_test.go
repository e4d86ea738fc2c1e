package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nucleus/meno-sync/internal/config"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	logger, err := newLogger(&config.Settings{LogLevel: "debug", LogFormat: "json"})
	require.NoError(t, err)
	assert.Equal(t, log.DebugLevel, logger.GetLevel())
	assert.IsType(t, &log.JSONFormatter{}, logger.Formatter)

	_, err = newLogger(&config.Settings{LogLevel: "loud"})
	assert.Error(t, err)
	_, err = newLogger(&config.Settings{LogLevel: "info", LogFormat: "xml"})
	assert.Error(t, err)
}

func TestLoadJobs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
		{"notion_db_id":"db-a","airtable_table_name":"A","airtable_base_id":"appOps","property_map":{"Name":"Name"}},
		{"airtable_table_name":"Broken"}
	]`), 0o644))

	jobs, invalid, err := loadJobs(path)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, config.DefaultOriginField, jobs[0].OriginField)
	require.Len(t, invalid, 1)
	assert.True(t, errors.Is(invalid[0], config.ErrInvalidJob))

	_, _, err = loadJobs(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
