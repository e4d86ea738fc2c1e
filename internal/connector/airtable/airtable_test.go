package airtable

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStubClient(t *testing.T) (*Client, *StubServer) {
	t.Helper()
	logger := log.New()
	logger.SetOutput(io.Discard)

	stub := NewStubServer("pat-test")
	stub.AddBase("appBase", "Operations")
	client, err := New(stub.Config(logger))
	require.NoError(t, err)
	return client, stub
}

func TestConfig_Validate(t *testing.T) {
	assert.ErrorIs(t, (&Config{}).Validate(), ErrMissingToken)

	cfg := &Config{Token: "t", BatchSize: 50}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, DefaultBaseURL, cfg.BaseURL)
	assert.EqualValues(t, DefaultRateLimit, cfg.RateLimit)
	assert.Equal(t, MaxBatchSize, cfg.BatchSize)

	client, err := New(&Config{Token: "t"})
	require.NoError(t, err)
	assert.EqualValues(t, 5, client.Client.Config().RateLimit)
}

func TestClient_TablesAndFields(t *testing.T) {
	client, stub := newStubClient(t)
	ctx := context.Background()

	bases, err := client.ListBases(ctx)
	require.NoError(t, err)
	require.Len(t, bases, 1)
	assert.Equal(t, "appBase", bases[0].ID)

	table, err := client.CreateTable(ctx, "appBase", "Fabric", []Field{{Name: "Name", Type: FieldSingleLineText}})
	require.NoError(t, err)
	assert.NotEmpty(t, table.ID)
	assert.Equal(t, []string{"Name"}, table.FieldNames())

	field, err := client.CreateField(ctx, "appBase", table.ID, Field{
		Name:    "Price",
		Type:    FieldNumber,
		Options: map[string]any{"precision": 2},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, field.ID)

	tables, err := client.ListTables(ctx, "appBase")
	require.NoError(t, err)
	require.Len(t, tables, 1)
	got, ok := tables[0].Field("Price")
	require.True(t, ok)
	assert.Equal(t, FieldNumber, got.Type)
	assert.Equal(t, []string{"Price"}, stub.FieldCreates())

	_, err = client.CreateField(ctx, "appBase", table.ID, Field{
		Name:    "REL__Vendor",
		Type:    FieldMultipleRecordLinks,
		Options: map[string]any{"linkedTableId": "tblMissing"},
	})
	assert.Error(t, err)
}

func TestClient_ListTablesUnknownBase(t *testing.T) {
	client, _ := newStubClient(t)
	_, err := client.ListTables(context.Background(), "appMissing")
	require.Error(t, err)
}

func TestClient_CreateRecordsInBatches(t *testing.T) {
	client, stub := newStubClient(t)
	ctx := context.Background()

	_, err := client.CreateTable(ctx, "appBase", "Items", []Field{{Name: "Name", Type: FieldSingleLineText}})
	require.NoError(t, err)

	fields := make([]map[string]any, 25)
	for i := range fields {
		fields[i] = map[string]any{"Name": fmt.Sprintf("item-%02d", i)}
	}

	created, err := client.CreateRecords(ctx, "appBase", "Items", fields)
	require.NoError(t, err)
	require.Len(t, created, 25)
	assert.Equal(t, "item-00", created[0].Fields["Name"])
	assert.Equal(t, "item-24", created[24].Fields["Name"])
	assert.Equal(t, []int{10, 10, 5}, stub.Batches())

	records, err := client.ListRecords(ctx, "appBase", "Items", "Name")
	require.NoError(t, err)
	assert.Len(t, records, 25)
}

func TestClient_ListRecordsPaginates(t *testing.T) {
	client, _ := newStubClient(t)
	ctx := context.Background()

	_, err := client.CreateTable(ctx, "appBase", "Big", []Field{{Name: "Name", Type: FieldSingleLineText}})
	require.NoError(t, err)

	fields := make([]map[string]any, 130)
	for i := range fields {
		fields[i] = map[string]any{"Name": fmt.Sprint(i)}
	}
	_, err = client.CreateRecords(ctx, "appBase", "Big", fields)
	require.NoError(t, err)

	records, err := client.ListRecords(ctx, "appBase", "Big")
	require.NoError(t, err)
	require.Len(t, records, 130)
	assert.Equal(t, "129", records[129].Fields["Name"])
}

func TestClient_UpdateRecords(t *testing.T) {
	client, stub := newStubClient(t)
	ctx := context.Background()

	_, err := client.CreateTable(ctx, "appBase", "Items", []Field{
		{Name: "Name", Type: FieldSingleLineText},
		{Name: "Notes", Type: FieldMultilineText},
	})
	require.NoError(t, err)
	created, err := client.CreateRecords(ctx, "appBase", "Items", []map[string]any{{"Name": "a"}})
	require.NoError(t, err)

	_, err = client.UpdateRecords(ctx, "appBase", "Items", []RecordUpdate{
		{ID: created[0].ID, Fields: map[string]any{"Notes": "patched"}},
	})
	require.NoError(t, err)

	records := stub.Records("appBase", "Items")
	require.Len(t, records, 1)
	assert.Equal(t, "a", records[0].Fields["Name"])
	assert.Equal(t, "patched", records[0].Fields["Notes"])
}

func TestClient_WritesUseTypecast(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		assert.Equal(t, "/v0/appBase/Items", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, _ = w.Write([]byte(`{"records":[{"id":"rec1","fields":{"Name":"a"}}]}`))
	}))
	defer srv.Close()

	client, err := New(&Config{Token: "t", BaseURL: srv.URL, RateLimit: -1})
	require.NoError(t, err)

	_, err = client.CreateRecords(context.Background(), "appBase", "Items", []map[string]any{{"Name": "a"}})
	require.NoError(t, err)
	assert.Equal(t, true, body["typecast"])
	assert.Len(t, body["records"], 1)
}

func TestClient_ValidateConnection(t *testing.T) {
	client, _ := newStubClient(t)
	result, err := client.ValidateConnection(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Equal(t, "Airtable connection successful", result.Message)
}
