package materialize

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/nucleus/meno-sync/internal/codec"
	"github.com/nucleus/meno-sync/internal/config"
	"github.com/nucleus/meno-sync/internal/connector/airtable"
	"github.com/nucleus/meno-sync/internal/connector/notion"
	"github.com/nucleus/meno-sync/internal/schema"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encode(t *testing.T, name string, kind codec.Kind, value any) codec.Properties {
	t.Helper()
	props, err := codec.Encode(name, kind, codec.Input{Value: value})
	require.NoError(t, err)
	return props
}

func page(t *testing.T, id string, props ...codec.Properties) notion.Page {
	t.Helper()
	all := codec.Properties{}
	for _, p := range props {
		all.Merge(p)
	}
	p, err := notion.NewPage(id, "db", all)
	require.NoError(t, err)
	return p
}

func newJob(t *testing.T, mappings ...config.Mapping) *config.Job {
	t.Helper()
	job := &config.Job{
		SourceDatabaseID: "db",
		TableName:        "Items",
		BaseID:           "appOps",
		PropertyMap:      mappings,
	}
	require.NoError(t, job.Validate())
	return job
}

func draftMaps(drafts []*Draft) []map[string]any {
	out := make([]map[string]any, 0, len(drafts))
	for _, d := range drafts {
		out = append(out, d.Fields())
	}
	return out
}

func TestMaterialize_WidgetGadget(t *testing.T) {
	job := newJob(t,
		config.Mapping{Source: "Name", Destination: "Name"},
		config.Mapping{Source: "Cost", Destination: "Cost"},
	)
	pages := []notion.Page{
		page(t, "p1", encode(t, "Name", codec.KindTitle, []string{"Widget"}), encode(t, "Cost", codec.KindNumber, 4.5)),
		page(t, "p2", encode(t, "Name", codec.KindTitle, []string{"Gadget"})),
	}
	types := schema.TypeMap{"Name": codec.KindTitle, "Cost": codec.KindNumber}

	drafts, errs := Materialize(pages, job, types)
	require.Empty(t, errs)

	want := []map[string]any{
		{"Name": "Widget", "Cost": 4.5, "Notion ID": "p1"},
		{"Name": "Gadget", "Notion ID": "p2"},
	}
	if diff := cmp.Diff(want, draftMaps(drafts)); diff != "" {
		t.Errorf("drafts mismatch (-want +got):\n%s", diff)
	}
	_, ok := drafts[1].Get("Cost")
	assert.False(t, ok)
	assert.Equal(t, []string{"Name", "Cost", "Notion ID"}, drafts[0].Names())
}

func TestMaterialize_EmptyRelationIsAbsent(t *testing.T) {
	job := newJob(t, config.Mapping{Source: "Vendor", Destination: "Vendor"})
	pages := []notion.Page{
		page(t, "p1", encode(t, "Vendor", codec.KindRelation, []string{})),
		page(t, "p2", encode(t, "Vendor", codec.KindRelation, []string{"v-1", "v-2"})),
	}

	drafts, errs := Materialize(pages, job, schema.TypeMap{"Vendor": codec.KindRelation})
	require.Empty(t, errs)

	_, ok := drafts[0].Get("Vendor")
	assert.False(t, ok, "empty relation must not become \"[]\"")
	assert.Empty(t, drafts[0].Relations["Vendor"])

	v, ok := drafts[1].Get("Vendor")
	require.True(t, ok)
	assert.Equal(t, `["v-1","v-2"]`, v)
	assert.Equal(t, []string{"v-1", "v-2"}, drafts[1].Relations["Vendor"])
}

func TestConvert(t *testing.T) {
	tests := []struct {
		name  string
		kind  codec.Kind
		value codec.Value
		want  any
	}{
		{"nil", codec.KindNumber, nil, nil},
		{"date", codec.KindDate, codec.DateRange{Start: "2024-09-19"}, "2024-09-19"},
		{"datetime", codec.KindDate, codec.DateRange{Start: "2024-09-19T14:30:00.000-04:00", End: "2024-09-20"}, "2024-09-19"},
		{"people", codec.KindPeople, []string{"u1"}, `["u1"]`},
		{"files", codec.KindFiles, []string{"https://a/x.pdf", "https://b/y.png"}, `["https://a/x.pdf","https://b/y.png"]`},
		{"empty files", codec.KindFiles, []string{}, nil},
		{"rollup array", codec.KindRollup, []string{"Alpha", "2"}, `["Alpha","2"]`},
		{"rollup number", codec.KindRollup, 12.5, `["12.5"]`},
		{"title runs", codec.KindTitle, []string{"Wid", "get"}, "Widget"},
		{"empty rich text", codec.KindRichText, []string{}, nil},
		{"formula bool", codec.KindFormula, true, "true"},
		{"multi select", codec.KindMultiSelect, []string{"red"}, []string{"red"}},
		{"empty multi select", codec.KindMultiSelect, []string{}, nil},
		{"checkbox false", codec.KindCheckbox, false, false},
		{"empty email", codec.KindEmail, "", nil},
		{"select", codec.KindSelect, "Linen", "Linen"},
		{"unique id", codec.KindUniqueID, "FAB-3", "FAB-3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Convert(tt.kind, tt.value)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := Convert(codec.KindDate, codec.DateRange{Start: "19/09/2024"})
	assert.True(t, errors.Is(err, codec.ErrInvalidValue))
}

func TestConvert_LossyCollapseMatchesStringifiedList(t *testing.T) {
	original := []string{"a1b2", "c3d4"}
	props := encode(t, "Vendor", codec.KindRelation, original)
	raw, err := json.Marshal(props["Vendor"])
	require.NoError(t, err)

	decoded, err := codec.Decode(raw)
	require.NoError(t, err)
	got, err := Convert(codec.KindRelation, decoded)
	require.NoError(t, err)

	want, err := json.Marshal(original)
	require.NoError(t, err)
	assert.Equal(t, string(want), got)
}

func TestMaterialize_CodecErrorFailsOnlyThatProperty(t *testing.T) {
	job := newJob(t,
		config.Mapping{Source: "Name", Destination: "Name"},
		config.Mapping{Source: "Action", Destination: "Action"},
	)
	p := page(t, "p1", encode(t, "Name", codec.KindTitle, []string{"Widget"}))
	p.Properties["Action"] = json.RawMessage(`{"type":"button","button":{}}`)

	drafts, errs := Materialize([]notion.Page{p}, job, schema.TypeMap{"Name": codec.KindTitle, "Action": codec.KindRichText})
	require.Len(t, errs, 1)
	assert.True(t, errors.Is(errs[0], codec.ErrUnknownKind))
	require.Len(t, drafts, 1)
	assert.Equal(t, map[string]any{"Name": "Widget", "Notion ID": "p1"}, drafts[0].Fields())
}

func TestDraft_OrderAndDelete(t *testing.T) {
	d := NewDraft("p1")
	d.Set("b", 1)
	d.Set("a", 2)
	d.Set("c", 3)
	d.Set("a", 4)
	d.Set("c", nil)

	assert.Equal(t, []string{"b", "a"}, d.Names())
	data, err := json.Marshal(d)
	require.NoError(t, err)
	assert.Equal(t, `{"b":1,"a":4}`, string(data))
}

func TestSubmit(t *testing.T) {
	logger := log.New()
	logger.SetOutput(io.Discard)

	stub := airtable.NewStubServer("pat")
	stub.AddBase("appOps", "Operations")
	client, err := airtable.New(stub.Config(logger))
	require.NoError(t, err)

	ctx := context.Background()
	table, err := client.CreateTable(ctx, "appOps", "Items", []airtable.Field{
		{Name: "Name", Type: airtable.FieldSingleLineText},
		{Name: "Notion ID", Type: airtable.FieldSingleLineText},
	})
	require.NoError(t, err)

	drafts := make([]*Draft, 12)
	for i := range drafts {
		drafts[i] = NewDraft(fmt.Sprintf("p%d", i))
		drafts[i].Set("Name", fmt.Sprintf("item %d", i))
		drafts[i].Set("Notion ID", drafts[i].PageID)
	}

	ids, err := Submit(ctx, client, "appOps", table.ID, drafts)
	require.NoError(t, err)
	require.Len(t, ids, 12)
	assert.Equal(t, []int{10, 2}, stub.Batches())

	records := stub.Records("appOps", table.ID)
	require.Len(t, records, 12)
	assert.Equal(t, ids[11], records[11].ID)
	assert.Equal(t, "p11", records[11].Fields["Notion ID"])

	ids, err = Submit(ctx, client, "appOps", table.ID, nil)
	require.NoError(t, err)
	assert.Empty(t, ids)
}
