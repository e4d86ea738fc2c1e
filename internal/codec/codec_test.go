package codec

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func roundTrip(t *testing.T, kind Kind, in Input) Value {
	t.Helper()
	props, err := Encode("Prop", kind, in)
	require.NoError(t, err)

	raw, err := json.Marshal(props["Prop"])
	require.NoError(t, err)

	out, err := Decode(raw)
	require.NoError(t, err)
	return out
}

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		kind Kind
		in   Input
		want Value
	}{
		{"checkbox true", KindCheckbox, Input{Value: true}, true},
		{"checkbox false", KindCheckbox, Input{Value: false}, false},
		{"email", KindEmail, Input{Value: "ops@example.com"}, "ops@example.com"},
		{"email cleared", KindEmail, Input{}, nil},
		{"number", KindNumber, Input{Value: 4.5}, 4.5},
		{"number from int", KindNumber, Input{Value: 7}, 7.0},
		{"phone", KindPhoneNumber, Input{Value: "+1 555 0100"}, "+1 555 0100"},
		{"url", KindURL, Input{Value: "https://example.com"}, "https://example.com"},
		{"select", KindSelect, Input{Value: "Linen"}, "Linen"},
		{"status", KindStatus, Input{Value: "Done"}, "Done"},
		{"date", KindDate, Input{Value: "2024-09-19"}, DateRange{Start: "2024-09-19"}},
		{"date range", KindDate, Input{Value: "2024-09-19", Value2: "2024-09-21"}, DateRange{Start: "2024-09-19", End: "2024-09-21"}},
		{"files", KindFiles, Input{Value: []string{"https://cdn.example.com/a.pdf"}, Value2: []string{"a"}}, []string{"https://cdn.example.com/a.pdf"}},
		{"multi select", KindMultiSelect, Input{Value: []string{"red", "blue"}}, []string{"red", "blue"}},
		{"multi select empty", KindMultiSelect, Input{Value: []string{}}, []string{}},
		{"relation", KindRelation, Input{Value: []string{"p1", "p2"}}, []string{"p1", "p2"}},
		{"people", KindPeople, Input{Value: []string{"u1"}}, []string{"u1"}},
		{"rich text", KindRichText, Input{Value: []string{"hello ", "world"}, Value2: []string{"", "https://example.com"}}, []string{"hello ", "world"}},
		{"title", KindTitle, Input{Value: []string{"Widget"}}, []string{"Widget"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := roundTrip(t, tt.kind, tt.in)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestEncode_TitleFragmentShape(t *testing.T) {
	props, err := Encode("Name", KindTitle, Input{
		Value:       []string{"Widget"},
		Annotations: []Annotations{{Bold: true, Color: "red"}},
	})
	require.NoError(t, err)

	raw, err := json.Marshal(props)
	require.NoError(t, err)
	assert.JSONEq(t, `{"Name":{"type":"title","title":[{
		"type":"text",
		"text":{"content":"Widget","link":null},
		"annotations":{"bold":true,"italic":false,"strikethrough":false,"underline":false,"code":false,"color":"red"},
		"plain_text":"Widget",
		"href":null
	}]}}`, string(raw))
}

func TestEncode_DefaultAnnotations(t *testing.T) {
	props, err := Encode("Notes", KindRichText, Input{Value: []string{"a"}})
	require.NoError(t, err)

	runs := props["Notes"].(map[string]any)["rich_text"].([]richTextRun)
	require.Len(t, runs, 1)
	assert.Equal(t, DefaultAnnotations(), *runs[0].Annotations)
}

func TestEncode_RejectsMismatchedCompanions(t *testing.T) {
	_, err := Encode("Notes", KindRichText, Input{
		Value:  []string{"a", "b"},
		Value2: []string{"https://example.com"},
	})
	assert.True(t, errors.Is(err, ErrLengthMismatch))

	_, err = Encode("Notes", KindTitle, Input{
		Value:       []string{"a"},
		Annotations: []Annotations{DefaultAnnotations(), DefaultAnnotations()},
	})
	assert.True(t, errors.Is(err, ErrLengthMismatch))

	_, err = Encode("Attachments", KindFiles, Input{
		Value:  []string{"https://a", "https://b"},
		Value2: []string{"a"},
	})
	assert.True(t, errors.Is(err, ErrLengthMismatch))
}

func TestEncode_RejectsBadInput(t *testing.T) {
	_, err := Encode("Done", KindCheckbox, Input{Value: "yes"})
	assert.True(t, errors.Is(err, ErrInvalidValue))

	_, err = Encode("Notes", KindRichText, Input{Value: []string{"a"}, Annotations: []Annotations{{Color: "teal"}}})
	assert.True(t, errors.Is(err, ErrInvalidValue))

	_, err = Encode("Formula", KindFormula, Input{Value: "x"})
	assert.True(t, errors.Is(err, ErrUnsupportedKind))

	_, err = Encode("Button", Kind("button"), Input{})
	assert.True(t, errors.Is(err, ErrUnknownKind))
}

func TestDecode_ReadOnlyKinds(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Value
	}{
		{"created time", `{"type":"created_time","created_time":"2024-09-19T10:00:00.000Z"}`, "2024-09-19T10:00:00.000Z"},
		{"created by", `{"type":"created_by","created_by":{"object":"user","id":"u1"}}`, "u1"},
		{"last edited by", `{"type":"last_edited_by","last_edited_by":{"object":"user","id":"u2"}}`, "u2"},
		{"formula string", `{"type":"formula","formula":{"type":"string","string":"abc"}}`, "abc"},
		{"formula number", `{"type":"formula","formula":{"type":"number","number":3}}`, 3.0},
		{"formula null", `{"type":"formula","formula":{"type":"number","number":null}}`, nil},
		{"rollup number", `{"type":"rollup","rollup":{"type":"number","number":12.5,"function":"sum"}}`, 12.5},
		{"rollup array", `{"type":"rollup","rollup":{"type":"array","array":[
			{"type":"title","title":[{"plain_text":"Alpha"}]},
			{"type":"number","number":2}
		]}}`, []string{"Alpha", "2"}},
		{"unique id", `{"type":"unique_id","unique_id":{"prefix":"FAB","number":12}}`, "FAB-12"},
		{"unique id no prefix", `{"type":"unique_id","unique_id":{"prefix":null,"number":3}}`, "3"},
		{"null select", `{"type":"select","select":null}`, nil},
		{"null date", `{"type":"date","date":null}`, nil},
		{"hosted file", `{"type":"files","files":[{"name":"a","type":"file","file":{"url":"https://s3/a"}}]}`, []string{"https://s3/a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(json.RawMessage(tt.raw))
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("decode mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDecode_UnknownKindFailsLoudly(t *testing.T) {
	_, err := Decode(json.RawMessage(`{"type":"button","button":{}}`))
	assert.True(t, errors.Is(err, ErrUnknownKind))

	_, err = Decode(json.RawMessage(`{"id":"abc"}`))
	assert.True(t, errors.Is(err, ErrUnknownKind))
}

func TestFlatten(t *testing.T) {
	assert.Nil(t, Flatten(nil))
	assert.Equal(t, []string{"true"}, Flatten(true))
	assert.Equal(t, []string{"4.5"}, Flatten(4.5))
	assert.Equal(t, []string{"2024-01-01/2024-01-02"}, Flatten(DateRange{Start: "2024-01-01", End: "2024-01-02"}))
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("multi_select")
	require.NoError(t, err)
	assert.Equal(t, KindMultiSelect, k)
	assert.True(t, k.IsList())

	_, err = ParseKind("verification")
	assert.True(t, errors.Is(err, ErrUnknownKind))
	assert.Len(t, Kinds(), 21)
}
