package codec

import (
	"encoding/json"
	"strconv"

	"github.com/pkg/errors"
)

// Value is a decoded property: nil, bool, float64, string, []string or DateRange.
type Value = any

type envelope struct {
	ID   string `json:"id,omitempty"`
	Type Kind   `json:"type"`
}

type namedOption struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

type idRef struct {
	Object string `json:"object,omitempty"`
	ID     string `json:"id"`
}

type fileURL struct {
	URL        string `json:"url"`
	ExpiryTime string `json:"expiry_time,omitempty"`
}

type fileObject struct {
	Name     string   `json:"name"`
	Type     string   `json:"type,omitempty"`
	External *fileURL `json:"external,omitempty"`
	File     *fileURL `json:"file,omitempty"`
}

type textLink struct {
	URL string `json:"url"`
}

type textContent struct {
	Content string    `json:"content"`
	Link    *textLink `json:"link"`
}

type richTextRun struct {
	Type        string       `json:"type"`
	Text        *textContent `json:"text,omitempty"`
	Annotations *Annotations `json:"annotations,omitempty"`
	PlainText   string       `json:"plain_text"`
	Href        *string      `json:"href"`
}

type formulaValue struct {
	Type    string     `json:"type"`
	String  *string    `json:"string"`
	Number  *float64   `json:"number"`
	Boolean *bool      `json:"boolean"`
	Date    *DateRange `json:"date"`
}

type rollupValue struct {
	Type   string            `json:"type"`
	Number *float64          `json:"number"`
	Date   *DateRange        `json:"date"`
	Array  []json.RawMessage `json:"array"`
}

type uniqueIDValue struct {
	Prefix *string  `json:"prefix"`
	Number *float64 `json:"number"`
}

// KindOf returns the declared kind of a raw property object.
func KindOf(raw json.RawMessage) (Kind, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", errors.Wrap(err, "decode property envelope")
	}
	if env.Type == "" {
		return "", errors.Wrap(ErrUnknownKind, "property has no type")
	}
	return env.Type, nil
}

// Decode converts a raw property object into a plain value.
func Decode(raw json.RawMessage) (Value, error) {
	kind, err := KindOf(raw)
	if err != nil {
		return nil, err
	}
	return DecodeKind(kind, raw)
}

// DecodeKind converts a raw property object of the given kind into a plain value.
func DecodeKind(kind Kind, raw json.RawMessage) (Value, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, errors.Wrap(err, "decode property")
	}
	payload := fields[string(kind)]

	switch kind {
	case KindCheckbox:
		var v bool
		if err := unmarshalPayload(kind, payload, &v); err != nil {
			return nil, err
		}
		return v, nil
	case KindNumber:
		var v *float64
		if err := unmarshalPayload(kind, payload, &v); err != nil || v == nil {
			return nil, err
		}
		return *v, nil
	case KindEmail, KindPhoneNumber, KindURL, KindCreatedTime, KindLastEditedTime:
		var v *string
		if err := unmarshalPayload(kind, payload, &v); err != nil || v == nil {
			return nil, err
		}
		return *v, nil
	case KindSelect, KindStatus:
		var v *namedOption
		if err := unmarshalPayload(kind, payload, &v); err != nil || v == nil {
			return nil, err
		}
		return v.Name, nil
	case KindDate:
		var v *DateRange
		if err := unmarshalPayload(kind, payload, &v); err != nil || v == nil {
			return nil, err
		}
		return *v, nil
	case KindFiles:
		var v []fileObject
		if err := unmarshalPayload(kind, payload, &v); err != nil {
			return nil, err
		}
		out := make([]string, 0, len(v))
		for _, f := range v {
			switch {
			case f.External != nil:
				out = append(out, f.External.URL)
			case f.File != nil:
				out = append(out, f.File.URL)
			}
		}
		return out, nil
	case KindMultiSelect:
		var v []namedOption
		if err := unmarshalPayload(kind, payload, &v); err != nil {
			return nil, err
		}
		out := make([]string, 0, len(v))
		for _, o := range v {
			out = append(out, o.Name)
		}
		return out, nil
	case KindRelation, KindPeople:
		var v []idRef
		if err := unmarshalPayload(kind, payload, &v); err != nil {
			return nil, err
		}
		out := make([]string, 0, len(v))
		for _, r := range v {
			out = append(out, r.ID)
		}
		return out, nil
	case KindRichText, KindTitle:
		var v []richTextRun
		if err := unmarshalPayload(kind, payload, &v); err != nil {
			return nil, err
		}
		out := make([]string, 0, len(v))
		for _, run := range v {
			text := run.PlainText
			if text == "" && run.Text != nil {
				text = run.Text.Content
			}
			out = append(out, text)
		}
		return out, nil
	case KindCreatedBy, KindLastEditedBy:
		var v *idRef
		if err := unmarshalPayload(kind, payload, &v); err != nil || v == nil {
			return nil, err
		}
		return v.ID, nil
	case KindFormula:
		var v formulaValue
		if err := unmarshalPayload(kind, payload, &v); err != nil {
			return nil, err
		}
		return decodeFormula(v)
	case KindRollup:
		var v rollupValue
		if err := unmarshalPayload(kind, payload, &v); err != nil {
			return nil, err
		}
		return decodeRollup(v)
	case KindUniqueID:
		var v uniqueIDValue
		if err := unmarshalPayload(kind, payload, &v); err != nil {
			return nil, err
		}
		if v.Number == nil {
			return nil, nil
		}
		n := strconv.FormatFloat(*v.Number, 'f', -1, 64)
		if v.Prefix != nil && *v.Prefix != "" {
			return *v.Prefix + "-" + n, nil
		}
		return n, nil
	default:
		return nil, errors.Wrapf(ErrUnknownKind, "%q", kind)
	}
}

func unmarshalPayload(kind Kind, payload json.RawMessage, target any) error {
	if len(payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, target); err != nil {
		return errors.Wrapf(err, "decode %s payload", kind)
	}
	return nil
}

func decodeFormula(v formulaValue) (Value, error) {
	switch v.Type {
	case "string":
		if v.String == nil {
			return nil, nil
		}
		return *v.String, nil
	case "number":
		if v.Number == nil {
			return nil, nil
		}
		return *v.Number, nil
	case "boolean":
		if v.Boolean == nil {
			return nil, nil
		}
		return *v.Boolean, nil
	case "date":
		if v.Date == nil {
			return nil, nil
		}
		return *v.Date, nil
	default:
		return nil, errors.Wrapf(ErrUnknownKind, "formula result %q", v.Type)
	}
}

// decodeRollup flattens array rollups into the string form of each element.
func decodeRollup(v rollupValue) (Value, error) {
	switch v.Type {
	case "number":
		if v.Number == nil {
			return nil, nil
		}
		return *v.Number, nil
	case "date":
		if v.Date == nil {
			return nil, nil
		}
		return *v.Date, nil
	case "array":
		out := make([]string, 0, len(v.Array))
		for _, item := range v.Array {
			decoded, err := Decode(item)
			if err != nil {
				return nil, errors.Wrap(err, "decode rollup element")
			}
			out = append(out, Flatten(decoded)...)
		}
		return out, nil
	case "incomplete", "unsupported":
		return nil, nil
	default:
		return nil, errors.Wrapf(ErrUnknownKind, "rollup result %q", v.Type)
	}
}

// Flatten renders a decoded value as a list of strings. nil yields an empty list.
func Flatten(v Value) []string {
	switch t := v.(type) {
	case nil:
		return nil
	case []string:
		return t
	case string:
		return []string{t}
	case bool:
		return []string{strconv.FormatBool(t)}
	case float64:
		return []string{strconv.FormatFloat(t, 'f', -1, 64)}
	case DateRange:
		if t.End != "" {
			return []string{t.Start + "/" + t.End}
		}
		return []string{t.Start}
	default:
		return nil
	}
}
