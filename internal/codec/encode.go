package codec

import (
	"path"

	"github.com/pkg/errors"
)

// Input carries the plain values to encode for one property.
//
//	checkbox                          Value bool
//	email, phone_number, url          Value string
//	number                            Value float64 (or any integer type)
//	select, status                    Value string, nil clears
//	date                              Value start string, Value2 optional end string
//	files                             Value []string URLs, Value2 optional []string names
//	multi_select, relation, people    Value []string
//	rich_text, title                  Value []string contents, Value2 optional []string links,
//	                                  Annotations optional
//
// Value2 and Annotations, when present, must be exactly as long as Value.
type Input struct {
	Value       any
	Value2      any
	Annotations []Annotations
}

// Encode builds the property fragment {name: {"type": kind, kind: payload}}.
func Encode(name string, kind Kind, in Input) (Properties, error) {
	if !kind.Known() {
		return nil, errors.Wrapf(ErrUnknownKind, "%q", kind)
	}
	if !kind.Writable() {
		return nil, errors.Wrapf(ErrUnsupportedKind, "%q", kind)
	}

	payload, err := encodePayload(kind, in)
	if err != nil {
		return nil, errors.Wrapf(err, "encode %s property %q", kind, name)
	}
	return Properties{
		name: map[string]any{
			"type":       string(kind),
			string(kind): payload,
		},
	}, nil
}

func encodePayload(kind Kind, in Input) (any, error) {
	switch kind {
	case KindCheckbox:
		v, ok := in.Value.(bool)
		if !ok {
			return nil, invalid(kind, in.Value)
		}
		return v, nil
	case KindNumber:
		if in.Value == nil {
			return nil, nil
		}
		v, ok := toFloat(in.Value)
		if !ok {
			return nil, invalid(kind, in.Value)
		}
		return v, nil
	case KindEmail, KindPhoneNumber, KindURL:
		if in.Value == nil {
			return nil, nil
		}
		v, ok := in.Value.(string)
		if !ok {
			return nil, invalid(kind, in.Value)
		}
		return v, nil
	case KindSelect, KindStatus:
		if in.Value == nil {
			return nil, nil
		}
		v, ok := in.Value.(string)
		if !ok {
			return nil, invalid(kind, in.Value)
		}
		return namedOption{Name: v}, nil
	case KindDate:
		return encodeDate(in)
	case KindFiles:
		return encodeFiles(in)
	case KindMultiSelect:
		values, err := stringList(kind, in.Value)
		if err != nil {
			return nil, err
		}
		out := make([]namedOption, 0, len(values))
		for _, v := range values {
			out = append(out, namedOption{Name: v})
		}
		return out, nil
	case KindRelation:
		values, err := stringList(kind, in.Value)
		if err != nil {
			return nil, err
		}
		out := make([]idRef, 0, len(values))
		for _, v := range values {
			out = append(out, idRef{ID: v})
		}
		return out, nil
	case KindPeople:
		values, err := stringList(kind, in.Value)
		if err != nil {
			return nil, err
		}
		out := make([]idRef, 0, len(values))
		for _, v := range values {
			out = append(out, idRef{Object: "user", ID: v})
		}
		return out, nil
	case KindRichText, KindTitle:
		return encodeRichText(kind, in)
	}
	return nil, errors.Wrapf(ErrUnknownKind, "%q", kind)
}

func encodeDate(in Input) (any, error) {
	if in.Value == nil {
		return nil, nil
	}
	start, ok := in.Value.(string)
	if !ok || start == "" {
		return nil, invalid(KindDate, in.Value)
	}
	out := DateRange{Start: start}
	if in.Value2 != nil {
		end, ok := in.Value2.(string)
		if !ok {
			return nil, invalid(KindDate, in.Value2)
		}
		out.End = end
	}
	return out, nil
}

func encodeFiles(in Input) (any, error) {
	urls, err := stringList(KindFiles, in.Value)
	if err != nil {
		return nil, err
	}
	names, err := companion(KindFiles, in.Value2, len(urls))
	if err != nil {
		return nil, err
	}

	out := make([]fileObject, 0, len(urls))
	for i, u := range urls {
		name := path.Base(u)
		if names != nil {
			name = names[i]
		}
		out = append(out, fileObject{
			Name:     name,
			Type:     "external",
			External: &fileURL{URL: u},
		})
	}
	return out, nil
}

func encodeRichText(kind Kind, in Input) (any, error) {
	contents, err := stringList(kind, in.Value)
	if err != nil {
		return nil, err
	}
	links, err := companion(kind, in.Value2, len(contents))
	if err != nil {
		return nil, err
	}
	if in.Annotations != nil && len(in.Annotations) != len(contents) {
		return nil, errors.Wrapf(ErrLengthMismatch, "%d annotations for %d runs", len(in.Annotations), len(contents))
	}

	out := make([]richTextRun, 0, len(contents))
	for i, content := range contents {
		ann := DefaultAnnotations()
		if in.Annotations != nil {
			ann = in.Annotations[i]
			if err := ann.Validate(); err != nil {
				return nil, err
			}
		}

		run := richTextRun{
			Type:        "text",
			Text:        &textContent{Content: content},
			Annotations: &ann,
			PlainText:   content,
		}
		if links != nil && links[i] != "" {
			link := links[i]
			run.Text.Link = &textLink{URL: link}
			run.Href = &link
		}
		out = append(out, run)
	}
	return out, nil
}

func stringList(kind Kind, v any) ([]string, error) {
	switch t := v.(type) {
	case nil:
		return []string{}, nil
	case []string:
		return t, nil
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			s, ok := item.(string)
			if !ok {
				return nil, invalid(kind, v)
			}
			out = append(out, s)
		}
		return out, nil
	case string:
		return []string{t}, nil
	default:
		return nil, invalid(kind, v)
	}
}

// companion validates an optional parallel array. It returns nil when absent.
func companion(kind Kind, v any, want int) ([]string, error) {
	if v == nil {
		return nil, nil
	}
	if s, ok := v.([]string); ok && s == nil {
		return nil, nil
	}
	values, err := stringList(kind, v)
	if err != nil {
		return nil, err
	}
	if len(values) != want {
		return nil, errors.Wrapf(ErrLengthMismatch, "%d companion values for %d %s values", len(values), want, kind)
	}
	return values, nil
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	default:
		return 0, false
	}
}

func invalid(kind Kind, v any) error {
	return errors.Wrapf(ErrInvalidValue, "%s cannot hold %T", kind, v)
}
