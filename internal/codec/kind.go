// Package codec translates between Notion property JSON and plain Go values.
//
// Decoding turns a property object into one of: nil, bool, float64, string,
// []string or DateRange. Encoding turns a plain value plus its declared kind into
// the property fragment accepted by page create/update requests. Both directions
// are pure; nothing here performs I/O.
package codec

import (
	"github.com/pkg/errors"
)

// Kind is the backend-declared type of a source property.
type Kind string

// Writable kinds, accepted by both Decode and Encode.
const (
	KindCheckbox    Kind = "checkbox"
	KindEmail       Kind = "email"
	KindNumber      Kind = "number"
	KindPhoneNumber Kind = "phone_number"
	KindURL         Kind = "url"
	KindSelect      Kind = "select"
	KindStatus      Kind = "status"
	KindDate        Kind = "date"
	KindFiles       Kind = "files"
	KindMultiSelect Kind = "multi_select"
	KindRelation    Kind = "relation"
	KindPeople      Kind = "people"
	KindRichText    Kind = "rich_text"
	KindTitle       Kind = "title"
)

// Read-only kinds, computed by the backend. Decode only.
const (
	KindCreatedBy      Kind = "created_by"
	KindCreatedTime    Kind = "created_time"
	KindLastEditedBy   Kind = "last_edited_by"
	KindLastEditedTime Kind = "last_edited_time"
	KindFormula        Kind = "formula"
	KindRollup         Kind = "rollup"
	KindUniqueID       Kind = "unique_id"
)

var (
	// ErrUnknownKind is returned for property types outside the supported set.
	ErrUnknownKind = errors.New("unknown property kind")
	// ErrUnsupportedKind is returned when encoding a read-only kind.
	ErrUnsupportedKind = errors.New("property kind cannot be written")
	// ErrLengthMismatch is returned when a companion array is not as long as its primary array.
	ErrLengthMismatch = errors.New("companion array length mismatch")
	// ErrInvalidValue is returned when a plain value does not fit the declared kind.
	ErrInvalidValue = errors.New("invalid value for property kind")
)

var writableKinds = map[Kind]bool{
	KindCheckbox:    true,
	KindEmail:       true,
	KindNumber:      true,
	KindPhoneNumber: true,
	KindURL:         true,
	KindSelect:      true,
	KindStatus:      true,
	KindDate:        true,
	KindFiles:       true,
	KindMultiSelect: true,
	KindRelation:    true,
	KindPeople:      true,
	KindRichText:    true,
	KindTitle:       true,
}

var readOnlyKinds = map[Kind]bool{
	KindCreatedBy:      true,
	KindCreatedTime:    true,
	KindLastEditedBy:   true,
	KindLastEditedTime: true,
	KindFormula:        true,
	KindRollup:         true,
	KindUniqueID:       true,
}

// Known reports whether k is decodable.
func (k Kind) Known() bool {
	return writableKinds[k] || readOnlyKinds[k]
}

// Writable reports whether k can be encoded into a create/update request.
func (k Kind) Writable() bool {
	return writableKinds[k]
}

// IsList reports whether values of k decode to []string.
func (k Kind) IsList() bool {
	switch k {
	case KindFiles, KindMultiSelect, KindRelation, KindPeople, KindRichText, KindTitle:
		return true
	}
	return false
}

// ParseKind validates s as a property kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.Known() {
		return "", errors.Wrapf(ErrUnknownKind, "%q", s)
	}
	return k, nil
}

// Kinds returns every decodable kind.
func Kinds() []Kind {
	out := make([]Kind, 0, len(writableKinds)+len(readOnlyKinds))
	for k := range writableKinds {
		out = append(out, k)
	}
	for k := range readOnlyKinds {
		out = append(out, k)
	}
	return out
}
