// Package schema reconciles destination tables with the mapped source properties.
//
// Field types are derived from source kinds through a fixed, deliberately lossy
// map: every source kind lands on a destination type that accepts the
// materialized value without conversion errors.
package schema

import (
	"github.com/nucleus/meno-sync/internal/codec"
	"github.com/nucleus/meno-sync/internal/config"
	"github.com/nucleus/meno-sync/internal/connector/airtable"
)

// RelationPrefix names the companion link field of a relation property.
const RelationPrefix = "REL__"

// RelationFieldName returns the companion link field for a relation property.
func RelationFieldName(source string) string {
	return RelationPrefix + source
}

var destinationTypes = map[codec.Kind]string{
	codec.KindCheckbox:       airtable.FieldCheckbox,
	codec.KindEmail:          airtable.FieldEmail,
	codec.KindNumber:         airtable.FieldNumber,
	codec.KindPhoneNumber:    airtable.FieldPhoneNumber,
	codec.KindURL:            airtable.FieldURL,
	codec.KindSelect:         airtable.FieldSingleSelect,
	codec.KindStatus:         airtable.FieldSingleSelect,
	codec.KindMultiSelect:    airtable.FieldMultipleSelects,
	codec.KindDate:           airtable.FieldDate,
	codec.KindRichText:       airtable.FieldMultilineText,
	codec.KindFormula:        airtable.FieldMultilineText,
	codec.KindRollup:         airtable.FieldMultilineText,
	codec.KindTitle:          airtable.FieldSingleLineText,
	codec.KindRelation:       airtable.FieldSingleLineText,
	codec.KindPeople:         airtable.FieldSingleLineText,
	codec.KindFiles:          airtable.FieldSingleLineText,
	codec.KindCreatedBy:      airtable.FieldSingleLineText,
	codec.KindCreatedTime:    airtable.FieldSingleLineText,
	codec.KindLastEditedBy:   airtable.FieldSingleLineText,
	codec.KindLastEditedTime: airtable.FieldSingleLineText,
	codec.KindUniqueID:       airtable.FieldSingleLineText,
}

// DestinationType returns the destination field type for a source kind.
// Unknown kinds fall back to single line text.
func DestinationType(kind codec.Kind) string {
	if t, ok := destinationTypes[kind]; ok {
		return t
	}
	return airtable.FieldSingleLineText
}

// fieldOptions returns the options the metadata API requires for a field type.
func fieldOptions(fieldType string) map[string]any {
	switch fieldType {
	case airtable.FieldNumber:
		return map[string]any{"precision": 8}
	case airtable.FieldSingleSelect, airtable.FieldMultipleSelects:
		return map[string]any{"choices": []any{}}
	case airtable.FieldDate:
		return map[string]any{"dateFormat": map[string]any{"name": "iso"}}
	case airtable.FieldCheckbox:
		return map[string]any{"icon": "check", "color": "greenBright"}
	}
	return nil
}

// FieldSpec is one destination field derived from a mapped source property.
type FieldSpec struct {
	Source      string
	Destination string
	Kind        codec.Kind
	Type        string
}

// Field returns the field definition for the metadata API.
func (s FieldSpec) Field() airtable.Field {
	return airtable.Field{
		Name:    s.Destination,
		Type:    s.Type,
		Options: fieldOptions(s.Type),
	}
}

// Plan lists the destination fields of a job in property-map order. Properties
// without an inferred kind are left out.
func Plan(job *config.Job, types TypeMap) []FieldSpec {
	specs := make([]FieldSpec, 0, len(job.PropertyMap))
	for _, p := range job.PropertyMap {
		kind, ok := types[p.Source]
		if !ok {
			continue
		}
		specs = append(specs, FieldSpec{
			Source:      p.Source,
			Destination: p.Destination,
			Kind:        kind,
			Type:        DestinationType(kind),
		})
	}
	return specs
}
