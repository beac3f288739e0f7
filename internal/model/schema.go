package model

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// FieldKind declares the value type a field accepts.
type FieldKind string

const (
	KindString     FieldKind = "string"
	KindNumber     FieldKind = "number"
	KindBool       FieldKind = "bool"
	KindStringList FieldKind = "string_list"
)

// FieldSpec describes one known field: its value kind, completion weight,
// whether it gates conversion, and where the composer routes it.
type FieldSpec struct {
	Key      string    `json:"key"`
	Kind     FieldKind `json:"kind"`
	Weight   int       `json:"weight"`
	Required bool      `json:"required"`
	Section  Section   `json:"section"`
}

// Schema is an indexed collection of field specs. It is the closed
// enumeration of field names the engine accepts; unknown keys are ignored in
// bulk merges and rejected on single-field writes.
type Schema struct {
	Fields      []FieldSpec
	byKey       map[string]*FieldSpec
	required    []*FieldSpec
	totalWeight int
}

// NewSchema creates a Schema with indexed lookups.
func NewSchema(fields []FieldSpec) *Schema {
	s := &Schema{
		Fields: fields,
		byKey:  make(map[string]*FieldSpec, len(fields)),
	}
	for i := range s.Fields {
		f := &s.Fields[i]
		s.byKey[f.Key] = f
		s.totalWeight += f.Weight
		if f.Required {
			s.required = append(s.required, f)
		}
	}
	return s
}

// ByKey returns the spec for the given field key, or nil if unknown.
func (s *Schema) ByKey(key string) *FieldSpec {
	return s.byKey[key]
}

// Required returns all required field specs.
func (s *Schema) Required() []*FieldSpec {
	return s.required
}

// TotalWeight returns the sum of all field weights.
func (s *Schema) TotalWeight() int {
	return s.totalWeight
}

// defaultFields is the fixed field-weight table. Required fields carry equal,
// heavier weights so the completion percentage moves visibly as the
// conversation fills them in.
var defaultFields = []FieldSpec{
	// Required, gating conversion.
	{Key: "project_type", Kind: KindString, Weight: 12, Required: true, Section: SectionCore},
	{Key: "description", Kind: KindString, Weight: 12, Required: true, Section: SectionCore},
	{Key: "zip_code", Kind: KindString, Weight: 12, Required: true, Section: SectionCore},
	{Key: "email_address", Kind: KindString, Weight: 12, Required: true, Section: SectionContact},
	{Key: "urgency_level", Kind: KindString, Weight: 12, Required: true, Section: SectionCore},

	// Optional.
	{Key: "title", Kind: KindString, Weight: 3, Section: SectionCore},
	{Key: "trade_type", Kind: KindString, Weight: 3, Section: SectionRequirements},
	{Key: "complexity", Kind: KindString, Weight: 2, Section: SectionRequirements},
	{Key: "materials_preferences", Kind: KindStringList, Weight: 3, Section: SectionRequirements},
	{Key: "special_requirements", Kind: KindString, Weight: 3, Section: SectionRequirements},
	{Key: "contractor_size_preference", Kind: KindString, Weight: 3, Section: SectionRequirements},
	{Key: "quality_expectations", Kind: KindString, Weight: 2, Section: SectionRequirements},
	{Key: "room_location", Kind: KindString, Weight: 3, Section: SectionLocation},
	{Key: "property_area", Kind: KindString, Weight: 2, Section: SectionLocation},
	{Key: "address", Kind: KindString, Weight: 3, Section: SectionLocation},
	{Key: "city", Kind: KindString, Weight: 2, Section: SectionLocation},
	{Key: "state", Kind: KindString, Weight: 2, Section: SectionLocation},
	{Key: "service_radius_miles", Kind: KindNumber, Weight: 2, Section: SectionLocation},
	{Key: "phone_number", Kind: KindString, Weight: 3, Section: SectionContact},
	{Key: "timeline_flexibility", Kind: KindString, Weight: 2, Section: SectionTimeline},
	{Key: "timeline_start", Kind: KindString, Weight: 2, Section: SectionTimeline},
	{Key: "timeline_end", Kind: KindString, Weight: 2, Section: SectionTimeline},
	{Key: "budget_min", Kind: KindNumber, Weight: 5, Section: SectionBudget},
	{Key: "budget_max", Kind: KindNumber, Weight: 5, Section: SectionBudget},
	{Key: "budget_notes", Kind: KindString, Weight: 2, Section: SectionBudget},
	{Key: "group_bidding_eligible", Kind: KindBool, Weight: 2, Section: SectionRelationships},
	{Key: "related_project_id", Kind: KindString, Weight: 2, Section: SectionRelationships},
	{Key: "photo_urls", Kind: KindStringList, Weight: 3, Section: SectionMedia},
	{Key: "document_urls", Kind: KindStringList, Weight: 2, Section: SectionMedia},
}

var defaultSchema = NewSchema(defaultFields)

// DefaultSchema returns the built-in bid card field schema.
func DefaultSchema() *Schema {
	return defaultSchema
}

// Normalize coerces a raw value into the spec's declared kind. It returns an
// error when the value cannot represent the kind at all; callers decide
// whether that aborts the write or just skips the key.
func (f *FieldSpec) Normalize(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch f.Kind {
	case KindString:
		switch t := v.(type) {
		case string:
			return strings.TrimSpace(t), nil
		case float64:
			return strconv.FormatFloat(t, 'f', -1, 64), nil
		case int:
			return strconv.Itoa(t), nil
		}
	case KindNumber:
		switch t := v.(type) {
		case float64:
			return t, nil
		case int:
			return float64(t), nil
		case int64:
			return float64(t), nil
		case string:
			t = strings.TrimSpace(t)
			if t == "" {
				return nil, nil
			}
			n, err := strconv.ParseFloat(t, 64)
			if err != nil {
				return nil, eris.Wrapf(err, "field %s: parse number", f.Key)
			}
			return n, nil
		}
	case KindBool:
		switch t := v.(type) {
		case bool:
			return t, nil
		case string:
			b, err := strconv.ParseBool(strings.TrimSpace(t))
			if err != nil {
				return nil, eris.Wrapf(err, "field %s: parse bool", f.Key)
			}
			return b, nil
		}
	case KindStringList:
		switch t := v.(type) {
		case []string:
			return append([]string(nil), t...), nil
		case []any:
			out := make([]string, 0, len(t))
			for _, e := range t {
				s, ok := e.(string)
				if !ok {
					return nil, eris.Errorf("field %s: list element is not a string", f.Key)
				}
				out = append(out, s)
			}
			return out, nil
		case string:
			if strings.TrimSpace(t) == "" {
				return nil, nil
			}
			return []string{t}, nil
		}
	}
	return nil, eris.Errorf("field %s: value %T is not a valid %s", f.Key, v, f.Kind)
}

// IsEmpty reports whether a normalized value counts as "no information".
// Numbers and booleans carry information whenever present, including zero.
func IsEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []string:
		return len(t) == 0
	case []any:
		return len(t) == 0
	}
	return false
}
