package model

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// SchemaOverride tunes a single field's scoring behavior. Nil fields keep
// the built-in value. The known-field set itself is fixed; overrides can
// only reweight or re-gate existing fields.
type SchemaOverride struct {
	Weight   *int  `yaml:"weight,omitempty"`
	Required *bool `yaml:"required,omitempty"`
}

// LoadSchema builds a Schema from the built-in field table plus per-field
// overrides read from a YAML file:
//
//	fields:
//	  budget_min:
//	    weight: 8
//	  phone_number:
//	    required: true
func LoadSchema(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "schema: read %s", path)
	}

	var file struct {
		Fields map[string]SchemaOverride `yaml:"fields"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, eris.Wrapf(err, "schema: parse %s", path)
	}

	fields := append([]FieldSpec(nil), defaultFields...)
	byKey := make(map[string]*FieldSpec, len(fields))
	for i := range fields {
		byKey[fields[i].Key] = &fields[i]
	}

	for key, ov := range file.Fields {
		spec, ok := byKey[key]
		if !ok {
			return nil, eris.Errorf("schema: override for unknown field %q", key)
		}
		if ov.Weight != nil {
			if *ov.Weight <= 0 {
				return nil, eris.Errorf("schema: field %q weight must be positive", key)
			}
			spec.Weight = *ov.Weight
		}
		if ov.Required != nil {
			spec.Required = *ov.Required
		}
	}

	return NewSchema(fields), nil
}
