package schema

import (
	"encoding/json"

	"github.com/aerodb/aerodb/internal/aeroerrors"
	"github.com/aerodb/aerodb/internal/types"
)

// fieldFile is the on-disk shape of one schema field, matching spec.md
// §6 "Schema file": {type, required, fields?, element?}.
type fieldFile struct {
	Type     types.FieldType       `json:"type"`
	Required bool                  `json:"required"`
	Indexed  bool                  `json:"indexed,omitempty"`
	Fields   map[string]*fieldFile `json:"fields,omitempty"`
	Element  *fieldFile            `json:"element,omitempty"`
}

func (f *fieldFile) toDef(path string) (*types.FieldDef, error) {
	def := &types.FieldDef{Type: f.Type, Required: f.Required, Indexed: f.Indexed}
	switch f.Type {
	case types.FieldObject:
		if len(f.Fields) == 0 {
			return nil, aeroerrors.Newf(aeroerrors.KindSchemaValidationFailed, "object field %q declares no nested fields", path).WithPath(path)
		}
		def.Fields = make(map[string]*types.FieldDef, len(f.Fields))
		for name, nested := range f.Fields {
			nestedDef, err := nested.toDef(path + "." + name)
			if err != nil {
				return nil, err
			}
			def.Fields[name] = nestedDef
		}
	case types.FieldArray:
		if f.Element == nil {
			return nil, aeroerrors.Newf(aeroerrors.KindSchemaValidationFailed, "array field %q declares no element type", path).WithPath(path)
		}
		elemDef, err := f.Element.toDef(path + "[]")
		if err != nil {
			return nil, err
		}
		def.Element = elemDef
	case types.FieldString, types.FieldInt, types.FieldFloat, types.FieldBool:
		// no nested structure
	default:
		return nil, aeroerrors.Newf(aeroerrors.KindSchemaValidationFailed, "field %q has unknown type %q", path, f.Type).WithPath(path)
	}
	return def, nil
}

// schemaFile is the on-disk shape of schema_<id>_<version>.json.
type schemaFile struct {
	SchemaID      string                `json:"schema_id"`
	SchemaVersion string                `json:"schema_version"`
	Description   string                `json:"description,omitempty"`
	Fields        map[string]*fieldFile `json:"fields"`
}

// parseSchemaFile decodes and structurally validates one schema
// definition: it must contain an `_id` field that is required and of
// string type (spec.md §4.4).
func parseSchemaFile(data []byte) (*types.Schema, error) {
	var raw schemaFile
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, aeroerrors.New(aeroerrors.KindSchemaValidationFailed, err)
	}
	if raw.SchemaID == "" {
		return nil, aeroerrors.Newf(aeroerrors.KindSchemaValidationFailed, "schema file missing schema_id")
	}
	if raw.SchemaVersion == "" {
		return nil, aeroerrors.Newf(aeroerrors.KindSchemaValidationFailed, "schema file missing schema_version")
	}

	idField, ok := raw.Fields["_id"]
	if !ok || idField.Type != types.FieldString || !idField.Required {
		return nil, aeroerrors.Newf(aeroerrors.KindSchemaValidationFailed, "schema %s/%s must declare _id as a required string field", raw.SchemaID, raw.SchemaVersion).WithPath("_id")
	}

	fields := make(map[string]*types.FieldDef, len(raw.Fields))
	for name, f := range raw.Fields {
		def, err := f.toDef(name)
		if err != nil {
			return nil, err
		}
		fields[name] = def
	}

	return &types.Schema{
		SchemaID:      raw.SchemaID,
		SchemaVersion: raw.SchemaVersion,
		Description:   raw.Description,
		Fields:        fields,
	}, nil
}

func marshalSchemaFile(s *types.Schema) ([]byte, error) {
	raw := schemaFile{
		SchemaID:      s.SchemaID,
		SchemaVersion: s.SchemaVersion,
		Description:   s.Description,
		Fields:        make(map[string]*fieldFile, len(s.Fields)),
	}
	for name, def := range s.Fields {
		raw.Fields[name] = defToFile(def)
	}
	return json.MarshalIndent(raw, "", "  ")
}

func defToFile(def *types.FieldDef) *fieldFile {
	f := &fieldFile{Type: def.Type, Required: def.Required, Indexed: def.Indexed}
	if def.Fields != nil {
		f.Fields = make(map[string]*fieldFile, len(def.Fields))
		for name, nested := range def.Fields {
			f.Fields[name] = defToFile(nested)
		}
	}
	if def.Element != nil {
		f.Element = defToFile(def.Element)
	}
	return f
}
