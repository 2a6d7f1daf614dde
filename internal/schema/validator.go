package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/aerodb/aerodb/internal/aeroerrors"
	"github.com/aerodb/aerodb/internal/types"
)

// Validator applies a registered schema to a document with no coercion,
// no defaults, and no nulls (spec.md §4.4). It is pure: validating the
// same document against the same schema always produces the same
// outcome, success or failure at the same field path.
type Validator struct {
	registry *Registry
}

func NewValidator(registry *Registry) *Validator {
	return &Validator{registry: registry}
}

// DecodeDocument parses a document body with json.Number preserved, so
// the validator can tell `42` from `42.0` the way the int/float field
// types require.
func DecodeDocument(raw []byte) (map[string]interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, aeroerrors.New(aeroerrors.KindSchemaValidationFailed, err)
	}
	obj, ok := v.(map[string]interface{})
	if !ok {
		return nil, aeroerrors.Newf(aeroerrors.KindSchemaValidationFailed, "document must be a JSON object, got %s", jsonTypeName(v)).WithPath("$root")
	}
	return obj, nil
}

// Validate runs the full validator rule sequence (spec.md §4.4 steps
// 1-6) against doc for (schemaID, schemaVersion).
func (v *Validator) Validate(schemaID, schemaVersion string, doc map[string]interface{}) error {
	if !v.registry.Exists(schemaID) {
		return aeroerrors.Newf(aeroerrors.KindUnknownSchema, "unknown schema %q", schemaID)
	}
	s, err := v.registry.Get(schemaID, schemaVersion)
	if err != nil {
		return err
	}

	if _, ok := doc["_id"]; !ok {
		return aeroerrors.Newf(aeroerrors.KindSchemaValidationFailed, "missing required field").WithPath("_id")
	}

	return validateObject(doc, s.Fields, "")
}

// ValidateUpdate runs Validate, then enforces id immutability (I2): the
// document's _id must equal the existing id for that key.
func (v *Validator) ValidateUpdate(schemaID, schemaVersion, existingID string, doc map[string]interface{}) error {
	if err := v.Validate(schemaID, schemaVersion, doc); err != nil {
		return err
	}
	newID, _ := doc["_id"].(string)
	if newID != existingID {
		return aeroerrors.Newf(aeroerrors.KindIDImmutable, "document id is immutable: existing %q, attempted %q", existingID, newID).WithPath("_id")
	}
	return nil
}

func validateObject(obj map[string]interface{}, fields map[string]*types.FieldDef, pathPrefix string) error {
	// Keys are visited in sorted order so that a document with several
	// faults always reports the same field path.
	keys := make([]string, 0, len(obj))
	for key := range obj {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if _, ok := fields[key]; !ok {
			return aeroerrors.Newf(aeroerrors.KindSchemaValidationFailed, "field %q is not declared in the schema", fieldPath(pathPrefix, key)).WithPath(fieldPath(pathPrefix, key))
		}
	}

	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		def := fields[name]
		path := fieldPath(pathPrefix, name)
		value, present := obj[name]
		if !present {
			if def.Required {
				return aeroerrors.Newf(aeroerrors.KindSchemaValidationFailed, "missing required field %q", path).WithPath(path)
			}
			continue
		}
		if value == nil {
			return aeroerrors.Newf(aeroerrors.KindSchemaValidationFailed, "field %q is null", path).WithPath(path)
		}
		if err := validateValue(value, def, path); err != nil {
			return err
		}
	}
	return nil
}

func validateValue(value interface{}, def *types.FieldDef, path string) error {
	switch def.Type {
	case types.FieldString:
		if _, ok := value.(string); !ok {
			return typeError(path, types.FieldString, value)
		}
	case types.FieldInt:
		n, ok := value.(json.Number)
		if !ok || !isIntegerLiteral(n) {
			return typeError(path, types.FieldInt, value)
		}
	case types.FieldFloat:
		if _, ok := value.(json.Number); !ok {
			return typeError(path, types.FieldFloat, value)
		}
	case types.FieldBool:
		if _, ok := value.(bool); !ok {
			return typeError(path, types.FieldBool, value)
		}
	case types.FieldObject:
		obj, ok := value.(map[string]interface{})
		if !ok {
			return typeError(path, types.FieldObject, value)
		}
		return validateObject(obj, def.Fields, path)
	case types.FieldArray:
		arr, ok := value.([]interface{})
		if !ok {
			return typeError(path, types.FieldArray, value)
		}
		for i, elem := range arr {
			elemPath := fmt.Sprintf("%s[%d]", path, i)
			if elem == nil {
				return aeroerrors.Newf(aeroerrors.KindSchemaValidationFailed, "array element %q is null", elemPath).WithPath(elemPath)
			}
			if err := validateValue(elem, def.Element, elemPath); err != nil {
				return err
			}
		}
	}
	return nil
}

// isIntegerLiteral reports whether a JSON number was written without a
// fractional part or exponent, matching the original's is_i64()/is_u64()
// distinction between `42` and `42.0`.
func isIntegerLiteral(n json.Number) bool {
	s := string(n)
	return !strings.ContainsAny(s, ".eE")
}

func fieldPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

func typeError(path string, expected types.FieldType, actual interface{}) error {
	return aeroerrors.Newf(aeroerrors.KindSchemaValidationFailed, "field %q: expected %s, got %s", path, expected, jsonTypeName(actual)).WithPath(path)
}

func jsonTypeName(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case bool:
		return "bool"
	case json.Number:
		if isIntegerLiteral(val) {
			return "int"
		}
		return "float"
	case string:
		return "string"
	case []interface{}:
		return "array"
	case map[string]interface{}:
		return "object"
	default:
		return "unknown"
	}
}
