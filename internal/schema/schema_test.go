package schema

import (
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aerodb/aerodb/internal/aeroerrors"
	"github.com/aerodb/aerodb/internal/logger"
	"github.com/aerodb/aerodb/internal/types"
)

func testLogger() *logger.Logger {
	l := logger.Default()
	l.SetOutput(io.Discard)
	return l
}

func usersSchema() *types.Schema {
	return &types.Schema{
		SchemaID:      "users",
		SchemaVersion: "v1",
		Fields: map[string]*types.FieldDef{
			"_id":  {Type: types.FieldString, Required: true},
			"name": {Type: types.FieldString, Required: true},
			"age":  {Type: types.FieldInt, Required: false},
		},
	}
}

func newRegistryWithUsers(t *testing.T) *Registry {
	t.Helper()
	reg := NewRegistry(t.TempDir(), testLogger())
	require.NoError(t, reg.Register(usersSchema()))
	return reg
}

func TestRegisterAndReload(t *testing.T) {
	dir := t.TempDir()
	reg := NewRegistry(dir, testLogger())
	require.NoError(t, reg.Register(usersSchema()))

	reg2 := NewRegistry(dir, testLogger())
	require.NoError(t, reg2.Load())
	require.True(t, reg2.ExistsVersion("users", "v1"))
}

func TestReregistrationRejectedAsImmutable(t *testing.T) {
	reg := newRegistryWithUsers(t)
	err := reg.Register(usersSchema())
	require.Error(t, err)
	require.True(t, aeroerrors.Is(err, aeroerrors.KindSchemaImmutable))
}

func TestRegisterRejectsSchemaWithoutIDField(t *testing.T) {
	reg := NewRegistry(t.TempDir(), testLogger())
	bad := &types.Schema{
		SchemaID:      "bad",
		SchemaVersion: "v1",
		Fields: map[string]*types.FieldDef{
			"name": {Type: types.FieldString, Required: true},
		},
	}
	err := reg.Register(bad)
	require.Error(t, err)
	require.True(t, aeroerrors.Is(err, aeroerrors.KindSchemaValidationFailed))
}

func TestValidateAcceptsValidDocument(t *testing.T) {
	reg := newRegistryWithUsers(t)
	v := NewValidator(reg)
	doc, err := DecodeDocument([]byte(`{"_id":"u1","name":"Alice","age":25}`))
	require.NoError(t, err)
	require.NoError(t, v.Validate("users", "v1", doc))
}

func TestValidateRejectsUnknownSchema(t *testing.T) {
	reg := newRegistryWithUsers(t)
	v := NewValidator(reg)
	doc, err := DecodeDocument([]byte(`{"_id":"u1"}`))
	require.NoError(t, err)
	err = v.Validate("ghosts", "v1", doc)
	require.True(t, aeroerrors.Is(err, aeroerrors.KindUnknownSchema))
}

func TestValidateRejectsUnknownVersion(t *testing.T) {
	reg := newRegistryWithUsers(t)
	v := NewValidator(reg)
	doc, err := DecodeDocument([]byte(`{"_id":"u1","name":"Alice"}`))
	require.NoError(t, err)
	err = v.Validate("users", "v999", doc)
	require.True(t, aeroerrors.Is(err, aeroerrors.KindUnknownSchemaVersion))
}

func TestValidateRejectsMissingRequiredField(t *testing.T) {
	reg := newRegistryWithUsers(t)
	v := NewValidator(reg)
	doc, err := DecodeDocument([]byte(`{"_id":"u1"}`))
	require.NoError(t, err)
	err = v.Validate("users", "v1", doc)
	require.True(t, aeroerrors.Is(err, aeroerrors.KindSchemaValidationFailed))
	var ae *aeroerrors.AeroError
	require.ErrorAs(t, err, &ae)
	require.Equal(t, "name", ae.Path)
}

func TestValidateRejectsExtraField(t *testing.T) {
	reg := newRegistryWithUsers(t)
	v := NewValidator(reg)
	doc, err := DecodeDocument([]byte(`{"_id":"u1","name":"Alice","extra":true}`))
	require.NoError(t, err)
	err = v.Validate("users", "v1", doc)
	require.True(t, aeroerrors.Is(err, aeroerrors.KindSchemaValidationFailed))
	var ae *aeroerrors.AeroError
	require.ErrorAs(t, err, &ae)
	require.Equal(t, "extra", ae.Path)
}

func TestValidateRejectsTypeMismatch(t *testing.T) {
	reg := newRegistryWithUsers(t)
	v := NewValidator(reg)
	doc, err := DecodeDocument([]byte(`{"_id":"u1","name":123}`))
	require.NoError(t, err)
	err = v.Validate("users", "v1", doc)
	require.True(t, aeroerrors.Is(err, aeroerrors.KindSchemaValidationFailed))
}

func TestValidateRejectsFloatForIntField(t *testing.T) {
	reg := newRegistryWithUsers(t)
	v := NewValidator(reg)
	doc, err := DecodeDocument([]byte(`{"_id":"u1","name":"Alice","age":25.5}`))
	require.NoError(t, err)
	err = v.Validate("users", "v1", doc)
	require.True(t, aeroerrors.Is(err, aeroerrors.KindSchemaValidationFailed))
}

func TestValidateRejectsNullField(t *testing.T) {
	reg := newRegistryWithUsers(t)
	v := NewValidator(reg)
	doc, err := DecodeDocument([]byte(`{"_id":"u1","name":null}`))
	require.NoError(t, err)
	err = v.Validate("users", "v1", doc)
	require.True(t, aeroerrors.Is(err, aeroerrors.KindSchemaValidationFailed))
}

func TestValidateNestedObjectAndArray(t *testing.T) {
	reg := NewRegistry(t.TempDir(), testLogger())
	s := &types.Schema{
		SchemaID:      "posts",
		SchemaVersion: "v1",
		Fields: map[string]*types.FieldDef{
			"_id": {Type: types.FieldString, Required: true},
			"author": {Type: types.FieldObject, Required: true, Fields: map[string]*types.FieldDef{
				"name": {Type: types.FieldString, Required: true},
			}},
			"tags": {Type: types.FieldArray, Required: false, Element: &types.FieldDef{Type: types.FieldString}},
		},
	}
	require.NoError(t, reg.Register(s))
	v := NewValidator(reg)

	good, err := DecodeDocument([]byte(`{"_id":"p1","author":{"name":"Alice"},"tags":["a","b"]}`))
	require.NoError(t, err)
	require.NoError(t, v.Validate("posts", "v1", good))

	badArr, err := DecodeDocument([]byte(`{"_id":"p1","author":{"name":"Alice"},"tags":["a",1]}`))
	require.NoError(t, err)
	err = v.Validate("posts", "v1", badArr)
	require.True(t, aeroerrors.Is(err, aeroerrors.KindSchemaValidationFailed))
	var ae *aeroerrors.AeroError
	require.ErrorAs(t, err, &ae)
	require.Equal(t, "tags[1]", ae.Path)

	missingNested, err := DecodeDocument([]byte(`{"_id":"p1","author":{}}`))
	require.NoError(t, err)
	err = v.Validate("posts", "v1", missingNested)
	require.True(t, aeroerrors.Is(err, aeroerrors.KindSchemaValidationFailed))
}

func TestValidateUpdateEnforcesIDImmutability(t *testing.T) {
	reg := newRegistryWithUsers(t)
	v := NewValidator(reg)
	doc, err := DecodeDocument([]byte(`{"_id":"u2","name":"Alice"}`))
	require.NoError(t, err)
	err = v.ValidateUpdate("users", "v1", "u1", doc)
	require.True(t, aeroerrors.Is(err, aeroerrors.KindIDImmutable))
}

func TestDecodeDocumentRejectsNonObjectRoot(t *testing.T) {
	_, err := DecodeDocument([]byte(`[1,2,3]`))
	require.Error(t, err)
}
