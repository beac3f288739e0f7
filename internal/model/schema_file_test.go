package model

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSchemaFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "schema.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadSchemaOverrides(t *testing.T) {
	path := writeSchemaFile(t, `
fields:
  budget_min:
    weight: 8
  phone_number:
    required: true
`)

	s, err := LoadSchema(path)
	require.NoError(t, err)

	assert.Equal(t, 8, s.ByKey("budget_min").Weight)
	assert.True(t, s.ByKey("phone_number").Required)

	// Built-in schema must stay untouched.
	assert.Equal(t, 5, DefaultSchema().ByKey("budget_min").Weight)
	assert.False(t, DefaultSchema().ByKey("phone_number").Required)
}

func TestLoadSchemaUnknownField(t *testing.T) {
	path := writeSchemaFile(t, `
fields:
  not_a_field:
    weight: 3
`)
	_, err := LoadSchema(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown field")
}

func TestLoadSchemaInvalidWeight(t *testing.T) {
	path := writeSchemaFile(t, `
fields:
  budget_min:
    weight: 0
`)
	_, err := LoadSchema(path)
	require.Error(t, err)
}

func TestLoadSchemaMissingFile(t *testing.T) {
	_, err := LoadSchema(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
