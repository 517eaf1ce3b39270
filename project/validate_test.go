package project

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateArchive_Valid(t *testing.T) {
	data := []byte(`{"version": 1, "units": [{"text": "Hello."}]}`)

	result, err := ValidateArchive(data)
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Empty(t, result.Errors)
}

func TestValidateArchive_Invalid(t *testing.T) {
	data := []byte(`{"version": 1}`)

	result, err := ValidateArchive(data)
	require.NoError(t, err)
	assert.False(t, result.Valid)
	require.NotEmpty(t, result.Errors)

	// Check that the error carries field information
	found := false
	for _, e := range result.Errors {
		if e.Field == "(root)" && e.Description != "" {
			found = true
		}
	}
	assert.True(t, found, "expected validation error with field info, got: %v", result.Errors)
}

func TestValidateArchive_MalformedJSON(t *testing.T) {
	_, err := ValidateArchive([]byte(`{not valid json}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema validation failed")
}

func TestValidationError_Error(t *testing.T) {
	t.Run("with value", func(t *testing.T) {
		e := ValidationError{
			Field:       "units.0.gain",
			Description: "Must be less than or equal to 2",
			Value:       3.5,
		}
		assert.Equal(t, "units.0.gain: Must be less than or equal to 2 (value: 3.5)", e.Error())
	})

	t.Run("without value", func(t *testing.T) {
		e := ValidationError{
			Field:       "(root)",
			Description: "version is required",
			Value:       nil,
		}
		assert.Equal(t, "(root): version is required", e.Error())
	})
}

func TestValidationResult_AsError(t *testing.T) {
	t.Run("valid results flatten to nil", func(t *testing.T) {
		r := &ValidationResult{Valid: true}
		assert.NoError(t, r.AsError())
	})

	t.Run("field errors join into one message", func(t *testing.T) {
		r := &ValidationResult{
			Valid: false,
			Errors: []ValidationError{
				{Field: "version", Description: "is required"},
				{Field: "units", Description: "is required"},
			},
		}

		err := r.AsError()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "version: is required")
		assert.Contains(t, err.Error(), "units: is required")
	})
}

func TestEmbeddedSchema(t *testing.T) {
	var schema map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(EmbeddedSchema()), &schema))

	assert.Equal(t, "object", schema["type"])
	assert.Contains(t, schema, "properties")
}
