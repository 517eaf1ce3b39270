package project

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ValidationError represents a single schema validation error with field-level detail.
type ValidationError struct {
	Field       string
	Description string
	Value       interface{}
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Value != nil {
		return fmt.Sprintf("%s: %s (value: %v)", e.Field, e.Description, e.Value)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Description)
}

// ValidationResult contains the results of JSON schema validation.
type ValidationResult struct {
	Valid  bool
	Errors []ValidationError
}

// AsError flattens the field errors into a single error value, or nil
// when the result is valid.
func (r *ValidationResult) AsError() error {
	if r.Valid {
		return nil
	}
	msgs := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		msgs = append(msgs, e.Error())
	}
	return errors.New(strings.Join(msgs, "; "))
}

// ValidateArchive validates raw archive JSON against the embedded schema.
// Schema violations are reported in the result, not as the returned
// error; the error covers malformed JSON and schema loading failures.
func ValidateArchive(data []byte) (*ValidationResult, error) {
	documentLoader := gojsonschema.NewBytesLoader(data)

	result, err := gojsonschema.Validate(SchemaLoader(), documentLoader)
	if err != nil {
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	return convertResult(result), nil
}

// convertResult converts a gojsonschema result into a ValidationResult.
func convertResult(result *gojsonschema.Result) *ValidationResult {
	vr := &ValidationResult{
		Valid:  result.Valid(),
		Errors: make([]ValidationError, 0),
	}

	if !result.Valid() {
		for _, e := range result.Errors() {
			vr.Errors = append(vr.Errors, ValidationError{
				Field:       e.Field(),
				Description: e.Description(),
				Value:       e.Value(),
			})
		}
	}

	return vr
}
