package project

import (
	_ "embed"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed archive.schema.json
var embeddedSchema string

// SchemaLoader returns a gojsonschema loader for the embedded archive
// schema. The schema ships inside the binary so validation works offline.
func SchemaLoader() gojsonschema.JSONLoader {
	return gojsonschema.NewStringLoader(embeddedSchema)
}

// EmbeddedSchema returns the embedded archive schema as a string.
func EmbeddedSchema() string {
	return embeddedSchema
}
