package config

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// Schema returns the JSON Schema describing Config, generated from its
// struct tags (mapstructure names, validator constraints surfaced as
// descriptions). Editors can point at the written file for completion
// on config.yaml; nlmd itself never reads it back.
func Schema() *jsonschema.Schema {
	reflector := &jsonschema.Reflector{
		ExpandedStruct: true,
		FieldNameTag:   "mapstructure",
	}
	return reflector.Reflect(&Config{})
}

// SchemaJSON renders Schema as indented JSON, suitable for writing
// alongside a config.yaml file.
func SchemaJSON() ([]byte, error) {
	return json.MarshalIndent(Schema(), "", "  ")
}
