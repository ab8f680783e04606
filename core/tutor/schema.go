package tutor

import (
	"bytes"
	"encoding/json"

	"github.com/invopop/jsonschema"
	"github.com/pkg/errors"
	santhosh "github.com/santhosh-tekuri/jsonschema/v6"
)

// Schema is a compiled JSON schema along with its JSON document.
type Schema struct {
	raw      json.RawMessage
	compiled *santhosh.Schema
}

// ReflectSchema builds the JSON schema of T from its `json` and `jsonschema` struct tags.
func ReflectSchema[T any]() (*Schema, error) {
	reflector := jsonschema.Reflector{
		Anonymous:                  true,
		AllowAdditionalProperties:  false,
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: true,
	}
	var v T
	raw, err := json.Marshal(reflector.Reflect(&v))
	if err != nil {
		return nil, errors.Wrap(err, "marshalling schema")
	}
	return CompileSchema(raw)
}

// MustReflectSchema is like ReflectSchema but panics on error. It is meant for package level vars.
func MustReflectSchema[T any]() *Schema {
	s, err := ReflectSchema[T]()
	if err != nil {
		panic(err)
	}
	return s
}

// CompileSchema compiles a JSON schema document.
func CompileSchema(raw json.RawMessage) (*Schema, error) {
	doc, err := santhosh.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, errors.Wrap(err, "decoding schema")
	}

	c := santhosh.NewCompiler()
	if err = c.AddResource("schema.json", doc); err != nil {
		return nil, errors.Wrap(err, "adding schema resource")
	}
	compiled, err := c.Compile("schema.json")
	if err != nil {
		return nil, errors.Wrap(err, "compiling schema")
	}
	return &Schema{raw: raw, compiled: compiled}, nil
}

// JSON returns the schema document.
func (s *Schema) JSON() json.RawMessage { return s.raw }

// Validate checks that the JSON document data conforms to the schema.
func (s *Schema) Validate(data json.RawMessage) error {
	if len(bytes.TrimSpace(data)) == 0 {
		data = json.RawMessage("{}")
	}
	doc, err := santhosh.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return errors.Wrap(err, "decoding document")
	}
	return s.compiled.Validate(doc)
}
