/*Package schema validates request bodies against JSON schemas.

Schemas are optional per entity type; required-field presence is checked
by the dispatcher regardless.
*/
package schema

import (
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	"github.com/xeipuuv/gojsonschema"
)

// Validator is a utility to validate JSON objects against a given schema
type Validator struct {
	schemaValidators map[string]*gojsonschema.Schema
}

// NewValidatorFromFS creates a new Validator using the json files from the
// given directory of schemaFS as top level schemas.
func NewValidatorFromFS(schemaFS embed.FS, dir string) (*Validator, error) {
	var schemas []string
	files, err := schemaFS.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot read schema dir %w", err)
	}
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".json") {
			continue
		}
		str, err := schemaFS.ReadFile(dir + "/" + f.Name())
		if err != nil {
			return nil, fmt.Errorf("cannot read file '%s' %w", f.Name(), err)
		}
		schemas = append(schemas, string(str))
	}
	return NewValidator(schemas)
}

// NewValidator creates a new Validator for the given top level JSON
// schemas. Every schema must carry an $id; the id is the key validation
// requests reference.
func NewValidator(schemas []string) (*Validator, error) {
	type schemaID struct {
		ID string `json:"$id"`
	}
	validator := Validator{schemaValidators: make(map[string]*gojsonschema.Schema)}
	for _, str := range schemas {
		s := schemaID{}
		err := json.Unmarshal([]byte(str), &s)
		if err != nil {
			return nil, fmt.Errorf("parse error '%v' in schema: '%s'", err, str)
		}
		if s.ID == "" {
			return nil, fmt.Errorf("schema does not contain $id: '%s'", str)
		}
		sl := gojsonschema.NewSchemaLoader()
		compiled, err := sl.Compile(gojsonschema.NewStringLoader(str))
		if err != nil {
			return nil, fmt.Errorf("cannot compile schema %s %s", s.ID, err)
		}
		validator.schemaValidators[s.ID] = compiled
	}
	return &validator, nil
}

// HasSchema returns true if schemaID is known
func (v *Validator) HasSchema(schemaID string) bool {
	if v == nil {
		return false
	}
	_, ok := v.schemaValidators[schemaID]
	return ok
}

// ValidateStruct validates the given object against schemaID. If no error
// is returned, the object is valid.
func (v *Validator) ValidateStruct(object interface{}, schemaID string) error {
	schema, ok := v.schemaValidators[schemaID]
	if !ok {
		return fmt.Errorf("there is no schema %s ", schemaID)
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(object))
	if err != nil {
		return fmt.Errorf("cannot validate with schema %s %s", schemaID, err)
	}

	if !result.Valid() {
		message := "the document is not valid :\n"
		for _, e := range result.Errors() {
			message += fmt.Sprintf("- %s\n", e)
		}
		return errors.New(message)
	}
	return nil
}
