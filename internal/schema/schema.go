// Package schema validates JSON values against embedded JSON schemas.
package schema

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// Validator checks values against one JSON schema. The schema is compiled on
// first use. Violations are reported wrapped in the validator's sentinel error.
type Validator struct {
	name    string
	source  string
	invalid error

	once     sync.Once
	compiled *gojsonschema.Schema
	err      error
}

// New returns a validator for schemaJSON. invalid is wrapped by every
// validation failure so callers can match it with errors.Is.
func New(name, schemaJSON string, invalid error) *Validator {
	return &Validator{name: name, source: schemaJSON, invalid: invalid}
}

// ValidateBytes validates raw JSON.
func (v *Validator) ValidateBytes(data []byte) error {
	return v.validate(gojsonschema.NewBytesLoader(data))
}

// ValidateValue validates a decoded Go value such as map[string]any.
func (v *Validator) ValidateValue(value any) error {
	return v.validate(gojsonschema.NewGoLoader(value))
}

func (v *Validator) validate(doc gojsonschema.JSONLoader) error {
	v.once.Do(func() {
		v.compiled, v.err = gojsonschema.NewSchema(gojsonschema.NewStringLoader(v.source))
	})
	if v.err != nil {
		return fmt.Errorf("compile %s schema: %w", v.name, v.err)
	}
	result, err := v.compiled.Validate(doc)
	if err != nil {
		return fmt.Errorf("%w: %v", v.invalid, err)
	}
	if result.Valid() {
		return nil
	}
	return fmt.Errorf("%w: %s", v.invalid, Messages(result))
}

// Messages joins the result's violations in sorted order.
func Messages(result *gojsonschema.Result) string {
	errs := make([]string, 0, len(result.Errors()))
	for _, schemaErr := range result.Errors() {
		errs = append(errs, schemaErr.String())
	}
	sort.Strings(errs)
	return strings.Join(errs, "; ")
}
