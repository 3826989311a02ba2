package capability

import (
	"fmt"
	"sort"

	"github.com/xeipuuv/gojsonschema"
)

// JSONSchema renders the declared parameters as a JSON Schema object.
func (c Capability) JSONSchema() map[string]any {
	props := make(map[string]any, len(c.Params))
	required := make([]string, 0, len(c.Params))
	for _, p := range c.Params {
		prop := map[string]any{"type": string(p.Type)}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if p.Max > 0 {
			prop["maximum"] = p.Max
		}
		props[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	schema := map[string]any{
		"type":                 "object",
		"properties":           props,
		"additionalProperties": false,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// ValidateParameters checks params against the capability's schema.
func ValidateParameters(c Capability, params map[string]any) error {
	if params == nil {
		params = map[string]any{}
	}
	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(c.JSONSchema()),
		gojsonschema.NewGoLoader(params),
	)
	if err != nil {
		return &InvalidParametersError{Capability: c.Name, Problems: []string{fmt.Sprintf("validate: %v", err)}}
	}
	if result.Valid() {
		return nil
	}
	problems := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		problems = append(problems, e.String())
	}
	sort.Strings(problems)
	return &InvalidParametersError{Capability: c.Name, Problems: problems}
}
