package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ErrNoJSON indicates the model output held no JSON object.
var ErrNoJSON = errors.New("model output does not contain a JSON object")

// SchemaError lists the schema violations of a model response.
type SchemaError struct {
	Problems []string
}

func (e *SchemaError) Error() string {
	return "response does not match schema: " + strings.Join(e.Problems, "; ")
}

// DecodeJSON extracts the JSON object from text, validates it against
// schema and unmarshals it into v.
func DecodeJSON(text, schema string, v any) error {
	raw, ok := ExtractJSON([]byte(text))
	if !ok {
		return ErrNoJSON
	}
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(schema),
		gojsonschema.NewBytesLoader(raw),
	)
	if err != nil {
		return fmt.Errorf("validate response: %w", err)
	}
	if !result.Valid() {
		problems := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			problems = append(problems, e.String())
		}
		return &SchemaError{Problems: problems}
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
