package activities

import (
	"encoding/json"
	"fmt"
	"strings"
)

func stringParam(params map[string]any, name string) string {
	s, _ := params[name].(string)
	return strings.TrimSpace(s)
}

func intParam(params map[string]any, name string, def int) int {
	switch v := params[name].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
	}
	return def
}

// countParam reads quantidade, defaulting to DefaultCount.
func countParam(params map[string]any) (int, error) {
	count := intParam(params, "quantidade", DefaultCount)
	if count <= 0 || count > MaxCount {
		return 0, fmt.Errorf("quantidade must be between 1 and %d, got %d", MaxCount, count)
	}
	return count, nil
}

func stringsParam(params map[string]any, name string) []string {
	switch v := params[name].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
