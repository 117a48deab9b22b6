// Package template resolves {business.x} and {variables.y} references against a workflow run.
package template

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dukex/leadflow/pkg/models"
)

const (
	businessPrefix  = "business."
	variablesPrefix = "variables."
	variablePrefix  = "variable."
)

// tokenPattern matches any innermost {...} token.
var tokenPattern = regexp.MustCompile(`\{([^{}]+)\}`)

// Resolve looks path up in the run. A single pair of enclosing braces is stripped first.
// The boolean is false when nothing was found.
func Resolve(path string, ec *models.ExecutionContext) (any, bool) {
	path = strings.TrimSpace(path)
	if strings.HasPrefix(path, "{") && strings.HasSuffix(path, "}") {
		path = strings.TrimSpace(path[1 : len(path)-1])
	}

	if path == "" || ec == nil {
		return nil, false
	}

	switch {
	case strings.HasPrefix(path, businessPrefix):
		return lookup(map[string]any(ec.BusinessData), strings.TrimPrefix(path, businessPrefix))
	case strings.HasPrefix(path, variablesPrefix):
		return lookup(ec.Variables, strings.TrimPrefix(path, variablesPrefix))
	case strings.HasPrefix(path, variablePrefix):
		return lookup(ec.Variables, strings.TrimPrefix(path, variablePrefix))
	}

	if value, ok := lookup(map[string]any(ec.BusinessData), path); ok && value != nil {
		return value, true
	}

	return lookup(ec.Variables, path)
}

// Interpolate replaces every {path} token in text with its resolved value.
// Missing and nil values render as the empty string. Tokens opening with a quote are JSON
// objects, not references, and are kept as written.
func Interpolate(text string, ec *models.ExecutionContext) string {
	if !strings.Contains(text, "{") {
		return text
	}

	return tokenPattern.ReplaceAllStringFunc(text, func(token string) string {
		if strings.HasPrefix(strings.TrimSpace(token[1:len(token)-1]), `"`) {
			return token
		}

		value, ok := Resolve(token, ec)
		if !ok {
			return ""
		}

		return Stringify(value)
	})
}

// Stringify renders a resolved value the way it appears in interpolated text.
func Stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", v)
	case json.Number:
		return v.String()
	case time.Time:
		return v.Format(time.RFC3339)
	case fmt.Stringer:
		return v.String()
	case error:
		return v.Error()
	}

	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprintf("%v", value)
	}

	return string(encoded)
}

// lookup tries the exact key first and then walks dotted segments through nested maps.
func lookup(source map[string]any, key string) (any, bool) {
	if source == nil || key == "" {
		return nil, false
	}

	if value, ok := source[key]; ok {
		return value, true
	}

	if !strings.Contains(key, ".") {
		return nil, false
	}

	var current any = source

	for _, segment := range strings.Split(key, ".") {
		switch node := current.(type) {
		case map[string]any:
			next, ok := node[segment]
			if !ok {
				return nil, false
			}

			current = next
		case models.BusinessData:
			next, ok := node[segment]
			if !ok {
				return nil, false
			}

			current = next
		case []any:
			index, err := strconv.Atoi(segment)
			if err != nil || index < 0 || index >= len(node) {
				return nil, false
			}

			current = node[index]
		default:
			return nil, false
		}
	}

	return current, true
}
