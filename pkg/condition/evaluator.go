// Package condition evaluates the workflow builder's tiny condition language.
//
// Four forms are recognised, checked in this order:
//
//	!path          true when path resolves to a falsy value
//	path == value  string equality, value is a literal with optional quotes
//	path != value  string inequality
//	path           truthiness of the resolved value
//
// There is no precedence and no && or || composition.
package condition

import (
	"math"
	"reflect"
	"strings"

	"github.com/dukex/leadflow/pkg/models"
	"github.com/dukex/leadflow/pkg/template"
)

// Evaluate returns the boolean value of expr for the run. Any panic during resolution yields false.
func Evaluate(expr string, ec *models.ExecutionContext) (result bool) {
	defer func() {
		if recover() != nil {
			result = false
		}
	}()

	expr = strings.TrimSpace(expr)

	if strings.HasPrefix(expr, "!") && !strings.HasPrefix(expr, "!=") {
		value, _ := template.Resolve(strings.TrimSpace(expr[1:]), ec)

		return !Truthy(value)
	}

	if left, right, ok := strings.Cut(expr, "=="); ok {
		return resolveString(left, ec) == literal(right)
	}

	if left, right, ok := strings.Cut(expr, "!="); ok {
		return resolveString(left, ec) != literal(right)
	}

	value, _ := template.Resolve(expr, ec)

	return Truthy(value)
}

// Truthy reports whether value counts as true: nil, false, zero, NaN, the empty string and
// empty collections are false.
func Truthy(value any) bool {
	switch v := value.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return v != ""
	case float64:
		return v != 0 && !math.IsNaN(v)
	case float32:
		return v != 0 && !math.IsNaN(float64(v))
	case int:
		return v != 0
	case int64:
		return v != 0
	case int32:
		return v != 0
	case []any:
		return len(v) > 0
	case map[string]any:
		return len(v) > 0
	}

	rv := reflect.ValueOf(value)

	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() > 0
	case reflect.Pointer, reflect.Interface:
		return !rv.IsNil()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() != 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint() != 0
	default:
		return true
	}
}

func resolveString(path string, ec *models.ExecutionContext) string {
	value, ok := template.Resolve(strings.TrimSpace(path), ec)
	if !ok {
		return ""
	}

	return template.Stringify(value)
}

func literal(raw string) string {
	raw = strings.TrimSpace(raw)

	if len(raw) >= 2 {
		first, last := raw[0], raw[len(raw)-1]
		if (first == '"' || first == '\'') && first == last {
			return raw[1 : len(raw)-1]
		}
	}

	return raw
}
