// Package common provides shared utilities: configuration, logging, id
// generation, and workflow variable interpolation.
//
// The {{name}} syntax allows step fields to reference variables from the
// execution's variable map. At runtime, these references are replaced with
// the current values.
//
// Example:
//
//	Input:     "https://example.com/users/{{user-id}}"
//	Variables: {"user-id": "42"}
//	Output:    "https://example.com/users/42"
//
// Replacement is case-sensitive. Unmatched placeholders are left untouched,
// allowing graceful degradation.
package common

import (
	"fmt"
	"regexp"
)

// variablePattern matches {{name}} references in strings.
// Allows alphanumeric characters, hyphens, and underscores.
var variablePattern = regexp.MustCompile(`\{\{([a-zA-Z0-9_-]+)\}\}`)

// Interpolate replaces all {{name}} references in the input string with
// values from the provided variable map. Non-string values are rendered with
// their default formatting. Missing variables leave the reference unchanged.
func Interpolate(input string, variables map[string]interface{}) string {
	if input == "" || len(variables) == 0 {
		return input
	}

	return variablePattern.ReplaceAllStringFunc(input, func(match string) string {
		// Strip the surrounding braces
		name := match[2 : len(match)-2]

		if value, exists := variables[name]; exists {
			if s, ok := value.(string); ok {
				return s
			}
			return fmt.Sprintf("%v", value)
		}

		// Variable not found - leave the placeholder untouched
		return match
	})
}

// InterpolateMap returns a copy of m with Interpolate applied to every value.
func InterpolateMap(m map[string]string, variables map[string]interface{}) map[string]string {
	if len(m) == 0 {
		return m
	}

	result := make(map[string]string, len(m))
	for key, value := range m {
		result[key] = Interpolate(value, variables)
	}
	return result
}
