package config

import (
	"os"
	"regexp"
)

// placeholderPattern matches the ${NAME} form only; a bare $NAME is
// never substituted (spec.md §4.1).
var placeholderPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// interpolateWarning is invoked once per undefined placeholder left
// untouched in a string, so the caller can log a non-fatal warning.
type interpolateWarning func(name string)

// interpolateString performs a single pass of ${NAME} substitution
// against the process environment. An undefined NAME leaves the
// literal "${NAME}" in place (no error, no re-scan of the result) and
// reports it via warn.
func interpolateString(s string, lookup func(string) (string, bool), warn interpolateWarning) string {
	return placeholderPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := placeholderPattern.FindStringSubmatch(match)[1]
		if value, ok := lookup(name); ok {
			return value
		}
		if warn != nil {
			warn(name)
		}
		return match
	})
}

// interpolateValue walks an arbitrary JSON-decoded value (the result
// of json.Unmarshal into interface{}), substituting ${NAME} inside
// every string it finds. It recurses into map values, slice elements,
// and nested structures, but never into map keys (spec.md §4.1).
func interpolateValue(v interface{}, lookup func(string) (string, bool), warn interpolateWarning) interface{} {
	switch val := v.(type) {
	case string:
		return interpolateString(val, lookup, warn)
	case map[string]interface{}:
		for k, inner := range val {
			val[k] = interpolateValue(inner, lookup, warn)
		}
		return val
	case []interface{}:
		for i, inner := range val {
			val[i] = interpolateValue(inner, lookup, warn)
		}
		return val
	default:
		return v
	}
}

// osLookup resolves a single pass of interpolation against the real
// process environment, read once per call (no other process-wide
// mutable state is introduced by interpolation).
func osLookup(name string) (string, bool) {
	return os.LookupEnv(name)
}
