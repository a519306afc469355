// Package config holds the value conversions shared by ConfigStore adapters.
//
// TOML decodes integers as int64 and floats as float64; values set in code
// keep their Go type. The helpers accept both and return the zero value for
// anything else.
package config

import (
	"math"
	"strings"
	"time"
)

// AsString returns v if it is a string.
func AsString(v any) string {
	s, _ := v.(string)
	return s
}

// AsInt converts integer values and whole floats.
func AsInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		if n == math.Trunc(n) {
			return int(n)
		}
	}
	return 0
}

// AsFloat converts floats and widens integers.
func AsFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	case int:
		return float64(n)
	}
	return 0
}

// AsBool returns v if it is a bool.
func AsBool(v any) bool {
	b, _ := v.(bool)
	return b
}

// AsDuration parses Go duration strings ("30s"). Bare integers are seconds.
func AsDuration(v any) time.Duration {
	switch d := v.(type) {
	case time.Duration:
		return d
	case string:
		parsed, err := time.ParseDuration(strings.TrimSpace(d))
		if err != nil {
			return 0
		}
		return parsed
	case int64:
		return time.Duration(d) * time.Second
	case int:
		return time.Duration(d) * time.Second
	}
	return 0
}

// AsStringSlice converts string arrays, skipping non-string items.
func AsStringSlice(v any) []string {
	switch s := v.(type) {
	case []string:
		return s
	case []any:
		result := make([]string, 0, len(s))
		for _, item := range s {
			if str, ok := item.(string); ok {
				result = append(result, str)
			}
		}
		return result
	}
	return nil
}
