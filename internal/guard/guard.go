// Package guard rejects structured input that carries query-operator shaped
// keys before it can reach any decision logic.
package guard

import (
	"fmt"
	"strings"
)

// ErrInjectionDetected is the base failure for every rejected payload.
type ErrInjectionDetected struct {
	Path string
}

func (e *ErrInjectionDetected) Error() string {
	return fmt.Sprintf("guard: operator-shaped input at %s", e.Path)
}

// sentinel is the reserved prefix that marks query operators.
const sentinel = '$'

// dangerousKeys is the closed list of operator names rejected even without
// the sentinel prefix.
var dangerousKeys = map[string]struct{}{
	"$ne":          {},
	"$eq":          {},
	"$gt":          {},
	"$gte":         {},
	"$lt":          {},
	"$lte":         {},
	"$in":          {},
	"$nin":         {},
	"$or":          {},
	"$and":         {},
	"$not":         {},
	"$nor":         {},
	"$where":       {},
	"$regex":       {},
	"$exists":      {},
	"$expr":        {},
	"$elemmatch":   {},
	"$function":    {},
	"$accumulator": {},
	"$lookup":      {},
	"mapreduce":    {},
}

// Scan walks an arbitrary nested structure and fails on the first
// operator-shaped key, at any depth, including inside arrays. The input is
// never mutated.
func Scan(v any) error {
	return scanValue("$root", v)
}

// ScanMap scans a decoded JSON object.
func ScanMap(m map[string]any) error {
	return scanValue("$root", m)
}

// ScanValues scans flat key/value collections such as query or path
// parameters. Keys are checked like object keys.
func ScanValues(values map[string][]string) error {
	for key := range values {
		if dangerousKey(key) {
			return &ErrInjectionDetected{Path: "$root." + key}
		}
	}
	return nil
}

// ScalarFields fails when a field expected to hold a scalar holds a
// structured value instead. This is the defense against operator smuggling
// through primitive-typed fields such as credentials.
func ScalarFields(m map[string]any, fields ...string) error {
	for _, field := range fields {
		value, ok := m[field]
		if !ok {
			continue
		}
		switch value.(type) {
		case map[string]any, []any:
			return &ErrInjectionDetected{Path: "$root." + field}
		}
	}
	return nil
}

func scanValue(path string, v any) error {
	switch value := v.(type) {
	case map[string]any:
		for key, nested := range value {
			keyPath := path + "." + key
			if dangerousKey(key) {
				return &ErrInjectionDetected{Path: keyPath}
			}
			if err := scanValue(keyPath, nested); err != nil {
				return err
			}
		}
	case []any:
		for i, nested := range value {
			if err := scanValue(fmt.Sprintf("%s[%d]", path, i), nested); err != nil {
				return err
			}
		}
	}
	return nil
}

func dangerousKey(key string) bool {
	trimmed := strings.TrimSpace(key)
	if trimmed == "" {
		return false
	}
	if trimmed[0] == sentinel {
		return true
	}
	_, ok := dangerousKeys[strings.ToLower(trimmed)]
	return ok
}
