// Package enums holds the string-backed states persisted in text columns.
package enums

import (
	"fmt"
	"slices"
	"strings"
)

// domain is the closed set of values one enum type may take.
type domain[T ~string] struct {
	kind   string
	values []T
}

func newDomain[T ~string](kind string, values ...T) domain[T] {
	return domain[T]{kind: kind, values: values}
}

func (d domain[T]) contains(v T) bool {
	return slices.Contains(d.values, v)
}

func (d domain[T]) parse(raw string) (T, error) {
	v := T(strings.TrimSpace(raw))
	if !d.contains(v) {
		var zero T
		return zero, fmt.Errorf("invalid %s %q", d.kind, raw)
	}
	return v, nil
}
