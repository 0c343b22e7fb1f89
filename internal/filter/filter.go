// Package filter compiles metadata filter specs into predicates over chunk metadata.
package filter

import (
	"strings"
	"time"

	"github.com/hyperjump/bekutoru/internal/apperr"
)

// Predicate is a compiled, side-effect-free check over a metadata map.
type Predicate func(meta map[string]any) bool

// valueKind tags a metadata value. Comparisons define a total order only
// within a tag; cross-tag comparisons are false.
type valueKind int

const (
	kindNull valueKind = iota
	kindBool
	kindNumber
	kindString
	kindArray
	kindUnknown
)

func kindOf(v any) valueKind {
	switch v.(type) {
	case nil:
		return kindNull
	case bool:
		return kindBool
	case float64, float32, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return kindNumber
	case string:
		return kindString
	case []any:
		return kindArray
	default:
		return kindUnknown
	}
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

var dateLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"}

func asDate(v any) (time.Time, bool) {
	s, ok := v.(string)
	if !ok {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// equalValues reports equality within a tag; arrays compare element-wise,
// in order, recursing into nested arrays.
func equalValues(a, b any) bool {
	ka, kb := kindOf(a), kindOf(b)
	if ka != kb {
		return false
	}
	switch ka {
	case kindNull:
		return true
	case kindBool:
		return a.(bool) == b.(bool)
	case kindNumber:
		na, _ := asNumber(a)
		nb, _ := asNumber(b)
		return na == nb
	case kindString:
		return a.(string) == b.(string)
	case kindArray:
		aa, ba := a.([]any), b.([]any)
		if len(aa) != len(ba) {
			return false
		}
		for i := range aa {
			if !equalValues(aa[i], ba[i]) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// compareOrdered returns (field cmp operand, comparable). Comparable means
// both are numbers, or both parse as dates.
func compareOrdered(field, operand any) (int, bool) {
	if fn, ok := asNumber(field); ok {
		if on, ok := asNumber(operand); ok {
			switch {
			case fn < on:
				return -1, true
			case fn > on:
				return 1, true
			default:
				return 0, true
			}
		}
		return 0, false
	}
	if ft, ok := asDate(field); ok {
		if ot, ok := asDate(operand); ok {
			switch {
			case ft.Before(ot):
				return -1, true
			case ft.After(ot):
				return 1, true
			default:
				return 0, true
			}
		}
	}
	return 0, false
}

// check evaluates one operator against a field value; present reports whether
// the field exists in the metadata map.
type check func(value any, present bool) bool

type fieldFilter struct {
	field  string
	checks []check
}

// Compile turns a filter spec into a predicate. A constraint is either a
// scalar (implicit eq) or an operator→operand map. Compilation fails with
// InvalidFilter on unknown operators or malformed operands; an empty spec
// compiles to a universal predicate.
func Compile(spec map[string]any) (Predicate, error) {
	if len(spec) == 0 {
		return func(map[string]any) bool { return true }, nil
	}

	filters := make([]fieldFilter, 0, len(spec))
	for field, constraint := range spec {
		ops, ok := constraint.(map[string]any)
		if !ok {
			ops = map[string]any{"eq": constraint}
		}
		ff := fieldFilter{field: field}
		for op, operand := range ops {
			c, err := compileOp(field, op, operand)
			if err != nil {
				return nil, err
			}
			ff.checks = append(ff.checks, c)
		}
		filters = append(filters, ff)
	}

	return func(meta map[string]any) bool {
		for _, ff := range filters {
			value, present := meta[ff.field]
			for _, c := range ff.checks {
				if !c(value, present) {
					return false
				}
			}
		}
		return true
	}, nil
}

func compileOp(field, op string, operand any) (check, error) {
	switch op {
	case "eq":
		return func(v any, present bool) bool {
			return present && equalValues(v, operand)
		}, nil
	case "ne":
		return func(v any, present bool) bool {
			return !present || !equalValues(v, operand)
		}, nil
	case "gt", "gte", "lt", "lte":
		if _, ok := asNumber(operand); !ok {
			if _, ok := asDate(operand); !ok {
				return nil, apperr.New(apperr.KindInvalidFilter,
					"filter %s.%s: operand must be a number or ISO date string", field, op)
			}
		}
		return func(v any, present bool) bool {
			if !present {
				return false
			}
			cmp, ordered := compareOrdered(v, operand)
			if !ordered {
				return false
			}
			switch op {
			case "gt":
				return cmp > 0
			case "gte":
				return cmp >= 0
			case "lt":
				return cmp < 0
			default:
				return cmp <= 0
			}
		}, nil
	case "contains":
		s, ok := operand.(string)
		if !ok {
			return nil, apperr.New(apperr.KindInvalidFilter,
				"filter %s.contains: operand must be a string", field)
		}
		needle := strings.ToLower(s)
		return func(v any, present bool) bool {
			if !present {
				return false
			}
			fs, ok := v.(string)
			if !ok {
				return false
			}
			return strings.Contains(strings.ToLower(fs), needle)
		}, nil
	case "in":
		list, ok := toList(operand)
		if !ok {
			return nil, apperr.New(apperr.KindInvalidFilter,
				"filter %s.in: operand must be a list", field)
		}
		return func(v any, present bool) bool {
			if !present {
				return false
			}
			for _, elem := range list {
				if equalValues(v, elem) {
					return true
				}
			}
			return false
		}, nil
	case "nin":
		list, ok := toList(operand)
		if !ok {
			return nil, apperr.New(apperr.KindInvalidFilter,
				"filter %s.nin: operand must be a list", field)
		}
		return func(v any, present bool) bool {
			if !present {
				return true
			}
			for _, elem := range list {
				if equalValues(v, elem) {
					return false
				}
			}
			return true
		}, nil
	default:
		return nil, apperr.New(apperr.KindInvalidFilter, "unknown filter operator: %s", op)
	}
}

func toList(v any) ([]any, bool) {
	switch l := v.(type) {
	case []any:
		return l, true
	case []string:
		out := make([]any, len(l))
		for i, s := range l {
			out[i] = s
		}
		return out, true
	default:
		return nil, false
	}
}
