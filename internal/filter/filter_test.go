package filter

import (
	"testing"

	"github.com/hyperjump/bekutoru/internal/apperr"
)

func mustCompile(t *testing.T, spec map[string]any) Predicate {
	t.Helper()
	pred, err := Compile(spec)
	if err != nil {
		t.Fatalf("Compile(%v): %v", spec, err)
	}
	return pred
}

func TestEmptySpecIsUniversal(t *testing.T) {
	pred := mustCompile(t, nil)
	if !pred(map[string]any{"anything": 1}) || !pred(nil) {
		t.Error("empty spec should accept everything")
	}
}

func TestOperators(t *testing.T) {
	meta := map[string]any{
		"topic":   "databases",
		"year":    float64(2021),
		"draft":   false,
		"created": "2021-06-15",
	}

	tests := []struct {
		name string
		spec map[string]any
		want bool
	}{
		{"implicit eq match", map[string]any{"topic": "databases"}, true},
		{"implicit eq mismatch", map[string]any{"topic": "networks"}, false},
		{"explicit eq", map[string]any{"year": map[string]any{"eq": float64(2021)}}, true},
		{"eq missing field", map[string]any{"absent": "x"}, false},
		{"ne mismatch passes", map[string]any{"topic": map[string]any{"ne": "networks"}}, true},
		{"ne match fails", map[string]any{"topic": map[string]any{"ne": "databases"}}, false},
		{"ne missing field passes", map[string]any{"absent": map[string]any{"ne": "x"}}, true},
		{"gt", map[string]any{"year": map[string]any{"gt": float64(2020)}}, true},
		{"gt equal fails", map[string]any{"year": map[string]any{"gt": float64(2021)}}, false},
		{"gte equal", map[string]any{"year": map[string]any{"gte": float64(2021)}}, true},
		{"lt", map[string]any{"year": map[string]any{"lt": float64(2022)}}, true},
		{"lte", map[string]any{"year": map[string]any{"lte": float64(2021)}}, true},
		{"gt missing field fails", map[string]any{"absent": map[string]any{"gt": float64(1)}}, false},
		{"gt incomparable types fails", map[string]any{"topic": map[string]any{"gt": float64(1)}}, false},
		{"date gt", map[string]any{"created": map[string]any{"gt": "2021-01-01"}}, true},
		{"date lt fails", map[string]any{"created": map[string]any{"lt": "2021-01-01"}}, false},
		{"contains", map[string]any{"topic": map[string]any{"contains": "BASE"}}, true},
		{"contains miss", map[string]any{"topic": map[string]any{"contains": "graph"}}, false},
		{"contains non-string field fails", map[string]any{"year": map[string]any{"contains": "20"}}, false},
		{"in", map[string]any{"topic": map[string]any{"in": []any{"databases", "networks"}}}, true},
		{"in miss", map[string]any{"topic": map[string]any{"in": []any{"networks"}}}, false},
		{"in missing field fails", map[string]any{"absent": map[string]any{"in": []any{"x"}}}, false},
		{"nin", map[string]any{"topic": map[string]any{"nin": []any{"networks"}}}, true},
		{"nin match fails", map[string]any{"topic": map[string]any{"nin": []any{"databases"}}}, false},
		{"nin missing field passes", map[string]any{"absent": map[string]any{"nin": []any{"x"}}}, true},
		{"bool eq", map[string]any{"draft": false}, true},
		{"cross-tag eq fails", map[string]any{"year": "2021"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pred := mustCompile(t, tt.spec)
			if got := pred(meta); got != tt.want {
				t.Errorf("predicate(%v) = %v, want %v", tt.spec, got, tt.want)
			}
		})
	}
}

func TestIntraFieldAnd(t *testing.T) {
	// {gte: a, lt: b} is the half-open interval [a, b).
	pred := mustCompile(t, map[string]any{
		"year": map[string]any{"gte": float64(2020), "lt": float64(2022)},
	})
	cases := []struct {
		year float64
		want bool
	}{
		{2019, false},
		{2020, true},
		{2021, true},
		{2022, false},
	}
	for _, c := range cases {
		if got := pred(map[string]any{"year": c.year}); got != c.want {
			t.Errorf("interval check for %v = %v, want %v", c.year, got, c.want)
		}
	}
}

func TestInterFieldAnd(t *testing.T) {
	pred := mustCompile(t, map[string]any{
		"topic": "a",
		"year":  map[string]any{"gt": float64(2000)},
	})
	if !pred(map[string]any{"topic": "a", "year": float64(2001)}) {
		t.Error("both fields matching should pass")
	}
	if pred(map[string]any{"topic": "a", "year": float64(1999)}) {
		t.Error("one failing field should fail the spec")
	}
}

func TestNinIsNegatedInWhenPresent(t *testing.T) {
	list := []any{"a", "b"}
	in := mustCompile(t, map[string]any{"f": map[string]any{"in": list}})
	nin := mustCompile(t, map[string]any{"f": map[string]any{"nin": list}})
	for _, v := range []string{"a", "b", "c"} {
		meta := map[string]any{"f": v}
		if in(meta) == nin(meta) {
			t.Errorf("nin should negate in for present field %q", v)
		}
	}
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name string
		spec map[string]any
	}{
		{"unknown operator", map[string]any{"f": map[string]any{"matches": "x"}}},
		{"in with scalar operand", map[string]any{"f": map[string]any{"in": "x"}}},
		{"nin with scalar operand", map[string]any{"f": map[string]any{"nin": float64(1)}}},
		{"contains with number operand", map[string]any{"f": map[string]any{"contains": float64(1)}}},
		{"gt with bool operand", map[string]any{"f": map[string]any{"gt": true}}},
		{"gt with non-date string", map[string]any{"f": map[string]any{"gt": "not-a-date"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(tt.spec)
			if err == nil {
				t.Fatalf("Compile(%v) should fail", tt.spec)
			}
			if apperr.KindOf(err) != apperr.KindInvalidFilter {
				t.Errorf("error kind = %v, want KindInvalidFilter", apperr.KindOf(err))
			}
		})
	}
}

func TestArrayEquality(t *testing.T) {
	pred := mustCompile(t, map[string]any{"tags": []any{"a", "b"}})
	if !pred(map[string]any{"tags": []any{"a", "b"}}) {
		t.Error("equal arrays should match")
	}
	if pred(map[string]any{"tags": []any{"b", "a"}}) {
		t.Error("differently ordered arrays should not match")
	}
}
