package graphmodel

import (
	"testing"
	"time"
)

func TestKind_Coerce(t *testing.T) {
	ts := time.Date(2024, 3, 9, 10, 30, 0, 0, time.UTC)
	cases := []struct {
		kind Kind
		in   any
		want any
	}{
		{KindString, 42, "42"},
		{KindInteger, "17", int64(17)},
		{KindInteger, float64(3), int64(3)},
		{KindFloat, "2.5", 2.5},
		{KindBoolean, "true", true},
		{KindBoolean, int64(0), false},
		{KindDate, "2024-03-09T10:30:00Z", "2024-03-09"},
		{KindInteger, "", nil},
		{KindFloat, nil, nil},
	}
	for _, tc := range cases {
		got, err := tc.kind.Coerce(tc.in)
		if err != nil {
			t.Fatalf("%s(%v): unexpected error %v", tc.kind, tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("%s(%v): want=%v (%T) got=%v (%T)", tc.kind, tc.in, tc.want, tc.want, got, got)
		}
	}

	got, err := KindDateTime.Coerce("2024-03-09 10:30:00")
	if err != nil {
		t.Fatalf("datetime: %v", err)
	}
	if !got.(time.Time).Equal(ts) {
		t.Fatalf("datetime: want=%v got=%v", ts, got)
	}
}

func TestKind_CoerceErrors(t *testing.T) {
	if _, err := KindInteger.Coerce("abc"); err == nil {
		t.Fatalf("integer: expected error")
	}
	if _, err := KindInteger.Coerce(2.5); err == nil {
		t.Fatalf("integer from fractional float: expected error")
	}
	if _, err := KindDateTime.Coerce("yesterday"); err == nil {
		t.Fatalf("datetime: expected error")
	}
}

func TestKind_ListAndVector(t *testing.T) {
	got, err := KindList.Coerce("a, b,,c")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	list := got.([]string)
	if len(list) != 3 || list[0] != "a" || list[2] != "c" {
		t.Fatalf("list: got=%v", list)
	}

	vec, err := CoerceVector([]float32{0.5, 1})
	if err != nil {
		t.Fatalf("vector: %v", err)
	}
	if len(vec) != 2 || vec[0] != 0.5 {
		t.Fatalf("vector: got=%v", vec)
	}
}

func TestParseKind_Aliases(t *testing.T) {
	for raw, want := range map[string]Kind{"int": KindInteger, "BOOL": KindBoolean, "": KindString, "timestamp": KindDateTime} {
		got, ok := ParseKind(raw)
		if !ok || got != want {
			t.Fatalf("ParseKind(%q): want=%s got=%s ok=%v", raw, want, got, ok)
		}
	}
	if _, ok := ParseKind("blob"); ok {
		t.Fatalf("ParseKind(blob) should fail")
	}
}
