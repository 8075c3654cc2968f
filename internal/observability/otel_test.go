package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/yungbote/neurobridge-graphload/internal/platform/ctxutil"
)

func TestParseHeaders(t *testing.T) {
	got := ParseHeaders(" api-key = abc ,broken, =x,team=graph")
	if len(got) != 2 || got["api-key"] != "abc" || got["team"] != "graph" {
		t.Fatalf("headers: got=%v", got)
	}
	if ParseHeaders("") != nil {
		t.Fatalf("empty headers should be nil")
	}
}

func TestClampRatio(t *testing.T) {
	for in, want := range map[float64]float64{0: 1, -1: 1, 0.25: 0.25, 3: 1} {
		if got := clampRatio(in); got != want {
			t.Fatalf("clampRatio(%v): want=%v got=%v", in, want, got)
		}
	}
}

func TestInitOTelDisabledIsNoop(t *testing.T) {
	shutdown := InitOTel(context.Background(), nil, OtelConfig{})
	if shutdown == nil {
		t.Fatalf("shutdown must never be nil")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	_, span := StartSpan(context.Background(), "noop")
	EndSpan(span, errors.New("boom"))
}

func TestRunAttributes(t *testing.T) {
	if attrs := runAttributes(context.Background()); len(attrs) != 0 {
		t.Fatalf("no run data: want=0 attrs got=%d", len(attrs))
	}
	ctx := ctxutil.WithRunData(context.Background(), &ctxutil.RunData{RunID: "r-1", Query: "articles"})
	attrs := runAttributes(ctx)
	if len(attrs) != 2 {
		t.Fatalf("attrs: want=2 got=%d", len(attrs))
	}
	if attrs[0].Value.AsString() != "r-1" || attrs[1].Value.AsString() != "articles" {
		t.Fatalf("attrs: got=%v", attrs)
	}
}
