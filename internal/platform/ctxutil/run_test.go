package ctxutil

import (
	"context"
	"testing"
)

func TestRunData(t *testing.T) {
	if rd := GetRunData(context.Background()); rd != nil {
		t.Fatalf("empty context: want=nil got=%+v", rd)
	}
	ctx := WithRunData(context.Background(), &RunData{RunID: "r1", Query: "articles"})
	rd := GetRunData(context.WithoutCancel(ctx))
	if rd == nil || rd.RunID != "r1" || rd.Query != "articles" {
		t.Fatalf("run data must survive derived contexts: got=%+v", rd)
	}
}
