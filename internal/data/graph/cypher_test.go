package graph

import (
	"errors"
	"strings"
	"testing"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

func TestMergeNodesCypher(t *testing.T) {
	got := mergeNodesCypher(NodeRef{Label: "Article", IDProperty: "article_id"}, []string{"Content"})
	want := "UNWIND $rows AS row\n" +
		"MERGE (n:`Article` {`article_id`: row.id})\n" +
		"SET n += row.props\n" +
		"SET n:`Content`"
	if got != want {
		t.Fatalf("cypher:\nwant=%s\ngot=%s", want, got)
	}
}

func TestMergeRelationshipsCypherMatchesBothEndpoints(t *testing.T) {
	got := mergeRelationshipsCypher(RelRef{
		Type:   "PUBLISHED_ON",
		Source: NodeRef{Label: "Article", IDProperty: "article_id"},
		Target: NodeRef{Label: "Website", IDProperty: "url"},
	})
	for _, part := range []string{
		"MATCH (a:`Article` {`article_id`: row.source})",
		"MATCH (b:`Website` {`url`: row.target})",
		"MERGE (a)-[r:`PUBLISHED_ON`]->(b)",
	} {
		if !strings.Contains(got, part) {
			t.Fatalf("missing %q in:\n%s", part, got)
		}
	}
	if strings.Contains(got, "CREATE") {
		t.Fatalf("relationship writes must never CREATE")
	}
}

func TestOrphanNodesCypher(t *testing.T) {
	got := orphanNodesCypher("Article", []string{"HAS_CHUNK", "PUBLISHED_ON"})
	if !strings.Contains(got, "NOT EXISTS { MATCH (n)-[:`HAS_CHUNK`|`PUBLISHED_ON`]-() }") {
		t.Fatalf("orphan cypher: %s", got)
	}
}

func TestQuoteEscapesBackticks(t *testing.T) {
	if got := quote("we`ird"); got != "`we``ird`" {
		t.Fatalf("quote: got=%s", got)
	}
}

func TestClassify(t *testing.T) {
	nerr := &neo4j.Neo4jError{
		Code: constraintFailedCode,
		Msg:  "Node(12) already exists with label `Article` and property `article_id` = 'a1'",
	}
	err := classify("Article", nerr)
	var ce *ConstraintError
	if !errors.As(err, &ce) {
		t.Fatalf("want ConstraintError, got %T", err)
	}
	if ce.Property != "article_id" || !errors.Is(err, ErrConstraintViolation) {
		t.Fatalf("constraint error: %+v", ce)
	}

	other := errors.New("connection reset")
	if classify("Article", other) != other {
		t.Fatalf("non-constraint errors pass through")
	}
}

func TestDriverPropsConvertsFloat32Vectors(t *testing.T) {
	out := driverProps(map[string]any{"embedding": []float32{0.5, 1}, "title": "x"})
	if v, ok := out["embedding"].([]float64); !ok || v[0] != 0.5 {
		t.Fatalf("embedding: got=%T %v", out["embedding"], out["embedding"])
	}
}
