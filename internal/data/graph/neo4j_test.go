package graph_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/yungbote/neurobridge-graphload/internal/data/graph"
	"github.com/yungbote/neurobridge-graphload/internal/domain/graphmodel"
	"github.com/yungbote/neurobridge-graphload/internal/domain/ingest"
	"github.com/yungbote/neurobridge-graphload/internal/observability/failures"
	"github.com/yungbote/neurobridge-graphload/internal/platform/neo4jdb"
)

// Runs against a disposable database only; it writes labels prefixed with
// the test run id and removes them afterwards.
func TestNeo4jStore_Integration(t *testing.T) {
	if os.Getenv("TEST_NEO4J_URI") == "" {
		t.Skip("TEST_NEO4J_URI not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	cfg := neo4jdb.ConfigFromEnv()
	cfg.URI = os.Getenv("TEST_NEO4J_URI")
	client, err := neo4jdb.New(ctx, cfg, nil)
	if err != nil {
		t.Fatalf("neo4jdb.New: %v", err)
	}
	store, err := graph.NewNeo4jStore(client, nil)
	if err != nil {
		t.Fatalf("NewNeo4jStore: %v", err)
	}
	defer store.Close(ctx)

	suffix := fmt.Sprintf("T%d", time.Now().UnixNano())
	doc := fmt.Sprintf(`
nodes:
  - label: Post%[1]s
    node_id_property: post_id
    properties: [{name: post_id}, {name: title}]
  - label: Host%[1]s
    node_id_property: host
    properties: [{name: host}]
relationships:
  - {type: ON_%[1]s, source_label: Post%[1]s, target_label: Host%[1]s, source_property: post_id, target_property: host}
queries:
  q: {sql: "SELECT 1", sort_key: post_id}
`, suffix)
	m, err := graphmodel.ParseYAML([]byte(doc), "q")
	if err != nil {
		t.Fatalf("ParseYAML: %v", err)
	}
	postLabel, hostLabel, relType := "Post"+suffix, "Host"+suffix, "ON_"+suffix

	if errs := store.ApplySchema(ctx, m.Statements()); len(errs) > 0 {
		t.Fatalf("ApplySchema: %v", errs)
	}
	tr := failures.NewTracker(nil)
	l, err := graph.NewLoader(store, m, tr, nil)
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	recs := articlesLike(3)
	first := l.LoadBatch(ctx, recs, nil)
	second := l.LoadBatch(ctx, recs, nil)

	if first.Nodes[postLabel] != 3 || second.Nodes[postLabel] != 0 {
		t.Fatalf("created: first=%d second=%d", first.Nodes[postLabel], second.Nodes[postLabel])
	}
	n, err := store.CountRelationships(ctx, relType)
	if err != nil || n != 3 {
		t.Fatalf("CountRelationships: n=%d err=%v", n, err)
	}
	if tr.Counts().Total() != 0 {
		t.Fatalf("failures: %+v", tr.Snapshot())
	}

	for _, label := range []string{postLabel, hostLabel} {
		_, _ = neo4j.ExecuteQuery(ctx, client.Driver, "MATCH (n:`"+label+"`) DETACH DELETE n", nil, neo4j.EagerResultTransformer)
	}
}

func articlesLike(n int) []ingest.SourceRecord {
	out := make([]ingest.SourceRecord, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, ingest.SourceRecord{"post_id": fmt.Sprintf("p%d", i), "title": "t", "host": fmt.Sprintf("h%d", i)})
	}
	return out
}
