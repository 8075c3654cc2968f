package graph_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/yungbote/neurobridge-graphload/internal/data/graph"
	"github.com/yungbote/neurobridge-graphload/internal/data/graph/graphtest"
	"github.com/yungbote/neurobridge-graphload/internal/domain/graphmodel"
	"github.com/yungbote/neurobridge-graphload/internal/domain/ingest"
	"github.com/yungbote/neurobridge-graphload/internal/ingestion/chunker"
	"github.com/yungbote/neurobridge-graphload/internal/observability/failures"
	"github.com/yungbote/neurobridge-graphload/internal/observability/runmetrics"
)

const articlesModel = `
nodes:
  - label: Article
    node_id_property: article_id
    multiple_labels: [Content]
    properties:
      - {name: article_id}
      - {name: title}
      - {name: word_count, type: integer}
  - label: Website
    node_id_property: url
    properties:
      - {name: url, column: website_url}
      - {name: domain, unique: true}
  - label: Tag
    node_id_property: name
    source_column: tags
    delimiter: ","
    properties:
      - {name: name}
  - label: Chunk
    node_id_property: chunk_id
    properties:
      - {name: chunk_id}
      - {name: chunk_text}
      - {name: chunk_position, type: integer}
      - {name: chunk_order, type: integer}
      - {name: content_id}
      - {name: embedding, type: vector, vector_dimension: 4}
relationships:
  - {type: HAS_CHUNK, source_label: Article, target_label: Chunk, source_property: article_id, target_property: chunk_id}
  - {type: PUBLISHED_ON, source_label: Article, target_label: Website, source_property: article_id, target_property: website_url}
  - {type: TAGGED_WITH, source_label: Article, target_label: Tag, source_property: article_id, target_property: tags, required: false}
chunking: {node_label: Chunk, parent_label: Article, relationship: HAS_CHUNK, text_fields: [content]}
queries:
  articles: {sql: "SELECT * FROM articles", sort_key: article_id}
`

type fixture struct {
	model   *graphmodel.LoadModel
	store   *graphtest.Store
	tracker *failures.Tracker
	loader  *graph.Loader
	gen     *chunker.Generator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	m, err := graphmodel.ParseYAML([]byte(articlesModel), "articles")
	if err != nil {
		t.Fatalf("ParseYAML: %v", err)
	}
	store := graphtest.New()
	tr := failures.NewTracker(nil)
	l, err := graph.NewLoader(store, m, tr, nil)
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	g, err := chunker.New(chunker.Config{Size: 20, Overlap: 5}, nil, nil)
	if err != nil {
		t.Fatalf("chunker.New: %v", err)
	}
	return &fixture{model: m, store: store, tracker: tr, loader: l, gen: g}
}

func (f *fixture) load(t *testing.T, recs []ingest.SourceRecord) runmetrics.LoadDelta {
	t.Helper()
	res := f.gen.Generate(context.Background(), recs, f.model.Chunking.TextFields, f.loader.ContentID)
	return f.loader.LoadBatch(context.Background(), recs, res.Chunks)
}

func (f *fixture) count(t *testing.T) runmetrics.Snapshot {
	t.Helper()
	snap, errs := runmetrics.TakeSnapshot(context.Background(), f.store, f.model)
	if len(errs) > 0 {
		t.Fatalf("snapshot: %v", errs)
	}
	return snap
}

func articles(n int) []ingest.SourceRecord {
	out := make([]ingest.SourceRecord, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, ingest.SourceRecord{
			"article_id":  fmt.Sprintf("a%d", i),
			"title":       fmt.Sprintf("Article %d", i),
			"word_count":  int64(100 + i),
			"website_url": fmt.Sprintf("https://site%d.example", i),
			"domain":      fmt.Sprintf("site%d.example", i),
			"tags":        "go, graphs",
			"content":     "A short body of text that spans a few chunks.",
		})
	}
	return out
}

func TestLoadBatch_IsIdempotent(t *testing.T) {
	f := newFixture(t)
	recs := articles(3)

	first := f.load(t, recs)
	once := f.count(t)
	second := f.load(t, recs)
	twice := f.count(t)

	for label, n := range once.Nodes {
		if twice.Nodes[label] != n {
			t.Fatalf("%s: once=%d twice=%d", label, n, twice.Nodes[label])
		}
	}
	for rt, n := range once.Relationships {
		if twice.Relationships[rt] != n {
			t.Fatalf("%s: once=%d twice=%d", rt, n, twice.Relationships[rt])
		}
	}
	if once.Nodes["Article"] != 3 || once.Nodes["Tag"] != 2 || once.Nodes["Website"] != 3 {
		t.Fatalf("node counts: %+v", once.Nodes)
	}
	if once.Relationships["TAGGED_WITH"] != 6 || once.Relationships["HAS_CHUNK"] != once.Nodes["Chunk"] {
		t.Fatalf("relationship counts: %+v", once.Relationships)
	}
	if first.Nodes["Article"] != 3 || second.Nodes["Article"] != 0 {
		t.Fatalf("created: first=%d second=%d", first.Nodes["Article"], second.Nodes["Article"])
	}
	if first.Chunks != once.Nodes["Chunk"] {
		t.Fatalf("chunks_created: want=%d got=%d", once.Nodes["Chunk"], first.Chunks)
	}
	if f.tracker.Counts().Total() != 0 {
		t.Fatalf("unexpected failures: %+v", f.tracker.Snapshot())
	}
}

func TestLoadBatch_DuplicateKeyRejectionIsIsolated(t *testing.T) {
	f := newFixture(t)
	f.store.Unique["Website"] = []string{"domain"}

	recs := articles(4)
	recs[2]["domain"] = "site0.example"

	f.load(t, recs)

	c := f.tracker.Counts()
	if c.Node != 1 || c.Constraint != 1 {
		t.Fatalf("failures: want node=1 constraint=1 got=%+v", c)
	}
	snap := f.count(t)
	if snap.Nodes["Website"] != 3 || snap.Nodes["Article"] != 4 {
		t.Fatalf("other nodes must still be written: %+v", snap.Nodes)
	}
	if snap.Relationships["PUBLISHED_ON"] != 3 {
		t.Fatalf("PUBLISHED_ON: want=3 got=%d", snap.Relationships["PUBLISHED_ON"])
	}
	if snap.Relationships["TAGGED_WITH"] != 8 {
		t.Fatalf("later relationships must still be written: TAGGED_WITH=%d", snap.Relationships["TAGGED_WITH"])
	}

	v := f.tracker.Snapshot().ConstraintViolations[0]
	if v.ConstraintName != "website_domain_unique" || v.ConstraintType != "UNIQUE" {
		t.Fatalf("constraint: %+v", v)
	}
}

func TestLoadBatch_MissingTargetIsRelationshipFailure(t *testing.T) {
	f := newFixture(t)
	f.store.Reject = func(label string, row graph.NodeRow) error {
		if label == "Website" && row.ID == "https://site1.example" {
			return errors.New("write rejected")
		}
		return nil
	}

	f.load(t, articles(3))

	snap := f.tracker.Snapshot()
	if len(snap.NodeFailures) != 1 || snap.NodeFailures[0].SourceColumn != "website_url" {
		t.Fatalf("node failures: %+v", snap.NodeFailures)
	}
	if len(snap.RelationshipFailures) != 1 {
		t.Fatalf("relationship failures: want=1 got=%d", len(snap.RelationshipFailures))
	}
	rf := snap.RelationshipFailures[0]
	if rf.RelationshipType != "PUBLISHED_ON" || rf.TargetData["url"] != "https://site1.example" {
		t.Fatalf("relationship failure: %+v", rf)
	}
	if got := f.count(t).Relationships["PUBLISHED_ON"]; got != 2 {
		t.Fatalf("PUBLISHED_ON must not be created for the missing target: got=%d", got)
	}
}

func TestLoadBatch_RecordFailures(t *testing.T) {
	f := newFixture(t)
	recs := articles(3)
	recs[0]["article_id"] = nil
	recs[1]["word_count"] = "many"

	delta := f.load(t, recs)

	snap := f.tracker.Snapshot()
	if len(snap.RecordFailures) != 2 {
		t.Fatalf("record failures: want=2 got=%d", len(snap.RecordFailures))
	}
	types := map[string]bool{}
	for _, rf := range snap.RecordFailures {
		types[rf.FailureType] = true
	}
	if !types[graph.FailureMissingNodeID] || !types[graph.FailureCoercion] {
		t.Fatalf("failure types: %v", types)
	}
	if delta.Records != 1 || f.count(t).Nodes["Article"] != 1 {
		t.Fatalf("only the valid record should load: records=%d", delta.Records)
	}
}

func TestLoadBatch_BlankIDsAreAbsent(t *testing.T) {
	f := newFixture(t)
	recs := articles(4)
	for i := 0; i < 3; i++ {
		recs[i]["website_url"] = ""
	}
	recs[1]["tags"] = "go, ,graphs"
	recs[3]["article_id"] = "  "

	delta := f.load(t, recs)

	snap := f.count(t)
	if snap.Nodes["Website"] != 0 {
		t.Fatalf("Website: want=0 got=%d", snap.Nodes["Website"])
	}
	if snap.Relationships["PUBLISHED_ON"] != 0 {
		t.Fatalf("PUBLISHED_ON: want=0 got=%d", snap.Relationships["PUBLISHED_ON"])
	}
	if snap.Nodes["Tag"] != 2 {
		t.Fatalf("Tag: want=2 got=%d", snap.Nodes["Tag"])
	}
	if snap.Nodes["Article"] != 3 || delta.Records != 3 {
		t.Fatalf("articles: want=3 got nodes=%d records=%d", snap.Nodes["Article"], delta.Records)
	}
	if _, ok := f.store.Node("Article", ""); ok {
		t.Fatalf("blank article id must not become a node")
	}

	fs := f.tracker.Snapshot()
	if len(fs.RecordFailures) != 1 || fs.RecordFailures[0].FailureType != graph.FailureMissingNodeID {
		t.Fatalf("record failures: %+v", fs.RecordFailures)
	}
	if len(fs.RelationshipFailures) != 0 || len(fs.NodeFailures) != 0 {
		t.Fatalf("blank ids must not fail writes: %+v", fs)
	}
}

func TestLoadBatch_NullPropertiesAreOmitted(t *testing.T) {
	f := newFixture(t)
	recs := articles(1)
	recs[0]["title"] = nil
	delete(recs[0], "word_count")

	f.load(t, recs)

	props, ok := f.store.Node("Article", "a0")
	if !ok {
		t.Fatalf("article not written")
	}
	if _, has := props["title"]; has {
		t.Fatalf("null title must not be written: %v", props)
	}
	if _, has := props["word_count"]; has {
		t.Fatalf("absent word_count must not be written: %v", props)
	}
}

func TestLoadBatch_ChunkOrderAndEmbeddingsCount(t *testing.T) {
	f := newFixture(t)
	recs := articles(1)
	res := f.gen.Generate(context.Background(), recs, []string{"content"}, f.loader.ContentID)
	for i := range res.Chunks {
		res.Chunks[i].Embedding = []float32{1, 0, 0, 0}
	}
	delta := f.loader.LoadBatch(context.Background(), recs, res.Chunks)

	if delta.Embeddings != int64(len(res.Chunks)) {
		t.Fatalf("embeddings: want=%d got=%d", len(res.Chunks), delta.Embeddings)
	}
	props, _ := f.store.Node("Chunk", res.Chunks[1].ChunkID)
	if props["chunk_order"] != int64(1) || props["content_id"] != "a0" {
		t.Fatalf("chunk props: %v", props)
	}
	if _, ok := props["embedding"].([]float64); !ok {
		t.Fatalf("embedding should be stored as a float vector: %T", props["embedding"])
	}
}

func TestRunAdhocTests(t *testing.T) {
	f := newFixture(t)
	before := f.count(t)
	delta := f.load(t, articles(2))
	after := f.count(t)

	state := runmetrics.NewState("run", "articles")
	state.MergeLoad(delta)

	res, errs := graph.RunAdhocTests(context.Background(), f.store, f.model, graph.AdhocInput{
		Before: before, After: after, Load: state.Report().LoadMetrics,
	})
	if len(errs) != 0 {
		t.Fatalf("adhoc errors: %v", errs)
	}
	for label, n := range res.OrphanNodes {
		if n != 0 {
			t.Fatalf("orphan %s: %d", label, n)
		}
	}
	for name, r := range res.TestResults {
		if !r.Passed {
			t.Fatalf("%s failed: %s", name, r.Detail)
		}
	}

	f.store.RemoveProperty("Website", "https://site0.example", "url")
	res, _ = graph.RunAdhocTests(context.Background(), f.store, f.model, graph.AdhocInput{Before: before, After: after})
	if res.OrphanRelationships["PUBLISHED_ON"] != 1 {
		t.Fatalf("orphan PUBLISHED_ON: want=1 got=%d", res.OrphanRelationships["PUBLISHED_ON"])
	}
	if res.TestResults["no_orphan_relationships"].Passed {
		t.Fatalf("no_orphan_relationships should fail")
	}
}

func TestRunAdhocTests_OrphanNodes(t *testing.T) {
	f := newFixture(t)
	ref := graph.NodeRef{Label: "Website", IDProperty: "url"}
	if _, err := f.store.MergeNodes(context.Background(), ref, nil, []graph.NodeRow{{ID: "https://lonely.example", Props: map[string]any{"url": "https://lonely.example"}}}); err != nil {
		t.Fatalf("MergeNodes: %v", err)
	}
	res, _ := graph.RunAdhocTests(context.Background(), f.store, f.model, graph.AdhocInput{})
	if res.OrphanNodes["Website"] != 1 {
		t.Fatalf("orphan Website: want=1 got=%d", res.OrphanNodes["Website"])
	}
	if res.OrphanNodes["Tag"] != 0 {
		t.Fatalf("Tag has no required relationship types")
	}
}
