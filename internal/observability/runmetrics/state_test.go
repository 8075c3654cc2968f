package runmetrics

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/yungbote/neurobridge-graphload/internal/domain/graphmodel"
)

const testModel = `
nodes:
  - label: Article
    node_id_property: id
    properties: [{name: id}]
  - label: Chunk
    node_id_property: chunk_id
    properties: [{name: chunk_id}]
relationships:
  - {type: HAS_CHUNK, source_label: Article, target_label: Chunk, source_property: id, target_property: chunk_id}
queries:
  q: {sql: "SELECT id FROM articles", sort_key: id}
`

func mustModel(t *testing.T) *graphmodel.LoadModel {
	t.Helper()
	m, err := graphmodel.ParseYAML([]byte(testModel), "q")
	if err != nil {
		t.Fatalf("ParseYAML: %v", err)
	}
	return m
}

func TestState_MergeLoadAccumulates(t *testing.T) {
	s := NewState("run", "q")

	b1 := NewLoadDelta()
	b1.AddNodes("Article", 5)
	b1.AddNodes("Chunk", 25)
	b1.Chunks = 25
	s.MergeLoad(b1)

	b2 := NewLoadDelta()
	b2.AddNodes("Article", 3)
	b2.AddNodes("Chunk", 15)
	b2.Chunks = 15
	b2.Embeddings = -4
	s.MergeLoad(b2)

	r := s.Report()
	if r.LoadMetrics.NodesCreated["Article"] != 8 {
		t.Fatalf("Article: want=8 got=%d", r.LoadMetrics.NodesCreated["Article"])
	}
	if r.LoadMetrics.NodesCreated["Chunk"] != 40 {
		t.Fatalf("Chunk: want=40 got=%d", r.LoadMetrics.NodesCreated["Chunk"])
	}
	if r.LoadMetrics.ChunksCreated != 40 {
		t.Fatalf("chunks_created: want=40 got=%d", r.LoadMetrics.ChunksCreated)
	}
	if r.LoadMetrics.EmbeddingsGenerated != 0 {
		t.Fatalf("embeddings must never decrease: got=%d", r.LoadMetrics.EmbeddingsGenerated)
	}
}

func TestState_EnsureKeysSeedsZeros(t *testing.T) {
	s := NewState("run", "q")
	s.EnsureKeys(mustModel(t))
	r := s.Report()

	for _, label := range []string{"Article", "Chunk"} {
		for name, mp := range map[string]map[string]int64{
			"nodes_created":        r.LoadMetrics.NodesCreated,
			"nodes_existing_count": r.BeforeMetrics.NodesExistingCount,
			"nodes_current":        r.AfterMetrics.NodesCurrent,
			"orphan_nodes":         r.AdhocTests.OrphanNodes,
		} {
			if v, ok := mp[label]; !ok || v != 0 {
				t.Fatalf("%s[%s]: want present zero, got=%d ok=%v", name, label, v, ok)
			}
		}
	}
	if _, ok := r.AfterMetrics.RelationshipsCurrent["HAS_CHUNK"]; !ok {
		t.Fatalf("HAS_CHUNK missing from relationships_current")
	}
}

func TestState_SnapshotsAreTakenOnce(t *testing.T) {
	s := NewState("run", "q")
	if err := s.SetBefore(Snapshot{Nodes: map[string]int64{"Article": 2}}); err != nil {
		t.Fatalf("SetBefore: %v", err)
	}
	if err := s.SetBefore(Snapshot{Nodes: map[string]int64{"Article": 9}}); err == nil {
		t.Fatalf("second SetBefore should fail")
	}
	if got := s.Report().BeforeMetrics.NodesExistingCount["Article"]; got != 2 {
		t.Fatalf("before must not be mutated: got=%d", got)
	}
}

func TestState_ReportIsACopy(t *testing.T) {
	s := NewState("run", "q")
	r := s.Report()
	r.LoadMetrics.NodesCreated["X"] = 99
	if _, ok := s.Report().LoadMetrics.NodesCreated["X"]; ok {
		t.Fatalf("Report must return a copy")
	}
}

type fakeCounter struct {
	nodes map[string]int64
	fail  string
}

func (f fakeCounter) CountNodes(_ context.Context, label string) (int64, error) {
	if label == f.fail {
		return 0, errors.New("boom")
	}
	return f.nodes[label], nil
}

func (f fakeCounter) CountRelationships(context.Context, string) (int64, error) { return 7, nil }

func TestTakeSnapshot(t *testing.T) {
	snap, errs := TakeSnapshot(context.Background(), fakeCounter{nodes: map[string]int64{"Article": 3}, fail: "Chunk"}, mustModel(t))
	if len(errs) != 1 {
		t.Fatalf("errs: want=1 got=%d", len(errs))
	}
	if snap.Nodes["Article"] != 3 || snap.Relationships["HAS_CHUNK"] != 7 {
		t.Fatalf("snapshot: %+v", snap)
	}
}

func TestWriteTextfile(t *testing.T) {
	s := NewState("run", "q")
	d := NewLoadDelta()
	d.AddNodes("Article", 4)
	s.MergeLoad(d)
	s.Finish("completed")

	path := filepath.Join(t.TempDir(), "graphload.prom")
	if err := WriteTextfile(path, s.Report(), map[string]int{"node": 1}); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	text := string(b)
	if !strings.Contains(text, `graphload_nodes_loaded{label="Article"} 4`) {
		t.Fatalf("textfile missing nodes gauge:\n%s", text)
	}
	if !strings.Contains(text, `graphload_failures{kind="node"} 1`) {
		t.Fatalf("textfile missing failures gauge:\n%s", text)
	}
}
