package graph

import (
	"context"
	"fmt"
	"sort"

	"github.com/yungbote/neurobridge-graphload/internal/domain/graphmodel"
	"github.com/yungbote/neurobridge-graphload/internal/observability/runmetrics"
)

// AdhocInput carries what the post-load checks compare against.
type AdhocInput struct {
	Before runmetrics.Snapshot
	After  runmetrics.Snapshot
	Load   runmetrics.LoadMetrics
	// EmbeddingsExpected enables the missing-embedding check on chunk nodes.
	EmbeddingsExpected bool
}

// RunAdhocTests runs the post-load integrity checks once. Query failures are
// returned and reported as integrity issues; they never fail the run.
func RunAdhocTests(ctx context.Context, s Store, m *graphmodel.LoadModel, in AdhocInput) (runmetrics.AdhocTests, []error) {
	out := runmetrics.NewAdhocTests()
	var errs []error
	issue := func(format string, args ...any) {
		out.DataIntegrityIssues = append(out.DataIntegrityIssues, fmt.Sprintf(format, args...))
	}
	queryFailed := func(what string, err error) {
		errs = append(errs, fmt.Errorf("%s: %w", what, err))
		issue("check %s failed: %v", what, err)
	}

	var orphanNodes, orphanRels, dupes int64
	for _, n := range m.Nodes {
		out.OrphanNodes[n.Label] = 0
		if req := m.RequiredTypes(n.Label); len(req) > 0 {
			c, err := s.CountOrphanNodes(ctx, n.Label, req)
			if err != nil {
				queryFailed("orphan nodes "+n.Label, err)
			} else {
				out.OrphanNodes[n.Label] = c
				orphanNodes += c
			}
		}

		d, err := s.CountDuplicateIDs(ctx, NodeRef{Label: n.Label, IDProperty: n.NodeIDProperty})
		if err != nil {
			queryFailed("duplicate ids "+n.Label, err)
		} else if d > 0 {
			dupes += d
			issue("%s: %d %s values shared by more than one node", n.Label, d, n.NodeIDProperty)
		}
	}

	for _, r := range m.Relationships {
		if _, ok := out.OrphanRelationships[r.Type]; !ok {
			out.OrphanRelationships[r.Type] = 0
		}
		src, _ := m.Node(r.SourceLabel)
		tgt, _ := m.Node(r.TargetLabel)
		c, err := s.CountOrphanRelationships(ctx, RelRef{
			Type:   r.Type,
			Source: NodeRef{Label: src.Label, IDProperty: src.NodeIDProperty},
			Target: NodeRef{Label: tgt.Label, IDProperty: tgt.NodeIDProperty},
		})
		if err != nil {
			queryFailed("orphan relationships "+r.Type, err)
			continue
		}
		out.OrphanRelationships[r.Type] += c
		orphanRels += c
	}

	var missingEmbeddings int64
	if in.EmbeddingsExpected && m.Chunking != nil {
		if p, ok := m.VectorProperty(m.Chunking.NodeLabel); ok {
			c, err := s.CountMissingProperty(ctx, m.Chunking.NodeLabel, p.Name)
			if err != nil {
				queryFailed("missing embeddings", err)
			} else if c > 0 {
				missingEmbeddings = c
				issue("%s: %d nodes without %s", m.Chunking.NodeLabel, c, p.Name)
			}
		}
	}

	out.TestResults["no_orphan_nodes"] = result(orphanNodes == 0, "%d orphan nodes", orphanNodes)
	out.TestResults["no_orphan_relationships"] = result(orphanRels == 0, "%d orphan relationships", orphanRels)
	out.TestResults["unique_node_ids"] = result(dupes == 0, "%d duplicated ids", dupes)
	if in.EmbeddingsExpected {
		out.TestResults["chunks_have_embeddings"] = result(missingEmbeddings == 0, "%d chunks without embeddings", missingEmbeddings)
	}
	out.TestResults["counts_never_shrink"] = countsNeverShrink(m, in.Before, in.After)
	out.TestResults["load_reflected_in_store"] = loadReflected(m, in)
	return out, errs
}

func result(passed bool, format string, args ...any) runmetrics.TestResult {
	r := runmetrics.TestResult{Passed: passed}
	if !passed {
		r.Detail = fmt.Sprintf(format, args...)
	}
	return r
}

// countsNeverShrink holds when no label or type has fewer entries after the
// run than before. A failure points at a concurrent writer.
func countsNeverShrink(m *graphmodel.LoadModel, before, after runmetrics.Snapshot) runmetrics.TestResult {
	var shrunk []string
	for _, label := range m.Labels() {
		if after.Nodes[label] < before.Nodes[label] {
			shrunk = append(shrunk, label)
		}
	}
	for _, rt := range m.RelationshipTypes() {
		if after.Relationships[rt] < before.Relationships[rt] {
			shrunk = append(shrunk, rt)
		}
	}
	sort.Strings(shrunk)
	return result(len(shrunk) == 0, "decreased: %v", shrunk)
}

// loadReflected holds when every node and edge this run created shows up in
// the after snapshot.
func loadReflected(m *graphmodel.LoadModel, in AdhocInput) runmetrics.TestResult {
	var short []string
	for _, label := range m.Labels() {
		if in.After.Nodes[label]-in.Before.Nodes[label] < in.Load.NodesCreated[label] {
			short = append(short, label)
		}
	}
	for _, rt := range m.RelationshipTypes() {
		if in.After.Relationships[rt]-in.Before.Relationships[rt] < in.Load.RelationshipsCreated[rt] {
			short = append(short, rt)
		}
	}
	sort.Strings(short)
	return result(len(short) == 0, "created but missing after load: %v", short)
}
