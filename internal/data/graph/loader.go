package graph

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/yungbote/neurobridge-graphload/internal/domain/graphmodel"
	"github.com/yungbote/neurobridge-graphload/internal/domain/ingest"
	"github.com/yungbote/neurobridge-graphload/internal/observability/failures"
	"github.com/yungbote/neurobridge-graphload/internal/observability/runmetrics"
	"github.com/yungbote/neurobridge-graphload/internal/platform/logger"
)

const (
	FailureCoercion      = "coercion"
	FailureMissingNodeID = "missing_node_id"
)

// Loader turns one batch of source records and chunks into idempotent node
// and relationship upserts. Write failures are tracked, never returned.
type Loader struct {
	store   Store
	model   *graphmodel.LoadModel
	tracker *failures.Tracker
	log     *logger.Logger
	primary graphmodel.NodeSpec
}

func NewLoader(store Store, model *graphmodel.LoadModel, tracker *failures.Tracker, log *logger.Logger) (*Loader, error) {
	if store == nil || model == nil {
		return nil, fmt.Errorf("graph: loader needs a store and a model")
	}
	if log == nil {
		log = logger.Nop()
	}
	l := &Loader{store: store, model: model, tracker: tracker, log: log.With("component", "GraphLoader")}
	primary, ok := primaryNode(model)
	if !ok {
		return nil, fmt.Errorf("graph: model has no single-valued record label")
	}
	l.primary = primary
	return l, nil
}

// primaryNode is the label every source row must produce: the chunking parent,
// else the first single-valued, non-chunk label.
func primaryNode(m *graphmodel.LoadModel) (graphmodel.NodeSpec, bool) {
	if m.Chunking != nil {
		return m.Node(m.Chunking.ParentLabel)
	}
	for _, n := range m.Nodes {
		if !n.IsMultiValued() && !m.IsChunkLabel(n.Label) {
			return n, true
		}
	}
	return graphmodel.NodeSpec{}, false
}

// ContentID returns the primary node id of rec as chunks reference it.
func (l *Loader) ContentID(rec ingest.SourceRecord) (string, bool) {
	idp := l.primary.IDProperty()
	id, err := nodeID(idp.Kind, rec[idp.SourceColumn()])
	if err != nil || id == nil {
		return "", false
	}
	return IDKey(id), true
}

// nodeID coerces v into a node id. Blank strings are absent ids, never the
// empty-string node.
func nodeID(kind graphmodel.Kind, v any) (any, error) {
	switch t := v.(type) {
	case string:
		if strings.TrimSpace(t) == "" {
			return nil, nil
		}
	case []byte:
		if strings.TrimSpace(string(t)) == "" {
			return nil, nil
		}
	}
	return kind.Coerce(v)
}

func (l *Loader) recordID(rec ingest.SourceRecord) string {
	v := rec[l.primary.IDProperty().SourceColumn()]
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

type labelRows struct {
	rows  []NodeRow
	index map[string]int
}

func (b *labelRows) add(r NodeRow) {
	if b.index == nil {
		b.index = map[string]int{}
	}
	key := IDKey(r.ID)
	if i, ok := b.index[key]; ok {
		for k, v := range r.Props {
			b.rows[i].Props[k] = v
		}
		return
	}
	b.index[key] = len(b.rows)
	b.rows = append(b.rows, r)
}

// LoadBatch writes every node label in model order, then every relationship
// type. The returned delta counts nodes and edges that did not exist before.
func (l *Loader) LoadBatch(ctx context.Context, records []ingest.SourceRecord, chunks []ingest.ChunkRecord) runmetrics.LoadDelta {
	delta := runmetrics.NewLoadDelta()
	byLabel := map[string]*labelRows{}
	for _, n := range l.model.Nodes {
		byLabel[n.Label] = &labelRows{}
	}

	var accepted []ingest.SourceRecord
	parents := map[string]bool{}
	for _, rec := range records {
		rows, ftype, err := l.recordNodes(rec)
		if err != nil {
			l.tracker.AddRecord(failures.RecordFailure{
				RecordID:    l.recordID(rec),
				RecordData:  rec,
				Error:       err.Error(),
				FailureType: ftype,
			})
			continue
		}
		accepted = append(accepted, rec)
		for label, rs := range rows {
			for _, r := range rs {
				byLabel[label].add(r)
			}
		}
		if id, ok := l.ContentID(rec); ok {
			parents[id] = true
		}
	}
	delta.Records = int64(len(accepted))

	var keptChunks []ingest.ChunkRecord
	if l.model.Chunking != nil {
		spec, _ := l.model.Node(l.model.Chunking.NodeLabel)
		for _, c := range chunks {
			if !parents[c.ContentID] {
				continue
			}
			row, err := chunkRow(spec, c)
			if err != nil {
				l.tracker.AddNode(failures.NodeFailure{NodeLabel: spec.Label, NodeData: c.Properties(), Error: err.Error(), SourceColumn: c.Field})
				continue
			}
			byLabel[spec.Label].add(row)
			keptChunks = append(keptChunks, c)
		}
	}

	written := map[string]map[string]bool{}
	for _, n := range l.model.Nodes {
		created, ok := l.writeNodes(ctx, n, byLabel[n.Label].rows)
		written[n.Label] = ok
		delta.AddNodes(n.Label, created)
		if l.model.IsChunkLabel(n.Label) {
			delta.Chunks += created
		}
	}
	for _, c := range keptChunks {
		if len(c.Embedding) > 0 && written[l.model.Chunking.NodeLabel][IDKey(c.ChunkID)] {
			delta.Embeddings++
		}
	}

	for _, r := range l.model.Relationships {
		pairs := l.relationshipPairs(r, accepted, keptChunks)
		delta.AddRelationships(r.Type, l.writeRelationships(ctx, r, pairs))
	}
	return delta
}

// recordNodes builds the node rows of every non-chunk label for one record.
func (l *Loader) recordNodes(rec ingest.SourceRecord) (map[string][]NodeRow, string, error) {
	out := map[string][]NodeRow{}
	for _, n := range l.model.Nodes {
		if l.model.IsChunkLabel(n.Label) {
			continue
		}
		idp := n.IDProperty()
		if n.IsMultiValued() {
			ids, err := endpointValues(n, rec[n.SourceColumn])
			if err != nil {
				return nil, FailureCoercion, fmt.Errorf("%s.%s: %w", n.Label, n.NodeIDProperty, err)
			}
			for _, id := range ids {
				out[n.Label] = append(out[n.Label], NodeRow{ID: id, Props: map[string]any{idp.Name: id}})
			}
			continue
		}

		id, err := nodeID(idp.Kind, rec[idp.SourceColumn()])
		if err != nil {
			return nil, FailureCoercion, fmt.Errorf("%s.%s: %w", n.Label, idp.Name, err)
		}
		if id == nil {
			if n.Label == l.primary.Label {
				return nil, FailureMissingNodeID, fmt.Errorf("%s: missing %s (column %s)", n.Label, idp.Name, idp.SourceColumn())
			}
			continue
		}
		props := map[string]any{}
		for _, p := range n.Properties {
			raw, present := rec[p.SourceColumn()]
			if !present {
				continue
			}
			v, err := p.Kind.Coerce(raw)
			if err != nil {
				return nil, FailureCoercion, fmt.Errorf("%s.%s: %w", n.Label, p.Name, err)
			}
			if v != nil {
				props[p.Name] = v
			}
		}
		props[idp.Name] = id
		out[n.Label] = append(out[n.Label], NodeRow{ID: id, Props: props})
	}
	return out, "", nil
}

func chunkRow(spec graphmodel.NodeSpec, c ingest.ChunkRecord) (NodeRow, error) {
	raw := c.Properties()
	props := map[string]any{}
	for _, p := range spec.Properties {
		v, err := p.Kind.Coerce(raw[p.SourceColumn()])
		if err != nil {
			return NodeRow{}, fmt.Errorf("%s.%s: %w", spec.Label, p.Name, err)
		}
		if v != nil {
			props[p.Name] = v
		}
	}
	id, ok := props[spec.NodeIDProperty]
	if !ok {
		return NodeRow{}, fmt.Errorf("%s: missing %s", spec.Label, spec.NodeIDProperty)
	}
	return NodeRow{ID: id, Props: props}, nil
}

// endpointValues coerces a column value into node ids of spec. Multi-valued
// labels accept lists and delimited strings.
func endpointValues(spec graphmodel.NodeSpec, v any) ([]any, error) {
	if v == nil {
		return nil, nil
	}
	kind := spec.IDProperty().Kind
	var raws []any
	if spec.IsMultiValued() {
		switch t := v.(type) {
		case []any:
			raws = t
		case []string:
			for _, s := range t {
				raws = append(raws, s)
			}
		case string:
			for _, s := range graphmodel.SplitValues(t, spec.Delimiter) {
				raws = append(raws, s)
			}
		default:
			raws = []any{v}
		}
	} else {
		raws = []any{v}
	}
	seen := map[string]bool{}
	out := make([]any, 0, len(raws))
	for _, r := range raws {
		id, err := nodeID(kind, r)
		if err != nil {
			return nil, err
		}
		if id == nil || seen[IDKey(id)] {
			continue
		}
		seen[IDKey(id)] = true
		out = append(out, id)
	}
	return out, nil
}

func (l *Loader) writeNodes(ctx context.Context, spec graphmodel.NodeSpec, rows []NodeRow) (int64, map[string]bool) {
	ok := make(map[string]bool, len(rows))
	if len(rows) == 0 {
		return 0, ok
	}
	ref := NodeRef{Label: spec.Label, IDProperty: spec.NodeIDProperty}
	created, err := l.store.MergeNodes(ctx, ref, spec.MultipleLabels, rows)
	if err == nil {
		for _, r := range rows {
			ok[IDKey(r.ID)] = true
		}
		return created, ok
	}

	l.log.Warn("batched node write failed; retrying row by row", "label", spec.Label, "rows", len(rows), "error", err)
	created = 0
	for _, r := range rows {
		n, err := l.store.MergeNodes(ctx, ref, spec.MultipleLabels, []NodeRow{r})
		if err != nil {
			l.nodeFailed(spec, r, err)
			continue
		}
		created += n
		ok[IDKey(r.ID)] = true
	}
	return created, ok
}

func (l *Loader) nodeFailed(spec graphmodel.NodeSpec, r NodeRow, err error) {
	sourceColumn := spec.SourceColumn
	if sourceColumn == "" {
		sourceColumn = spec.IDProperty().SourceColumn()
	}
	var ce *ConstraintError
	if errors.As(err, &ce) {
		name, ctype := l.resolveConstraint(spec.Label, ce.Property)
		l.tracker.AddConstraint(failures.ConstraintViolation{
			ConstraintName: name,
			ConstraintType: ctype,
			Data:           r.Props,
			Error:          err.Error(),
		})
	}
	l.tracker.AddNode(failures.NodeFailure{
		NodeLabel:    spec.Label,
		NodeData:     r.Props,
		Error:        err.Error(),
		SourceColumn: sourceColumn,
	})
}

// resolveConstraint names the declared constraint behind a rejection on
// label.property, preferring one that covers the property.
func (l *Loader) resolveConstraint(label, property string) (string, string) {
	types := []graphmodel.ConstraintType{graphmodel.ConstraintUnique, graphmodel.ConstraintNodeKey, graphmodel.ConstraintExists}
	if property != "" {
		for _, t := range types {
			if c, ok := l.model.ConstraintFor(label, t, property); ok {
				for _, p := range c.Properties {
					if p == property {
						return c.Name, string(c.Type)
					}
				}
			}
		}
	}
	for _, t := range types {
		if c, ok := l.model.ConstraintFor(label, t, property); ok {
			return c.Name, string(c.Type)
		}
	}
	return "unknown", "UNKNOWN"
}

type pair struct {
	row RelRow
	err error
}

func (l *Loader) relationshipPairs(r graphmodel.RelationshipSpec, records []ingest.SourceRecord, chunks []ingest.ChunkRecord) []pair {
	src, _ := l.model.Node(r.SourceLabel)
	tgt, _ := l.model.Node(r.TargetLabel)
	seen := map[string]bool{}
	var out []pair
	add := func(s, t any) {
		key := IDKey(s) + "\x00" + IDKey(t)
		if seen[key] {
			return
		}
		seen[key] = true
		out = append(out, pair{row: RelRow{SourceID: s, TargetID: t}})
	}

	switch {
	case l.model.IsChunkRelationship(r):
		for _, c := range chunks {
			parentID, err := nodeID(src.IDProperty().Kind, c.ContentID)
			if err != nil || parentID == nil {
				out = append(out, pair{row: RelRow{SourceID: c.ContentID, TargetID: c.ChunkID}, err: fmt.Errorf("bad content id %q", c.ContentID)})
				continue
			}
			chunkID, _ := tgt.IDProperty().Kind.Coerce(c.ChunkID)
			add(parentID, chunkID)
		}
	default:
		for _, rec := range records {
			sources, serr := endpointValues(src, rec[r.SourceProperty])
			targets, terr := endpointValues(tgt, rec[r.TargetProperty])
			if serr != nil || terr != nil {
				out = append(out, pair{
					row: RelRow{SourceID: rec[r.SourceProperty], TargetID: rec[r.TargetProperty]},
					err: errors.Join(serr, terr),
				})
				continue
			}
			for _, s := range sources {
				for _, t := range targets {
					add(s, t)
				}
			}
		}
	}
	return out
}

func (l *Loader) relFailed(r graphmodel.RelationshipSpec, row RelRow, err error) {
	src, _ := l.model.Node(r.SourceLabel)
	tgt, _ := l.model.Node(r.TargetLabel)
	l.tracker.AddRelationship(failures.RelationshipFailure{
		RelationshipType: r.Type,
		SourceData:       map[string]any{"label": r.SourceLabel, src.NodeIDProperty: row.SourceID},
		TargetData:       map[string]any{"label": r.TargetLabel, tgt.NodeIDProperty: row.TargetID},
		Error:            err.Error(),
	})
}

// writeRelationships resolves both endpoints before writing so an edge to a
// missing node is tracked instead of silently dropped by MATCH.
func (l *Loader) writeRelationships(ctx context.Context, r graphmodel.RelationshipSpec, pairs []pair) int64 {
	if len(pairs) == 0 {
		return 0
	}
	src, _ := l.model.Node(r.SourceLabel)
	tgt, _ := l.model.Node(r.TargetLabel)
	ref := RelRef{
		Type:   r.Type,
		Source: NodeRef{Label: src.Label, IDProperty: src.NodeIDProperty},
		Target: NodeRef{Label: tgt.Label, IDProperty: tgt.NodeIDProperty},
	}

	var candidates []RelRow
	for _, p := range pairs {
		if p.err != nil {
			l.relFailed(r, p.row, p.err)
			continue
		}
		candidates = append(candidates, p.row)
	}
	if len(candidates) == 0 {
		return 0
	}

	srcFound, err := l.store.ExistingNodeIDs(ctx, ref.Source, uniqueIDs(candidates, true))
	if err == nil {
		var tgtFound map[string]bool
		tgtFound, err = l.store.ExistingNodeIDs(ctx, ref.Target, uniqueIDs(candidates, false))
		if err == nil {
			candidates = l.filterResolved(r, candidates, srcFound, tgtFound)
		}
	}
	if err != nil {
		for _, row := range candidates {
			l.relFailed(r, row, err)
		}
		return 0
	}
	if len(candidates) == 0 {
		return 0
	}

	created, err := l.store.MergeRelationships(ctx, ref, candidates)
	if err == nil {
		return created
	}
	l.log.Warn("batched relationship write failed; retrying pair by pair", "type", r.Type, "pairs", len(candidates), "error", err)
	created = 0
	for _, row := range candidates {
		n, err := l.store.MergeRelationships(ctx, ref, []RelRow{row})
		if err != nil {
			l.relFailed(r, row, err)
			continue
		}
		created += n
	}
	return created
}

func (l *Loader) filterResolved(r graphmodel.RelationshipSpec, rows []RelRow, srcFound, tgtFound map[string]bool) []RelRow {
	out := rows[:0]
	for _, row := range rows {
		switch {
		case !srcFound[IDKey(row.SourceID)]:
			l.relFailed(r, row, fmt.Errorf("source node %s not found", r.SourceLabel))
		case !tgtFound[IDKey(row.TargetID)]:
			l.relFailed(r, row, fmt.Errorf("target node %s not found", r.TargetLabel))
		default:
			out = append(out, row)
		}
	}
	return out
}

func uniqueIDs(rows []RelRow, source bool) []any {
	seen := map[string]bool{}
	out := make([]any, 0, len(rows))
	for _, r := range rows {
		id := r.TargetID
		if source {
			id = r.SourceID
		}
		if k := IDKey(id); !seen[k] {
			seen[k] = true
			out = append(out, id)
		}
	}
	return out
}
