package graphmodel

import "sort"

// PropertySpec is one typed property of a node. Column names the source column
// the value is read from; it defaults to Name.
type PropertySpec struct {
	Name             string
	Column           string
	Kind             Kind
	Unique           bool
	Indexed          bool
	VectorDimension  int
	VectorSimilarity string
}

func (p PropertySpec) SourceColumn() string {
	if p.Column != "" {
		return p.Column
	}
	return p.Name
}

// NodeSpec describes one node label. When SourceColumn is set the node is
// multi-valued: every element of that column (a list, or a Delimiter separated
// string) becomes its own node keyed by NodeIDProperty.
type NodeSpec struct {
	Label          string
	NodeIDProperty string
	Properties     []PropertySpec
	MultipleLabels []string
	SourceColumn   string
	Delimiter      string
}

func (n NodeSpec) Property(name string) (PropertySpec, bool) {
	for _, p := range n.Properties {
		if p.Name == name {
			return p, true
		}
	}
	return PropertySpec{}, false
}

func (n NodeSpec) IDProperty() PropertySpec {
	p, _ := n.Property(n.NodeIDProperty)
	return p
}

func (n NodeSpec) IsMultiValued() bool { return n.SourceColumn != "" }

// RelationshipSpec joins two labels. SourceProperty/TargetProperty name the
// record columns carrying the endpoint node ids. Required marks the edge as
// structurally required for both endpoints in orphan checks.
type RelationshipSpec struct {
	Type           string
	SourceLabel    string
	TargetLabel    string
	SourceProperty string
	TargetProperty string
	Required       bool
}

type ConstraintType string

const (
	ConstraintUnique  ConstraintType = "UNIQUE"
	ConstraintNodeKey ConstraintType = "NODE_KEY"
	ConstraintExists  ConstraintType = "EXISTS"
)

type ConstraintSpec struct {
	Name       string
	Type       ConstraintType
	Label      string
	Properties []string
	Derived    bool
}

type IndexType string

const (
	IndexRange    IndexType = "RANGE"
	IndexText     IndexType = "TEXT"
	IndexFulltext IndexType = "FULLTEXT"
	IndexVector   IndexType = "VECTOR"
)

type IndexSpec struct {
	Name       string
	Type       IndexType
	Label      string
	Properties []string
	Dimension  int
	Similarity string
	Derived    bool
}

// ChunkingSpec selects the long-text fields that are split into chunk nodes and
// the relationship linking the parent node to its chunks.
type ChunkingSpec struct {
	NodeLabel    string
	ParentLabel  string
	Relationship string
	TextFields   []string
}

type QuerySpec struct {
	Name    string
	SQL     string
	SortKey string
}

// LoadModel is the parsed, validated schema for one run. It is never mutated
// after Parse returns.
type LoadModel struct {
	Nodes         []NodeSpec
	Relationships []RelationshipSpec
	Constraints   []ConstraintSpec
	Indexes       []IndexSpec
	Chunking      *ChunkingSpec
	Query         QuerySpec

	nodeIndex map[string]int
}

func (m *LoadModel) Node(label string) (NodeSpec, bool) {
	if m == nil {
		return NodeSpec{}, false
	}
	i, ok := m.nodeIndex[label]
	if !ok {
		return NodeSpec{}, false
	}
	return m.Nodes[i], true
}

func (m *LoadModel) Labels() []string {
	out := make([]string, 0, len(m.Nodes))
	for _, n := range m.Nodes {
		out = append(out, n.Label)
	}
	return out
}

func (m *LoadModel) RelationshipTypes() []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(m.Relationships))
	for _, r := range m.Relationships {
		if seen[r.Type] {
			continue
		}
		seen[r.Type] = true
		out = append(out, r.Type)
	}
	return out
}

// IsChunkLabel reports whether label is the node label produced by chunking.
func (m *LoadModel) IsChunkLabel(label string) bool {
	return m.Chunking != nil && m.Chunking.NodeLabel == label
}

// IsChunkRelationship reports whether r is the parent-to-chunk relationship.
func (m *LoadModel) IsChunkRelationship(r RelationshipSpec) bool {
	return m.Chunking != nil && r.Type == m.Chunking.Relationship &&
		r.SourceLabel == m.Chunking.ParentLabel && r.TargetLabel == m.Chunking.NodeLabel
}

// VectorProperty returns the first vector-typed property of label.
func (m *LoadModel) VectorProperty(label string) (PropertySpec, bool) {
	n, ok := m.Node(label)
	if !ok {
		return PropertySpec{}, false
	}
	for _, p := range n.Properties {
		if p.Kind == KindVector {
			return p, true
		}
	}
	return PropertySpec{}, false
}

// EmbeddingDimension is the vector dimension of the chunk label, 0 when the
// model stores no embeddings.
func (m *LoadModel) EmbeddingDimension() int {
	if m.Chunking == nil {
		return 0
	}
	p, ok := m.VectorProperty(m.Chunking.NodeLabel)
	if !ok {
		return 0
	}
	return p.VectorDimension
}

// ConstraintFor finds the constraint of the given type on label, preferring
// one that covers property.
func (m *LoadModel) ConstraintFor(label string, ctype ConstraintType, property string) (ConstraintSpec, bool) {
	var fallback *ConstraintSpec
	for i := range m.Constraints {
		c := m.Constraints[i]
		if c.Label != label || c.Type != ctype {
			continue
		}
		for _, p := range c.Properties {
			if p == property {
				return c, true
			}
		}
		if fallback == nil {
			fallback = &m.Constraints[i]
		}
	}
	if fallback != nil {
		return *fallback, true
	}
	return ConstraintSpec{}, false
}

// RequiredTypes lists the required relationship types touching label.
func (m *LoadModel) RequiredTypes(label string) []string {
	seen := map[string]bool{}
	var out []string
	for _, r := range m.Relationships {
		if !r.Required || seen[r.Type] {
			continue
		}
		if r.SourceLabel == label || r.TargetLabel == label {
			seen[r.Type] = true
			out = append(out, r.Type)
		}
	}
	sort.Strings(out)
	return out
}

// ReferencedColumns lists every source column the model reads, sorted.
func (m *LoadModel) ReferencedColumns() []string {
	seen := map[string]bool{}
	add := func(c string) {
		if c != "" {
			seen[c] = true
		}
	}
	for _, n := range m.Nodes {
		if m.IsChunkLabel(n.Label) {
			continue
		}
		if n.IsMultiValued() {
			add(n.SourceColumn)
		}
		for _, p := range n.Properties {
			if n.IsMultiValued() && p.Name == n.NodeIDProperty {
				continue
			}
			add(p.SourceColumn())
		}
	}
	for _, r := range m.Relationships {
		if m.IsChunkRelationship(r) {
			continue
		}
		add(r.SourceProperty)
		add(r.TargetProperty)
	}
	if m.Chunking != nil {
		for _, f := range m.Chunking.TextFields {
			add(f)
		}
	}
	add(m.Query.SortKey)
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
