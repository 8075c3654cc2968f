package graphmodel

import (
	"bytes"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

type rawProperty struct {
	Name             string `yaml:"name"`
	Column           string `yaml:"column"`
	Type             string `yaml:"type"`
	Unique           bool   `yaml:"unique"`
	Indexed          bool   `yaml:"indexed"`
	VectorDimension  int    `yaml:"vector_dimension"`
	VectorSimilarity string `yaml:"vector_similarity"`
}

type rawNode struct {
	Label          string        `yaml:"label"`
	NodeIDProperty string        `yaml:"node_id_property"`
	Properties     []rawProperty `yaml:"properties"`
	MultipleLabels []string      `yaml:"multiple_labels"`
	SourceColumn   string        `yaml:"source_column"`
	Delimiter      string        `yaml:"delimiter"`
}

type rawRelationship struct {
	Type           string `yaml:"type"`
	SourceLabel    string `yaml:"source_label"`
	TargetLabel    string `yaml:"target_label"`
	SourceProperty string `yaml:"source_property"`
	TargetProperty string `yaml:"target_property"`
	Required       *bool  `yaml:"required"`
}

type rawConstraint struct {
	Name       string   `yaml:"name"`
	Type       string   `yaml:"type"`
	Label      string   `yaml:"label"`
	Properties []string `yaml:"properties"`
}

type rawIndex struct {
	Name       string   `yaml:"name"`
	Type       string   `yaml:"type"`
	Label      string   `yaml:"label"`
	Properties []string `yaml:"properties"`
	Dimension  int      `yaml:"dimension"`
	Similarity string   `yaml:"similarity"`
}

type rawChunking struct {
	NodeLabel    string   `yaml:"node_label"`
	ParentLabel  string   `yaml:"parent_label"`
	Relationship string   `yaml:"relationship"`
	TextFields   []string `yaml:"text_fields"`
}

type rawQuery struct {
	SQL     string `yaml:"sql"`
	SortKey string `yaml:"sort_key"`
}

type rawModel struct {
	Nodes         []rawNode           `yaml:"nodes"`
	Relationships []rawRelationship   `yaml:"relationships"`
	Constraints   []rawConstraint     `yaml:"constraints"`
	Indexes       []rawIndex          `yaml:"indexes"`
	Chunking      *rawChunking        `yaml:"chunking"`
	Queries       map[string]rawQuery `yaml:"queries"`
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

var similarities = map[string]bool{"cosine": true, "euclidean": true}

// Load reads a YAML (or JSON) model document from disk and parses it.
func Load(path string, queryID string) (*LoadModel, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, &ModelError{Reason: fmt.Sprintf("read %s: %v", path, err)}
	}
	return ParseYAML(b, queryID)
}

// ParseYAML decodes a YAML (or JSON) document and parses it.
func ParseYAML(b []byte, queryID string) (*LoadModel, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return nil, &ModelError{Reason: fmt.Sprintf("decode model document: %v", err)}
	}
	return Parse(raw, queryID)
}

// Parse converts a loosely typed schema mapping into a validated LoadModel.
// Unknown keys, unknown property types and dangling references are rejected.
func Parse(raw map[string]any, queryID string) (*LoadModel, error) {
	if len(raw) == 0 {
		return nil, &ModelError{Reason: "empty model document"}
	}
	b, err := yaml.Marshal(raw)
	if err != nil {
		return nil, &ModelError{Reason: fmt.Sprintf("encode model: %v", err)}
	}
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	var rm rawModel
	if err := dec.Decode(&rm); err != nil {
		return nil, &ModelError{Reason: fmt.Sprintf("decode model: %v", err)}
	}

	m := &LoadModel{nodeIndex: map[string]int{}}
	if len(rm.Nodes) == 0 {
		return nil, &ModelError{Reason: "model declares no nodes"}
	}
	for _, rn := range rm.Nodes {
		n, err := parseNode(rn)
		if err != nil {
			return nil, err
		}
		if _, dup := m.nodeIndex[n.Label]; dup {
			return nil, &ModelError{Label: n.Label, Reason: "duplicate label"}
		}
		m.nodeIndex[n.Label] = len(m.Nodes)
		m.Nodes = append(m.Nodes, n)
	}

	for _, rr := range rm.Relationships {
		r, err := parseRelationship(m, rr)
		if err != nil {
			return nil, err
		}
		m.Relationships = append(m.Relationships, r)
	}

	if rm.Chunking != nil {
		c, err := parseChunking(m, *rm.Chunking)
		if err != nil {
			return nil, err
		}
		m.Chunking = c
	}

	q, ok := rm.Queries[queryID]
	if !ok {
		return nil, &ModelError{Reason: fmt.Sprintf("query %q not declared", queryID)}
	}
	if strings.TrimSpace(q.SQL) == "" {
		return nil, &ModelError{Reason: fmt.Sprintf("query %q has no sql", queryID)}
	}
	if !identRe.MatchString(q.SortKey) {
		return nil, &ModelError{Reason: fmt.Sprintf("query %q: invalid sort_key %q", queryID, q.SortKey)}
	}
	m.Query = QuerySpec{Name: queryID, SQL: strings.TrimRight(strings.TrimSpace(q.SQL), ";"), SortKey: q.SortKey}

	for _, rc := range rm.Constraints {
		c, err := parseConstraint(m, rc)
		if err != nil {
			return nil, err
		}
		m.Constraints = append(m.Constraints, c)
	}
	for _, ri := range rm.Indexes {
		idx, err := parseIndex(m, ri)
		if err != nil {
			return nil, err
		}
		m.Indexes = append(m.Indexes, idx)
	}
	deriveSchema(m)
	return m, nil
}

func parseNode(rn rawNode) (NodeSpec, error) {
	if !identRe.MatchString(rn.Label) {
		return NodeSpec{}, &ModelError{Label: rn.Label, Reason: "invalid label"}
	}
	n := NodeSpec{
		Label:          rn.Label,
		NodeIDProperty: rn.NodeIDProperty,
		SourceColumn:   strings.TrimSpace(rn.SourceColumn),
		Delimiter:      rn.Delimiter,
	}
	for _, extra := range rn.MultipleLabels {
		if !identRe.MatchString(extra) {
			return NodeSpec{}, &ModelError{Label: rn.Label, Reason: fmt.Sprintf("invalid extra label %q", extra)}
		}
		if extra != rn.Label {
			n.MultipleLabels = append(n.MultipleLabels, extra)
		}
	}
	seen := map[string]bool{}
	for _, rp := range rn.Properties {
		if !identRe.MatchString(rp.Name) {
			return NodeSpec{}, &ModelError{Label: rn.Label, Property: rp.Name, Reason: "invalid property name"}
		}
		if seen[rp.Name] {
			return NodeSpec{}, &ModelError{Label: rn.Label, Property: rp.Name, Reason: "duplicate property"}
		}
		seen[rp.Name] = true
		kind, ok := ParseKind(rp.Type)
		if !ok {
			return NodeSpec{}, &ModelError{Label: rn.Label, Property: rp.Name, Reason: fmt.Sprintf("unrecognized type %q", rp.Type)}
		}
		p := PropertySpec{
			Name:    rp.Name,
			Column:  strings.TrimSpace(rp.Column),
			Kind:    kind,
			Unique:  rp.Unique,
			Indexed: rp.Indexed,
		}
		if kind == KindVector {
			if rp.VectorDimension <= 0 {
				return NodeSpec{}, &ModelError{Label: rn.Label, Property: rp.Name, Reason: "vector_dimension must be positive"}
			}
			sim := strings.ToLower(strings.TrimSpace(rp.VectorSimilarity))
			if sim == "" {
				sim = "cosine"
			}
			if !similarities[sim] {
				return NodeSpec{}, &ModelError{Label: rn.Label, Property: rp.Name, Reason: fmt.Sprintf("unsupported vector_similarity %q", rp.VectorSimilarity)}
			}
			p.VectorDimension = rp.VectorDimension
			p.VectorSimilarity = sim
		}
		n.Properties = append(n.Properties, p)
	}
	if n.NodeIDProperty == "" {
		return NodeSpec{}, &ModelError{Label: rn.Label, Reason: "node_id_property is required"}
	}
	id, ok := n.Property(n.NodeIDProperty)
	if !ok {
		return NodeSpec{}, &ModelError{Label: rn.Label, Property: n.NodeIDProperty, Reason: "node_id_property not declared among properties"}
	}
	if id.Kind == KindVector || id.Kind == KindList {
		return NodeSpec{}, &ModelError{Label: rn.Label, Property: n.NodeIDProperty, Reason: "node_id_property must be a scalar type"}
	}
	return n, nil
}

func parseRelationship(m *LoadModel, rr rawRelationship) (RelationshipSpec, error) {
	if !identRe.MatchString(rr.Type) {
		return RelationshipSpec{}, &ModelError{Relationship: rr.Type, Reason: "invalid relationship type"}
	}
	if _, ok := m.Node(rr.SourceLabel); !ok {
		return RelationshipSpec{}, &ModelError{Relationship: rr.Type, Reason: fmt.Sprintf("unknown source_label %q", rr.SourceLabel)}
	}
	if _, ok := m.Node(rr.TargetLabel); !ok {
		return RelationshipSpec{}, &ModelError{Relationship: rr.Type, Reason: fmt.Sprintf("unknown target_label %q", rr.TargetLabel)}
	}
	if rr.SourceProperty == "" || rr.TargetProperty == "" {
		return RelationshipSpec{}, &ModelError{Relationship: rr.Type, Reason: "source_property and target_property are required"}
	}
	required := true
	if rr.Required != nil {
		required = *rr.Required
	}
	return RelationshipSpec{
		Type:           rr.Type,
		SourceLabel:    rr.SourceLabel,
		TargetLabel:    rr.TargetLabel,
		SourceProperty: rr.SourceProperty,
		TargetProperty: rr.TargetProperty,
		Required:       required,
	}, nil
}

func parseChunking(m *LoadModel, rc rawChunking) (*ChunkingSpec, error) {
	if _, ok := m.Node(rc.NodeLabel); !ok {
		return nil, &ModelError{Label: rc.NodeLabel, Reason: "chunking node_label not declared"}
	}
	parent, ok := m.Node(rc.ParentLabel)
	if !ok {
		return nil, &ModelError{Label: rc.ParentLabel, Reason: "chunking parent_label not declared"}
	}
	if parent.IsMultiValued() {
		return nil, &ModelError{Label: rc.ParentLabel, Reason: "chunking parent_label cannot be multi-valued"}
	}
	if len(rc.TextFields) == 0 {
		return nil, &ModelError{Label: rc.NodeLabel, Reason: "chunking requires text_fields"}
	}
	found := false
	for _, r := range m.Relationships {
		if r.Type == rc.Relationship && r.SourceLabel == rc.ParentLabel && r.TargetLabel == rc.NodeLabel {
			found = true
			continue
		}
		if r.SourceLabel == rc.NodeLabel || r.TargetLabel == rc.NodeLabel {
			return nil, &ModelError{Relationship: r.Type, Reason: fmt.Sprintf("only the chunking relationship may touch %s", rc.NodeLabel)}
		}
	}
	if !found {
		return nil, &ModelError{Relationship: rc.Relationship, Reason: fmt.Sprintf("chunking relationship must join %s to %s", rc.ParentLabel, rc.NodeLabel)}
	}
	return &ChunkingSpec{
		NodeLabel:    rc.NodeLabel,
		ParentLabel:  rc.ParentLabel,
		Relationship: rc.Relationship,
		TextFields:   append([]string(nil), rc.TextFields...),
	}, nil
}

func parseConstraint(m *LoadModel, rc rawConstraint) (ConstraintSpec, error) {
	n, ok := m.Node(rc.Label)
	if !ok {
		return ConstraintSpec{}, &ModelError{Label: rc.Label, Reason: fmt.Sprintf("constraint %q on unknown label", rc.Name)}
	}
	ctype := ConstraintType(strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(rc.Type), " ", "_")))
	switch ctype {
	case ConstraintUnique, ConstraintNodeKey, ConstraintExists:
	case "NOT_NULL":
		ctype = ConstraintExists
	default:
		return ConstraintSpec{}, &ModelError{Label: rc.Label, Reason: fmt.Sprintf("constraint %q: unsupported type %q", rc.Name, rc.Type)}
	}
	if len(rc.Properties) == 0 {
		return ConstraintSpec{}, &ModelError{Label: rc.Label, Reason: fmt.Sprintf("constraint %q has no properties", rc.Name)}
	}
	for _, p := range rc.Properties {
		if _, ok := n.Property(p); !ok {
			return ConstraintSpec{}, &ModelError{Label: rc.Label, Property: p, Reason: fmt.Sprintf("constraint %q references undeclared property", rc.Name)}
		}
	}
	name := rc.Name
	if name == "" {
		name = derivedName(rc.Label, rc.Properties, strings.ToLower(string(ctype)))
	}
	if !identRe.MatchString(name) {
		return ConstraintSpec{}, &ModelError{Label: rc.Label, Reason: fmt.Sprintf("invalid constraint name %q", name)}
	}
	return ConstraintSpec{Name: name, Type: ctype, Label: rc.Label, Properties: append([]string(nil), rc.Properties...)}, nil
}

func parseIndex(m *LoadModel, ri rawIndex) (IndexSpec, error) {
	n, ok := m.Node(ri.Label)
	if !ok {
		return IndexSpec{}, &ModelError{Label: ri.Label, Reason: fmt.Sprintf("index %q on unknown label", ri.Name)}
	}
	itype := IndexType(strings.ToUpper(strings.TrimSpace(ri.Type)))
	if itype == "" {
		itype = IndexRange
	}
	switch itype {
	case IndexRange, IndexText, IndexFulltext, IndexVector:
	default:
		return IndexSpec{}, &ModelError{Label: ri.Label, Reason: fmt.Sprintf("index %q: unsupported type %q", ri.Name, ri.Type)}
	}
	if len(ri.Properties) == 0 {
		return IndexSpec{}, &ModelError{Label: ri.Label, Reason: fmt.Sprintf("index %q has no properties", ri.Name)}
	}
	for _, p := range ri.Properties {
		if _, ok := n.Property(p); !ok {
			return IndexSpec{}, &ModelError{Label: ri.Label, Property: p, Reason: fmt.Sprintf("index %q references undeclared property", ri.Name)}
		}
	}
	idx := IndexSpec{Type: itype, Label: ri.Label, Properties: append([]string(nil), ri.Properties...)}
	if itype == IndexVector {
		prop, _ := n.Property(ri.Properties[0])
		if prop.Kind != KindVector {
			return IndexSpec{}, &ModelError{Label: ri.Label, Property: prop.Name, Reason: "vector index on non-vector property"}
		}
		idx.Dimension = ri.Dimension
		if idx.Dimension == 0 {
			idx.Dimension = prop.VectorDimension
		}
		idx.Similarity = strings.ToLower(strings.TrimSpace(ri.Similarity))
		if idx.Similarity == "" {
			idx.Similarity = prop.VectorSimilarity
		}
		if !similarities[idx.Similarity] {
			return IndexSpec{}, &ModelError{Label: ri.Label, Property: prop.Name, Reason: fmt.Sprintf("unsupported similarity %q", ri.Similarity)}
		}
	}
	idx.Name = ri.Name
	if idx.Name == "" {
		idx.Name = derivedName(ri.Label, ri.Properties, strings.ToLower(string(itype)))
	}
	if !identRe.MatchString(idx.Name) {
		return IndexSpec{}, &ModelError{Label: ri.Label, Reason: fmt.Sprintf("invalid index name %q", idx.Name)}
	}
	return idx, nil
}

// deriveSchema adds the constraints and indexes implied by property flags:
// a UNIQUE constraint per node id and unique property, a RANGE index per
// indexed property and a VECTOR index per vector property.
func deriveSchema(m *LoadModel) {
	for _, n := range m.Nodes {
		for _, p := range n.Properties {
			if p.Name == n.NodeIDProperty || p.Unique {
				if !hasConstraint(m, n.Label, p.Name, ConstraintUnique) {
					m.Constraints = append(m.Constraints, ConstraintSpec{
						Name:       derivedName(n.Label, []string{p.Name}, "unique"),
						Type:       ConstraintUnique,
						Label:      n.Label,
						Properties: []string{p.Name},
						Derived:    true,
					})
				}
			}
			if p.Indexed && p.Kind != KindVector && !hasIndex(m, n.Label, p.Name, IndexRange) {
				m.Indexes = append(m.Indexes, IndexSpec{
					Name:       derivedName(n.Label, []string{p.Name}, "idx"),
					Type:       IndexRange,
					Label:      n.Label,
					Properties: []string{p.Name},
					Derived:    true,
				})
			}
			if p.Kind == KindVector && !hasIndex(m, n.Label, p.Name, IndexVector) {
				m.Indexes = append(m.Indexes, IndexSpec{
					Name:       derivedName(n.Label, []string{p.Name}, "vector"),
					Type:       IndexVector,
					Label:      n.Label,
					Properties: []string{p.Name},
					Dimension:  p.VectorDimension,
					Similarity: p.VectorSimilarity,
					Derived:    true,
				})
			}
		}
	}
}

func hasConstraint(m *LoadModel, label, prop string, ctype ConstraintType) bool {
	for _, c := range m.Constraints {
		if c.Label == label && c.Type == ctype && len(c.Properties) == 1 && c.Properties[0] == prop {
			return true
		}
	}
	return false
}

func hasIndex(m *LoadModel, label, prop string, itype IndexType) bool {
	for _, idx := range m.Indexes {
		if idx.Label == label && idx.Type == itype && len(idx.Properties) == 1 && idx.Properties[0] == prop {
			return true
		}
	}
	return false
}

func derivedName(label string, props []string, suffix string) string {
	return strings.ToLower(label + "_" + strings.Join(props, "_") + "_" + suffix)
}
