// Package graphtest provides an in-memory graph.Store for tests.
package graphtest

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/yungbote/neurobridge-graphload/internal/data/graph"
)

type node struct {
	labels map[string]bool
	props  map[string]any
}

type edge struct {
	relType string
	source  *node
	target  *node
}

// Store keeps nodes per (label, id) and edges per (type, source, target).
// Unique declares extra unique properties per label; Reject lets a test fail
// chosen node writes.
type Store struct {
	mu     sync.Mutex
	nodes  map[string]map[string]*node
	edges  map[string]*edge
	Unique map[string][]string
	Reject func(label string, row graph.NodeRow) error

	Statements []string
	Closed     bool
}

func New() *Store {
	return &Store{nodes: map[string]map[string]*node{}, edges: map[string]*edge{}, Unique: map[string][]string{}}
}

func (s *Store) ApplySchema(_ context.Context, statements []string) []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Statements = append(s.Statements, statements...)
	return nil
}

// MergeNodes applies rows in one all-or-nothing step, like a transaction.
func (s *Store) MergeNodes(_ context.Context, ref graph.NodeRef, extraLabels []string, rows []graph.NodeRow) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending := map[string]map[string]string{}
	for _, r := range rows {
		if s.Reject != nil {
			if err := s.Reject(ref.Label, r); err != nil {
				return 0, err
			}
		}
		if err := s.checkUnique(ref, r, pending); err != nil {
			return 0, err
		}
	}

	byID := s.nodes[ref.Label]
	if byID == nil {
		byID = map[string]*node{}
		s.nodes[ref.Label] = byID
	}
	var created int64
	for _, r := range rows {
		key := graph.IDKey(r.ID)
		n, ok := byID[key]
		if !ok {
			n = &node{labels: map[string]bool{ref.Label: true}, props: map[string]any{ref.IDProperty: r.ID}}
			byID[key] = n
			created++
		}
		for k, v := range r.Props {
			n.props[k] = v
		}
		for _, l := range extraLabels {
			n.labels[l] = true
		}
	}
	return created, nil
}

// checkUnique rejects r when another node, stored or earlier in the same
// call, already holds one of its unique values.
func (s *Store) checkUnique(ref graph.NodeRef, r graph.NodeRow, pending map[string]map[string]string) error {
	self := graph.IDKey(r.ID)
	for _, prop := range s.Unique[ref.Label] {
		v, ok := r.Props[prop]
		if !ok || v == nil {
			continue
		}
		vk := graph.IDKey(v)
		taken := false
		if owner, ok := pending[prop][vk]; ok && owner != self {
			taken = true
		}
		for key, n := range s.nodes[ref.Label] {
			if key == self || taken {
				continue
			}
			if other, ok := n.props[prop]; ok && graph.IDKey(other) == vk {
				taken = true
			}
		}
		if taken {
			return &graph.ConstraintError{
				Label:    ref.Label,
				Property: prop,
				Err:      fmt.Errorf("node already exists with label `%s` and property `%s` = %v", ref.Label, prop, v),
			}
		}
		if pending[prop] == nil {
			pending[prop] = map[string]string{}
		}
		pending[prop][vk] = self
	}
	return nil
}

func (s *Store) ExistingNodeIDs(_ context.Context, ref graph.NodeRef, ids []any) (map[string]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[string]bool{}
	for _, id := range ids {
		key := graph.IDKey(id)
		if n, ok := s.nodes[ref.Label][key]; ok && n.props[ref.IDProperty] != nil {
			out[key] = true
		}
	}
	return out, nil
}

func (s *Store) MergeRelationships(_ context.Context, ref graph.RelRef, rows []graph.RelRow) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var created int64
	for _, r := range rows {
		src := s.nodes[ref.Source.Label][graph.IDKey(r.SourceID)]
		tgt := s.nodes[ref.Target.Label][graph.IDKey(r.TargetID)]
		if src == nil || tgt == nil {
			continue
		}
		key := fmt.Sprintf("%s|%p|%p", ref.Type, src, tgt)
		if _, ok := s.edges[key]; ok {
			continue
		}
		s.edges[key] = &edge{relType: ref.Type, source: src, target: tgt}
		created++
	}
	return created, nil
}

func (s *Store) CountNodes(_ context.Context, label string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, byID := range s.nodes {
		for _, nd := range byID {
			if nd.labels[label] {
				n++
			}
		}
	}
	return n, nil
}

func (s *Store) CountRelationships(_ context.Context, relType string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, e := range s.edges {
		if e.relType == relType {
			n++
		}
	}
	return n, nil
}

func (s *Store) CountOrphanNodes(_ context.Context, label string, relTypes []string) (int64, error) {
	if len(relTypes) == 0 {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	want := map[string]bool{}
	for _, t := range relTypes {
		want[t] = true
	}
	connected := map[*node]bool{}
	for _, e := range s.edges {
		if want[e.relType] {
			connected[e.source] = true
			connected[e.target] = true
		}
	}
	var n int64
	for _, nd := range s.nodes[label] {
		if !connected[nd] {
			n++
		}
	}
	return n, nil
}

func (s *Store) CountOrphanRelationships(_ context.Context, ref graph.RelRef) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, e := range s.edges {
		if e.relType != ref.Type {
			continue
		}
		okSrc := e.source.labels[ref.Source.Label] && e.source.props[ref.Source.IDProperty] != nil
		okTgt := e.target.labels[ref.Target.Label] && e.target.props[ref.Target.IDProperty] != nil
		if !okSrc || !okTgt {
			n++
		}
	}
	return n, nil
}

// CountDuplicateIDs is always zero: the map key is the id.
func (s *Store) CountDuplicateIDs(context.Context, graph.NodeRef) (int64, error) {
	return 0, nil
}

func (s *Store) CountMissingProperty(_ context.Context, label, property string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, nd := range s.nodes[label] {
		if v, ok := nd.props[property]; !ok || v == nil {
			n++
		}
	}
	return n, nil
}

func (s *Store) Close(context.Context) error {
	s.mu.Lock()
	s.Closed = true
	s.mu.Unlock()
	return nil
}

// Node returns a copy of the properties of one node.
func (s *Store) Node(label string, id any) (map[string]any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[label][graph.IDKey(id)]
	if !ok {
		return nil, false
	}
	out := make(map[string]any, len(n.props))
	for k, v := range n.props {
		out[k] = v
	}
	return out, true
}

// IDs lists the ids of label, sorted.
func (s *Store) IDs(label string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.nodes[label]))
	for k := range s.nodes[label] {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// RemoveProperty deletes one property in place, leaving edges untouched.
func (s *Store) RemoveProperty(label string, id any, property string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n, ok := s.nodes[label][graph.IDKey(id)]; ok {
		delete(n.props, property)
	}
}

var _ graph.Store = (*Store)(nil)
