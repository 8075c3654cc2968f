package runmetrics

import (
	"context"
	"fmt"

	"github.com/yungbote/neurobridge-graphload/internal/domain/graphmodel"
)

// Counter is the read side of the graph store used for before/after snapshots.
type Counter interface {
	CountNodes(ctx context.Context, label string) (int64, error)
	CountRelationships(ctx context.Context, relType string) (int64, error)
}

// TakeSnapshot runs one count query per declared label and relationship type.
// A failed count is reported and left at zero; the snapshot itself never fails.
func TakeSnapshot(ctx context.Context, c Counter, m *graphmodel.LoadModel) (Snapshot, []error) {
	snap := Snapshot{Nodes: map[string]int64{}, Relationships: map[string]int64{}}
	var errs []error
	for _, label := range m.Labels() {
		n, err := c.CountNodes(ctx, label)
		if err != nil {
			errs = append(errs, fmt.Errorf("count nodes %s: %w", label, err))
			continue
		}
		snap.Nodes[label] = n
	}
	for _, rt := range m.RelationshipTypes() {
		n, err := c.CountRelationships(ctx, rt)
		if err != nil {
			errs = append(errs, fmt.Errorf("count relationships %s: %w", rt, err))
			continue
		}
		snap.Relationships[rt] = n
	}
	return snap, errs
}
