package graph

import (
	"context"
	"errors"
	"fmt"
)

// ErrConstraintViolation matches every *ConstraintError via errors.Is.
var ErrConstraintViolation = errors.New("graph: constraint violation")

// ConstraintError is a store-side schema constraint rejection of one write.
type ConstraintError struct {
	Label    string
	Property string
	Err      error
}

func (e *ConstraintError) Error() string {
	if e.Property != "" {
		return fmt.Sprintf("constraint violation on %s.%s: %v", e.Label, e.Property, e.Err)
	}
	return fmt.Sprintf("constraint violation on %s: %v", e.Label, e.Err)
}

func (e *ConstraintError) Unwrap() error { return e.Err }

func (e *ConstraintError) Is(target error) bool { return target == ErrConstraintViolation }

// NodeRow is one node upsert: ID is the node_id_property value, Props the
// non-null properties to SET (ID included).
type NodeRow struct {
	ID    any
	Props map[string]any
}

// RelRow joins two node ids.
type RelRow struct {
	SourceID any
	TargetID any
}

// NodeRef addresses nodes of one label by their id property.
type NodeRef struct {
	Label      string
	IDProperty string
}

// RelRef describes one relationship type with both endpoint node refs.
type RelRef struct {
	Type   string
	Source NodeRef
	Target NodeRef
}

// Store is the target graph protocol: idempotent MERGE-then-SET upserts plus
// the count and existence queries used by snapshots and adhoc tests.
type Store interface {
	// ApplySchema runs schema statements best-effort and returns every failure.
	ApplySchema(ctx context.Context, statements []string) []error
	// MergeNodes upserts rows keyed by ref.IDProperty and reports how many
	// nodes did not exist before.
	MergeNodes(ctx context.Context, ref NodeRef, extraLabels []string, rows []NodeRow) (created int64, err error)
	// ExistingNodeIDs returns the IDKey of every id in ids that resolves to a node.
	ExistingNodeIDs(ctx context.Context, ref NodeRef, ids []any) (map[string]bool, error)
	// MergeRelationships upserts one edge per row keyed by (source, target, type).
	MergeRelationships(ctx context.Context, ref RelRef, rows []RelRow) (created int64, err error)

	CountNodes(ctx context.Context, label string) (int64, error)
	CountRelationships(ctx context.Context, relType string) (int64, error)
	// CountOrphanNodes counts nodes of label touching none of relTypes.
	CountOrphanNodes(ctx context.Context, label string, relTypes []string) (int64, error)
	// CountOrphanRelationships counts edges of ref.Type whose endpoints lack
	// the expected label or id property.
	CountOrphanRelationships(ctx context.Context, ref RelRef) (int64, error)
	// CountDuplicateIDs counts id values carried by more than one node.
	CountDuplicateIDs(ctx context.Context, ref NodeRef) (int64, error)
	CountMissingProperty(ctx context.Context, label, property string) (int64, error)

	Close(ctx context.Context) error
}

// IDKey is the comparison key for node ids across the loader and stores.
func IDKey(id any) string {
	return fmt.Sprint(id)
}
