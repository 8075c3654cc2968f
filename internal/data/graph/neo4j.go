package graph

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/yungbote/neurobridge-graphload/internal/platform/logger"
	"github.com/yungbote/neurobridge-graphload/internal/platform/neo4jdb"
)

const constraintFailedCode = "Neo.ClientError.Schema.ConstraintValidationFailed"

var constraintPropertyRe = regexp.MustCompile("property `([^`]+)`")

// Neo4jStore implements Store on a neo4jdb.Client.
type Neo4jStore struct {
	client *neo4jdb.Client
	log    *logger.Logger
}

func NewNeo4jStore(client *neo4jdb.Client, log *logger.Logger) (*Neo4jStore, error) {
	if client == nil || client.Driver == nil {
		return nil, fmt.Errorf("graph: neo4j client required")
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Neo4jStore{client: client, log: log.With("store", "Neo4jStore")}, nil
}

func (s *Neo4jStore) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return s.client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   mode,
		DatabaseName: s.client.Database,
	})
}

func (s *Neo4jStore) write(ctx context.Context, cypher string, params map[string]any) (neo4j.ResultSummary, error) {
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	out, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}
		return res.Consume(ctx)
	})
	if err != nil {
		return nil, err
	}
	summary, _ := out.(neo4j.ResultSummary)
	return summary, nil
}

func (s *Neo4jStore) readInt(ctx context.Context, cypher string, params map[string]any) (int64, error) {
	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}
		rec, err := res.Single(ctx)
		if err != nil {
			return nil, err
		}
		v, _ := rec.Get("c")
		n, _ := v.(int64)
		return n, nil
	})
	if err != nil {
		return 0, err
	}
	return out.(int64), nil
}

func (s *Neo4jStore) ApplySchema(ctx context.Context, statements []string) []error {
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	var errs []error
	for _, q := range statements {
		res, err := session.Run(ctx, q, nil)
		if err == nil {
			_, err = res.Consume(ctx)
		}
		if err != nil {
			s.log.Warn("neo4j schema init failed (continuing)", "statement", q, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", q, err))
		}
	}
	return errs
}

func (s *Neo4jStore) MergeNodes(ctx context.Context, ref NodeRef, extraLabels []string, rows []NodeRow) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	params := make([]map[string]any, 0, len(rows))
	for _, r := range rows {
		params = append(params, map[string]any{"id": r.ID, "props": driverProps(r.Props)})
	}
	summary, err := s.write(ctx, mergeNodesCypher(ref, extraLabels), map[string]any{"rows": params})
	if err != nil {
		return 0, classify(ref.Label, err)
	}
	return int64(summary.Counters().NodesCreated()), nil
}

func (s *Neo4jStore) ExistingNodeIDs(ctx context.Context, ref NodeRef, ids []any) (map[string]bool, error) {
	found := make(map[string]bool, len(ids))
	if len(ids) == 0 {
		return found, nil
	}
	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	_, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, existingIDsCypher(ref), map[string]any{"ids": ids})
		if err != nil {
			return nil, err
		}
		for res.Next(ctx) {
			if v, ok := res.Record().Get("id"); ok && v != nil {
				found[IDKey(v)] = true
			}
		}
		return nil, res.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("graph: resolve %s ids: %w", ref.Label, err)
	}
	return found, nil
}

func (s *Neo4jStore) MergeRelationships(ctx context.Context, ref RelRef, rows []RelRow) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	params := make([]map[string]any, 0, len(rows))
	for _, r := range rows {
		params = append(params, map[string]any{"source": r.SourceID, "target": r.TargetID})
	}
	summary, err := s.write(ctx, mergeRelationshipsCypher(ref), map[string]any{"rows": params})
	if err != nil {
		return 0, classify(ref.Type, err)
	}
	return int64(summary.Counters().RelationshipsCreated()), nil
}

func (s *Neo4jStore) CountNodes(ctx context.Context, label string) (int64, error) {
	return s.readInt(ctx, countNodesCypher(label), nil)
}

func (s *Neo4jStore) CountRelationships(ctx context.Context, relType string) (int64, error) {
	return s.readInt(ctx, countRelationshipsCypher(relType), nil)
}

func (s *Neo4jStore) CountOrphanNodes(ctx context.Context, label string, relTypes []string) (int64, error) {
	if len(relTypes) == 0 {
		return 0, nil
	}
	return s.readInt(ctx, orphanNodesCypher(label, relTypes), nil)
}

func (s *Neo4jStore) CountOrphanRelationships(ctx context.Context, ref RelRef) (int64, error) {
	return s.readInt(ctx, orphanRelationshipsCypher(ref), nil)
}

func (s *Neo4jStore) CountDuplicateIDs(ctx context.Context, ref NodeRef) (int64, error) {
	return s.readInt(ctx, duplicateIDsCypher(ref), nil)
}

func (s *Neo4jStore) CountMissingProperty(ctx context.Context, label, property string) (int64, error) {
	return s.readInt(ctx, missingPropertyCypher(label, property), nil)
}

func (s *Neo4jStore) Close(ctx context.Context) error {
	return s.client.Close(ctx)
}

// classify turns a schema constraint failure into a *ConstraintError.
func classify(label string, err error) error {
	var nerr *neo4j.Neo4jError
	if errors.As(err, &nerr) && nerr.Code == constraintFailedCode {
		ce := &ConstraintError{Label: label, Err: err}
		if m := constraintPropertyRe.FindStringSubmatch(nerr.Msg); len(m) == 2 {
			ce.Property = m[1]
		}
		return ce
	}
	return err
}

// driverProps converts values the driver does not pack natively.
func driverProps(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		switch t := v.(type) {
		case []float32:
			f := make([]float64, len(t))
			for i := range t {
				f[i] = float64(t[i])
			}
			out[k] = f
		default:
			out[k] = v
		}
	}
	return out
}
