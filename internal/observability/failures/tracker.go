package failures

import (
	"fmt"
	"sync"
	"time"

	"github.com/yungbote/neurobridge-graphload/internal/platform/logger"
)

type Kind string

const (
	KindBatch        Kind = "batch"
	KindRecord       Kind = "record"
	KindNode         Kind = "node"
	KindRelationship Kind = "relationship"
	KindConstraint   Kind = "constraint"
)

type BatchFailure struct {
	BatchNum   int       `json:"batch_num"`
	Offset     int       `json:"offset"`
	Limit      int       `json:"limit"`
	Error      string    `json:"error"`
	RecordIDs  []string  `json:"record_ids"`
	RecordedAt time.Time `json:"recorded_at"`
}

type RecordFailure struct {
	RecordID    string         `json:"record_id"`
	RecordData  map[string]any `json:"record_data"`
	Error       string         `json:"error"`
	FailureType string         `json:"failure_type"`
	RecordedAt  time.Time      `json:"recorded_at"`
}

type NodeFailure struct {
	NodeLabel    string         `json:"node_label"`
	NodeData     map[string]any `json:"node_data"`
	Error        string         `json:"error"`
	SourceColumn string         `json:"source_column,omitempty"`
	RecordedAt   time.Time      `json:"recorded_at"`
}

type RelationshipFailure struct {
	RelationshipType string         `json:"relationship_type"`
	SourceData       map[string]any `json:"source_data"`
	TargetData       map[string]any `json:"target_data"`
	Error            string         `json:"error"`
	RecordedAt       time.Time      `json:"recorded_at"`
}

type ConstraintViolation struct {
	ConstraintName string         `json:"constraint_name"`
	ConstraintType string         `json:"constraint_type"`
	Data           map[string]any `json:"data"`
	Error          string         `json:"error"`
	RecordedAt     time.Time      `json:"recorded_at"`
}

// Report is the serialized failure document. Every list is non-nil so the
// five keys are always present.
type Report struct {
	BatchFailures        []BatchFailure        `json:"batch_failures"`
	RecordFailures       []RecordFailure       `json:"record_failures"`
	NodeFailures         []NodeFailure         `json:"node_failures"`
	RelationshipFailures []RelationshipFailure `json:"relationship_failures"`
	ConstraintViolations []ConstraintViolation `json:"constraint_violations"`
}

type Counts struct {
	Batch        int `json:"batch"`
	Record       int `json:"record"`
	Node         int `json:"node"`
	Relationship int `json:"relationship"`
	Constraint   int `json:"constraint"`
}

func (c Counts) Total() int {
	return c.Batch + c.Record + c.Node + c.Relationship + c.Constraint
}

// Tracker holds the five append-only failure logs of a run. Every Add method
// is safe for concurrent use, copies its input and never panics or returns an
// error, so callers can record failures from anywhere in the batch loop.
type Tracker struct {
	mu     sync.Mutex
	log    *logger.Logger
	now    func() time.Time
	report Report
}

func NewTracker(log *logger.Logger) *Tracker {
	if log == nil {
		log = logger.Nop()
	}
	return &Tracker{
		log: log.With("component", "FailureTracker"),
		now: func() time.Time { return time.Now().UTC() },
		report: Report{
			BatchFailures:        []BatchFailure{},
			RecordFailures:       []RecordFailure{},
			NodeFailures:         []NodeFailure{},
			RelationshipFailures: []RelationshipFailure{},
			ConstraintViolations: []ConstraintViolation{},
		},
	}
}

func (t *Tracker) AddBatch(f BatchFailure) {
	t.append(KindBatch, func(now time.Time) {
		f.RecordIDs = append([]string{}, f.RecordIDs...)
		f.RecordedAt = now
		t.report.BatchFailures = append(t.report.BatchFailures, f)
	})
}

func (t *Tracker) AddRecord(f RecordFailure) {
	t.append(KindRecord, func(now time.Time) {
		f.RecordData = copyMap(f.RecordData)
		f.RecordedAt = now
		t.report.RecordFailures = append(t.report.RecordFailures, f)
	})
}

func (t *Tracker) AddNode(f NodeFailure) {
	t.append(KindNode, func(now time.Time) {
		f.NodeData = copyMap(f.NodeData)
		f.RecordedAt = now
		t.report.NodeFailures = append(t.report.NodeFailures, f)
	})
}

func (t *Tracker) AddRelationship(f RelationshipFailure) {
	t.append(KindRelationship, func(now time.Time) {
		f.SourceData = copyMap(f.SourceData)
		f.TargetData = copyMap(f.TargetData)
		f.RecordedAt = now
		t.report.RelationshipFailures = append(t.report.RelationshipFailures, f)
	})
}

func (t *Tracker) AddConstraint(f ConstraintViolation) {
	t.append(KindConstraint, func(now time.Time) {
		f.Data = copyMap(f.Data)
		f.RecordedAt = now
		t.report.ConstraintViolations = append(t.report.ConstraintViolations, f)
	})
}

func (t *Tracker) append(kind Kind, fn func(now time.Time)) {
	if t == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			t.log.Error("failure tracker: dropped entry", "kind", string(kind), "panic", fmt.Sprint(r))
		}
	}()
	t.mu.Lock()
	defer t.mu.Unlock()
	fn(t.now())
	t.log.Debug("failure recorded", "kind", string(kind))
}

func (t *Tracker) Counts() Counts {
	if t == nil {
		return Counts{}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return Counts{
		Batch:        len(t.report.BatchFailures),
		Record:       len(t.report.RecordFailures),
		Node:         len(t.report.NodeFailures),
		Relationship: len(t.report.RelationshipFailures),
		Constraint:   len(t.report.ConstraintViolations),
	}
}

// Snapshot returns a copy of the logs for serialization.
func (t *Tracker) Snapshot() Report {
	if t == nil {
		return NewTracker(nil).Snapshot()
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return Report{
		BatchFailures:        append([]BatchFailure{}, t.report.BatchFailures...),
		RecordFailures:       append([]RecordFailure{}, t.report.RecordFailures...),
		NodeFailures:         append([]NodeFailure{}, t.report.NodeFailures...),
		RelationshipFailures: append([]RelationshipFailure{}, t.report.RelationshipFailures...),
		ConstraintViolations: append([]ConstraintViolation{}, t.report.ConstraintViolations...),
	}
}

// copyMap copies one level deep and flattens values the report encoder cannot
// handle into strings.
func copyMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		switch t := v.(type) {
		case []byte:
			out[k] = string(t)
		case []float32:
			out[k] = fmt.Sprintf("vector(%d)", len(t))
		case []float64:
			out[k] = fmt.Sprintf("vector(%d)", len(t))
		case error:
			out[k] = t.Error()
		default:
			out[k] = v
		}
	}
	return out
}
