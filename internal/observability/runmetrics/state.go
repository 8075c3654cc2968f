package runmetrics

import (
	"fmt"
	"sync"
	"time"

	"github.com/yungbote/neurobridge-graphload/internal/domain/graphmodel"
)

type RunInfo struct {
	RunID           string    `json:"run_id"`
	StartedAt       time.Time `json:"started_at"`
	FinishedAt      time.Time `json:"finished_at,omitempty"`
	DurationSeconds float64   `json:"duration_seconds"`
	Status          string    `json:"status"`
}

type SourceMetrics struct {
	PullQuery        string `json:"pull_query"`
	RecordsPulled    int64  `json:"records_pulled"`
	RecordsAvailable int64  `json:"records_available"`
}

type BatchMetrics struct {
	TotalBatches          int64 `json:"total_batches"`
	CompletedBatches      int64 `json:"completed_batches"`
	FailedBatches         int64 `json:"failed_batches"`
	TotalRecordsProcessed int64 `json:"total_records_processed"`
	Interrupted           bool  `json:"interrupted"`
}

type LoadMetrics struct {
	NodesCreated          map[string]int64 `json:"nodes_created"`
	RelationshipsCreated  map[string]int64 `json:"relationships_created"`
	ChunksCreated         int64            `json:"chunks_created"`
	EmbeddingsGenerated   int64            `json:"embeddings_generated"`
	EmbeddingsSkipped     int64            `json:"embeddings_skipped"`
	TotalRecordsProcessed int64            `json:"total_records_processed"`
}

type BeforeMetrics struct {
	NodesExistingCount         map[string]int64 `json:"nodes_existing_count"`
	RelationshipsExistingCount map[string]int64 `json:"relationships_existing_count"`
}

type AfterMetrics struct {
	NodesCurrent         map[string]int64 `json:"nodes_current"`
	RelationshipsCurrent map[string]int64 `json:"relationships_current"`
}

type TestResult struct {
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

type AdhocTests struct {
	OrphanNodes         map[string]int64      `json:"orphan_nodes"`
	OrphanRelationships map[string]int64      `json:"orphan_relationships"`
	DataIntegrityIssues []string              `json:"data_integrity_issues"`
	TestResults         map[string]TestResult `json:"test_results"`
}

func NewAdhocTests() AdhocTests {
	return AdhocTests{
		OrphanNodes:         map[string]int64{},
		OrphanRelationships: map[string]int64{},
		DataIntegrityIssues: []string{},
		TestResults:         map[string]TestResult{},
	}
}

// Report is the serialized metrics document.
type Report struct {
	Run           RunInfo       `json:"run"`
	SourceMetrics SourceMetrics `json:"source_metrics"`
	BatchMetrics  BatchMetrics  `json:"batch_metrics"`
	LoadMetrics   LoadMetrics   `json:"load_metrics"`
	BeforeMetrics BeforeMetrics `json:"before_metrics"`
	AfterMetrics  AfterMetrics  `json:"after_metrics"`
	AdhocTests    AdhocTests    `json:"adhoc_tests"`
}

// Snapshot is one point-in-time count of every declared label and type.
type Snapshot struct {
	Nodes         map[string]int64
	Relationships map[string]int64
}

// LoadDelta is what one batch contributed to load_metrics.
type LoadDelta struct {
	Nodes             map[string]int64
	Relationships     map[string]int64
	Chunks            int64
	Embeddings        int64
	EmbeddingsSkipped int64
	Records           int64
}

func NewLoadDelta() LoadDelta {
	return LoadDelta{Nodes: map[string]int64{}, Relationships: map[string]int64{}}
}

func (d *LoadDelta) AddNodes(label string, n int64) {
	if d.Nodes == nil {
		d.Nodes = map[string]int64{}
	}
	d.Nodes[label] += n
}

func (d *LoadDelta) AddRelationships(relType string, n int64) {
	if d.Relationships == nil {
		d.Relationships = map[string]int64{}
	}
	d.Relationships[relType] += n
}

// State owns the metric sections of one run. Load counters only grow;
// before/after snapshots are set exactly once each.
type State struct {
	mu          sync.Mutex
	r           Report
	beforeTaken bool
	afterTaken  bool
}

func NewState(runID, pullQuery string) *State {
	return &State{r: Report{
		Run:           RunInfo{RunID: runID, StartedAt: time.Now().UTC(), Status: "running"},
		SourceMetrics: SourceMetrics{PullQuery: pullQuery},
		LoadMetrics: LoadMetrics{
			NodesCreated:         map[string]int64{},
			RelationshipsCreated: map[string]int64{},
		},
		BeforeMetrics: BeforeMetrics{
			NodesExistingCount:         map[string]int64{},
			RelationshipsExistingCount: map[string]int64{},
		},
		AfterMetrics: AfterMetrics{
			NodesCurrent:         map[string]int64{},
			RelationshipsCurrent: map[string]int64{},
		},
		AdhocTests: NewAdhocTests(),
	}}
}

// EnsureKeys seeds every declared label and relationship type with zero so
// the final report lists them even when nothing was loaded.
func (s *State) EnsureKeys(m *graphmodel.LoadModel) {
	if m == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, label := range m.Labels() {
		for _, mp := range []map[string]int64{
			s.r.LoadMetrics.NodesCreated,
			s.r.BeforeMetrics.NodesExistingCount,
			s.r.AfterMetrics.NodesCurrent,
			s.r.AdhocTests.OrphanNodes,
		} {
			if _, ok := mp[label]; !ok {
				mp[label] = 0
			}
		}
	}
	for _, rt := range m.RelationshipTypes() {
		for _, mp := range []map[string]int64{
			s.r.LoadMetrics.RelationshipsCreated,
			s.r.BeforeMetrics.RelationshipsExistingCount,
			s.r.AfterMetrics.RelationshipsCurrent,
			s.r.AdhocTests.OrphanRelationships,
		} {
			if _, ok := mp[rt]; !ok {
				mp[rt] = 0
			}
		}
	}
}

func (s *State) SetRecordsAvailable(n int64) {
	s.mu.Lock()
	s.r.SourceMetrics.RecordsAvailable = n
	s.mu.Unlock()
}

// PagePulled accounts a successfully fetched, non-empty page.
func (s *State) PagePulled(records int) {
	if records <= 0 {
		return
	}
	s.mu.Lock()
	s.r.SourceMetrics.RecordsPulled += int64(records)
	s.r.BatchMetrics.TotalBatches++
	s.mu.Unlock()
}

func (s *State) BatchCompleted(records int) {
	s.mu.Lock()
	s.r.BatchMetrics.CompletedBatches++
	if records > 0 {
		s.r.BatchMetrics.TotalRecordsProcessed += int64(records)
	}
	s.mu.Unlock()
}

func (s *State) BatchFailed() {
	s.mu.Lock()
	s.r.BatchMetrics.FailedBatches++
	s.mu.Unlock()
}

func (s *State) MarkInterrupted() {
	s.mu.Lock()
	s.r.BatchMetrics.Interrupted = true
	s.mu.Unlock()
}

// MergeLoad adds one batch's contribution to load_metrics. Negative values are
// ignored so the counters never decrease.
func (s *State) MergeLoad(d LoadDelta) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for label, n := range d.Nodes {
		if n > 0 {
			s.r.LoadMetrics.NodesCreated[label] += n
		} else if _, ok := s.r.LoadMetrics.NodesCreated[label]; !ok {
			s.r.LoadMetrics.NodesCreated[label] = 0
		}
	}
	for rt, n := range d.Relationships {
		if n > 0 {
			s.r.LoadMetrics.RelationshipsCreated[rt] += n
		} else if _, ok := s.r.LoadMetrics.RelationshipsCreated[rt]; !ok {
			s.r.LoadMetrics.RelationshipsCreated[rt] = 0
		}
	}
	s.r.LoadMetrics.ChunksCreated += nonNegative(d.Chunks)
	s.r.LoadMetrics.EmbeddingsGenerated += nonNegative(d.Embeddings)
	s.r.LoadMetrics.EmbeddingsSkipped += nonNegative(d.EmbeddingsSkipped)
	s.r.LoadMetrics.TotalRecordsProcessed += nonNegative(d.Records)
}

func (s *State) SetBefore(snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.beforeTaken {
		return fmt.Errorf("runmetrics: before snapshot already taken")
	}
	s.beforeTaken = true
	mergeCounts(s.r.BeforeMetrics.NodesExistingCount, snap.Nodes)
	mergeCounts(s.r.BeforeMetrics.RelationshipsExistingCount, snap.Relationships)
	return nil
}

func (s *State) SetAfter(snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.afterTaken {
		return fmt.Errorf("runmetrics: after snapshot already taken")
	}
	s.afterTaken = true
	mergeCounts(s.r.AfterMetrics.NodesCurrent, snap.Nodes)
	mergeCounts(s.r.AfterMetrics.RelationshipsCurrent, snap.Relationships)
	return nil
}

// SetAdhoc stores the post-load test results, keeping seeded zero keys.
func (s *State) SetAdhoc(a AdhocTests) {
	s.mu.Lock()
	defer s.mu.Unlock()
	mergeCounts(s.r.AdhocTests.OrphanNodes, a.OrphanNodes)
	mergeCounts(s.r.AdhocTests.OrphanRelationships, a.OrphanRelationships)
	s.r.AdhocTests.DataIntegrityIssues = append(s.r.AdhocTests.DataIntegrityIssues, a.DataIntegrityIssues...)
	for k, v := range a.TestResults {
		s.r.AdhocTests.TestResults[k] = v
	}
}

func (s *State) AddIntegrityIssue(issue string) {
	s.mu.Lock()
	s.r.AdhocTests.DataIntegrityIssues = append(s.r.AdhocTests.DataIntegrityIssues, issue)
	s.mu.Unlock()
}

// Finish stamps the run envelope. status is "completed", "interrupted" or "aborted".
func (s *State) Finish(status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	s.r.Run.FinishedAt = now
	s.r.Run.DurationSeconds = now.Sub(s.r.Run.StartedAt).Seconds()
	s.r.Run.Status = status
}

// Report returns a deep copy of the current state.
func (s *State) Report() Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.r
	out.LoadMetrics.NodesCreated = copyCounts(s.r.LoadMetrics.NodesCreated)
	out.LoadMetrics.RelationshipsCreated = copyCounts(s.r.LoadMetrics.RelationshipsCreated)
	out.BeforeMetrics.NodesExistingCount = copyCounts(s.r.BeforeMetrics.NodesExistingCount)
	out.BeforeMetrics.RelationshipsExistingCount = copyCounts(s.r.BeforeMetrics.RelationshipsExistingCount)
	out.AfterMetrics.NodesCurrent = copyCounts(s.r.AfterMetrics.NodesCurrent)
	out.AfterMetrics.RelationshipsCurrent = copyCounts(s.r.AfterMetrics.RelationshipsCurrent)
	out.AdhocTests.OrphanNodes = copyCounts(s.r.AdhocTests.OrphanNodes)
	out.AdhocTests.OrphanRelationships = copyCounts(s.r.AdhocTests.OrphanRelationships)
	out.AdhocTests.DataIntegrityIssues = append([]string{}, s.r.AdhocTests.DataIntegrityIssues...)
	out.AdhocTests.TestResults = make(map[string]TestResult, len(s.r.AdhocTests.TestResults))
	for k, v := range s.r.AdhocTests.TestResults {
		out.AdhocTests.TestResults[k] = v
	}
	return out
}

func mergeCounts(dst, src map[string]int64) {
	for k, v := range src {
		dst[k] = v
	}
}

func copyCounts(in map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func nonNegative(n int64) int64 {
	if n < 0 {
		return 0
	}
	return n
}
