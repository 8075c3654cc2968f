package runmetrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// WriteTextfile exports the final report as gauges in the node_exporter
// textfile format. failureCounts is keyed by failure kind.
func WriteTextfile(path string, r Report, failureCounts map[string]int) error {
	reg := prometheus.NewRegistry()

	nodesLoaded := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "graphload_nodes_loaded",
		Help: "Nodes upserted by the last run, per label.",
	}, []string{"label"})
	nodesCurrent := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "graphload_nodes_current",
		Help: "Nodes present in the store after the last run, per label.",
	}, []string{"label"})
	relsLoaded := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "graphload_relationships_loaded",
		Help: "Relationships upserted by the last run, per type.",
	}, []string{"type"})
	relsCurrent := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "graphload_relationships_current",
		Help: "Relationships present in the store after the last run, per type.",
	}, []string{"type"})
	orphans := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "graphload_orphan_nodes",
		Help: "Nodes missing a required relationship after the last run, per label.",
	}, []string{"label"})
	failures := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "graphload_failures",
		Help: "Failures recorded by the last run, per kind.",
	}, []string{"kind"})
	batches := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "graphload_batches",
		Help: "Batches of the last run, per state.",
	}, []string{"state"})
	chunks := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "graphload_chunks_created",
		Help: "Chunks created by the last run.",
	})
	embeddings := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "graphload_embeddings_generated",
		Help: "Embeddings generated by the last run.",
	})
	duration := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "graphload_run_duration_seconds",
		Help: "Wall time of the last run.",
	})

	for _, c := range []prometheus.Collector{nodesLoaded, nodesCurrent, relsLoaded, relsCurrent, orphans, failures, batches, chunks, embeddings, duration} {
		if err := reg.Register(c); err != nil {
			return fmt.Errorf("runmetrics: register: %w", err)
		}
	}

	for label, n := range r.LoadMetrics.NodesCreated {
		nodesLoaded.WithLabelValues(label).Set(float64(n))
	}
	for label, n := range r.AfterMetrics.NodesCurrent {
		nodesCurrent.WithLabelValues(label).Set(float64(n))
	}
	for rt, n := range r.LoadMetrics.RelationshipsCreated {
		relsLoaded.WithLabelValues(rt).Set(float64(n))
	}
	for rt, n := range r.AfterMetrics.RelationshipsCurrent {
		relsCurrent.WithLabelValues(rt).Set(float64(n))
	}
	for label, n := range r.AdhocTests.OrphanNodes {
		orphans.WithLabelValues(label).Set(float64(n))
	}
	for kind, n := range failureCounts {
		failures.WithLabelValues(kind).Set(float64(n))
	}
	batches.WithLabelValues("total").Set(float64(r.BatchMetrics.TotalBatches))
	batches.WithLabelValues("completed").Set(float64(r.BatchMetrics.CompletedBatches))
	batches.WithLabelValues("failed").Set(float64(r.BatchMetrics.FailedBatches))
	chunks.Set(float64(r.LoadMetrics.ChunksCreated))
	embeddings.Set(float64(r.LoadMetrics.EmbeddingsGenerated))
	duration.Set(r.Run.DurationSeconds)

	if err := prometheus.WriteToTextfile(path, reg); err != nil {
		return fmt.Errorf("runmetrics: write textfile: %w", err)
	}
	return nil
}
