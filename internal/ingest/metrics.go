package ingest

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// ingestMetrics holds Prometheus counters for the ingestion subsystem.
type ingestMetrics struct {
	once sync.Once

	filesProcessed prometheus.Counter
	filesFailed    prometheus.Counter
	filesSkipped   prometheus.Counter
	chunksStored   prometheus.Counter
	runs           prometheus.Counter
	runDuration    prometheus.Histogram
}

var metrics ingestMetrics

func (m *ingestMetrics) init() {
	m.once.Do(func() {
		m.filesProcessed = prometheus.NewCounter(prometheus.CounterOpts{Name: "expert_ingest_files_processed_total", Help: "Files fetched, chunked and stored"})
		m.filesFailed = prometheus.NewCounter(prometheus.CounterOpts{Name: "expert_ingest_files_failed_total", Help: "Files that failed fetch, chunking or storage"})
		m.filesSkipped = prometheus.NewCounter(prometheus.CounterOpts{Name: "expert_ingest_files_skipped_total", Help: "Files excluded by filter rules"})
		m.chunksStored = prometheus.NewCounter(prometheus.CounterOpts{Name: "expert_ingest_chunks_stored_total", Help: "Chunks written to the search index"})
		m.runs = prometheus.NewCounter(prometheus.CounterOpts{Name: "expert_ingest_runs_total", Help: "Ingestion runs started"})
		m.runDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "expert_ingest_run_seconds",
			Help:    "End-to-end duration of one ingestion run",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		})

		prometheus.MustRegister(
			m.filesProcessed, m.filesFailed, m.filesSkipped,
			m.chunksStored, m.runs, m.runDuration,
		)
	})
}

func recordRunStart()             { metrics.init(); metrics.runs.Inc() }
func recordFileProcessed()        { metrics.init(); metrics.filesProcessed.Inc() }
func recordFileFailed()           { metrics.init(); metrics.filesFailed.Inc() }
func recordFilesSkipped(n int)    { metrics.init(); metrics.filesSkipped.Add(float64(n)) }
func recordChunksStored(n int)    { metrics.init(); metrics.chunksStored.Add(float64(n)) }
func recordRunDuration(s float64) { metrics.init(); metrics.runDuration.Observe(s) }
