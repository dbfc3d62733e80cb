package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type IngestAPIMetrics struct {
	UploadRequestCount       prometheus.Counter
	UploadRequestDurationSec *prometheus.SummaryVec

	IngestPipelineDurationSec *prometheus.SummaryVec
	IngestPipelineResults     *prometheus.CounterVec
	StageSoftFailures         *prometheus.CounterVec

	ArtifactsPublished *prometheus.CounterVec
	ArtifactUploadSec  prometheus.Histogram
}

var Metrics = NewMetrics()

func NewMetrics() *IngestAPIMetrics {
	m := &IngestAPIMetrics{
		UploadRequestCount: promauto.NewCounter(prometheus.CounterOpts{
			Name: "upload_request_count",
			Help: "The total number of requests to /api/video/upload",
		}),
		UploadRequestDurationSec: promauto.NewSummaryVec(prometheus.SummaryOpts{
			Name: "upload_request_duration_seconds",
			Help: "The latency of upload requests in seconds broken up by success and status code",
		}, []string{"success", "status_code"}),

		IngestPipelineDurationSec: promauto.NewSummaryVec(prometheus.SummaryOpts{
			Name: "ingest_pipeline_duration_seconds",
			Help: "The time that ingestion jobs take to run, broken up by success",
		}, []string{"success"}),
		IngestPipelineResults: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_pipeline_results",
			Help: "The total number of finished ingestion jobs, broken up by success",
		}, []string{"success"}),
		StageSoftFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_stage_soft_failures",
			Help: "The number of optional pipeline stages that failed and were degraded, broken up by stage",
		}, []string{"stage"}),

		ArtifactsPublished: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "artifacts_published",
			Help: "The total number of artifacts written to object storage, broken up by kind",
		}, []string{"kind"}),
		ArtifactUploadSec: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "artifact_upload_duration_seconds",
			Help:    "Time taken to upload a single artifact to object storage",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}),
	}

	return m
}
