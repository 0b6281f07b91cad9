// Package metrics holds the Prometheus collectors of the service.
package metrics

import (
    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/promauto"
)

var (
    // Registration pipeline

    RegistrationsTotal = promauto.NewCounterVec(
        prometheus.CounterOpts{
            Name: "plc_registrations_total",
            Help: "Registration requests by synchronous outcome",
        },
        []string{"result"}, // accepted, validation_failed, error
    )

    PipelineOutcomesTotal = promauto.NewCounterVec(
        prometheus.CounterOpts{
            Name: "plc_pipeline_outcomes_total",
            Help: "Terminal program statuses reached by the completion pipeline",
        },
        []string{"status"},
    )

    PipelineDuration = promauto.NewHistogram(
        prometheus.HistogramOpts{
            Name:    "plc_pipeline_duration_seconds",
            Help:    "Duration of the asynchronous completion pipeline",
            Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
        },
    )

    PipelinesInFlight = promauto.NewGauge(
        prometheus.GaugeOpts{
            Name: "plc_pipelines_in_flight",
            Help: "Completion pipelines currently running in this process",
        },
    )

    PreprocessedFilesTotal = promauto.NewCounterVec(
        prometheus.CounterOpts{
            Name: "plc_preprocessed_files_total",
            Help: "Ladder files preprocessed into logic documents",
        },
        []string{"result"}, // success, failed
    )

    ChunkCommitsTotal = promauto.NewCounter(
        prometheus.CounterOpts{
            Name: "plc_chunk_commits_total",
            Help: "Preprocessing chunk commits",
        },
    )

    UploadRetriesTotal = promauto.NewCounterVec(
        prometheus.CounterOpts{
            Name: "plc_upload_retries_total",
            Help: "Artifact upload retries by document type",
        },
        []string{"document_type"},
    )

    IndexingRequestsTotal = promauto.NewCounterVec(
        prometheus.CounterOpts{
            Name: "plc_indexing_requests_total",
            Help: "Vector indexing calls by outcome",
        },
        []string{"result"}, // success, rejected, error
    )

    RetryItemsTotal = promauto.NewCounterVec(
        prometheus.CounterOpts{
            Name: "plc_retry_items_total",
            Help: "Failure ledger retry items by type and outcome",
        },
        []string{"failure_type", "result"}, // resolved, pending, failed
    )

    KnowledgeSyncTotal = promauto.NewCounterVec(
        prometheus.CounterOpts{
            Name: "plc_knowledge_sync_documents_total",
            Help: "Documents checked against the knowledge API by outcome",
        },
        []string{"result"}, // embedded, not_embedded, failed
    )

    // Circuit breakers

    CircuitBreakerState = promauto.NewGaugeVec(
        prometheus.GaugeOpts{
            Name: "plc_circuit_breaker_state",
            Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
        },
        []string{"name"},
    )

    CircuitBreakerTransitions = promauto.NewCounterVec(
        prometheus.CounterOpts{
            Name: "plc_circuit_breaker_transitions_total",
            Help: "Circuit breaker state transitions",
        },
        []string{"name", "from", "to"},
    )

    CircuitBreakerRequests = promauto.NewCounterVec(
        prometheus.CounterOpts{
            Name: "plc_circuit_breaker_requests_total",
            Help: "Requests through circuit breakers by result",
        },
        []string{"name", "result"}, // success, failure, rejected
    )

    // HTTP

    HTTPRequestDuration = promauto.NewHistogramVec(
        prometheus.HistogramOpts{
            Name:    "plc_http_request_duration_seconds",
            Help:    "HTTP request latency",
            Buckets: prometheus.DefBuckets,
        },
        []string{"method", "route", "status"},
    )
)
