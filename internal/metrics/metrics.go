// Package metrics exposes sync pipeline counters for Prometheus.
package metrics

import (
	"errors"
	"net/http"
	"time"

	apperrors "github.com/alexjbarnes/chatsync/internal/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels for operation metrics.
const (
	OutcomeOK       = "ok"
	OutcomeNoop     = "noop"
	OutcomeDeclined = "declined"
	OutcomeMissing  = "missing_assets"
	OutcomeError    = "error"
)

var (
	operationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatsync_operations_total",
		Help: "Sync operations by kind and outcome",
	}, []string{"operation", "outcome"})

	operationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chatsync_operation_duration_seconds",
		Help:    "Time spent in a sync operation",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
	}, []string{"operation"})

	assetsTransferred = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatsync_assets_total",
		Help: "Asset payloads moved by direction",
	}, []string{"direction"})

	assetBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatsync_asset_bytes_total",
		Help: "Asset payload bytes moved by direction",
	}, []string{"direction"})

	assetFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatsync_asset_download_failures_total",
		Help: "Asset downloads that failed or found nothing",
	})

	conflictsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatsync_conflicts_total",
		Help: "Conflicts detected by operation and resolution",
	}, []string{"operation", "resolution"})

	dirtyGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chatsync_dirty",
		Help: "1 while local changes are unpublished",
	})
)

// Asset transfer directions.
const (
	DirectionUpload   = "upload"
	DirectionDownload = "download"
	DirectionDelete   = "delete"
)

// Outcome maps an operation error to its outcome label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, apperrors.ErrConflictDeclined):
		return OutcomeDeclined
	case errors.Is(err, apperrors.ErrMissingAssets):
		return OutcomeMissing
	}

	return OutcomeError
}

// ObserveOperation records one finished operation started at start.
func ObserveOperation(operation, outcome string, start time.Time) {
	operationsTotal.WithLabelValues(operation, outcome).Inc()
	operationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// ObserveAssets records n payloads totalling size bytes.
func ObserveAssets(direction string, n, size int) {
	assetsTransferred.WithLabelValues(direction).Add(float64(n))
	assetBytes.WithLabelValues(direction).Add(float64(size))
}

func ObserveAssetFailure() {
	assetFailures.Inc()
}

// ObserveConflict records a conflict and whether it was accepted.
func ObserveConflict(operation string, accepted bool) {
	resolution := "declined"
	if accepted {
		resolution = "accepted"
	}

	conflictsTotal.WithLabelValues(operation, resolution).Inc()
}

func SetDirty(dirty bool) {
	if dirty {
		dirtyGauge.Set(1)
		return
	}

	dirtyGauge.Set(0)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
