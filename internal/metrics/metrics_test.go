package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	apperrors "github.com/alexjbarnes/chatsync/internal/errors"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func value(t *testing.T, m prometheus.Metric) float64 {
	t.Helper()
	var out dto.Metric
	require.NoError(t, m.Write(&out))
	if out.Counter != nil {
		return out.Counter.GetValue()
	}
	return out.Gauge.GetValue()
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, OutcomeOK, Outcome(nil))
	assert.Equal(t, OutcomeDeclined, Outcome(fmt.Errorf("push: %w", apperrors.ErrConflictDeclined)))
	assert.Equal(t, OutcomeMissing, Outcome(apperrors.ErrMissingAssets))
	assert.Equal(t, OutcomeError, Outcome(errors.New("boom")))
}

func TestObserveOperation(t *testing.T) {
	before := value(t, operationsTotal.WithLabelValues("push", OutcomeOK))
	ObserveOperation("push", OutcomeOK, time.Now())
	assert.Equal(t, before+1, value(t, operationsTotal.WithLabelValues("push", OutcomeOK)))
}

func TestObserveAssets(t *testing.T) {
	before := value(t, assetBytes.WithLabelValues(DirectionUpload))
	ObserveAssets(DirectionUpload, 2, 300)
	assert.Equal(t, before+300, value(t, assetBytes.WithLabelValues(DirectionUpload)))
}

func TestObserveConflict(t *testing.T) {
	before := value(t, conflictsTotal.WithLabelValues("pull", "declined"))
	ObserveConflict("pull", false)
	assert.Equal(t, before+1, value(t, conflictsTotal.WithLabelValues("pull", "declined")))
}

func TestSetDirty(t *testing.T) {
	SetDirty(true)
	assert.Equal(t, 1.0, value(t, dirtyGauge))
	SetDirty(false)
	assert.Equal(t, 0.0, value(t, dirtyGauge))
}

func TestHandler_ServesMetrics(t *testing.T) {
	ObserveAssetFailure()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "chatsync_asset_download_failures_total")
}
