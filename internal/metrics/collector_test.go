package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aegisshield/compliance-tracker/internal/compliance"
	"github.com/aegisshield/compliance-tracker/internal/store"
)

func TestInstrumentStore(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())
	s := InstrumentStore(store.NewMemoryStore(), c)
	ctx := context.Background()

	id, err := s.Create(ctx, "statuses", "", map[string]interface{}{"a": 1})
	require.NoError(t, err)
	_, err = s.Get(ctx, "statuses", id)
	require.NoError(t, err)
	_, err = s.Get(ctx, "statuses", "missing")
	require.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.Update(ctx, "statuses", id, map[string]interface{}{"a": 2}, 7)
	require.ErrorIs(t, err, store.ErrVersionConflict)
	_, err = s.Query(ctx, "statuses", store.Query{})
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, "statuses", id))

	assert.Equal(t, 1.0, testutil.ToFloat64(c.storeOperations.WithLabelValues("create", "statuses", ResultSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.storeOperations.WithLabelValues("get", "statuses", ResultSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.storeOperations.WithLabelValues("get", "statuses", ResultNotFound)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.storeOperations.WithLabelValues("update", "statuses", ResultConflict)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.storeOperations.WithLabelValues("query", "statuses", ResultSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.storeOperations.WithLabelValues("delete", "statuses", ResultSuccess)))
	assert.Equal(t, 6, testutil.CollectAndCount(c.storeOperations))
}

func TestObserveAnalysis(t *testing.T) {
	c := NewCollector(nil)

	c.ObserveAnalysis(&compliance.GapAnalysisResult{
		RiskScore:         70,
		RiskLevel:         compliance.RiskHigh,
		CriticalGapsCount: 2,
		HighGapsCount:     1,
	})
	c.ObserveAnalysis(nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.analysesTotal.WithLabelValues("high")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.openGaps.WithLabelValues("critical")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.openGaps.WithLabelValues("high")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.riskScore))
}

func TestPublishCountsEvents(t *testing.T) {
	c := NewCollector(nil)
	ctx := context.Background()

	require.NoError(t, c.Publish(ctx, compliance.Event{Type: compliance.EventStatusCreated}))
	require.NoError(t, c.Publish(ctx, compliance.Event{Type: compliance.EventStatusCreated}))
	require.NoError(t, c.Publish(ctx, compliance.Event{Type: compliance.EventEvidenceAdded}))

	assert.Equal(t, 2.0, testutil.ToFloat64(c.eventsTotal.WithLabelValues(string(compliance.EventStatusCreated))))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.eventsTotal.WithLabelValues(string(compliance.EventEvidenceAdded))))
}

func TestHandler(t *testing.T) {
	c := NewCollector(nil)
	c.RecordHTTPRequest("GET", "/health", "200", 3*time.Millisecond)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `compliance_tracker_http_requests_total{endpoint="/health",method="GET",status="200"} 1`), body)
}
