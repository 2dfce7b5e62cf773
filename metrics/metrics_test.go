package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"docqa-gateway/middleware/ratelimit/domain"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_CountsAdmissionOutcomes(t *testing.T) {
	r := New()
	ctx := context.Background()

	require.NoError(t, r.Record(ctx, domain.StatsEvent{Scope: "client-query", Allowed: true}))
	require.NoError(t, r.Record(ctx, domain.StatsEvent{Scope: "client-query", Allowed: true}))
	require.NoError(t, r.Record(ctx, domain.StatsEvent{Scope: "client-query", Allowed: false}))

	assert.Equal(t, 2.0, testutil.ToFloat64(r.checks.WithLabelValues("client-query", "admitted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.checks.WithLabelValues("client-query", "rejected")))
}

func TestRecorder_ObservesPipelines(t *testing.T) {
	r := New()
	r.ObservePipeline("upload", "ok", 120*time.Millisecond)
	r.ObservePipeline("upload", "CLIENT_UPLOAD_LIMIT_EXCEEDED", time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.pipelines.WithLabelValues("upload", "ok")))
	assert.Equal(t, 1, testutil.CollectAndCount(r.durations))
}

func TestRecorder_HandlerExposesSeries(t *testing.T) {
	r := New()
	inUse := 3
	r.TrackInUse("concurrency_in_use", "Occupied concurrency slots.", func() int { return inUse })
	r.ObservePipeline("query", "ok", time.Millisecond)

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `docqa_pipeline_requests_total{pipeline="query",result="ok"} 1`)
	assert.Contains(t, string(body), "docqa_concurrency_in_use 3")
}
