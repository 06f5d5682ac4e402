package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	m := New()
	m.ObserveOperation("create", "succeeded", 2*time.Second)
	m.ObserveOperation("create", "succeeded", time.Second)
	m.ObserveOperation("delete", "aborted", time.Second)
	m.AddPruned(3)
	m.ObserveArchiveSize(5 << 20)
	m.CommandHandled("snapshots", "ok")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.operations.WithLabelValues("create", "succeeded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("delete", "aborted")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.pruned))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.commands.WithLabelValues("snapshots", "ok")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "reedcraft_snapshot_operations_total")
	assert.Contains(t, string(body), "reedcraft_snapshot_archive_size_bytes_bucket")
}
