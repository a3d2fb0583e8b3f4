package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordIngestItem(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordIngestItem("created", 3)
	m.RecordIngestItem("created", 2)
	m.RecordIngestItem("skipped", 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.IngestItemsTotal.WithLabelValues("created")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IngestItemsTotal.WithLabelValues("skipped")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.IngestChunksTotal))
}

func TestRecordSearch(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordSearch("vector", nil, 5*time.Millisecond, 4)
	m.RecordSearch("vector", assert.AnError, time.Millisecond, 0)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SearchRequestsTotal.WithLabelValues("vector", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SearchRequestsTotal.WithLabelValues("vector", "error")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.SearchDuration))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordIngestItem("created", 1)
		m.RecordIngestRun(time.Second)
		m.RecordSearch("fulltext", nil, time.Millisecond, 1)
	})
}

func TestNewMetrics_SeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		NewMetrics(prometheus.NewRegistry())
		NewMetrics(prometheus.NewRegistry())
	})
}
