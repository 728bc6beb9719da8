package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/OFFIS-RIT/prospect/pkg/common"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveLookupStatus(t *testing.T) {
	m := New(prometheus.NewRegistry())
	start := time.Now()

	m.ObserveLookup("clickhouse", "lookup", start, nil)
	m.ObserveLookup("clickhouse", "lookup", start, common.NewTimeoutError("Request timed out", nil))
	m.ObserveLookup("clickhouse", "lookup", start, errors.New("boom"))
	m.ObserveLookup("clickhouse", "lookup", start, nil)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.LookupsTotal.WithLabelValues("clickhouse", "lookup", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LookupsTotal.WithLabelValues("clickhouse", "lookup", "timeout")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LookupsTotal.WithLabelValues("clickhouse", "lookup", "error")))
}

func TestObserveModelCall(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveModelCall("openai", "gpt-4o-mini", "chat", 10, 5, time.Second)
	m.ObserveModelCall("openai", "gpt-4o-mini", "chat", 2, 1, time.Second)
	m.ObserveModelCall("openai", "text-embedding-3-small", "embed", 7, 0, time.Second)

	assert.Equal(t, 12.0, testutil.ToFloat64(m.ModelTokens.WithLabelValues("openai", "gpt-4o-mini", "input")))
	assert.Equal(t, 6.0, testutil.ToFloat64(m.ModelTokens.WithLabelValues("openai", "gpt-4o-mini", "output")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.ModelTokens.WithLabelValues("openai", "text-embedding-3-small", "input")))
	// embeddings produce no output series
	assert.Equal(t, 3, testutil.CollectAndCount(m.ModelTokens))
	assert.Equal(t, 2, testutil.CollectAndCount(m.ModelSeconds))
}

func TestPoolStatsCollectorDescribe(t *testing.T) {
	c := NewPoolStatsCollector(nil)
	ch := make(chan *prometheus.Desc, 8)
	c.Describe(ch)
	close(ch)
	assert.Len(t, ch, 4)

	// a nil pool yields no samples
	assert.Equal(t, 0, testutil.CollectAndCount(c))
}
