package metrics

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryReturnsSameMetric(t *testing.T) {
	r := NewRegistry("kanaime")

	c1 := r.Counter("keys_total", "keys", nil)
	c2 := r.Counter("keys_total", "ignored", nil)
	assert.Same(t, c1, c2)
	assert.Equal(t, "kanaime_keys_total", c1.Name())

	assert.Equal(t, "plain", NewRegistry("").Gauge("plain", "", nil).Name())
}

func TestCounterAndGaugeConcurrent(t *testing.T) {
	r := NewRegistry("")
	c := r.Counter("c", "", nil)
	g := r.Gauge("g", "", nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Inc()
			g.Inc()
			g.Dec()
		}()
	}
	wg.Wait()

	assert.Equal(t, uint64(50), c.Value())
	assert.Equal(t, int64(0), g.Value())
}

func TestHistogramQuantile(t *testing.T) {
	h := NewHistogram("h", "", nil, []float64{1, 2, 4})
	assert.Zero(t, h.Quantile(0.5))

	for _, v := range []float64{0.5, 0.5, 1.5, 3, 10} {
		h.Observe(v)
	}
	assert.Equal(t, uint64(5), h.Count())
	assert.InDelta(t, 3.1, h.Mean(), 1e-9)

	// Third observation falls in (1,2], the only one there.
	assert.InDelta(t, 2.0, h.Quantile(0.5), 1e-9)
	// Overflow reports the last bound.
	assert.InDelta(t, 4.0, h.Quantile(1), 1e-9)
	// Two observations in [0,1]: the first sits halfway.
	assert.InDelta(t, 0.5, h.Quantile(0.2), 1e-9)
}

func TestHistogramBoundaryIsInclusive(t *testing.T) {
	h := NewHistogram("h", "", nil, []float64{1, 2})
	h.Observe(1)

	var buf bytes.Buffer
	r := NewRegistry("")
	r.histograms["h"] = h
	require.NoError(t, r.WritePrometheus(&buf))
	assert.Contains(t, buf.String(), `h_bucket{le="1"} 1`)
}

func TestWritePrometheus(t *testing.T) {
	r := NewRegistry("kanaime")
	r.Counter("b_total", "B things", Labels{"kind": `say "hi"`}).Add(3)
	r.Counter("a_total", "A things", nil).Inc()
	r.Gauge("sessions", "Sessions", nil).Set(2)
	r.Histogram("lat_seconds", "Latency", Labels{"op": "candidates"}, []float64{0.1, 1}).Observe(0.5)

	var buf bytes.Buffer
	require.NoError(t, r.WritePrometheus(&buf))
	out := buf.String()

	assert.Less(t, strings.Index(out, "kanaime_a_total"), strings.Index(out, "kanaime_b_total"))
	assert.Contains(t, out, "# TYPE kanaime_a_total counter\nkanaime_a_total 1\n")
	assert.Contains(t, out, `kanaime_b_total{kind="say \"hi\""} 3`)
	assert.Contains(t, out, "kanaime_sessions 2\n")
	assert.Contains(t, out, `kanaime_lat_seconds_bucket{op="candidates",le="0.1"} 0`)
	assert.Contains(t, out, `kanaime_lat_seconds_bucket{op="candidates",le="1"} 1`)
	assert.Contains(t, out, `kanaime_lat_seconds_bucket{op="candidates",le="+Inf"} 1`)
	assert.Contains(t, out, `kanaime_lat_seconds_count{op="candidates"} 1`)
}

func TestWriteJSONAndReset(t *testing.T) {
	r := NewRegistry("k")
	r.Counter("c", "", nil).Add(7)
	r.Histogram("h", "", nil, nil).Observe(0.002)

	var buf bytes.Buffer
	require.NoError(t, r.WriteJSON(&buf))
	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, float64(7), got["k_c"])
	assert.Equal(t, float64(1), got["k_h_count"])

	r.Reset()
	snap := r.Snapshot()
	assert.Equal(t, uint64(0), snap["k_c"])
	assert.Equal(t, uint64(0), snap["k_h_count"])
}

func TestIMEMetrics(t *testing.T) {
	m := NewIMEMetrics(nil)

	m.RecordKey(false, "none")
	m.RecordKey(true, "update_display")
	m.RecordKey(true, "commit")
	m.RecordKey(true, "cancel")
	m.RecordEngineCall(3*time.Millisecond, nil)
	m.RecordEngineCall(time.Millisecond, errors.New("down"))
	m.SessionOpened()
	m.SessionOpened()
	m.SessionClosed()

	snap := m.Snapshot()
	assert.Equal(t, uint64(4), snap["kanaime_keys_total"])
	assert.Equal(t, uint64(3), snap["kanaime_keys_eaten_total"])
	assert.Equal(t, uint64(1), snap["kanaime_commits_total"])
	assert.Equal(t, uint64(1), snap["kanaime_cancels_total"])
	assert.Equal(t, uint64(2), snap["kanaime_engine_requests_total"])
	assert.Equal(t, uint64(1), snap["kanaime_engine_errors_total"])
	assert.Equal(t, int64(1), snap["kanaime_active_sessions"])
	assert.Equal(t, uint64(2), snap["kanaime_engine_latency_seconds_count"])
	assert.Contains(t, snap, "kanaime_uptime_seconds")
}
