package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := NewMetrics()

	m.RecordAssignment("aiquinto", "rotation")
	m.RecordAssignment("aiquinto", "rotation")
	m.RecordAssignment("aiquinto", "manual")
	m.RecordUnassigned("cessionequinto")
	m.RecordAssignmentRetry("aiquinto")
	m.RecordRequest("/webhooks/leads/:source", "POST", 201, 5*time.Millisecond)

	require.Equal(t, 2.0, testutil.ToFloat64(m.assignments.WithLabelValues("aiquinto", "rotation")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.assignments.WithLabelValues("aiquinto", "manual")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.unassigned.WithLabelValues("cessionequinto")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.assignRetries.WithLabelValues("aiquinto")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("/webhooks/leads/:source", "POST", "201")))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	require.NotPanics(t, func() {
		m.RecordAssignment("aiquinto", "rotation")
		m.RecordError("/", "GET", "X")
		m.RecordAgentSync("applied")
	})
	require.Nil(t, m.Registry())
}
