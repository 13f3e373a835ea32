package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRegistration(t *testing.T) {
	metrics := []prometheus.Collector{
		ConnectionsActive,
		ConnectionsTotal,
		MessagesTotal,
		SendsDroppedTotal,
		PingFailures,
		CommandsTotal,
		UpdatesTotal,
		DeliveredVersion,
		ProtocolErrorsTotal,
	}

	for _, metric := range metrics {
		desc := make(chan *prometheus.Desc, 1)
		metric.Describe(desc)
		close(desc)

		require.NotNil(t, <-desc, "metric should have a valid descriptor")
	}
}

func TestCounterVecMetrics(t *testing.T) {
	tests := []struct {
		name   string
		metric *prometheus.CounterVec
		labels prometheus.Labels
		incBy  int
	}{
		{
			name:   "messages",
			metric: MessagesTotal,
			labels: prometheus.Labels{"direction": "in", "tag": "SNAPDONE:"},
			incBy:  4,
		},
		{
			name:   "commands",
			metric: CommandsTotal,
			labels: prometheus.Labels{"verb": "PNG", "outcome": "succeeded"},
			incBy:  2,
		},
		{
			name:   "protocol errors",
			metric: ProtocolErrorsTotal,
			labels: prometheus.Labels{"code": "REPLY_ID_MISMATCH"},
			incBy:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.metric.Reset()

			for i := 0; i < tt.incBy; i++ {
				tt.metric.With(tt.labels).Inc()
			}

			assert.Equal(t, float64(tt.incBy), testutil.ToFloat64(tt.metric.With(tt.labels)))
		})
	}
}

func TestGaugeMetrics(t *testing.T) {
	ConnectionsActive.Set(3)
	assert.Equal(t, float64(3), testutil.ToFloat64(ConnectionsActive))

	DeliveredVersion.Set(17)
	assert.Equal(t, float64(17), testutil.ToFloat64(DeliveredVersion))
}
