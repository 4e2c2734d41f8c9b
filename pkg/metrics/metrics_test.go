package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NotPanics(t, func() { RegisterCollectors(reg) })

	Transitions.WithLabelValues("publish", "success").Inc()
	ReplicationFailures.Inc()

	families, err := reg.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["qmdoc_transitions_total"])
	assert.True(t, names["qmdoc_replication_failures_total"])

	require.Panics(t, func() { RegisterCollectors(reg) }, "double registration must fail loudly")
}
