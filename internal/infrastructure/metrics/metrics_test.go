package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ActiveConnections.Set(3)
	m.TasksEnqueued.WithLabelValues("websocket").Inc()
	m.TasksProcessed.WithLabelValues("websocket", OutcomeDone).Add(2)

	assert.InDelta(t, 3, testutil.ToFloat64(m.ActiveConnections), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.TasksEnqueued.WithLabelValues("websocket")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.TasksProcessed.WithLabelValues("websocket", OutcomeDone)), 0)

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "comments_socket_active_connections")
	assert.Contains(t, names, "comments_queue_tasks_processed_total")
}

func TestNew_TwiceOnSameRegistryPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}
