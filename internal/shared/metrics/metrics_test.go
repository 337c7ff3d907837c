package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"feedback-sync/internal/shared/eventbus"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func publish(t *testing.T, bus *eventbus.EventBus, eventType string, data interface{}) {
	t.Helper()
	require.NoError(t, bus.Publish(context.Background(), eventbus.NewBasicEvent(eventType, data)))
}

func TestMetrics_ObserveBus(t *testing.T) {
	m := New(prometheus.NewRegistry())
	bus := eventbus.NewEventBus(nil)
	detach := m.Observe(bus)

	publish(t, bus, eventbus.EventTypeSnapshotPublished, eventbus.SnapshotPayload{Version: 1, Size: 3})
	publish(t, bus, eventbus.EventTypeRecordDropped, eventbus.RecordDroppedPayload{RecordID: "x", Reason: eventbus.DropReasonMalformed})
	publish(t, bus, eventbus.EventTypeRecordDropped, eventbus.RecordDroppedPayload{RecordID: "y", Reason: eventbus.DropReasonOwnerMismatch})
	publish(t, bus, eventbus.EventTypeSubscriptionDegraded, nil)
	publish(t, bus, eventbus.EventTypeSubmissionSucceeded, nil)
	publish(t, bus, eventbus.EventTypeSubmissionFailed, nil)
	publish(t, bus, eventbus.EventTypeAuthFailed, nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SnapshotsPublished))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.SnapshotSize))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RecordsDropped.WithLabelValues(eventbus.DropReasonMalformed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RecordsDropped.WithLabelValues(eventbus.DropReasonOwnerMismatch)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SubscriptionEvents.WithLabelValues("degraded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Submissions.WithLabelValues("succeeded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Submissions.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuthAttempts.WithLabelValues("failed")))

	detach()
	publish(t, bus, eventbus.EventTypeSnapshotPublished, eventbus.SnapshotPayload{Version: 2})
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SnapshotsPublished))
	assert.Equal(t, 0, bus.SubscriberCount(eventbus.EventTypeSnapshotPublished))
}

func TestMetrics_ObserveRemoteCall(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveRemoteCall("write", time.Now(), nil)
	m.ObserveRemoteCall("write", time.Now(), errors.New("refused"))
	m.ObserveRemoteCall("", time.Now(), nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RemoteCallTotal.WithLabelValues("write", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RemoteCallTotal.WithLabelValues("write", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RemoteCallTotal.WithLabelValues("unknown", "success")))

	var nilMetrics *Metrics
	assert.NotPanics(t, func() { nilMetrics.ObserveRemoteCall("write", time.Now(), nil) })
}

func TestMetrics_DoubleRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}
