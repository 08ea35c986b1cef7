package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRegister_Idempotent(t *testing.T) {
	assert.NotPanics(t, func() {
		Register()
		Register()
	})
	assert.False(t, prometheus.DefaultRegisterer.Unregister(prometheus.NewCounter(prometheus.CounterOpts{Name: "unregistered_total"})))
	assert.Error(t, prometheus.DefaultRegisterer.Register(TransportMessagesTotal))
}

func TestSetTransportConnected(t *testing.T) {
	SetTransportConnected("test-transport", true)
	assert.Equal(t, 1.0, testutil.ToFloat64(TransportConnected.WithLabelValues("test-transport")))

	SetTransportConnected("test-transport", false)
	assert.Equal(t, 0.0, testutil.ToFloat64(TransportConnected.WithLabelValues("test-transport")))
}

func TestObserveDeliveryDuration_CountsUnits(t *testing.T) {
	before := testutil.ToFloat64(DeliveryUnitsTotal.WithLabelValues("test-status"))
	ObserveDeliveryDuration(10*time.Millisecond, "test-status")
	ObserveDeliveryDuration(20*time.Millisecond, "test-status")
	assert.Equal(t, before+2, testutil.ToFloat64(DeliveryUnitsTotal.WithLabelValues("test-status")))
}

func TestCounters(t *testing.T) {
	skipped := testutil.ToFloat64(RecordsSkippedTotal)
	AddRecordsSkipped(3)
	assert.Equal(t, skipped+3, testutil.ToFloat64(RecordsSkippedTotal))

	enqueued := testutil.ToFloat64(MeasuresEnqueuedTotal)
	AddMeasuresEnqueued(5)
	assert.Equal(t, enqueued+5, testutil.ToFloat64(MeasuresEnqueuedTotal))

	SetMessageQueueSize("test-bridge", 7)
	assert.Equal(t, 7.0, testutil.ToFloat64(MessageQueueSize.WithLabelValues("test-bridge")))

	SetKafkaConsumerLag("svc", "topic", 2, 42)
	assert.Equal(t, 42.0, testutil.ToFloat64(KafkaConsumerLag.WithLabelValues("svc", "topic", "2")))
}
