package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordOutcome(t *testing.T) {
	before := testutil.ToFloat64(ProvisioningOutcomesTotal.WithLabelValues("metrics_ns", "primary", "created"))

	RecordOutcome("metrics_ns", "primary", "created", 0.02)

	after := testutil.ToFloat64(ProvisioningOutcomesTotal.WithLabelValues("metrics_ns", "primary", "created"))
	assert.Equal(t, before+1, after)
}

func TestRecordCacheLookup(t *testing.T) {
	hits := testutil.ToFloat64(CacheHits.WithLabelValues("metrics_test"))
	misses := testutil.ToFloat64(CacheMisses.WithLabelValues("metrics_test"))

	RecordCacheLookup("metrics_test", true)
	RecordCacheLookup("metrics_test", false)
	RecordCacheLookup("metrics_test", false)

	assert.Equal(t, hits+1, testutil.ToFloat64(CacheHits.WithLabelValues("metrics_test")))
	assert.Equal(t, misses+2, testutil.ToFloat64(CacheMisses.WithLabelValues("metrics_test")))
}

func TestRecordStoreCall(t *testing.T) {
	before := testutil.ToFloat64(StoreCallsTotal.WithLabelValues("create_view", "error"))
	RecordStoreCall("create_view", "error")
	assert.Equal(t, before+1, testutil.ToFloat64(StoreCallsTotal.WithLabelValues("create_view", "error")))
}
