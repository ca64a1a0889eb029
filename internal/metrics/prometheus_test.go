package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestGetReturnsTheSameRegistryEveryCall(t *testing.T) {
	assert.Same(t, Get(), Get())
}

func TestRecordQueryTracksStatusAndLatency(t *testing.T) {
	r := Get()

	before := testutil.ToFloat64(r.QueryRequestsTotal.WithLabelValues("query", "ok"))
	r.RecordQuery("query", nil, 0.05)
	assert.Equal(t, before+1, testutil.ToFloat64(r.QueryRequestsTotal.WithLabelValues("query", "ok")))

	beforeErr := testutil.ToFloat64(r.QueryRequestsTotal.WithLabelValues("delete", "error"))
	r.RecordQuery("delete", errors.New("boom"), 0.01)
	assert.Equal(t, beforeErr+1, testutil.ToFloat64(r.QueryRequestsTotal.WithLabelValues("delete", "error")))
}

func TestRecordReloadTracksStatus(t *testing.T) {
	r := Get()

	before := testutil.ToFloat64(r.ConfigReloadsTotal.WithLabelValues("ok"))
	r.RecordReload(nil)
	assert.Equal(t, before+1, testutil.ToFloat64(r.ConfigReloadsTotal.WithLabelValues("ok")))

	beforeErr := testutil.ToFloat64(r.ConfigReloadsTotal.WithLabelValues("error"))
	r.RecordReload(errors.New("reload failed"))
	assert.Equal(t, beforeErr+1, testutil.ToFloat64(r.ConfigReloadsTotal.WithLabelValues("error")))
}
