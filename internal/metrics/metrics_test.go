package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestGetSingleton(t *testing.T) {
	assert.Same(t, Get(), Get())
}

func TestCountersMove(t *testing.T) {
	r := Get()

	before := testutil.ToFloat64(r.AllocationsTotal)
	r.AllocationsTotal.Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(r.AllocationsTotal))

	r.GuardViolations.WithLabelValues("front").Inc()
	assert.GreaterOrEqual(t, testutil.ToFloat64(r.GuardViolations.WithLabelValues("front")), float64(1))

	r.QuarantineSize.Set(3)
	assert.Equal(t, float64(3), testutil.ToFloat64(r.QuarantineSize))
}
