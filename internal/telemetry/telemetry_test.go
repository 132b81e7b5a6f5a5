package telemetry

import (
	"errors"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
)

func TestObserveCycle_NoErrorDoesNotIncrementErrorCounter(t *testing.T) {
	before := testutilCount(CycleErrorsTotal.WithLabelValues("test-ok"))
	var err error
	func() {
		defer ObserveCycle("test-ok", time.Now())(&err)
	}()
	after := testutilCount(CycleErrorsTotal.WithLabelValues("test-ok"))
	assert.Equal(t, before, after)
}

func TestObserveCycle_ErrorIncrementsErrorCounter(t *testing.T) {
	before := testutilCount(CycleErrorsTotal.WithLabelValues("test-err"))
	err := errors.New("boom")
	func() {
		defer ObserveCycle("test-err", time.Now())(&err)
	}()
	after := testutilCount(CycleErrorsTotal.WithLabelValues("test-err"))
	assert.Equal(t, before+1, after)
}

func TestNewServer_RegistersHealthzAndMetricsRoutes(t *testing.T) {
	s := NewServer("test-service", ":0")
	assert.NotNil(t, s.engine)

	routes := s.engine.Routes()
	var hasHealthz, hasMetrics bool
	for _, r := range routes {
		if r.Path == "/healthz" {
			hasHealthz = true
		}
		if r.Path == "/metrics" {
			hasMetrics = true
		}
	}
	assert.True(t, hasHealthz)
	assert.True(t, hasMetrics)
}

func testutilCount(c interface{ Write(*dto.Metric) error }) float64 {
	var m dto.Metric
	_ = c.Write(&m)
	if m.Counter != nil {
		return m.Counter.GetValue()
	}
	return 0
}
