package metrics

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	m := NewMetrics()

	m.SessionServed("broadcast", nil)
	m.SessionServed("broadcast", errors.New("no"))
	m.Reconciled("requests", 2, 1, 0, 1, time.Millisecond)
	m.TookOff()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionsServed.WithLabelValues("broadcast", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionsServed.WithLabelValues("broadcast", "error")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RecordsReconciled.WithLabelValues("requests", "inserted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.InFlight))

	m.Landed()
	assert.Equal(t, 0.0, testutil.ToFloat64(m.InFlight))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.True(t, strings.Contains(rec.Body.String(), "helisync_flights_total 1"))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.SessionServed("takeOff", nil)
	m.Delivered("takeOff", "ok")
	m.Reconciled("timetable", 1, 0, 0, 0, 0)
	m.TookOff()
	m.Landed()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 404, rec.Code)
}

func TestSeparateRegistries(t *testing.T) {
	// two nodes in one process must not clash
	a, b := NewMetrics(), NewMetrics()
	a.TookOff()
	assert.Equal(t, 0.0, testutil.ToFloat64(b.Flights))
}
