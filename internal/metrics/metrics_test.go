package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestCollectorExposesRequestMetrics(t *testing.T) {
	c := NewCollector()
	c.RecordRequest("courses", "GET", 200, 15*time.Millisecond)
	c.RecordRequest("courses", "GET", 200, 30*time.Millisecond)
	c.RecordRequest("courses", "POST", 503, 2*time.Millisecond)
	c.RecordRateLimited("courses", "default")
	c.SetBreakerState("courses", 1)
	c.RecordBreakerTransition("courses", "OPEN")
	c.RecordUpstreamFailure("courses")

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()

	for _, want := range []string{
		`gateway_requests_total{method="GET",route="courses",status="200"} 2`,
		`gateway_requests_total{method="POST",route="courses",status="503"} 1`,
		`gateway_rate_limited_total{profile="default",route="courses"} 1`,
		`gateway_circuit_breaker_state{route="courses"} 1`,
		`gateway_circuit_breaker_transitions_total{route="courses",to="OPEN"} 1`,
		`gateway_upstream_failures_total{route="courses"} 1`,
		`gateway_request_duration_seconds_count{route="courses"} 3`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("scrape output missing %q", want)
		}
	}
}

func TestCollectorsAreIndependent(t *testing.T) {
	a := NewCollector()
	b := NewCollector()
	a.RecordRequest("r", "GET", 200, time.Millisecond)

	rec := httptest.NewRecorder()
	b.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if strings.Contains(rec.Body.String(), "gateway_requests_total{") {
		t.Error("second collector must not see the first's samples")
	}
}
