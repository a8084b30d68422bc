package server

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/yourusername/uvhttp/pkg/uvhttp/http11"
	"github.com/yourusername/uvhttp/pkg/uvhttp/router"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("Write: %v", err)
	}
	return m.GetCounter().GetValue()
}

func newTestRequest(method http11.Method, path, remoteAddr string) *http11.Request {
	return &http11.Request{
		Method:     method,
		RawURL:     path,
		Proto:      "HTTP/1.1",
		Header:     http11.NewHeader(),
		RemoteAddr: remoteAddr,
	}
}

func TestMetricsNilByDefault(t *testing.T) {
	s := New(nil)
	if s.metrics != nil {
		t.Fatal("expected metrics to be nil until EnableMetrics is called")
	}
	s.RegisterRoute("/hello", router.MethodGET, func(req *http11.Request, params []router.Param) *http11.Response {
		return http11.NewResponse()
	})
	// dispatch must not panic with metrics disabled.
	s.dispatch(newTestRequest(http11.MethodGET, "/hello", "127.0.0.1:1234"))
}

func TestMetricsCountRequestsAndRateLimitRejections(t *testing.T) {
	s := New(nil)
	reg := prometheus.NewRegistry()
	s.EnableMetrics(reg)
	s.EnableRateLimit(1, time.Minute)
	s.RegisterRoute("/hello", router.MethodGET, func(req *http11.Request, params []router.Param) *http11.Response {
		return http11.NewResponse()
	})

	s.dispatch(newTestRequest(http11.MethodGET, "/hello", "127.0.0.1:1234"))
	s.dispatch(newTestRequest(http11.MethodGET, "/hello", "127.0.0.1:5678"))

	if got := counterValue(t, s.metrics.requestsServed); got != 2 {
		t.Fatalf("requestsServed = %v, want 2", got)
	}
	if got := counterValue(t, s.metrics.rateLimitRejections); got != 1 {
		t.Fatalf("rateLimitRejections = %v, want 1", got)
	}
}
