package metrics

import (
	"net/http"
	"time"
)

// Transport is an http.RoundTripper that records request metrics. Route maps
// a request to a low-cardinality endpoint label; when nil the URL path is used.
type Transport struct {
	Next    http.RoundTripper
	Metrics *Metrics
	Route   func(*http.Request) string
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	next := t.Next
	if next == nil {
		next = http.DefaultTransport
	}
	endpoint := req.URL.Path
	if t.Route != nil {
		endpoint = t.Route(req)
	}

	start := time.Now()
	resp, err := next.RoundTrip(req)
	status := 0
	if err == nil && resp != nil {
		status = resp.StatusCode
	}
	t.Metrics.ObserveHTTPRequest(endpoint, req.Method, status, time.Since(start))
	return resp, err
}
