package client

import (
	"math"
	"net/http"

	"golang.org/x/time/rate"
)

// rateLimitTransport spaces outgoing requests to at most rps per second.
type rateLimitTransport struct {
	next    http.RoundTripper
	limiter *rate.Limiter
}

func newRateLimitTransport(next http.RoundTripper, rps float64) *rateLimitTransport {
	burst := int(math.Ceil(rps))
	if burst < 1 {
		burst = 1
	}
	return &rateLimitTransport{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

func (t *rateLimitTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		// RoundTrip must always close the request body
		if req.Body != nil {
			req.Body.Close()
		}
		return nil, err
	}
	return t.next.RoundTrip(req)
}
