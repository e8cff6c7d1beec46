package github

import (
	"net/http"

	"golang.org/x/time/rate"
)

// transport paces every request through one limiter and adds the token.
type transport struct {
	base    http.RoundTripper
	token   string
	limiter *rate.Limiter
}

func (t *transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	req = req.Clone(req.Context())
	if t.token != "" {
		req.Header.Set("Authorization", "token "+t.token)
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/vnd.github.v3+json")
	}
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req)
}
