// Package httpc builds the outbound HTTP clients used for speech synthesis
// and document export. Every client carries dial, TLS and overall timeouts.
package httpc

import (
	"context"
	"net"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// Default timeouts for outbound calls.
const (
	DefaultTimeout         = 30 * time.Second
	DefaultConnectTimeout  = 10 * time.Second
	DefaultKeepAlive       = 30 * time.Second
	DefaultIdleConnTimeout = 90 * time.Second
)

// NewClient returns a client with the given overall timeout. A zero or
// negative timeout uses DefaultTimeout.
func NewClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: newTransport(),
	}
}

// OAuthContext returns ctx carrying client for oauth2 token exchanges and
// refreshes, so they share the same timeouts as API calls.
func OAuthContext(ctx context.Context, client *http.Client) context.Context {
	if client == nil {
		client = NewClient(0)
	}
	return context.WithValue(ctx, oauth2.HTTPClient, client)
}

func newTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   DefaultConnectTimeout,
			KeepAlive: DefaultKeepAlive,
		}).DialContext,
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       DefaultIdleConnTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
}
