package http

import (
	"net"
	"net/http"
	"time"
)

// NewHTTPClient returns the client used for venue REST calls.
//
// The transport bounds dialing and TLS handshakes separately from the overall request
// timeout, and keeps a small idle pool per venue host since every history read and poll
// tick hits the same one or two hosts.
// http.DefaultClient has no timeout and must not be used for outbound calls.
func NewHTTPClient(timeout time.Duration) *http.Client {
	t := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:   true,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 16,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
	}
	return &http.Client{Timeout: timeout, Transport: t}
}
