package httpclient

import (
	"context"
	"net"
	"net/http"
	"time"
)

const defaultTimeout = 180 * time.Second

type Options struct {
	PreferIPv4 bool
	Timeout    time.Duration
	// ResponseHeaderTimeout defaults to Timeout. Image models send no headers
	// until the picture is rendered.
	ResponseHeaderTimeout time.Duration
}

// New returns the client shared by the model and Telegram APIs.
func New(opts Options) *http.Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	headerTimeout := opts.ResponseHeaderTimeout
	if headerTimeout <= 0 || headerTimeout > timeout {
		headerTimeout = timeout
	}

	dialer := &net.Dialer{
		Timeout:   15 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialContext(dialer, opts.PreferIPv4),
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   20,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   15 * time.Second,
		ResponseHeaderTimeout: headerTimeout,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

func dialContext(dialer *net.Dialer, preferIPv4 bool) func(ctx context.Context, network, addr string) (net.Conn, error) {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		if preferIPv4 && (network == "tcp" || network == "tcp6") {
			return dialer.DialContext(ctx, "tcp4", addr)
		}
		return dialer.DialContext(ctx, network, addr)
	}
}
