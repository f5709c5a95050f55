package performance

import (
	"crypto/tls"
	"net/http"
	"time"
)

// HTTPClientConfig configures the client shared by all VUs of a run.
type HTTPClientConfig struct {
	Timeout time.Duration

	// Every VU talks to the same host, so the idle pool per host should be at
	// least the peak VU count for connections to be reused.
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	MaxConnsPerHost     int // 0 is unlimited
	IdleConnTimeout     time.Duration

	DisableKeepAlives  bool
	InsecureSkipVerify bool
}

// DefaultHTTPClientConfig returns the client defaults of a load run.
func DefaultHTTPClientConfig() HTTPClientConfig {
	return HTTPClientConfig{
		Timeout:             30 * time.Second,
		MaxIdleConns:        1000,
		MaxIdleConnsPerHost: 100,
		IdleConnTimeout:     90 * time.Second,
	}
}

// SizedFor returns a copy of c whose idle pools can hold one connection per
// VU for vus concurrent VUs.
func (c HTTPClientConfig) SizedFor(vus int) HTTPClientConfig {
	if vus > c.MaxIdleConnsPerHost {
		c.MaxIdleConnsPerHost = vus
	}
	if c.MaxIdleConnsPerHost > c.MaxIdleConns {
		c.MaxIdleConns = c.MaxIdleConnsPerHost
	}
	return c
}

// NewHTTPClient creates the client shared by all VUs.
func NewHTTPClient(cfg HTTPClientConfig) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConns = cfg.MaxIdleConns
	transport.MaxIdleConnsPerHost = cfg.MaxIdleConnsPerHost
	transport.MaxConnsPerHost = cfg.MaxConnsPerHost
	transport.IdleConnTimeout = cfg.IdleConnTimeout
	transport.DisableKeepAlives = cfg.DisableKeepAlives
	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in for self-signed targets
	}

	return &http.Client{
		Transport: transport,
		Timeout:   cfg.Timeout,
	}
}
