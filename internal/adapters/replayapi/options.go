package replayapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/okian/ladder/internal/config"
	"github.com/okian/ladder/pkg/logger"
	"golang.org/x/time/rate"
)

// Option applies a configuration option to the Client.
type Option func(*Client)

// WithBaseURL sets the replay service root.
func WithBaseURL(base string) Option {
	return func(c *Client) {
		if base != "" {
			c.baseURL = strings.TrimRight(base, "/")
		}
	}
}

// WithTimeout bounds each request.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithRequestsPerSecond throttles requests. Zero or less disables throttling.
func WithRequestsPerSecond(rps float64) Option {
	return func(c *Client) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		} else {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
		}
	}
}

// WithHTTPClient replaces the transport. The configured timeout is kept
// when hc has none.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc == nil {
			return
		}
		if hc.Timeout == 0 {
			hc.Timeout = c.http.Timeout
		}
		c.http = hc
	}
}

// WithFields sets the key variants used to tell a bare reference from a
// full payload.
func WithFields(f config.Fields) Option {
	return func(c *Client) { c.fields = f }
}

// WithIDParser sets how replay ids are read from URLs.
func WithIDParser(p IDParser) Option {
	return func(c *Client) {
		if p != nil {
			c.ids = p
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// FromConfig maps configuration onto client options.
func FromConfig(cfg *config.Config) []Option {
	return []Option{
		WithBaseURL(cfg.ReplayAPI.BaseURL),
		WithTimeout(time.Duration(cfg.ReplayAPI.TimeoutSeconds) * time.Second),
		WithRequestsPerSecond(cfg.ReplayAPI.RequestsPerSecond),
		WithFields(cfg.Fields),
		WithWorkers(cfg.ReplayAPI.Workers),
		WithPrefetchTimeout(time.Duration(cfg.ReplayAPI.PrefetchTimeoutSeconds) * time.Second),
	}
}

// WithWorkers sets how many workers Prefetch runs. Zero disables it.
func WithWorkers(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.workers = n
		}
	}
}

// WithPrefetchTimeout bounds a Prefetch call.
func WithPrefetchTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.prefetchTimeout = d
		}
	}
}
