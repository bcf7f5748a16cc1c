// Package replayapi fetches full replay payloads from the replay service
// for submissions that only reference a replay by id or URL.
package replayapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/okian/ladder/internal/adapters/mq/queue"
	"github.com/okian/ladder/internal/adapters/mq/worker"
	"github.com/okian/ladder/internal/config"
	"github.com/okian/ladder/internal/domain/model"
	"github.com/okian/ladder/internal/domain/rejection"
	"github.com/okian/ladder/pkg/logger"
	"github.com/okian/ladder/pkg/metrics"
	"golang.org/x/time/rate"
)

const (
	defaultTimeout = 10 * time.Second
	defaultRPS     = 2
	maxBodyBytes   = 8 << 20
	userAgent      = "bar-ladder/1.0"

	defaultPrefetchTimeout = 2 * time.Minute
	prefetchStopGrace      = 5 * time.Second
)

// IDParser extracts a replay id from a replay URL.
type IDParser interface {
	ReplayID(url string) (string, bool)
}

// Client talks to the replay service. Fetched payloads are cached for the
// lifetime of the client, which is one run.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	fields  config.Fields
	ids     IDParser
	log     logger.Logger
	workers int

	prefetchTimeout time.Duration

	mu      sync.Mutex
	cache   map[string]map[string]any
	missing map[string]error
}

// New creates a Client with defaults pointing at the public service.
func New(opts ...Option) *Client {
	c := &Client{
		baseURL: config.DefaultReplayAPI().BaseURL,
		http:    &http.Client{Timeout: defaultTimeout},
		limiter: rate.NewLimiter(rate.Limit(defaultRPS), 1),
		fields:  config.DefaultFields(),
		log:     logger.Discard(),
		cache:   make(map[string]map[string]any),
		missing: make(map[string]error),

		prefetchTimeout: defaultPrefetchTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch returns the payload of replay id. Transport failures, timeouts and
// server errors are Transient; a replay the service does not know is a
// terminal InvalidReplayURL.
func (c *Client) Fetch(ctx context.Context, id string) (map[string]any, error) {
	c.mu.Lock()
	cached, ok := c.cache[id]
	gone := c.missing[id]
	c.mu.Unlock()
	if ok {
		return cached, nil
	}
	if gone != nil {
		return nil, gone
	}

	if err := c.limiter.Wait(ctx); err != nil {
		metrics.RecordFetchError("throttle")
		return nil, rejection.Transient(id, err)
	}

	start := time.Now()
	payload, err := c.get(ctx, id)
	metrics.RecordFetchLatency(time.Since(start).Seconds())
	if err != nil {
		c.log.Warn(ctx, "replay fetch failed", logger.String("replay", id), logger.Error(err))
		if rejection.IsTerminal(err) {
			c.mu.Lock()
			c.missing[id] = err
			c.mu.Unlock()
		}
		return nil, err
	}

	c.mu.Lock()
	c.cache[id] = payload
	c.mu.Unlock()
	return payload, nil
}

func (c *Client) get(ctx context.Context, id string) (map[string]any, error) {
	endpoint := c.baseURL + "/replays/" + url.PathEscape(id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		metrics.RecordFetchError("request")
		return nil, rejection.Transient(id, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		reason := "transport"
		var ue *url.Error
		if errors.As(err, &ue) && ue.Timeout() {
			reason = "timeout"
		}
		metrics.RecordFetchError(reason)
		return nil, rejection.Transient(id, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		metrics.RecordFetchError("not_found")
		return nil, rejection.New(rejection.CodeInvalidReplayURL, id, "replay service does not know replay %s", id)
	case resp.StatusCode != http.StatusOK:
		metrics.RecordFetchError("status")
		return nil, rejection.Transient(id, fmt.Errorf("%w: HTTP %d", ErrUnexpectedStatus, resp.StatusCode))
	}

	var payload map[string]any
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&payload); err != nil {
		metrics.RecordFetchError("decode")
		return nil, rejection.Transient(id, fmt.Errorf("%w: %w", ErrDecode, err))
	}
	return payload, nil
}

// Prefetch fetches the bare references of subs with the configured number
// of workers, so Resolve finds them cached. Failures are left for Resolve
// to report against their submission.
func (c *Client) Prefetch(ctx context.Context, subs []model.Submission) {
	if c.workers == 0 {
		return
	}

	var jobs []queue.Job
	seen := make(map[string]struct{})
	for _, sub := range subs {
		if sub.Malformed != "" {
			continue
		}
		for _, raw := range sub.Replays {
			if !c.bare(raw) {
				continue
			}
			id := c.reference(raw)
			if id == "" {
				continue
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			jobs = append(jobs, queue.Job{SubmissionID: sub.ID, ReplayID: id})
		}
	}
	if len(jobs) == 0 {
		return
	}

	q := queue.NewInMemoryQueue(queue.WithCapacity(len(jobs)))
	for _, j := range jobs {
		if !q.Enqueue(ctx, j) {
			metrics.RecordPrefetch("dropped")
		}
	}
	pool := worker.NewPool(min(c.workers, len(jobs)), q, c, worker.WithLogger(c.log.Named("prefetch")))
	work, cancelWork := context.WithCancel(ctx)
	defer cancelWork()
	pool.Start(work)

	drainCtx, cancel := context.WithTimeout(ctx, c.prefetchTimeout)
	defer cancel()
	if err := pool.Drain(drainCtx); err != nil {
		c.log.Warn(ctx, "prefetch did not finish; remaining replays are fetched on demand",
			logger.Duration("timeout", c.prefetchTimeout), logger.Error(err))
		cancelWork()
		stopCtx, stop := context.WithTimeout(context.Background(), prefetchStopGrace)
		defer stop()
		if err := pool.Shutdown(stopCtx); err != nil {
			c.log.Warn(ctx, "prefetch workers did not stop", logger.Error(err))
		}
		return
	}
	c.log.Debug(ctx, "prefetched replays", logger.Int("replays", len(jobs)), logger.Int("workers", pool.Size()))
}

// Resolve replaces every bare {id, url} entry of sub with the full payload.
// The submitted URL is kept so URL sanity still applies to it. Entries with
// neither a usable id nor URL are left for the validator to reject.
func (c *Client) Resolve(ctx context.Context, sub model.Submission) (model.Submission, error) {
	var resolved []map[string]any
	for i, raw := range sub.Replays {
		if !c.bare(raw) {
			continue
		}
		id := c.reference(raw)
		if id == "" {
			continue
		}
		payload, err := c.Fetch(ctx, id)
		if err != nil {
			var re *rejection.Error
			if errors.As(err, &re) {
				return sub, re.For(sub.ID)
			}
			return sub, err
		}

		if resolved == nil {
			resolved = make([]map[string]any, len(sub.Replays))
			copy(resolved, sub.Replays)
		}
		merged := make(map[string]any, len(payload)+1)
		for k, v := range payload {
			merged[k] = v
		}
		if u := first(raw, c.fields.URL); u != "" {
			merged["url"] = u
		}
		if first(merged, c.fields.ID) == "" {
			merged["id"] = id
		}
		resolved[i] = merged
	}
	if resolved != nil {
		sub.Replays = resolved
	}
	return sub, nil
}

// bare reports whether raw carries no player data of its own.
func (c *Client) bare(raw map[string]any) bool {
	for _, keys := range [][]string{c.fields.Teams, c.fields.Players} {
		for _, k := range keys {
			if _, ok := raw[k]; ok {
				return false
			}
		}
	}
	return true
}

func (c *Client) reference(raw map[string]any) string {
	if id := first(raw, c.fields.ID); id != "" {
		return id
	}
	if u := first(raw, c.fields.URL); u != "" && c.ids != nil {
		if id, ok := c.ids.ReplayID(u); ok {
			return id
		}
	}
	return ""
}

func first(raw map[string]any, keys []string) string {
	for _, k := range keys {
		if s, ok := raw[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
