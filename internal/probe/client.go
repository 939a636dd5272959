// Package probe implements the shared HTTP/JSON request used by every
// indexer probe (version, POI, progress, cost-model): POST a JSON body,
// wait up to a bounded timeout, treat a non-2xx response as an error.
package probe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/semiotic-ai/network-topology/internal/xerrors"
)

// Client is the shared outbound probe client. One Client is built per
// refresh loop and reused across every indexer probe in that process.
type Client struct {
	http *http.Client

	limitersMu sync.Mutex
	limiters   map[string]*rate.Limiter
	rps        float64
	burst      int
}

// Config configures the underlying transport and per-host rate limiting.
type Config struct {
	MaxIdleConns int
	IdleTimeout  time.Duration
	RPS          float64
	Burst        int
}

// NewClient builds a Client with a bounded-idle-connection transport.
func NewClient(cfg Config) *Client {
	transport := &http.Transport{
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConns,
		IdleConnTimeout:     cfg.IdleTimeout,
	}
	return &Client{
		http:     &http.Client{Transport: transport},
		limiters: make(map[string]*rate.Limiter),
		rps:      cfg.RPS,
		burst:    cfg.Burst,
	}
}

func (c *Client) limiterFor(host string) *rate.Limiter {
	c.limitersMu.Lock()
	defer c.limitersMu.Unlock()
	l, ok := c.limiters[host]
	if !ok {
		l = rate.NewLimiter(rate.Limit(c.rps), c.burst)
		c.limiters[host] = l
	}
	return l
}

// PostJSON POSTs reqBody as JSON to baseURL+path, waits on the per-host rate
// limiter, enforces timeout, and decodes the JSON response into respOut (a
// pointer). component names the calling pipeline stage for error context
// ("version", "poi", "progress", "costmodel").
func (c *Client) PostJSON(ctx context.Context, component, baseURL, path string, reqBody, respOut any) error {
	u, err := url.Parse(baseURL)
	if err != nil {
		return xerrors.Wrap(xerrors.KindProbeParse, component, "invalid base URL", err)
	}
	u.Path = joinPath(u.Path, path)

	if err := c.limiterFor(u.Host).Wait(ctx); err != nil {
		return xerrors.Wrap(xerrors.KindProbeTimeout, component, "rate limiter wait", err)
	}

	var body io.Reader
	if reqBody != nil {
		encoded, err := json.Marshal(reqBody)
		if err != nil {
			return xerrors.Wrap(xerrors.KindProbeParse, component, "encode request body", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), body)
	if err != nil {
		return xerrors.Wrap(xerrors.KindProbeTransport, component, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		var netErr net.Error
		if ctx.Err() != nil || (asNetError(err, &netErr) && netErr.Timeout()) {
			return xerrors.Wrap(xerrors.KindProbeTimeout, component, "probe timed out", err)
		}
		return xerrors.Wrap(xerrors.KindProbeTransport, component, "probe request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return xerrors.New(xerrors.KindProbeTransport, component,
			fmt.Sprintf("probe returned status %d", resp.StatusCode))
	}

	if respOut == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(respOut); err != nil {
		return xerrors.Wrap(xerrors.KindProbeParse, component, "decode response body", err)
	}
	return nil
}

func asNetError(err error, target *net.Error) bool {
	ne, ok := err.(net.Error)
	if ok {
		*target = ne
	}
	return ok
}

func joinPath(base, extra string) string {
	if base == "" {
		return extra
	}
	if base[len(base)-1] == '/' && len(extra) > 0 && extra[0] == '/' {
		return base + extra[1:]
	}
	if base[len(base)-1] != '/' && (len(extra) == 0 || extra[0] != '/') {
		return base + "/" + extra
	}
	return base + extra
}
