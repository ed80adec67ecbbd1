// Package rpcclient wraps a JSON-RPC client with a bounded, jittered
// retry policy and a per-provider rate limit, centralized here so
// individual chain providers don't scatter their own retry loops.
// Every EVM-family and most non-EVM chain providers are plain
// JSON-RPC over HTTP, so this wraps go-ethereum's rpc.Client
// (CallContext) rather than hand-rolling request framing.
package rpcclient

import (
	"context"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	ilog "github.com/omniwallet/chain-indexer/internal/log"
)

var logger = ilog.NewModuleLogger(ilog.ChainProvider)

// Config tunes a Client's retry/backoff/rate-limit/deadline policy.
type Config struct {
	Timeout       time.Duration // per-call deadline; default 30s per §5.
	MaxRetries    int           // bounded retry attempts for transient errors.
	BaseBackoff   time.Duration
	MaxBackoff    time.Duration
	RatePerSecond float64 // 0 disables the limiter.
}

// DefaultConfig matches §5's default RPC timeout and a conservative
// bounded retry policy.
func DefaultConfig() Config {
	return Config{
		Timeout:     30 * time.Second,
		MaxRetries:  4,
		BaseBackoff: 200 * time.Millisecond,
		MaxBackoff:  5 * time.Second,
	}
}

// Client is a retrying, rate-limited JSON-RPC client for one chain
// endpoint.
type Client struct {
	raw     *rpc.Client
	cfg     Config
	limiter *rate.Limiter
}

// Dial connects to url (http(s):// or ws(s)://) and wraps it per cfg.
func Dial(ctx context.Context, url string, cfg Config) (*Client, error) {
	raw, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, errors.Wrapf(err, "rpcclient: dial %s", url)
	}
	c := &Client{raw: raw, cfg: cfg}
	if cfg.RatePerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), int(cfg.RatePerSecond)+1)
	}
	return c, nil
}

// Close releases the underlying connection.
func (c *Client) Close() { c.raw.Close() }

// Call invokes method with args, decoding the result into result. It
// retries transient network/timeout/5xx failures with exponential
// backoff plus jitter, bounded by cfg.MaxRetries; any other error
// (malformed response, 4xx, application-level JSON-RPC error)
// propagates immediately, per §7's transient-vs-protocol distinction.
func (c *Client) Call(ctx context.Context, result interface{}, method string, args ...interface{}) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
		err := c.raw.CallContext(callCtx, result, method, args...)
		cancel()
		if err == nil {
			return nil
		}
		if !isTransient(err) {
			return err
		}
		lastErr = err
		if attempt == c.cfg.MaxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff(c.cfg, attempt)):
		}
		logger.Warn("retrying rpc call", "method", method, "attempt", attempt+1, "err", err)
	}
	return errors.Wrapf(lastErr, "rpcclient: %s exhausted retries", method)
}

// BatchCall invokes several methods in one round trip using
// go-ethereum's BatchElem. The EVM provider uses it for one
// eth_getTransactionReceipt per transaction; the block itself is
// fetched by a separate Call. Unlike Call, BatchCall does not retry.
func (c *Client) BatchCall(ctx context.Context, elems []rpc.BatchElem) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()
	return c.raw.BatchCallContext(callCtx, elems)
}

func backoff(cfg Config, attempt int) time.Duration {
	d := cfg.BaseBackoff << uint(attempt)
	if d > cfg.MaxBackoff || d <= 0 {
		d = cfg.MaxBackoff
	}
	jitter := time.Duration(rand.Int63n(int64(d) / 2))
	return d/2 + jitter
}

// isTransient classifies connect/timeout/5xx-ish errors as retryable.
// Decode errors and well-formed JSON-RPC application errors (4xx
// equivalents) are not.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if err == context.DeadlineExceeded {
		return true
	}
	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode >= 500
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout"),
		strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "eof"),
		strings.Contains(msg, "reset by peer"),
		strings.Contains(msg, "temporary"):
		return true
	}
	return false
}

// NewHTTPTransport returns an *http.Client tuned with the connection
// pooling defaults go-ethereum's own rpc package expects when a
// provider needs a bare HTTP client alongside the JSON-RPC one (e.g.
// for a REST-style balance endpoint some non-EVM chains expose).
func NewHTTPTransport(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}
