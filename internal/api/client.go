// Package api is the typed REST client for the majorpath backend. A single
// Client instance owns the token-refresh state: on a 401 it performs exactly
// one refresh call no matter how many requests fail concurrently, parks the
// others behind it, and releases them together with the outcome.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"majorpath.org/internal/obs"
)

const (
	defaultTimeout   = 30 * time.Second
	refreshPath      = "/auth/refresh"
	maxResponseBytes = 1 << 20
)

// CredentialSource is the slice of the credential store the client needs.
type CredentialSource interface {
	Token() (string, bool)
	SetToken(token string)
	Clear()
}

type refreshResult struct {
	token string
	err   error
}

// Client issues requests against the backend with bearer authentication and
// transparent single-flight token refresh. Construct one per process.
type Client struct {
	baseURL          string
	httpc            *http.Client
	creds            CredentialSource
	limiter          *rate.Limiter
	now              func() time.Time
	onSessionExpired func()

	mu         sync.Mutex
	refreshing bool
	waiters    []chan refreshResult
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpc = h
		}
	}
}

// WithTimeout overrides the fixed request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpc.Timeout = d
		}
	}
}

// WithRateLimit overrides the client-side request pacing.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) {
		if perSecond > 0 && burst > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		}
	}
}

// WithSessionExpiredHandler installs the callback invoked when the session
// becomes unrecoverable (the refresh call itself was rejected). The consumer
// decides what "go to login" means.
func WithSessionExpiredHandler(fn func()) Option {
	return func(c *Client) { c.onSessionExpired = fn }
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(c *Client) {
		if fn != nil {
			c.now = fn
		}
	}
}

// New constructs a Client for the given base URL and credential source.
func New(baseURL string, creds CredentialSource, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: defaultTimeout},
		creds:   creds,
		limiter: rate.NewLimiter(rate.Limit(10), 20),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type request struct {
	endpoint       string // logical name for metrics and logs
	method         string
	path           string
	query          url.Values
	body           any
	idempotencyKey string
}

// do issues the request, refreshing the token and retrying once when a
// bearer-authenticated call comes back 401.
func (c *Client) do(ctx context.Context, r request, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return transportError(err)
	}
	token, hadToken := c.creds.Token()
	err := c.doOnce(ctx, r, out)
	if err == nil {
		return nil
	}
	var ae *Error
	if hadToken && errors.As(err, &ae) && ae.Status == http.StatusUnauthorized {
		if _, rerr := c.refresh(ctx, token); rerr != nil {
			return rerr
		}
		return c.doOnce(ctx, r, out)
	}
	return err
}

func (c *Client) doOnce(ctx context.Context, r request, out any) error {
	target := c.baseURL + r.path
	if len(r.query) > 0 {
		target += "?" + r.query.Encode()
	}
	var body io.Reader
	if r.body != nil {
		data, err := json.Marshal(r.body)
		if err != nil {
			return transportError(err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, target, body)
	if err != nil {
		return transportError(err)
	}
	req.Header.Set("Accept", "application/json")
	if r.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Request-ID", uuid.NewString())
	if r.idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", r.idempotencyKey)
	}
	if token, ok := c.creds.Token(); ok {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := c.now()
	resp, err := c.httpc.Do(req)
	if err != nil {
		obs.ObserveRequest(r.endpoint, 0, c.now().Sub(start))
		return transportError(err)
	}
	defer resp.Body.Close()
	obs.ObserveRequest(r.endpoint, resp.StatusCode, c.now().Sub(start))

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return transportError(err)
	}
	var env envelope
	if len(raw) > 0 {
		// Error bodies are not guaranteed to be JSON; status mapping below
		// still produces a normalized error without a server message.
		_ = json.Unmarshal(raw, &env)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return mapStatusError(resp.StatusCode, env.Message)
	}
	if !env.Success {
		msg := env.Message
		if msg == "" {
			msg = genericMessage
		}
		return &Error{Status: resp.StatusCode, Message: msg}
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return transportError(err)
		}
	}
	return nil
}

// refresh collapses concurrent 401 recoveries into one refresh call. The
// first caller performs the call; everyone else parks on a channel and is
// released with the same outcome, in arrival order. A caller whose 401 was
// produced by a token that has since been replaced skips the refresh
// entirely and retries with the current token.
func (c *Client) refresh(ctx context.Context, staleToken string) (string, error) {
	c.mu.Lock()
	if cur, ok := c.creds.Token(); ok && cur != staleToken {
		c.mu.Unlock()
		return cur, nil
	}
	if c.refreshing {
		ch := make(chan refreshResult, 1)
		c.waiters = append(c.waiters, ch)
		obs.RefreshQueueDepth(len(c.waiters))
		c.mu.Unlock()
		select {
		case res := <-ch:
			return res.token, res.err
		case <-ctx.Done():
			return "", transportError(ctx.Err())
		}
	}
	c.refreshing = true
	c.mu.Unlock()
	obs.RefreshStarted()

	token, err := c.callRefresh(ctx)
	c.settleRefresh(token, err)
	return token, err
}

// settleRefresh clears the in-flight flag and drains the queue on every
// refresh outcome.
func (c *Client) settleRefresh(token string, err error) {
	c.mu.Lock()
	waiters := c.waiters
	c.waiters = nil
	c.refreshing = false
	c.mu.Unlock()
	obs.RefreshQueueDepth(0)
	outcome := "ok"
	if err != nil {
		outcome = "failed"
	}
	obs.RefreshFinished(outcome)
	for _, ch := range waiters {
		ch <- refreshResult{token: token, err: err}
	}
}

func (c *Client) callRefresh(ctx context.Context) (string, error) {
	var data struct {
		Token string `json:"token"`
	}
	err := c.doOnce(ctx, request{
		endpoint: "auth.refresh",
		method:   http.MethodPost,
		path:     refreshPath,
	}, &data)
	if err != nil {
		if errors.Is(err, ErrUnauthorized) {
			// The refresh endpoint itself rejected us: the session is over.
			c.creds.Clear()
			if c.onSessionExpired != nil {
				c.onSessionExpired()
			}
			return "", &Error{
				Status:  http.StatusUnauthorized,
				Message: "session expired, please sign in again",
				kind:    ErrSessionExpired,
			}
		}
		return "", err
	}
	if data.Token == "" {
		return "", transportError(errors.New("refresh response missing token"))
	}
	c.creds.SetToken(data.Token)
	return data.Token, nil
}
