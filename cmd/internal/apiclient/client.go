package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"

	"arcweb/cmd/internal/ids"

	"golang.org/x/net/publicsuffix"
)

const maxResponseBytes = 8 << 20

// SessionStore receives the access token after every successful refresh.
type SessionStore interface {
	SetAccessToken(token string)
}

// Request describes one API call. Path is resolved against the base URL.
type Request struct {
	Method string
	Path   string
	Body   any
	Header http.Header
}

// Response is a fully read API response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Decode unmarshals the JSON body into dst. An empty body leaves dst untouched.
func (r *Response) Decode(dst any) error {
	if r == nil || dst == nil || len(bytes.TrimSpace(r.Body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Body, dst); err != nil {
		return fmt.Errorf("apiclient: decode response: %w", err)
	}
	return nil
}

// Client is the refresh-aware API client.
type Client struct {
	cfg     Config
	base    *url.URL
	// refreshPath is the refresh endpoint resolved against base.
	refreshPath string
	hc      *http.Client
	log     *slog.Logger
	metrics *Metrics

	mu         sync.Mutex
	authHeader string
	store      SessionStore
	onLogout   func()
	refreshing bool
	queue      []*pendingRequest

	// epoch advances whenever the credential changes (Init or a settled refresh);
	// lastRefreshErr is the outcome of the most recent settle.
	epoch          uint64
	lastRefreshErr error
}

// Option configures optional Client dependencies.
type Option func(*Client)

// WithHTTPClient replaces the default transport. Its Timeout is left as given.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.hc = hc
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// WithMetrics attaches Prometheus collectors.
func WithMetrics(m *Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// New constructs a Client. Requests may be sent before Init; they carry no credential.
func New(cfg Config, opts ...Option) (*Client, error) {
	cfg, base, err := cfg.normalized()
	if err != nil {
		return nil, err
	}

	c := &Client{
		cfg:         cfg,
		base:        base,
		refreshPath: resolvePath(base, cfg.RefreshPath),
		log:         slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	if c.hc == nil {
		jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if err != nil {
			return nil, err
		}
		c.hc = &http.Client{Timeout: cfg.Timeout, Jar: jar}
	}
	return c, nil
}

// Init binds the session store and logout callback and sets the default credential.
func (c *Client) Init(store SessionStore, accessToken string, onLogout func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.store = store
	c.onLogout = onLogout
	c.authHeader = bearer(accessToken)
	c.epoch++
	c.lastRefreshErr = nil
}

// AuthorizationHeader returns the default credential header value.
func (c *Client) AuthorizationHeader() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authHeader
}

// Do sends req and returns the full response.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	cl, err := c.newCall(req)
	if err != nil {
		return nil, err
	}
	return c.execute(ctx, cl)
}

// Get sends a GET and decodes the body into out.
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.send(ctx, http.MethodGet, path, nil, out)
}

// Post sends a POST with a JSON body (nil for none) and decodes the body into out.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.send(ctx, http.MethodPost, path, body, out)
}

// Put sends a PUT with a JSON body and decodes the body into out.
func (c *Client) Put(ctx context.Context, path string, body, out any) error {
	return c.send(ctx, http.MethodPut, path, body, out)
}

// Patch sends a PATCH with a JSON body and decodes the body into out.
func (c *Client) Patch(ctx context.Context, path string, body, out any) error {
	return c.send(ctx, http.MethodPatch, path, body, out)
}

// Delete sends a DELETE and decodes the body into out.
func (c *Client) Delete(ctx context.Context, path string, out any) error {
	return c.send(ctx, http.MethodDelete, path, nil, out)
}

func (c *Client) send(ctx context.Context, method, path string, body, out any) error {
	resp, err := c.Do(ctx, &Request{Method: method, Path: path, Body: body})
	if err != nil {
		return err
	}
	return resp.Decode(out)
}

// call is a replayable request: the body is encoded once so retries can resend it.
type call struct {
	method string
	path   string
	url    string
	body   []byte
	header http.Header

	// auth overrides the default credential (set on retry).
	auth string
	// sentEpoch is the credential epoch of the last attempt.
	sentEpoch uint64
	retried   bool
}

func (c *Client) newCall(req *Request) (*call, error) {
	if req == nil {
		return nil, errors.New("apiclient: nil request")
	}
	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		method = http.MethodGet
	}

	ref, err := url.Parse(req.Path)
	if err != nil {
		return nil, fmt.Errorf("apiclient: parse path %q: %w", req.Path, err)
	}
	target := c.base.JoinPath(ref.Path)
	target.RawQuery = ref.RawQuery

	cl := &call{
		method: method,
		path:   absPath(target.Path),
		url:    target.String(),
		header: req.Header.Clone(),
	}
	if req.Body != nil {
		b, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("apiclient: encode body: %w", err)
		}
		cl.body = b
	}
	return cl, nil
}

func (c *Client) execute(ctx context.Context, cl *call) (*Response, error) {
	resp, err := c.roundTrip(ctx, cl)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return c.handleUnauthorized(ctx, cl, resp)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &ResponseError{Method: cl.method, Path: cl.path, Response: resp}
	}
	return resp, nil
}

func (c *Client) roundTrip(ctx context.Context, cl *call) (*Response, error) {
	var body io.Reader
	if cl.body != nil {
		body = bytes.NewReader(cl.body)
	}
	hreq, err := http.NewRequestWithContext(ctx, cl.method, cl.url, body)
	if err != nil {
		return nil, err
	}

	for k, vs := range cl.header {
		for _, v := range vs {
			hreq.Header.Add(k, v)
		}
	}
	hreq.Header.Set("Content-Type", "application/json")
	hreq.Header.Set("Accept", "application/json")
	if hreq.Header.Get("X-Request-ID") == "" {
		if id := ids.NewString(); id != "" {
			hreq.Header.Set("X-Request-ID", id)
		}
	}

	c.mu.Lock()
	auth := cl.auth
	if auth == "" {
		auth = c.authHeader
	}
	cl.sentEpoch = c.epoch
	c.mu.Unlock()
	if auth != "" {
		hreq.Header.Set("Authorization", auth)
	}

	if c.isRefreshPath(cl.path) {
		c.attachCSRF(hreq)
	}

	res, err := c.hc.Do(hreq)
	if err != nil {
		c.metrics.observeRequest(cl.method, 0)
		c.log.Debug("apiclient.request.fail", "method", cl.method, "path", cl.path, "err", err)
		return nil, err
	}
	defer func() { _ = res.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("apiclient: read response: %w", err)
	}

	c.metrics.observeRequest(cl.method, res.StatusCode)
	c.log.Debug("apiclient.request", "method", cl.method, "path", cl.path, "status", res.StatusCode, "retried", cl.retried)

	return &Response{StatusCode: res.StatusCode, Header: res.Header, Body: data}, nil
}

func (c *Client) attachCSRF(hreq *http.Request) {
	if c.hc.Jar == nil || c.cfg.CSRFCookieName == "" || c.cfg.CSRFHeaderName == "" {
		return
	}
	if hreq.Header.Get(c.cfg.CSRFHeaderName) != "" {
		return
	}
	for _, ck := range c.hc.Jar.Cookies(hreq.URL) {
		if ck.Name == c.cfg.CSRFCookieName && strings.TrimSpace(ck.Value) != "" {
			hreq.Header.Set(c.cfg.CSRFHeaderName, ck.Value)
			return
		}
	}
}

func (c *Client) isRefreshPath(path string) bool {
	return absPath(path) == c.refreshPath
}

func resolvePath(base *url.URL, p string) string {
	if u, err := url.Parse(p); err == nil {
		p = u.Path
	}
	return absPath(base.JoinPath(p).Path)
}

// absPath returns p with exactly one leading slash and no trailing slash.
// JoinPath on a base without a path yields a relative result.
func absPath(p string) string {
	return "/" + strings.Trim(p, "/")
}

func bearer(token string) string {
	token = strings.TrimSpace(token)
	if token == "" {
		return ""
	}
	return "Bearer " + token
}
