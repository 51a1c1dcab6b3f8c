package apiclient

import (
	"context"
	"net/http"
	"strings"
)

// pendingRequest is a request parked behind an in-flight refresh.
// done is buffered so settling never blocks on a waiter that gave up.
type pendingRequest struct {
	done chan refreshResult
}

type refreshResult struct {
	token string
	err   error
}

func newPendingRequest() *pendingRequest {
	return &pendingRequest{done: make(chan refreshResult, 1)}
}

func (p *pendingRequest) resolve(token string) { p.done <- refreshResult{token: token} }
func (p *pendingRequest) reject(err error)     { p.done <- refreshResult{err: err} }

type refreshEnvelope struct {
	Data struct {
		AccessToken string `json:"accessToken"`
	} `json:"data"`
}

func (c *Client) handleUnauthorized(ctx context.Context, cl *call, resp *Response) (*Response, error) {
	unauthorized := &ResponseError{Method: cl.method, Path: cl.path, Response: resp}

	// Never refresh on behalf of the refresh call itself, and never twice for one call chain.
	if c.isRefreshPath(cl.path) || cl.retried {
		return nil, unauthorized
	}

	c.mu.Lock()
	if c.refreshing {
		p := newPendingRequest()
		c.queue = append(c.queue, p)
		c.mu.Unlock()

		c.metrics.observeQueued()
		c.log.Debug("apiclient.refresh.queued", "method", cl.method, "path", cl.path)
		return c.await(ctx, cl, p)
	}
	if cl.sentEpoch != c.epoch {
		// A refresh settled while this request was on the wire; reuse its outcome.
		current, lastErr := c.authHeader, c.lastRefreshErr
		c.mu.Unlock()
		if lastErr != nil {
			return nil, lastErr
		}
		return c.retry(ctx, cl, current)
	}
	c.refreshing = true
	c.mu.Unlock()

	// One caller giving up must not fail the refresh for every waiter.
	token, err := c.refresh(context.WithoutCancel(ctx))
	if err != nil {
		c.settleFailure(err)
		return nil, err
	}

	c.settleSuccess(token)
	return c.retry(ctx, cl, bearer(token))
}

func (c *Client) refresh(ctx context.Context) (string, error) {
	cl, err := c.newCall(&Request{Method: http.MethodPost, Path: c.cfg.RefreshPath})
	if err != nil {
		return "", err
	}

	resp, err := c.execute(ctx, cl)
	if err != nil {
		c.metrics.observeRefresh("failure")
		return "", err
	}

	var env refreshEnvelope
	if err := resp.Decode(&env); err != nil {
		c.metrics.observeRefresh("failure")
		return "", err
	}
	token := strings.TrimSpace(env.Data.AccessToken)
	if token == "" {
		c.metrics.observeRefresh("empty")
		return "", ErrNoAccessToken
	}

	c.metrics.observeRefresh("success")
	return token, nil
}

func (c *Client) settleSuccess(token string) {
	c.mu.Lock()
	store := c.store
	c.mu.Unlock()

	if store != nil {
		store.SetAccessToken(token)
	}

	c.mu.Lock()
	c.authHeader = bearer(token)
	c.epoch++
	c.lastRefreshErr = nil
	queue := c.queue
	c.queue = nil
	c.refreshing = false
	c.mu.Unlock()

	c.log.Info("apiclient.refresh.ok", "released", len(queue))
	for _, p := range queue {
		p.resolve(token)
	}
}

func (c *Client) settleFailure(err error) {
	c.mu.Lock()
	c.epoch++
	c.lastRefreshErr = err
	queue := c.queue
	c.queue = nil
	c.refreshing = false
	logout := c.onLogout
	c.mu.Unlock()

	c.log.Warn("apiclient.refresh.fail", "err", err, "rejected", len(queue))
	for _, p := range queue {
		p.reject(err)
	}
	if logout != nil {
		logout()
	}
}

func (c *Client) await(ctx context.Context, cl *call, p *pendingRequest) (*Response, error) {
	select {
	case res := <-p.done:
		if res.err != nil {
			return nil, res.err
		}
		return c.retry(ctx, cl, bearer(res.token))
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Client) retry(ctx context.Context, cl *call, auth string) (*Response, error) {
	cl.auth = auth
	cl.retried = true
	return c.execute(ctx, cl)
}

// pendingCount reports the queue length; used by tests to sequence waiters.
func (c *Client) pendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

func (c *Client) isRefreshing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshing
}
