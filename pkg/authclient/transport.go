// Package authclient provides an http.RoundTripper for services calling APIs
// protected by this account service. It attaches the access token, and on a
// 401 refreshes it exactly once per expiry no matter how many requests are in
// flight, then retries idempotent requests with the new token.
package authclient

import (
	"context"
	"io"
	"net/http"
	"sync"

	"golang.org/x/sync/singleflight"
)

// TokenSource supplies the current access token and knows how to obtain a
// fresh one. Refresh must be safe for concurrent use; the Transport already
// collapses concurrent refreshes, so a plain implementation is fine.
type TokenSource interface {
	Token() string
	Refresh(ctx context.Context) (string, error)
}

// Transport is an http.RoundTripper that injects bearer credentials and
// transparently recovers from access-token expiry.
//
// Requests to RefreshPath are passed through untouched: retrying or
// re-refreshing on the refresh call itself would loop.
type Transport struct {
	// Base performs the actual round trips. Defaults to
	// http.DefaultTransport.
	Base http.RoundTripper

	// Source supplies and refreshes the access token.
	Source TokenSource

	// RefreshPath is the exact URL path of the token refresh endpoint.
	RefreshPath string

	// OnRefreshFailure, when set, is invoked at most once per refresh
	// cycle: the first failed refresh fires it, and the next successful
	// refresh re-arms it. Callers typically use it to force a re-login.
	// A panicking callback is contained and does not poison in-flight
	// requests.
	OnRefreshFailure func(error)

	group           singleflight.Group
	mu              sync.Mutex
	failureReported bool
}

// refreshKey collapses all concurrent refresh attempts into one.
const refreshKey = "refresh"

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	if req.URL.Path == t.RefreshPath {
		return base.RoundTrip(req)
	}

	// Per RoundTripper contract the request must not be mutated.
	authed := req.Clone(req.Context())
	if token := t.Source.Token(); token != "" && authed.Header.Get("Authorization") == "" {
		authed.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := base.RoundTrip(authed)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}

	token, refreshErr := t.refresh(req.Context())
	if refreshErr != nil {
		t.reportFailure(refreshErr)
		return resp, nil
	}

	if !idempotent(req) {
		// The caller sees the 401 and decides whether to replay; the token
		// is already refreshed for its next attempt.
		return resp, nil
	}

	// Discard the 401 before retrying so the connection can be reused.
	io.Copy(io.Discard, resp.Body) //nolint:errcheck
	resp.Body.Close()

	retry := req.Clone(req.Context())
	retry.Header.Set("Authorization", "Bearer "+token)
	return base.RoundTrip(retry)
}

// refresh obtains a new access token, deduplicating concurrent attempts: all
// callers waiting on an in-flight refresh share its result.
func (t *Transport) refresh(ctx context.Context) (string, error) {
	token, err, _ := t.group.Do(refreshKey, func() (any, error) {
		return t.Source.Refresh(ctx)
	})
	if err != nil {
		return "", err
	}
	t.mu.Lock()
	t.failureReported = false
	t.mu.Unlock()
	return token.(string), nil
}

// reportFailure fires the failure callback unless the current refresh cycle
// already did; refresh re-arms it on success.
func (t *Transport) reportFailure(err error) {
	t.mu.Lock()
	alreadyReported := t.failureReported
	t.failureReported = true
	t.mu.Unlock()
	if alreadyReported || t.OnRefreshFailure == nil {
		return
	}
	defer func() {
		// A panic in user code must not take down the transport.
		_ = recover()
	}()
	t.OnRefreshFailure(err)
}

// idempotent reports whether the request is safe to replay automatically.
// Bodied methods are excluded even when GetBody is available: the server may
// have acted on the first attempt before responding 401.
func idempotent(req *http.Request) bool {
	switch req.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return req.Body == nil || req.Body == http.NoBody
	default:
		return false
	}
}
