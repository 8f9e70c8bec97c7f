/*
Copyright The ORAS Authors.
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package retry wraps an http.RoundTripper with a configurable retry Policy,
// replaying requests that fail transiently (rate limiting, timeouts, server
// errors) with a backoff between attempts.
package retry

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"
)

// DefaultClient retries requests using DefaultPolicy.
var DefaultClient = NewClient()

// NewClient builds an *http.Client whose Transport retries failed requests
// per DefaultPolicy.
func NewClient() *http.Client {
	return &http.Client{Transport: NewTransport(nil)}
}

// Transport decorates a base http.RoundTripper with retry behavior driven by
// Policy. The zero value is usable: Base defaults to http.DefaultTransport
// and Policy to DefaultPolicy.
type Transport struct {
	Base   http.RoundTripper
	Policy func() Policy
}

// NewTransport wraps base in a Transport using the default retry policy.
// A nil base falls back to http.DefaultTransport at request time.
func NewTransport(base http.RoundTripper) *Transport {
	return &Transport{Base: base}
}

// RoundTrip sends req, replaying it according to the configured Policy until
// the policy gives up, the request succeeds, or ctx is canceled. A request
// with a body must be seekable across retries, so the body is buffered into
// memory the first time a retry is needed.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	policy := t.policyFor()
	base := t.baseTransport()
	ctx := req.Context()

	for attempt := 0; ; attempt++ {
		resp, rtErr := base.RoundTrip(req)
		wait, err := policy.Retry(ctx, attempt, resp, rtErr)
		if wait < 0 {
			return resp, err
		}
		if err := rebuildRequestBody(req, resp); err != nil {
			return resp, err
		}
		if err := sleep(ctx, wait); err != nil {
			return nil, err
		}
	}
}

func (t *Transport) baseTransport() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

func (t *Transport) policyFor() Policy {
	if t.Policy != nil {
		return t.Policy()
	}
	return DefaultPolicy
}

// rebuildRequestBody drains and closes resp.Body, then reattaches its bytes
// to req so the request can be replayed. No-op when req carries no body.
func rebuildRequestBody(req *http.Request, resp *http.Response) error {
	if req.Body == nil {
		return nil
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return err
	}
	if err := resp.Body.Close(); err != nil {
		return err
	}
	req.Body = io.NopCloser(&buf)
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
