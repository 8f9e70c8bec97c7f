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

package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"sync"
	"time"
)

const headerRetryAfter = "Retry-After"

// DefaultPolicy retries 5 times with exponential backoff and jitter between
// 200ms and 3s.
var DefaultPolicy Policy = &GenericPolicy{
	Retryable: DefaultPredicate,
	Backoff:   DefaultBackoff,
	MinWait:   200 * time.Millisecond,
	MaxWait:   3 * time.Second,
	MaxRetry:  5,
}

// DefaultPredicate retries server errors, rate limiting, and authentication
// and request-timeout responses; everything else is considered final.
var DefaultPredicate Predicate = func(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		return false, err
	}
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusRequestTimeout, http.StatusTooManyRequests:
		return true, nil
	}
	if resp.StatusCode == 0 || resp.StatusCode >= 500 {
		return true, fmt.Errorf("unexpected HTTP status %s", resp.Status)
	}
	return false, nil
}

// DefaultBackoff doubles a 250ms base on each attempt, jittered by 10%.
var DefaultBackoff Backoff = ExponentialBackoff(250*time.Millisecond, 2, 0.1)

// Policy decides whether and how long to wait before replaying a request.
type Policy interface {
	// Retry returns the wait before the next attempt, or a negative
	// duration if no further attempt should be made.
	Retry(ctx context.Context, attempt int, resp *http.Response, err error) (time.Duration, error)
}

// Predicate reports whether a response/error pair is worth retrying.
type Predicate func(ctx context.Context, resp *http.Response, err error) (bool, error)

// Backoff computes the wait before the attempt-th retry, given the response
// (if any) from the previous attempt.
type Backoff func(attempt int, resp *http.Response) time.Duration

// jitterSource is shared across all Backoff funcs built by ExponentialBackoff;
// math/rand.Rand is not safe for concurrent use, so access is serialized.
var jitterSource = struct {
	mu  sync.Mutex
	rng *rand.Rand
}{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}

func jitter(span int64) time.Duration {
	if span <= 0 {
		return 0
	}
	jitterSource.mu.Lock()
	defer jitterSource.mu.Unlock()
	return time.Duration(jitterSource.rng.Int63n(span))
}

// ExponentialBackoff returns a Backoff growing as base*factor^attempt, plus a
// random jitter up to jitterFrac of base. A Retry-After header on a 429
// response overrides the computed wait, still with jitter applied.
func ExponentialBackoff(base time.Duration, factor int, jitterFrac float64) Backoff {
	span := int64(jitterFrac * float64(base))
	return func(attempt int, resp *http.Response) time.Duration {
		if resp != nil && resp.StatusCode == http.StatusTooManyRequests {
			if v := resp.Header.Get(headerRetryAfter); v != "" {
				if seconds, _ := strconv.ParseInt(v, 10, 64); seconds > 0 {
					return time.Duration(seconds)*time.Second + jitter(span)
				}
			}
		}
		wait := time.Duration(float64(base) * math.Pow(float64(factor), float64(attempt)))
		return wait + jitter(span)
	}
}

// GenericPolicy composes a Predicate and Backoff with wait bounds and a
// retry ceiling into a Policy.
type GenericPolicy struct {
	Retryable Predicate
	Backoff   Backoff
	MinWait   time.Duration
	MaxWait   time.Duration
	MaxRetry  int
}

// Retry implements Policy.
func (p *GenericPolicy) Retry(ctx context.Context, attempt int, resp *http.Response, err error) (time.Duration, error) {
	if attempt >= p.MaxRetry {
		return -1, err
	}
	retryable, predErr := p.Retryable(ctx, resp, err)
	if !retryable {
		return -1, predErr
	}
	return clamp(p.Backoff(attempt, resp), p.MinWait, p.MaxWait), nil
}

func clamp(d, lo, hi time.Duration) time.Duration {
	switch {
	case d < lo:
		return lo
	case d > hi:
		return hi
	default:
		return d
	}
}
