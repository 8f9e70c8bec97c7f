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

package auth

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"
)

// tokenExpiryGrace is subtracted from a cached token's lifetime so that a
// token is treated as expired slightly before the registry would actually
// reject it.
const tokenExpiryGrace = 10 * time.Second

// tokenFallbackLifetime is assumed for any token this package cannot parse
// an expiration out of: opaque Basic credentials, or a Bearer token that
// isn't a three-segment JWT.
const tokenFallbackLifetime = 60 * time.Second

// tokenEntry pairs a cached credential with the time it stops being safe
// to use.
type tokenEntry struct {
	token     string
	expiresAt time.Time
}

// newTokenEntry wraps token, deriving its expiration via
// parseTokenExpiration.
func newTokenEntry(token string) *tokenEntry {
	return &tokenEntry{
		token:     token,
		expiresAt: parseTokenExpiration(token),
	}
}

// isExpired reports whether te should no longer be used. A zero expiresAt
// (set when the token's claims carried no expiration information at all)
// means the token is treated as never expiring.
func (te *tokenEntry) isExpired() bool {
	if te.expiresAt.IsZero() {
		return false
	}
	return !time.Now().Add(tokenExpiryGrace).Before(te.expiresAt)
}

// jwtPayload is the subset of registered JWT claims (RFC 7519 §4.1) this
// package needs to track a Bearer token's lifetime.
type jwtPayload struct {
	ExpiresAt int64 `json:"exp"`
}

// parseTokenExpiration derives the instant after which token should be
// considered stale. Only the three-segment JWT shape used by Bearer auth
// carries this information; anything else — including opaque Basic
// credentials — gets tokenFallbackLifetime from now.
func parseTokenExpiration(token string) time.Time {
	fallback := time.Now().Add(tokenFallbackLifetime)

	segments := strings.Split(token, ".")
	if len(segments) != 3 {
		return fallback
	}

	raw, err := base64.RawURLEncoding.DecodeString(segments[1])
	if err != nil {
		return fallback
	}

	var payload jwtPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fallback
	}
	if payload.ExpiresAt <= 0 {
		return fallback
	}
	return time.Unix(payload.ExpiresAt, 0)
}
