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

// Package testutil provides small helpers shared by tests that need a
// stable, reusable server address, such as range-request and redirect
// tests that construct absolute Location URLs ahead of starting the
// server.
package testutil

import (
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/phayes/freeport"
)

// FreePort returns a TCP port on localhost that is free at the time of the
// call. As with any "find a free port" helper, the port can theoretically
// be taken by another process before the caller binds to it; callers use it
// only to pre-compute a server's address before starting it.
func FreePort(t *testing.T) int {
	t.Helper()
	port, err := freeport.GetFreePort()
	if err != nil {
		t.Fatalf("failed to find a free port: %v", err)
	}
	return port
}

// NewFixedPortServer starts an httptest.Server bound to a pre-determined
// free local port (rather than the ephemeral port httptest.NewServer would
// pick), so the returned server's address can be embedded in test fixtures
// (e.g. redirect Location headers) before the server starts listening.
func NewFixedPortServer(t *testing.T, handler http.Handler) *httptest.Server {
	t.Helper()
	port := FreePort(t)
	listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		t.Fatalf("failed to listen on free port %d: %v", port, err)
	}

	server := &httptest.Server{
		Listener: listener,
		Config:   &http.Server{Handler: handler},
	}
	server.Start()
	t.Cleanup(server.Close)
	return server
}
