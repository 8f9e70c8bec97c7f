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

package remote

import (
	"fmt"
	"net/http"

	"github.com/docker/go-connections/tlsconfig"
	"github.com/ocifetch/ocidist/registry/remote/auth"
	"github.com/ocifetch/ocidist/registry/remote/retry"
)

// ClientOptions configures the TLS transport used by NewClient. The zero
// value builds a client trusting the host's root CA pool, equivalent to
// dialing a public registry over HTTPS with no client certificate.
type ClientOptions struct {
	// CAFile names a PEM-encoded CA bundle to trust in addition to the system
	// pool. Leave empty to trust only the system pool.
	CAFile string

	// CertFile and KeyFile name a PEM client certificate and key used for
	// mutual TLS. Both must be set together or not at all.
	CertFile, KeyFile string

	// InsecureSkipVerify disables server certificate verification. It exists
	// for talking to registries fronted by self-signed certificates during
	// development; it must never be set for a production endpoint.
	InsecureSkipVerify bool
}

// NewClient builds an auth.Client whose transport is configured from opts via
// tlsconfig, instead of hand-assembling a tls.Config.
func NewClient(opts ClientOptions) (*auth.Client, error) {
	tlsConfig, err := tlsconfig.Client(tlsconfig.Options{
		CAFile:             opts.CAFile,
		CertFile:           opts.CertFile,
		KeyFile:            opts.KeyFile,
		InsecureSkipVerify: opts.InsecureSkipVerify,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build TLS config: %w", err)
	}

	transport := &http.Transport{TLSClientConfig: tlsConfig}
	return &auth.Client{
		Client: &http.Client{Transport: retry.NewTransport(transport)},
	}, nil
}
