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
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/ocifetch/ocidist/registry"
	"github.com/ocifetch/ocidist/registry/remote/auth"
	"github.com/ocifetch/ocidist/registry/remote/internal/errutil"
)

// Registry is an HTTP client to a remote registry.
type Registry struct {
	// RepositoryOptions gives default options for Repository created by the
	// Repository method.
	RepositoryOptions

	// RepositoryListPageSize specifies the page size when invoking the
	// catalog API.
	// If zero, the page size is determined by the remote registry.
	// Reference: https://docs.docker.com/registry/spec/api/#catalog
	RepositoryListPageSize int
}

// NewRegistry creates a client to the remote registry with a default
// resolver.
func NewRegistry(name string) (*Registry, error) {
	ref := registry.Reference{Registry: name}
	if err := ref.ValidateRegistry(); err != nil {
		return nil, err
	}
	return &Registry{
		RepositoryOptions: RepositoryOptions{
			Reference: ref,
		},
	}, nil
}

// client returns an HTTP client used to access the remote registry.
// A default HTTP client is return if the client is not configured.
func (r *Registry) client() Client {
	if r.Client == nil {
		return auth.DefaultClient
	}
	return r.Client
}

// do sends an HTTP request req to the registry, dispatching any Warning
// headers on the response to r.HandleWarning when it is set.
func (r *Registry) do(req *http.Request) (*http.Response, error) {
	resp, err := r.client().Do(req)
	if err != nil {
		return nil, err
	}
	if r.HandleWarning != nil {
		for _, wv := range parseWarningValues(resp.Header[headerWarning]) {
			r.HandleWarning(Warning{WarningValue: wv})
		}
	}
	return resp, nil
}

// Ping checks whether the registry implements Distribution Specification and
// is accessible.
func (r *Registry) Ping(ctx context.Context) error {
	url := buildRegistryBaseURL(r.PlainHTTP, r.Reference)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := r.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errutil.ParseErrorResponse(resp)
	}
	return nil
}

// Repositories lists the name of repositories available in the registry in
// ascending order.
// See also `Registry.RepositoryListPageSize`.
// Reference: https://docs.docker.com/registry/spec/api/#catalog
func (r *Registry) Repositories(ctx context.Context, last string, fn func(repos []string) error) error {
	ref := registry.Reference{Registry: r.Reference.Registry}
	url := buildRegistryCatalogURL(r.PlainHTTP, ref)
	var err error
	for err == nil {
		url, err = r.repositories(ctx, last, fn, url)
		// clear `last` for subsequent pages
		last = ""
	}
	if err != errNoLink {
		return err
	}
	return nil
}

// repositories returns a single page of repository list with the next link.
func (r *Registry) repositories(ctx context.Context, last string, fn func(repos []string) error, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	if r.RepositoryListPageSize > 0 || last != "" {
		q := req.URL.Query()
		if r.RepositoryListPageSize > 0 {
			q.Set("n", strconv.Itoa(r.RepositoryListPageSize))
		}
		if last != "" {
			q.Set("last", last)
		}
		req.URL.RawQuery = q.Encode()
	}
	resp, err := r.do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", errutil.ParseErrorResponse(resp)
	}
	var page struct {
		Repositories []string `json:"repositories"`
	}
	lr := limitReader(resp.Body, r.MaxMetadataBytes)
	if err := json.NewDecoder(lr).Decode(&page); err != nil {
		return "", err
	}
	if err := fn(page.Repositories); err != nil {
		return "", err
	}

	return parseLink(resp)
}

// Repository returns a repository object for the given repository name.
func (r *Registry) Repository(ctx context.Context, name string) (registry.Repository, error) {
	ref := r.Reference
	ref.Repository = name
	return newRepositoryWithOptions(ref, &r.RepositoryOptions)
}
