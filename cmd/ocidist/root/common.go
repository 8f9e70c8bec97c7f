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

package root

import (
	"github.com/pkg/errors"

	"github.com/ocifetch/ocidist/registry/remote"
	"github.com/ocifetch/ocidist/registry/remote/auth"
	"github.com/ocifetch/ocidist/registry/remote/credentials"
)

// newRepository builds a *remote.Repository for ref, wiring an auth.Client
// whose Credential func resolves from the caller's docker-compatible config
// file (the same file `docker login` writes).
func newRepository(ref string, opts *globalOptions) (*remote.Repository, error) {
	repo, err := remote.NewRepository(ref)
	if err != nil {
		return nil, err
	}
	repo.PlainHTTP = opts.plainHTTP

	store, err := credentialStore()
	if err != nil {
		return nil, err
	}
	client := &auth.Client{
		Credential: credentials.NewCredentialFunc(store),
	}
	client.SetUserAgent("ocidist")
	repo.Client = client
	return repo, nil
}

// credentialStore returns the Store backing login/logout and the registry
// client's CredentialFunc: the docker-compatible config file, falling back
// to the platform's native credential helper when the caller has no
// credsStore/credHelpers configured yet.
func credentialStore() (credentials.Store, error) {
	store, err := credentials.NewStoreFromDocker(credentials.StoreOptions{
		DetectDefaultNativeStore: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to open credential store")
	}
	return store, nil
}
