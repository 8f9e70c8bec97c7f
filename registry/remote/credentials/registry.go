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

package credentials

import (
	"context"
	"errors"
	"fmt"

	"github.com/ocifetch/ocidist/registry/remote"
	"github.com/ocifetch/ocidist/registry/remote/auth"
)

// ErrClientTypeUnsupported is returned by Login when the registry's
// underlying HTTP client is not an *auth.Client, since there is no
// CredentialFunc to configure credentials onto.
var ErrClientTypeUnsupported = errors.New("client type unsupported")

// dockerIndexServer is the legacy server address used by docker.io in
// config files.
//
// Reference: https://github.com/docker/cli/blob/v24.0.0-beta.2/cli/config/credentials/file_store.go
const dockerIndexServer = "https://index.docker.io/v1/"

// ServerAddressFromRegistry maps a registry host to the server address used
// to key it in a credentials store, mapping "docker.io" to the legacy
// dockerIndexServer as docker.io does.
func ServerAddressFromRegistry(registry string) string {
	if registry == "registry-1.docker.io" || registry == "docker.io" {
		return dockerIndexServer
	}
	return registry
}

// NewCredentialFunc returns a CredentialFunc that retrieves credentials from
// store for the hostname of a given registry.
func NewCredentialFunc(store Store) CredentialFunc {
	return func(ctx context.Context, reg string) (Credential, error) {
		return store.Get(ctx, ServerAddressFromRegistry(reg))
	}
}

// Login logs in to reg using cred, verifying the credentials against reg by
// pinging it, and persists them into store on success.
func Login(ctx context.Context, store Store, reg *remote.Registry, cred Credential) error {
	client, ok := reg.Client.(*auth.Client)
	if !ok {
		return fmt.Errorf("%w: failed to login to %s", ErrClientTypeUnsupported, reg.Reference.Registry)
	}

	// Attempt to login with the credential before storing it, so that
	// invalid credentials are not persisted.
	client.Credential = StaticCredentialFunc(reg.Reference.Registry, cred)
	if err := reg.Ping(ctx); err != nil {
		return err
	}

	serverAddress := ServerAddressFromRegistry(reg.Reference.Registry)
	return store.Put(ctx, serverAddress, cred)
}

// Logout logs out from registryName, removing any stored credential for it.
func Logout(ctx context.Context, store Store, registryName string) error {
	return store.Delete(ctx, ServerAddressFromRegistry(registryName))
}
