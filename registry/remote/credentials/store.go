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
	"strings"
)

// Store is the interface that any credentials store must implement.
type Store interface {
	// Get retrieves credentials from the store for the given server address.
	Get(ctx context.Context, serverAddress string) (Credential, error)
	// Put saves credentials into the store for the given server address.
	Put(ctx context.Context, serverAddress string, cred Credential) error
	// Delete removes credentials from the store for the given server address.
	Delete(ctx context.Context, serverAddress string) error
}

// StoreOptions provides options for NewStore.
type StoreOptions struct {
	// AllowPlaintextPut allows saving credentials in plaintext in the
	// config file pointed to by the config path, when no credential helper
	// is configured for the given server address.
	AllowPlaintextPut bool

	// DetectDefaultNativeStore allows detecting the default credential
	// helper of the platform, and using it as the fallback store when no
	// auths and no credsStore/credHelpers are configured yet for the config
	// file pointed to by the config path.
	DetectDefaultNativeStore bool
}

// dynamicStore dispatches to a native store, a configured credsStore, or the
// underlying config file itself, depending on what is configured for a given
// server address.
type dynamicStore struct {
	config  Config
	options StoreOptions

	// detectedCredsStore caches the result of getDefaultHelperSuffix so it is
	// computed at most once.
	detectedCredsStore string

	// fileStore caches the Store backed directly by config, so that multiple
	// server addresses sharing no credsStore/credHelpers share one instance.
	fileStore *FileStore
}

// NewStore returns a Store that dispatches to the credential helper, creds
// store, or config file named at configPath, depending on what is configured
// for a given server address.
func NewStore(configPath string, opts StoreOptions) (*dynamicStore, error) {
	cfg, err := newConfig(configPath)
	if err != nil {
		return nil, err
	}
	return &dynamicStore{
		config:  cfg,
		options: opts,
	}, nil
}

// newConfig picks the Config backend for configPath: configPath ending in
// ".conf" is parsed as a containers-registries.conf TOML file, anything else
// is parsed as a docker-style config.json.
func newConfig(configPath string) (Config, error) {
	if strings.HasSuffix(configPath, ".conf") {
		return NewRegistriesConf(configPath)
	}
	return newConfigJson(configPath)
}

// NewStoreFromDocker returns a Store based on the docker config file, i.e.
// $DOCKER_CONFIG/config.json, or $HOME/.docker/config.json if DOCKER_CONFIG
// is unset.
func NewStoreFromDocker(opts StoreOptions) (*dynamicStore, error) {
	path, err := getDockerConfigPath()
	if err != nil {
		return nil, err
	}
	return NewStore(path, opts)
}

// ConfigPath returns the config path used by ds.
func (ds *dynamicStore) ConfigPath() string {
	return ds.config.Path()
}

// IsAuthConfigured returns whether there is valid auth material configured.
func (ds *dynamicStore) IsAuthConfigured() bool {
	return ds.config.IsAuthConfigured()
}

// getHelperSuffix resolves the credential helper suffix to use for
// serverAddress: an explicit credHelpers entry, then a configured
// credsStore, then (if enabled and no auth material is configured yet) the
// platform's default helper.
func (ds *dynamicStore) getHelperSuffix(serverAddress string) string {
	if helper := ds.config.GetCredentialHelper(serverAddress); helper != "" {
		return helper
	}
	if store := ds.config.CredentialsStore(); store != "" {
		return store
	}
	if ds.options.DetectDefaultNativeStore && !ds.config.IsAuthConfigured() {
		if ds.detectedCredsStore == "" {
			ds.detectedCredsStore = getDefaultHelperSuffix()
		}
		return ds.detectedCredsStore
	}
	return ""
}

// getStore returns the underlying Store to use for serverAddress.
func (ds *dynamicStore) getStore(serverAddress string) Store {
	if suffix := ds.getHelperSuffix(serverAddress); suffix != "" {
		return NewNativeStore(suffix)
	}
	if ds.fileStore == nil {
		ds.fileStore = &FileStore{
			DisablePut: !ds.options.AllowPlaintextPut,
			config:     ds.config,
		}
	}
	return ds.fileStore
}

// Get retrieves credentials from the store for the given server address.
func (ds *dynamicStore) Get(ctx context.Context, serverAddress string) (Credential, error) {
	return ds.getStore(serverAddress).Get(ctx, serverAddress)
}

// Put saves credentials into the store for the given server address.
func (ds *dynamicStore) Put(ctx context.Context, serverAddress string, cred Credential) error {
	return ds.getStore(serverAddress).Put(ctx, serverAddress, cred)
}

// Delete removes credentials from the store for the given server address.
func (ds *dynamicStore) Delete(ctx context.Context, serverAddress string) error {
	return ds.getStore(serverAddress).Delete(ctx, serverAddress)
}

// storeWithFallbacks combines multiple stores into one: Put and Delete always
// target the first (primary) store, while Get consults each store in order
// and returns the first non-empty credential found.
type storeWithFallbacks struct {
	stores []Store
}

// NewStoreWithFallbacks creates a new store with fallbacks.
//
// The first store is primary, used for Put and Delete operations, and
// checked first during Get operations. If the primary store does not have
// the corresponding credentials during a Get call, the fallback credential
// stores are further checked in the order they are passed in.
func NewStoreWithFallbacks(primary Store, fallbacks ...Store) Store {
	return &storeWithFallbacks{
		stores: append([]Store{primary}, fallbacks...),
	}
}

// Get retrieves credentials from the stores for the given server address,
// stopping at the first store that returns a non-empty credential.
func (sf *storeWithFallbacks) Get(ctx context.Context, serverAddress string) (Credential, error) {
	for _, s := range sf.stores {
		cred, err := s.Get(ctx, serverAddress)
		if err != nil {
			return EmptyCredential, err
		}
		if cred != EmptyCredential {
			return cred, nil
		}
	}
	return EmptyCredential, nil
}

// Put saves credentials into the primary store for the given server address.
func (sf *storeWithFallbacks) Put(ctx context.Context, serverAddress string, cred Credential) error {
	return sf.stores[0].Put(ctx, serverAddress, cred)
}

// Delete removes credentials from the primary store for the given server
// address.
func (sf *storeWithFallbacks) Delete(ctx context.Context, serverAddress string) error {
	return sf.stores[0].Delete(ctx, serverAddress)
}
