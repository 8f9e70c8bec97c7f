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
	"net/url"
	"strings"

	"github.com/ocifetch/ocidist/registry"
)

// endpointBuilder derives the distribution-spec API endpoints for a single
// repository reference. All of buildRegistry*/buildRepository*/buildArtifact*
// below are thin wrappers around one of these, kept as free functions because
// every call site already has a plainHTTP flag and a registry.Reference lying
// around rather than a builder value.
type endpointBuilder struct {
	scheme string
	ref    registry.Reference
}

func newEndpointBuilder(plainHTTP bool, ref registry.Reference) endpointBuilder {
	scheme := "https"
	if plainHTTP {
		scheme = "http"
	}
	return endpointBuilder{scheme: scheme, ref: ref}
}

func (b endpointBuilder) registryBase() string {
	return fmt.Sprintf("%s://%s/v2/", b.scheme, b.ref.Host())
}

func (b endpointBuilder) catalog() string {
	return fmt.Sprintf("%s://%s/v2/_catalog", b.scheme, b.ref.Host())
}

func (b endpointBuilder) repositoryBase() string {
	return fmt.Sprintf("%s://%s/v2/%s", b.scheme, b.ref.Host(), b.ref.Repository)
}

func (b endpointBuilder) join(segments ...string) string {
	parts := append([]string{b.repositoryBase()}, segments...)
	return strings.Join(parts, "/")
}

// buildRegistryBaseURL builds the URL for accessing the base API.
// Format: <scheme>://<registry>/v2/
// Reference: https://docs.docker.com/registry/spec/api/#base
func buildRegistryBaseURL(plainHTTP bool, ref registry.Reference) string {
	return newEndpointBuilder(plainHTTP, ref).registryBase()
}

// buildRegistryCatalogURL builds the URL for accessing the catalog API.
// Format: <scheme>://<registry>/v2/_catalog
// Reference: https://docs.docker.com/registry/spec/api/#catalog
func buildRegistryCatalogURL(plainHTTP bool, ref registry.Reference) string {
	return newEndpointBuilder(plainHTTP, ref).catalog()
}

// buildRepositoryBaseURL builds the base endpoint of the remote repository.
// Format: <scheme>://<registry>/v2/<repository>
func buildRepositoryBaseURL(plainHTTP bool, ref registry.Reference) string {
	return newEndpointBuilder(plainHTTP, ref).repositoryBase()
}

// buildRepositoryTagListURL builds the URL for accessing the tag list API.
// Format: <scheme>://<registry>/v2/<repository>/tags/list
// Reference: https://docs.docker.com/registry/spec/api/#tags
func buildRepositoryTagListURL(plainHTTP bool, ref registry.Reference) string {
	return newEndpointBuilder(plainHTTP, ref).join("tags", "list")
}

// buildRepositoryManifestURL builds the URL for accessing the manifest API.
// Format: <scheme>://<registry>/v2/<repository>/manifests/<digest_or_tag>
// Reference: https://docs.docker.com/registry/spec/api/#manifest
func buildRepositoryManifestURL(plainHTTP bool, ref registry.Reference) string {
	return newEndpointBuilder(plainHTTP, ref).join("manifests", ref.Reference)
}

// buildRepositoryBlobURL builds the URL for accessing the blob API.
// Format: <scheme>://<registry>/v2/<repository>/blobs/<digest>
// Reference: https://docs.docker.com/registry/spec/api/#blob
func buildRepositoryBlobURL(plainHTTP bool, ref registry.Reference) string {
	return newEndpointBuilder(plainHTTP, ref).join("blobs", ref.Reference)
}

// buildRepositoryBlobUploadURL builds the URL for blob uploading.
// Format: <scheme>://<registry>/v2/<repository>/blobs/uploads/
// Reference: https://docs.docker.com/registry/spec/api/#initiate-blob-upload
func buildRepositoryBlobUploadURL(plainHTTP bool, ref registry.Reference) string {
	return newEndpointBuilder(plainHTTP, ref).repositoryBase() + "/blobs/uploads/"
}

// buildReferrersURL builds the URL for accessing the OCI 1.1 Referrers API.
// Format: <scheme>://<registry>/v2/<repository>/referrers/<digest>?artifactType=<artifactType>
// Reference: https://github.com/opencontainers/distribution-spec/blob/v1.1.0/spec.md#listing-referrers
func buildReferrersURL(plainHTTP bool, ref registry.Reference, artifactType string) string {
	b := newEndpointBuilder(plainHTTP, ref)
	u := b.join("referrers", ref.Reference)
	if artifactType == "" {
		return u
	}
	v := url.Values{}
	v.Set("artifactType", artifactType)
	return u + "?" + v.Encode()
}

// buildDiscoveryURL builds the URL for discovering extensions available on a repository.
// Format: <scheme>://<registry>/v2/<repository>/_oci/ext/discover
// Reference: https://github.com/oras-project/artifacts-spec/blob/v1.0.0-rc.1/manifest-referrers-api.md
func buildDiscoveryURL(plainHTTP bool, ref registry.Reference) string {
	return newEndpointBuilder(plainHTTP, ref).repositoryBase() + "/_oci/ext/discover"
}
