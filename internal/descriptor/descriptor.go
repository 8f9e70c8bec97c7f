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

package descriptor

import (
	"github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/ocifetch/ocidist/internal/docker"
	"github.com/ocifetch/ocidist/internal/spec"
)

// Descriptor contains the minimun information to describe the disposition of
// targeted content.
// Since it only has strings and integers, Descriptor is a comparable struct.
type Descriptor struct {
	// MediaType is the media type of the object this schema refers to.
	MediaType string `json:"mediaType,omitempty"`

	// Digest is the digest of the targeted content.
	Digest digest.Digest `json:"digest"`

	// Size specifies the size in bytes of the blob.
	Size int64 `json:"size"`
}

// Empty is an empty descriptor
var Empty Descriptor

// DefaultMediaType is the media type used when no other media type is
// applicable.
const DefaultMediaType = "application/octet-stream"

// FromOCI shrinks the OCI descriptor to the minimum.
func FromOCI(desc ocispec.Descriptor) Descriptor {
	return Descriptor{
		MediaType: desc.MediaType,
		Digest:    desc.Digest,
		Size:      desc.Size,
	}
}

// Plain returns a plain descriptor that contains only the basic fields of
// desc, dropping annotations, URLs, platform and other decorations.
func Plain(desc ocispec.Descriptor) ocispec.Descriptor {
	return ocispec.Descriptor{
		MediaType: desc.MediaType,
		Digest:    desc.Digest,
		Size:      desc.Size,
	}
}

// manifestMediaTypes is the set of media types that identify manifest-like
// content: content that should be tagged by digest when pushed and that may
// carry successors/predecessors in the content DAG.
var manifestMediaTypes = map[string]bool{
	ocispec.MediaTypeImageManifest:   true,
	ocispec.MediaTypeImageIndex:      true,
	spec.MediaTypeArtifactManifest:   true,
	docker.MediaTypeManifest:         true,
	docker.MediaTypeManifestList:     true,
}

// IsManifest returns true if desc describes a manifest or an index, as
// opposed to a generic blob.
func IsManifest(desc ocispec.Descriptor) bool {
	return manifestMediaTypes[desc.MediaType]
}
