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

package content

import (
	"context"
	"fmt"

	"github.com/containerd/containerd/platforms"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/ocifetch/ocidist/errdef"
	"github.com/ocifetch/ocidist/internal/docker"
)

// SelectManifest resolves a single-platform manifest out of a Docker
// manifest-list or OCI image-index successor set. Entries are tried in the
// order they appear in the index; the first one whose recorded Platform
// satisfies a containerd platform.Matcher for want is returned.
//
// SelectManifest returns errdef.ErrUnsupported if node is not an index/list,
// and errdef.ErrNotFound if no entry matches want.
func SelectManifest(ctx context.Context, fetcher Fetcher, node ocispec.Descriptor, want ocispec.Platform) (ocispec.Descriptor, error) {
	switch node.MediaType {
	case docker.MediaTypeManifestList, ocispec.MediaTypeImageIndex:
	default:
		return ocispec.Descriptor{}, fmt.Errorf("%s: %w", node.MediaType, errdef.ErrUnsupported)
	}

	_, _, manifests, err := SuccessorsParts(ctx, fetcher, node)
	if err != nil {
		return ocispec.Descriptor{}, err
	}

	matcher := platforms.NewMatcher(platforms.Normalize(toContainerdPlatform(want)))
	for _, m := range manifests {
		if m.Platform == nil {
			continue
		}
		if matcher.Match(toContainerdPlatform(*m.Platform)) {
			return m, nil
		}
	}
	return ocispec.Descriptor{}, fmt.Errorf("no manifest for platform %s/%s: %w", want.OS, want.Architecture, errdef.ErrNotFound)
}

func toContainerdPlatform(p ocispec.Platform) platforms.Platform {
	return platforms.Platform{
		OS:           p.OS,
		Architecture: p.Architecture,
		Variant:      p.Variant,
		OSVersion:    p.OSVersion,
	}
}
