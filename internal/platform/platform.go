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

package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/ocifetch/ocidist/content"
	"github.com/ocifetch/ocidist/errdef"
	"github.com/ocifetch/ocidist/internal/docker"
)

// Match checks whether the current platform matches the target platform.
// Match will return true if all of the following conditions are met.
// - Architecture and OS exactly match.
// - Variant and OSVersion exactly match if target platform provided.
// - OSFeatures of the target platform are the subsets of the OSFeatures
//   array of the current platform.
// Note: Variant, OSVersion and OSFeatures are optional fields, will skip
// the comparison if the target platform does not provide specfic value.
func Match(got *ocispec.Platform, want *ocispec.Platform) bool {
	if got.Architecture != want.Architecture || got.OS != want.OS {
		return false
	}

	if want.OSVersion != "" && got.OSVersion != want.OSVersion {
		return false
	}

	if want.Variant != "" && got.Variant != want.Variant {
		return false
	}

	if len(want.OSFeatures) != 0 && !isSubset(want.OSFeatures, got.OSFeatures) {
		return false
	}

	return true
}

// SelectManifest finds, among the descendants of root, the manifest whose
// platform matches want. If root is itself a manifest list or index, its
// entries are filtered by their own embedded Platform field; if root is a
// manifest, its config blob is fetched and decoded into a platform for
// comparison. A nil want skips filtering: the first candidate manifest is
// returned.
func SelectManifest(ctx context.Context, fetcher content.Fetcher, root ocispec.Descriptor, want *ocispec.Platform) (ocispec.Descriptor, error) {
	switch root.MediaType {
	case docker.MediaTypeManifestList, ocispec.MediaTypeImageIndex:
		manifests, err := content.Successors(ctx, fetcher, root)
		if err != nil {
			return ocispec.Descriptor{}, err
		}
		if want == nil {
			if len(manifests) == 0 {
				return ocispec.Descriptor{}, fmt.Errorf("%s: %w: manifest list is empty", root.Digest, errdef.ErrNotFound)
			}
			return manifests[0], nil
		}
		for _, m := range manifests {
			if m.Platform != nil && Match(m.Platform, want) {
				return m, nil
			}
		}
		return ocispec.Descriptor{}, fmt.Errorf("%s: %w: no matching manifest was found in the manifest list", root.Digest, errdef.ErrNotFound)

	case docker.MediaTypeManifest, ocispec.MediaTypeImageManifest:
		if want == nil {
			return root, nil
		}
		descs, err := content.Successors(ctx, fetcher, root)
		if err != nil {
			return ocispec.Descriptor{}, err
		}
		if len(descs) == 0 {
			return ocispec.Descriptor{}, fmt.Errorf("%s: %w: manifest has no config", root.Digest, errdef.ErrNotFound)
		}
		configMediaType := docker.MediaTypeConfig
		if root.MediaType == ocispec.MediaTypeImageManifest {
			configMediaType = ocispec.MediaTypeImageConfig
		}
		got, err := fetchConfigPlatform(ctx, fetcher, descs[0], configMediaType)
		if err != nil {
			return ocispec.Descriptor{}, err
		}
		if !Match(got, want) {
			return ocispec.Descriptor{}, fmt.Errorf("%s: %w: platform in manifest does not match target platform", root.Digest, errdef.ErrNotFound)
		}
		return root, nil

	default:
		return ocispec.Descriptor{}, fmt.Errorf("%s: %s: %w", root.Digest, root.MediaType, errdef.ErrUnsupported)
	}
}

// fetchConfigPlatform fetches desc, requiring it to carry configMediaType,
// and decodes its JSON body into a platform. A missing or null platform
// section decodes to the zero value.
func fetchConfigPlatform(ctx context.Context, fetcher content.Fetcher, desc ocispec.Descriptor, configMediaType string) (*ocispec.Platform, error) {
	if desc.MediaType != configMediaType {
		return nil, fmt.Errorf("%s: config media type %s: %w", desc.Digest, desc.MediaType, errdef.ErrUnsupported)
	}
	rc, err := fetcher.Fetch(ctx, desc)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var p ocispec.Platform
	if err := json.NewDecoder(rc).Decode(&p); err != nil && err != io.EOF {
		return nil, err
	}
	return &p, nil
}

// isSubset returns true if all items in slice A are present in slice B.
func isSubset(a, b []string) bool {
	set := make(map[string]bool, len(b))
	for _, v := range b {
		set[v] = true
	}
	for _, v := range a {
		if _, ok := set[v]; !ok {
			return false
		}
	}

	return true
}
