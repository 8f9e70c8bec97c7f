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

package oci

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/ocifetch/ocidist/content"
	"github.com/ocifetch/ocidist/errdef"
	"github.com/ocifetch/ocidist/internal/descriptor"
	"github.com/ocifetch/ocidist/internal/graph"
	"github.com/ocifetch/ocidist/internal/resolver"
)

// Store implements `ocidist.Target`, and represents a writable content store
// based on file system with the OCI-Image layout, supporting delete, tag
// listing and garbage collection.
// Store is an alias of DeletableStore, which already carries the full
// feature set; the alias lets callers of this package think in terms of
// "the" OCI store rather than its delete-capable implementation detail.
type Store = DeletableStore

// New returns a new Store.
func New(root string) (*Store, error) {
	return NewDeletableStore(root)
}

// NewWithContext creates a new Store.
func NewWithContext(ctx context.Context, root string) (*Store, error) {
	return NewDeletableStoreWithContext(ctx, root)
}

// validateOCILayout validates the decoded content of an `oci-layout` file.
func validateOCILayout(layout *ocispec.ImageLayout) error {
	if layout.Version != ocispec.ImageLayoutVersion {
		return errdef.ErrUnsupportedVersion
	}
	return nil
}

// loadIndex populates tagResolver and graph from the manifests declared in
// index, tagging each manifest both by its recorded reference name (if any)
// and by its digest, and indexing its predecessors.
func loadIndex(ctx context.Context, index *ocispec.Index, storage content.Storage, tagResolver *resolver.Memory, graph *graph.MemoryWithDelete) error {
	for _, desc := range index.Manifests {
		if ref := desc.Annotations[ocispec.AnnotationRefName]; ref != "" {
			if err := tagResolver.Tag(ctx, desc, ref); err != nil {
				return err
			}
		}
		if err := tagResolver.Tag(ctx, desc, desc.Digest.String()); err != nil {
			return err
		}
		if err := graph.IndexAll(ctx, storage, desc); err != nil {
			return err
		}
	}
	return nil
}

// resolveBlob resolves reference as a digest against the blobs stored in
// fsys, returning a plain descriptor (digest, size and a generic media type)
// for the matched blob.
func resolveBlob(fsys fs.FS, reference string) (ocispec.Descriptor, error) {
	dgst, err := digest.Parse(reference)
	if err != nil {
		return ocispec.Descriptor{}, fmt.Errorf("%s: %w", reference, errdef.ErrInvalidReference)
	}

	path, err := blobPath(dgst)
	if err != nil {
		return ocispec.Descriptor{}, err
	}

	fp, err := fsys.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ocispec.Descriptor{}, fmt.Errorf("%s: %w", reference, errdef.ErrNotFound)
		}
		return ocispec.Descriptor{}, err
	}
	defer fp.Close()

	info, err := fp.Stat()
	if err != nil {
		return ocispec.Descriptor{}, err
	}

	return ocispec.Descriptor{
		MediaType: descriptor.DefaultMediaType,
		Digest:    dgst,
		Size:      info.Size(),
	}, nil
}

// deleteAnnotationRefName returns a copy of desc with the
// ocispec.AnnotationRefName annotation removed. If removing it leaves no
// annotations behind, desc.Annotations is set to nil rather than an empty
// map.
func deleteAnnotationRefName(desc ocispec.Descriptor) ocispec.Descriptor {
	if _, ok := desc.Annotations[ocispec.AnnotationRefName]; !ok {
		return desc
	}

	annotations := make(map[string]string, len(desc.Annotations)-1)
	for k, v := range desc.Annotations {
		if k == ocispec.AnnotationRefName {
			continue
		}
		annotations[k] = v
	}
	if len(annotations) == 0 {
		annotations = nil
	}
	desc.Annotations = annotations
	return desc
}
