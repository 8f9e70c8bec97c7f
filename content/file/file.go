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

// Package file provides a content store based on file system with the OCI
// layout-agnostic flat layout historically used by the oras CLI: named
// blobs are written directly under the working directory, and manifests
// (along with any unnamed content) are held in memory.
package file

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/ocifetch/ocidist/content"
	"github.com/ocifetch/ocidist/errdef"
	"github.com/ocifetch/ocidist/internal/cas"
	"github.com/ocifetch/ocidist/internal/graph"
	"github.com/ocifetch/ocidist/internal/resolver"
)

// Store represents a file system based store, which implements
// `ocidist.Target`.
//
// Named content (content carrying ocispec.AnnotationTitle) is written as a
// regular file rooted at workingDir. Unnamed content and manifests have no
// natural place on disk, so they fall back to fallbackStorage, an in-memory
// store by default.
type Store struct {
	*storage

	// workingDir is the absolute path of the directory rooted by the store.
	workingDir string

	fallbackStorage content.Storage
	resolver        *resolver.Memory
	graph           *graph.Memory
}

// New creates a new file store, rooted at workingDir. Unnamed content falls
// back to an in-memory store with no size limit.
func New(workingDir string) (*Store, error) {
	return NewWithFallbackStorage(workingDir, cas.NewMemory())
}

// NewWithFallbackLimit creates a new file store, rooted at workingDir.
// Unnamed content falls back to an in-memory store that rejects pushes
// whose descriptor exceeds limit bytes.
func NewWithFallbackLimit(workingDir string, limit int64) (*Store, error) {
	return NewWithFallbackStorage(workingDir, content.LimitStorage(cas.NewMemory(), limit))
}

// NewWithFallbackStorage creates a new file store, rooted at workingDir,
// that pushes unnamed content to fallbackStorage instead of the local file
// system.
func NewWithFallbackStorage(workingDir string, fallbackStorage content.Storage) (*Store, error) {
	workingDirAbs, err := filepath.Abs(workingDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for %s: %w", workingDir, err)
	}

	return &Store{
		storage:         newStorage(workingDirAbs),
		workingDir:      workingDirAbs,
		fallbackStorage: fallbackStorage,
		resolver:        resolver.NewMemory(),
		graph:           graph.NewMemory(),
	}, nil
}

// Fetch fetches the content identified by the descriptor.
func (s *Store) Fetch(ctx context.Context, target ocispec.Descriptor) (io.ReadCloser, error) {
	return s.storage.Fetch(ctx, target)
}

// Push pushes the content, matching the expected descriptor. If expected
// carries no name, content is sent to the store's fallback storage instead
// of the local file system. After a manifest is pushed, any of its
// successors that are already available under a different name are
// restored under their own name too, unless ForceCAS is set.
func (s *Store) Push(ctx context.Context, expected ocispec.Descriptor, content io.Reader) error {
	if err := expected.Digest.Validate(); err != nil {
		return err
	}

	if err := s.push(ctx, expected, content); err != nil {
		return err
	}

	if err := s.restoreDuplicates(ctx, expected); err != nil {
		return fmt.Errorf("failed to restore duplicated file: %w", err)
	}

	return s.graph.Index(ctx, s.storage, expected)
}

// push writes expected to the file system, or to the fallback storage if
// expected carries no name and is not a manifest.
func (s *Store) push(ctx context.Context, expected ocispec.Descriptor, content io.Reader) error {
	name := expected.Annotations[ocispec.AnnotationTitle]
	if name == "" && !isManifest(expected) {
		return s.fallbackStorage.Push(ctx, expected, content)
	}
	return s.storage.Push(ctx, expected, content)
}

// restoreDuplicates walks the direct successors of node and, for each one
// carrying a name that is not yet tracked by the store, restores it under
// that name from whatever copy of its content is already available. A
// successor whose content cannot be found anywhere is left alone: pushing a
// manifest ahead of its referenced blobs is not an error.
func (s *Store) restoreDuplicates(ctx context.Context, node ocispec.Descriptor) error {
	if s.ForceCAS {
		return nil
	}

	successors, err := content.Successors(ctx, s.storage, node)
	if err != nil {
		return err
	}

	for _, successor := range successors {
		name := successor.Annotations[ocispec.AnnotationTitle]
		if name == "" {
			continue
		}

		exists, err := s.storage.Exists(ctx, successor)
		if err != nil {
			return err
		}
		if exists {
			continue
		}

		if err := s.restoreDuplicate(ctx, successor); err != nil {
			return err
		}
	}
	return nil
}

// restoreDuplicate fetches successor's content by digest, from the local
// file system first and from the fallback storage as a second resort, and
// pushes it back under successor's own name.
func (s *Store) restoreDuplicate(ctx context.Context, successor ocispec.Descriptor) error {
	plain := ocispec.Descriptor{
		MediaType: successor.MediaType,
		Digest:    successor.Digest,
		Size:      successor.Size,
	}

	rc, err := s.storage.Fetch(ctx, plain)
	if err != nil {
		if !errors.Is(err, errdef.ErrNotFound) {
			return err
		}
		rc, err = s.fallbackStorage.Fetch(ctx, plain)
		if err != nil {
			if errors.Is(err, errdef.ErrNotFound) {
				return nil
			}
			return err
		}
	}
	defer rc.Close()

	if err := s.storage.Push(ctx, successor, rc); err != nil {
		if errors.Is(err, ErrDuplicateName) || errors.Is(err, errdef.ErrAlreadyExists) {
			// lost a race with a direct push of the same name; the content
			// is there either way.
			return nil
		}
		return err
	}
	return nil
}

// Exists returns true if the described content exists.
func (s *Store) Exists(ctx context.Context, target ocispec.Descriptor) (bool, error) {
	return s.storage.Exists(ctx, target)
}

// Add adds a file into the file store, returning its descriptor. If name is
// empty, ErrMissingName is returned.
func (s *Store) Add(ctx context.Context, name, mediaType, path string) (ocispec.Descriptor, error) {
	if name == "" {
		return ocispec.Descriptor{}, ErrMissingName
	}
	return s.storage.Add(name, mediaType, path)
}

// Resolve resolves a reference to a descriptor.
func (s *Store) Resolve(ctx context.Context, ref string) (ocispec.Descriptor, error) {
	if s.closed.Load() {
		return ocispec.Descriptor{}, errdef.ErrStoreClosed
	}
	if ref == "" {
		return ocispec.Descriptor{}, errdef.ErrMissingReference
	}

	return s.resolver.Resolve(ctx, ref)
}

// Tag tags a descriptor with a reference string.
func (s *Store) Tag(ctx context.Context, desc ocispec.Descriptor, ref string) error {
	if s.closed.Load() {
		return errdef.ErrStoreClosed
	}
	if ref == "" {
		return errdef.ErrMissingReference
	}

	exists, err := s.storage.Exists(ctx, desc)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%s: %s: %w", desc.Digest, desc.MediaType, errdef.ErrNotFound)
	}

	return s.resolver.Tag(ctx, desc, ref)
}

// Predecessors returns the nodes directly pointing to the current node.
// Predecessors implements content.PredecessorFinder via UpEdges.
func (s *Store) Predecessors(ctx context.Context, node ocispec.Descriptor) ([]ocispec.Descriptor, error) {
	return s.UpEdges(ctx, node)
}

// UpEdges returns the nodes directly pointing to the current node.
// UpEdges returns nil without error if the node does not exists in the store.
func (s *Store) UpEdges(ctx context.Context, node ocispec.Descriptor) ([]ocispec.Descriptor, error) {
	if s.closed.Load() {
		return nil, errdef.ErrStoreClosed
	}
	return s.graph.UpEdges(ctx, node)
}
