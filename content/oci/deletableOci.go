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

// Package oci provides access to an OCI content store.
// Reference: https://github.com/opencontainers/image-spec/blob/v1.1.0-rc4/image-layout.md
package oci

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/opencontainers/go-digest"
	specs "github.com/opencontainers/image-spec/specs-go"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/ocifetch/ocidist/content"
	"github.com/ocifetch/ocidist/errdef"
	"github.com/ocifetch/ocidist/internal/container/set"
	"github.com/ocifetch/ocidist/internal/descriptor"
	"github.com/ocifetch/ocidist/internal/graph"
	"github.com/ocifetch/ocidist/internal/resolver"
)

// DeletableStore implements `ocidist.Target`, and represents a content store
// extended with the delete operation.
// Reference: https://github.com/opencontainers/image-spec/blob/v1.1.0-rc4/image-layout.md
type DeletableStore struct {
	// AutoSaveIndex controls if the OCI store will automatically save the index
	// file on each Tag() call.
	//   - If AutoSaveIndex is set to true, the OCI store will automatically call
	//     this method on each Tag() call.
	//   - If AutoSaveIndex is set to false, it's the caller's responsibility
	//     to manually call SaveIndex() when needed.
	//   - Default value: true.
	AutoSaveIndex bool

	// AutoGC controls if the OCI store will automatically remove dangling
	// blobs, orphaned by a Delete() call, from the file system.
	//   - If AutoGC is set to true, deleting a node also recursively deletes
	//     any of its successors left with no remaining predecessors.
	//   - If AutoGC is set to false, Delete() only removes the node itself;
	//     the caller is responsible for calling GC() to sweep dangling blobs.
	//   - Default value: true.
	AutoGC bool

	root          string
	indexPath     string
	index         *ocispec.Index
	indexLock     sync.Mutex
	operationLock sync.RWMutex

	storage     *Storage
	tagResolver *resolver.Memory
	graph       *graph.MemoryWithDelete
}

// NewDeletableStore returns a new DeletableStore.
func NewDeletableStore(root string) (*DeletableStore, error) {
	return NewDeletableStoreWithContext(context.Background(), root)
}

// NewDeletableStoreWithContext creates a new DeletableStore.
func NewDeletableStoreWithContext(ctx context.Context, root string) (*DeletableStore, error) {
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for %s: %w", root, err)
	}
	storage, err := NewStorage(rootAbs)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage: %w", err)
	}

	store := &DeletableStore{
		AutoSaveIndex: true,
		AutoGC:        true,
		root:          rootAbs,
		indexPath:     filepath.Join(rootAbs, ociImageIndexFile),
		storage:       storage,
		tagResolver:   resolver.NewMemory(),
		graph:         graph.NewMemoryWithDelete(),
	}

	if err := ensureDir(filepath.Join(rootAbs, ociBlobsDir)); err != nil {
		return nil, err
	}
	if err := store.ensureOCILayoutFile(); err != nil {
		return nil, fmt.Errorf("invalid OCI Image Layout: %w", err)
	}
	if err := store.loadIndexFile(ctx); err != nil {
		return nil, fmt.Errorf("invalid OCI Image Index: %w", err)
	}

	return store, nil
}

// Fetch fetches the content identified by the descriptor.
func (ds *DeletableStore) Fetch(ctx context.Context, target ocispec.Descriptor) (io.ReadCloser, error) {
	ds.operationLock.RLock()
	defer ds.operationLock.RUnlock()
	return ds.storage.Fetch(ctx, target)
}

// Push pushes the content, matching the expected descriptor.
func (ds *DeletableStore) Push(ctx context.Context, expected ocispec.Descriptor, reader io.Reader) error {
	ds.operationLock.Lock()
	defer ds.operationLock.Unlock()
	if err := ds.storage.Push(ctx, expected, reader); err != nil {
		return err
	}
	if err := ds.graph.Index(ctx, ds.storage, expected); err != nil {
		return err
	}
	if descriptor.IsManifest(expected) {
		// tag by digest
		return ds.tag(ctx, expected, expected.Digest.String())
	}
	return nil
}

// Delete removes the content matching the descriptor from the store. If
// AutoGC is enabled (the default), any successor of target left with no
// remaining predecessors as a result is recursively removed as well.
func (ds *DeletableStore) Delete(ctx context.Context, target ocispec.Descriptor) error {
	ds.operationLock.Lock()
	defer ds.operationLock.Unlock()
	return ds.delete(ctx, target)
}

// delete is the unlocked implementation of Delete, reused by the
// AutoGC cascade so that recursive deletes don't attempt to re-acquire
// ds.operationLock.
func (ds *DeletableStore) delete(ctx context.Context, target ocispec.Descriptor) error {
	var successors []ocispec.Descriptor
	if ds.AutoGC {
		var err error
		successors, err = content.Successors(ctx, ds.storage, target)
		if err != nil && !errors.Is(err, errdef.ErrNotFound) {
			return err
		}
	}

	resolvers := ds.tagResolver.Map()
	for reference, desc := range resolvers {
		if content.Equal(desc, target) {
			ds.tagResolver.Delete(reference)
		}
	}
	if err := ds.graph.Remove(ctx, target); err != nil {
		return err
	}
	if ds.AutoSaveIndex {
		if err := ds.saveIndex(); err != nil {
			return err
		}
	}
	if err := ds.storage.Delete(ctx, target); err != nil {
		return err
	}

	for _, successor := range successors {
		referrers, err := ds.graph.Predecessors(ctx, successor)
		if err != nil {
			return err
		}
		if len(referrers) > 0 {
			continue
		}
		exists, err := ds.storage.Exists(ctx, successor)
		if err != nil {
			return err
		}
		if !exists {
			continue
		}
		if err := ds.delete(ctx, successor); err != nil {
			return err
		}
	}
	return nil
}

// Exists returns true if the described content exists.
func (ds *DeletableStore) Exists(ctx context.Context, target ocispec.Descriptor) (bool, error) {
	ds.operationLock.RLock()
	defer ds.operationLock.RUnlock()
	return ds.storage.Exists(ctx, target)
}

// Tag tags a descriptor with a reference string.
func (ds *DeletableStore) Tag(ctx context.Context, desc ocispec.Descriptor, reference string) error {
	ds.operationLock.Lock()
	defer ds.operationLock.Unlock()
	if reference == "" {
		return errdef.ErrMissingReference
	}
	return ds.tag(ctx, desc, reference)
}

// Untag removes reference from the store's tag resolver, without removing
// the content it pointed to.
func (ds *DeletableStore) Untag(ctx context.Context, reference string) error {
	ds.operationLock.Lock()
	defer ds.operationLock.Unlock()
	if reference == "" {
		return errdef.ErrMissingReference
	}

	desc, err := ds.tagResolver.Resolve(ctx, reference)
	if err != nil {
		return err
	}
	if reference == desc.Digest.String() {
		return fmt.Errorf("%s: tags can only be removed by name: %w", reference, errdef.ErrInvalidReference)
	}

	ds.tagResolver.Untag(reference)
	if ds.AutoSaveIndex {
		return ds.SaveIndex()
	}
	return nil
}

// tag tags a descriptor with a reference string.
func (ds *DeletableStore) tag(ctx context.Context, desc ocispec.Descriptor, reference string) error {
	dgst := desc.Digest.String()
	if reference != dgst {
		// also tag desc by its digest
		if err := ds.tagResolver.Tag(ctx, desc, dgst); err != nil {
			return err
		}
	}
	if err := ds.tagResolver.Tag(ctx, desc, reference); err != nil {
		return err
	}
	if ds.AutoSaveIndex {
		return ds.SaveIndex()
	}
	return nil
}

// Resolve resolves a reference to a descriptor. If the reference to be resolved
// is a tag, the returned descriptor will be a full descriptor declared by
// github.com/opencontainers/image-spec/specs-go/v1. If the reference is a
// digest the returned descriptor will be a plain descriptor (containing only
// the digest, media type and size).
func (ds *DeletableStore) Resolve(ctx context.Context, reference string) (ocispec.Descriptor, error) {
	ds.operationLock.RLock()
	defer ds.operationLock.RUnlock()
	if reference == "" {
		return ocispec.Descriptor{}, errdef.ErrMissingReference
	}

	// attempt resolving manifest
	desc, err := ds.tagResolver.Resolve(ctx, reference)
	if err != nil {
		if errors.Is(err, errdef.ErrNotFound) {
			// attempt resolving blob
			return resolveBlob(os.DirFS(ds.root), reference)
		}
		return ocispec.Descriptor{}, err
	}

	if reference == desc.Digest.String() {
		return descriptor.Plain(desc), nil
	}

	return desc, nil
}

// Predecessors returns the nodes directly pointing to the current node.
// Predecessors returns nil without error if the node does not exists in the
// store.
func (ds *DeletableStore) Predecessors(ctx context.Context, node ocispec.Descriptor) ([]ocispec.Descriptor, error) {
	return ds.graph.Predecessors(ctx, node)
}

// Tags lists the tags available in the store, skipping the digest
// self-references that every pushed manifest is also tagged with.
// Since the tags list is sorted in ascending order, last is used as a
// pagination cursor for the first tag of the next page, and a function is
// passed in to process the returned tag list.
func (ds *DeletableStore) Tags(ctx context.Context, last string, fn func(tags []string) error) error {
	ds.operationLock.RLock()
	defer ds.operationLock.RUnlock()

	var tags []string
	for ref, desc := range ds.tagResolver.Map() {
		if ref == desc.Digest.String() {
			continue
		}
		tags = append(tags, ref)
	}
	sort.Strings(tags)

	if last != "" {
		i := sort.SearchStrings(tags, last)
		if i < len(tags) && tags[i] == last {
			i++
		}
		tags = tags[i:]
	}

	if len(tags) == 0 {
		return nil
	}
	return fn(tags)
}

// ensureOCILayoutFile ensures the `oci-layout` file.
func (ds *DeletableStore) ensureOCILayoutFile() error {
	layoutFilePath := filepath.Join(ds.root, ocispec.ImageLayoutFile)
	layoutFile, err := os.Open(layoutFilePath)
	if err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to open OCI layout file: %w", err)
		}

		layout := ocispec.ImageLayout{
			Version: ocispec.ImageLayoutVersion,
		}
		layoutJSON, err := json.Marshal(layout)
		if err != nil {
			return fmt.Errorf("failed to marshal OCI layout file: %w", err)
		}
		return os.WriteFile(layoutFilePath, layoutJSON, 0666)
	}
	defer layoutFile.Close()

	var layout ocispec.ImageLayout
	err = json.NewDecoder(layoutFile).Decode(&layout)
	if err != nil {
		return fmt.Errorf("failed to decode OCI layout file: %w", err)
	}
	return validateOCILayout(&layout)
}

// loadIndexFile reads index.json from the file system.
// Create index.json if it does not exist.
func (ds *DeletableStore) loadIndexFile(ctx context.Context) error {
	indexFile, err := os.Open(ds.indexPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to open index file: %w", err)
		}

		// write index.json if it does not exist
		ds.index = &ocispec.Index{
			Versioned: specs.Versioned{
				SchemaVersion: 2, // historical value
			},
			MediaType: ocispec.MediaTypeImageIndex,
			Manifests: []ocispec.Descriptor{},
		}
		return ds.writeIndexFile()
	}
	defer indexFile.Close()

	var index ocispec.Index
	if err := json.NewDecoder(indexFile).Decode(&index); err != nil {
		return fmt.Errorf("failed to decode index file: %w", err)
	}
	ds.index = &index
	return loadIndex(ctx, ds.index, ds.storage, ds.tagResolver, ds.graph)
}

// SaveIndex writes the `index.json` file to the file system.
//   - If AutoSaveIndex is set to true (default value),
//     the OCI store will automatically call this method on each Tag() call.
//   - If AutoSaveIndex is set to false, it's the caller's responsibility
//     to manually call this method when needed.
func (ds *DeletableStore) SaveIndex() error {
	return ds.saveIndex()
}

// saveIndex is the unlocked implementation of SaveIndex, reused by the
// internal callers that already hold ds.operationLock.
func (ds *DeletableStore) saveIndex() error {
	ds.indexLock.Lock()
	defer ds.indexLock.Unlock()

	var manifests []ocispec.Descriptor
	tagged := set.New[digest.Digest]()
	refMap := ds.tagResolver.Map()

	// 1. Add descriptors that are associated with tags
	// Note: One descriptor can be associated with multiple tags.
	for ref, desc := range refMap {
		if ref != desc.Digest.String() {
			annotations := make(map[string]string, len(desc.Annotations)+1)
			for k, v := range desc.Annotations {
				annotations[k] = v
			}
			annotations[ocispec.AnnotationRefName] = ref
			desc.Annotations = annotations
			manifests = append(manifests, desc)
			// mark the digest as tagged for deduplication in step 2
			tagged.Add(desc.Digest)
		}
	}
	// 2. Add descriptors that are not associated with any tag
	for ref, desc := range refMap {
		if ref == desc.Digest.String() && !tagged.Contains(desc.Digest) {
			// skip tagged ones since they have been added in step 1
			manifests = append(manifests, deleteAnnotationRefName(desc))
		}
	}

	ds.index.Manifests = manifests
	return ds.writeIndexFile()
}

// writeIndexFile writes the `index.json` file.
func (ds *DeletableStore) writeIndexFile() error {
	indexJSON, err := json.Marshal(ds.index)
	if err != nil {
		return fmt.Errorf("failed to marshal index file: %w", err)
	}
	return os.WriteFile(ds.indexPath, indexJSON, 0666)
}

// GC removes garbage from the file system, where garbage is any blob that is
// not reachable, by walking down edges or up edges, from a tagged root.
// GC does not remove the index.json or the oci-layout file.
func (ds *DeletableStore) GC(ctx context.Context) error {
	ds.operationLock.Lock()
	defer ds.operationLock.Unlock()

	reachable := set.New[digest.Digest]()
	visited := set.New[descriptor.Descriptor]()

	var visit func(desc ocispec.Descriptor) error
	visit = func(desc ocispec.Descriptor) error {
		key := descriptor.FromOCI(desc)
		if visited.Contains(key) {
			return nil
		}
		visited.Add(key)
		reachable.Add(desc.Digest)

		successors, err := content.Successors(ctx, ds.storage, desc)
		if err != nil {
			if errors.Is(err, errdef.ErrNotFound) {
				return nil
			}
			return err
		}
		for _, successor := range successors {
			if err := visit(successor); err != nil {
				return err
			}
		}

		referrers, err := ds.graph.Predecessors(ctx, desc)
		if err != nil {
			return err
		}
		for _, referrer := range referrers {
			if err := visit(referrer); err != nil {
				return err
			}
		}
		return nil
	}

	for _, desc := range ds.tagResolver.Map() {
		if err := visit(desc); err != nil {
			return err
		}
	}

	blobsRoot := filepath.Join(ds.root, ociBlobsDir)
	return filepath.WalkDir(blobsRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}

		algorithm := digest.Algorithm(filepath.Base(filepath.Dir(path)))
		dgst := digest.NewDigestFromEncoded(algorithm, filepath.Base(path))
		if err := dgst.Validate(); err != nil {
			// not a blob file laid out by digest, leave it alone
			return nil
		}
		if reachable.Contains(dgst) {
			return nil
		}
		return os.Remove(path)
	})
}
