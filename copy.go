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

package ocidist

import (
	"context"
	"errors"
	"fmt"
	"io"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"golang.org/x/sync/semaphore"

	"github.com/ocifetch/ocidist/content"
	"github.com/ocifetch/ocidist/errdef"
	"github.com/ocifetch/ocidist/internal/cas"
	"github.com/ocifetch/ocidist/internal/descriptor"
	"github.com/ocifetch/ocidist/internal/graph"
	"github.com/ocifetch/ocidist/internal/platform"
	"github.com/ocifetch/ocidist/internal/registryutil"
	"github.com/ocifetch/ocidist/internal/status"
	"github.com/ocifetch/ocidist/registry"
)

var (
	// DefaultCopyOptions provides the default CopyOptions.
	DefaultCopyOptions = CopyOptions{
		CopyGraphOptions: DefaultCopyGraphOptions,
	}
	// DefaultCopyGraphOptions provides the default CopyGraphOptions.
	DefaultCopyGraphOptions = CopyGraphOptions{
		Concurrency: 3, // This value is consistent with dockerd and containerd.
	}
)

// CopyOptions contains parameters for ocidist.Copy.
type CopyOptions struct {
	CopyGraphOptions
	// MapRoot maps the resolved root node to a desired root node for copy.
	// When MapRoot is provided, the descriptor resolved from the source
	// reference will be passed to MapRoot, and the mapped descriptor will be
	// used as the root node for copy.
	MapRoot func(ctx context.Context, src content.ReadOnlyStorage, root ocispec.Descriptor) (ocispec.Descriptor, error)
}

// WithTargetPlatform configures opts.MapRoot to select, via
// platform.SelectManifest, the manifest whose platform matches p. When
// MapRoot is already set, its result is remapped through the platform
// filter rather than replaced. A nil p leaves opts.MapRoot untouched.
func (opts *CopyOptions) WithTargetPlatform(p *ocispec.Platform) {
	if p == nil {
		return
	}
	mapRoot := opts.MapRoot
	opts.MapRoot = func(ctx context.Context, src content.ReadOnlyStorage, root ocispec.Descriptor) (ocispec.Descriptor, error) {
		if mapRoot != nil {
			mapped, err := mapRoot(ctx, src, root)
			if err != nil {
				return ocispec.Descriptor{}, err
			}
			root = mapped
		}
		return platform.SelectManifest(ctx, src, root, p)
	}
}

// CopyGraphOptions contains parameters for ocidist.CopyGraph.
type CopyGraphOptions struct {
	// Concurrency limits the maximum number of concurrent copy tasks.
	// If Concurrency is not specified, or the specified value is less
	// or equal to 0, the concurrency limit will be considered as infinity.
	Concurrency int64
	// PreCopy handles the current descriptor before copying it.
	PreCopy func(ctx context.Context, desc ocispec.Descriptor) error
	// PostCopy handles the current descriptor after copying it.
	PostCopy func(ctx context.Context, desc ocispec.Descriptor) error
	// OnCopySkipped will be called when the sub-DAG rooted by the current node
	// is skipped.
	OnCopySkipped func(ctx context.Context, desc ocispec.Descriptor) error
	// FindSuccessors finds the successors of the current node.
	// fetcher provides cached access to the source storage, and is suitable
	// for fetching non-leaf nodes like manifests. Since anything fetched from
	// fetcher will be cached in the memory, it is recommended to use original
	// source storage to fetch large blobs.
	// If FindSuccessors is nil, content.Successors will be used.
	FindSuccessors func(ctx context.Context, fetcher content.Fetcher, desc ocispec.Descriptor) ([]ocispec.Descriptor, error)
}

// Copy copies a rooted directed acyclic graph (DAG) with the tagged root node
// in the source Target to the destination Target.
// The destination reference will be the same as the source reference if the
// destination reference is left blank.
// Returns the descriptor of the root node on successful copy.
func Copy(ctx context.Context, src Target, srcRef string, dst Target, dstRef string, opts CopyOptions) (ocispec.Descriptor, error) {
	if src == nil {
		return ocispec.Descriptor{}, errors.New("nil source target")
	}
	if dst == nil {
		return ocispec.Descriptor{}, errors.New("nil destination target")
	}
	if dstRef == "" {
		dstRef = srcRef
	}

	c := &copier{proxy: cas.NewProxy(src, cas.NewMemory())}
	root, err := c.resolveRoot(ctx, src, srcRef)
	if err != nil {
		return ocispec.Descriptor{}, err
	}

	if opts.MapRoot != nil {
		c.proxy.StopCaching = true
		root, err = opts.MapRoot(ctx, c.proxy, root)
		if err != nil {
			return ocispec.Descriptor{}, err
		}
		c.proxy.StopCaching = false
	}

	if err := c.bindRootHooks(dst, dstRef, root, &opts); err != nil {
		return ocispec.Descriptor{}, err
	}
	if err := c.run(ctx, src, dst, root, opts.CopyGraphOptions); err != nil {
		return ocispec.Descriptor{}, err
	}
	return root, nil
}

// CopyGraph copies a rooted directed acyclic graph (DAG) from the source CAS to
// the destination CAS.
func CopyGraph(ctx context.Context, src, dst content.Storage, root ocispec.Descriptor, opts CopyGraphOptions) error {
	c := &copier{proxy: cas.NewProxy(src, cas.NewMemory())}
	return c.run(ctx, src, dst, root, opts)
}

// copier holds the caching proxy shared by a single copy's pre/post graph
// handlers.
type copier struct {
	proxy *cas.Proxy
}

// run copies a rooted DAG from src to dst using the caching proxy, tracking
// per-node completion so post-order handlers can wait on their successors.
func (c *copier) run(ctx context.Context, src, dst content.Storage, root ocispec.Descriptor, opts CopyGraphOptions) error {
	tracker := status.NewTracker()
	findSuccessors := opts.FindSuccessors
	if findSuccessors == nil {
		findSuccessors = content.Successors
	}

	preHandler := graph.HandlerFunc(func(ctx context.Context, desc ocispec.Descriptor) ([]ocispec.Descriptor, error) {
		done, committed := tracker.TryCommit(desc)
		if !committed {
			return nil, graph.ErrSkipDesc
		}

		exists, err := dst.Exists(ctx, desc)
		if err != nil {
			return nil, err
		}
		if exists {
			close(done)
			if opts.OnCopySkipped != nil {
				if err := opts.OnCopySkipped(ctx, desc); err != nil {
					return nil, err
				}
			}
			return nil, graph.ErrSkipDesc
		}

		return findSuccessors(ctx, c.proxy, desc)
	})

	postHandler := graph.HandlerFunc(func(ctx context.Context, desc ocispec.Descriptor) (_ []ocispec.Descriptor, err error) {
		defer func() {
			if err == nil {
				done, _ := tracker.TryCommit(desc)
				close(done)
			}
		}()

		// leaf nodes are never cached; copy them directly from src.
		exists, err := c.proxy.Cache.Exists(ctx, desc)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, applyCopyHooks(ctx, src, dst, desc, opts)
		}

		successors, err := findSuccessors(ctx, c.proxy, desc)
		if err != nil {
			return nil, err
		}
		for _, node := range successors {
			done, committed := tracker.TryCommit(node)
			if committed {
				return nil, fmt.Errorf("%s: %s: successor not committed", desc.Digest, node.Digest)
			}
			select {
			case <-done:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		return nil, applyCopyHooks(ctx, c.proxy.Cache, dst, desc, opts)
	})

	var limiter *semaphore.Weighted
	if opts.Concurrency > 0 {
		limiter = semaphore.NewWeighted(opts.Concurrency)
	}
	return graph.Dispatch(ctx, preHandler, postHandler, limiter, root)
}

// transferNode copies a single content from src to dst, tolerating a
// destination that already has it.
func transferNode(ctx context.Context, src, dst content.Storage, desc ocispec.Descriptor) error {
	rc, err := src.Fetch(ctx, desc)
	if err != nil {
		return err
	}
	defer rc.Close()
	if err := dst.Push(ctx, desc, rc); err != nil && !errors.Is(err, errdef.ErrAlreadyExists) {
		return err
	}
	return nil
}

// applyCopyHooks runs PreCopy, transfers the node, then runs PostCopy.
func applyCopyHooks(ctx context.Context, src, dst content.Storage, desc ocispec.Descriptor, opts CopyGraphOptions) error {
	if opts.PreCopy != nil {
		if err := opts.PreCopy(ctx, desc); err != nil {
			if err == graph.ErrSkipDesc {
				return nil
			}
			return err
		}
	}
	if err := transferNode(ctx, src, dst, desc); err != nil {
		return err
	}
	if opts.PostCopy != nil {
		return opts.PostCopy(ctx, desc)
	}
	return nil
}

// sameNode reports whether a and b identify the same content, ignoring
// decorations like Platform or Annotations.
func sameNode(a, b ocispec.Descriptor) bool {
	return descriptor.FromOCI(a) == descriptor.FromOCI(b)
}

// pushCachedReference copies desc, already cached in the proxy, to dst along
// with a tag, in one request.
func pushCachedReference(ctx context.Context, proxy *cas.Proxy, dst registry.ReferencePusher, desc ocispec.Descriptor, dstRef string) error {
	rc, err := proxy.FetchCached(ctx, desc)
	if err != nil {
		return err
	}
	defer rc.Close()
	if err := dst.PushReference(ctx, desc, rc, dstRef); err != nil && !errors.Is(err, errdef.ErrAlreadyExists) {
		return err
	}
	return nil
}

// resolveRoot resolves the source reference to the root node, using the
// reference-aware fast path when src supports it.
func (c *copier) resolveRoot(ctx context.Context, src Target, srcRef string) (ocispec.Descriptor, error) {
	refFetcher, ok := src.(registry.ReferenceFetcher)
	if !ok {
		return src.Resolve(ctx, srcRef)
	}

	refProxy := &registryutil.Proxy{
		ReferenceFetcher: refFetcher,
		Proxy:            c.proxy,
	}
	root, rc, err := refProxy.FetchReference(ctx, srcRef)
	if err != nil {
		return ocispec.Descriptor{}, err
	}
	defer rc.Close()

	// cache root's body if it turns out to be a non-leaf node
	single := content.FetcherFunc(func(ctx context.Context, target ocispec.Descriptor) (io.ReadCloser, error) {
		if !sameNode(target, root) {
			return nil, errors.New("fetching only root node expected")
		}
		return rc, nil
	})
	if _, err = content.Successors(ctx, single, root); err != nil {
		return ocispec.Descriptor{}, err
	}
	return root, nil
}

// bindRootHooks wires the root-node-specific behavior into opts: on a
// ReferencePusher destination, the root is pushed with its tag in one
// request and the regular post-order copy is skipped for it; otherwise the
// root is tagged only after the regular copy completes.
func (c *copier) bindRootHooks(dst Target, dstRef string, root ocispec.Descriptor, opts *CopyOptions) error {
	if refPusher, ok := dst.(registry.ReferencePusher); ok {
		preCopy := opts.PreCopy
		opts.PreCopy = func(ctx context.Context, desc ocispec.Descriptor) error {
			if preCopy != nil {
				if err := preCopy(ctx, desc); err != nil {
					return err
				}
			}
			if !sameNode(desc, root) {
				return nil
			}
			if err := pushCachedReference(ctx, c.proxy, refPusher, desc, dstRef); err != nil {
				return err
			}
			if opts.PostCopy != nil {
				if err := opts.PostCopy(ctx, desc); err != nil {
					return err
				}
			}
			return graph.ErrSkipDesc
		}
	} else {
		postCopy := opts.PostCopy
		opts.PostCopy = func(ctx context.Context, desc ocispec.Descriptor) error {
			if sameNode(desc, root) {
				if err := dst.Tag(ctx, root, dstRef); err != nil {
					return err
				}
			}
			if postCopy != nil {
				return postCopy(ctx, desc)
			}
			return nil
		}
	}

	onCopySkipped := opts.OnCopySkipped
	opts.OnCopySkipped = func(ctx context.Context, desc ocispec.Descriptor) error {
		if onCopySkipped != nil {
			if err := onCopySkipped(ctx, desc); err != nil {
				return err
			}
		}
		if !sameNode(desc, root) {
			return nil
		}
		if refPusher, ok := dst.(registry.ReferencePusher); ok {
			return pushCachedReference(ctx, c.proxy, refPusher, desc, dstRef)
		}
		return dst.Tag(ctx, root, dstRef)
	}
	return nil
}
