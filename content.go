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
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/ocifetch/ocidist/content"
	"github.com/ocifetch/ocidist/errdef"
	"github.com/ocifetch/ocidist/internal/cas"
	"github.com/ocifetch/ocidist/internal/docker"
	"github.com/ocifetch/ocidist/internal/interfaces"
	"github.com/ocifetch/ocidist/internal/platform"
	"github.com/ocifetch/ocidist/registry"
	"github.com/ocifetch/ocidist/registry/remote/auth"
)

const (
	// defaultTagConcurrency is the default concurrency of tagging.
	defaultTagConcurrency int64 = 5 // This value is consistent with dockerd

	// defaultTagNMaxMetadataBytes is the default value of
	// TagNOptions.MaxMetadataBytes.
	defaultTagNMaxMetadataBytes int64 = 4 * 1024 * 1024 // 4 MiB

	// defaultResolveMaxMetadataBytes is the default value of
	// ResolveOptions.MaxMetadataBytes.
	defaultResolveMaxMetadataBytes int64 = 4 * 1024 * 1024 // 4 MiB

	// defaultMaxBytes is the default value of FetchBytesOptions.MaxBytes.
	defaultMaxBytes int64 = 4 * 1024 * 1024 // 4 MiB
)

// fanOut runs task once per item in items, bounded to concurrency
// simultaneous in-flight calls, and waits for all of them. The first error
// returned by any task cancels the others' context and is the one fanOut
// returns.
func fanOut[T any](ctx context.Context, concurrency int64, items []T, task func(ctx context.Context, item T) error) error {
	if concurrency <= 0 {
		concurrency = defaultTagConcurrency
	}
	limiter := semaphore.NewWeighted(concurrency)
	eg, egCtx := errgroup.WithContext(ctx)
	for _, item := range items {
		if err := limiter.Acquire(ctx, 1); err != nil {
			return err
		}
		item := item
		eg.Go(func() error {
			defer limiter.Release(1)
			return task(egCtx, item)
		})
	}
	return eg.Wait()
}

// DefaultTagNOptions provides the default TagNOptions.
var DefaultTagNOptions TagNOptions

// TagNOptions contains parameters for ocidist.TagN.
type TagNOptions struct {
	// Concurrency limits the maximum number of concurrent tag tasks.
	// If less than or equal to 0, a default (currently 5) is used.
	Concurrency int64

	// MaxMetadataBytes limits the maximum size of metadata that can be cached
	// in the memory.
	// If less than or equal to 0, a default (currently 4 MiB) is used.
	MaxMetadataBytes int64
}

// TagN tags the descriptor identified by srcReference with dstReferences,
// returning that descriptor.
func TagN(ctx context.Context, target Target, srcReference string, dstReferences []string, opts TagNOptions) (ocispec.Descriptor, error) {
	if len(dstReferences) == 0 {
		return ocispec.Descriptor{}, fmt.Errorf("dstReferences cannot be empty: %w", errdef.ErrMissingReference)
	}
	if opts.MaxMetadataBytes <= 0 {
		opts.MaxMetadataBytes = defaultTagNMaxMetadataBytes
	}

	refFetcher, okFetch := target.(registry.ReferenceFetcher)
	refPusher, okPush := target.(registry.ReferencePusher)
	if !okFetch || !okPush {
		desc, err := target.Resolve(ctx, srcReference)
		if err != nil {
			return ocispec.Descriptor{}, err
		}
		err = fanOut(ctx, opts.Concurrency, dstReferences, func(ctx context.Context, dst string) error {
			if err := target.Tag(ctx, desc, dst); err != nil {
				return fmt.Errorf("failed to tag %s as %s: %w", srcReference, dst, err)
			}
			return nil
		})
		if err != nil {
			return ocispec.Descriptor{}, err
		}
		return desc, nil
	}

	if repo, ok := target.(interfaces.ReferenceParser); ok {
		// add scope hints to minimize the number of auth requests
		ref, err := repo.ParseReference(srcReference)
		if err != nil {
			return ocispec.Descriptor{}, err
		}
		ctx = auth.AppendScopes(ctx, auth.ScopeRepository(ref.Repository, auth.ActionPull, auth.ActionPush))
	}

	desc, contentBytes, err := fetchReferenceBytes(ctx, refFetcher, srcReference, opts.MaxMetadataBytes)
	if err != nil {
		return ocispec.Descriptor{}, err
	}
	err = fanOut(ctx, opts.Concurrency, dstReferences, func(ctx context.Context, dst string) error {
		r := bytes.NewReader(contentBytes)
		if err := refPusher.PushReference(ctx, desc, r, dst); err != nil && !errors.Is(err, errdef.ErrAlreadyExists) {
			return fmt.Errorf("failed to tag %s as %s: %w", srcReference, dst, err)
		}
		return nil
	})
	if err != nil {
		return ocispec.Descriptor{}, err
	}
	return desc, nil
}

// fetchReferenceBytes fetches reference via fetcher and buffers it in
// memory, rejecting anything over maxBytes.
func fetchReferenceBytes(ctx context.Context, fetcher registry.ReferenceFetcher, reference string, maxBytes int64) (ocispec.Descriptor, []byte, error) {
	desc, rc, err := fetcher.FetchReference(ctx, reference)
	if err != nil {
		return ocispec.Descriptor{}, nil, err
	}
	defer rc.Close()

	if desc.Size > maxBytes {
		return ocispec.Descriptor{}, nil, fmt.Errorf(
			"content size %v exceeds MaxMetadataBytes %v: %w", desc.Size, maxBytes, errdef.ErrSizeExceedsLimit)
	}
	data, err := content.ReadAll(rc, desc)
	if err != nil {
		return ocispec.Descriptor{}, nil, err
	}
	return desc, data, nil
}

// Tag tags the descriptor identified by src with dst, returning that
// descriptor.
func Tag(ctx context.Context, target Target, src, dst string) (ocispec.Descriptor, error) {
	return TagN(ctx, target, src, []string{dst}, DefaultTagNOptions)
}

// DefaultResolveOptions provides the default ResolveOptions.
var DefaultResolveOptions ResolveOptions

// ResolveOptions contains parameters for ocidist.Resolve.
type ResolveOptions struct {
	// TargetPlatform ensures the resolved content matches the target platform
	// if the node is a manifest, or selects the first resolved content that
	// matches the target platform if the node is a manifest list.
	TargetPlatform *ocispec.Platform

	// MaxMetadataBytes limits the maximum size of metadata that can be cached
	// in the memory.
	// If less than or equal to 0, a default (currently 4 MiB) is used.
	MaxMetadataBytes int64
}

// Resolve resolves a descriptor with provided reference from the target.
func Resolve(ctx context.Context, target ReadOnlyTarget, reference string, opts ResolveOptions) (ocispec.Descriptor, error) {
	if opts.TargetPlatform == nil {
		return target.Resolve(ctx, reference)
	}
	return resolve(ctx, target, nil, reference, opts)
}

// manifestLikeMediaTypes holds the media types resolve caches before
// platform selection, since SelectManifest may need to inspect them more
// than once (and, for an index, recurse into a child manifest).
var manifestLikeMediaTypes = map[string]bool{
	docker.MediaTypeManifestList:   true,
	ocispec.MediaTypeImageIndex:    true,
	docker.MediaTypeManifest:       true,
	ocispec.MediaTypeImageManifest: true,
}

// resolve resolves a descriptor with provided reference from the target, with
// specified caching.
func resolve(ctx context.Context, target ReadOnlyTarget, proxy *cas.Proxy, reference string, opts ResolveOptions) (ocispec.Descriptor, error) {
	if opts.MaxMetadataBytes <= 0 {
		opts.MaxMetadataBytes = defaultResolveMaxMetadataBytes
	}

	refFetcher, ok := target.(registry.ReferenceFetcher)
	if !ok {
		desc, err := target.Resolve(ctx, reference)
		if err != nil {
			return ocispec.Descriptor{}, err
		}
		return platform.SelectManifest(ctx, target, desc, opts.TargetPlatform)
	}

	// optimize performance for ReferenceFetcher targets
	desc, rc, err := refFetcher.FetchReference(ctx, reference)
	if err != nil {
		return ocispec.Descriptor{}, err
	}
	defer rc.Close()

	if !manifestLikeMediaTypes[desc.MediaType] {
		return ocispec.Descriptor{}, fmt.Errorf("%s: %s: %w", desc.Digest, desc.MediaType, errdef.ErrUnsupported)
	}
	if desc.Size > opts.MaxMetadataBytes {
		return ocispec.Descriptor{}, fmt.Errorf(
			"content size %v exceeds MaxMetadataBytes %v: %w", desc.Size, opts.MaxMetadataBytes, errdef.ErrSizeExceedsLimit)
	}
	if proxy == nil {
		proxy = cas.NewProxyWithLimit(target, cas.NewMemory(), opts.MaxMetadataBytes)
	}
	if err := proxy.Cache.Push(ctx, desc, rc); err != nil {
		return ocispec.Descriptor{}, err
	}
	// stop caching as SelectManifest may fetch a config blob
	proxy.StopCaching = true
	return platform.SelectManifest(ctx, proxy, desc, opts.TargetPlatform)
}

// DefaultFetchOptions provides the default FetchOptions.
var DefaultFetchOptions FetchOptions

// FetchOptions contains parameters for ocidist.Fetch.
type FetchOptions struct {
	// ResolveOptions contains parameters for resolving reference.
	ResolveOptions
}

// Fetch fetches the content identified by the reference.
func Fetch(ctx context.Context, target ReadOnlyTarget, reference string, opts FetchOptions) (ocispec.Descriptor, io.ReadCloser, error) {
	if opts.TargetPlatform == nil {
		if refFetcher, ok := target.(registry.ReferenceFetcher); ok {
			return refFetcher.FetchReference(ctx, reference)
		}

		desc, err := target.Resolve(ctx, reference)
		if err != nil {
			return ocispec.Descriptor{}, nil, err
		}
		rc, err := target.Fetch(ctx, desc)
		if err != nil {
			return ocispec.Descriptor{}, nil, err
		}
		return desc, rc, nil
	}

	if opts.MaxMetadataBytes <= 0 {
		opts.MaxMetadataBytes = defaultResolveMaxMetadataBytes
	}
	proxy := cas.NewProxyWithLimit(target, cas.NewMemory(), opts.MaxMetadataBytes)
	desc, err := resolve(ctx, target, proxy, reference, opts.ResolveOptions)
	if err != nil {
		return ocispec.Descriptor{}, nil, err
	}
	// if the content exists in cache, fetch it from cache
	// otherwise fetch without caching
	proxy.StopCaching = true
	rc, err := proxy.Fetch(ctx, desc)
	if err != nil {
		return ocispec.Descriptor{}, nil, err
	}
	return desc, rc, nil
}

// DefaultFetchBytesOptions provides the default FetchBytesOptions.
var DefaultFetchBytesOptions FetchBytesOptions

// FetchBytesOptions contains parameters for ocidist.FetchBytes.
type FetchBytesOptions struct {
	// FetchOptions contains parameters for fetching content.
	FetchOptions
	// MaxBytes limits the maximum size of the fetched content bytes.
	// If less than or equal to 0, a default (currently 4 MiB) is used.
	MaxBytes int64
}

// FetchBytes fetches the content bytes identified by the reference.
func FetchBytes(ctx context.Context, target ReadOnlyTarget, reference string, opts FetchBytesOptions) (ocispec.Descriptor, []byte, error) {
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = defaultMaxBytes
	}

	desc, rc, err := Fetch(ctx, target, reference, opts.FetchOptions)
	if err != nil {
		return ocispec.Descriptor{}, nil, err
	}
	defer rc.Close()

	if desc.Size > opts.MaxBytes {
		return ocispec.Descriptor{}, nil, fmt.Errorf(
			"content size %v exceeds MaxBytes %v: %w", desc.Size, opts.MaxBytes, errdef.ErrSizeExceedsLimit)
	}
	data, err := content.ReadAll(rc, desc)
	if err != nil {
		return ocispec.Descriptor{}, nil, err
	}
	return desc, data, nil
}

// PushBytes describes the contentBytes using the given mediaType and pushes it.
// If mediaType is not specified, "application/octet-stream" is used.
func PushBytes(ctx context.Context, pusher content.Pusher, mediaType string, contentBytes []byte) (ocispec.Descriptor, error) {
	desc := content.NewDescriptorFromBytes(mediaType, contentBytes)
	if err := pusher.Push(ctx, desc, bytes.NewReader(contentBytes)); err != nil {
		return ocispec.Descriptor{}, err
	}
	return desc, nil
}

// DefaultTagBytesNOptions provides the default TagBytesNOptions.
var DefaultTagBytesNOptions TagBytesNOptions

// TagBytesNOptions contains parameters for ocidist.TagBytesN.
type TagBytesNOptions struct {
	// Concurrency limits the maximum number of concurrent tag tasks.
	// If less than or equal to 0, a default (currently 5) is used.
	Concurrency int64
}

// TagBytesN describes the contentBytes using the given mediaType, pushes it,
// and tag it with the given references.
// If mediaType is not specified, "application/octet-stream" is used.
func TagBytesN(ctx context.Context, target Target, mediaType string, contentBytes []byte, references []string, opts TagBytesNOptions) (ocispec.Descriptor, error) {
	if len(references) == 0 {
		return PushBytes(ctx, target, mediaType, contentBytes)
	}

	desc := content.NewDescriptorFromBytes(mediaType, contentBytes)
	if refPusher, ok := target.(registry.ReferencePusher); ok {
		err := fanOut(ctx, opts.Concurrency, references, func(ctx context.Context, ref string) error {
			r := bytes.NewReader(contentBytes)
			if err := refPusher.PushReference(ctx, desc, r, ref); err != nil && !errors.Is(err, errdef.ErrAlreadyExists) {
				return fmt.Errorf("failed to tag %s: %w", ref, err)
			}
			return nil
		})
		if err != nil {
			return ocispec.Descriptor{}, err
		}
		return desc, nil
	}

	if err := target.Push(ctx, desc, bytes.NewReader(contentBytes)); err != nil && !errors.Is(err, errdef.ErrAlreadyExists) {
		return ocispec.Descriptor{}, fmt.Errorf("failed to push content: %w", err)
	}
	err := fanOut(ctx, opts.Concurrency, references, func(ctx context.Context, ref string) error {
		if err := target.Tag(ctx, desc, ref); err != nil {
			return fmt.Errorf("failed to tag %s: %w", ref, err)
		}
		return nil
	})
	if err != nil {
		return ocispec.Descriptor{}, err
	}
	return desc, nil
}

// TagBytes describes the contentBytes using the given mediaType, pushes it,
// and tag it with the given reference.
// If mediaType is not specified, "application/octet-stream" is used.
func TagBytes(ctx context.Context, target Target, mediaType string, contentBytes []byte, reference string) (ocispec.Descriptor, error) {
	return TagBytesN(ctx, target, mediaType, contentBytes, []string{reference}, DefaultTagBytesNOptions)
}
