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
	"io"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// Fetcher fetches content.
type Fetcher interface {
	// Fetch fetches the content identified by the descriptor.
	Fetch(ctx context.Context, target ocispec.Descriptor) (io.ReadCloser, error)
}

// Pusher pushes content.
type Pusher interface {
	// Push pushes the content, matching the expected descriptor.
	Push(ctx context.Context, expected ocispec.Descriptor, content io.Reader) error
}

// Storage is a CAS with the ability to read and write content.
// In addition to the CAS contract, it is expected to return
// errdef.ErrAlreadyExists from Push when the content already exists, and
// errdef.ErrNotFound from Fetch when it does not.
type Storage interface {
	ReadOnlyStorage
	Pusher
}

// ReadOnlyStorage is a CAS with only read access.
type ReadOnlyStorage interface {
	Fetcher

	// Exists returns true if the described content exists.
	Exists(ctx context.Context, target ocispec.Descriptor) (bool, error)
}

// Deleter deletes content.
// An implementation of Deleter is expected to delete both the content and
// any associated metadata such as tags pointing at the deleted content.
type Deleter interface {
	Delete(ctx context.Context, target ocispec.Descriptor) error
}

// Tagger tags a descriptor with a reference string.
type Tagger interface {
	// Tag tags a descriptor with a reference string.
	Tag(ctx context.Context, desc ocispec.Descriptor, reference string) error
}

// Resolver resolves a reference to a descriptor.
// As specified by the distribution spec, a Resolver is only expected to
// operate on manifests; tagging a blob is allowed by this interface but not
// guaranteed to be supported by every implementation.
type Resolver interface {
	Tagger

	// Resolve resolves a reference to a descriptor.
	// If the reference to be resolved is tagged, the resolved descriptor
	// should have the annotation "org.opencontainers.image.ref.name" with the
	// tag as its value.
	Resolve(ctx context.Context, reference string) (ocispec.Descriptor, error)
}

// TagResolver is a Resolver that can also tag content by reference.
// It is an alias of Resolver kept for readability at call sites that only
// care about the reference index, such as a memory-backed Target.
type TagResolver = Resolver

// FetcherFunc is a function that implements Fetcher.
type FetcherFunc func(ctx context.Context, target ocispec.Descriptor) (io.ReadCloser, error)

// Fetch calls fn(ctx, target).
func (fn FetcherFunc) Fetch(ctx context.Context, target ocispec.Descriptor) (io.ReadCloser, error) {
	return fn(ctx, target)
}

// PusherFunc is a function that implements Pusher.
type PusherFunc func(ctx context.Context, expected ocispec.Descriptor, content io.Reader) error

// Push calls fn(ctx, expected, content).
func (fn PusherFunc) Push(ctx context.Context, expected ocispec.Descriptor, content io.Reader) error {
	return fn(ctx, expected, content)
}
