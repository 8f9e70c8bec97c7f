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

package cas

import (
	"context"
	"fmt"
	"io"
	"sync"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/ocifetch/ocidist/content"
	"github.com/ocifetch/ocidist/errdef"
	"github.com/ocifetch/ocidist/internal/ioutil"
)

// Proxy is a caching proxy for the storage.
// The first fetch call of a described content will read from the base and
// cache the fetched content.
// The subsequent fetch call will read from the local cache.
type Proxy struct {
	content.ReadOnlyStorage
	Cache content.Storage

	// StopCaching stops the proxy from caching any new content. Content
	// already cached is still served from the cache.
	StopCaching bool

	// limit caps the number of bytes read from the base storage per fetch.
	// Zero means unlimited.
	limit int64
}

// NewProxy creates a proxy for the `base` storage, using the `cache` storage
// as the cache.
func NewProxy(base content.ReadOnlyStorage, cache content.Storage) *Proxy {
	return &Proxy{
		ReadOnlyStorage: base,
		Cache:           cache,
	}
}

// NewProxyWithLimit creates a proxy for the `base` storage, using the `cache`
// storage as the cache. Reads from the base storage are capped at limit
// bytes; exceeding it surfaces errdef.ErrSizeExceedsLimit while reading the
// content returned by Fetch.
func NewProxyWithLimit(base content.ReadOnlyStorage, cache content.Storage, limit int64) *Proxy {
	return &Proxy{
		ReadOnlyStorage: base,
		Cache:           cache,
		limit:           limit,
	}
}

// Fetch fetches the content identified by the descriptor.
func (p *Proxy) Fetch(ctx context.Context, target ocispec.Descriptor) (io.ReadCloser, error) {
	rc, err := p.Cache.Fetch(ctx, target)
	if err == nil {
		return rc, nil
	}

	rc, err = p.ReadOnlyStorage.Fetch(ctx, target)
	if err != nil {
		return nil, err
	}

	var base io.Reader = rc
	if p.limit > 0 {
		base = &limitedReader{r: rc, remaining: p.limit}
	}

	if p.StopCaching {
		return struct {
			io.Reader
			io.Closer
		}{
			Reader: base,
			Closer: rc,
		}, nil
	}

	pr, pw := io.Pipe()
	var wg sync.WaitGroup
	wg.Add(1)
	var pushErr error
	go func() {
		defer wg.Done()
		pushErr = p.Cache.Push(ctx, target, pr)
	}()
	closer := ioutil.CloserFunc(func() error {
		rcErr := rc.Close()
		if err := pw.Close(); err != nil {
			return err
		}
		wg.Wait()
		if pushErr != nil {
			return pushErr
		}
		return rcErr
	})

	return struct {
		io.Reader
		io.Closer
	}{
		Reader: io.TeeReader(base, pw),
		Closer: closer,
	}, nil
}

// FetchCached fetches the content identified by the descriptor, preferring
// the cache. Unlike Fetch, it never causes new content to be cached.
func (p *Proxy) FetchCached(ctx context.Context, target ocispec.Descriptor) (io.ReadCloser, error) {
	exists, err := p.Cache.Exists(ctx, target)
	if err != nil {
		return nil, err
	}
	if exists {
		return p.Cache.Fetch(ctx, target)
	}
	return p.ReadOnlyStorage.Fetch(ctx, target)
}

// Exists returns true if the described content exists.
func (p *Proxy) Exists(ctx context.Context, target ocispec.Descriptor) (bool, error) {
	exists, err := p.Cache.Exists(ctx, target)
	if err == nil && exists {
		return true, nil
	}
	return p.ReadOnlyStorage.Exists(ctx, target)
}

// limitedReader reads from r, failing with errdef.ErrSizeExceedsLimit once
// more than `remaining` bytes have been produced, rather than silently
// truncating like io.LimitReader.
type limitedReader struct {
	r         io.Reader
	remaining int64
}

func (l *limitedReader) Read(p []byte) (int, error) {
	if int64(len(p)) > l.remaining+1 {
		p = p[:l.remaining+1]
	}
	n, err := l.r.Read(p)
	l.remaining -= int64(n)
	if l.remaining < 0 {
		return n, fmt.Errorf("content size exceeds size limit: %w", errdef.ErrSizeExceedsLimit)
	}
	return n, err
}
