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
	"io"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/ocifetch/ocidist/errdef"
)

// LimitedStorage is a Storage decorator that rejects pushes whose descriptor
// exceeds a size limit before they ever reach the wrapped Storage.
type LimitedStorage struct {
	Storage
	limit int64
}

// LimitStorage wraps storage with a push size limit.
func LimitStorage(storage Storage, limit int64) *LimitedStorage {
	return &LimitedStorage{
		Storage: storage,
		limit:   limit,
	}
}

// Push pushes the content, matching the expected descriptor, as long as the
// descriptor size does not exceed the configured limit.
func (ls *LimitedStorage) Push(ctx context.Context, expected ocispec.Descriptor, content io.Reader) error {
	if expected.Size > ls.limit {
		return fmt.Errorf("content size %v exceeds size limit %v: %w",
			expected.Size, ls.limit, errdef.ErrSizeExceedsLimit)
	}
	return ls.Storage.Push(ctx, expected, content)
}
