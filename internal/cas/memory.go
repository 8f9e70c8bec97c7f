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
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/ocifetch/ocidist/content"
	"github.com/ocifetch/ocidist/errdef"
	"github.com/ocifetch/ocidist/internal/descriptor"
)

// Memory is a memory based CAS.
type Memory struct {
	content sync.Map // map[descriptor.Descriptor][]byte
}

// NewMemory creates a new Memory CAS.
func NewMemory() *Memory {
	return &Memory{}
}

// Fetch fetches the content identified by the descriptor.
func (m *Memory) Fetch(ctx context.Context, target ocispec.Descriptor) (io.ReadCloser, error) {
	key := descriptor.FromOCI(target)
	blob, exists := m.content.Load(key)
	if !exists {
		return nil, fmt.Errorf("%s: %s: %w", target.Digest, target.MediaType, errdef.ErrNotFound)
	}
	return io.NopCloser(bytes.NewReader(blob.([]byte))), nil
}

// Push pushes the content, matching the expected descriptor.
func (m *Memory) Push(ctx context.Context, expected ocispec.Descriptor, reader io.Reader) error {
	key := descriptor.FromOCI(expected)
	if _, exists := m.content.Load(key); exists {
		return fmt.Errorf("%s: %s: %w", expected.Digest, expected.MediaType, errdef.ErrAlreadyExists)
	}

	buf, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	if int64(len(buf)) != expected.Size || digest.FromBytes(buf) != expected.Digest {
		return fmt.Errorf("%s: %s: %w", expected.Digest, expected.MediaType, content.ErrMismatchedDigest)
	}

	if _, exists := m.content.LoadOrStore(key, buf); exists {
		return fmt.Errorf("%s: %s: %w", expected.Digest, expected.MediaType, errdef.ErrAlreadyExists)
	}
	return nil
}

// Exists returns true if the described content exists.
func (m *Memory) Exists(ctx context.Context, target ocispec.Descriptor) (bool, error) {
	key := descriptor.FromOCI(target)
	_, exists := m.content.Load(key)
	return exists, nil
}

// Map dumps the memory into a built-in map structure.
// Like other operations, calling Map() is go-routine safe. However, it does
// not necessarily correspond to any consistent snapshot of the stored
// contents.
func (m *Memory) Map() map[descriptor.Descriptor][]byte {
	res := make(map[descriptor.Descriptor][]byte)
	m.content.Range(func(key, value interface{}) bool {
		res[key.(descriptor.Descriptor)] = value.([]byte)
		return true
	})
	return res
}
