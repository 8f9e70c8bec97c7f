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

package graph

import (
	"context"
	"sync"

	"github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/ocifetch/ocidist/content"
	"github.com/ocifetch/ocidist/internal/container/set"
	"github.com/ocifetch/ocidist/internal/descriptor"
	"github.com/ocifetch/ocidist/internal/status"
)

// Memory is a memory based UpEdgeFinder. In addition to tracking up edges,
// it keeps every indexed node and its down edges, so that a node can later
// be removed from the index and so that its existence can be queried
// directly.
type Memory struct {
	lock sync.RWMutex
	// nodes saves the map keys of ocispec.Descriptor.
	nodes        map[descriptor.Descriptor]ocispec.Descriptor
	predecessors map[descriptor.Descriptor]set.Set[descriptor.Descriptor]
	successors   map[descriptor.Descriptor]set.Set[descriptor.Descriptor]
	indexed      sync.Map // map[descriptor.Descriptor]bool
}

// NewMemory creates a new memory UpEdgeFinder.
func NewMemory() *Memory {
	return &Memory{
		nodes:        make(map[descriptor.Descriptor]ocispec.Descriptor),
		predecessors: make(map[descriptor.Descriptor]set.Set[descriptor.Descriptor]),
		successors:   make(map[descriptor.Descriptor]set.Set[descriptor.Descriptor]),
	}
}

// Index indexes up edges for each direct down edge of the given node.
// There is no data consistency issue as long as deletion is not implemented
// for the underlying storage.
func (m *Memory) Index(ctx context.Context, fetcher content.Fetcher, node ocispec.Descriptor) error {
	downEdges, err := content.DownEdges(ctx, fetcher, node)
	if err != nil {
		return err
	}

	m.index(node, downEdges)
	return nil
}

// IndexAll indexes up edges for all the down edges of the given node.
// There is no data consistency issue as long as deletion is not implemented
// for the underlying storage.
func (m *Memory) IndexAll(ctx context.Context, fetcher content.Fetcher, node ocispec.Descriptor) error {
	// track content status
	tracker := status.NewTracker()

	// prepare pre-handler
	preHandler := HandlerFunc(func(ctx context.Context, desc ocispec.Descriptor) ([]ocispec.Descriptor, error) {
		// skip the node if other go routine is working on it
		_, committed := tracker.TryCommit(desc)
		if !committed {
			return nil, ErrSkipDesc
		}

		// skip the node if it has been indexed
		key := descriptor.FromOCI(desc)
		_, exists := m.indexed.Load(key)
		if exists {
			return nil, ErrSkipDesc
		}

		downEdges, err := content.DownEdges(ctx, fetcher, desc)
		if err != nil {
			return nil, err
		}

		m.index(desc, downEdges)
		m.indexed.Store(key, true)

		return downEdges, nil
	})

	postHandler := Handlers()

	// traverse the graph
	return Dispatch(ctx, preHandler, postHandler, nil, node)
}

// UpEdges returns the nodes directly pointing to the current node.
// UpEdges returns nil without error if the node does not exists in the store.
// Like other operations, calling UpEdges() is go-routine safe. However, it does
// not necessarily correspond to any consistent snapshot of the stored contents.
func (m *Memory) UpEdges(ctx context.Context, node ocispec.Descriptor) ([]ocispec.Descriptor, error) {
	return m.Predecessors(ctx, node)
}

// Predecessors is an alias of UpEdges, kept for callers that think in terms
// of predecessors in the directed acyclic graph rather than up edges.
// Predecessors returns nil without error if the node does not exists in the
// store.
func (m *Memory) Predecessors(_ context.Context, node ocispec.Descriptor) ([]ocispec.Descriptor, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()

	key := descriptor.FromOCI(node)
	predecessorSet, exists := m.predecessors[key]
	if !exists {
		return nil, nil
	}

	var res []ocispec.Descriptor
	for k := range predecessorSet {
		res = append(res, m.nodes[k])
	}
	return res, nil
}

// Remove removes node from the index: its entry in nodes and successors is
// dropped, and node is removed from the predecessor set of each of its
// successors, pruning any successor's predecessor entry left empty as a
// result. The node's own predecessor entry (the nodes that still point to
// it) is left untouched, since those relationships were recorded by the
// predecessors themselves and are only cleaned up when they, in turn, are
// removed.
func (m *Memory) Remove(node ocispec.Descriptor) {
	m.lock.Lock()
	defer m.lock.Unlock()

	nodeKey := descriptor.FromOCI(node)
	for successorKey := range m.successors[nodeKey] {
		predecessorSet := m.predecessors[successorKey]
		predecessorSet.Delete(nodeKey)
		if len(predecessorSet) == 0 {
			delete(m.predecessors, successorKey)
		}
	}
	delete(m.successors, nodeKey)
	delete(m.nodes, nodeKey)
}

// DigestSet returns the set of digests of every node indexed so far.
func (m *Memory) DigestSet() set.Set[digest.Digest] {
	m.lock.RLock()
	defer m.lock.RUnlock()

	digestSet := set.New[digest.Digest]()
	for _, node := range m.nodes {
		digestSet.Add(node.Digest)
	}
	return digestSet
}

// Exists returns true if node has been indexed.
func (m *Memory) Exists(node ocispec.Descriptor) bool {
	m.lock.RLock()
	defer m.lock.RUnlock()

	_, exists := m.nodes[descriptor.FromOCI(node)]
	return exists
}

// index indexes up edges for each direct down edge of the given node.
// There is no data consistency issue as long as deletion is not implemented
// for the underlying storage.
func (m *Memory) index(node ocispec.Descriptor, downEdges []ocispec.Descriptor) {
	m.lock.Lock()
	defer m.lock.Unlock()

	nodeKey := descriptor.FromOCI(node)
	m.nodes[nodeKey] = node
	successorSet, exists := m.successors[nodeKey]
	if !exists {
		successorSet = set.New[descriptor.Descriptor]()
		m.successors[nodeKey] = successorSet
	}

	for _, downEdge := range downEdges {
		downEdgeKey := descriptor.FromOCI(downEdge)
		successorSet.Add(downEdgeKey)

		predecessorSet, exists := m.predecessors[downEdgeKey]
		if !exists {
			predecessorSet = set.New[descriptor.Descriptor]()
			m.predecessors[downEdgeKey] = predecessorSet
		}
		predecessorSet.Add(nodeKey)
	}
}
