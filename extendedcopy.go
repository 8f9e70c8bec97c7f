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
	"encoding/json"
	"errors"
	"regexp"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/ocifetch/ocidist/content"
	"github.com/ocifetch/ocidist/internal/descriptor"
	"github.com/ocifetch/ocidist/registry"
)

var (
	// DefaultExtendedCopyOptions provides the default ExtendedCopyOptions.
	DefaultExtendedCopyOptions = ExtendedCopyOptions{
		ExtendedCopyGraphOptions: DefaultExtendedCopyGraphOptions,
	}
	// DefaultExtendedCopyGraphOptions provides the default ExtendedCopyGraphOptions.
	DefaultExtendedCopyGraphOptions = ExtendedCopyGraphOptions{
		CopyGraphOptions: DefaultCopyGraphOptions,
	}
)

// ExtendedCopyOptions contains parameters for ocidist.ExtendedCopy.
type ExtendedCopyOptions struct {
	ExtendedCopyGraphOptions
}

// ExtendedCopyGraphOptions contains parameters for ocidist.ExtendedCopyGraph.
type ExtendedCopyGraphOptions struct {
	CopyGraphOptions
	// Depth limits the maximum depth of the directed acyclic graph (DAG) that
	// will be extended-copied.
	// If Depth is no specified, or the specified value is less than or
	// equal to 0, the depth limit will be considered as infinity.
	Depth int
	// FindPredecessors finds the predecessors of the current node.
	// If FindPredecessors is nil, src.Predecessors will be adapted and used.
	FindPredecessors func(ctx context.Context, src content.ReadOnlyGraphStorage, desc ocispec.Descriptor) ([]ocispec.Descriptor, error)
}

// ExtendedCopy copies the directed acyclic graph (DAG) that are reachable from
// the given tagged node from the source GraphTarget to the destination Target.
// The destination reference will be the same as the source reference if the
// destination reference is left blank.
// Returns the descriptor of the tagged node on successful copy.
func ExtendedCopy(ctx context.Context, src ReadOnlyGraphTarget, srcRef string, dst Target, dstRef string, opts ExtendedCopyOptions) (ocispec.Descriptor, error) {
	if src == nil {
		return ocispec.Descriptor{}, errors.New("nil source graph target")
	}
	if dst == nil {
		return ocispec.Descriptor{}, errors.New("nil destination target")
	}
	if dstRef == "" {
		dstRef = srcRef
	}

	node, err := src.Resolve(ctx, srcRef)
	if err != nil {
		return ocispec.Descriptor{}, err
	}

	if err := ExtendedCopyGraph(ctx, src, dst, node, opts.ExtendedCopyGraphOptions); err != nil {
		return ocispec.Descriptor{}, err
	}

	if err := dst.Tag(ctx, node, dstRef); err != nil {
		return ocispec.Descriptor{}, err
	}

	return node, nil
}

// ExtendedCopyGraph copies the directed acyclic graph (DAG) that are reachable
// from the given node from the source GraphStorage to the destination Storage.
func ExtendedCopyGraph(ctx context.Context, src content.ReadOnlyGraphStorage, dst content.Storage, node ocispec.Descriptor, opts ExtendedCopyGraphOptions) error {
	rf := newRootFinder(src, opts)
	roots, err := rf.find(ctx, node)
	if err != nil {
		return err
	}
	for _, root := range roots {
		if err := CopyGraph(ctx, src, dst, root, opts.CopyGraphOptions); err != nil {
			return err
		}
	}
	return nil
}

// rootFinder walks predecessor edges upward from a node to discover the
// roots of the sub-DAGs it belongs to.
type rootFinder struct {
	storage          content.ReadOnlyGraphStorage
	findPredecessors func(ctx context.Context, src content.ReadOnlyGraphStorage, desc ocispec.Descriptor) ([]ocispec.Descriptor, error)
	maxDepth         int
}

func newRootFinder(storage content.ReadOnlyGraphStorage, opts ExtendedCopyGraphOptions) *rootFinder {
	findPredecessors := opts.FindPredecessors
	if findPredecessors == nil {
		findPredecessors = func(ctx context.Context, src content.ReadOnlyGraphStorage, desc ocispec.Descriptor) ([]ocispec.Descriptor, error) {
			return src.Predecessors(ctx, desc)
		}
	}
	return &rootFinder{storage: storage, findPredecessors: findPredecessors, maxDepth: opts.Depth}
}

// pending is one node awaiting a predecessor lookup, at a known depth from
// the search's starting node.
type pending struct {
	node  ocispec.Descriptor
	depth int
}

// find performs a breadth-first walk of predecessor edges starting at node,
// returning every node with no predecessor (or that hit the depth limit),
// deduplicated and keyed by descriptor identity.
func (rf *rootFinder) find(ctx context.Context, node ocispec.Descriptor) (map[descriptor.Descriptor]ocispec.Descriptor, error) {
	visited := make(map[descriptor.Descriptor]bool)
	roots := make(map[descriptor.Descriptor]ocispec.Descriptor)

	queue := []pending{{node: node, depth: 0}}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		key := descriptor.FromOCI(current.node)
		if visited[key] {
			continue
		}
		visited[key] = true

		if rf.maxDepth > 0 && current.depth == rf.maxDepth {
			roots[key] = current.node
			continue
		}

		predecessors, err := rf.findPredecessors(ctx, rf.storage, current.node)
		if err != nil {
			return nil, err
		}
		if len(predecessors) == 0 {
			roots[key] = current.node
			continue
		}
		for _, p := range predecessors {
			if !visited[descriptor.FromOCI(p)] {
				queue = append(queue, pending{node: p, depth: current.depth + 1})
			}
		}
	}
	return roots, nil
}

// predecessorFilter wraps a previous FindPredecessors function (next, which
// may be nil) with an additional keep predicate. When src supports the
// Referrers API and no previous filter is chained, it pages through
// Referrers directly instead of scanning all predecessors. Otherwise it
// backfills whatever manifest detail keep relies on (annotations or
// artifact type) for predecessors whose descriptor omitted it, since a
// plain Predecessors scan only returns bare descriptors.
func predecessorFilter(next func(ctx context.Context, src content.ReadOnlyGraphStorage, desc ocispec.Descriptor) ([]ocispec.Descriptor, error), backfill func(context.Context, content.ReadOnlyGraphStorage, []ocispec.Descriptor) error, keep func(ocispec.Descriptor) bool) func(ctx context.Context, src content.ReadOnlyGraphStorage, desc ocispec.Descriptor) ([]ocispec.Descriptor, error) {
	return func(ctx context.Context, src content.ReadOnlyGraphStorage, desc ocispec.Descriptor) ([]ocispec.Descriptor, error) {
		referrerFinder, supportsReferrers := src.(registry.ReferrerFinder)

		var predecessors []ocispec.Descriptor
		switch {
		case next == nil && supportsReferrers:
			var filtered []ocispec.Descriptor
			err := referrerFinder.Referrers(ctx, desc, "", func(page []ocispec.Descriptor) error {
				for _, p := range page {
					if keep(p) {
						filtered = append(filtered, p)
					}
				}
				return nil
			})
			return filtered, err
		case next == nil:
			found, err := src.Predecessors(ctx, desc)
			if err != nil {
				return nil, err
			}
			predecessors = found
		default:
			found, err := next(ctx, src, desc)
			if err != nil {
				return nil, err
			}
			predecessors = found
		}

		if !supportsReferrers {
			if err := backfill(ctx, src, predecessors); err != nil {
				return nil, err
			}
		}
		var filtered []ocispec.Descriptor
		for _, p := range predecessors {
			if keep(p) {
				filtered = append(filtered, p)
			}
		}
		return filtered, nil
	}
}

// FilterAnnotation will configure opts.FindPredecessors to filter the
// predecessors whose annotation matches a given regex pattern. A predecessor is
// kept if the key is in its annotation and matches the regex if present.
// For performance consideration, when using both FilterArtifactType and
// FilterAnnotation, it's recommended to call FilterArtifactType first.
func (opts *ExtendedCopyGraphOptions) FilterAnnotation(key string, regex *regexp.Regexp) {
	keep := func(p ocispec.Descriptor) bool {
		value, ok := p.Annotations[key]
		return ok && (regex == nil || regex.MatchString(value))
	}
	backfill := func(ctx context.Context, src content.ReadOnlyGraphStorage, predecessors []ocispec.Descriptor) error {
		for i, p := range predecessors {
			if p.Annotations != nil || !descriptor.IsManifest(p) {
				continue
			}
			annotations, err := fetchAnnotations(ctx, src, p)
			if err != nil {
				return err
			}
			predecessors[i].Annotations = annotations
		}
		return nil
	}
	opts.FindPredecessors = predecessorFilter(opts.FindPredecessors, backfill, keep)
}

// FilterArtifactType will configure opts.FindPredecessors to filter the predecessors
// whose artifact type matches a given regex pattern. When the regex pattern is nil,
// no artifact type filter will be applied. For performance consideration, when using both
// FilterArtifactType and FilterAnnotation, it's recommended to call
// FilterArtifactType first.
func (opts *ExtendedCopyGraphOptions) FilterArtifactType(regex *regexp.Regexp) {
	if regex == nil {
		return
	}
	keep := func(p ocispec.Descriptor) bool {
		return regex.MatchString(p.ArtifactType)
	}
	backfill := func(ctx context.Context, src content.ReadOnlyGraphStorage, predecessors []ocispec.Descriptor) error {
		for i, p := range predecessors {
			if p.MediaType != ocispec.MediaTypeArtifactManifest || p.ArtifactType != "" {
				continue
			}
			artifactType, err := fetchArtifactType(ctx, src, p)
			if err != nil {
				return err
			}
			predecessors[i].ArtifactType = artifactType
		}
		return nil
	}
	opts.FindPredecessors = predecessorFilter(opts.FindPredecessors, backfill, keep)
}

// fetchAnnotations fetches the annotations of the manifest described by desc.
func fetchAnnotations(ctx context.Context, src content.ReadOnlyGraphStorage, desc ocispec.Descriptor) (map[string]string, error) {
	rc, err := src.Fetch(ctx, desc)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	var manifest struct {
		Annotations map[string]string `json:"annotations"`
	}
	if err := json.NewDecoder(rc).Decode(&manifest); err != nil {
		return nil, err
	}
	return manifest.Annotations, nil
}

// fetchArtifactType fetches the artifact type of the manifest described by desc.
func fetchArtifactType(ctx context.Context, src content.ReadOnlyGraphStorage, desc ocispec.Descriptor) (string, error) {
	rc, err := src.Fetch(ctx, desc)
	if err != nil {
		return "", err
	}
	defer rc.Close()
	var manifest ocispec.Artifact
	if err := json.NewDecoder(rc).Decode(&manifest); err != nil {
		return "", err
	}
	return manifest.ArtifactType, nil
}
