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
	"github.com/ocifetch/ocidist/content"
)

// Target is a CAS that can also resolve a reference to a descriptor and tag
// a descriptor with a reference. content.Storage, content.file.Store,
// content.memory.Store, and registry.Repository are all Targets.
type Target interface {
	content.Storage
	content.Resolver
}

// ReadOnlyTarget is a read-only Target.
type ReadOnlyTarget interface {
	content.ReadOnlyStorage
	content.Resolver
}

// GraphTarget is a Target that keeps track of the predecessors of the nodes
// it stores, so that a node's referrers can be listed without a full graph
// walk.
type GraphTarget interface {
	Target
	content.PredecessorFinder
}

// ReadOnlyGraphTarget is a read-only GraphTarget.
type ReadOnlyGraphTarget interface {
	ReadOnlyTarget
	content.PredecessorFinder
}
