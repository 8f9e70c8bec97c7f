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

package remote

import (
	"errors"
	"fmt"
	"strings"

	"github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/ocifetch/ocidist/content"
	"github.com/ocifetch/ocidist/internal/descriptor"
)

// zeroDigest is used to ping the Referrers API fallback tag before a real
// subject digest is known.
const zeroDigest = "sha256:0000000000000000000000000000000000000000000000000000000000000000"

// referrersAPIState records whether a repository has confirmed support for
// the OCI 1.1 Referrers API, so a client only probes it once.
type referrersAPIState int32

const (
	referrersStateUnknown referrersAPIState = iota
	referrersStateSupported
	referrersStateUnsupported
)

// referrerOperation is one edit in a referrers-index update.
type referrerOperation int32

const (
	referrerOperationAdd referrerOperation = iota
	referrerOperationRemove
)

// referrerChange pairs a referrer descriptor with the edit to apply to it.
type referrerChange struct {
	referrer  ocispec.Descriptor
	operation referrerOperation
}

var (
	// ErrReferrersCapabilityAlreadySet is returned by SetReferrersCapability
	// when the Referrers API capability has already been pinned.
	ErrReferrersCapabilityAlreadySet = errors.New("referrers capability cannot be changed once set")

	// errNoReferrerUpdate is returned by applyReferrerChanges when none of
	// the requested changes alter the referrers list.
	errNoReferrerUpdate = errors.New("no referrer update")
)

// DanglingReferrersIndexError is returned when an old fallback referrers
// index fails to be deleted after a newly updated one has been pushed. Only
// surfaces when the Referrers API itself is unavailable.
type DanglingReferrersIndexError struct {
	InnerError   error
	IndexDigest  digest.Digest
	ReferrersTag string
	Subject      ocispec.Descriptor
}

func (d *DanglingReferrersIndexError) Error() string {
	return fmt.Sprintf("failed to delete dangling referrers index %s for referrers tag %s: %s",
		d.IndexDigest, d.ReferrersTag, d.InnerError)
}

func (d *DanglingReferrersIndexError) Unwrap() error {
	return d.InnerError
}

// buildReferrersTag derives the fallback `<algorithm>-<encoded>` tag a
// repository without native Referrers API support uses to track referrers
// of desc. Reference:
// https://github.com/opencontainers/distribution-spec/blob/v1.1.0-rc1/spec.md#unavailable-referrers-api
func buildReferrersTag(desc ocispec.Descriptor) (string, error) {
	if err := desc.Digest.Validate(); err != nil {
		return "", err
	}
	return desc.Digest.Algorithm().String() + "-" + desc.Digest.Encoded(), nil
}

// isReferrersFilterApplied reports whether requested appears in the
// comma-separated list of filters the server applied (the
// AnnotationReferrersFiltersApplied annotation value).
func isReferrersFilterApplied(applied, requested string) bool {
	if applied == "" || requested == "" {
		return false
	}
	for _, f := range strings.Split(applied, ",") {
		if f == requested {
			return true
		}
	}
	return false
}

// filterReferrers keeps, in place, only the entries of refs whose
// ArtifactType equals artifactType, returning the retained prefix. An empty
// artifactType is a no-op: the server is assumed to have already filtered.
func filterReferrers(refs []ocispec.Descriptor, artifactType string) []ocispec.Descriptor {
	if artifactType == "" {
		return refs
	}
	kept := refs[:0]
	for _, ref := range refs {
		if ref.ArtifactType == artifactType {
			kept = append(kept, ref)
		}
	}
	return kept
}

// referrerSet tracks the referrers accumulated while replaying a list of
// referrerChange edits, keyed by descriptor identity so adds/removes of the
// same referrer collapse correctly regardless of order.
type referrerSet struct {
	order []ocispec.Descriptor
	index map[descriptor.Descriptor]int
}

func newReferrerSet(initial []ocispec.Descriptor) (rs referrerSet, droppedBad bool) {
	rs = referrerSet{
		index: make(map[descriptor.Descriptor]int, len(initial)),
	}
	for _, r := range initial {
		if content.Equal(r, ocispec.Descriptor{}) {
			droppedBad = true
			continue
		}
		key := descriptor.FromOCI(r)
		if _, dup := rs.index[key]; dup {
			droppedBad = true
			continue
		}
		rs.order = append(rs.order, r)
		rs.index[key] = len(rs.order) - 1
	}
	return rs, droppedBad
}

func (rs *referrerSet) add(r ocispec.Descriptor) {
	key := descriptor.FromOCI(r)
	if _, exists := rs.index[key]; exists {
		return
	}
	rs.order = append(rs.order, r)
	rs.index[key] = len(rs.order) - 1
}

func (rs *referrerSet) remove(r ocispec.Descriptor) {
	key := descriptor.FromOCI(r)
	pos, exists := rs.index[key]
	if !exists {
		return
	}
	rs.order[pos] = ocispec.Descriptor{}
	delete(rs.index, key)
}

// compact drops the tombstones left by remove, preserving relative order.
func (rs *referrerSet) compact() []ocispec.Descriptor {
	return removeEmptyDescriptors(rs.order, len(rs.index))
}

// removeEmptyDescriptors in-place removes zero-value entries from descs,
// stopping early once hint non-empty entries have been kept.
func removeEmptyDescriptors(descs []ocispec.Descriptor, hint int) []ocispec.Descriptor {
	j := 0
	for i, r := range descs {
		if !content.Equal(r, ocispec.Descriptor{}) {
			if i > j {
				descs[j] = r
			}
			j++
		}
		if j == hint {
			break
		}
	}
	return descs[:j]
}

// matchesInitial reports whether the live entries of rs are exactly the
// descriptors in initial, ignoring order and duplicates — used to detect a
// net-zero update.
func (rs *referrerSet) matchesInitial(initial []ocispec.Descriptor) bool {
	if len(rs.index) != len(initial) {
		return false
	}
	for _, r := range initial {
		if _, ok := rs.index[descriptor.FromOCI(r)]; !ok {
			return false
		}
	}
	return true
}

// applyReferrerChanges replays changes over referrers and returns the
// resulting list. Duplicate and malformed (zero-value) entries already in
// referrers are dropped silently; changes are applied in order, so a later
// remove undoes an earlier add of the same referrer and vice versa. Returns
// errNoReferrerUpdate if the net result is identical to the input set.
func applyReferrerChanges(referrers []ocispec.Descriptor, changes []referrerChange) ([]ocispec.Descriptor, error) {
	rs, droppedBad := newReferrerSet(referrers)
	for _, c := range changes {
		switch c.operation {
		case referrerOperationAdd:
			rs.add(c.referrer)
		case referrerOperationRemove:
			rs.remove(c.referrer)
		}
	}

	if !droppedBad && rs.matchesInitial(referrers) {
		return nil, errNoReferrerUpdate
	}
	return rs.compact(), nil
}
