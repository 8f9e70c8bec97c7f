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
	"io"
	"net/http"
	"regexp"
	"strings"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/ocifetch/ocidist/errdef"
	"github.com/ocifetch/ocidist/internal/descriptor"
	"github.com/ocifetch/ocidist/internal/docker"
	"github.com/ocifetch/ocidist/internal/spec"
)

// defaultManifestMediaTypes is used to build the `Accept` header for manifest
// resolution when Repository.ManifestMediaTypes is left empty.
var defaultManifestMediaTypes = []string{
	ocispec.MediaTypeImageManifest,
	ocispec.MediaTypeImageIndex,
	spec.MediaTypeArtifactManifest,
	docker.MediaTypeManifest,
	docker.MediaTypeManifestList,
}

// manifestAcceptHeader builds the `Accept` header value used when resolving
// a manifest by reference, falling back to defaultManifestMediaTypes when
// manifestMediaTypes is empty.
func manifestAcceptHeader(manifestMediaTypes []string) string {
	if len(manifestMediaTypes) == 0 {
		manifestMediaTypes = defaultManifestMediaTypes
	}
	return strings.Join(manifestMediaTypes, ", ")
}

// defaultMaxMetadataBytes is the default limit on metadata bytes, matching
// the limit used by containerd.
const defaultMaxMetadataBytes int64 = 4 * 1024 * 1024 // 4 MiB

// errNoLink is returned by parseLink when the response carries no Link
// header, signaling the end of a paginated listing.
var errNoLink = errors.New("no Link header in response")

// linkRegexp matches a RFC5988 Link header of the form
// `<url>; rel="next"`.
var linkRegexp = regexp.MustCompile(`^<([^>]+)>`)

// parseLink returns the URL of the next page from the Link header of resp,
// resolved against the request URL. It returns errNoLink if resp carries no
// Link header.
func parseLink(resp *http.Response) (string, error) {
	link := resp.Header.Get("Link")
	if link == "" {
		return "", errNoLink
	}

	match := linkRegexp.FindStringSubmatch(link)
	if len(match) != 2 {
		return "", fmt.Errorf("invalid next link %q: %w", link, errdef.ErrInvalidReference)
	}

	next, err := resp.Request.URL.Parse(match[1])
	if err != nil {
		return "", fmt.Errorf("failed to parse next link %q: %w", link, err)
	}
	return next.String(), nil
}

// limitReader returns a reader that reads from r but stops after n bytes. A
// non-positive n falls back to defaultMaxMetadataBytes.
func limitReader(r io.Reader, n int64) io.Reader {
	if n <= 0 {
		n = defaultMaxMetadataBytes
	}
	return io.LimitReader(r, n)
}

// isManifest reports whether desc identifies a manifest. manifestMediaTypes,
// when non-empty, overrides the built-in media type list configured via
// Repository.ManifestMediaTypes.
func isManifest(manifestMediaTypes []string, desc ocispec.Descriptor) bool {
	if len(manifestMediaTypes) == 0 {
		return descriptor.IsManifest(desc)
	}
	for _, mediaType := range manifestMediaTypes {
		if mediaType == desc.MediaType {
			return true
		}
	}
	return false
}

// limitSize returns errdef.ErrSizeExceedsLimit if desc.Size exceeds n. A
// non-positive n falls back to defaultMaxMetadataBytes.
func limitSize(desc ocispec.Descriptor, n int64) error {
	if n <= 0 {
		n = defaultMaxMetadataBytes
	}
	if desc.Size > n {
		return fmt.Errorf("content size %v exceeds MaxMetadataBytes %v: %w", desc.Size, n, errdef.ErrSizeExceedsLimit)
	}
	return nil
}
