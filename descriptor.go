package ocidist

import (
	"errors"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/ocifetch/ocidist/content"
)

// errMissingMediaType is returned by GenerateDescriptor when mediaType is
// empty; callers of the top-level package are expected to always know what
// they're describing, unlike content.NewDescriptorFromBytes which defaults
// it for convenience.
var errMissingMediaType = errors.New("missing media type")

// GenerateDescriptor builds the OCI descriptor for content, requiring an
// explicit mediaType.
func GenerateDescriptor(data []byte, mediaType string) (ocispec.Descriptor, error) {
	if mediaType == "" {
		return ocispec.Descriptor{}, errMissingMediaType
	}
	return content.NewDescriptorFromBytes(mediaType, data), nil
}

// Equal reports whether a and b describe the same content.
func Equal(a, b ocispec.Descriptor) bool {
	return content.Equal(a, b)
}
