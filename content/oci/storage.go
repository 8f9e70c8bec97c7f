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

package oci

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/ocifetch/ocidist/errdef"
	"github.com/ocifetch/ocidist/internal/ioutil"
	"github.com/ocifetch/ocidist/internal/spec"
)

const (
	// ociBlobsDir is the directory name holding the content-addressable blobs
	// of an OCI Image Layout.
	ociBlobsDir = "blobs"

	// ociImageIndexFile is the file name of the image index in an OCI Image
	// Layout.
	ociImageIndexFile = "index.json"

	// ociIngestDir is the directory name used for staging blobs being pushed,
	// including resumable partial downloads, before they are linked into
	// ociBlobsDir.
	ociIngestDir = "ingest"
)

// Storage is a CAS based on file system with the OCI-Image layout.
// Reference: https://github.com/opencontainers/image-spec/blob/master/image-layout.md
type Storage struct {
	root       string
	ingestRoot string

	*ReadOnlyStorage
}

// NewStorage creates a new CAS, rooted at root.
func NewStorage(root string) (*Storage, error) {
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for %s: %w", root, err)
	}

	return &Storage{
		root:            rootAbs,
		ingestRoot:      filepath.Join(rootAbs, ociIngestDir),
		ReadOnlyStorage: NewStorageFromFS(os.DirFS(rootAbs)),
	}, nil
}

// Push pushes the content, matching the expected descriptor.
// The caller signals a resumed push by setting the spec.AnnotationResume*
// annotations on expected: in that case content only carries the remainder
// of the blob, picking up from where a previous, interrupted ingest left
// off, and the previously-ingested bytes are read back from the file named
// by spec.AnnotationResumeFilename.
func (s *Storage) Push(ctx context.Context, expected ocispec.Descriptor, content io.Reader) error {
	path, err := blobPath(expected.Digest)
	if err != nil {
		return fmt.Errorf("%s: %s: %w", expected.Digest, expected.MediaType, errdef.ErrInvalidDigest)
	}
	target := filepath.Join(s.root, filepath.FromSlash(path))

	if expected.Annotations[spec.AnnotationResumeDownload] == "true" {
		return s.pushResume(expected, content, target)
	}

	if _, err := os.Stat(target); err == nil {
		return fmt.Errorf("%s: %s: %w", expected.Digest, expected.MediaType, errdef.ErrAlreadyExists)
	} else if !os.IsNotExist(err) {
		return err
	}

	if err := ensureDir(filepath.Dir(target)); err != nil {
		return err
	}
	if err := ensureDir(s.ingestRoot); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.ingestRoot, expected.Digest.Encoded()+"_*")
	if err != nil {
		return fmt.Errorf("failed to create ingest file: %w", err)
	}
	tmpPath := tmp.Name()
	closeTmp := func() {
		tmp.Close()
		os.Remove(tmpPath)
	}

	buf := make([]byte, 32*1024)
	if err := ioutil.CopyBuffer(tmp, content, buf, expected); err != nil {
		closeTmp()
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close ingest file: %w", err)
	}

	return commitIngest(tmpPath, target, expected)
}

// pushResume completes a resumable push: it appends content (the remainder
// of the blob) to the existing partial ingest file, verifies the
// reassembled file against expected, and commits it to target.
func (s *Storage) pushResume(expected ocispec.Descriptor, content io.Reader, target string) error {
	if _, err := os.Stat(target); err == nil {
		return fmt.Errorf("%s: %s: %w", expected.Digest, expected.MediaType, errdef.ErrAlreadyExists)
	} else if !os.IsNotExist(err) {
		return err
	}

	filename := expected.Annotations[spec.AnnotationResumeFilename]
	if filename == "" {
		return errors.New("resumable push missing ingest filename")
	}
	offset, err := strconv.ParseInt(expected.Annotations[spec.AnnotationResumeOffset], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid resume offset: %w", err)
	}

	fp, err := os.OpenFile(filename, os.O_WRONLY, 0666)
	if err != nil {
		return fmt.Errorf("failed to open ingest file for resume: %w", err)
	}
	if _, err := fp.Seek(offset, io.SeekStart); err != nil {
		fp.Close()
		return fmt.Errorf("failed to seek ingest file for resume: %w", err)
	}

	buf := make([]byte, 32*1024)
	remaining := io.LimitReader(content, expected.Size-offset)
	if _, err := io.CopyBuffer(fp, remaining, buf); err != nil {
		fp.Close()
		return fmt.Errorf("copy failed: %w", err)
	}
	if err := ioutil.EnsureEOF(remaining); err != nil {
		fp.Close()
		return err
	}
	if err := fp.Close(); err != nil {
		return fmt.Errorf("failed to close ingest file: %w", err)
	}

	if err := verifyIngestFile(filename, expected); err != nil {
		return err
	}

	if err := ensureDir(filepath.Dir(target)); err != nil {
		return err
	}
	return commitIngest(filename, target, expected)
}

// commitIngest links the completed ingest file at tmpPath into target,
// removing tmpPath afterward. A concurrent push that wins the race is
// reported as errdef.ErrAlreadyExists, matching Push's existing-blob check.
func commitIngest(tmpPath, target string, expected ocispec.Descriptor) error {
	if err := os.Link(tmpPath, target); err != nil {
		os.Remove(tmpPath)
		if os.IsExist(err) {
			return fmt.Errorf("%s: %s: %w", expected.Digest, expected.MediaType, errdef.ErrAlreadyExists)
		}
		return fmt.Errorf("failed to commit blob: %w", err)
	}
	return os.Remove(tmpPath)
}

// verifyIngestFile verifies that the file named filename matches desc in
// full, after a resumable push has reassembled it from multiple writes.
func verifyIngestFile(filename string, desc ocispec.Descriptor) error {
	fp, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("failed to open ingest file for verification: %w", err)
	}
	defer fp.Close()

	verifier := desc.Digest.Verifier()
	n, err := io.Copy(verifier, fp)
	if err != nil {
		return fmt.Errorf("failed to verify ingest file: %w", err)
	}
	if n != desc.Size {
		return fmt.Errorf("%s: %w", desc.Digest, errdef.ErrInvalidDescriptorSize)
	}
	if !verifier.Verified() {
		return fmt.Errorf("%s: %w", desc.Digest, errdef.ErrInvalidDigest)
	}
	return nil
}

// Delete removes the content matching the descriptor from the store.
func (s *Storage) Delete(_ context.Context, target ocispec.Descriptor) error {
	path, err := blobPath(target.Digest)
	if err != nil {
		return fmt.Errorf("%s: %s: %w", target.Digest, target.MediaType, errdef.ErrInvalidDigest)
	}

	if err := os.Remove(filepath.Join(s.root, filepath.FromSlash(path))); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%s: %s: %w", target.Digest, target.MediaType, errdef.ErrNotFound)
		}
		return err
	}
	return nil
}

// ensureDir ensures the directory at path exists, creating it and any
// missing parents if necessary.
func ensureDir(path string) error {
	return os.MkdirAll(path, 0777)
}
