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

package root

import (
	"context"
	"mime"
	"path/filepath"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	ocidist "github.com/ocifetch/ocidist"
	"github.com/ocifetch/ocidist/content/file"
	"github.com/ocifetch/ocidist/internal/log"
)

func newPushCmd(opts *globalOptions) *cobra.Command {
	var artifactType string

	cmd := &cobra.Command{
		Use:   "push <ref> <file>...",
		Short: "Pack one or more files as an OCI artifact and push it to a registry",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPush(cmd.Context(), opts, args[0], args[1:], artifactType)
		},
	}
	cmd.Flags().StringVar(&artifactType, "artifact-type", ocidist.MediaTypeUnknownArtifact, "artifact type of the pushed manifest")
	return cmd
}

func runPush(ctx context.Context, opts *globalOptions, ref string, paths []string, artifactType string) error {
	logger := log.FromContext(ctx)

	fs, err := file.New(".")
	if err != nil {
		return errors.Wrap(err, "failed to create file store")
	}
	defer fs.Close()

	var layers []ocispec.Descriptor
	for _, path := range paths {
		name := filepath.Base(path)
		mediaType := mime.TypeByExtension(filepath.Ext(path))
		desc, err := fs.Add(ctx, name, mediaType, path)
		if err != nil {
			return errors.Wrapf(err, "failed to add %s", path)
		}
		layers = append(layers, desc)
	}

	manifestDesc, err := ocidist.PackManifest(ctx, fs, ocidist.DefaultPackManifestType, artifactType, ocidist.PackManifestOptions{
		Layers: layers,
	})
	if err != nil {
		return errors.Wrap(err, "failed to pack manifest")
	}

	repo, err := newRepository(ref, opts)
	if err != nil {
		return errors.Wrap(err, "failed to resolve repository reference")
	}

	logger.WithField("reference", ref).Info("pushing")
	if _, err := ocidist.Tag(ctx, fs, manifestDesc.Digest.String(), repo.Reference.ReferenceOrDefault()); err != nil {
		return errors.Wrap(err, "failed to tag local manifest")
	}
	if _, err := ocidist.Copy(ctx, fs, repo.Reference.ReferenceOrDefault(), repo, repo.Reference.ReferenceOrDefault(), ocidist.CopyOptions{}); err != nil {
		return errors.Wrap(err, "failed to push to registry")
	}
	logger.WithField("digest", manifestDesc.Digest.String()).Info("pushed")
	return nil
}
