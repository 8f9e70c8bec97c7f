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

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	ocidist "github.com/ocifetch/ocidist"
	"github.com/ocifetch/ocidist/content/file"
	"github.com/ocifetch/ocidist/internal/log"
)

func newPullCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "pull <ref> <dir>",
		Short: "Fetch an OCI artifact and extract its layers into dir",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPull(cmd.Context(), opts, args[0], args[1])
		},
	}
}

func runPull(ctx context.Context, opts *globalOptions, ref, dir string) error {
	logger := log.FromContext(ctx)

	repo, err := newRepository(ref, opts)
	if err != nil {
		return errors.Wrap(err, "failed to resolve repository reference")
	}

	fs, err := file.New(dir)
	if err != nil {
		return errors.Wrap(err, "failed to create file store")
	}
	defer fs.Close()

	logger.WithField("reference", ref).Info("pulling")
	desc, err := ocidist.Copy(ctx, repo, repo.Reference.ReferenceOrDefault(), fs, repo.Reference.ReferenceOrDefault(), ocidist.CopyOptions{})
	if err != nil {
		return errors.Wrap(err, "failed to pull from registry")
	}
	logger.WithField("digest", desc.Digest.String()).Info("pulled")
	return nil
}
