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
	"github.com/ocifetch/ocidist/internal/log"
)

func newTagCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tag <ref> <new-tag>",
		Short: "Fetch the manifest at ref and tag it as new-tag in the same repository",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTag(cmd.Context(), opts, args[0], args[1])
		},
	}
}

func runTag(ctx context.Context, opts *globalOptions, ref, newTag string) error {
	logger := log.FromContext(ctx)

	repo, err := newRepository(ref, opts)
	if err != nil {
		return errors.Wrap(err, "failed to resolve repository reference")
	}

	if _, err := ocidist.Tag(ctx, repo, repo.Reference.ReferenceOrDefault(), newTag); err != nil {
		return errors.Wrap(err, "failed to tag")
	}
	logger.WithField("tag", newTag).Info("tagged")
	return nil
}
