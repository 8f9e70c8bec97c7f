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

func newCopyCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "copy <src-ref> <dst-ref>",
		Short: "Copy an OCI artifact directly between two remote repositories",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCopy(cmd.Context(), opts, args[0], args[1])
		},
	}
}

func runCopy(ctx context.Context, opts *globalOptions, srcRef, dstRef string) error {
	logger := log.FromContext(ctx)

	src, err := newRepository(srcRef, opts)
	if err != nil {
		return errors.Wrap(err, "failed to resolve source repository reference")
	}
	dst, err := newRepository(dstRef, opts)
	if err != nil {
		return errors.Wrap(err, "failed to resolve destination repository reference")
	}

	logger.WithField("src", srcRef).WithField("dst", dstRef).Info("copying")
	desc, err := ocidist.Copy(ctx, src, src.Reference.ReferenceOrDefault(), dst, dst.Reference.ReferenceOrDefault(), ocidist.CopyOptions{})
	if err != nil {
		return errors.Wrap(err, "failed to copy between registries")
	}
	logger.WithField("digest", desc.Digest.String()).Info("copied")
	return nil
}
