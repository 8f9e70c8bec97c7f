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
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/ocifetch/ocidist/internal/log"
	"github.com/ocifetch/ocidist/registry/remote/credentials"
)

func newLogoutCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout <registry>",
		Short: "Remove the stored credential for a registry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogout(cmd.Context(), args[0])
		},
	}
}

func runLogout(ctx context.Context, registryName string) error {
	logger := log.FromContext(ctx)

	store, err := credentialStore()
	if err != nil {
		return err
	}
	if err := credentials.Logout(ctx, store, registryName); err != nil {
		return errors.Wrap(err, "logout failed")
	}
	logger.WithField("registry", registryName).Info("logout succeeded")
	fmt.Println("Logout succeeded")
	return nil
}
