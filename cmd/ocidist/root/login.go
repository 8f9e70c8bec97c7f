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
	"github.com/ocifetch/ocidist/registry/remote"
	"github.com/ocifetch/ocidist/registry/remote/auth"
	"github.com/ocifetch/ocidist/registry/remote/credentials"
)

func newLoginCmd(opts *globalOptions) *cobra.Command {
	var username, password string

	cmd := &cobra.Command{
		Use:   "login <registry>",
		Short: "Log in to a registry and persist the credential",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogin(cmd.Context(), opts, args[0], username, password)
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "registry username")
	cmd.Flags().StringVarP(&password, "password", "p", "", "registry password")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func runLogin(ctx context.Context, opts *globalOptions, registryName, username, password string) error {
	logger := log.FromContext(ctx)

	store, err := credentialStore()
	if err != nil {
		return err
	}

	reg, err := remote.NewRegistry(registryName)
	if err != nil {
		return errors.Wrap(err, "failed to resolve registry")
	}
	reg.PlainHTTP = opts.plainHTTP
	reg.Client = &auth.Client{}

	cred := credentials.Credential{Username: username, Password: password}
	if err := credentials.Login(ctx, store, reg, cred); err != nil {
		return errors.Wrap(err, "login failed")
	}
	logger.WithField("registry", registryName).Info("login succeeded")
	fmt.Println("Login succeeded")
	return nil
}
