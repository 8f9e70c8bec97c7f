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

// Package root assembles the ocidist command tree.
package root

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// globalOptions are the flags shared by every subcommand.
type globalOptions struct {
	plainHTTP bool
	verbose   bool
}

// New builds the ocidist root command with all subcommands attached.
func New() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:           "ocidist",
		Short:         "Push, pull, and copy OCI artifacts",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if opts.verbose {
				logrus.SetLevel(logrus.DebugLevel)
			}
		},
	}
	cmd.PersistentFlags().BoolVar(&opts.plainHTTP, "plain-http", false, "use HTTP instead of HTTPS when talking to the registry")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")

	cmd.AddCommand(
		newPushCmd(opts),
		newPullCmd(opts),
		newCopyCmd(opts),
		newTagCmd(opts),
		newLoginCmd(opts),
		newLogoutCmd(opts),
	)
	return cmd
}
