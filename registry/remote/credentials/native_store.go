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

package credentials

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"reflect"
	"runtime"
	"strings"

	"github.com/ocifetch/ocidist/registry/remote/credentials/trace"
)

// errCredentialsNotFoundMessage is the message returned by a credential
// helper binary when no credentials are stored for the requested server.
//
// Reference: https://github.com/docker/docker-credential-helpers/blob/v0.8.0/credentials/error.go#L6-L8
const errCredentialsNotFoundMessage = "credentials not found in native keychain"

// Executer executes a command against a credential helper binary, feeding
// it input on stdin and returning its stdout output. It abstracts the
// underlying exec.Cmd so helper invocation can be mocked in tests.
type Executer interface {
	// Execute runs the action ("get", "store" or "erase") against the
	// credential helper binary, passing input on stdin.
	Execute(ctx context.Context, input io.Reader, action string) ([]byte, error)
}

// nativeStore is a Store implementation that talks to a native credential
// helper binary such as docker-credential-pass.
//
// Reference: https://docs.docker.com/engine/reference/commandline/cli/#credential-helpers
type nativeStore struct {
	exec Executer
}

// NewNativeStore creates a new native store that shells out to the
// docker-credential-<helperSuffix> binary on PATH.
func NewNativeStore(helperSuffix string) *nativeStore {
	return &nativeStore{
		exec: &binaryExecuter{
			programFunc: binaryName(helperSuffix),
		},
	}
}

// NewDefaultNativeStore returns a native store for the default credential
// helper of the running platform. The second return value is false if the
// platform has no associated default helper.
func NewDefaultNativeStore() (Store, bool) {
	helperSuffix := getDefaultHelperSuffix()
	if helperSuffix == "" {
		return nil, false
	}
	return NewNativeStore(helperSuffix), true
}

// getDefaultHelperSuffix returns the default credential helper suffix for
// the running platform, or "" if there is none.
//
// Reference: https://github.com/docker/cli/blob/v24.0.0-beta.2/cli/config/credentials/default_store.go
func getDefaultHelperSuffix() string {
	switch runtime.GOOS {
	case "darwin":
		return "osxkeychain"
	case "windows":
		return "wincred"
	}
	return ""
}

// binaryName returns a function producing the credential helper binary name
// for a given suffix, matching the naming scheme docker-credential-helpers
// uses for its native store binaries.
func binaryName(helperSuffix string) string {
	return "docker-credential-" + helperSuffix
}

// dockerCredentials mirrors the JSON exchanged with a credential helper
// binary over stdin/stdout.
//
// Reference: https://github.com/docker/docker-credential-helpers/blob/v0.8.0/credentials/credentials.go#L40-L47
type dockerCredentials struct {
	ServerURL string `json:"ServerURL,omitempty"`
	Username  string `json:"Username,omitempty"`
	Secret    string `json:"Secret,omitempty"`
}

// Get retrieves credentials from the store for the given server address.
func (ns *nativeStore) Get(ctx context.Context, serverAddress string) (Credential, error) {
	out, err := ns.execute(ctx, strings.NewReader(serverAddress), "get")
	if err != nil {
		if errorMatches(err, errCredentialsNotFoundMessage) {
			return EmptyCredential, nil
		}
		return EmptyCredential, err
	}

	var creds dockerCredentials
	if err := json.Unmarshal(out, &creds); err != nil {
		return EmptyCredential, fmt.Errorf("failed to unmarshal credentials from native store: %w", err)
	}

	if creds.Username == "<token>" {
		return Credential{RefreshToken: creds.Secret}, nil
	}
	return Credential{Username: creds.Username, Password: creds.Secret}, nil
}

// Put saves credentials into the store for the given server address.
func (ns *nativeStore) Put(ctx context.Context, serverAddress string, cred Credential) error {
	creds := dockerCredentials{
		ServerURL: serverAddress,
		Username:  cred.Username,
		Secret:    cred.Password,
	}
	if cred.RefreshToken != "" {
		creds.Username = "<token>"
		creds.Secret = cred.RefreshToken
	}

	buf, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("failed to marshal credentials for native store: %w", err)
	}
	_, err = ns.execute(ctx, bytes.NewReader(buf), "store")
	return err
}

// Delete removes credentials from the store for the given server address.
func (ns *nativeStore) Delete(ctx context.Context, serverAddress string) error {
	_, err := ns.execute(ctx, strings.NewReader(serverAddress), "erase")
	return err
}

// execute runs action against the underlying Executer, invoking the
// configured ExecutableTrace hooks around the call.
func (ns *nativeStore) execute(ctx context.Context, input io.Reader, action string) ([]byte, error) {
	executableName := reflect.TypeOf(ns.exec).Elem().Name()

	traceHook := trace.ContextExecutableTrace(ctx)
	if traceHook != nil && traceHook.ExecuteStart != nil {
		traceHook.ExecuteStart(executableName, action)
	}
	out, err := ns.exec.Execute(ctx, input, action)
	if traceHook != nil && traceHook.ExecuteDone != nil {
		traceHook.ExecuteDone(executableName, action, err)
	}
	return out, err
}

// errorMatches reports whether err's message equals msg. Credential helper
// binaries communicate the not-found case as a plain-text stderr message
// rather than a distinguishable exit code, so string matching is the only
// reliable signal.
func errorMatches(err error, msg string) bool {
	return err != nil && err.Error() == msg
}

// binaryExecuter is the production Executer, shelling out to a
// docker-credential-* binary on PATH.
type binaryExecuter struct {
	programFunc string
}

// Execute runs the configured credential helper binary with action as its
// sole argument, feeding it input on stdin.
func (e *binaryExecuter) Execute(ctx context.Context, input io.Reader, action string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, e.programFunc, action)
	cmd.Stdin = input
	out, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return nil, fmt.Errorf("%s: %s", err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, err
	}
	return out, nil
}
