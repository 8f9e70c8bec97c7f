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

// Package trace provides tracing hooks for credential helper binary
// executions, in the style of net/http/httptrace.
package trace

import "context"

// ExecutableTrace is a set of hooks to run at various stages of executing a
// credential helper binary. Any particular hook may be nil.
type ExecutableTrace struct {
	// ExecuteStart is called before the credential helper binary
	// identified by executableName is executed for action.
	ExecuteStart func(executableName string, action string)

	// ExecuteDone is called after the credential helper binary identified
	// by executableName finishes executing action, with the error it
	// returned, if any.
	ExecuteDone func(executableName string, action string, err error)
}

type contextKey struct{}

// ContextExecutableTrace returns the ExecutableTrace associated with ctx, or
// nil if there is none.
func ContextExecutableTrace(ctx context.Context) *ExecutableTrace {
	trace, _ := ctx.Value(contextKey{}).(*ExecutableTrace)
	return trace
}

// WithExecutableTrace returns a new context based on ctx that carries trace.
// If ctx already carries a trace, trace's hooks are wrapped in place to run
// before the hooks already present in ctx. A nil trace returns ctx
// unchanged.
func WithExecutableTrace(ctx context.Context, trace *ExecutableTrace) context.Context {
	if trace == nil {
		return ctx
	}
	if old := ContextExecutableTrace(ctx); old != nil {
		compose(trace, old)
	}
	return context.WithValue(ctx, contextKey{}, trace)
}

// compose wraps newer's hooks in place so that each also invokes older's
// corresponding hook, newer firing first.
func compose(newer, older *ExecutableTrace) {
	newStart, oldStart := newer.ExecuteStart, older.ExecuteStart
	newer.ExecuteStart = func(executableName, action string) {
		if newStart != nil {
			newStart(executableName, action)
		}
		if oldStart != nil {
			oldStart(executableName, action)
		}
	}

	newDone, oldDone := newer.ExecuteDone, older.ExecuteDone
	newer.ExecuteDone = func(executableName, action string, err error) {
		if newDone != nil {
			newDone(executableName, action, err)
		}
		if oldDone != nil {
			oldDone(executableName, action, err)
		}
	}
}
