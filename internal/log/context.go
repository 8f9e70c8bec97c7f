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

// Package log provides the structured logger used by the copy engine's hook
// points and the CLI. The core library never logs on its own initiative;
// callers that want lifecycle lines attach a Logger to a context and the
// hooks pick it up via FromContext.
package log

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Logger is the logging interface consumed throughout this module. It is
// satisfied by *logrus.Entry and *logrus.Logger.
type Logger = logrus.FieldLogger

type loggerKey struct{}

// L is the default logger used when no logger has been attached to a
// context, fields off and level at logrus' default (Info).
var L Logger = logrus.StandardLogger()

// WithLogger returns a copy of ctx carrying logger, retrievable via
// FromContext.
func WithLogger(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext returns the Logger attached to ctx by WithLogger, or L if none
// was attached.
func FromContext(ctx context.Context) Logger {
	if logger, ok := ctx.Value(loggerKey{}).(Logger); ok {
		return logger
	}
	return L
}
