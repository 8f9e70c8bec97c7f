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

import "github.com/ocifetch/ocidist/registry/remote/properties"

// Credential is an alias of properties.Credential so that the config,
// store, and helper types in this package can refer to it without every
// file importing properties directly.
type Credential = properties.Credential

// EmptyCredential represents an empty credential.
var EmptyCredential = properties.EmptyCredential
