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

package errutil

import (
	"errors"
	"io"
	"net/http"

	"github.com/ocifetch/ocidist/registry/remote/errcode"
)

// ParseErrorResponse parses the error returned by the remote registry from
// resp, and wraps it into an *errcode.ErrorResponse. The body is read and
// closed regardless of whether it carries a recognizable error envelope; a
// body that cannot be parsed as one falls back to the plain HTTP status
// text.
func ParseErrorResponse(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	defer resp.Body.Close()
	if err != nil {
		return &errcode.ErrorResponse{
			Method:     resp.Request.Method,
			URL:        resp.Request.URL,
			StatusCode: resp.StatusCode,
		}
	}
	return errcode.ParseBody(resp.Request.Method, resp.Request.URL, resp.StatusCode, body)
}

// IsErrorCode returns true if err is an errcode.Error and its Code equals
// code. Collections of more than one error never match, since no single
// code can be said to characterize the whole response.
func IsErrorCode(err error, code string) bool {
	var ec errcode.Error
	if errors.As(err, &ec) {
		return ec.Code == code
	}
	return false
}
