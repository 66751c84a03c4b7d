// Copyright 2026 The Loom Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package identity

import (
	"errors"
	"strings"
)

// ErrMissingIdentity is returned when no email header is present; the
// request is unauthenticated and no provisioning may be attempted.
var ErrMissingIdentity = errors.New("missing user identity")

// Default trusted header names. The upstream proxy is responsible for
// verifying the caller and stripping these headers from client requests.
const (
	DefaultEmailHeader = "X-User-Email"
	DefaultNameHeader  = "X-User-Name"
)

// FallbackName is used when neither a name header nor an email local part
// is available.
const FallbackName = "unnamed"

// Identity is the canonical identity derived from trusted request headers.
type Identity struct {
	Email string
	Name  string
}

// Extract derives an Identity from the raw header values. An empty email
// yields a zero Identity; callers must treat that as unauthenticated.
// When no name is supplied the local part of the email is used, and
// FallbackName if even that is empty.
func Extract(email, name string) Identity {
	if email == "" {
		return Identity{}
	}
	if name == "" {
		local, _, _ := strings.Cut(email, "@")
		if local != "" {
			name = local
		} else {
			name = FallbackName
		}
	}
	return Identity{Email: email, Name: name}
}
