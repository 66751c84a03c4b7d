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

// Package id generates entity identifiers. UUIDv7 is used everywhere so
// identifiers sort by creation time.
package id

import "github.com/google/uuid"

// NewUUIDv7 returns a new time-ordered UUID string.
func NewUUIDv7() string {
	v, err := uuid.NewV7()
	if err != nil {
		// NewV7 only fails if the random source is exhausted; fall back
		// to a v4 rather than panic inside a request.
		return uuid.NewString()
	}
	return v.String()
}
