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
	"time"
)

// ErrUserNotFound is returned by user lookups when no row matches.
var ErrUserNotFound = errors.New("user not found")

// User status values
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

// ActorSystem is the audit stamp used when no user id exists yet to
// self-stamp, i.e. for the very first user of a deployment.
const ActorSystem = "system"

// User represents a user identity. Email is the unique lookup key; Name
// is display metadata and carries no uniqueness guarantee.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	CreatedBy string    `json:"created_by"`
	UpdatedBy string    `json:"updated_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
