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

package http

import (
	"context"

	"github.com/loomworks/loom/internal/identity"
)

type contextKey string

const userKey contextKey = "user"

// WithUser returns a context carrying the resolved user. The identity
// middleware is the only writer; downstream handlers read it back with
// UserFromContext.
func WithUser(ctx context.Context, user *identity.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// UserFromContext retrieves the resolved user, or nil when the request
// did not pass through the identity middleware.
func UserFromContext(ctx context.Context) *identity.User {
	if user, ok := ctx.Value(userKey).(*identity.User); ok {
		return user
	}
	return nil
}
