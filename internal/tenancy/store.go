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

package tenancy

import (
	"context"
	"errors"

	"github.com/loomworks/loom/internal/identity"
)

// Domain errors surfaced by the store and the provisioner.
var (
	// ErrUnauthorizedProvisioning: auto-provisioning was attempted
	// outside single-tenant mode.
	ErrUnauthorizedProvisioning = errors.New("auto user provisioning is only supported in single-tenant mode")
	// ErrTenancyAlreadyInitialized: an organization already exists, so
	// the single-tenant bootstrap must not run again.
	ErrTenancyAlreadyInitialized = errors.New("only one organization allowed in single-tenant mode")
	// ErrOwnerRoleMissing: the pre-seeded owner role was not found, a
	// deployment integrity violation.
	ErrOwnerRoleMissing = errors.New("owner role is not seeded")
	// ErrProvisioningConflict: a concurrent request provisioned the same
	// identity first; retry as a plain lookup.
	ErrProvisioningConflict = errors.New("concurrent provisioning detected")
	ErrRoleNotFound         = errors.New("role not found")
)

// Store opens units of work against the tenancy tables.
type Store interface {
	Begin(ctx context.Context) (UnitOfWork, error)
}

// UnitOfWork is an atomic group of tenancy operations. Rows become
// visible only on Commit; Rollback discards everything. Rollback after a
// successful Commit is a no-op, so callers defer it unconditionally to
// guarantee release of the underlying transaction on every exit path.
//
// A unit of work is owned by a single goroutine for its lifetime.
type UnitOfWork interface {
	Users() UserRepository
	Organizations() OrganizationRepository
	OrganizationMemberships() OrganizationMembershipRepository
	Workspaces() WorkspaceRepository
	WorkspaceMemberships() WorkspaceMembershipRepository
	Roles() RoleRepository

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// UserRepository accesses users inside a unit of work.
type UserRepository interface {
	// GetByEmail returns identity.ErrUserNotFound when no row matches.
	GetByEmail(ctx context.Context, email string) (*identity.User, error)
	// Create returns ErrProvisioningConflict when the email is taken.
	Create(ctx context.Context, user *identity.User) error
}

// OrganizationRepository accesses organizations inside a unit of work.
type OrganizationRepository interface {
	Count(ctx context.Context) (int64, error)
	// Create returns ErrTenancyAlreadyInitialized when the single
	// organization slot is already occupied.
	Create(ctx context.Context, org *Organization) error
}

// OrganizationMembershipRepository accesses organization memberships.
type OrganizationMembershipRepository interface {
	Create(ctx context.Context, m *OrganizationMembership) error
}

// WorkspaceRepository accesses workspaces inside a unit of work.
type WorkspaceRepository interface {
	Create(ctx context.Context, ws *Workspace) error
}

// WorkspaceMembershipRepository accesses workspace memberships.
type WorkspaceMembershipRepository interface {
	Create(ctx context.Context, m *WorkspaceMembership) error
}

// RoleRepository accesses the pre-seeded roles.
type RoleRepository interface {
	// GetByName returns ErrRoleNotFound when no role matches.
	GetByName(ctx context.Context, name string) (*Role, error)
}
