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
	"fmt"

	"github.com/loomworks/loom/internal/audit"
	"github.com/loomworks/loom/internal/id"
	"github.com/loomworks/loom/internal/identity"
	"github.com/loomworks/loom/internal/platform"
	"go.opentelemetry.io/otel/metric"
)

// Provisioner resolves an extracted identity to a user inside an open
// unit of work, creating the default tenancy on first sight of an
// unknown identity in single-tenant mode.
type Provisioner struct {
	modes       platform.Provider
	auditLogger audit.Logger
	provisioned metric.Int64Counter
}

// NewProvisioner creates a provisioner. The counter may be nil when
// metrics are disabled.
func NewProvisioner(modes platform.Provider, auditLogger audit.Logger, provisioned metric.Int64Counter) *Provisioner {
	return &Provisioner{
		modes:       modes,
		auditLogger: auditLogger,
		provisioned: provisioned,
	}
}

// Resolve looks up the user for ident, provisioning a full default
// tenancy on a miss. All reads and writes run inside uow; the caller
// owns commit and rollback. On any error the unit of work must be rolled
// back by the caller, which removes every row created here.
func (p *Provisioner) Resolve(ctx context.Context, uow UnitOfWork, ident identity.Identity) (*identity.User, error) {
	user, err := uow.Users().GetByEmail(ctx, ident.Email)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, identity.ErrUserNotFound) {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	return p.provision(ctx, uow, ident)
}

// provision executes the bootstrap sequence. The order is fixed by
// foreign keys: the user must exist before the organization can stamp it
// as creator, and both must exist before the memberships.
func (p *Provisioner) provision(ctx context.Context, uow UnitOfWork, ident identity.Identity) (*identity.User, error) {
	if p.modes.Mode() != platform.ModeSingleTenant {
		return nil, ErrUnauthorizedProvisioning
	}

	orgs, err := uow.Organizations().Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count organizations: %w", err)
	}
	if orgs > 0 {
		return nil, ErrTenancyAlreadyInitialized
	}

	owner, err := uow.Roles().GetByName(ctx, RoleOwner)
	if err != nil {
		if errors.Is(err, ErrRoleNotFound) {
			return nil, ErrOwnerRoleMissing
		}
		return nil, fmt.Errorf("failed to look up owner role: %w", err)
	}

	user := &identity.User{
		ID:        id.NewUUIDv7(),
		Email:     ident.Email,
		Name:      ident.Name,
		Status:    identity.StatusActive,
		CreatedBy: identity.ActorSystem,
		UpdatedBy: identity.ActorSystem,
	}
	if err := uow.Users().Create(ctx, user); err != nil {
		return nil, err
	}

	org := &Organization{
		ID:        id.NewUUIDv7(),
		Name:      DefaultOrganizationName,
		CreatedBy: user.ID,
		UpdatedBy: user.ID,
	}
	if err := uow.Organizations().Create(ctx, org); err != nil {
		return nil, err
	}

	orgMembership := &OrganizationMembership{
		ID:             id.NewUUIDv7(),
		OrganizationID: org.ID,
		UserID:         user.ID,
		RoleID:         owner.ID,
		Status:         MembershipActive,
		CreatedBy:      user.ID,
		UpdatedBy:      user.ID,
	}
	if err := uow.OrganizationMemberships().Create(ctx, orgMembership); err != nil {
		return nil, fmt.Errorf("failed to create organization membership: %w", err)
	}

	workspace := &Workspace{
		ID:             id.NewUUIDv7(),
		OrganizationID: org.ID,
		Name:           DefaultWorkspaceName,
		CreatedBy:      user.ID,
		UpdatedBy:      user.ID,
	}
	if err := uow.Workspaces().Create(ctx, workspace); err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}

	wsMembership := &WorkspaceMembership{
		ID:          id.NewUUIDv7(),
		WorkspaceID: workspace.ID,
		UserID:      user.ID,
		RoleID:      owner.ID,
		Status:      MembershipActive,
		CreatedBy:   user.ID,
		UpdatedBy:   user.ID,
	}
	if err := uow.WorkspaceMemberships().Create(ctx, wsMembership); err != nil {
		return nil, fmt.Errorf("failed to create workspace membership: %w", err)
	}

	p.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeUserProvisioned,
		ActorID:  identity.ActorSystem,
		Resource: user.ID,
		Metadata: map[string]any{audit.AttrEmail: user.Email},
	})
	p.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeTenancyBootstrapped,
		ActorID:  user.ID,
		Resource: org.ID,
		Metadata: map[string]any{
			audit.AttrEmail:          user.Email,
			audit.AttrOrganizationID: org.ID,
			audit.AttrWorkspaceID:    workspace.ID,
			audit.AttrRoleID:         owner.ID,
		},
	})
	if p.provisioned != nil {
		p.provisioned.Add(ctx, 1)
	}

	return user, nil
}
