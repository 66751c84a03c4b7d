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

package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/loomworks/loom/internal/identity"
	"github.com/loomworks/loom/internal/tenancy"
)

// unitOfWork implements tenancy.UnitOfWork over a single pgx transaction.
// Every repository it hands out runs on the same transaction, so nothing
// is visible to other connections until Commit.
type unitOfWork struct {
	tx pgx.Tx
}

func (u *unitOfWork) Users() tenancy.UserRepository {
	return &userRepository{tx: u.tx}
}

func (u *unitOfWork) Organizations() tenancy.OrganizationRepository {
	return &organizationRepository{tx: u.tx}
}

func (u *unitOfWork) OrganizationMemberships() tenancy.OrganizationMembershipRepository {
	return &organizationMembershipRepository{tx: u.tx}
}

func (u *unitOfWork) Workspaces() tenancy.WorkspaceRepository {
	return &workspaceRepository{tx: u.tx}
}

func (u *unitOfWork) WorkspaceMemberships() tenancy.WorkspaceMembershipRepository {
	return &workspaceMembershipRepository{tx: u.tx}
}

func (u *unitOfWork) Roles() tenancy.RoleRepository {
	return &roleRepository{tx: u.tx}
}

// Commit makes all writes in this unit of work visible. Deferred
// constraint checks fire here, so commit errors go through the same
// translation as statement errors.
func (u *unitOfWork) Commit(ctx context.Context) error {
	if err := u.tx.Commit(ctx); err != nil {
		return mapError(err)
	}
	return nil
}

// Rollback discards the unit of work and releases the connection. After
// a successful Commit it is a no-op, which lets callers defer it
// unconditionally.
func (u *unitOfWork) Rollback(ctx context.Context) error {
	if err := u.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("failed to roll back transaction: %w", err)
	}
	return nil
}

// userRepository implements tenancy.UserRepository
type userRepository struct {
	tx pgx.Tx
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*identity.User, error) {
	var user identity.User

	err := r.tx.QueryRow(ctx, `
		SELECT id, email, name, status, created_by, updated_by, created_at, updated_at
		FROM users
		WHERE email = $1
	`, email).Scan(
		&user.ID, &user.Email, &user.Name, &user.Status,
		&user.CreatedBy, &user.UpdatedBy, &user.CreatedAt, &user.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, identity.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", mapError(err))
	}

	return &user, nil
}

func (r *userRepository) Create(ctx context.Context, user *identity.User) error {
	now := time.Now()
	_, err := r.tx.Exec(ctx, `
		INSERT INTO users (id, email, name, status, created_by, updated_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		user.ID, user.Email, user.Name, user.Status,
		user.CreatedBy, user.UpdatedBy, now, now,
	)
	if err != nil {
		return mapError(err)
	}

	user.CreatedAt = now
	user.UpdatedAt = now

	return nil
}

// organizationRepository implements tenancy.OrganizationRepository
type organizationRepository struct {
	tx pgx.Tx
}

func (r *organizationRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.tx.QueryRow(ctx, `SELECT COUNT(*) FROM organizations`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count organizations: %w", mapError(err))
	}
	return count, nil
}

func (r *organizationRepository) Create(ctx context.Context, org *tenancy.Organization) error {
	now := time.Now()
	_, err := r.tx.Exec(ctx, `
		INSERT INTO organizations (id, name, created_by, updated_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`,
		org.ID, org.Name, org.CreatedBy, org.UpdatedBy, now, now,
	)
	if err != nil {
		return mapError(err)
	}

	org.CreatedAt = now
	org.UpdatedAt = now

	return nil
}

// organizationMembershipRepository implements tenancy.OrganizationMembershipRepository
type organizationMembershipRepository struct {
	tx pgx.Tx
}

func (r *organizationMembershipRepository) Create(ctx context.Context, m *tenancy.OrganizationMembership) error {
	now := time.Now()
	_, err := r.tx.Exec(ctx, `
		INSERT INTO organization_memberships (id, organization_id, user_id, role_id, status, created_by, updated_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		m.ID, m.OrganizationID, m.UserID, m.RoleID, m.Status,
		m.CreatedBy, m.UpdatedBy, now, now,
	)
	if err != nil {
		return mapError(err)
	}

	m.CreatedAt = now
	m.UpdatedAt = now

	return nil
}

// workspaceRepository implements tenancy.WorkspaceRepository
type workspaceRepository struct {
	tx pgx.Tx
}

func (r *workspaceRepository) Create(ctx context.Context, ws *tenancy.Workspace) error {
	now := time.Now()
	_, err := r.tx.Exec(ctx, `
		INSERT INTO workspaces (id, organization_id, name, created_by, updated_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		ws.ID, ws.OrganizationID, ws.Name, ws.CreatedBy, ws.UpdatedBy, now, now,
	)
	if err != nil {
		return mapError(err)
	}

	ws.CreatedAt = now
	ws.UpdatedAt = now

	return nil
}

// workspaceMembershipRepository implements tenancy.WorkspaceMembershipRepository
type workspaceMembershipRepository struct {
	tx pgx.Tx
}

func (r *workspaceMembershipRepository) Create(ctx context.Context, m *tenancy.WorkspaceMembership) error {
	now := time.Now()
	_, err := r.tx.Exec(ctx, `
		INSERT INTO workspace_memberships (id, workspace_id, user_id, role_id, status, created_by, updated_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		m.ID, m.WorkspaceID, m.UserID, m.RoleID, m.Status,
		m.CreatedBy, m.UpdatedBy, now, now,
	)
	if err != nil {
		return mapError(err)
	}

	m.CreatedAt = now
	m.UpdatedAt = now

	return nil
}

// roleRepository implements tenancy.RoleRepository
type roleRepository struct {
	tx pgx.Tx
}

func (r *roleRepository) GetByName(ctx context.Context, name string) (*tenancy.Role, error) {
	var role tenancy.Role

	err := r.tx.QueryRow(ctx, `
		SELECT id, name, description
		FROM roles
		WHERE name = $1
	`, name).Scan(&role.ID, &role.Name, &role.Description)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, tenancy.ErrRoleNotFound
		}
		return nil, fmt.Errorf("failed to get role: %w", mapError(err))
	}

	return &role, nil
}
